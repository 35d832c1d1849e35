/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/rephraser/internal"
	"github.com/valpere/rephraser/internal/textutil"
)

const prompt = "What do you want to rephrase?> "

var (
	rephraseText   string
	rephrasePrefix string
	rephraseSuffix string
	rephraseTop    int
	jsonOutput     bool
	noHistory      bool
)

var rephraseCmd = &cobra.Command{
	Use:   "rephrase",
	Short: "Generate ranked paraphrases",
	Long: `Generate paraphrases of a text, ranked by phrase-table and language-model
score.

With --text the text is rephrased once. Without it, lines are read from
stdin until EOF. A line may carry surrounding context for language-model
scoring in the form:

  prefix || text to rephrase || suffix

Only the last 4 tokens of the prefix and the first 4 tokens of the suffix
are used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, !noHistory)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if rephraseText != "" {
			window := cfg.Context.Window
			in := textutil.Input{
				Text:   textutil.Normalize(rephraseText),
				Prefix: textutil.LastWords(rephrasePrefix, window),
				Suffix: textutil.FirstWords(rephraseSuffix, window),
			}
			results, err := a.rephrase(ctx, in)
			if err != nil {
				return err
			}
			return printResults(out, results)
		}

		go func() {
			if err := a.orch.Warm(ctx).Err(); err != nil {
				slog.Warn("engine warm-up failed", "error", err)
			}
		}()

		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for {
			fmt.Fprint(os.Stderr, prompt)
			if !scanner.Scan() {
				fmt.Fprintln(os.Stderr)
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if !a.orch.AllWarm() {
				fmt.Fprintln(os.Stderr, "The subprocesses are warming up...")
			}

			results, err := a.rephrase(ctx, textutil.ParseInput(line, cfg.Context.Window))
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fmt.Fprintf(os.Stderr, "Rephrase failed: %v\n", err)
				continue
			}
			if err := printResults(out, results); err != nil {
				return err
			}
		}
		return scanner.Err()
	},
}

func printResults(w io.Writer, results []internal.Paraphrase) error {
	if rephraseTop > 0 && len(results) > rephraseTop {
		results = results[:rephraseTop]
	}

	if jsonOutput {
		if results == nil {
			results = []internal.Paraphrase{}
		}
		enc := json.NewEncoder(w)
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(w, "No paraphrases found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSCORE\tPARAPHRASE")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%.4f\t%s\n", i+1, r.Score, r.Text)
	}
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(rephraseCmd)

	rephraseCmd.Flags().StringVarP(&rephraseText, "text", "t", "", "Text to rephrase (reads stdin lines when empty)")
	rephraseCmd.Flags().StringVar(&rephrasePrefix, "prefix", "", "Left context for language-model scoring")
	rephraseCmd.Flags().StringVar(&rephraseSuffix, "suffix", "", "Right context for language-model scoring")
	rephraseCmd.Flags().IntVarP(&rephraseTop, "top", "n", 0, "Print at most this many paraphrases (0 = all)")
	rephraseCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	rephraseCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record this run in the history database")

	rephraseCmd.Flags().String("forward-cmd", "", "Forward phrase-table engine command")
	rephraseCmd.Flags().String("backward-cmd", "", "Backward phrase-table engine command")
	rephraseCmd.Flags().String("lm-cmd", "", "Language-model engine command")
	rephraseCmd.Flags().String("metrics-addr", "", "Serve prometheus metrics on this address (e.g. :9090)")
	_ = v.BindPFlag("engines.forward.command", rephraseCmd.Flags().Lookup("forward-cmd"))
	_ = v.BindPFlag("engines.backward.command", rephraseCmd.Flags().Lookup("backward-cmd"))
	_ = v.BindPFlag("engines.lm.command", rephraseCmd.Flags().Lookup("lm-cmd"))
	_ = v.BindPFlag("metrics_addr", rephraseCmd.Flags().Lookup("metrics-addr"))
}
