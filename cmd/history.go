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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/rephraser/internal"
	"github.com/valpere/rephraser/internal/store"
)

var (
	historyLimit int
	historyText  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and clear the rephrase history",
	Long:  `List, inspect, and clear the SQLite history of rephrase requests and their ranked results.`,
}

func openStore(path string) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent rephrase requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cfg.History.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListRequests(context.Background(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No rephrase history.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tWHEN\tRESULTS\tBEST SCORE\tTEXT\tBEST")
		for _, e := range entries {
			snippet := e.Text
			if len(snippet) > 40 {
				snippet = snippet[:37] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%.4f\t%s\t%s\n",
				e.ID, e.Timestamp.Format("2006-01-02 15:04"), e.ResultCount,
				e.BestScore, snippet, e.Best)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show the ranked results of one request",
	Long:  `Show the ranked results of a request by id, or of the latest request for --text.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (len(args) == 0) == (historyText == "") {
			return fmt.Errorf("specify either a request id or --text")
		}

		db, err := openStore(cfg.History.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		var results []internal.Paraphrase
		if historyText != "" {
			var found bool
			results, found, err = db.LatestResults(ctx, historyText)
			if err == nil && !found {
				return fmt.Errorf("no history for %q", historyText)
			}
		} else {
			results, err = db.Results(ctx, args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to load results: %w", err)
		}
		return printResults(cmd.OutOrStdout(), results)
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show history statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cfg.History.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Requests:           %d\n", stats.Requests)
		fmt.Printf("Saved paraphrases:  %d\n", stats.Results)
		fmt.Printf("Without results:    %d\n", stats.EmptyRequests)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one request and its results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cfg.History.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteRequest(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete request: %w", err)
		}
		fmt.Printf("Deleted request: %s\n", args[0])
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the whole history",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cfg.History.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.Clear(context.Background())
		if err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Printf("Cleared %d requests from history.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.PersistentFlags().String("db", "", "Database path (overrides history.db)")
	_ = v.BindPFlag("history.db", historyCmd.PersistentFlags().Lookup("db"))
	historyShowCmd.Flags().StringVar(&historyText, "text", "", "Show the latest results for this input text")
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of requests to list (0 = all)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
}
