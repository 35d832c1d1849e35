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
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Start every engine and report whether it came up",
	Long: `Start the forward, backward and language-model engines concurrently,
report how long each took, then shut them down again. Useful to check
engine commands before an interactive session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		result := a.orch.Warm(cmd.Context())

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ENGINE\tSTATUS\tLATENCY\tERROR")
		for _, r := range result.Results {
			status := "ok"
			if r.Error != "" {
				status = "failed"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Engine, status, r.Latency.Round(time.Millisecond), r.Error)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("Engines ready: %d/%d\n", result.Succeeded, len(result.Results))
		return result.Err()
	},
}

func init() {
	rootCmd.AddCommand(warmCmd)
}
