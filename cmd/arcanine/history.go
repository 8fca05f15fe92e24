package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/arcanine/pkg/history"
)

var (
	historyLast int
	historyJSON bool
)

var historyCmd = &cobra.Command{
	Use:   "history [history.jsonl]",
	Short: "Show recorded runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := history.Last(args[0], historyLast)
		if err != nil {
			return err
		}
		return printHistory(cmd.OutOrStdout(), entries, historyJSON)
	},
}

func printHistory(w io.Writer, entries []history.Entry, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, e := range entries {
		icon := "✓"
		if !e.Passed() {
			icon = "✗"
		}
		code := "-"
		if e.StatusCode > 0 {
			code = fmt.Sprint(e.StatusCode)
		}
		passed := 0
		for _, t := range e.Tests {
			if t.Passed {
				passed++
			}
		}
		fmt.Fprintf(w, "%s %s  %-7s %s  %3s  %5d ms  %d/%d tests  %s\n",
			icon, e.Time.Local().Format("2006-01-02 15:04:05"), e.Method, e.URL, code, e.DurationMs, passed, len(e.Tests), e.Status)
	}
	return nil
}

func init() {
	historyCmd.Flags().IntVarP(&historyLast, "last", "n", 20, "Show only the last N runs (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output entries as JSON")
	rootCmd.AddCommand(historyCmd)
}
