package main

import (
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/arcanine/pkg/tui"
)

var (
	tuiOpts    runOptions
	tuiCompact bool
)

var tuiCmd = &cobra.Command{
	Use:   "tui [collection.yaml]",
	Short: "Browse and run a collection interactively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := tuiOpts.open(args[0], nil)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := signalContext()
		defer cancel()
		return tui.Run(ctx, tui.Config{
			Sources:      s.src,
			Orchestrator: s.orch,
			Finish:       s.finish,
			Redact:       s.tw.Redact,
			Compact:      tuiCompact,
		})
	},
}

func init() {
	tuiOpts.register(tuiCmd)
	// Output format flags do not apply to the interactive view.
	for _, name := range []string{"json", "markdown", "plain"} {
		_ = tuiCmd.Flags().MarkHidden(name)
	}
	tuiCmd.Flags().BoolVar(&tuiCompact, "compact", false, "Single-column layout")
	rootCmd.AddCommand(tuiCmd)
}
