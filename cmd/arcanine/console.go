package main

import (
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/arcanine/pkg/console"
	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/sandbox"
	"github.com/ormasoftchile/arcanine/pkg/schema"
	"github.com/ormasoftchile/arcanine/pkg/scope"
)

var (
	consoleEnv           string
	consoleGlobals       string
	consoleVars          []string
	consoleRequest       string
	consoleScriptTimeout = sandbox.DefaultTimeout
)

var consoleCmd = &cobra.Command{
	Use:   "console [collection.yaml]",
	Short: "Interactive script console over a collection's variables",
	Long: `Start an interactive console. Each line runs as a script with the same
env, collection, request and console objects scripts see during a run.
Variables written by one line stay visible to the next.

With --request, the scope levels and the request object come from that
request; otherwise only the collection, environment and globals are loaded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := schema.LoadSources(args[0], consoleEnv, consoleGlobals)
		if err != nil {
			return err
		}
		if src.Overrides, err = parseVars(consoleVars); err != nil {
			return err
		}

		var levels []scope.Table
		var req *model.Request
		if consoleRequest != "" {
			job, err := schema.Plan(src, consoleRequest)
			if err != nil {
				return err
			}
			levels, req = job.Levels, job.Def.Request
		} else {
			levels = src.ScopeLevels()
		}

		c, err := console.New(levels, console.Options{
			Budget:  sandbox.Budget{Timeout: consoleScriptTimeout},
			Request: req,
			Output:  cmd.OutOrStdout(),
		})
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		return c.Run(ctx)
	},
}

func init() {
	consoleCmd.Flags().StringVarP(&consoleEnv, "env", "e", "", "Environment YAML file")
	consoleCmd.Flags().StringVar(&consoleGlobals, "globals", "", "Globals YAML file")
	consoleCmd.Flags().StringArrayVar(&consoleVars, "var", nil, "Set a runtime variable (key=value), repeatable")
	consoleCmd.Flags().StringVar(&consoleRequest, "request", "", "Load scope and request object from this request path")
	consoleCmd.Flags().DurationVar(&consoleScriptTimeout, "script-timeout", sandbox.DefaultTimeout, "Time budget per line")
	rootCmd.AddCommand(consoleCmd)
}
