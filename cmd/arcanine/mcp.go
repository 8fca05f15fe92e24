package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	amcp "github.com/ormasoftchile/arcanine/pkg/mcp"
	"github.com/ormasoftchile/arcanine/pkg/transport"
)

var mcpTimeout = transport.DefaultTimeout

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the arcanine tools over MCP (stdio)",
	Long: `Start a Model Context Protocol server on stdin/stdout exposing the
arcanine/run, arcanine/validate and arcanine/schema tools.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := amcp.NewServer(version, &amcp.Handlers{Executor: transport.New(mcpTimeout)})
		return server.ServeStdio(s)
	},
}

func init() {
	mcpCmd.Flags().DurationVar(&mcpTimeout, "timeout", transport.DefaultTimeout, "HTTP timeout per request")
	rootCmd.AddCommand(mcpCmd)
}
