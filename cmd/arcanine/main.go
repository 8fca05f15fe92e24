// Command arcanine runs API requests from YAML collections through the
// variable resolution and script pipeline.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/arcanine/pkg/schema"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	loadDotEnv(".env")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads KEY=VALUE lines from path and sets the variables that
// are not already set. Comments (#) and blanks are skipped.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, val)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:           "arcanine",
	Short:         "Scriptable API request runner",
	Long:          "arcanine runs HTTP requests from YAML collections with layered variables and pre-request, post-response and test scripts.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// --- validate ---

var validateKind string

var validateCmd = &cobra.Command{
	Use:   "validate [file.yaml...]",
	Short: "Validate collection, environment or globals YAML files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	failed := 0
	for _, path := range args {
		kind := validateKind
		if kind == "" {
			kind = schema.DetectKind(path)
		}
		_, errs := schema.ValidateFile(kind, path)

		var errors, warnings []*schema.ValidationError
		for _, e := range errs {
			if e.Severity == "warning" {
				warnings = append(warnings, e)
			} else {
				errors = append(errors, e)
			}
		}
		for _, w := range warnings {
			fmt.Fprintf(errOut, "  ⚠ [%s] %s\n", w.Phase, w.Message)
			if w.Path != "" {
				fmt.Fprintf(errOut, "    at: %s\n", w.Path)
			}
		}
		if len(errors) > 0 {
			failed++
			fmt.Fprintf(errOut, "%s: validation failed: %d error(s)\n\n", path, len(errors))
			for i, e := range errors {
				fmt.Fprintf(errOut, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(errOut, "     at: %s\n", e.Path)
				}
			}
			continue
		}
		fmt.Fprintf(out, "✓ %s is a valid %s\n", path, kind)
	}
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed validation", failed)
	}
	return nil
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:       "export [collection|environment|globals]",
	Short:     "Export JSON Schema to stdout",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: schema.Kinds,
	RunE:      runSchemaExport,
}

func runSchemaExport(cmd *cobra.Command, args []string) error {
	kind := schema.KindCollection
	if len(args) == 1 {
		kind = args[0]
	}
	data, err := schema.GenerateJSONSchema(kind)
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	var out json.RawMessage = data
	formatted, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(formatted))
	return nil
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "arcanine %s (build: %s)\n", version, commit)
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateKind, "kind", "", "Document kind: collection, environment or globals (default: detect from file name)")

	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}
