//go:build ignore

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/arcanine/pkg/schema"
)

func main() {
	if err := os.MkdirAll("schemas", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}
	for _, kind := range schema.Kinds {
		data, err := schema.GenerateJSONSchema(kind)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error generating %s schema: %v\n", kind, err)
			os.Exit(1)
		}
		path := filepath.Join("schemas", kind+"-v1.json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("wrote", path)
	}
}
