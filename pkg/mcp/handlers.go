package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/arcanine/pkg/pipeline"
	"github.com/ormasoftchile/arcanine/pkg/schema"
	"github.com/ormasoftchile/arcanine/pkg/trace"
	"github.com/ormasoftchile/arcanine/pkg/transport"
)

// Handlers carries what the run tool needs from its host.
type Handlers struct {
	// Executor sends requests. Nil uses the HTTP transport.
	Executor pipeline.Executor

	// LookupEnv resolves secrets. Nil uses the process environment.
	LookupEnv func(name string) (string, bool)
}

// HandleRun implements the arcanine/run MCP tool.
func (h *Handlers) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	collection, _ := args["collection"].(string)
	path, _ := args["request"].(string)
	if collection == "" || path == "" {
		return errorResult("collection and request arguments are required"), nil
	}
	envPath, _ := args["env"].(string)
	globalsPath, _ := args["globals"].(string)

	src, err := schema.LoadSources(collection, envPath, globalsPath)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	src.LookupEnv = h.LookupEnv
	if raw, ok := args["vars"].(map[string]any); ok && len(raw) > 0 {
		src.Overrides = make(map[string]string, len(raw))
		for k, v := range raw {
			src.Overrides[k] = fmt.Sprint(v)
		}
	}

	job, err := schema.Plan(src, path)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	rules, err := src.Redactions()
	if err != nil {
		return errorResult(fmt.Sprintf("redaction rules: %s", err)), nil
	}

	// The writer only scrubs the reply; events are discarded.
	tw := trace.NewWriter(io.Discard)
	tw.SetRules(rules)

	exec := h.Executor
	if exec == nil {
		exec = transport.New(0)
	}
	cfg := pipeline.DefaultConfig(exec)
	cfg.Trace = tw
	o, err := pipeline.New(cfg)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	result := o.Execute(ctx, job.Def, job.Levels)

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %s", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(tw.Redact(string(data)))},
		IsError: !result.Passed(),
	}, nil
}

// HandleValidate implements the arcanine/validate MCP tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	kind, _ := args["kind"].(string)
	if kind == "" {
		kind = schema.DetectKind(path)
	}

	doc, errs := schema.ValidateFile(kind, path)
	if schema.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}

	msg := fmt.Sprintf("✓ %s is a valid %s", path, kind)
	switch d := doc.(type) {
	case *schema.Collection:
		msg = fmt.Sprintf("✓ collection %s is valid (%d requests)", d.Name, len(d.Walk()))
	case *schema.Environment:
		msg = fmt.Sprintf("✓ environment %s is valid (%d variables, %d secrets)", d.Name, len(d.Variables), len(d.Secrets))
	}
	if warnings := formatWarnings(errs); warnings != "" {
		msg += "\nwarnings: " + warnings
	}
	return textResult(msg), nil
}

// HandleSchema implements the arcanine/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	kind, _ := args["kind"].(string)

	data, err := schema.GenerateJSONSchema(kind)
	if err != nil {
		return errorResult(fmt.Sprintf("%s; use one of %s", err, strings.Join(schema.Kinds, ", "))), nil
	}
	return textResult(string(data)), nil
}

func formatErrors(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, e.Error())
		}
	}
	return strings.Join(msgs, "; ")
}

func formatWarnings(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "warning" {
			msgs = append(msgs, e.Error())
		}
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
