package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/resolve"
	"github.com/ormasoftchile/arcanine/pkg/sandbox"
	"github.com/ormasoftchile/arcanine/pkg/stage"
	"github.com/ormasoftchile/arcanine/pkg/trace"
)

// Executor performs the single network exchange of a run.
//
// Contract:
//   - Execute is the only place network I/O happens.
//   - A non-nil error means no usable response; the orchestrator reports it
//     as a transport failure and does not retry.
//   - Execute should honor ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, req *model.Request) (*model.Response, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req *model.Request) (*model.Response, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, req *model.Request) (*model.Response, error) {
	return f(ctx, req)
}

// Logger is an optional interface for human-readable progress lines.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging must be best-effort; Logf should not panic.
type Logger interface {
	Logf(format string, args ...any)
}

// Config holds the configuration for an Orchestrator.
type Config struct {
	// Executor performs the request. Required.
	Executor Executor

	// Engine runs scripts. Defaults to the JavaScript engine.
	Engine sandbox.Engine

	// Budget bounds each script; zero fields take sandbox defaults.
	Budget sandbox.Budget

	// MaxDepth bounds nested variable expansion. Defaults to 10.
	MaxDepth int

	// Order applies to the post-response and test stages. Pre-request
	// scripts always run outer-first. Defaults to outer-first.
	Order stage.Order

	// ResolveAfterPreRequest re-resolves the request after pre-request
	// scripts so tokens they introduce or define are expanded.
	ResolveAfterPreRequest bool

	// FailOnUnresolved aborts on unresolved tokens anywhere in the request,
	// not only in the URL.
	FailOnUnresolved bool

	// Trace receives run events. Nil disables tracing.
	Trace *trace.Writer

	// Logger is an optional logger for progress lines.
	Logger Logger

	// IDFunc generates run IDs. Defaults to GenerateRunID.
	IDFunc func() string

	// NewUUID backs crypto.randomUUID in scripts. Nil uses random v4 UUIDs.
	NewUUID func() string
}

// DefaultConfig returns a Config with every optional behavior at its
// default, including re-resolution after pre-request scripts.
func DefaultConfig(exec Executor) Config {
	return Config{
		Executor:               exec,
		Budget:                 sandbox.Budget{}.WithDefaults(),
		MaxDepth:               resolve.DefaultMaxDepth,
		Order:                  stage.OuterFirst,
		ResolveAfterPreRequest: true,
	}
}

// Validate checks that all required fields are set and values are sane.
// Returns ErrConfiguration on any problem.
func (c *Config) Validate() error {
	var problems []string
	if c.Executor == nil {
		problems = append(problems, "missing required field: Executor")
	}
	if c.MaxDepth < 0 {
		problems = append(problems, "MaxDepth must not be negative")
	}
	if c.Budget.Timeout < 0 || c.Budget.MaxConsoleLines < 0 || c.Budget.MaxCallStackSize < 0 {
		problems = append(problems, "Budget fields must not be negative")
	}
	if c.Order != "" && c.Order != stage.OuterFirst && c.Order != stage.InnerFirst {
		problems = append(problems, fmt.Sprintf("unknown Order %q", c.Order))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// applyDefaults sets default values for optional fields.
func (c *Config) applyDefaults() {
	if c.Engine == nil {
		c.Engine = sandbox.NewJS()
	}
	c.Budget = c.Budget.WithDefaults()
	if c.MaxDepth == 0 {
		c.MaxDepth = resolve.DefaultMaxDepth
	}
	if c.Order == "" {
		c.Order = stage.OuterFirst
	}
	if c.IDFunc == nil {
		c.IDFunc = GenerateRunID
	}
}
