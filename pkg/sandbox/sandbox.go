// Package sandbox runs one untrusted script body against a narrow
// capability surface under wall-clock and output limits.
//
// Scripts see only env, collection, request, response, assert, console and
// crypto.randomUUID. Nothing else from the host is reachable. A script can
// never fault its caller: thrown errors, syntax errors, timeouts and
// cancellation all come back as data in StageResult.Error.
package sandbox

import (
	"context"
	"time"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/scope"
)

// Stage names a point in the pipeline where scripts run.
type Stage string

const (
	StagePreRequest   Stage = "pre-request"
	StagePostResponse Stage = "post-response"
	StageTest         Stage = "test"
)

// Defaults applied by Budget.WithDefaults.
const (
	DefaultTimeout          = 5 * time.Second
	DefaultMaxConsoleLines  = 1000
	DefaultMaxCallStackSize = 512
)

// Budget bounds one script execution.
type Budget struct {
	Timeout          time.Duration
	MaxConsoleLines  int
	MaxCallStackSize int
}

// WithDefaults fills zero fields.
func (b Budget) WithDefaults() Budget {
	if b.Timeout <= 0 {
		b.Timeout = DefaultTimeout
	}
	if b.MaxConsoleLines <= 0 {
		b.MaxConsoleLines = DefaultMaxConsoleLines
	}
	if b.MaxCallStackSize <= 0 {
		b.MaxCallStackSize = DefaultMaxCallStackSize
	}
	return b
}

// Script is one script body plus where it came from
// ("collection", "folder:users", "request:list" ...).
type Script struct {
	Origin string `json:"origin"`
	Source string `json:"source"`
}

// ConsoleLevel is the console method that produced an entry.
type ConsoleLevel string

const (
	ConsoleLog   ConsoleLevel = "log"
	ConsoleWarn  ConsoleLevel = "warn"
	ConsoleError ConsoleLevel = "error"
)

// ConsoleEntry is one console call.
type ConsoleEntry struct {
	Level  ConsoleLevel `json:"level"`
	Text   string       `json:"text"`
	Script string       `json:"script,omitempty"`
}

// TestOutcome is one assert call made during the test stage.
type TestOutcome struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
	Script  string `json:"script,omitempty"`
}

// StageResult is what one script (or a folded stage) produced.
type StageResult struct {
	Console    []ConsoleEntry `json:"console,omitempty"`
	Error      *ErrorInfo     `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Tests      []TestOutcome  `json:"tests,omitempty"`
}

// Passed counts passing test outcomes.
func (r *StageResult) Passed() int {
	n := 0
	for _, t := range r.Tests {
		if t.Passed {
			n++
		}
	}
	return n
}

// Context is the capability graph handed to one script invocation.
// The orchestrator owns it; scripts run strictly one at a time.
type Context struct {
	Stage    Stage
	Vars     *scope.Chain
	Request  *model.Request  // mutable only in StagePreRequest
	Response *model.Response // nil before the request is sent
	NewUUID  func() string   // nil uses a random v4 UUID
	MaxDepth int             // nested resolution bound for env.get
}

// Engine executes a single script.
//
// Contract:
//   - Run never panics and never returns a Go error; every failure is
//     reported in StageResult.Error.
//   - Run returns within Budget.Timeout (plus scheduling slack) and aborts
//     promptly when ctx is cancelled.
//   - Side effects are limited to sc.Vars (runtime level and collection
//     overlay) and, in the pre-request stage, sc.Request.
type Engine interface {
	Run(ctx context.Context, script Script, sc *Context, budget Budget) StageResult
}
