// Package stage runs the ordered scripts configured for one pipeline stage
// and folds their results into a single StageResult.
package stage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ormasoftchile/arcanine/pkg/sandbox"
)

// Order is the direction scripts are taken from the scope hierarchy.
type Order string

const (
	// OuterFirst runs collection, then folder, then request scripts.
	OuterFirst Order = "outer-first"
	// InnerFirst runs request, then folder, then collection scripts.
	InnerFirst Order = "inner-first"
)

// ParseOrder accepts "", "outer-first" and "inner-first".
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case "", OuterFirst:
		return OuterFirst, nil
	case InnerFirst:
		return InnerFirst, nil
	}
	return "", fmt.Errorf("unknown script order %q (want %s or %s)", s, OuterFirst, InnerFirst)
}

// Arrange returns scripts (given outer-first) in the requested order.
func Arrange(scripts []sandbox.Script, order Order) []sandbox.Script {
	out := slices.Clone(scripts)
	if order == InnerFirst {
		slices.Reverse(out)
	}
	return out
}

// Runner executes stages on a single engine with a per-script budget.
type Runner struct {
	Engine sandbox.Engine
	Budget sandbox.Budget
}

// NewRunner returns a Runner; a nil engine selects the JavaScript engine.
func NewRunner(engine sandbox.Engine, budget sandbox.Budget) *Runner {
	if engine == nil {
		engine = sandbox.NewJS()
	}
	return &Runner{Engine: engine, Budget: budget.WithDefaults()}
}

// Run executes scripts strictly in the given order against sc, with
// sc.Stage set to st.
//
// Pre-request and post-response stages are fail-fast: the first script
// error stops the stage. The test stage runs every script regardless and
// concatenates their outcomes; the first thrown error is still recorded.
// Console output is concatenated in order and capped at the budget's
// MaxConsoleLines for the whole stage. Cancellation is checked before each
// script, stops the stage in every case and takes precedence over any
// earlier error.
func (r *Runner) Run(ctx context.Context, st sandbox.Stage, scripts []sandbox.Script, sc *sandbox.Context) sandbox.StageResult {
	budget := r.Budget.WithDefaults()
	start := time.Now()
	sc.Stage = st

	var out sandbox.StageResult
	for _, s := range scripts {
		if strings.TrimSpace(s.Source) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			out.Error = sandbox.Info(fmt.Errorf("%w before %s: %v", sandbox.ErrCancelled, s.Origin, err), s.Origin)
			break
		}

		res := r.Engine.Run(ctx, s, sc, budget)
		if room := budget.MaxConsoleLines - len(out.Console); room > 0 {
			out.Console = append(out.Console, res.Console[:min(room, len(res.Console))]...)
		}
		out.Tests = append(out.Tests, res.Tests...)

		if res.Error == nil {
			continue
		}
		if out.Error == nil || res.Error.Kind == sandbox.KindCancelled {
			out.Error = res.Error
		}
		if res.Error.Kind == sandbox.KindCancelled || st != sandbox.StageTest {
			break
		}
	}
	out.DurationMs = time.Since(start).Milliseconds()
	return out
}
