// Package pipeline drives one request through variable resolution, the
// pre-request stage, the external executor, the post-response stage and
// the test stage, and always hands back a Result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ormasoftchile/arcanine/pkg/assertions"
	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/resolve"
	"github.com/ormasoftchile/arcanine/pkg/sandbox"
	"github.com/ormasoftchile/arcanine/pkg/scope"
	"github.com/ormasoftchile/arcanine/pkg/stage"
	"github.com/ormasoftchile/arcanine/pkg/trace"
)

// GenerateRunID creates a run ID in format YYYYMMDDTHHmmss-xxxxxxxx.
func GenerateRunID() string {
	return time.Now().Format("20060102T150405") + "-" + uuid.NewString()[:8]
}

// Orchestrator executes runs with a fixed Config. It holds no per-run
// state and is safe for concurrent use.
type Orchestrator struct {
	cfg    Config
	runner *stage.Runner
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &Orchestrator{cfg: cfg, runner: stage.NewRunner(cfg.Engine, cfg.Budget)}, nil
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Execute runs def against levels with the default configuration.
func Execute(ctx context.Context, def RequestDef, levels []scope.Table, exec Executor) *Result {
	o, err := New(DefaultConfig(exec))
	if err != nil {
		return invalidResult(def, err)
	}
	return o.Execute(ctx, def, levels)
}

func invalidResult(def RequestDef, err error) *Result {
	return &Result{
		Path:    def.Path,
		Request: def.Request,
		Stages: map[StageName]*sandbox.StageResult{
			StageVariableResolution: {Error: &sandbox.ErrorInfo{Kind: sandbox.KindInvalid, Message: err.Error()}},
		},
		Status:    FailedAt(StageVariableResolution),
		StartedAt: time.Now(),
	}
}

// run is the state of one Execute call.
type run struct {
	o     *Orchestrator
	ctx   context.Context
	def   RequestDef
	res   *Result
	chain *scope.Chain
	sc    *sandbox.Context
	tw    *trace.Writer
}

// Execute drives one run. It never panics and never returns nil: every
// failure, including a panicking executor or engine, is reported in the
// Result's Status and stage errors.
//
// Only the URL and method are checked before sending; an unnamed request
// is sent as is. Document loading in package schema rejects unnamed
// requests.
func (o *Orchestrator) Execute(ctx context.Context, def RequestDef, levels []scope.Table) (res *Result) {
	r := &run{
		o:   o,
		ctx: ctx,
		def: def,
		tw:  o.cfg.Trace,
		res: &Result{
			RunID:     o.cfg.IDFunc(),
			Path:      def.Path,
			Request:   def.Request,
			Stages:    make(map[StageName]*sandbox.StageResult),
			Status:    Completed(),
			StartedAt: time.Now(),
		},
	}
	current := StageVariableResolution
	defer func() {
		if p := recover(); p != nil {
			r.fail(current, &sandbox.ErrorInfo{Kind: sandbox.KindScriptError, Message: fmt.Sprintf("internal error: %v", p)})
		}
		r.finish()
		res = r.res
	}()

	if def.Request == nil {
		r.fail(current, &sandbox.ErrorInfo{Kind: sandbox.KindInvalid, Message: "request definition has no request"})
		return
	}
	r.tw.EmitRunStart(r.res.RunID, def.Request.Name, string(def.Request.Method), def.Request.URL, levelNames(levels))

	for _, step := range []struct {
		name StageName
		fn   func() bool
	}{
		{StageVariableResolution, func() bool { return r.resolveVariables(levels) }},
		{StagePreRequest, r.preRequest},
		{StageRequestExecution, r.send},
		{StagePostResponse, r.postResponse},
		{StageTest, r.tests},
	} {
		current = step.name
		if err := ctx.Err(); err != nil {
			r.cancel(step.name, err)
			return
		}
		if !step.fn() {
			return
		}
	}
	return
}

// resolveVariables builds the chain and resolves the request.
func (r *run) resolveVariables(levels []scope.Table) bool {
	start := time.Now()
	chain, err := scope.Build(levels)
	if err != nil {
		r.fail(StageVariableResolution, &sandbox.ErrorInfo{Kind: sandbox.KindInvalid, Message: err.Error()})
		return false
	}
	r.chain = chain
	r.tw.AddSecrets(chain.SecretValues()...)

	rr := resolve.RequestContext(r.ctx, chain, r.def.Request, r.o.cfg.MaxDepth)
	if err := r.ctx.Err(); err != nil {
		r.cancel(StageVariableResolution, err)
		return false
	}
	r.res.Request = rr.Request
	r.res.Unresolved = rr.Unresolved
	r.res.Stages[StageVariableResolution] = &sandbox.StageResult{DurationMs: time.Since(start).Milliseconds()}
	r.tw.EmitVariablesResolved(r.res.RunID, rr.Request.URL, rr.Unresolved)

	if !r.checkUnresolved(rr) {
		return false
	}
	r.sc = &sandbox.Context{
		Vars:     chain,
		Request:  rr.Request,
		NewUUID:  r.o.cfg.NewUUID,
		MaxDepth: r.o.cfg.MaxDepth,
	}
	return true
}

// checkUnresolved applies the abort policy: unresolved URL tokens always
// abort; others only with FailOnUnresolved.
func (r *run) checkUnresolved(rr resolve.RequestResult) bool {
	names := rr.URLUnresolved
	where := "URL"
	if len(names) == 0 && r.o.cfg.FailOnUnresolved {
		names, where = rr.Unresolved, "request"
	}
	if len(names) == 0 {
		return true
	}
	r.fail(StageVariableResolution, &sandbox.ErrorInfo{
		Kind:    sandbox.KindUnresolved,
		Message: fmt.Sprintf("unresolved variable(s) in %s: %s", where, strings.Join(names, ", ")),
	})
	return false
}

func (r *run) preRequest() bool {
	res := r.runStage(StagePreRequest, sandbox.StagePreRequest, r.def.Scripts.PreRequest)
	if res.Error != nil {
		r.failOrCancel(StagePreRequest, res.Error)
		return false
	}
	if r.o.cfg.ResolveAfterPreRequest {
		rr := resolve.RequestContext(r.ctx, r.chain, r.sc.Request, r.o.cfg.MaxDepth)
		if err := r.ctx.Err(); err != nil {
			r.cancel(StagePreRequest, err)
			return false
		}
		r.sc.Request = rr.Request
		r.res.Request = rr.Request
		r.res.Unresolved = rr.Unresolved
		if !r.checkUnresolved(rr) {
			return false
		}
	}
	return true
}

func (r *run) send() bool {
	req := r.sc.Request
	start := time.Now()
	sr := &sandbox.StageResult{}
	r.res.Stages[StageRequestExecution] = sr
	defer func() { sr.DurationMs = time.Since(start).Milliseconds() }()

	if err := req.CheckSendable(); err != nil {
		r.fail(StageRequestExecution, &sandbox.ErrorInfo{Kind: sandbox.KindInvalid, Message: err.Error()})
		return false
	}
	r.tw.EmitRequestSent(r.res.RunID, string(req.Method), req.URL, len(req.Headers.Enabled()))
	r.logf("run %s: %s %s", r.res.RunID, req.Method, req.URL)

	resp, err := r.o.execute(r.ctx, req.Clone())
	if err == nil && resp == nil {
		err = &TransportError{Method: string(req.Method), URL: req.URL, Err: errors.New("executor returned no response")}
	}
	if err != nil {
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			r.cancel(StageRequestExecution, ctxErr)
			return false
		}
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{Method: string(req.Method), URL: req.URL, Err: err}
		}
		r.fail(StageRequestExecution, &sandbox.ErrorInfo{Kind: sandbox.KindTransportError, Message: err.Error()})
		return false
	}

	r.res.Response = resp
	r.sc.Response = resp
	r.tw.EmitResponseReceived(r.res.RunID, resp.Status, resp.Time, resp.Size)
	return true
}

// execute calls the executor and turns a panic into an error.
func (o *Orchestrator) execute(ctx context.Context, req *model.Request) (resp *model.Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			resp, err = nil, fmt.Errorf("executor panicked: %v", p)
		}
	}()
	return o.cfg.Executor.Execute(ctx, req)
}

// postResponse records a failure but lets the test stage run.
func (r *run) postResponse() bool {
	res := r.runStage(StagePostResponse, sandbox.StagePostResponse, stage.Arrange(r.def.Scripts.PostResponse, r.o.cfg.Order))
	if res.Error == nil {
		return true
	}
	if res.Error.Kind == sandbox.KindCancelled {
		r.res.Status = CancelledAt(StagePostResponse)
		return false
	}
	r.res.Status = FailedAt(StagePostResponse)
	return true
}

func (r *run) tests() bool {
	st := StageTest
	scripts := stage.Arrange(r.def.Scripts.Tests, r.o.cfg.Order)
	r.tw.EmitStageStart(r.res.RunID, string(st), origins(scripts))
	start := time.Now()

	res := r.o.runner.Run(r.ctx, sandbox.StageTest, scripts, r.sc)
	if len(r.def.Assertions) > 0 && (res.Error == nil || res.Error.Kind != sandbox.KindCancelled) {
		env := assertions.NewEnv(r.res.Response, r.chain.Flatten())
		res.Tests = append(res.Tests, assertions.Evaluate(r.def.Assertions, env)...)
	}
	res.DurationMs = time.Since(start).Milliseconds()
	r.res.Stages[st] = &res
	r.stageComplete(st, &res, time.Since(start))

	if res.Error != nil {
		if res.Error.Kind == sandbox.KindCancelled {
			r.res.Status = CancelledAt(st)
		} else if r.res.Status.State == StateCompleted {
			r.res.Status = FailedAt(st)
		}
	}
	return true
}

// runStage runs one script stage and records its result.
func (r *run) runStage(name StageName, st sandbox.Stage, scripts []sandbox.Script) *sandbox.StageResult {
	r.tw.EmitStageStart(r.res.RunID, string(name), origins(scripts))
	start := time.Now()
	res := r.o.runner.Run(r.ctx, st, scripts, r.sc)
	r.res.Stages[name] = &res
	r.stageComplete(name, &res, time.Since(start))
	return &res
}

func (r *run) stageComplete(name StageName, res *sandbox.StageResult, d time.Duration) {
	var failure *trace.Failure
	if res.Error != nil {
		failure = &trace.Failure{Kind: string(res.Error.Kind), Message: res.Error.Message, Script: res.Error.Script}
	}
	r.tw.EmitStageComplete(r.res.RunID, string(name), d, len(res.Tests), res.Passed(), failure)
}

// fail records info as the error of st and marks the run failed there.
func (r *run) fail(st StageName, info *sandbox.ErrorInfo) {
	sr := r.res.Stages[st]
	if sr == nil {
		sr = &sandbox.StageResult{}
		r.res.Stages[st] = sr
	}
	if sr.Error == nil {
		sr.Error = info
	}
	r.res.Status = FailedAt(st)
}

func (r *run) failOrCancel(st StageName, info *sandbox.ErrorInfo) {
	if info.Kind == sandbox.KindCancelled {
		r.res.Status = CancelledAt(st)
		return
	}
	r.res.Status = FailedAt(st)
}

// cancel marks the run cancelled at st. Partial results stay in place.
func (r *run) cancel(st StageName, cause error) {
	sr := r.res.Stages[st]
	if sr == nil {
		sr = &sandbox.StageResult{}
		r.res.Stages[st] = sr
	}
	sr.Error = &sandbox.ErrorInfo{Kind: sandbox.KindCancelled, Message: fmt.Sprintf("%v: %v", sandbox.ErrCancelled, cause)}
	r.res.Status = CancelledAt(st)
}

func (r *run) finish() {
	if r.chain != nil {
		r.res.Changes = r.chain.Changes()
	}
	r.res.Duration = time.Since(r.res.StartedAt)
	r.tw.EmitRunComplete(r.res.RunID, string(r.res.Status.State), string(r.res.Status.Stage), r.res.Duration)
	r.logf("run %s: %s in %v", r.res.RunID, r.res.Status, r.res.Duration.Round(time.Millisecond))
}

func (r *run) logf(format string, args ...any) {
	if r.o.cfg.Logger != nil {
		r.o.cfg.Logger.Logf(format, args...)
	}
}

func origins(scripts []sandbox.Script) []string {
	out := make([]string, 0, len(scripts))
	for _, s := range scripts {
		out = append(out, s.Origin)
	}
	return out
}

func levelNames(levels []scope.Table) []string {
	out := make([]string, 0, len(levels))
	for _, t := range levels {
		out = append(out, t.Level.String())
	}
	return out
}
