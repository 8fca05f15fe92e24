package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/sandbox"
	"github.com/ormasoftchile/arcanine/pkg/scope"
)

// StageName identifies a pipeline step in results and statuses.
type StageName string

const (
	StageVariableResolution StageName = "variable-resolution"
	StagePreRequest         StageName = "pre-request"
	StageRequestExecution   StageName = "request-execution"
	StagePostResponse       StageName = "post-response"
	StageTest               StageName = "test"
)

// Stages lists every stage in execution order.
var Stages = []StageName{
	StageVariableResolution,
	StagePreRequest,
	StageRequestExecution,
	StagePostResponse,
	StageTest,
}

// State is the terminal state of a run.
type State string

const (
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Status is Completed, FailedAtStage(stage) or Cancelled (with the stage
// that was about to run or running).
type Status struct {
	State State     `json:"state"`
	Stage StageName `json:"stage,omitempty"`
}

// Completed is the status of a run that reached the end.
func Completed() Status { return Status{State: StateCompleted} }

// FailedAt is the status of a run that failed in st.
func FailedAt(st StageName) Status { return Status{State: StateFailed, Stage: st} }

// CancelledAt is the status of a run cancelled in or before st.
func CancelledAt(st StageName) Status { return Status{State: StateCancelled, Stage: st} }

func (s Status) String() string {
	switch s.State {
	case StateFailed:
		return fmt.Sprintf("failed at %s", s.Stage)
	case StateCancelled:
		return fmt.Sprintf("cancelled at %s", s.Stage)
	}
	return string(s.State)
}

// Scripts are the script bodies of each stage, listed outer-first
// (collection, folder..., request).
type Scripts struct {
	PreRequest   []sandbox.Script `json:"pre_request,omitempty"`
	PostResponse []sandbox.Script `json:"post_response,omitempty"`
	Tests        []sandbox.Script `json:"tests,omitempty"`
}

// RequestDef is everything needed to run one request.
type RequestDef struct {
	Path       string         `json:"path,omitempty"` // folder/sub/request address, informational
	Request    *model.Request `json:"request"`
	Scripts    Scripts        `json:"scripts"`
	Assertions []string       `json:"assertions,omitempty"`
}

// Result is the outcome of one run. It is always produced, whatever failed.
type Result struct {
	RunID      string                             `json:"run_id"`
	Path       string                             `json:"path,omitempty"`
	Request    *model.Request                     `json:"request,omitempty"` // as sent, or as resolved when never sent
	Response   *model.Response                    `json:"response,omitempty"`
	Stages     map[StageName]*sandbox.StageResult `json:"stages"`
	Status     Status                             `json:"status"`
	Unresolved []string                           `json:"unresolved,omitempty"`
	Changes    scope.Changes                      `json:"changes"`
	StartedAt  time.Time                          `json:"started_at"`
	Duration   time.Duration                      `json:"-"`
}

// MarshalJSON adds duration_ms.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	return json.Marshal(struct {
		plain
		DurationMs int64 `json:"duration_ms"`
	}{plain(r), r.Duration.Milliseconds()})
}

// Stage returns the result of st, or nil when it did not run.
func (r *Result) Stage(st StageName) *sandbox.StageResult {
	return r.Stages[st]
}

// Tests returns the test stage outcomes.
func (r *Result) Tests() []sandbox.TestOutcome {
	if s := r.Stages[StageTest]; s != nil {
		return s.Tests
	}
	return nil
}

// Passed reports whether the run completed and every test passed.
func (r *Result) Passed() bool {
	if r.Status.State != StateCompleted {
		return false
	}
	for _, t := range r.Tests() {
		if !t.Passed {
			return false
		}
	}
	return true
}

// Err returns the error that ended the run, or nil when it completed.
func (r *Result) Err() error {
	if r.Status.State == StateCompleted {
		return nil
	}
	if s := r.Stages[r.Status.Stage]; s != nil && s.Error != nil {
		return s.Error
	}
	return fmt.Errorf("run %s", r.Status)
}
