// Package trace implements the append-only JSONL event stream for pipeline
// runs.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// EventType enumerates trace event types.
type EventType string

const (
	EventRunStart          EventType = "run_start"
	EventVariablesResolved EventType = "variables_resolved"
	EventStageStart        EventType = "stage_start"
	EventStageComplete     EventType = "stage_complete"
	EventRequestSent       EventType = "request_sent"
	EventResponseReceived  EventType = "response_received"
	EventRunComplete       EventType = "run_complete"
)

// Redacted replaces every secret occurrence in emitted strings.
const Redacted = "<REDACTED>"

// Event is a single trace event written to the JSONL stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// Failure describes why a stage failed.
type Failure struct {
	Kind    string `json:"kind"` // script_error, timeout, cancelled, transport_error, unresolved
	Message string `json:"message"`
	Script  string `json:"script,omitempty"`
}

// Writer writes trace events to an append-only JSONL stream. It is safe
// for concurrent use, so parallel runs may share one Writer; events carry
// their own run ID.
//
// A nil *Writer discards everything.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	enc     *json.Encoder
	secrets []string // literal values, longest first
	rules   []*Redaction
}

// NewWriter creates a trace writer that writes to the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, enc: json.NewEncoder(w)}
}

// NewFileWriter creates a trace writer that appends to a JSONL file.
func NewFileWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return NewWriter(f), nil
}

// Close closes the underlying writer when it is closable.
func (tw *Writer) Close() error {
	if tw == nil {
		return nil
	}
	if c, ok := tw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// AddSecrets registers literal values to redact from all later events.
func (tw *Writer) AddSecrets(values ...string) {
	if tw == nil {
		return
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()
	for _, v := range values {
		if v != "" && !slices.Contains(tw.secrets, v) {
			tw.secrets = append(tw.secrets, v)
		}
	}
	// Longest first so a secret that contains another is masked whole.
	slices.SortFunc(tw.secrets, func(a, b string) int { return len(b) - len(a) })
}

// SetRules installs compiled pattern redactions.
func (tw *Writer) SetRules(rules []*Redaction) {
	if tw == nil {
		return
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.rules = rules
}

// Redact applies secret and pattern redaction to s.
func (tw *Writer) Redact(s string) string {
	if tw == nil {
		return s
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.redact(s)
}

func (tw *Writer) redact(s string) string {
	for _, v := range tw.secrets {
		s = strings.ReplaceAll(s, v, Redacted)
	}
	return RedactOutput(s, tw.rules)
}

// redactValue walks maps, slices and strings produced by the Emit helpers.
func (tw *Writer) redactValue(v any) any {
	switch x := v.(type) {
	case string:
		return tw.redact(x)
	case []string:
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = tw.redact(s)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = tw.redactValue(val)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(x))
		for k, val := range x {
			out[k] = tw.redact(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = tw.redactValue(val)
		}
		return out
	}
	return v
}

// Emit writes a single trace event. Every string in data is redacted.
func (tw *Writer) Emit(runID string, eventType EventType, data map[string]any) error {
	if tw == nil {
		return nil
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()

	evt := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
	}
	if data != nil {
		evt.Data = tw.redactValue(data).(map[string]any)
	}
	return tw.enc.Encode(evt)
}

// EmitRunStart emits a run_start event.
func (tw *Writer) EmitRunStart(runID, request, method, url string, levels []string) error {
	return tw.Emit(runID, EventRunStart, map[string]any{
		"request": request,
		"method":  method,
		"url":     url,
		"levels":  levels,
	})
}

// EmitVariablesResolved emits a variables_resolved event.
func (tw *Writer) EmitVariablesResolved(runID, url string, unresolved []string) error {
	data := map[string]any{"url": url}
	if len(unresolved) > 0 {
		data["unresolved"] = unresolved
	}
	return tw.Emit(runID, EventVariablesResolved, data)
}

// EmitStageStart emits a stage_start event.
func (tw *Writer) EmitStageStart(runID, stage string, scripts []string) error {
	return tw.Emit(runID, EventStageStart, map[string]any{
		"stage":   stage,
		"scripts": scripts,
	})
}

// EmitStageComplete emits a stage_complete event.
func (tw *Writer) EmitStageComplete(runID, stage string, duration time.Duration, tests, passed int, failure *Failure) error {
	data := map[string]any{
		"stage":    stage,
		"status":   "success",
		"duration": duration.String(),
	}
	if tests > 0 {
		data["tests"] = tests
		data["passed"] = passed
	}
	if failure != nil {
		data["status"] = "failed"
		data["failure"] = map[string]any{
			"kind":    failure.Kind,
			"message": failure.Message,
			"script":  failure.Script,
		}
	}
	return tw.Emit(runID, EventStageComplete, data)
}

// EmitRequestSent emits a request_sent event.
func (tw *Writer) EmitRequestSent(runID, method, url string, headers int) error {
	return tw.Emit(runID, EventRequestSent, map[string]any{
		"method":  method,
		"url":     url,
		"headers": headers,
	})
}

// EmitResponseReceived emits a response_received event.
func (tw *Writer) EmitResponseReceived(runID string, status int, elapsed time.Duration, size int64) error {
	return tw.Emit(runID, EventResponseReceived, map[string]any{
		"status":   status,
		"duration": elapsed.String(),
		"size":     size,
	})
}

// EmitRunComplete emits a run_complete event.
func (tw *Writer) EmitRunComplete(runID, status, stage string, duration time.Duration) error {
	data := map[string]any{
		"status":   status,
		"duration": duration.String(),
	}
	if stage != "" {
		data["stage"] = stage
	}
	return tw.Emit(runID, EventRunComplete, data)
}
