// Package history records finished runs as one JSON object per line.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/ormasoftchile/arcanine/pkg/pipeline"
	"github.com/ormasoftchile/arcanine/pkg/sandbox"
)

// Entry is the persisted summary of one run.
type Entry struct {
	RunID      string                                        `json:"run_id"`
	Time       time.Time                                     `json:"time"`
	Path       string                                        `json:"path,omitempty"`
	Request    string                                        `json:"request"`
	Method     string                                        `json:"method"`
	URL        string                                        `json:"url"`
	StatusCode int                                           `json:"status_code,omitempty"`
	DurationMs int64                                         `json:"duration_ms"`
	Status     pipeline.Status                               `json:"status"`
	Console    map[pipeline.StageName][]sandbox.ConsoleEntry `json:"console,omitempty"`
	Tests      []sandbox.TestOutcome                         `json:"tests,omitempty"`
	Error      *sandbox.ErrorInfo                            `json:"error,omitempty"`
}

// Passed reports whether the run completed with every test passing.
func (e *Entry) Passed() bool {
	if e.Status.State != pipeline.StateCompleted {
		return false
	}
	for _, t := range e.Tests {
		if !t.Passed {
			return false
		}
	}
	return true
}

// FromResult summarizes r.
func FromResult(r *pipeline.Result) Entry {
	e := Entry{
		RunID:      r.RunID,
		Time:       r.StartedAt.UTC(),
		Path:       r.Path,
		DurationMs: r.Duration.Milliseconds(),
		Status:     r.Status,
		Tests:      r.Tests(),
	}
	if req := r.Request; req != nil {
		e.Request = req.Name
		e.Method = string(req.Method)
		e.URL = req.URL
		if full, err := req.FullURL(); err == nil {
			e.URL = full
		}
	}
	if r.Response != nil {
		e.StatusCode = r.Response.Status
	}
	for _, st := range pipeline.Stages {
		s := r.Stage(st)
		if s == nil || len(s.Console) == 0 {
			continue
		}
		if e.Console == nil {
			e.Console = make(map[pipeline.StageName][]sandbox.ConsoleEntry)
		}
		e.Console[st] = s.Console
	}
	if s := r.Stage(r.Status.Stage); s != nil && r.Status.State != pipeline.StateCompleted {
		e.Error = s.Error
	}
	return e
}

// Redactor scrubs secrets from recorded strings. *trace.Writer satisfies it.
type Redactor interface {
	Redact(s string) string
}

// Recorder appends entries to a JSONL file. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	path     string
	redactor Redactor
}

// NewRecorder records to path. redactor may be nil.
func NewRecorder(path string, redactor Redactor) *Recorder {
	return &Recorder{path: path, redactor: redactor}
}

// Record appends the summary of r.
func (rec *Recorder) Record(r *pipeline.Result) error {
	return rec.Append(FromResult(r))
}

// Append writes e as one line.
func (rec *Recorder) Append(e Entry) error {
	rec.scrub(&e)
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}
	data = append(data, '\n')

	rec.mu.Lock()
	defer rec.mu.Unlock()
	f, err := os.OpenFile(rec.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write history: %w", err)
	}
	return f.Close()
}

func (rec *Recorder) scrub(e *Entry) {
	if rec.redactor == nil {
		return
	}
	e.URL = rec.redactor.Redact(e.URL)
	for st, lines := range e.Console {
		out := make([]sandbox.ConsoleEntry, len(lines))
		for i, l := range lines {
			l.Text = rec.redactor.Redact(l.Text)
			out[i] = l
		}
		e.Console[st] = out
	}
	if len(e.Tests) > 0 {
		tests := make([]sandbox.TestOutcome, len(e.Tests))
		for i, t := range e.Tests {
			t.Name = rec.redactor.Redact(t.Name)
			t.Message = rec.redactor.Redact(t.Message)
			tests[i] = t
		}
		e.Tests = tests
	}
	if e.Error != nil {
		info := *e.Error
		info.Message = rec.redactor.Redact(info.Message)
		e.Error = &info
	}
}

// Load reads every entry in the file at path. A missing file is empty
// history.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes JSONL entries, skipping blank lines.
func Read(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var entries []Entry
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(b, &e); err != nil {
			return entries, fmt.Errorf("history line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read history: %w", err)
	}
	return entries, nil
}

// Last returns the final n entries of the file, oldest first.
func Last(path string, n int) ([]Entry, error) {
	entries, err := Load(path)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
