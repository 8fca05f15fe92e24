package trace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func decode(t *testing.T, buf *bytes.Buffer) []Event {
	t.Helper()
	var events []Event
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var evt Event
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			t.Fatalf("JSON unmarshal: %v (raw: %s)", err, sc.Text())
		}
		events = append(events, evt)
	}
	return events
}

func TestWriter_Emit(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf)

	if err := tw.EmitStageStart("run-1", "pre-request", []string{"collection", "request"}); err != nil {
		t.Fatalf("Emit error: %v", err)
	}
	events := decode(t, &buf)
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	evt := events[0]
	if evt.Type != EventStageStart {
		t.Errorf("type = %q, want stage_start", evt.Type)
	}
	if evt.RunID != "run-1" {
		t.Errorf("run_id = %q", evt.RunID)
	}
	if evt.Data["stage"] != "pre-request" {
		t.Errorf("stage = %v", evt.Data["stage"])
	}
	if evt.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp not UTC: %v", evt.Timestamp)
	}
}

func TestWriter_EmitStageComplete_WithFailure(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf)

	err := tw.EmitStageComplete("run-1", "test", 50*time.Millisecond, 3, 1, &Failure{
		Kind: "script_error", Message: "Error: boom", Script: "folder:users",
	})
	if err != nil {
		t.Fatal(err)
	}
	evt := decode(t, &buf)[0]
	if evt.Data["status"] != "failed" {
		t.Errorf("status = %v", evt.Data["status"])
	}
	if evt.Data["tests"] != float64(3) || evt.Data["passed"] != float64(1) {
		t.Errorf("tests/passed = %v/%v", evt.Data["tests"], evt.Data["passed"])
	}
	failure, ok := evt.Data["failure"].(map[string]any)
	if !ok {
		t.Fatal("expected failure object")
	}
	if failure["kind"] != "script_error" || failure["script"] != "folder:users" {
		t.Errorf("failure = %v", failure)
	}
}

func TestWriter_RedactsSecretsEverywhere(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf)
	tw.AddSecrets("s3cr3t", "", "s3cr3t-long")

	tw.EmitRunStart("r", "login", "POST", "https://api.example.com/?key=s3cr3t-long", []string{"global"})
	tw.EmitVariablesResolved("r", "https://api.example.com/?key=s3cr3t", []string{"x"})
	tw.Emit("r", EventStageStart, map[string]any{
		"nested": map[string]any{"list": []any{"a s3cr3t b"}},
		"hdrs":   map[string]string{"Authorization": "Bearer s3cr3t"},
	})

	out := buf.String()
	if strings.Contains(out, "s3cr3t") {
		t.Fatalf("secret leaked: %s", out)
	}
	if strings.Contains(out, "<REDACTED>-long") {
		t.Errorf("longer secret should be masked whole: %s", out)
	}
	if strings.Count(out, Redacted) != 4 {
		t.Errorf("want 4 redactions, got output %s", out)
	}
}

func TestWriter_PatternRules(t *testing.T) {
	rules, err := CompileRules([]Rule{
		{Pattern: `Bearer [A-Za-z0-9._-]+`, Replace: "Bearer ***"},
		{Pattern: `\d{16}`},
	})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	tw := NewWriter(&buf)
	tw.SetRules(rules)

	got := tw.Redact("Authorization: Bearer abc.def card 4111111111111111")
	want := "Authorization: Bearer *** card <REDACTED>"
	if got != want {
		t.Errorf("Redact = %q, want %q", got, want)
	}

	if _, err := CompileRules([]Rule{{Pattern: "("}}); err == nil {
		t.Error("expected compile error")
	}
}

func TestWriter_NilDiscards(t *testing.T) {
	var tw *Writer
	if err := tw.EmitRunComplete("r", "completed", "", time.Second); err != nil {
		t.Errorf("nil writer Emit = %v", err)
	}
	if got := tw.Redact("x"); got != "x" {
		t.Errorf("nil writer Redact = %q", got)
	}
	tw.AddSecrets("x")
	if err := tw.Close(); err != nil {
		t.Error(err)
	}
}

func TestWriter_ConcurrentEmitsStayLineAtomic(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				tw.EmitRequestSent("run", "GET", "https://api.example.com", 2)
			}
		}()
	}
	wg.Wait()

	if n := len(decode(t, &buf)); n != 200 {
		t.Errorf("got %d events, want 200", n)
	}
}

func TestNewFileWriter_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	for i := 0; i < 2; i++ {
		tw, err := NewFileWriter(path)
		if err != nil {
			t.Fatal(err)
		}
		tw.EmitResponseReceived("r", 200, 10*time.Millisecond, 5)
		if err := tw.Close(); err != nil {
			t.Fatal(err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "\n"); got != 2 {
		t.Errorf("lines = %d, want 2", got)
	}
}
