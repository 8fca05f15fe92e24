package history

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/pipeline"
	"github.com/ormasoftchile/arcanine/pkg/sandbox"
	"github.com/ormasoftchile/arcanine/pkg/trace"
)

func sampleResult(id string) *pipeline.Result {
	req := model.NewRequest("list", "https://api.example.com/pets")
	req.Query = []model.KeyValue{{Key: "token", Value: "s3cret"}}
	return &pipeline.Result{
		RunID:    id,
		Path:     "pets/list",
		Request:  req,
		Response: &model.Response{Status: 200},
		Stages: map[pipeline.StageName]*sandbox.StageResult{
			pipeline.StagePreRequest: {Console: []sandbox.ConsoleEntry{{Level: sandbox.ConsoleLog, Text: "using s3cret"}}},
			pipeline.StageTest: {Tests: []sandbox.TestOutcome{
				{Name: "ok", Passed: true},
				{Name: "size", Passed: false, Message: "expected 3"},
			}},
		},
		Status:    pipeline.Completed(),
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:  150 * time.Millisecond,
	}
}

func TestFromResult(t *testing.T) {
	e := FromResult(sampleResult("r1"))
	if e.Request != "list" || e.Method != "GET" || e.StatusCode != 200 || e.DurationMs != 150 {
		t.Errorf("entry = %+v", e)
	}
	if e.URL != "https://api.example.com/pets?token=s3cret" {
		t.Errorf("URL = %q", e.URL)
	}
	if len(e.Console[pipeline.StagePreRequest]) != 1 || len(e.Tests) != 2 {
		t.Errorf("console/tests = %v / %v", e.Console, e.Tests)
	}
	if e.Passed() {
		t.Error("a failing test must make the entry fail")
	}
	if e.Error != nil {
		t.Errorf("completed run has error %v", e.Error)
	}
}

func TestFromResult_Failure(t *testing.T) {
	r := &pipeline.Result{
		RunID:   "r2",
		Request: model.NewRequest("x", "https://down.example.com"),
		Stages: map[pipeline.StageName]*sandbox.StageResult{
			pipeline.StageRequestExecution: {Error: &sandbox.ErrorInfo{Kind: sandbox.KindTransportError, Message: "refused"}},
		},
		Status: pipeline.FailedAt(pipeline.StageRequestExecution),
	}
	e := FromResult(r)
	if e.Error == nil || e.Error.Kind != sandbox.KindTransportError || e.StatusCode != 0 {
		t.Errorf("entry = %+v", e)
	}
}

func TestRecordLoadLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	rec := NewRecorder(path, nil)
	for _, id := range []string{"a", "b", "c"} {
		if err := rec.Record(sampleResult(id)); err != nil {
			t.Fatal(err)
		}
	}
	all, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].RunID != "a" || all[2].RunID != "c" {
		t.Fatalf("entries = %+v", all)
	}
	if !all[1].Time.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("time = %v", all[1].Time)
	}

	last, err := Last(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 2 || last[0].RunID != "b" {
		t.Errorf("Last(2) = %+v", last)
	}
	if got, _ := Last(path, 0); len(got) != 3 {
		t.Errorf("Last(0) returned %d entries", len(got))
	}
}

func TestLoad_Missing(t *testing.T) {
	entries, err := Load(filepath.Join(t.TempDir(), "none.jsonl"))
	if err != nil || entries != nil {
		t.Errorf("got %v, %v", entries, err)
	}
}

func TestRead_BadLine(t *testing.T) {
	in := `{"run_id":"a"}` + "\n\n" + `not json` + "\n"
	entries, err := Read(strings.NewReader(in))
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Errorf("err = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries before the bad line = %d", len(entries))
	}
}

func TestRecorder_Redacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	tw := trace.NewWriter(nil)
	tw.AddSecrets("s3cret")
	if err := NewRecorder(path, tw).Record(sampleResult("r")); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "s3cret") {
		t.Errorf("secret leaked: %s", data)
	}
	if !strings.Contains(string(data), trace.Redacted) {
		t.Errorf("no redaction marker: %s", data)
	}
}

func TestRecorder_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	rec := NewRecorder(path, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rec.Record(sampleResult("p")); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	entries, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 20 {
		t.Errorf("entries = %d", len(entries))
	}
}
