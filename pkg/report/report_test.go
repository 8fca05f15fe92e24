package report

import (
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/pipeline"
	"github.com/ormasoftchile/arcanine/pkg/sandbox"
)

func completed() *pipeline.Result {
	return &pipeline.Result{
		RunID:    "20260102T030405-abcd1234",
		Path:     "pets/list",
		Request:  &model.Request{Name: "list", Method: model.MethodGet, URL: "https://api.example.com/pets"},
		Response: &model.Response{Status: 200, StatusText: "OK", Time: 120 * time.Millisecond, Size: 42},
		Stages: map[pipeline.StageName]*sandbox.StageResult{
			pipeline.StagePreRequest: {Console: []sandbox.ConsoleEntry{
				{Level: sandbox.ConsoleLog, Text: "token ready"},
				{Level: sandbox.ConsoleWarn, Text: "slow path"},
			}},
			pipeline.StageTest: {Tests: []sandbox.TestOutcome{
				{Name: "status is 200", Passed: true},
				{Name: "has pets", Passed: false, Message: "empty list"},
			}},
		},
		Status:   pipeline.Completed(),
		Duration: 130 * time.Millisecond,
	}
}

func failed() *pipeline.Result {
	return &pipeline.Result{
		RunID:   "r2",
		Request: &model.Request{Name: "down", Method: model.MethodPost, URL: "https://down.example.com"},
		Stages: map[pipeline.StageName]*sandbox.StageResult{
			pipeline.StageRequestExecution: {Error: &sandbox.ErrorInfo{Kind: sandbox.KindTransportError, Message: "connection | refused"}},
		},
		Status: pipeline.FailedAt(pipeline.StageRequestExecution),
	}
}

func TestText_Plain(t *testing.T) {
	out := Text(completed(), Styles{Plain: true})
	for _, want := range []string{
		"TESTS FAILED pets/list",
		"request  GET https://api.example.com/pets",
		"response 200 OK 120 ms, 42 bytes",
		"pre-request",
		"· token ready",
		"! slow path",
		"tests 1/2 passed",
		"✓ status is 200",
		"✗ has pets (empty list)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestText_Failure(t *testing.T) {
	out := Text(failed(), Styles{Plain: true})
	if !strings.Contains(out, "FAILED AT REQUEST-EXECUTION down") {
		t.Errorf("badge missing:\n%s", out)
	}
	if !strings.Contains(out, "connection | refused") {
		t.Errorf("error missing:\n%s", out)
	}
	if strings.Contains(out, "response") {
		t.Errorf("no response line expected:\n%s", out)
	}
}

func TestSummary_Aligns(t *testing.T) {
	ok := completed()
	ok.Stages[pipeline.StageTest].Tests[1].Passed = true
	wide := failed()
	wide.Path = "ペット/一覧"
	out := Summary([]*pipeline.Result{ok, wide}, Styles{Plain: true})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %q", lines)
	}
	// "pets/list" (9 cols) and the wide path (11 cols) pad to the same width.
	if !strings.HasPrefix(lines[0], "✓ pets/list    200") {
		t.Errorf("row 0 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "✗ ペット/一覧    -") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if lines[3] != "1/2 runs passed" {
		t.Errorf("footer = %q", lines[3])
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(completed())
	for _, want := range []string{
		"## pets/list",
		"**Status:** tests failed",
		"**Request:** `GET https://api.example.com/pets`",
		"| pre-request | 0 ms | ok |",
		"- [x] status is 200",
		"- [ ] has pets (empty list)",
		"[pre-request] warn: slow path",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("missing %q in:\n%s", want, md)
		}
	}

	md = Markdown(failed())
	if !strings.Contains(md, `transport_error: connection \| refused`) {
		t.Errorf("escaped error missing:\n%s", md)
	}
	if !strings.Contains(md, "**Status:** failed at request-execution") {
		t.Errorf("status missing:\n%s", md)
	}
}

func TestRenderMarkdown(t *testing.T) {
	if got := RenderMarkdown("   ", 80); got != "   " {
		t.Errorf("blank input changed: %q", got)
	}
	out := RenderMarkdown(Markdown(completed()), 80)
	if !strings.Contains(out, "pets/list") {
		t.Errorf("rendered output lost content:\n%s", out)
	}
}
