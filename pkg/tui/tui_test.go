package tui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/pipeline"
	"github.com/ormasoftchile/arcanine/pkg/schema"
)

func newTestModel(t *testing.T, status int) (Model, *[]*pipeline.Result) {
	t.Helper()
	c, err := schema.LoadCollectionFile(filepath.Join("../../testdata", "valid", "petstore.collection.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	exec := pipeline.ExecutorFunc(func(ctx context.Context, req *model.Request) (*model.Response, error) {
		return &model.Response{
			Status:  status,
			Headers: model.Headers{{Key: "Content-Type", Value: "application/json"}},
			Body:    `[{"id": 4}]`,
		}, nil
	})
	orch, err := pipeline.New(pipeline.DefaultConfig(exec))
	if err != nil {
		t.Fatal(err)
	}
	var finished []*pipeline.Result
	m, err := New(context.Background(), Config{
		Sources:      schema.Sources{Collection: c, Overrides: map[string]string{"lastPetId": "1"}},
		Orchestrator: orch,
		Finish: func(r *pipeline.Result) error {
			finished = append(finished, r)
			return nil
		},
		Redact: func(s string) string { return strings.ReplaceAll(s, "petstore.example.com", "<host>") },
	})
	if err != nil {
		t.Fatal(err)
	}
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model), &finished
}

func press(t *testing.T, m Model, k tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(k)
	return next.(Model), cmd
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

// drain executes queued runs until none is left.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	for cmd != nil {
		msg := cmd()
		done, ok := msg.(runDoneMsg)
		if !ok {
			t.Fatalf("unexpected message %T", msg)
		}
		next, c := m.Update(done)
		m, cmd = next.(Model), c
	}
	return m
}

func TestNewRequiresCollectionAndOrchestrator(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("expected error without a collection")
	}
	if _, err := New(context.Background(), Config{Sources: schema.Sources{Collection: &schema.Collection{}}}); err == nil {
		t.Error("expected error without an orchestrator")
	}
}

func TestRunSelected(t *testing.T) {
	m, finished := newTestModel(t, 200)
	if got := m.requests.Selected(); got != "health" {
		t.Fatalf("selected = %q", got)
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if got := m.requests.Selected(); got != "pets/list" {
		t.Fatalf("selected = %q", got)
	}

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.running || cmd == nil {
		t.Fatal("enter should start a run")
	}
	m = drain(t, m, cmd)

	if m.running || len(*finished) != 1 {
		t.Fatalf("running=%v finished=%d", m.running, len(*finished))
	}
	it := m.requests.items[m.requests.index("pets/list")]
	if it.Status != statusPassed || it.Detail != "200" {
		t.Errorf("row = %+v", it)
	}
	out := m.output.Output("pets/list")
	if !strings.Contains(out, "PASSED") || !strings.Contains(out, "<host>") || strings.Contains(out, "petstore.example.com") {
		t.Errorf("output:\n%s", out)
	}
	// The post-response script set lastPetId; later plans see it.
	if m.src.Collection.Variables["lastPetId"] != "4" {
		t.Errorf("collection vars = %v", m.src.Collection.Variables)
	}
	if !strings.Contains(m.View(), "✓1") {
		t.Errorf("header missing stats:\n%s", m.View())
	}
}

func TestRunAll(t *testing.T) {
	m, finished := newTestModel(t, 500)
	m, cmd := press(t, m, runes("a"))
	for _, it := range m.requests.items[1:] {
		if it.Status != statusQueued {
			t.Errorf("%s not queued: %v", it.Path, it.Status)
		}
	}
	m = drain(t, m, cmd)
	if len(*finished) != 4 {
		t.Fatalf("finished %d runs", len(*finished))
	}
	total, passed, failed := m.requests.Stats()
	if total != 4 || passed != 0 || failed != 4 {
		t.Errorf("stats = %d/%d/%d", total, passed, failed)
	}
}

func TestVarsOverlay(t *testing.T) {
	m, _ := newTestModel(t, 200)
	m, _ = press(t, m, runes("v"))
	if !m.varsOpen {
		t.Fatal("vars overlay not open")
	}
	if !strings.Contains(m.varsText, "baseUrl") || !strings.Contains(m.varsText, "(collection)") {
		t.Errorf("vars:\n%s", m.varsText)
	}
	// Keys other than esc and quit are ignored while open.
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || m.running {
		t.Error("enter ran a request behind the overlay")
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.varsOpen {
		t.Error("esc should close the overlay")
	}
}

func TestSearch(t *testing.T) {
	m, _ := newTestModel(t, 200)
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = drain(t, m, cmd)

	m, _ = press(t, m, runes("/"))
	if !m.search.IsActive() {
		t.Fatal("search not active")
	}
	m, _ = press(t, m, runes("passed"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.search.IsActive() || m.search.Query() != "passed" || m.search.matches == 0 {
		t.Errorf("search = %+v", m.search)
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.search.HasQuery() {
		t.Error("esc should clear the query")
	}
}

func TestHighlightContent(t *testing.T) {
	out, n := HighlightContent("Foo bar foo", "foo")
	if n != 2 || !strings.Contains(out, "bar") {
		t.Errorf("n = %d, out = %q", n, out)
	}
	if out, n := HighlightContent("abc", ""); n != 0 || out != "abc" {
		t.Errorf("empty query = %q, %d", out, n)
	}
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t, 200)
	_, cmd := press(t, m, runes("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}
