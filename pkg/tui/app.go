package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/arcanine/pkg/pipeline"
	"github.com/ormasoftchile/arcanine/pkg/report"
	"github.com/ormasoftchile/arcanine/pkg/schema"
	"github.com/ormasoftchile/arcanine/pkg/scope"
)

// runDoneMsg carries a finished run back to the model.
type runDoneMsg struct {
	path   string
	result *pipeline.Result
	err    error
}

// Config holds what the TUI needs to plan and execute runs.
type Config struct {
	Sources      schema.Sources
	Orchestrator *pipeline.Orchestrator

	// Finish is called with every result, e.g. to record or commit it.
	Finish func(*pipeline.Result) error

	// Redact scrubs rendered output. Nil leaves it as is.
	Redact func(string) string

	Compact bool
}

// Model is the top-level Bubble Tea model.
type Model struct {
	requests requestsPanel
	output   outputPanel
	search   searchBar
	spinner  spinner.Model

	cfg Config
	src schema.Sources
	ctx context.Context

	running  bool
	queue    []string
	varsOpen bool
	varsText string
	lastErr  string

	compact bool
	width   int
	height  int
}

// New builds the model for every request of cfg.Sources.Collection.
func New(ctx context.Context, cfg Config) (Model, error) {
	if cfg.Sources.Collection == nil {
		return Model{}, fmt.Errorf("tui: no collection")
	}
	if cfg.Orchestrator == nil {
		return Model{}, fmt.Errorf("tui: no orchestrator")
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := Model{
		requests: newRequestsPanel(cfg.Sources.Collection.Walk()),
		output:   newOutputPanel(),
		search:   newSearchBar(),
		spinner:  sp,
		cfg:      cfg,
		src:      cfg.Sources,
		ctx:      ctx,
		compact:  cfg.Compact,
	}
	m.output.Show(m.requests.Selected())
	return m, nil
}

// Run starts the TUI and blocks until the user quits.
func Run(ctx context.Context, cfg Config) error {
	m, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// runCmd plans and executes path against the current sources.
func (m Model) runCmd(path string) tea.Cmd {
	src, orch, finish, ctx := m.src, m.cfg.Orchestrator, m.cfg.Finish, m.ctx
	return func() tea.Msg {
		job, err := schema.Plan(src, path)
		if err != nil {
			return runDoneMsg{path: path, err: err}
		}
		r := orch.Execute(ctx, job.Def, job.Levels)
		if finish != nil {
			err = finish(r)
		}
		return runDoneMsg{path: path, result: r, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if msg.Width < 80 {
			m.compact = true
		}
		m.layoutPanels()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case runDoneMsg:
		return m.finishRun(msg)
	}
	return m, nil
}

func (m Model) finishRun(msg runDoneMsg) (tea.Model, tea.Cmd) {
	m.running = false
	m.lastErr = ""
	switch {
	case msg.result == nil:
		m.requests.SetStatus(msg.path, statusFailed, "")
		m.output.SetOutput(msg.path, errorStyle.Render("Error: "+msg.err.Error())+"\n")
		m.lastErr = msg.err.Error()
	default:
		r := msg.result
		m.src = m.src.Apply(r.Changes)

		status, detail := statusPassed, ""
		if !r.Passed() {
			status = statusFailed
		}
		if r.Response != nil {
			detail = fmt.Sprint(r.Response.Status)
		} else if r.Status.State != pipeline.StateCompleted {
			detail = string(r.Status.Stage)
		}
		m.requests.SetStatus(msg.path, status, detail)

		text := report.Text(r, report.Styles{})
		if m.cfg.Redact != nil {
			text = m.cfg.Redact(text)
		}
		m.output.SetOutput(msg.path, text)
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		}
	}
	if m.search.HasQuery() {
		m.search.matches = m.output.SetHighlight(m.search.Query())
	}
	return m, m.next()
}

// next starts the first queued run, if any.
func (m *Model) next() tea.Cmd {
	if len(m.queue) == 0 {
		return nil
	}
	path := m.queue[0]
	m.queue = m.queue[1:]
	m.running = true
	m.requests.SetStatus(path, statusRunning, "")
	return m.runCmd(path)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.search.IsActive() && key.Matches(msg, keys.Quit) {
		return m, tea.Quit
	}

	if m.search.IsActive() {
		closed, cmd := m.search.Update(msg)
		if closed {
			m.output.ClearHighlight()
		} else {
			m.search.matches = m.output.SetHighlight(m.search.Query())
		}
		return m, cmd
	}

	if msg.String() == "esc" {
		switch {
		case m.varsOpen:
			m.varsOpen = false
		case m.search.HasQuery():
			m.search.Close()
			m.output.ClearHighlight()
		}
		return m, nil
	}
	if m.varsOpen {
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Run):
		if m.running {
			return m, nil
		}
		if path := m.requests.Selected(); path != "" {
			m.queue = []string{path}
			return m, m.next()
		}

	case key.Matches(msg, keys.RunAll):
		if m.running {
			return m, nil
		}
		m.queue = nil
		for _, it := range m.requests.items {
			m.queue = append(m.queue, it.Path)
			m.requests.SetStatus(it.Path, statusQueued, "")
		}
		return m, m.next()

	case key.Matches(msg, keys.Up):
		m.requests.CursorUp()
		m.output.Show(m.requests.Selected())

	case key.Matches(msg, keys.Down):
		m.requests.CursorDown()
		m.output.Show(m.requests.Selected())

	case key.Matches(msg, keys.PgUp):
		m.output.PageUp()

	case key.Matches(msg, keys.PgDown):
		m.output.PageDown()

	case key.Matches(msg, keys.Vars):
		m.varsText = m.formatVars()
		m.varsOpen = true

	case key.Matches(msg, keys.Search):
		m.search.Open()
	}
	return m, nil
}

// formatVars lists the variables every request shares, masking secrets.
func (m *Model) formatVars() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Variables") + "\n\n")

	chain, err := scope.Build(m.src.ScopeLevels())
	if err != nil {
		return errorStyle.Render("Error: " + err.Error())
	}
	flat := chain.Flatten()
	if len(flat) == 0 {
		b.WriteString(keyDescStyle.Render("  (no variables set)"))
	}
	names := make([]string, 0, len(flat))
	for name := range flat {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		v, level, _ := chain.Lookup(name)
		if level == scope.Secrets {
			v = "********"
		}
		fmt.Fprintf(&b, "  %s = %q %s\n", labelStyle.Render(name), v, keyDescStyle.Render("("+level.String()+")"))
	}
	b.WriteString("\n" + hint("Esc", "close"))
	return b.String()
}

func (m *Model) layoutPanels() {
	if m.width == 0 || m.height == 0 {
		return
	}
	// header(1) + panels + search(1) + key bar(1)
	mainH := max(m.height-3, 4)
	if m.compact {
		m.requests.width, m.requests.height = 0, 0
		m.output.SetSize(m.width, mainH)
		return
	}
	listW := min(max(m.width*30/100, 25), 45)
	m.requests.width = listW
	m.requests.height = mainH
	m.requests.ensureVisible()
	m.output.SetSize(m.width-listW, mainH)
}

func (m Model) View() string {
	if m.varsOpen {
		box := overlayBorder.Width(max(m.width-8, 50)).Render(m.varsText)
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
	}

	var main string
	if m.width > 0 {
		if m.compact {
			main = m.output.View()
		} else {
			main = lipgloss.JoinHorizontal(lipgloss.Top, m.requests.View(), m.output.View())
		}
	}

	out := m.renderHeader() + "\n" + main
	if s := m.search.View(); s != "" {
		out += "\n" + s
	}
	if m.lastErr != "" {
		out += "\n" + errorStyle.Render(m.lastErr)
	}
	return out + "\n" + keyBarStyle.Render(keyBarText(m.running, m.varsOpen))
}

func (m Model) renderHeader() string {
	left := headerStyle.Render("arcanine") + " " + m.src.Collection.Name
	if env := m.src.Environment; env != nil {
		left += " " + envBadgeStyle.Render(env.Name)
	}
	if m.compact {
		left += "  " + labelStyle.Render(m.requests.Selected())
	}

	var right string
	if m.running {
		right = m.spinner.View() + " running"
	} else {
		total, passed, failed := m.requests.Stats()
		right = fmt.Sprintf("%s %s %d",
			passedStyle.Render(fmt.Sprintf("✓%d", passed)),
			failedStyle.Render(fmt.Sprintf("✗%d", failed)),
			total)
	}
	pad := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return left + strings.Repeat(" ", pad) + right
}
