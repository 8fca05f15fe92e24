package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// searchBar is the inline search field under the panels.
type searchBar struct {
	active  bool
	input   textinput.Model
	query   string
	matches int
}

func newSearchBar() searchBar {
	ti := textinput.New()
	ti.Placeholder = "Search..."
	ti.CharLimit = 256
	ti.Width = 40
	ti.Prompt = "/ "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	return searchBar{input: ti}
}

func (s *searchBar) Open() {
	s.active = true
	s.input.Reset()
	s.input.Focus()
	s.query = ""
	s.matches = 0
}

func (s *searchBar) Close() {
	s.active = false
	s.input.Blur()
	s.query = ""
	s.matches = 0
}

// Update handles keys while the bar has focus. Esc closes it, enter keeps
// the query and returns focus to the panels.
func (s *searchBar) Update(msg tea.KeyMsg) (closed bool, cmd tea.Cmd) {
	switch msg.String() {
	case "esc":
		s.Close()
		return true, nil
	case "enter":
		s.query = s.input.Value()
		s.active = false
		s.input.Blur()
		return false, nil
	}
	s.input, cmd = s.input.Update(msg)
	s.query = s.input.Value()
	return false, cmd
}

func (s *searchBar) Query() string  { return s.query }
func (s *searchBar) IsActive() bool { return s.active }
func (s *searchBar) HasQuery() bool { return s.query != "" }

func (s *searchBar) View() string {
	if !s.active && !s.HasQuery() {
		return ""
	}
	out := keyDescStyle.Render("/" + s.query)
	if s.active {
		out = s.input.View()
	}
	switch {
	case s.matches == 1:
		out += "  " + passedStyle.Render("1 match")
	case s.matches > 1:
		out += "  " + passedStyle.Render(fmt.Sprintf("%d matches", s.matches))
	case s.HasQuery() && !s.active:
		out += "  " + failedStyle.Render("no matches")
	}
	return out
}

// HighlightContent marks case-insensitive matches of query in content and
// returns the number found.
func HighlightContent(content, query string) (string, int) {
	if query == "" {
		return content, 0
	}
	lower := strings.ToLower(content)
	lowerQuery := strings.ToLower(query)
	count := strings.Count(lower, lowerQuery)
	if count == 0 {
		return content, 0
	}

	var b strings.Builder
	remaining, remainingLower := content, lower
	for {
		idx := strings.Index(remainingLower, lowerQuery)
		if idx < 0 {
			b.WriteString(remaining)
			break
		}
		b.WriteString(remaining[:idx])
		b.WriteString(highlightStyle.Render(remaining[idx : idx+len(query)]))
		remaining = remaining[idx+len(query):]
		remainingLower = remainingLower[idx+len(lowerQuery):]
	}
	return b.String(), count
}
