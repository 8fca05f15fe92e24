package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds all TUI key bindings.
type keyMap struct {
	Run    key.Binding
	RunAll key.Binding
	Up     key.Binding
	Down   key.Binding
	Vars   key.Binding
	Search key.Binding
	Quit   key.Binding
	PgUp   key.Binding
	PgDown key.Binding
}

var keys = keyMap{
	Run: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "run"),
	),
	RunAll: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "run all"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Vars: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "vars"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	PgUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("PgUp", "scroll up"),
	),
	PgDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("PgDn", "scroll down"),
	),
}

func hint(k, desc string) string {
	return keyStyle.Render(k) + keyDescStyle.Render(":"+desc)
}

// keyBarText renders the context-sensitive key hints.
func keyBarText(running, varsOpen bool) string {
	if varsOpen {
		return hint("Esc", "close") + "  " + hint("q", "quit")
	}
	if running {
		return hint("↑↓", "browse") + "  " + hint("PgUp/Dn", "scroll") + "  " + hint("/", "search")
	}
	return hint("enter", "run") + "  " +
		hint("a", "run all") + "  " +
		hint("↑↓", "browse") + "  " +
		hint("v", "vars") + "  " +
		hint("/", "search") + "  " +
		hint("q", "quit")
}
