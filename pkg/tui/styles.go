// Package tui implements an interactive terminal runner for a collection:
// a request list, the rendered result of each run and a variables overlay.
package tui

import "github.com/charmbracelet/lipgloss"

// Request status glyphs.
const (
	GlyphIdle    = "○"
	GlyphRunning = "▸"
	GlyphPassed  = "✓"
	GlyphFailed  = "✗"
	GlyphQueued  = "…"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var envBadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorYellow).
	Padding(0, 1)

// --- Request list ---

var (
	itemIdle = lipgloss.NewStyle().
			Foreground(colorWhite)

	itemRunning = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	itemPassed = lipgloss.NewStyle().
			Foreground(colorGreen)

	itemFailed = lipgloss.NewStyle().
			Foreground(colorRed)

	itemQueued = lipgloss.NewStyle().
			Faint(true)
)

// --- Panels ---

var (
	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim)

	panelTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			Padding(0, 1)

	overlayBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorCyan).
			Padding(1, 2)
)

var (
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	passedStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)
)

// --- Key bar ---

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	keyBarStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

var errorStyle = lipgloss.NewStyle().
	Foreground(colorRed).
	Bold(true)

var spinnerStyle = lipgloss.NewStyle().
	Foreground(colorYellow)

var highlightStyle = lipgloss.NewStyle().
	Background(colorYellow).
	Foreground(lipgloss.Color("0")).
	Bold(true)
