package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

type itemStatus int

const (
	statusIdle itemStatus = iota
	statusQueued
	statusRunning
	statusPassed
	statusFailed
)

// requestItem is one row of the request list.
type requestItem struct {
	Path   string
	Status itemStatus
	Detail string // status code or failure stage
}

// requestsPanel renders the scrollable request list.
type requestsPanel struct {
	items  []requestItem
	cursor int
	offset int
	width  int
	height int
}

func newRequestsPanel(paths []string) requestsPanel {
	p := requestsPanel{items: make([]requestItem, len(paths))}
	for i, path := range paths {
		p.items[i] = requestItem{Path: path}
	}
	return p
}

func (p *requestsPanel) index(path string) int {
	for i := range p.items {
		if p.items[i].Path == path {
			return i
		}
	}
	return -1
}

// SetStatus updates the row for path.
func (p *requestsPanel) SetStatus(path string, status itemStatus, detail string) {
	if i := p.index(path); i >= 0 {
		p.items[i].Status = status
		p.items[i].Detail = detail
	}
}

func (p *requestsPanel) CursorUp() {
	if p.cursor > 0 {
		p.cursor--
		p.ensureVisible()
	}
}

func (p *requestsPanel) CursorDown() {
	if p.cursor < len(p.items)-1 {
		p.cursor++
		p.ensureVisible()
	}
}

// Selected returns the path under the cursor.
func (p *requestsPanel) Selected() string {
	if p.cursor >= 0 && p.cursor < len(p.items) {
		return p.items[p.cursor].Path
	}
	return ""
}

func (p *requestsPanel) ensureVisible() {
	visible := max(p.height-3, 1)
	if p.cursor < p.offset {
		p.offset = p.cursor
	}
	if p.cursor >= p.offset+visible {
		p.offset = p.cursor - visible + 1
	}
}

// Stats counts passed and failed rows.
func (p *requestsPanel) Stats() (total, passed, failed int) {
	total = len(p.items)
	for _, it := range p.items {
		switch it.Status {
		case statusPassed:
			passed++
		case statusFailed:
			failed++
		}
	}
	return
}

func (p *requestsPanel) View() string {
	if len(p.items) == 0 {
		return panelBorder.Width(p.width).Height(p.height).Render("  No requests")
	}

	visible := max(p.height-3, 1)
	end := min(p.offset+visible, len(p.items))

	var lines []string
	for i := p.offset; i < end; i++ {
		it := p.items[i]
		var glyph string
		var style lipgloss.Style
		switch it.Status {
		case statusQueued:
			glyph, style = GlyphQueued, itemQueued
		case statusRunning:
			glyph, style = GlyphRunning, itemRunning
		case statusPassed:
			glyph, style = GlyphPassed, itemPassed
		case statusFailed:
			glyph, style = GlyphFailed, itemFailed
		default:
			glyph, style = GlyphIdle, itemIdle
		}

		label := it.Path
		if it.Detail != "" {
			label += " " + it.Detail
		}
		label = runewidth.Truncate(label, max(p.width-6, 4), "…")

		line := fmt.Sprintf(" %s %s", glyph, label)
		if i == p.cursor {
			line = style.Reverse(true).Render(line)
		} else {
			line = style.Render(line)
		}
		lines = append(lines, line)
	}
	for len(lines) < visible {
		lines = append(lines, "")
	}

	return panelBorder.Width(p.width).Height(p.height).Render(
		panelTitle.Render("Requests") + "\n" + strings.Join(lines, "\n"),
	)
}
