package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
)

// outputPanel shows the rendered result of the selected request.
type outputPanel struct {
	viewport viewport.Model

	// outputs holds the rendered report per request path.
	outputs map[string]string
	active  string

	highlightQuery string
	matches        int

	width  int
	height int
	ready  bool
}

func newOutputPanel() outputPanel {
	return outputPanel{outputs: make(map[string]string)}
}

func (p *outputPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
	contentW := max(width-4, 1)
	contentH := max(height-3, 1)

	if !p.ready {
		p.viewport = viewport.New(contentW, contentH)
		p.ready = true
	} else {
		p.viewport.Width = contentW
		p.viewport.Height = contentH
	}
	p.refresh()
}

// SetOutput replaces the output of path.
func (p *outputPanel) SetOutput(path, text string) {
	p.outputs[path] = text
	if path == p.active {
		p.refresh()
		p.viewport.GotoTop()
	}
}

// Output returns the stored output of path.
func (p *outputPanel) Output(path string) string { return p.outputs[path] }

// Show switches the panel to path.
func (p *outputPanel) Show(path string) {
	p.active = path
	p.refresh()
	if p.ready {
		p.viewport.GotoTop()
	}
}

func (p *outputPanel) PageUp() {
	if p.ready {
		p.viewport.HalfViewUp()
	}
}

func (p *outputPanel) PageDown() {
	if p.ready {
		p.viewport.HalfViewDown()
	}
}

func (p *outputPanel) SetHighlight(query string) int {
	p.highlightQuery = query
	p.refresh()
	return p.matches
}

func (p *outputPanel) ClearHighlight() {
	p.highlightQuery = ""
	p.refresh()
}

func (p *outputPanel) refresh() {
	content, ok := p.outputs[p.active]
	if !ok {
		content = keyDescStyle.Render("  Not run yet. Press enter to run.")
	}
	content, p.matches = HighlightContent(content, p.highlightQuery)
	if p.ready {
		p.viewport.SetContent(content)
	}
}

func (p *outputPanel) View() string {
	title := panelTitle.Render("Result")
	content := "  Waiting for layout..."
	if p.ready {
		content = p.viewport.View()
	}

	header := title
	if p.ready && p.viewport.TotalLineCount() > p.viewport.VisibleLineCount() {
		scroll := fmt.Sprintf(" %3.0f%%", p.viewport.ScrollPercent()*100)
		pad := max(p.width-4-len("Result")-len(scroll), 0)
		header = title + strings.Repeat(" ", pad) + keyDescStyle.Render(scroll)
	}
	return panelBorder.Width(p.width).Height(p.height).Render(header + "\n" + content)
}
