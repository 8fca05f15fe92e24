package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/ormasoftchile/arcanine/pkg/pipeline"
)

// Markdown produces a markdown summary of one result.
func Markdown(r *pipeline.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", displayName(r))

	verdict := "passed"
	if !r.Passed() {
		verdict = r.Status.String()
		if r.Status.State == pipeline.StateCompleted {
			verdict = "tests failed"
		}
	}
	fmt.Fprintf(&b, "**Status:** %s  \n", verdict)
	fmt.Fprintf(&b, "**Run:** `%s`  \n", r.RunID)
	if r.Request != nil {
		url := r.Request.URL
		if full, err := r.Request.FullURL(); err == nil {
			url = full
		}
		fmt.Fprintf(&b, "**Request:** `%s %s`  \n", r.Request.Method, url)
	}
	if resp := r.Response; resp != nil {
		fmt.Fprintf(&b, "**Response:** %d %s, %d ms, %d bytes\n", resp.Status, resp.StatusText, resp.TimeMs(), resp.Size)
	}
	b.WriteString("\n")

	if len(r.Unresolved) > 0 {
		fmt.Fprintf(&b, "> Unresolved variables: %s\n\n", strings.Join(r.Unresolved, ", "))
	}

	b.WriteString("| Stage | Duration | Result |\n|---|---|---|\n")
	for _, st := range pipeline.Stages {
		res := r.Stage(st)
		if res == nil {
			continue
		}
		outcome := "ok"
		if res.Error != nil {
			outcome = fmt.Sprintf("%s: %s", res.Error.Kind, escapeCell(res.Error.Message))
		}
		fmt.Fprintf(&b, "| %s | %d ms | %s |\n", st, res.DurationMs, outcome)
	}

	if tests := r.Tests(); len(tests) > 0 {
		b.WriteString("\n### Tests\n\n")
		for _, t := range tests {
			mark := "x"
			if !t.Passed {
				mark = " "
			}
			line := fmt.Sprintf("- [%s] %s", mark, t.Name)
			if !t.Passed && t.Message != "" {
				line += " (" + t.Message + ")"
			}
			b.WriteString(line + "\n")
		}
	}

	var console []string
	for _, st := range pipeline.Stages {
		res := r.Stage(st)
		if res == nil {
			continue
		}
		for _, c := range res.Console {
			console = append(console, fmt.Sprintf("[%s] %s: %s", st, c.Level, c.Text))
		}
	}
	if len(console) > 0 {
		b.WriteString("\n### Console\n\n```\n")
		b.WriteString(strings.Join(console, "\n"))
		b.WriteString("\n```\n")
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// RenderMarkdown styles md for the terminal. width <= 0 disables wrapping.
// On renderer failure the input is returned unchanged.
func RenderMarkdown(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	if width < 0 {
		width = 0
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
