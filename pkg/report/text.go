package report

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/arcanine/pkg/pipeline"
	"github.com/ormasoftchile/arcanine/pkg/sandbox"
)

// Text renders one result: status badge, request and response lines,
// per-stage console output and the test list.
func Text(r *pipeline.Result, s Styles) string {
	var b strings.Builder

	name := r.Path
	if name == "" && r.Request != nil {
		name = r.Request.Name
	}
	fmt.Fprintf(&b, "%s %s\n", s.badge(r), s.render(headerStyle, name))

	if r.Request != nil {
		url := r.Request.URL
		if full, err := r.Request.FullURL(); err == nil {
			url = full
		}
		fmt.Fprintf(&b, "  %s %s %s\n", s.render(labelStyle, "request "), r.Request.Method, url)
	}
	if resp := r.Response; resp != nil {
		line := fmt.Sprintf("%d %s", resp.Status, resp.StatusText)
		switch {
		case resp.IsServerError(), resp.IsClientError():
			line = s.render(failStyle, line)
		case resp.IsSuccess():
			line = s.render(passStyle, line)
		}
		size := fmt.Sprintf("%d ms, %d bytes", resp.TimeMs(), resp.Size)
		if resp.Truncated {
			size += " (truncated)"
		}
		fmt.Fprintf(&b, "  %s %s %s\n", s.render(labelStyle, "response"), line, s.render(dimStyle, size))
	}
	if len(r.Unresolved) > 0 {
		fmt.Fprintf(&b, "  %s %s\n", s.render(warnStyle, "unresolved"), strings.Join(r.Unresolved, ", "))
	}

	for _, st := range pipeline.Stages {
		res := r.Stage(st)
		if res == nil || (len(res.Console) == 0 && res.Error == nil) {
			continue
		}
		fmt.Fprintf(&b, "\n  %s %s\n", s.render(headerStyle, string(st)), s.render(dimStyle, fmt.Sprintf("(%d ms)", res.DurationMs)))
		for _, c := range res.Console {
			fmt.Fprintf(&b, "    %s %s\n", s.consoleGlyph(c.Level), c.Text)
		}
		if res.Error != nil {
			fmt.Fprintf(&b, "    %s %s\n", s.render(failStyle, GlyphFailed), s.render(failStyle, res.Error.Error()))
		}
	}

	if tests := r.Tests(); len(tests) > 0 {
		passed := 0
		for _, t := range tests {
			if t.Passed {
				passed++
			}
		}
		fmt.Fprintf(&b, "\n  %s %d/%d passed\n", s.render(headerStyle, "tests"), passed, len(tests))
		for _, t := range tests {
			b.WriteString("    " + s.testLine(t) + "\n")
		}
	}
	return b.String()
}

func (s Styles) badge(r *pipeline.Result) string {
	switch {
	case r.Status.State == pipeline.StateCancelled:
		return s.render(badgeCancelled, strings.ToUpper(r.Status.String()))
	case r.Status.State == pipeline.StateFailed:
		return s.render(badgeFailed, strings.ToUpper(r.Status.String()))
	case !r.Passed():
		return s.render(badgeFailed, "TESTS FAILED")
	}
	return s.render(badgePassed, "PASSED")
}

func (s Styles) consoleGlyph(level sandbox.ConsoleLevel) string {
	switch level {
	case sandbox.ConsoleError:
		return s.render(failStyle, GlyphFailed)
	case sandbox.ConsoleWarn:
		return s.render(warnStyle, GlyphWarn)
	}
	return s.render(dimStyle, GlyphLog)
}

func (s Styles) testLine(t sandbox.TestOutcome) string {
	if t.Passed {
		return s.render(passStyle, GlyphPassed) + " " + t.Name
	}
	line := s.render(failStyle, GlyphFailed) + " " + t.Name
	if t.Message != "" {
		line += s.render(dimStyle, " ("+t.Message+")")
	}
	return line
}

// Summary renders one aligned row per result for bulk runs.
func Summary(results []*pipeline.Result, s Styles) string {
	nameWidth := 0
	for _, r := range results {
		if w := runewidth.StringWidth(displayName(r)); w > nameWidth {
			nameWidth = w
		}
	}

	var b strings.Builder
	passed := 0
	for _, r := range results {
		glyph := s.render(passStyle, GlyphPassed)
		switch {
		case r.Status.State == pipeline.StateCancelled:
			glyph = s.render(warnStyle, GlyphCancelled)
		case r.Passed():
			passed++
		default:
			glyph = s.render(failStyle, GlyphFailed)
		}

		status := "-"
		if r.Response != nil {
			status = fmt.Sprintf("%d", r.Response.Status)
		}
		name := displayName(r)
		pad := strings.Repeat(" ", nameWidth-runewidth.StringWidth(name))
		tests := r.Tests()
		ok := 0
		for _, t := range tests {
			if t.Passed {
				ok++
			}
		}
		fmt.Fprintf(&b, "%s %s%s  %3s  %5d ms  %d/%d tests  %s\n",
			glyph, name, pad, status, r.Duration.Milliseconds(), ok, len(tests), s.render(dimStyle, r.Status.String()))
	}
	fmt.Fprintf(&b, "\n%d/%d runs passed\n", passed, len(results))
	return b.String()
}

func displayName(r *pipeline.Result) string {
	if r.Path != "" {
		return r.Path
	}
	if r.Request != nil {
		return r.Request.Name
	}
	return r.RunID
}
