// Package resolve expands {{name}} tokens against a variable scope.
//
// Resolution never fails for missing variables: unknown tokens are left in
// place verbatim and reported, and callers decide whether that is fatal.
package resolve

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/ormasoftchile/arcanine/pkg/model"
)

// DefaultMaxDepth bounds nested expansion passes.
const DefaultMaxDepth = 10

// MaxOutput bounds the length in bytes of an expanded string. Substitutions
// that would grow past it are skipped and their tokens left in place.
const MaxOutput = 1 << 20

// tokenRe matches {{ identifier }}; the identifier may not contain braces.
var tokenRe = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Lookup is the read side of a scope chain.
type Lookup interface {
	Get(name string) (string, bool)
}

// Result is the outcome of resolving one string.
type Result struct {
	Output     string
	Unresolved []string // sorted, deduplicated

	// Limited is set when expansion stopped at MaxOutput.
	Limited bool
}

// Resolve expands every token in input. Values that themselves contain
// tokens are re-scanned up to maxDepth passes; anything still tokenized
// after that (deep nesting, cycles, missing names, output past MaxOutput)
// is reported in Unresolved. maxDepth <= 0 means DefaultMaxDepth.
func Resolve(vars Lookup, input string, maxDepth int) Result {
	return ResolveContext(context.Background(), vars, input, maxDepth)
}

// ResolveContext is Resolve, stopping between passes once ctx is done.
func ResolveContext(ctx context.Context, vars Lookup, input string, maxDepth int) Result {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if !strings.Contains(input, "{{") {
		return Result{Output: input}
	}

	out, limited := input, false
	for pass := 0; pass < maxDepth && ctx.Err() == nil; pass++ {
		next, substituted, full := expand(vars, out, MaxOutput)
		done := !substituted || next == out
		out = next
		if full {
			limited = true
			break
		}
		if done {
			break
		}
	}

	return Result{Output: out, Unresolved: Tokens(out), Limited: limited}
}

// expand runs one substitution pass over s. Once a value would push the
// result past limit, that token and every later one in s stay verbatim.
func expand(vars Lookup, s string, limit int) (out string, substituted, full bool) {
	matches := tokenRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, false, false
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		tok := s[m[0]:m[1]]
		last = m[1]
		name := strings.TrimSpace(s[m[2]:m[3]])
		if name == "" || full {
			b.WriteString(tok)
			continue
		}
		v, ok := vars.Get(name)
		switch {
		case !ok:
			b.WriteString(tok)
		case b.Len()+len(v)+len(s)-last > limit:
			full = true
			b.WriteString(tok)
		default:
			substituted = true
			b.WriteString(v)
		}
	}
	b.WriteString(s[last:])
	return b.String(), substituted, full
}

// Tokens lists the distinct token names present in s, sorted.
func Tokens(s string) []string {
	var names []string
	for _, m := range tokenRe.FindAllStringSubmatch(s, -1) {
		if name := strings.TrimSpace(m[1]); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// RequestResult is a resolved copy of a request plus what was left over.
type RequestResult struct {
	Request       *model.Request
	URLUnresolved []string
	Unresolved    []string // union over every resolved field
}

// Request resolves the URL, every header value, every query parameter
// value and the body of req. Header and parameter names are left alone.
// req itself is not modified.
func Request(vars Lookup, req *model.Request, maxDepth int) RequestResult {
	return RequestContext(context.Background(), vars, req, maxDepth)
}

// RequestContext is Request, stopping expansion once ctx is done.
func RequestContext(ctx context.Context, vars Lookup, req *model.Request, maxDepth int) RequestResult {
	out := req.Clone()
	var all []string
	apply := func(s string) string {
		r := ResolveContext(ctx, vars, s, maxDepth)
		all = append(all, r.Unresolved...)
		return r.Output
	}

	u := ResolveContext(ctx, vars, out.URL, maxDepth)
	out.URL = u.Output
	all = append(all, u.Unresolved...)
	for i := range out.Headers {
		out.Headers[i].Value = apply(out.Headers[i].Value)
	}
	for i := range out.Query {
		out.Query[i].Value = apply(out.Query[i].Value)
	}
	out.Body = apply(out.Body)

	slices.Sort(all)
	return RequestResult{
		Request:       out,
		URLUnresolved: u.Unresolved,
		Unresolved:    slices.Compact(all),
	}
}
