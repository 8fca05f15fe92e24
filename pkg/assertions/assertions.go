// Package assertions evaluates declarative request checks written as
// expr-lang boolean expressions against a received response.
//
// An expression sees status, statusText, headers (lower-cased names),
// body, json (the decoded body, or nil), time (ms), size and vars, plus the
// jsonpath(doc, "$.a.b[0]") and header(name) helpers. expr's own
// contains, startsWith, endsWith and matches operators work on body and
// header values.
package assertions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/sandbox"
)

// Origin is the script origin recorded on declarative outcomes.
const Origin = "assertions"

// NewEnv builds the expression environment for resp. vars is the
// effective variable view at the time of evaluation.
func NewEnv(resp *model.Response, vars map[string]string) map[string]any {
	if vars == nil {
		vars = map[string]string{}
	}
	env := map[string]any{
		"status":     0,
		"statusText": "",
		"headers":    map[string]string{},
		"body":       "",
		"json":       nil,
		"time":       int64(0),
		"size":       int64(0),
		"vars":       vars,
	}
	if resp == nil {
		return env
	}
	headers := make(map[string]string, len(resp.Headers))
	for _, kv := range resp.Headers.Enabled() {
		k := strings.ToLower(kv.Key)
		if _, seen := headers[k]; !seen {
			headers[k] = kv.Value
		}
	}
	var doc any
	if err := json.Unmarshal([]byte(resp.Body), &doc); err != nil {
		doc = nil
	}
	env["status"] = resp.Status
	env["statusText"] = resp.StatusText
	env["headers"] = headers
	env["body"] = resp.Body
	env["json"] = doc
	env["time"] = resp.TimeMs()
	env["size"] = resp.Size
	return env
}

func options(env map[string]any) []expr.Option {
	return []expr.Option{
		expr.Env(env),
		expr.AsBool(),
		expr.Function("jsonpath", func(params ...any) (any, error) {
			path, _ := params[1].(string)
			return JSONPath(params[0], path)
		}, new(func(any, string) any)),
		expr.Function("header", func(params ...any) (any, error) {
			name, _ := params[0].(string)
			headers, _ := env["headers"].(map[string]string)
			return headers[strings.ToLower(name)], nil
		}, new(func(string) string)),
	}
}

// Compile checks that source is a well-formed boolean expression over the
// assertion environment.
func Compile(source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return fmt.Errorf("empty assertion")
	}
	if _, err := expr.Compile(source, options(NewEnv(nil, nil))...); err != nil {
		return fmt.Errorf("compile assertion %q: %w", source, err)
	}
	return nil
}

// Eval compiles and runs one expression against env.
func Eval(source string, env map[string]any) (bool, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return false, fmt.Errorf("empty assertion")
	}
	program, err := expr.Compile(source, options(env)...)
	if err != nil {
		return false, fmt.Errorf("compile assertion %q: %w", source, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval assertion %q: %w", source, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("assertion %q did not return bool (got %T: %v)", source, output, output)
	}
	return result, nil
}

// Evaluate runs every expression and returns one TestOutcome each, in
// order. Compile and runtime errors become failed outcomes.
func Evaluate(sources []string, env map[string]any) []sandbox.TestOutcome {
	out := make([]sandbox.TestOutcome, 0, len(sources))
	for _, src := range sources {
		o := sandbox.TestOutcome{Name: "expr: " + strings.TrimSpace(src), Script: Origin}
		passed, err := Eval(src, env)
		switch {
		case err != nil:
			o.Message = err.Error()
		case !passed:
			o.Message = "expression evaluated to false"
		default:
			o.Passed = true
		}
		out = append(out, o)
	}
	return out
}

// JSONPath navigates a dotted path ($.key1.key2[0].key3) through doc. A
// string doc is decoded as JSON first.
func JSONPath(doc any, path string) (any, error) {
	if s, ok := doc.(string); ok {
		if err := json.Unmarshal([]byte(s), &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}
	return navigateJSONPath(doc, path)
}

// navigateJSONPath walks keys and [n] / .n array indices.
func navigateJSONPath(data any, path string) (any, error) {
	path = strings.TrimPrefix(path, "$")
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return data, nil
	}

	current := data
	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			val, exists := node[part]
			if !exists {
				return nil, fmt.Errorf("key %q not found", part)
			}
			current = val
		case []any:
			var idx int
			if _, err := fmt.Sscanf(part, "%d", &idx); err != nil || fmt.Sprint(idx) != part {
				return nil, fmt.Errorf("expected index at %q, got array", part)
			}
			if idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("index %d out of range (len %d)", idx, len(node))
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("expected object at %q, got %T", part, current)
		}
	}
	return current, nil
}
