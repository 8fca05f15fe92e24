package sandbox

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// recorder collects console entries and test outcomes for one run.
type recorder struct {
	origin  string
	stage   Stage
	max     int
	console []ConsoleEntry
	tests   []TestOutcome
	asserts int
}

func newRecorder(origin string, stage Stage, max int) *recorder {
	return &recorder{origin: origin, stage: stage, max: max}
}

// log appends one entry; entries beyond the cap are dropped silently.
func (r *recorder) log(level ConsoleLevel, text string) {
	if len(r.console) >= r.max {
		return
	}
	r.console = append(r.console, ConsoleEntry{Level: level, Text: text, Script: r.origin})
}

// assert evaluates every call; outcomes are kept only in the test stage.
func (r *recorder) assert(passed bool, name string, actual string) bool {
	r.asserts++
	if r.stage != StageTest {
		return passed
	}
	if name == "" {
		name = fmt.Sprintf("assertion %d", r.asserts)
	}
	out := TestOutcome{Name: name, Passed: passed, Script: r.origin}
	if !passed {
		out.Message = fmt.Sprintf("expected truthy value, got %s", actual)
	}
	r.tests = append(r.tests, out)
	return passed
}

// format renders console arguments the way a browser console would,
// joined by single spaces.
func format(vm *goja.Runtime, args []goja.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = display(vm, a)
	}
	return strings.Join(parts, " ")
}

func display(vm *goja.Runtime, v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	switch obj.ClassName() {
	case "Error", "Function":
		return v.String()
	}
	if s, ok := jsonStringify(vm, v); ok {
		return s
	}
	return v.String()
}

func jsonStringify(vm *goja.Runtime, v goja.Value) (string, bool) {
	stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	if !ok {
		return "", false
	}
	out, err := stringify(goja.Undefined(), v)
	if err != nil || out == nil || goja.IsUndefined(out) {
		return "", false
	}
	return out.String(), true
}

// stringValue converts a script value into the string stored in a scope.
// Objects are stored as JSON; undefined and null become "".
func stringValue(vm *goja.Runtime, v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	if _, ok := v.(*goja.Object); ok {
		if s, ok := jsonStringify(vm, v); ok {
			return s
		}
	}
	return v.String()
}
