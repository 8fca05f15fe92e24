package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// JS runs scripts as ECMAScript on a fresh goja runtime per invocation, so
// no state leaks between scripts except through the capability objects.
type JS struct{}

// NewJS returns the JavaScript engine.
func NewJS() *JS { return &JS{} }

// Run implements Engine.
func (e *JS) Run(ctx context.Context, script Script, sc *Context, budget Budget) (res StageResult) {
	budget = budget.WithDefaults()
	start := time.Now()
	rec := newRecorder(script.Origin, sc.Stage, budget.MaxConsoleLines)
	defer func() {
		res.Console = rec.console
		res.Tests = rec.tests
		res.DurationMs = time.Since(start).Milliseconds()
	}()

	if err := ctx.Err(); err != nil {
		res.Error = Info(fmt.Errorf("%w before start: %v", ErrCancelled, err), script.Origin)
		return res
	}

	prog, err := goja.Compile(script.Origin, script.Source, false)
	if err != nil {
		res.Error = Info(compileError(err), script.Origin)
		return res
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(budget.MaxCallStackSize)
	if err := install(vm, sc, rec); err != nil {
		res.Error = Info(err, script.Origin)
		return res
	}

	done := make(chan struct{})
	defer close(done)
	timer := time.AfterFunc(budget.Timeout, func() {
		vm.Interrupt(fmt.Errorf("%w after %v", ErrTimeout, budget.Timeout))
	})
	defer timer.Stop()
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(fmt.Errorf("%w: %v", ErrCancelled, ctx.Err()))
		case <-done:
		}
	}()

	res.Error = Info(runProgram(vm, prog), script.Origin)
	return res
}

// runProgram executes prog and turns every failure mode, including Go
// panics raised from capability callbacks, into an error.
func runProgram(vm *goja.Runtime, prog *goja.Program) (err error) {
	defer func() {
		if r := recover(); r != nil {
			var interrupted *goja.InterruptedError
			if e, ok := r.(error); ok && errors.As(e, &interrupted) {
				err = interruptCause(interrupted)
				return
			}
			err = &ScriptError{Message: fmt.Sprintf("internal error: %v", r)}
		}
	}()
	_, err = vm.RunProgram(prog)
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return interruptCause(interrupted)
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return exceptionError(exc)
	}
	return &ScriptError{Message: err.Error()}
}

func interruptCause(ie *goja.InterruptedError) error {
	if cause, ok := ie.Value().(error); ok {
		return cause
	}
	return fmt.Errorf("%w: %v", ErrCancelled, ie.Value())
}

func exceptionError(exc *goja.Exception) *ScriptError {
	if v := exc.Value(); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		return &ScriptError{Message: v.String()}
	}
	return &ScriptError{Message: exc.Error()}
}

func compileError(err error) *ScriptError {
	var syn *goja.CompilerSyntaxError
	if errors.As(err, &syn) {
		return &ScriptError{Message: "SyntaxError: " + syn.Message}
	}
	return &ScriptError{Message: err.Error()}
}

// CheckSyntax compiles src without running it.
func CheckSyntax(origin, src string) error {
	if _, err := goja.Compile(origin, src, false); err != nil {
		return compileError(err)
	}
	return nil
}
