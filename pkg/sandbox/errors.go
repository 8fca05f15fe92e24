package sandbox

import (
	"errors"
	"fmt"
)

var (
	ErrScript    = errors.New("script error")
	ErrTimeout   = errors.New("script timed out")
	ErrCancelled = errors.New("script cancelled")
	ErrParse     = errors.New("parse error")
)

// ErrorKind classifies an ErrorInfo.
type ErrorKind string

const (
	KindScriptError    ErrorKind = "script_error"
	KindTimeout        ErrorKind = "timeout"
	KindCancelled      ErrorKind = "cancelled"
	KindTransportError ErrorKind = "transport_error"
	KindUnresolved     ErrorKind = "unresolved"
	KindInvalid        ErrorKind = "invalid"
)

// ErrorInfo is a failure carried as data.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Script  string    `json:"script,omitempty"`
}

func (e *ErrorInfo) Error() string {
	if e.Script != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Script, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is maps kinds onto the package sentinels.
func (e *ErrorInfo) Is(target error) bool {
	switch e.Kind {
	case KindScriptError:
		return target == ErrScript
	case KindTimeout:
		return target == ErrTimeout
	case KindCancelled:
		return target == ErrCancelled
	}
	return false
}

// ScriptError is an uncaught exception or a compile failure.
type ScriptError struct {
	Message string
	Line    int
	Column  int
}

func (e *ScriptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d, col %d)", e.Message, e.Line, e.Column)
	}
	return e.Message
}

func (e *ScriptError) Is(target error) bool { return target == ErrScript }

// ParseError is thrown into the script by response.json() on a non-JSON body.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string        { return fmt.Sprintf("response body is not valid JSON: %v", e.Err) }
func (e *ParseError) Unwrap() error        { return e.Err }
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Info converts err into an ErrorInfo attributed to origin.
func Info(err error, origin string) *ErrorInfo {
	if err == nil {
		return nil
	}
	kind := KindScriptError
	switch {
	case errors.Is(err, ErrTimeout):
		kind = KindTimeout
	case errors.Is(err, ErrCancelled):
		kind = KindCancelled
	}
	return &ErrorInfo{Kind: kind, Message: err.Error(), Script: origin}
}
