package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates an invalid or incomplete Config.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransport classifies failures of the external executor.
	ErrTransport = errors.New("transport error")
)

// TransportError wraps a failure of the external executor (connection
// refused, DNS, TLS, timeout). It is reported as-is and never retried here.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransport) match any TransportError.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }
