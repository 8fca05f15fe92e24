package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Response is what the external executor hands back.
type Response struct {
	Status     int           `json:"status"`
	StatusText string        `json:"status_text,omitempty"`
	Headers    Headers       `json:"headers,omitempty"`
	Body       string        `json:"body"`
	Time       time.Duration `json:"-"`
	Size       int64         `json:"size"`

	// Truncated is set when Body holds only the first part of the body.
	Truncated bool `json:"truncated,omitempty"`
}

// TimeMs is the response time in whole milliseconds.
func (r *Response) TimeMs() int64 {
	return r.Time.Milliseconds()
}

func (r *Response) IsSuccess() bool     { return r.Status >= 200 && r.Status < 300 }
func (r *Response) IsClientError() bool { return r.Status >= 400 && r.Status < 500 }
func (r *Response) IsServerError() bool { return r.Status >= 500 && r.Status < 600 }

// Validate checks the status code is within the HTTP range.
func (r *Response) Validate() error {
	if r.Status < 100 || r.Status > 599 {
		return fmt.Errorf("%w: %d", ErrInvalidStatusCode, r.Status)
	}
	return nil
}

func (r *Response) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP %d (%d ms)", r.Status, r.TimeMs())
	if n := len(r.Headers); n > 0 {
		fmt.Fprintf(&b, " with %d header(s)", n)
	}
	if r.Body != "" {
		fmt.Fprintf(&b, ", %d bytes", len(r.Body))
	}
	return b.String()
}

// MarshalJSON writes Time as integer milliseconds under "time_ms".
func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response
	return json.Marshal(struct {
		plain
		TimeMs int64 `json:"time_ms"`
	}{plain(r), r.Time.Milliseconds()})
}
