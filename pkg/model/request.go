// Package model defines the request and response shapes that flow through
// the execution pipeline.
package model

import (
	"fmt"
	"net/url"
	"strings"
)

// Method is an HTTP method in its upper-case wire form.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

var knownMethods = []Method{
	MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete, MethodHead, MethodOptions,
}

// ParseMethod parses a method name case-insensitively. Empty means GET.
func ParseMethod(s string) (Method, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MethodGet, nil
	}
	m := Method(strings.ToUpper(s))
	for _, k := range knownMethods {
		if m == k {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidMethod, s)
}

// KeyValue is one ordered header or query parameter entry.
type KeyValue struct {
	Key      string `yaml:"key"                json:"key"`
	Value    string `yaml:"value"              json:"value"`
	Disabled bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Request is an HTTP request before or after variable resolution.
type Request struct {
	Name    string     `json:"name"`
	Method  Method     `json:"method"`
	URL     string     `json:"url"`
	Headers Headers    `json:"headers,omitempty"`
	Query   []KeyValue `json:"query,omitempty"`
	Body    string     `json:"body,omitempty"`
}

// NewRequest creates a GET request with the given name and URL.
func NewRequest(name, rawURL string) *Request {
	return &Request{Name: name, Method: MethodGet, URL: rawURL}
}

// Clone returns a deep copy.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Headers = r.Headers.Clone()
	if r.Query != nil {
		c.Query = append([]KeyValue(nil), r.Query...)
	}
	return &c
}

// Validate checks the request is named and sendable.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name", ErrEmptyField)
	}
	return r.CheckSendable()
}

// CheckSendable checks the URL and method. The name is not required.
func (r *Request) CheckSendable() error {
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("%w: url", ErrEmptyField)
	}
	rest, ok := strings.CutPrefix(r.URL, "http://")
	if !ok {
		rest, ok = strings.CutPrefix(r.URL, "https://")
	}
	if !ok {
		return fmt.Errorf("%w: URL must start with http:// or https://: %s", ErrInvalidURL, r.URL)
	}
	if rest == "" || rest == "/" {
		return fmt.Errorf("%w: URL must contain a domain: %s", ErrInvalidURL, r.URL)
	}
	if r.Method != "" {
		if _, err := ParseMethod(string(r.Method)); err != nil {
			return err
		}
	}
	return nil
}

// FullURL returns the URL with enabled query parameters appended.
func (r *Request) FullURL() (string, error) {
	var enabled []KeyValue
	for _, p := range r.Query {
		if !p.Disabled {
			enabled = append(enabled, p)
		}
	}
	if len(enabled) == 0 {
		return r.URL, nil
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	q := u.Query()
	for _, p := range enabled {
		q.Add(p.Key, p.Value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r *Request) String() string {
	method := r.Method
	if method == "" {
		method = MethodGet
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s)", method, r.URL, r.Name)
	if n := len(r.Headers); n > 0 {
		fmt.Fprintf(&b, " with %d header(s)", n)
	}
	if r.Body != "" {
		b.WriteString(" with body")
	}
	return b.String()
}
