// Package transport sends model.Requests over HTTP. It is the executor the
// pipeline hands the resolved request to.
package transport

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/pipeline"
)

// DefaultTimeout bounds one exchange when the caller sets none.
const DefaultTimeout = 30 * time.Second

// DefaultMaxBodyBytes bounds how much of a response body is read.
const DefaultMaxBodyBytes = 10 << 20

// HTTP is a pipeline.Executor backed by net/http.
type HTTP struct {
	Client *http.Client

	// UserAgent is sent when the request sets no User-Agent header.
	UserAgent string

	// MaxBodyBytes caps the body read; the rest is discarded and the
	// response marked Truncated. Non-positive means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// New creates an HTTP executor. A non-positive timeout uses DefaultTimeout.
func New(timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTP{
		Client:       &http.Client{Timeout: timeout},
		UserAgent:    "arcanine",
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

var _ pipeline.Executor = (*HTTP)(nil)

// Execute sends req and reads the response body up to MaxBodyBytes. Any
// failure before a status line arrives, or while reading the body, is a
// TransportError.
func (h *HTTP) Execute(ctx context.Context, req *model.Request) (*model.Response, error) {
	method := req.Method
	if method == "" {
		method = model.MethodGet
	}
	fail := func(url string, err error) error {
		return &pipeline.TransportError{Method: string(method), URL: url, Err: err}
	}

	url, err := req.FullURL()
	if err != nil {
		return nil, fail(req.URL, err)
	}
	httpReq, err := Build(ctx, req)
	if err != nil {
		return nil, fail(url, err)
	}
	if h.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", h.UserAgent)
	}

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fail(url, err)
	}
	defer resp.Body.Close()

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fail(url, fmt.Errorf("read body: %w", err))
	}
	truncated := int64(len(body)) > limit
	if truncated {
		body = body[:limit]
	}
	elapsed := time.Since(start)

	return &model.Response{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Headers:    headers(resp.Header),
		Body:       string(body),
		Time:       elapsed,
		Size:       int64(len(body)),
		Truncated:  truncated,
	}, nil
}

// Build converts req into an *http.Request carrying its enabled headers,
// enabled query parameters and body.
func Build(ctx context.Context, req *model.Request) (*http.Request, error) {
	url, err := req.FullURL()
	if err != nil {
		return nil, err
	}
	method := string(req.Method)
	if method == "" {
		method = string(model.MethodGet)
	}
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for _, kv := range req.Headers.Enabled() {
		if strings.EqualFold(kv.Key, "Host") {
			httpReq.Host = kv.Value
			continue
		}
		httpReq.Header.Add(kv.Key, kv.Value)
	}
	return httpReq, nil
}

// statusText strips the code from "200 OK".
func statusText(resp *http.Response) string {
	if _, text, ok := strings.Cut(resp.Status, " "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// headers keeps the first value of each response header, sorted by name
// for stable output.
func headers(h http.Header) model.Headers {
	out := make(model.Headers, 0, len(h))
	for _, k := range sortedKeys(h) {
		if v := h[k]; len(v) > 0 {
			out = append(out, model.KeyValue{Key: k, Value: v[0]})
		}
	}
	return out
}

func sortedKeys(h http.Header) []string {
	return slices.Sorted(maps.Keys(h))
}
