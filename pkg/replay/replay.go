package replay

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ormasoftchile/arcanine/pkg/model"
)

// Executor answers requests with the recorded responses of a scenario.
// Fail-closed: a request without an unused matching exchange is an error.
type Executor struct {
	mu       sync.Mutex
	scenario *Scenario
	used     []bool
}

// NewExecutor creates an Executor from a loaded scenario.
func NewExecutor(s *Scenario) *Executor {
	return &Executor{
		scenario: s,
		used:     make([]bool, len(s.Exchanges)),
	}
}

// Execute returns the response of the first unused exchange whose method
// and full URL match req.
func (x *Executor) Execute(ctx context.Context, req *model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	url, err := req.FullURL()
	if err != nil {
		return nil, err
	}
	method := string(req.Method)
	if method == "" {
		method = string(model.MethodGet)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	for i := range x.scenario.Exchanges {
		e := &x.scenario.Exchanges[i]
		if x.used[i] || e.method() != method || e.URL != url {
			continue
		}
		if !e.Repeat {
			x.used[i] = true
		}
		return e.response(), nil
	}
	return nil, fmt.Errorf("replay: no matching exchange for %s %s", method, url)
}

// Unused returns the exchanges that never answered a request.
func (x *Executor) Unused() []Exchange {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []Exchange
	for i, e := range x.scenario.Exchanges {
		if !x.used[i] && !e.Repeat {
			out = append(out, e)
		}
	}
	return out
}

func (e *Exchange) response() *model.Response {
	resp := &model.Response{
		Status:     e.Status,
		StatusText: e.StatusText,
		Body:       e.Body,
		Size:       int64(len(e.Body)),
	}
	names := make([]string, 0, len(e.Headers))
	for k := range e.Headers {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, k := range names {
		resp.Headers = append(resp.Headers, model.KeyValue{Key: k, Value: e.Headers[k]})
	}
	return resp
}
