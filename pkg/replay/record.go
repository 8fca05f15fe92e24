package replay

import (
	"context"
	"sync"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/pipeline"
)

// Recorder wraps an executor and keeps every successful exchange.
type Recorder struct {
	next pipeline.Executor

	mu        sync.Mutex
	exchanges []Exchange
}

// NewRecorder records the exchanges next performs.
func NewRecorder(next pipeline.Executor) *Recorder {
	return &Recorder{next: next}
}

func (r *Recorder) Execute(ctx context.Context, req *model.Request) (*model.Response, error) {
	resp, err := r.next.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	url, uerr := req.FullURL()
	if uerr != nil {
		url = req.URL
	}
	e := Exchange{
		Method:     string(req.Method),
		URL:        url,
		Status:     resp.Status,
		StatusText: resp.StatusText,
		Body:       resp.Body,
	}
	if e.Method == "" {
		e.Method = string(model.MethodGet)
	}
	for _, h := range resp.Headers {
		if e.Headers == nil {
			e.Headers = make(map[string]string)
		}
		e.Headers[h.Key] = h.Value
	}

	r.mu.Lock()
	r.exchanges = append(r.exchanges, e)
	r.mu.Unlock()
	return resp, nil
}

// Scenario returns what has been recorded so far.
func (r *Recorder) Scenario() *Scenario {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Scenario{Exchanges: append([]Exchange(nil), r.exchanges...)}
}
