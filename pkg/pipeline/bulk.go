package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ormasoftchile/arcanine/pkg/scope"
)

// Job is one run of a bulk operation. Jobs may share Levels: tables are
// only read, and each run snapshots them into its own chain.
type Job struct {
	Def    RequestDef
	Levels []scope.Table
}

// CommitFunc persists the changes of a finished run. RunAll never calls it
// concurrently.
type CommitFunc func(*Result) error

// RunAll executes jobs with at most parallel runs in flight (parallel < 1
// means sequential). Results are returned in job order and are never nil.
// commit, when set, is called once per finished run, serialized in
// completion order; the first commit error cancels the runs not yet
// finished and is returned. Cancelled runs, and runs finishing after that
// first error, are not committed.
func (o *Orchestrator) RunAll(ctx context.Context, jobs []Job, parallel int, commit CommitFunc) ([]*Result, error) {
	if parallel < 1 {
		parallel = 1
	}
	results := make([]*Result, len(jobs))
	var commitMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, job := range jobs {
		g.Go(func() error {
			res := o.Execute(gctx, job.Def, job.Levels)
			results[i] = res
			if commit == nil {
				return nil
			}
			commitMu.Lock()
			defer commitMu.Unlock()
			if gctx.Err() != nil || res.Status.State == StateCancelled {
				return nil
			}
			if err := commit(res); err != nil {
				return fmt.Errorf("commit run %s: %w", res.RunID, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}
