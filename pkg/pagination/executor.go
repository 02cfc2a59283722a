package pagination

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nimburion/crudkit/pkg/docstore"
	"github.com/nimburion/crudkit/pkg/observability/metrics"
)

// Execution is the outcome of running a Plan.
type Execution struct {
	Documents []docstore.Document
	Total     int64
	Elapsed   time.Duration
}

// Execute runs the data and count queries concurrently and waits for both.
// The first failure cancels the other query and is returned as-is.
func Execute(ctx context.Context, store docstore.Store, plan Plan) (Execution, error) {
	start := time.Now()
	system := store.Capabilities().System
	g, gctx := errgroup.WithContext(ctx)

	var (
		docs  []docstore.Document
		total int64
	)
	g.Go(func() error {
		began := time.Now()
		var err error
		docs, err = store.Query(gctx, plan.Data)
		metrics.RecordStoreOperation(system, plan.Data.Collection, "query", time.Since(began), err)
		return err
	})
	g.Go(func() error {
		began := time.Now()
		var err error
		total, err = store.Count(gctx, plan.Count)
		metrics.RecordStoreOperation(system, plan.Count.Collection, "count", time.Since(began), err)
		return err
	})

	if err := g.Wait(); err != nil {
		return Execution{}, err
	}
	return Execution{Documents: docs, Total: total, Elapsed: time.Since(start)}, nil
}
