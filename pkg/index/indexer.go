package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/orneryd/matrixgraph/pkg/metrics"
	"github.com/orneryd/matrixgraph/pkg/storage"
)

// ErrIndexerStopped is returned when submitting to a stopped Indexer.
var ErrIndexerStopped = errors.New("indexer stopped")

// Indexer populates indexes in the background, off the query path.
//
// Jobs are queued with Submit and picked up by a fixed number of workers.
// An index that finishes populating is promoted in the registry. Jobs still
// queued when the context passed to Start is canceled are dropped.
//
// Example:
//
//	ix := index.NewIndexer(g, reg, 2, index.Options{BatchSize: 1000})
//	ix.Start(ctx)
//	defer ix.Stop()
//	idx, _ := reg.Create(storage.EntityNode, "Person", "name")
//	_ = ix.Submit(idx)
type Indexer struct {
	g       *storage.Graph
	reg     *Registry
	opts    Options
	workers int
	logger  *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	stopped bool
	done    chan struct{}
	jobs    chan *Index
	senders sync.WaitGroup
	wg      sync.WaitGroup
}

// NewIndexer creates an indexer with the given number of workers (at least one).
func NewIndexer(g *storage.Graph, reg *Registry, workers int, opts Options) *Indexer {
	if workers < 1 {
		workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		g:       g,
		reg:     reg,
		opts:    opts,
		workers: workers,
		logger:  logger,
		ctx:     context.Background(),
		done:    make(chan struct{}),
		jobs:    make(chan *Index, 64),
	}
}

// Start launches the workers. They exit when ctx is done or Stop is called.
func (ix *Indexer) Start(ctx context.Context) {
	ix.mu.Lock()
	ix.ctx = ctx
	ix.mu.Unlock()
	for i := range ix.workers {
		ix.wg.Add(1)
		go ix.worker(ctx, i)
	}
}

func (ix *Indexer) worker(ctx context.Context, n int) {
	defer ix.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ix.done:
			// finish what was queued before Stop
			for {
				select {
				case idx := <-ix.jobs:
					metrics.IndexerQueueDepth.Dec()
					ix.run(ctx, idx, n)
				default:
					return
				}
			}
		case idx := <-ix.jobs:
			metrics.IndexerQueueDepth.Dec()
			ix.run(ctx, idx, n)
		}
	}
}

func (ix *Indexer) run(ctx context.Context, idx *Index, worker int) {
	res, err := Populate(ctx, idx, ix.g, ix.opts)
	if err != nil {
		ix.logger.Error("index population failed",
			slog.String("index", idx.ID()),
			slog.Int("worker", worker),
			slog.Any("error", err),
		)
		return
	}
	if res.Enabled {
		ix.reg.Promote(idx)
	}
}

// Submit queues idx for population. It blocks while the queue is full and
// fails with ErrIndexerStopped once Stop was called or the context passed to
// Start is done.
func (ix *Indexer) Submit(idx *Index) error {
	ix.mu.Lock()
	if ix.stopped {
		ix.mu.Unlock()
		return ErrIndexerStopped
	}
	ctx := ix.ctx
	if err := ctx.Err(); err != nil {
		ix.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrIndexerStopped, err)
	}
	ix.senders.Add(1)
	ix.mu.Unlock()
	defer ix.senders.Done()

	metrics.IndexerQueueDepth.Inc()
	select {
	case ix.jobs <- idx:
		return nil
	case <-ix.done:
		metrics.IndexerQueueDepth.Dec()
		return ErrIndexerStopped
	case <-ctx.Done():
		metrics.IndexerQueueDepth.Dec()
		return fmt.Errorf("%w: %w", ErrIndexerStopped, ctx.Err())
	}
}

// Stop rejects further submissions, waits for the workers to finish the
// queued jobs and discards whatever canceled workers left behind.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	if ix.stopped {
		ix.mu.Unlock()
		return
	}
	ix.stopped = true
	close(ix.done)
	ix.mu.Unlock()

	ix.senders.Wait()
	ix.wg.Wait()
	for {
		select {
		case <-ix.jobs:
			metrics.IndexerQueueDepth.Dec()
		default:
			return
		}
	}
}

// PopulateAll populates indexes concurrently, at most workers at a time, and
// promotes the ones that complete. It returns the first population error.
func PopulateAll(ctx context.Context, g *storage.Graph, reg *Registry, indexes []*Index, workers int, opts Options) ([]Result, error) {
	results := make([]Result, len(indexes))

	eg, egCtx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for i, idx := range indexes {
		eg.Go(func() error {
			res, err := Populate(egCtx, idx, g, opts)
			results[i] = res
			if err != nil {
				return err
			}
			if res.Enabled && reg != nil {
				reg.Promote(idx)
			}
			return nil
		})
	}
	return results, eg.Wait()
}
