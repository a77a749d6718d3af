package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orneryd/matrixgraph/pkg/metrics"
	"github.com/orneryd/matrixgraph/pkg/storage"
)

// DefaultBatchSize is the number of entities indexed per lock acquisition.
const DefaultBatchSize = 1000

var tracer = otel.Tracer("matrixgraph.index")

// ResumeToken marks where the previous batch stopped.
//
// For node scans Row is the last indexed node id. For edge scans (Row, Col)
// is the last fully indexed (src, dst) cell. Started distinguishes "nothing
// scanned yet" from a scan that stopped at (0, 0).
type ResumeToken struct {
	Row     uint64
	Col     uint64
	Started bool
}

// Options tunes a population run.
type Options struct {
	// BatchSize caps the entities (nodes) or cells (edges) per batch.
	// Zero means DefaultBatchSize.
	BatchSize int

	Logger *slog.Logger

	// OnBatch, when set, runs after every batch with the graph lock released.
	OnBatch func(batch int, tok ResumeToken)
}

// Result summarizes a population run.
type Result struct {
	Batches int
	Indexed int
	Enabled bool
}

// PopulateNodeBatch indexes up to batchSize nodes of label matrix lm that
// come after tok. It must run under the graph read lock.
//
// done is true when fewer than batchSize nodes were left, in which case the
// scan is complete. A scan over a multiple of batchSize nodes therefore ends
// with one empty batch.
func PopulateNodeBatch(idx *Index, g *storage.Graph, lm *storage.AdjacencyMatrix[bool], tok ResumeToken, batchSize int) (indexed int, next ResumeToken, done bool, err error) {
	next = tok

	var it storage.TupleIterator[bool]
	if err := it.Attach(lm); err != nil {
		return 0, tok, false, err
	}
	defer it.Detach()

	if tok.Started {
		if err := it.JumpToRow(tok.Row + 1); err != nil {
			return 0, tok, false, err
		}
	}

	for indexed < batchSize {
		row, _, _, err := it.Next()
		if errors.Is(err, storage.ErrIteratorExhausted) {
			break
		}
		if err != nil {
			return indexed, next, false, err
		}
		idx.IndexNode(g, row)
		indexed++
		next = ResumeToken{Row: row, Started: true}
	}
	return indexed, next, indexed < batchSize, nil
}

// PopulateEdgeBatch indexes the edges of up to batchSize cells of relation
// matrix rm that come after tok. Every edge of a multi-edge cell is indexed,
// the cell counts once against the budget. It must run under the graph read
// lock.
//
// Resuming jumps to row tok.Row and skips the cells of that row up to and
// including column tok.Col.
func PopulateEdgeBatch(idx *Index, g *storage.Graph, rm *storage.AdjacencyMatrix[storage.EdgeCell], tok ResumeToken, batchSize int) (indexed int, next ResumeToken, done bool, err error) {
	next = tok

	var it storage.TupleIterator[storage.EdgeCell]
	if err := it.Attach(rm); err != nil {
		return 0, tok, false, err
	}
	defer it.Detach()

	skipping := false
	if tok.Started {
		if err := it.JumpToRow(tok.Row); err != nil {
			return 0, tok, false, err
		}
		skipping = true
	}

	for indexed < batchSize {
		src, dst, cell, err := it.Next()
		if errors.Is(err, storage.ErrIteratorExhausted) {
			break
		}
		if err != nil {
			return indexed, next, false, err
		}
		if skipping {
			if src == tok.Row && dst <= tok.Col {
				continue
			}
			skipping = false
		}

		for i := 0; i < cell.Len(); i++ {
			idx.IndexEdge(g, cell.At(i))
		}
		indexed++
		next = ResumeToken{Row: src, Col: dst, Started: true}
	}
	return indexed, next, indexed < batchSize, nil
}

// Populate scans the entities covered by idx in batches and enables the index
// when the scan completes.
//
// Each batch acquires the graph read lock, fetches the matrix afresh, indexes
// at most opts.BatchSize entities and releases the lock. Between batches the
// index state is polled: once it is no longer POPULATING the run stops and
// leaves the state as it found it. ctx is checked at the same points.
//
// A label or relation type that does not exist yet covers no entities, so
// the index is enabled right away.
func Populate(ctx context.Context, idx *Index, g *storage.Graph, opts Options) (Result, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	entity := idx.EntityType().String()

	ctx, span := tracer.Start(ctx, "index.Populate",
		trace.WithAttributes(
			attribute.String("index.id", idx.ID()),
			attribute.String("index.entity", entity),
			attribute.String("index.schema", idx.Definition().Schema),
			attribute.Int("index.batch_size", batchSize),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.IndexPopulationDuration.WithLabelValues(entity).Observe(time.Since(start).Seconds())
	}()

	var (
		res Result
		tok ResumeToken
	)
	for idx.State() == StatePopulating {
		if err := ctx.Err(); err != nil {
			metrics.IndexPopulations.WithLabelValues(entity, "canceled").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "context canceled")
			return res, err
		}

		n, next, done, err := populateBatch(idx, g, tok, batchSize)
		if err != nil {
			metrics.IndexPopulations.WithLabelValues(entity, "error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return res, fmt.Errorf("populating index %s: %w", idx.ID(), err)
		}
		tok = next
		res.Batches++
		res.Indexed += n
		metrics.IndexBatches.WithLabelValues(entity).Inc()
		metrics.IndexedEntities.WithLabelValues(entity).Add(float64(n))

		if opts.OnBatch != nil {
			opts.OnBatch(res.Batches, tok)
		}

		if done {
			res.Enabled = idx.Enable()
			break
		}
	}

	span.SetAttributes(
		attribute.Int("index.batches", res.Batches),
		attribute.Int("index.indexed", res.Indexed),
		attribute.Bool("index.enabled", res.Enabled),
	)
	if res.Enabled {
		g.Schema().MarkIndexActive(idx.ID())
		metrics.IndexPopulations.WithLabelValues(entity, "enabled").Inc()
		logger.Info("index populated",
			slog.String("index", idx.ID()),
			slog.String("schema", idx.Definition().Schema),
			slog.Int("batches", res.Batches),
			slog.Int("indexed", res.Indexed),
		)
		return res, nil
	}

	metrics.IndexPopulations.WithLabelValues(entity, "aborted").Inc()
	logger.Debug("index population abandoned",
		slog.String("index", idx.ID()),
		slog.String("state", idx.State().String()),
		slog.Int("batches", res.Batches),
	)
	return res, nil
}

// populateBatch runs one batch under the graph read lock.
func populateBatch(idx *Index, g *storage.Graph, tok ResumeToken, batchSize int) (int, ResumeToken, bool, error) {
	g.AcquireRead()
	defer g.Release()

	if idx.EntityType() == storage.EntityEdge {
		rm, err := g.RelationMatrix(storage.RelationID(idx.SchemaID()), false)
		if errors.Is(err, storage.ErrNotFound) {
			return 0, tok, true, nil
		}
		if err != nil {
			return 0, tok, false, err
		}
		return PopulateEdgeBatch(idx, g, rm, tok, batchSize)
	}

	lm, err := g.LabelMatrix(storage.LabelID(idx.SchemaID()))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, tok, true, nil
	}
	if err != nil {
		return 0, tok, false, err
	}
	return PopulateNodeBatch(idx, g, lm, tok, batchSize)
}
