// Package ingest turns raw documents into embedded chunks in the vector
// index.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"virtualta/internal/chunker"
	"virtualta/internal/domain"
	"virtualta/internal/metrics"
	"virtualta/internal/normalizer"
	"virtualta/internal/vectorstore"
)

// DefaultBatchSize is the number of points sent per upsert.
const DefaultBatchSize = 100

// Pipeline runs normalize, chunk, embed and upsert over a Source. It is
// sequential: one document is fully processed before the next.
type Pipeline struct {
	normalizer *normalizer.Normalizer
	chunker    *chunker.SentenceChunker
	embedder   domain.Embedder
	store      vectorstore.Storage
	batchSize  int
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

type Options struct {
	BatchSize int
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

func NewPipeline(n *normalizer.Normalizer, c *chunker.SentenceChunker, e domain.Embedder, s vectorstore.Storage, opts Options) *Pipeline {
	p := &Pipeline{
		normalizer: n,
		chunker:    c,
		embedder:   e,
		store:      s,
		batchSize:  opts.BatchSize,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.metrics == nil {
		p.metrics = metrics.Nop()
	}
	return p
}

// Prepare makes sure the collection exists with the embedder's dimension.
// With recreate the collection is dropped first.
func (p *Pipeline) Prepare(ctx context.Context, recreate bool) error {
	dim := p.embedder.Dimension()
	if recreate {
		p.logger.Info("recreating collection", zap.Int("dimension", dim))
		return p.store.Recreate(ctx, dim)
	}
	return p.store.Init(ctx, dim)
}

// Ingest writes every document of src and returns the number of chunks
// that reached the index. Ids come from counter, which the caller seeds
// with the family range. A chunk that fails to embed transiently or a batch
// that fails to upsert is logged and skipped. Cancellation, a source read
// failure, an exhausted id range or an embedder contract violation (wrong
// dimension, empty vector) stops the run.
func (p *Pipeline) Ingest(ctx context.Context, src Source, counter *Counter) (int, error) {
	family := string(src.Family())
	written := 0
	docs := 0
	err := src.Walk(ctx, func(doc domain.Document) error {
		docs++
		n, err := p.ingestDocument(ctx, doc, counter)
		written += n
		return err
	})
	p.logger.Info("ingest finished",
		zap.String("family", family),
		zap.Int("documents", docs),
		zap.Int("chunks", written),
		zap.Uint64("next_id", counter.Peek()))
	return written, err
}

func (p *Pipeline) ingestDocument(ctx context.Context, doc domain.Document, counter *Counter) (int, error) {
	family := string(doc.Family)
	text := p.normalizer.Normalize(doc)
	chunks := p.chunker.Split(text)
	p.logger.Debug("document split",
		zap.String("path", doc.OriginPath),
		zap.String("url", doc.CanonicalURL),
		zap.Int("chunks", len(chunks)))

	written := 0
	batch := make([]domain.Point, 0, min(p.batchSize, len(chunks)))
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := p.store.Upsert(ctx, batch); err != nil {
			p.metrics.UpsertFailures.WithLabelValues(family).Inc()
			p.logger.Error("upsert failed, batch skipped",
				zap.String("path", doc.OriginPath),
				zap.String("first_id", batch[0].ID.String()),
				zap.String("last_id", batch[len(batch)-1].ID.String()),
				zap.Error(err))
		} else {
			written += len(batch)
			p.metrics.ChunksWritten.WithLabelValues(family).Add(float64(len(batch)))
		}
		batch = batch[:0]
	}

	for i, text := range chunks {
		vec, err := p.embedder.Embed(ctx, text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				flush()
				return written, err
			}
			if errors.Is(err, domain.ErrProviderContract) {
				flush()
				return written, fmt.Errorf("embed chunk %d of %s: %w", i+1, doc.OriginPath, err)
			}
			p.metrics.EmbedFailures.WithLabelValues(family).Inc()
			p.logger.Warn("embedding failed, chunk skipped",
				zap.String("path", doc.OriginPath),
				zap.Int("chunk", i+1),
				zap.Int("chunks", len(chunks)),
				zap.Error(err))
			continue
		}
		id, err := counter.Next()
		if err != nil {
			flush()
			return written, err
		}
		c := domain.Chunk{SequenceID: id, Text: text, SourceURL: doc.CanonicalURL}
		batch = append(batch, domain.Point{
			ID:      domain.NumericID(c.SequenceID),
			Vector:  vec,
			Payload: domain.Payload{Source: c.SourceURL, Text: c.Text},
		})
		if len(batch) == p.batchSize {
			flush()
		}
	}
	flush()
	return written, ctx.Err()
}
