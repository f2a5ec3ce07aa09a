// Package processor embeds batches of book records on a bounded worker pool.
package processor

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/bookchunk/internal/book"
	"github.com/efebarandurmaz/bookchunk/internal/embedding"
	"github.com/efebarandurmaz/bookchunk/internal/observability"
)

// Embedder produces a vector for a text. *embedding.Client satisfies it.
type Embedder interface {
	Create(ctx context.Context, text string) (embedding.Vector, embedding.Result)
}

// Config controls batching and per-record retries.
type Config struct {
	BatchSize     int           // records per batch (default 15)
	MaxWorkers    int           // concurrent records per batch (default min(GOMAXPROCS, 8))
	MaxAttempts   int           // whole-record attempts (default 3)
	RetryDelay    time.Duration // pause between record attempts (default 1s)
	ResultTimeout time.Duration // hard ceiling per record (default 30s)
}

// DefaultConfig returns the collector defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     15,
		MaxWorkers:    DefaultWorkers(),
		MaxAttempts:   3,
		RetryDelay:    time.Second,
		ResultTimeout: 30 * time.Second,
	}
}

// DefaultWorkers returns min(GOMAXPROCS, 8).
func DefaultWorkers() int {
	return min(runtime.GOMAXPROCS(0), 8)
}

// Processor turns raw records into enriched ones.
type Processor struct {
	embedder Embedder
	config   Config
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// New creates a Processor. Zero config fields take defaults.
func New(embedder Embedder, config Config) *Processor {
	def := DefaultConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = def.MaxWorkers
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}
	if config.ResultTimeout <= 0 {
		config.ResultTimeout = def.ResultTimeout
	}
	return &Processor{
		embedder: embedder,
		config:   config,
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

// Config returns the effective configuration.
func (p *Processor) Config() Config { return p.config }

// ProcessSingle embeds one record. Records without an identifier or
// description are skipped. When every attempt fails, or ctx expires first,
// the outcome is timeout.
func (p *Processor) ProcessSingle(ctx context.Context, rec book.Record) (book.Enriched, book.Outcome) {
	id := rec.ID()
	if id == "" || rec.Contents == "" {
		return book.Enriched{}, book.OutcomeSkip
	}

	start := p.now()
	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		vec, res := p.embedder.Create(ctx, rec.Contents)
		if res.Err == nil && !vec.IsZero() {
			return book.Enriched{
				ISBN:           id,
				Title:          rec.Title,
				Authors:        rec.Authors,
				Publisher:      rec.Publisher,
				Contents:       rec.Contents,
				Thumbnail:      rec.Thumbnail,
				Embedding:      vec.Slice(),
				Timestamp:      p.now(),
				ProcessingTime: p.now().Sub(start).Seconds(),
				Attempts:       attempt,
			}, book.OutcomeSuccess
		}

		if ctx.Err() != nil {
			break
		}
		slog.Warn("record attempt failed", "isbn", id, "attempt", attempt, "error", res.Err)
		if attempt < p.config.MaxAttempts {
			if err := p.sleep(ctx, p.config.RetryDelay); err != nil {
				break
			}
		}
	}
	return book.Enriched{}, book.OutcomeTimeout
}

type result struct {
	rec     book.Enriched
	outcome book.Outcome
}

// Process embeds recs batch by batch. Each batch completes before the next
// starts. If ctx is cancelled, remaining batches are not started and their
// records are absent from both the chunk and the tally.
func (p *Processor) Process(ctx context.Context, recs []book.Record) (book.Chunk, book.Tally) {
	chunk := make(book.Chunk)
	var tally book.Tally

	total := len(recs)
	batches := (total + p.config.BatchSize - 1) / p.config.BatchSize
	for b := 0; b < batches; b++ {
		if ctx.Err() != nil {
			slog.Warn("processing stopped", "batches_done", b, "batches_total", batches)
			break
		}
		lo := b * p.config.BatchSize
		hi := min(lo+p.config.BatchSize, total)

		for _, r := range p.processBatch(ctx, recs[lo:hi]) {
			tally.Add(r.outcome)
			if r.outcome == book.OutcomeSuccess {
				chunk[r.rec.ISBN] = r.rec
			}
		}
		slog.Info("batch processed",
			"batch", b+1,
			"batches", batches,
			"done", hi,
			"total", total,
			"success", tally.Success,
			"skip", tally.Skip,
			"timeout", tally.Timeout,
		)
	}
	return chunk, tally
}

func (p *Processor) processBatch(ctx context.Context, batch []book.Record) []result {
	results := make([]result, len(batch))
	metrics := observability.Metrics()

	var g errgroup.Group
	g.SetLimit(p.config.MaxWorkers)
	for i, rec := range batch {
		g.Go(func() error {
			metrics.ActiveWorkers.Add(1)
			defer metrics.ActiveWorkers.Add(-1)

			rctx, cancel := context.WithTimeout(ctx, p.config.ResultTimeout)
			defer cancel()

			enriched, outcome := p.ProcessSingle(rctx, rec)
			if outcome == book.OutcomeTimeout && rctx.Err() == context.DeadlineExceeded {
				slog.Warn("record exceeded result timeout", "isbn", rec.ID(), "timeout", p.config.ResultTimeout)
			}
			metrics.RecordOutcome(string(outcome))

			results[i] = result{rec: enriched, outcome: outcome}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
