// Package collector drives keyword search, deduplication, chunking and
// persistence. Resume state is the set of ids already present in the chunk
// store; nothing else is checkpointed.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/efebarandurmaz/bookchunk/internal/book"
	"github.com/efebarandurmaz/bookchunk/internal/keywords"
	"github.com/efebarandurmaz/bookchunk/internal/observability"
	"github.com/efebarandurmaz/bookchunk/internal/report"
)

// ErrStorage wraps chunk write failures. They stop the run without a final flush.
var ErrStorage = errors.New("chunk store write failed")

// Searcher fetches candidate records for a keyword.
type Searcher interface {
	Search(ctx context.Context, keyword string, target int) ([]book.Record, error)
}

// Processor embeds a list of records.
type Processor interface {
	Process(ctx context.Context, recs []book.Record) (book.Chunk, book.Tally)
}

// Store persists chunks and exposes the processed id set.
type Store interface {
	ProcessedIDs() (map[string]struct{}, error)
	NextChunkNumber() (int, error)
	Save(chunk book.Chunk, n int) (string, error)
}

// Indexer receives every chunk after it is saved. Errors are logged only.
type Indexer interface {
	Name() string
	OnChunk(ctx context.Context, chunk book.Chunk) error
}

// Config controls chunking and search depth.
type Config struct {
	ChunkSize    int           // records per chunk (default 1000)
	TargetCount  int           // search results requested per keyword (default 300)
	FlushTimeout time.Duration // grace period for the final flush after interruption (default 2m)
	Keywords     []string      // defaults to keywords.Default()
}

// DefaultConfig returns the collector defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		TargetCount:  300,
		FlushTimeout: 2 * time.Minute,
		Keywords:     keywords.Default(),
	}
}

// Collector owns the processed-id set and the chunk counter. Runs are
// serialized; the driver is single threaded.
type Collector struct {
	searcher  Searcher
	processor Processor
	store     Store
	indexers  []Indexer
	config    Config

	mu          sync.Mutex
	processed   map[string]struct{}
	chunkNumber int
	pending     map[string]book.Record
	order       []string
}

// New creates a Collector. Zero config fields take defaults.
func New(searcher Searcher, processor Processor, store Store, config Config, indexers ...Indexer) *Collector {
	def := DefaultConfig()
	if config.ChunkSize <= 0 {
		config.ChunkSize = def.ChunkSize
	}
	if config.TargetCount <= 0 {
		config.TargetCount = def.TargetCount
	}
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = def.FlushTimeout
	}
	if len(config.Keywords) == 0 {
		config.Keywords = def.Keywords
	}
	return &Collector{
		searcher:  searcher,
		processor: processor,
		store:     store,
		indexers:  indexers,
		config:    config,
	}
}

// Keywords returns the deduplicated keyword list in original order.
func (c *Collector) Keywords() []string {
	return keywords.Unique(c.config.Keywords)
}

// Run processes every configured keyword.
func (c *Collector) Run(ctx context.Context) (*report.Run, error) {
	return c.run(ctx, c.Keywords())
}

// CollectKeyword runs a single keyword pass with freshly loaded resume state.
func (c *Collector) CollectKeyword(ctx context.Context, keyword string) (*report.Run, error) {
	return c.run(ctx, []string{keyword})
}

func (c *Collector) run(ctx context.Context, kws []string) (*report.Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rep := report.New()
	if err := c.load(); err != nil {
		rep.AddError(err)
		rep.Finish(0, 0, false)
		return rep, err
	}
	rep.ExistingBooks = len(c.processed)
	slog.Info("collection started", "existing_books", len(c.processed), "chunk_number", c.chunkNumber, "keywords", len(kws))

	var runErr error
	for i, kw := range kws {
		if ctx.Err() != nil {
			break
		}
		slog.Info("keyword started", "keyword", kw, "index", i+1, "of", len(kws))
		if err := c.safeCollect(ctx, kw, rep); err != nil {
			runErr = err
			break
		}
	}

	interrupted := ctx.Err() != nil
	if interrupted && errors.Is(runErr, ctx.Err()) {
		runErr = nil
	}
	switch {
	case errors.Is(runErr, ErrStorage):
		rep.AddError(runErr)
	case runErr != nil:
		rep.AddError(runErr)
		slog.Error("collection aborted", "error", runErr)
		c.finalFlush(ctx, rep)
	case interrupted:
		slog.Warn("collection interrupted", "pending", len(c.pending))
		c.finalFlush(ctx, rep)
	}

	rep.Finish(len(c.processed), c.chunkNumber, interrupted)
	observability.Metrics().ProcessedBooks.Set(float64(len(c.processed)))
	slog.Info("collection finished",
		"new_books", rep.NewlyProcessed,
		"total_books", len(c.processed),
		"chunk_files", c.chunkNumber,
		"interrupted", interrupted,
	)
	return rep, runErr
}

func (c *Collector) load() error {
	ids, err := c.store.ProcessedIDs()
	if err != nil {
		return fmt.Errorf("load processed ids: %w", err)
	}
	n, err := c.store.NextChunkNumber()
	if err != nil {
		return fmt.Errorf("count chunk files: %w", err)
	}
	c.processed = ids
	c.chunkNumber = n
	c.resetPending()
	observability.Metrics().ProcessedBooks.Set(float64(len(ids)))
	return nil
}

// safeCollect turns a panic in a keyword pass into an error.
func (c *Collector) safeCollect(ctx context.Context, kw string, rep *report.Run) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in keyword pass", "keyword", kw, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("keyword %q: panic: %v", kw, r)
		}
	}()
	return c.collectKeyword(ctx, kw, rep)
}

func (c *Collector) collectKeyword(ctx context.Context, kw string, rep *report.Run) error {
	start := time.Now()
	ctx, span := observability.StartKeywordSpan(ctx, kw)
	defer span.End()

	stats := report.KeywordStats{Keyword: kw}
	defer func() {
		stats.Duration = time.Since(start)
		rep.AddKeyword(stats)
		observability.RecordKeywordResult(span, stats.Fetched, stats.New, stats.Processed)
	}()

	recs, err := c.searcher.Search(ctx, kw, c.config.TargetCount)
	stats.Fetched = len(recs)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	slog.Info("keyword fetched", "keyword", kw, "books", len(recs))

	for _, rec := range recs {
		id := rec.ID()
		if id == "" {
			continue
		}
		if _, done := c.processed[id]; done {
			continue
		}
		if _, queued := c.pending[id]; !queued {
			c.order = append(c.order, id)
			stats.New++
		}
		c.pending[id] = rec

		if len(c.pending) >= c.config.ChunkSize {
			n, err := c.flush(ctx, rep)
			stats.Processed += n
			if err != nil {
				observability.RecordError(span, err)
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}

	if len(c.pending) > 0 {
		n, err := c.flush(ctx, rep)
		stats.Processed += n
		if err != nil {
			observability.RecordError(span, err)
			return err
		}
	}
	slog.Info("keyword finished", "keyword", kw, "fetched", stats.Fetched, "new", stats.New, "processed", stats.Processed)
	return ctx.Err()
}

// flush processes the pending records, saves the non-empty result and
// advances the chunk number. When ctx is cancelled part way, records that
// were not embedded stay pending for the final flush.
func (c *Collector) flush(ctx context.Context, rep *report.Run) (int, error) {
	recs := make([]book.Record, 0, len(c.order))
	for _, id := range c.order {
		recs = append(recs, c.pending[id])
	}

	ctx, span := observability.StartChunkSpan(ctx, c.chunkNumber, len(recs))
	defer span.End()

	chunk, tally := c.processor.Process(ctx, recs)
	path, err := c.store.Save(chunk, c.chunkNumber)
	if err != nil {
		err = fmt.Errorf("%w: chunk %d: %w", ErrStorage, c.chunkNumber, err)
		observability.RecordError(span, err)
		return 0, err
	}
	observability.RecordChunkResult(span, tally.Success, tally.Skip, tally.Timeout, path)

	cancelled := ctx.Err() != nil
	if cancelled {
		// Timeouts here are mostly cancellations; the retained records are tallied again.
		rep.AddTally(book.Tally{Success: tally.Success, Skip: tally.Skip})
	} else {
		rep.AddTally(tally)
	}

	if len(chunk) > 0 {
		for id := range chunk {
			c.processed[id] = struct{}{}
		}
		rep.ChunkSaved()
		observability.Metrics().ChunksSavedTotal.Inc()
		observability.Metrics().ProcessedBooks.Set(float64(len(c.processed)))
		c.chunkNumber++
		c.index(ctx, chunk)
	}

	if cancelled {
		c.retainUnprocessed()
	} else {
		c.resetPending()
	}
	return len(chunk), nil
}

// finalFlush saves whatever is still pending under a detached deadline.
func (c *Collector) finalFlush(ctx context.Context, rep *report.Run) {
	if len(c.pending) == 0 {
		return
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.FlushTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in final flush", "panic", r)
			rep.AddError(fmt.Errorf("final flush: panic: %v", r))
		}
	}()

	slog.Info("flushing pending records", "records", len(c.pending), "chunk", c.chunkNumber)
	if _, err := c.flush(fctx, rep); err != nil {
		slog.Error("final flush failed", "error", err)
		rep.AddError(err)
	}
}

func (c *Collector) index(ctx context.Context, chunk book.Chunk) {
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	for _, ix := range c.indexers {
		if err := ix.OnChunk(ctx, chunk); err != nil {
			slog.Warn("indexer failed", "indexer", ix.Name(), "books", len(chunk), "error", err)
		}
	}
}

func (c *Collector) resetPending() {
	c.pending = make(map[string]book.Record)
	c.order = nil
}

func (c *Collector) retainUnprocessed() {
	order := c.order[:0]
	for _, id := range c.order {
		rec := c.pending[id]
		if _, done := c.processed[id]; done || rec.Contents == "" {
			delete(c.pending, id)
			continue
		}
		order = append(order, id)
	}
	c.order = order
}
