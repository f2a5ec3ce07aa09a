package vector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/efebarandurmaz/bookchunk/internal/book"
)

// ChunkIndexer upserts every saved chunk into a Repository.
type ChunkIndexer struct {
	repo      Repository
	batchSize int

	mu    sync.Mutex
	ready bool
}

// NewChunkIndexer creates an indexer writing batchSize points per request.
func NewChunkIndexer(repo Repository, batchSize int) *ChunkIndexer {
	if batchSize <= 0 {
		batchSize = 256
	}
	return &ChunkIndexer{repo: repo, batchSize: batchSize}
}

// Name identifies the indexer in logs.
func (ix *ChunkIndexer) Name() string { return "qdrant" }

// OnChunk mirrors chunk into the vector store.
func (ix *ChunkIndexer) OnChunk(ctx context.Context, chunk book.Chunk) error {
	points := PointsFromChunk(chunk)
	if len(points) == 0 {
		return nil
	}
	if err := ix.ensure(ctx, len(points[0].Vector)); err != nil {
		return err
	}
	for lo := 0; lo < len(points); lo += ix.batchSize {
		hi := min(lo+ix.batchSize, len(points))
		if err := ix.repo.Upsert(ctx, points[lo:hi]); err != nil {
			return fmt.Errorf("upsert points %d-%d: %w", lo, hi, err)
		}
	}
	slog.Debug("chunk indexed", "indexer", ix.Name(), "points", len(points))
	return nil
}

func (ix *ChunkIndexer) ensure(ctx context.Context, dim int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.ready {
		return nil
	}
	if err := ix.repo.EnsureCollection(ctx, dim); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	ix.ready = true
	return nil
}
