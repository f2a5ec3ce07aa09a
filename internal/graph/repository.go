// Package graph stores the book catalog as a graph of books, authors and
// publishers.
package graph

import (
	"context"
	"log/slog"
	"sort"

	"github.com/efebarandurmaz/bookchunk/internal/book"
)

// Book is a book node as read back from the graph.
type Book struct {
	ISBN      string `json:"isbn"`
	Title     string `json:"title"`
	Publisher string `json:"publisher"`
}

// Repository provides graph storage for enriched books.
type Repository interface {
	// StoreChunk merges every book of the chunk with its authors and publisher.
	StoreChunk(ctx context.Context, chunk book.Chunk) error
	// BooksByAuthor returns the books written by the named author.
	BooksByAuthor(ctx context.Context, name string) ([]Book, error)
	// Close releases resources.
	Close(ctx context.Context) error
}

// Row is the parameter map for one book in a batched write.
type Row = map[string]any

// Rows flattens a chunk into write parameters ordered by ISBN.
func Rows(chunk book.Chunk) []Row {
	ids := chunk.IDs()
	sort.Strings(ids)
	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		rec := chunk[id]
		authors := make([]any, 0, len(rec.Authors))
		for _, a := range rec.Authors {
			if a != "" {
				authors = append(authors, a)
			}
		}
		rows = append(rows, Row{
			"isbn":      id,
			"title":     rec.Title,
			"publisher": rec.Publisher,
			"thumbnail": rec.Thumbnail,
			"authors":   authors,
		})
	}
	return rows
}

// ChunkIndexer writes every saved chunk into a Repository.
type ChunkIndexer struct {
	repo Repository
}

// NewChunkIndexer creates an indexer for repo.
func NewChunkIndexer(repo Repository) *ChunkIndexer {
	return &ChunkIndexer{repo: repo}
}

// Name identifies the indexer in logs.
func (ix *ChunkIndexer) Name() string { return "neo4j" }

// OnChunk stores chunk in the graph.
func (ix *ChunkIndexer) OnChunk(ctx context.Context, chunk book.Chunk) error {
	if len(chunk) == 0 {
		return nil
	}
	if err := ix.repo.StoreChunk(ctx, chunk); err != nil {
		return err
	}
	slog.Debug("chunk indexed", "indexer", ix.Name(), "books", len(chunk))
	return nil
}
