// Package vector mirrors enriched books into a vector database.
package vector

import (
	"context"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/bookchunk/internal/book"
)

// pointNamespace scopes the name-based UUIDs derived from ISBNs.
var pointNamespace = uuid.MustParse("6f1c7a52-3b8e-4f0d-9d2a-8c1e5b7f4a10")

// Point is one book stored in the vector index.
type Point struct {
	ID     string
	Vector []float32
	Book   Payload
}

// Payload is the book metadata stored alongside a vector.
type Payload struct {
	ISBN      string
	Title     string
	Authors   []string
	Publisher string
	Thumbnail string
	Contents  string
}

// Match is a single result from a similarity search.
type Match struct {
	ID    string
	Score float32
	Book  Payload
}

// Repository provides vector storage and similarity search.
type Repository interface {
	// EnsureCollection creates the collection for vectors of size dim if missing.
	EnsureCollection(ctx context.Context, dim int) error
	// Upsert inserts or updates points.
	Upsert(ctx context.Context, points []Point) error
	// Search finds the top-k most similar points.
	Search(ctx context.Context, vector []float32, topK int) ([]Match, error)
	// Close releases resources.
	Close() error
}

// PointID returns the stable point id for an ISBN, so re-indexing a book
// overwrites its previous point.
func PointID(isbn string) string {
	return uuid.NewSHA1(pointNamespace, []byte(isbn)).String()
}

// PointsFromChunk converts a chunk into points, skipping records without
// an embedding.
func PointsFromChunk(chunk book.Chunk) []Point {
	points := make([]Point, 0, len(chunk))
	for id, rec := range chunk {
		if len(rec.Embedding) == 0 {
			continue
		}
		points = append(points, Point{
			ID:     PointID(id),
			Vector: rec.Embedding,
			Book: Payload{
				ISBN:      id,
				Title:     rec.Title,
				Authors:   rec.Authors,
				Publisher: rec.Publisher,
				Thumbnail: rec.Thumbnail,
				Contents:  rec.Contents,
			},
		})
	}
	return points
}
