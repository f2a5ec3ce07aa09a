// Package similar finds books whose descriptions are closest to a query.
package similar

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/efebarandurmaz/bookchunk/internal/book"
	"github.com/efebarandurmaz/bookchunk/internal/embedding"
	"github.com/efebarandurmaz/bookchunk/internal/vector"
)

// DefaultTopK is the number of matches returned when topK <= 0.
const DefaultTopK = 5

// Embedder produces a vector for a text.
type Embedder interface {
	Create(ctx context.Context, text string) (embedding.Vector, embedding.Result)
}

// Loader returns every persisted record.
type Loader interface {
	LoadAll() (book.Chunk, error)
}

// Match is a scored book.
type Match struct {
	Score float64       `json:"score"`
	Book  book.Enriched `json:"book"`
}

// Searcher ranks persisted records by cosine similarity in memory.
type Searcher struct {
	embedder Embedder
	loader   Loader
}

// NewSearcher creates a Searcher over the chunk store.
func NewSearcher(embedder Embedder, loader Loader) *Searcher {
	return &Searcher{embedder: embedder, loader: loader}
}

// Similar returns the topK records most similar to query, best first.
func (s *Searcher) Similar(ctx context.Context, query string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	q, err := embedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}
	all, err := s.loader.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load books: %w", err)
	}

	matches := make([]Match, 0, len(all))
	for _, rec := range all {
		if len(rec.Embedding) != len(q) {
			continue
		}
		matches = append(matches, Match{Score: Cosine(q, rec.Embedding), Book: rec})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Book.ISBN < matches[j].Book.ISBN
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// VectorSearcher delegates ranking to a vector repository.
type VectorSearcher struct {
	embedder Embedder
	repo     vector.Repository
}

// NewVectorSearcher creates a searcher backed by repo.
func NewVectorSearcher(embedder Embedder, repo vector.Repository) *VectorSearcher {
	return &VectorSearcher{embedder: embedder, repo: repo}
}

// Similar returns the topK nearest books from the vector index.
func (s *VectorSearcher) Similar(ctx context.Context, query string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	q, err := embedQuery(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}
	found, err := s.repo.Search(ctx, q, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	matches := make([]Match, len(found))
	for i, m := range found {
		matches[i] = Match{
			Score: float64(m.Score),
			Book: book.Enriched{
				ISBN:      m.Book.ISBN,
				Title:     m.Book.Title,
				Authors:   m.Book.Authors,
				Publisher: m.Book.Publisher,
				Contents:  m.Book.Contents,
				Thumbnail: m.Book.Thumbnail,
			},
		}
	}
	return matches, nil
}

// Cosine returns the cosine similarity of a and b, or 0 if either has zero norm.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func embedQuery(ctx context.Context, e Embedder, query string) ([]float32, error) {
	v, res := e.Create(ctx, query)
	if res.Err != nil {
		return nil, fmt.Errorf("embed query: %w", res.Err)
	}
	if v.IsZero() {
		return nil, fmt.Errorf("embed query: %w", embedding.ErrNoEmbedding)
	}
	return v.Slice(), nil
}
