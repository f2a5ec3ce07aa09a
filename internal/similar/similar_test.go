package similar

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/efebarandurmaz/bookchunk/internal/book"
	"github.com/efebarandurmaz/bookchunk/internal/embedding"
	"github.com/efebarandurmaz/bookchunk/internal/vector"
)

type staticEmbedder struct {
	vec []float32
	err error
}

func (s staticEmbedder) Create(ctx context.Context, text string) (embedding.Vector, embedding.Result) {
	if s.err != nil {
		return embedding.Vector{}, embedding.Result{Err: s.err}
	}
	return embedding.NewVector(s.vec), embedding.Result{Attempts: 1}
}

type chunkLoader book.Chunk

func (c chunkLoader) LoadAll() (book.Chunk, error) { return book.Chunk(c), nil }

type fakeRepo struct {
	gotTopK int
}

func (f *fakeRepo) EnsureCollection(context.Context, int) error { return nil }
func (f *fakeRepo) Upsert(context.Context, []vector.Point) error { return nil }
func (f *fakeRepo) Close() error                                 { return nil }
func (f *fakeRepo) Search(ctx context.Context, vec []float32, topK int) ([]vector.Match, error) {
	f.gotTopK = topK
	return []vector.Match{{ID: "u1", Score: 0.9, Book: vector.Payload{ISBN: "1", Title: "one"}}}, nil
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("Cosine(same) = %v, want 1", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("Cosine(orthogonal) = %v, want 0", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Errorf("Cosine(zero) = %v, want 0", got)
	}
}

func TestSimilarRanksAndLimits(t *testing.T) {
	loader := chunkLoader{
		"a": {ISBN: "a", Embedding: []float32{1, 0}},
		"b": {ISBN: "b", Embedding: []float32{0.7, 0.7}},
		"c": {ISBN: "c", Embedding: []float32{0, 1}},
		"d": {ISBN: "d", Embedding: []float32{1, 0, 0}},
	}
	s := NewSearcher(staticEmbedder{vec: []float32{1, 0}}, loader)

	got, err := s.Similar(context.Background(), "전략", 2)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(got) != 2 || got[0].Book.ISBN != "a" || got[1].Book.ISBN != "b" {
		t.Errorf("matches = %+v, want a then b", got)
	}
}

func TestSimilarDefaultTopK(t *testing.T) {
	loader := chunkLoader{}
	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		loader[id] = book.Enriched{ISBN: id, Embedding: []float32{1}}
	}
	got, err := NewSearcher(staticEmbedder{vec: []float32{1}}, loader).Similar(context.Background(), "q", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != DefaultTopK {
		t.Errorf("len = %d, want %d", len(got), DefaultTopK)
	}
}

func TestSimilarEmbeddingFailure(t *testing.T) {
	s := NewSearcher(staticEmbedder{err: embedding.ErrNoEmbedding}, chunkLoader{})
	if _, err := s.Similar(context.Background(), "q", 3); !errors.Is(err, embedding.ErrNoEmbedding) {
		t.Errorf("err = %v, want ErrNoEmbedding", err)
	}
}

func TestVectorSearcher(t *testing.T) {
	repo := &fakeRepo{}
	got, err := NewVectorSearcher(staticEmbedder{vec: []float32{1}}, repo).Similar(context.Background(), "q", 0)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if repo.gotTopK != DefaultTopK {
		t.Errorf("topK = %d, want %d", repo.gotTopK, DefaultTopK)
	}
	if len(got) != 1 || got[0].Book.Title != "one" || math.Abs(got[0].Score-0.9) > 1e-6 {
		t.Errorf("matches = %+v", got)
	}
}
