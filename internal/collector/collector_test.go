package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/efebarandurmaz/bookchunk/internal/book"
	"github.com/efebarandurmaz/bookchunk/internal/chunkstore"
)

type fakeSearcher struct {
	results map[string][]book.Record
	panicOn string
	calls   []string
}

func (f *fakeSearcher) Search(ctx context.Context, keyword string, target int) ([]book.Record, error) {
	f.calls = append(f.calls, keyword)
	if keyword == f.panicOn {
		panic("search exploded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs := f.results[keyword]
	if len(recs) > target {
		recs = recs[:target]
	}
	return recs, nil
}

// fakeProcessor embeds every record with contents. If cancelAfter > 0 it
// invokes cancel once that many records were embedded and stops early when
// ctx is done.
type fakeProcessor struct {
	mu          sync.Mutex
	batches     [][]book.Record
	cancelAfter int
	cancel      context.CancelFunc
	panicOnCall int
	done        int
}

func (f *fakeProcessor) Process(ctx context.Context, recs []book.Record) (book.Chunk, book.Tally) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, recs)
	if f.panicOnCall > 0 && len(f.batches) == f.panicOnCall {
		panic("processor exploded")
	}

	chunk := make(book.Chunk)
	var tally book.Tally
	for _, r := range recs {
		if ctx.Err() != nil {
			break
		}
		if r.Contents == "" {
			tally.Add(book.OutcomeSkip)
			continue
		}
		chunk[r.ID()] = book.Enriched{ISBN: r.ID(), Title: r.Title, Contents: r.Contents, Embedding: []float32{1}, Timestamp: time.Now(), Attempts: 1}
		tally.Add(book.OutcomeSuccess)
		f.done++
		if f.cancelAfter > 0 && f.done == f.cancelAfter && f.cancel != nil {
			f.cancel()
		}
	}
	return chunk, tally
}

type failingStore struct {
	*chunkstore.Store
}

func (failingStore) Save(book.Chunk, int) (string, error) {
	return "", errors.New("disk full")
}

type recordingIndexer struct {
	chunks []book.Chunk
	err    error
}

func (r *recordingIndexer) Name() string { return "recording" }

func (r *recordingIndexer) OnChunk(ctx context.Context, chunk book.Chunk) error {
	r.chunks = append(r.chunks, chunk)
	return r.err
}

func recs(prefix string, n int) []book.Record {
	out := make([]book.Record, n)
	for i := range out {
		isbn := fmt.Sprintf("%s%03d", prefix, i)
		out[i] = book.Record{ISBN: isbn + " 979" + isbn, Title: "t" + isbn, Contents: "c" + isbn}
	}
	return out
}

func openStore(t *testing.T, dir string) *chunkstore.Store {
	t.Helper()
	s, err := chunkstore.Open(dir, chunkstore.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestRun_ChunkSizeBoundsAndNumbering(t *testing.T) {
	store := openStore(t, t.TempDir())
	search := &fakeSearcher{results: map[string][]book.Record{"a": recs("a", 7), "b": recs("b", 2)}}
	proc := &fakeProcessor{}
	c := New(search, proc, store, Config{ChunkSize: 3, Keywords: []string{"a", "b", "a"}})

	rep, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(search.calls) != 2 {
		t.Errorf("search calls = %v, want deduplicated keywords", search.calls)
	}
	// a: 3+3+1, b: 2
	wantSizes := []int{3, 3, 1, 2}
	if len(proc.batches) != len(wantSizes) {
		t.Fatalf("flushes = %d, want %d", len(proc.batches), len(wantSizes))
	}
	for i, w := range wantSizes {
		if len(proc.batches[i]) != w {
			t.Errorf("flush %d size = %d, want %d", i, len(proc.batches[i]), w)
		}
	}
	for n := 0; n < 4; n++ {
		chunk, err := store.Load(store.FileName(n))
		if err != nil {
			t.Fatalf("chunk %d: %v", n, err)
		}
		if len(chunk) < 1 || len(chunk) > 3 {
			t.Errorf("chunk %d has %d records, want 1..3", n, len(chunk))
		}
	}
	if rep.NewlyProcessed != 9 || rep.TotalProcessed != 9 || rep.ChunkFiles != 4 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Keywords[0].Fetched != 7 || rep.Keywords[0].New != 7 || rep.Keywords[0].Processed != 7 {
		t.Errorf("keyword stats = %+v", rep.Keywords[0])
	}
}

func TestRun_IdempotentResume(t *testing.T) {
	dir := t.TempDir()
	search := &fakeSearcher{results: map[string][]book.Record{"a": recs("a", 5)}}

	first := New(search, &fakeProcessor{}, openStore(t, dir), Config{ChunkSize: 2, Keywords: []string{"a"}})
	if _, err := first.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	search.results["a"] = append(recs("a", 5), recs("z", 1)...)
	proc := &fakeProcessor{}
	store := openStore(t, dir)
	second := New(search, proc, store, Config{ChunkSize: 2, Keywords: []string{"a"}})
	rep, err := second.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if rep.ExistingBooks != 5 || rep.NewlyProcessed != 1 {
		t.Errorf("existing = %d new = %d, want 5 and 1", rep.ExistingBooks, rep.NewlyProcessed)
	}
	if len(proc.batches) != 1 || len(proc.batches[0]) != 1 {
		t.Errorf("second run processed %v, want only the new record", proc.batches)
	}

	seen := map[string]int{}
	for n := 0; n < 4; n++ {
		chunk, err := store.Load(store.FileName(n))
		if err != nil {
			t.Fatalf("chunk %d: %v", n, err)
		}
		for id := range chunk {
			seen[id]++
		}
	}
	for id, count := range seen {
		if count > 1 {
			t.Errorf("id %s stored %d times", id, count)
		}
	}
	if len(seen) != 6 {
		t.Errorf("stored ids = %d, want 6", len(seen))
	}
}

func TestRun_SkipsEmptyIDsAndDuplicates(t *testing.T) {
	store := openStore(t, t.TempDir())
	in := recs("a", 2)
	in = append(in, book.Record{ISBN: " ", Contents: "x"}, in[0])
	search := &fakeSearcher{results: map[string][]book.Record{"a": in}}
	proc := &fakeProcessor{}

	rep, err := New(search, proc, store, Config{Keywords: []string{"a"}}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(proc.batches) != 1 || len(proc.batches[0]) != 2 {
		t.Errorf("processed %v, want 2 distinct records", proc.batches)
	}
	if rep.Keywords[0].New != 2 {
		t.Errorf("new = %d, want 2", rep.Keywords[0].New)
	}
}

func TestRun_EmptyResultWritesNoChunk(t *testing.T) {
	store := openStore(t, t.TempDir())
	search := &fakeSearcher{results: map[string][]book.Record{"a": {{ISBN: "1"}}}}

	rep, err := New(search, &fakeProcessor{}, store, Config{Keywords: []string{"a"}}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n, _ := store.NextChunkNumber(); n != 0 || rep.ChunkFiles != 0 {
		t.Errorf("chunk files = %d (report %d), want 0", n, rep.ChunkFiles)
	}
	if rep.Tally.Skip != 1 {
		t.Errorf("skip = %d, want 1", rep.Tally.Skip)
	}
}

func TestRun_ResumesNumberingFromFileCount(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir)
	store.Save(book.Chunk{"x": {ISBN: "x"}}, 0)
	store.Save(book.Chunk{"y": {ISBN: "y"}}, 1)

	search := &fakeSearcher{results: map[string][]book.Record{"a": recs("a", 1)}}
	rep, err := New(search, &fakeProcessor{}, store, Config{Keywords: []string{"a"}}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := store.Load(store.FileName(2)); err != nil {
		t.Errorf("expected chunk 2 to be written: %v", err)
	}
	if rep.ChunkFiles != 3 || rep.TotalProcessed != 3 {
		t.Errorf("report = %+v", rep)
	}
}

func TestRun_NumberingGapStopsWithoutOverwriting(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir)
	store.Save(book.Chunk{"x": {ISBN: "x"}}, 0)
	store.Save(book.Chunk{"y": {ISBN: "y"}}, 2)

	search := &fakeSearcher{results: map[string][]book.Record{"a": recs("a", 1)}}
	_, err := New(search, &fakeProcessor{}, store, Config{Keywords: []string{"a"}}).Run(context.Background())
	if !errors.Is(err, ErrStorage) || !errors.Is(err, chunkstore.ErrChunkExists) {
		t.Fatalf("err = %v, want ErrStorage wrapping ErrChunkExists", err)
	}
	kept, err := store.Load(store.FileName(2))
	if err != nil {
		t.Fatalf("Load chunk 2: %v", err)
	}
	if _, ok := kept["y"]; !ok || len(kept) != 1 {
		t.Errorf("chunk 2 = %v, want untouched", kept)
	}
}

func TestRun_InterruptFlushesPending(t *testing.T) {
	store := openStore(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	search := &fakeSearcher{results: map[string][]book.Record{"a": recs("a", 5), "b": recs("b", 5)}}
	proc := &fakeProcessor{cancelAfter: 2, cancel: cancel}
	c := New(search, proc, store, Config{ChunkSize: 10, Keywords: []string{"a", "b"}})

	rep, err := c.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Interrupted {
		t.Error("Interrupted = false, want true")
	}
	if len(search.calls) != 1 {
		t.Errorf("search calls = %v, want to stop after first keyword", search.calls)
	}
	ids, _ := store.ProcessedIDs()
	if len(ids) != 5 {
		t.Errorf("persisted %d ids, want all 5 of keyword a", len(ids))
	}
	if rep.ChunkFiles != 2 {
		t.Errorf("chunk files = %d, want partial chunk plus final flush", rep.ChunkFiles)
	}
	if rep.NewlyProcessed != 5 {
		t.Errorf("newly processed = %d, want 5", rep.NewlyProcessed)
	}
}

func TestRun_PanicIsReportedAndEarlierWorkKept(t *testing.T) {
	store := openStore(t, t.TempDir())
	search := &fakeSearcher{
		results: map[string][]book.Record{"a": recs("a", 2)},
		panicOn: "b",
	}
	rep, err := New(search, &fakeProcessor{}, store, Config{Keywords: []string{"a", "b", "c"}}).Run(context.Background())
	if err == nil {
		t.Fatal("Run error = nil, want panic converted to error")
	}
	if len(rep.Errors) == 0 {
		t.Error("report has no errors")
	}
	if ids, _ := store.ProcessedIDs(); len(ids) != 2 {
		t.Errorf("persisted %d ids, want 2", len(ids))
	}
	if len(search.calls) != 2 {
		t.Errorf("search calls = %v, want stop at b", search.calls)
	}
}

func TestRun_PanicDuringFlushRetriesPending(t *testing.T) {
	store := openStore(t, t.TempDir())
	search := &fakeSearcher{results: map[string][]book.Record{"a": recs("a", 3)}}
	proc := &fakeProcessor{panicOnCall: 1}

	_, err := New(search, proc, store, Config{Keywords: []string{"a"}}).Run(context.Background())
	if err == nil {
		t.Fatal("Run error = nil, want error")
	}
	if ids, _ := store.ProcessedIDs(); len(ids) != 3 {
		t.Errorf("persisted %d ids after best-effort flush, want 3", len(ids))
	}
}

func TestRun_StorageErrorPropagates(t *testing.T) {
	store := failingStore{openStore(t, t.TempDir())}
	search := &fakeSearcher{results: map[string][]book.Record{"a": recs("a", 2), "b": recs("b", 2)}}
	proc := &fakeProcessor{}

	_, err := New(search, proc, store, Config{Keywords: []string{"a", "b"}}).Run(context.Background())
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	if len(proc.batches) != 1 {
		t.Errorf("processed %d batches, want the run to stop at the failed save", len(proc.batches))
	}
}

func TestRun_IndexerErrorsDoNotStopRun(t *testing.T) {
	store := openStore(t, t.TempDir())
	search := &fakeSearcher{results: map[string][]book.Record{"a": recs("a", 2), "b": recs("b", 1)}}
	ix := &recordingIndexer{err: errors.New("qdrant down")}

	rep, err := New(search, &fakeProcessor{}, store, Config{Keywords: []string{"a", "b"}}, ix).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ix.chunks) != 2 {
		t.Errorf("indexer saw %d chunks, want 2", len(ix.chunks))
	}
	if rep.NewlyProcessed != 3 {
		t.Errorf("newly processed = %d, want 3", rep.NewlyProcessed)
	}
}

func TestCollectKeyword(t *testing.T) {
	store := openStore(t, t.TempDir())
	search := &fakeSearcher{results: map[string][]book.Record{"x": recs("x", 3)}}
	c := New(search, &fakeProcessor{}, store, Config{})

	rep, err := c.CollectKeyword(context.Background(), "x")
	if err != nil {
		t.Fatalf("CollectKeyword: %v", err)
	}
	if rep.NewlyProcessed != 3 || len(rep.Keywords) != 1 {
		t.Errorf("report = %+v", rep)
	}

	rep, err = c.CollectKeyword(context.Background(), "x")
	if err != nil {
		t.Fatalf("second CollectKeyword: %v", err)
	}
	if rep.NewlyProcessed != 0 {
		t.Errorf("second pass processed %d, want 0", rep.NewlyProcessed)
	}
}

func TestDefaults(t *testing.T) {
	c := New(nil, nil, nil, Config{})
	if c.config.ChunkSize != 1000 || c.config.TargetCount != 300 || c.config.FlushTimeout != 2*time.Minute {
		t.Errorf("defaults = %+v", c.config)
	}
	if len(c.Keywords()) == 0 {
		t.Error("no default keywords")
	}
}
