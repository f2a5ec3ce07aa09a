package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/efebarandurmaz/bookchunk/internal/book"
)

func TestRunLifecycle(t *testing.T) {
	r := New()
	r.ExistingBooks = 5
	r.AddKeyword(KeywordStats{Keyword: "전략", Fetched: 10, New: 4, Processed: 3})
	r.AddTally(book.Tally{Success: 3, Skip: 1})
	r.ChunkSaved()
	r.AddError(errors.New("boom"))
	r.AddError(nil)
	r.Finish(8, 2, true)

	if r.NewlyProcessed != 3 || r.TotalProcessed != 8 || r.ChunkFiles != 2 {
		t.Errorf("unexpected totals: %+v", r)
	}
	if !r.Interrupted {
		t.Error("Interrupted = false, want true")
	}
	if len(r.Errors) != 1 {
		t.Errorf("errors = %v, want 1", r.Errors)
	}
	if r.FinishedAt.Before(r.StartedAt) {
		t.Error("FinishedAt before StartedAt")
	}
}

func TestPrintSummary(t *testing.T) {
	r := New()
	r.AddKeyword(KeywordStats{Keyword: "혁신", Fetched: 2, New: 2, Processed: 2})
	r.Finish(2, 1, false)

	var buf bytes.Buffer
	r.PrintSummary(&buf)
	out := buf.String()
	for _, want := range []string{"COMPLETED", "혁신", "Files:        1"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestJSON(t *testing.T) {
	r := New()
	r.AddTally(book.Tally{Success: 1, Timeout: 2})
	r.Finish(1, 1, false)

	data, err := r.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	tally := decoded["tally"].(map[string]any)
	if tally["timeout"].(float64) != 2 {
		t.Errorf("tally.timeout = %v, want 2", tally["timeout"])
	}
}

func TestMerge(t *testing.T) {
	a := New()
	a.AddTally(book.Tally{Success: 2})
	a.Finish(10, 3, false)

	b := New()
	b.AddTally(book.Tally{Success: 1, Skip: 1})
	b.ChunkSaved()
	b.Finish(11, 4, true)

	a.Merge(b)
	if a.NewlyProcessed != 3 || a.Tally.Skip != 1 || a.ChunksWritten != 1 {
		t.Errorf("merged counters wrong: %+v", a)
	}
	if a.TotalProcessed != 11 || a.ChunkFiles != 4 || !a.Interrupted {
		t.Errorf("merged totals wrong: %+v", a)
	}
}
