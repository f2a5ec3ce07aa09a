// Package report accumulates statistics for a collector run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/efebarandurmaz/bookchunk/internal/book"
)

// Run collects statistics for a full collector run.
type Run struct {
	mu sync.Mutex

	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at,omitempty"`
	Duration       time.Duration  `json:"duration_ms,omitempty"`
	Keywords       []KeywordStats `json:"keywords"`
	Tally          book.Tally     `json:"tally"`
	ExistingBooks  int            `json:"existing_books"`
	NewlyProcessed int            `json:"newly_processed"`
	TotalProcessed int            `json:"total_processed"`
	ChunksWritten  int            `json:"chunks_written"`
	ChunkFiles     int            `json:"chunk_files"`
	Interrupted    bool           `json:"interrupted"`
	Errors         []string       `json:"errors,omitempty"`
}

// KeywordStats describes one keyword pass.
type KeywordStats struct {
	Keyword   string        `json:"keyword"`
	Fetched   int           `json:"fetched"`
	New       int           `json:"new"`
	Processed int           `json:"processed"`
	Duration  time.Duration `json:"duration_ms"`
}

// New starts tracking a run.
func New() *Run {
	return &Run{StartedAt: time.Now()}
}

// AddKeyword records a finished keyword pass.
func (r *Run) AddKeyword(ks KeywordStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Keywords = append(r.Keywords, ks)
}

// AddTally merges a processing tally into the run totals.
func (r *Run) AddTally(t book.Tally) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tally.Merge(t)
	r.NewlyProcessed += t.Success
}

// ChunkSaved counts a chunk file written during this run.
func (r *Run) ChunkSaved() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ChunksWritten++
}

// AddError appends an error message.
func (r *Run) AddError(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err.Error())
}

// Finish marks the run complete with the final store totals.
func (r *Run) Finish(totalProcessed, chunkFiles int, interrupted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	r.TotalProcessed = totalProcessed
	r.ChunkFiles = chunkFiles
	r.Interrupted = interrupted
}

// Merge folds another run's counters into r. Used to aggregate
// per-keyword activity results in durable mode.
func (r *Run) Merge(other *Run) {
	if other == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Keywords = append(r.Keywords, other.Keywords...)
	r.Tally.Merge(other.Tally)
	r.NewlyProcessed += other.NewlyProcessed
	r.ChunksWritten += other.ChunksWritten
	r.Errors = append(r.Errors, other.Errors...)
	r.Interrupted = r.Interrupted || other.Interrupted
	if other.TotalProcessed > r.TotalProcessed {
		r.TotalProcessed = other.TotalProcessed
	}
	if other.ChunkFiles > r.ChunkFiles {
		r.ChunkFiles = other.ChunkFiles
	}
}

// PrintSummary writes a human-readable summary.
func (r *Run) PrintSummary(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := "COMPLETED"
	if r.Interrupted {
		status = "INTERRUPTED"
	}
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║        BOOKCHUNK COLLECTION RUN      ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Status:      %-23s║\n", status)
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ BOOKS\n")
	fmt.Fprintf(w, "║   Existing:     %d\n", r.ExistingBooks)
	fmt.Fprintf(w, "║   New:          %d\n", r.NewlyProcessed)
	fmt.Fprintf(w, "║   Total:        %d\n", r.TotalProcessed)
	fmt.Fprintf(w, "║   Skipped:      %d\n", r.Tally.Skip)
	fmt.Fprintf(w, "║   Timed out:    %d\n", r.Tally.Timeout)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ CHUNKS\n")
	fmt.Fprintf(w, "║   Written:      %d\n", r.ChunksWritten)
	fmt.Fprintf(w, "║   Files:        %d\n", r.ChunkFiles)
	if len(r.Keywords) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ KEYWORDS\n")
		for _, k := range r.Keywords {
			fmt.Fprintf(w, "║   %-10s fetched %4d  new %4d  done %4d  %s\n",
				k.Keyword, k.Fetched, k.New, k.Processed, k.Duration.Round(time.Millisecond))
		}
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the report as formatted JSON.
func (r *Run) JSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.MarshalIndent(r, "", "  ")
}
