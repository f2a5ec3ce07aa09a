package temporal

import (
	"context"
	"errors"

	"github.com/efebarandurmaz/bookchunk/internal/book"
	"github.com/efebarandurmaz/bookchunk/internal/report"
)

// KeywordResult is the serializable outcome of one keyword pass.
type KeywordResult struct {
	Keyword        string
	Fetched        int
	New            int
	Processed      int
	Tally          book.Tally
	TotalProcessed int
	ChunkFiles     int
	Interrupted    bool
	Errors         []string
}

// KeywordCollector runs a single keyword pass. *collector.Collector satisfies it.
type KeywordCollector interface {
	CollectKeyword(ctx context.Context, keyword string) (*report.Run, error)
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Collector KeywordCollector
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// CollectKeywordActivity runs one keyword pass against the shared chunk store.
func CollectKeywordActivity(ctx context.Context, keyword string) (KeywordResult, error) {
	if deps == nil || deps.Collector == nil {
		return KeywordResult{}, errors.New("collector dependencies not set")
	}
	rep, err := deps.Collector.CollectKeyword(ctx, keyword)
	if err != nil {
		return KeywordResult{}, err
	}
	return resultFromReport(keyword, rep), nil
}

func resultFromReport(keyword string, rep *report.Run) KeywordResult {
	res := KeywordResult{
		Keyword:        keyword,
		Tally:          rep.Tally,
		TotalProcessed: rep.TotalProcessed,
		ChunkFiles:     rep.ChunkFiles,
		Interrupted:    rep.Interrupted,
		Errors:         rep.Errors,
	}
	for _, ks := range rep.Keywords {
		res.Fetched += ks.Fetched
		res.New += ks.New
		res.Processed += ks.Processed
	}
	return res
}
