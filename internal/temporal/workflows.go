package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/bookchunk/internal/book"
	"github.com/efebarandurmaz/bookchunk/internal/keywords"
)

// CollectionInput holds the workflow parameters.
type CollectionInput struct {
	Keywords []string
}

// CollectionOutput aggregates the per-keyword results.
type CollectionOutput struct {
	Keywords       []KeywordResult
	Tally          book.Tally
	NewlyProcessed int
	TotalProcessed int
	ChunkFiles     int
	Errors         []string
}

// CollectionWorkflow collects each unique keyword in order, one activity at a time.
func CollectionWorkflow(ctx workflow.Context, input CollectionInput) (*CollectionOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	kws := keywords.Unique(input.Keywords)
	if len(kws) == 0 {
		kws = keywords.Unique(keywords.Default())
	}

	out := &CollectionOutput{}
	for i, kw := range kws {
		var res KeywordResult
		if err := workflow.ExecuteActivity(ctx, CollectKeywordActivity, kw).Get(ctx, &res); err != nil {
			return out, fmt.Errorf("keyword %q: %w", kw, err)
		}
		logger.Info("keyword collected", "keyword", kw, "index", i+1, "of", len(kws), "processed", res.Processed)

		out.Keywords = append(out.Keywords, res)
		out.Tally.Merge(res.Tally)
		out.NewlyProcessed += res.Tally.Success
		out.TotalProcessed = res.TotalProcessed
		out.ChunkFiles = res.ChunkFiles
		out.Errors = append(out.Errors, res.Errors...)
	}
	return out, nil
}
