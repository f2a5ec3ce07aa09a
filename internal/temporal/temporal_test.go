package temporal

import (
	"context"
	"errors"
	"testing"

	"go.temporal.io/sdk/testsuite"

	"github.com/efebarandurmaz/bookchunk/internal/book"
	"github.com/efebarandurmaz/bookchunk/internal/report"
)

type fakeCollector struct {
	calls  []string
	failOn string
	total  int
}

func (f *fakeCollector) CollectKeyword(ctx context.Context, keyword string) (*report.Run, error) {
	f.calls = append(f.calls, keyword)
	if keyword == f.failOn {
		return nil, errors.New("catalog unavailable")
	}
	f.total += 2
	rep := report.New()
	rep.AddKeyword(report.KeywordStats{Keyword: keyword, Fetched: 3, New: 2, Processed: 2})
	rep.AddTally(book.Tally{Success: 2, Skip: 1})
	rep.Finish(f.total, f.total/2, false)
	return rep, nil
}

func TestSetDependencies(t *testing.T) {
	fc := &fakeCollector{}
	SetDependencies(&Dependencies{Collector: fc})
	if deps == nil || deps.Collector != fc {
		t.Fatal("SetDependencies did not set collector")
	}
}

func TestCollectKeywordActivity(t *testing.T) {
	SetDependencies(&Dependencies{Collector: &fakeCollector{}})

	res, err := CollectKeywordActivity(context.Background(), "혁신")
	if err != nil {
		t.Fatalf("CollectKeywordActivity: %v", err)
	}
	if res.Keyword != "혁신" || res.Fetched != 3 || res.New != 2 || res.Processed != 2 {
		t.Errorf("result = %+v", res)
	}
	if res.Tally.Success != 2 || res.Tally.Skip != 1 {
		t.Errorf("tally = %+v", res.Tally)
	}
}

func TestCollectKeywordActivity_NoDependencies(t *testing.T) {
	SetDependencies(nil)
	if _, err := CollectKeywordActivity(context.Background(), "x"); err == nil {
		t.Error("expected error without dependencies")
	}
}

func TestCollectionWorkflow(t *testing.T) {
	fc := &fakeCollector{}
	SetDependencies(&Dependencies{Collector: fc})

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(CollectKeywordActivity)

	env.ExecuteWorkflow(CollectionWorkflow, CollectionInput{Keywords: []string{"a", "b", "a", " "}})
	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}

	var out CollectionOutput
	if err := env.GetWorkflowResult(&out); err != nil {
		t.Fatalf("GetWorkflowResult: %v", err)
	}
	if len(fc.calls) != 2 || fc.calls[0] != "a" || fc.calls[1] != "b" {
		t.Errorf("calls = %v, want [a b]", fc.calls)
	}
	if out.NewlyProcessed != 4 || out.TotalProcessed != 4 || out.ChunkFiles != 2 {
		t.Errorf("output = %+v", out)
	}
}

func TestCollectionWorkflow_ActivityFailure(t *testing.T) {
	SetDependencies(&Dependencies{Collector: &fakeCollector{failOn: "b"}})

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(CollectKeywordActivity)

	env.ExecuteWorkflow(CollectionWorkflow, CollectionInput{Keywords: []string{"a", "b", "c"}})
	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if env.GetWorkflowError() == nil {
		t.Error("workflow error = nil, want keyword failure")
	}
}
