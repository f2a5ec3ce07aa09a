package temporal

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// DefaultTaskQueue is the queue the collection workflow runs on.
const DefaultTaskQueue = "bookchunk"

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	// One keyword at a time: the chunk counter lives in the shared store.
	w := worker.New(c, taskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: 1,
	})

	w.RegisterWorkflow(CollectionWorkflow)
	w.RegisterActivity(CollectKeywordActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}
