package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/efebarandurmaz/bookchunk/internal/app"
	"github.com/efebarandurmaz/bookchunk/internal/config"
	"github.com/efebarandurmaz/bookchunk/internal/server"
	temporalmod "github.com/efebarandurmaz/bookchunk/internal/temporal"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"
	_ "go.uber.org/automaxprocs"
)

func main() {
	var (
		configPath string
		submit     bool
	)

	rootCmd := &cobra.Command{
		Use:          "bookchunk-worker",
		Short:        "Temporal worker running one collection activity per keyword",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, submit)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "configs/bookchunk.yaml", "Config file path")
	rootCmd.Flags().BoolVar(&submit, "submit", false, "Start a collection workflow and wait for its result")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string, submit bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	app.SetupLogging(cfg.Log, os.Stderr)

	shutdown := server.NewShutdownHandler(nil)
	shutdown.Start()
	defer shutdown.Shutdown()
	ctx := shutdown.Context()

	tp, err := app.InitTracing(ctx, cfg, "bookchunk-worker")
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	shutdown.Register(server.TracingShutdownHook(tp.Shutdown))

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	for _, h := range a.Hooks() {
		shutdown.Register(h)
	}
	temporalmod.SetDependencies(&temporalmod.Dependencies{Collector: a.Collector})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	taskQueue := cfg.Temporal.TaskQueue
	if taskQueue == "" {
		taskQueue = temporalmod.DefaultTaskQueue
	}
	w, err := temporalmod.StartWorker(c, taskQueue)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	shutdown.Register(server.TemporalWorkerShutdownHook(w.Stop))
	slog.Info("worker started", "task_queue", taskQueue, "namespace", cfg.Temporal.Namespace)

	if !submit {
		<-ctx.Done()
		return nil
	}
	return submitCollection(ctx, c, taskQueue, cfg.Collector.Keywords)
}

func submitCollection(ctx context.Context, c temporalclient.Client, taskQueue string, keywords []string) error {
	opts := temporalclient.StartWorkflowOptions{
		ID:        "bookchunk-collection-" + uuid.NewString(),
		TaskQueue: taskQueue,
	}
	we, err := c.ExecuteWorkflow(ctx, opts, temporalmod.CollectionWorkflow, temporalmod.CollectionInput{Keywords: keywords})
	if err != nil {
		return fmt.Errorf("starting workflow: %w", err)
	}
	slog.Info("collection workflow started", "workflow_id", we.GetID(), "run_id", we.GetRunID())

	var out temporalmod.CollectionOutput
	if err := we.Get(ctx, &out); err != nil {
		return fmt.Errorf("workflow %s: %w", we.GetID(), err)
	}
	fmt.Printf("Keywords: %d  New: %d  Total: %d  Chunk files: %d  Errors: %d\n",
		len(out.Keywords), out.NewlyProcessed, out.TotalProcessed, out.ChunkFiles, len(out.Errors))
	return nil
}
