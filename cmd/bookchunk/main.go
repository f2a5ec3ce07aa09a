package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/efebarandurmaz/bookchunk/internal/app"
	"github.com/efebarandurmaz/bookchunk/internal/config"
	"github.com/efebarandurmaz/bookchunk/internal/keywords"
	"github.com/efebarandurmaz/bookchunk/internal/llm"
	"github.com/efebarandurmaz/bookchunk/internal/server"
	"github.com/efebarandurmaz/bookchunk/internal/similar"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
)

func main() {
	var (
		configPath string
		jsonReport bool
		keywordArg []string
		topK       int
	)

	rootCmd := &cobra.Command{
		Use:          "bookchunk",
		Short:        "Incremental, resumable book embedding collector",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/bookchunk.yaml", "Config file path")

	collectCmd := &cobra.Command{
		Use:   "collect",
		Short: "Search every keyword, embed new books and write chunk files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(configPath, keywordArg, jsonReport)
		},
	}
	collectCmd.Flags().BoolVar(&jsonReport, "json", false, "Output the run report as JSON")
	collectCmd.Flags().StringSliceVar(&keywordArg, "keyword", nil, "Override the configured keyword list (repeatable)")

	similarCmd := &cobra.Command{
		Use:   "similar <query>",
		Short: "Find stored books most similar to a free-text query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimilar(configPath, strings.Join(args, " "), topK)
		},
	}
	similarCmd.Flags().IntVar(&topK, "top-k", similar.DefaultTopK, "Number of matches to print")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the chunk store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(configPath)
		},
	}

	keywordsCmd := &cobra.Command{
		Use:   "keywords",
		Short: "List the keywords a collection run searches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			kws := cfg.Collector.Keywords
			if len(kws) == 0 {
				kws = keywords.Default()
			}
			for _, kw := range keywords.Unique(kws) {
				fmt.Println(kw)
			}
			return nil
		},
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available embedding providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available embedding providers:")
			fmt.Println()
			names := make([]string, 0, len(llm.KnownProviders))
			for name := range llm.KnownProviders {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %-10s %-34s %s\n", name, llm.KnownProviders[name], llm.DefaultEmbedModels[name])
			}
			fmt.Println("  custom     (set embedding.base_url to any OpenAI-compatible endpoint)")
			fmt.Println()
			fmt.Println("Configure in bookchunk.yaml or via environment:")
			fmt.Println("  BOOKCHUNK_EMBEDDING_PROVIDER=upstage")
			fmt.Println("  UPSTAGE_API_KEY=up_...")
			fmt.Println("  KAKAO_API_KEY=...")
		},
	}

	rootCmd.AddCommand(collectCmd, similarCmd, statsCmd, keywordsCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	app.SetupLogging(cfg.Log, os.Stderr)
	return cfg, nil
}

func runCollect(configPath string, kws []string, jsonReport bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if len(kws) > 0 {
		cfg.Collector.Keywords = kws
	}

	shutdown := server.NewShutdownHandler(nil)
	shutdown.Start()
	defer shutdown.Shutdown()
	ctx := shutdown.Context()

	tp, err := app.InitTracing(ctx, cfg, "bookchunk")
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

	if cfg.Server.Addr != "" {
		admin := a.NewAdminServer()
		shutdown.Register(server.HTTPServerShutdownHook("admin-server", admin.Shutdown))
		go func() {
			if err := admin.ListenAndServe(cfg.Server.Addr); err != nil {
				slog.Error("admin server failed", "addr", cfg.Server.Addr, "error", err)
			}
		}()
		admin.SetReady(true)
		slog.Info("admin server listening", "addr", cfg.Server.Addr)
	}

	rep, runErr := a.Collector.Run(ctx)
	if rep != nil {
		if jsonReport {
			data, err := rep.JSON()
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		} else {
			rep.PrintSummary(os.Stdout)
		}
	}
	if runErr != nil {
		return runErr
	}
	if shutdown.Interrupted() {
		slog.Warn("collection interrupted; pending books were flushed")
	}
	return nil
}

func runSimilar(configPath, query string, topK int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	matches, err := a.Searcher().Similar(ctx, query, topK)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println("No stored books to compare against.")
		return nil
	}
	for i, m := range matches {
		fmt.Printf("%2d. %.4f  %s  %s (%s)\n", i+1, m.Score, m.Book.ISBN, m.Book.Title, strings.Join(m.Book.Authors, ", "))
	}
	return nil
}

func runStats(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store, err := app.OpenStore(cfg)
	if err != nil {
		return err
	}
	stats, err := store.Stats()
	if err != nil {
		return err
	}
	next, err := store.NextChunkNumber()
	if err != nil {
		return err
	}
	out := struct {
		Dir       string `json:"dir"`
		Files     int    `json:"files"`
		Books     int    `json:"books"`
		Bytes     int64  `json:"bytes"`
		NextChunk string `json:"next_chunk"`
	}{store.Dir(), stats.Files, stats.Books, stats.Bytes, store.FileName(next)}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
