package server

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// ErrInterrupted is the cancellation cause set when a shutdown signal arrives.
var ErrInterrupted = errors.New("interrupted by signal")

// ShutdownHandler turns SIGINT/SIGTERM into context cancellation and runs
// cleanup hooks once the caller has finished its work.
//
// The first signal cancels Context. A second signal exits the process.
type ShutdownHandler struct {
	mu           sync.Mutex
	hooks        []ShutdownHook
	timeout      time.Duration
	signals      []os.Signal
	ctx          context.Context
	cancel       context.CancelCauseFunc
	doneCh       chan struct{}
	started      bool
	shutdownOnce sync.Once
	exit         func(code int)
}

// ShutdownHook is a function called during shutdown.
type ShutdownHook struct {
	Name     string
	Priority int // Lower priority runs first
	Fn       func(ctx context.Context) error
}

// ShutdownConfig configures the shutdown handler.
type ShutdownConfig struct {
	// Timeout for running all hooks (default: 30s)
	Timeout time.Duration
	// Signals to listen for (default: SIGTERM, SIGINT)
	Signals []os.Signal
}

// DefaultShutdownConfig returns default configuration.
func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGTERM, syscall.SIGINT},
	}
}

// NewShutdownHandler creates a new shutdown handler.
func NewShutdownHandler(config *ShutdownConfig) *ShutdownHandler {
	def := DefaultShutdownConfig()
	if config == nil {
		config = def
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if len(config.Signals) == 0 {
		config.Signals = def.Signals
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	return &ShutdownHandler{
		timeout: config.Timeout,
		signals: config.Signals,
		ctx:     ctx,
		cancel:  cancel,
		doneCh:  make(chan struct{}),
		exit:    os.Exit,
	}
}

// Context is cancelled when a shutdown signal arrives or Interrupt is called.
func (s *ShutdownHandler) Context() context.Context {
	return s.ctx
}

// RegisterHook adds a shutdown hook.
func (s *ShutdownHandler) RegisterHook(name string, priority int, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks = append(s.hooks, ShutdownHook{
		Name:     name,
		Priority: priority,
		Fn:       fn,
	})
	sort.SliceStable(s.hooks, func(i, j int) bool {
		return s.hooks[i].Priority < s.hooks[j].Priority
	})
}

// Register adds a prepared hook.
func (s *ShutdownHandler) Register(h ShutdownHook) {
	s.RegisterHook(h.Name, h.Priority, h.Fn)
}

// Start begins listening for shutdown signals.
func (s *ShutdownHandler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, s.signals...)

	go func() {
		defer signal.Stop(sigCh)
		interrupted := false
		for {
			select {
			case sig := <-sigCh:
				if interrupted {
					slog.Error("second signal received, exiting", "signal", sig.String())
					s.exit(130)
					return
				}
				interrupted = true
				slog.Warn("signal received, finishing current work", "signal", sig.String())
				s.cancel(ErrInterrupted)
			case <-s.doneCh:
				return
			}
		}
	}()
}

// Interrupt cancels Context as if a signal had arrived.
func (s *ShutdownHandler) Interrupt() {
	s.cancel(ErrInterrupted)
}

// Interrupted reports whether Context was cancelled by a signal or Interrupt.
func (s *ShutdownHandler) Interrupted() bool {
	return errors.Is(context.Cause(s.ctx), ErrInterrupted)
}

// Shutdown cancels Context, runs every hook in priority order and returns
// when they are done. Later calls are no-ops.
func (s *ShutdownHandler) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.cancel(context.Canceled)

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		s.mu.Lock()
		hooks := make([]ShutdownHook, len(s.hooks))
		copy(hooks, s.hooks)
		s.mu.Unlock()

		for _, hook := range hooks {
			start := time.Now()
			if err := hook.Fn(ctx); err != nil {
				slog.Warn("shutdown hook failed", "hook", hook.Name, "error", err)
				continue
			}
			slog.Debug("shutdown hook done", "hook", hook.Name, "duration", time.Since(start))
		}
		close(s.doneCh)
	})
}

// Wait blocks until shutdown is complete.
func (s *ShutdownHandler) Wait() {
	<-s.doneCh
}

// WaitWithTimeout blocks until shutdown is complete or timeout.
func (s *ShutdownHandler) WaitWithTimeout(timeout time.Duration) bool {
	select {
	case <-s.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done returns a channel that closes when shutdown is complete.
func (s *ShutdownHandler) Done() <-chan struct{} {
	return s.doneCh
}

// Common shutdown hooks

// HTTPServerShutdownHook creates a hook for HTTP server shutdown.
func HTTPServerShutdownHook(name string, shutdownFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{
		Name:     name,
		Priority: 10,
		Fn:       shutdownFn,
	}
}

// TemporalWorkerShutdownHook creates a hook for Temporal worker shutdown.
func TemporalWorkerShutdownHook(stopFn func()) ShutdownHook {
	return ShutdownHook{
		Name:     "temporal-worker",
		Priority: 20,
		Fn: func(ctx context.Context) error {
			stopFn()
			return nil
		},
	}
}

// RepositoryShutdownHook creates a hook closing a storage backend
// (Qdrant, Neo4j, the Temporal client).
func RepositoryShutdownHook(name string, closeFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{
		Name:     name,
		Priority: 70,
		Fn:       closeFn,
	}
}

// TracingShutdownHook creates a hook for tracing provider shutdown.
func TracingShutdownHook(shutdownFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{
		Name:     "tracing",
		Priority: 80,
		Fn:       shutdownFn,
	}
}
