package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// DefaultShutdownTimeout bounds how long draining may take.
const DefaultShutdownTimeout = 30 * time.Second

// Hook is one shutdown step. Lower priority runs first.
type Hook struct {
	Name     string
	Priority int
	Fn       func(ctx context.Context) error
}

// Shutdown coordinates graceful teardown on SIGTERM/SIGINT or an explicit
// Trigger call. Hooks run in priority order within one shared timeout; a
// failing hook is logged and the rest still run.
type Shutdown struct {
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	hooks   []Hook
	started bool

	triggerCh   chan struct{}
	doneCh      chan struct{}
	triggerOnce sync.Once
	doneOnce    sync.Once
}

// NewShutdown creates a coordinator. logger may be nil.
func NewShutdown(timeout time.Duration, logger *slog.Logger) *Shutdown {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Shutdown{
		timeout:   timeout,
		logger:    logger,
		triggerCh: make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Register adds a hook. Conventional priorities: HTTP listeners 10 (stop
// accepting first), caches and providers 50, database drivers 90.
func (s *Shutdown) Register(name string, priority int, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, Hook{Name: name, Priority: priority, Fn: fn})
	sort.SliceStable(s.hooks, func(i, j int) bool { return s.hooks[i].Priority < s.hooks[j].Priority })
}

// Start begins listening for termination signals.
func (s *Shutdown) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info("shutdown signal received", "signal", sig.String())
		case <-s.triggerCh:
		}
		signal.Stop(sigCh)
		// Signal path closes the trigger channel too, so Triggered observers
		// fire either way.
		s.triggerOnce.Do(func() { close(s.triggerCh) })
		s.run()
	}()
}

// Trigger starts shutdown without a signal.
func (s *Shutdown) Trigger() {
	s.triggerOnce.Do(func() { close(s.triggerCh) })
}

// Triggered closes when shutdown begins. Used to flip readiness off while
// connections drain.
func (s *Shutdown) Triggered() <-chan struct{} { return s.triggerCh }

// Wait blocks until every hook has run.
func (s *Shutdown) Wait() { <-s.doneCh }

func (s *Shutdown) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	hooks := make([]Hook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, hook := range hooks {
		if err := hook.Fn(ctx); err != nil {
			s.logger.Warn("shutdown hook failed", "hook", hook.Name, "error", err)
		}
	}
	s.doneOnce.Do(func() { close(s.doneCh) })
}

// Serve runs the API on addr until shutdown completes. It wires the standard
// teardown order: readiness off, listener drained, then the caller's hooks.
func Serve(addr string, api *API, sd *Shutdown) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	sd.Register("http-listener", 10, srv.Shutdown)
	go func() {
		<-sd.Triggered()
		api.health.SetReady(false)
	}()

	sd.Start()
	api.health.SetReady(true)

	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		sd.Wait()
		return nil
	}
	return err
}
