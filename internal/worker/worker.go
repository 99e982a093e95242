// Package worker runs the background maintenance loops.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper is the slice of the payment service the expiry loop needs.
type Sweeper interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// ExpiryWorker periodically transitions pending payments to expired once
// their checkout window has closed. The provider sends
// checkout.session.expired webhooks for the same condition; the sweep covers
// events that were missed or never delivered.
type ExpiryWorker struct {
	sweeper      Sweeper
	pollInterval time.Duration
	stop         chan struct{}
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// Config holds worker configuration.
type Config struct {
	PollInterval time.Duration
}

// New creates a new expiry worker.
func New(sweeper Sweeper, cfg Config, logger *slog.Logger) *ExpiryWorker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpiryWorker{
		sweeper:      sweeper,
		pollInterval: cfg.PollInterval,
		stop:         make(chan struct{}),
		logger:       logger.With("component", "expiry-worker"),
	}
}

// Start begins the sweep loop.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.logger.Info("starting", "poll_interval", w.pollInterval)

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop gracefully stops the worker.
func (w *ExpiryWorker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *ExpiryWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep runs one expiry pass. The service logs how many records moved.
func (w *ExpiryWorker) sweep(ctx context.Context) {
	if _, err := w.sweeper.ExpireStale(ctx); err != nil {
		w.logger.Error("failed to expire stale payments", "error", err)
	}
}
