package service

import (
	"context"
	"sync"
	"time"

	"github.com/GoPolymarket/reqlog/internal/pkg/logger"
)

// RetentionWorker periodically purges records older than the retention window.
type RetentionWorker struct {
	recorder  *RecorderService
	olderThan time.Duration
	interval  time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewRetentionWorker(recorder *RecorderService, olderThan, interval time.Duration) *RetentionWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionWorker{
		recorder:  recorder,
		olderThan: olderThan,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (w *RetentionWorker) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *RetentionWorker) loop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				logger.LogError(ctx, err, "request record cleanup failed")
			}
		}
	}
}

// RunOnce purges immediately. A zero retention window disables purging.
func (w *RetentionWorker) RunOnce(ctx context.Context) (int64, error) {
	if w.olderThan <= 0 {
		return 0, nil
	}
	removed, err := w.recorder.Purge(ctx, w.olderThan)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logger.Info("purged request records", "count", removed, "older_than", w.olderThan.String())
	}
	return removed, nil
}

// Stop ends the loop and waits for it. Only valid after Start.
func (w *RetentionWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	<-w.done
}
