package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Start refetches once immediately and then on every poll interval until
// ctx is done or Close is called. A tick is skipped while another refetch is
// still in flight. Calling Start more than once has no effect.
func (r *Repository) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			cancel()
			return
		}
		r.cancel = cancel
		r.mu.Unlock()

		r.wg.Add(1)
		go r.pollLoop(ctx)
	})
}

func (r *Repository) pollLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("poller started", zap.Duration("interval", r.interval))
	r.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("poller stopped")
			return
		case <-ticker.C:
			r.pollOnce(ctx)
		}
	}
}

// pollOnce launches a refetch unless one is already running. The fetch is
// not cancelled by Close; its result is discarded instead.
func (r *Repository) pollOnce(ctx context.Context) {
	if r.inFlight.Load() > 0 {
		r.metrics.RecordPollSkipped()
		r.logger.Debug("poll skipped, refetch in flight")
		return
	}
	r.inFlight.Add(1)

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
	go func() {
		defer cancel()
		defer r.inFlight.Add(-1)
		if err := r.Refetch(fetchCtx); err != nil && !IsAuthError(err) {
			r.logger.Debug("poll refetch failed", zap.Error(err))
		}
	}()
}

// Close stops polling and waits for the poll loop to exit. Afterwards every
// write to the collection is a no-op. In-flight fetches settle silently.
func (r *Repository) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		cancel := r.cancel
		r.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		r.wg.Wait()
	})
}

// Closed reports whether Close has been called.
func (r *Repository) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
