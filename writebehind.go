package credits

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/plugin"
)

// DefaultWriteBehindInterval is used when WithWriteBehind is given a
// non-positive interval.
const DefaultWriteBehindInterval = 5 * time.Second

// writeBehind coalesces remote writes per user. Only the newest state of
// each user is written, so a burst of debits costs one remote write.
type writeBehind struct {
	remote    entitlement.BatchRepository
	batchSize int
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	plugins   *plugin.Registry

	mu      sync.Mutex
	pending map[string]*entitlement.Entitlement
	running bool

	kick     chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func newWriteBehind(
	remote entitlement.BatchRepository,
	batchSize int,
	interval, timeout time.Duration,
	logger *slog.Logger,
	plugins *plugin.Registry,
) *writeBehind {
	if interval <= 0 {
		interval = DefaultWriteBehindInterval
	}
	return &writeBehind{
		remote:    remote,
		batchSize: batchSize,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
		plugins:   plugins,
		pending:   make(map[string]*entitlement.Entitlement),
		kick:      make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
	}
}

func (w *writeBehind) start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true

	w.wg.Add(1)
	go w.run(context.WithoutCancel(ctx))
}

// stop flushes everything still pending and waits for the worker.
func (w *writeBehind) stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
}

// enqueue records e as the latest state for its user. It reports false when
// the worker is not running and the caller must write synchronously.
func (w *writeBehind) enqueue(e *entitlement.Entitlement) bool {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return false
	}
	w.pending[e.UserID] = e
	full := len(w.pending) >= w.batchSize
	w.mu.Unlock()

	if full {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
	return true
}

func (w *writeBehind) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			// Final flush
			w.flush(ctx)
			return

		case <-w.kick:
			w.flush(ctx)

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *writeBehind) take() []*entitlement.Entitlement {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 {
		return nil
	}
	batch := make([]*entitlement.Entitlement, 0, len(w.pending))
	for _, e := range w.pending {
		batch = append(batch, e)
	}
	w.pending = make(map[string]*entitlement.Entitlement, len(batch))
	return batch
}

// requeue puts back records that failed to flush unless a newer state for
// the same user arrived meanwhile.
func (w *writeBehind) requeue(batch []*entitlement.Entitlement) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range batch {
		if _, ok := w.pending[e.UserID]; !ok {
			w.pending[e.UserID] = e
		}
	}
}

func (w *writeBehind) flush(ctx context.Context) {
	batch := w.take()
	if len(batch) == 0 {
		return
	}

	start := time.Now()

	fctx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.remote.PutEntitlements(fctx, batch)
	cancel()

	if err != nil {
		w.logger.Error("failed to flush entitlement batch",
			"error", err,
			"batch_size", len(batch),
		)
		w.plugins.EmitRemoteUnavailable(ctx, "flush", "", err)
		w.requeue(batch)
		return
	}

	elapsed := time.Since(start)
	w.plugins.EmitRemoteFlushed(ctx, len(batch), elapsed)

	w.logger.Debug("flushed entitlement batch",
		"batch_size", len(batch),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}
