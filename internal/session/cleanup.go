package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultCleanupInterval is how often the expired-session sweep runs.
	DefaultCleanupInterval = 1 * time.Hour

	// DefaultRetention is how long expired sessions are kept for audit
	// before the sweep removes them.
	DefaultRetention = 30 * 24 * time.Hour
)

// CleanupService periodically deletes long-expired session records.
// Best-effort only; a failed sweep is logged and retried next tick.
type CleanupService struct {
	store     Store
	interval  time.Duration
	retention time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewCleanupService creates a cleanup service with default cadence.
func NewCleanupService(store Store) *CleanupService {
	return NewCleanupServiceWithOptions(store, DefaultCleanupInterval, DefaultRetention)
}

// NewCleanupServiceWithOptions creates a cleanup service with custom cadence.
func NewCleanupServiceWithOptions(store Store, interval, retention time.Duration) *CleanupService {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &CleanupService{
		store:     store,
		interval:  interval,
		retention: retention,
	}
}

// Start begins the periodic sweep.
func (c *CleanupService) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil // Already running
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.run(sweepCtx)

	return nil
}

// Stop gracefully stops the sweep.
func (c *CleanupService) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}

	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// IsRunning returns whether the sweep loop is active.
func (c *CleanupService) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *CleanupService) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		if c.done != nil {
			close(c.done)
		}
		c.mu.Unlock()
	}()

	logger := slog.Default().With(
		slog.String("component", "session.cleanup"),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sweep(ctx, logger)

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "Session cleanup stopping")
			return

		case <-ticker.C:
			c.sweep(ctx, logger)
		}
	}
}

func (c *CleanupService) sweep(ctx context.Context, logger *slog.Logger) {
	cutoff := time.Now().Add(-c.retention)
	removed, err := c.store.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		logger.WarnContext(ctx, "Session sweep failed",
			slog.Any("error", err),
		)
		return
	}

	if removed > 0 {
		logger.InfoContext(ctx, "Removed expired sessions",
			slog.Int("removed", removed),
		)
	}
}
