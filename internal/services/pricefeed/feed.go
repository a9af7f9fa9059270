package pricefeed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mocktrader/internal/domain"
)

const defaultTickEvery = time.Second

// Source loads the full ordered snapshot sequence from an external store.
// It is re-read on every rotation so the backing file can be swapped at
// runtime without restarting the service.
type Source interface {
	Load() ([]domain.PriceSnapshot, error)
}

// Feed owns the snapshot sequence and the rotation cursor. A background
// goroutine (Run) advances the cursor once per rotation interval; any number
// of concurrent readers observe a consistent cursor/sequence pair through
// Current.
type Feed struct {
	source   Source
	interval time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	snapshots []domain.PriceSnapshot
	cursor    int
	rotatedAt time.Time
}

// New creates a feed rotating every interval. The feed starts empty; call
// Prime before Run to load the initial sequence.
func New(source Source, interval time.Duration, logger *zap.Logger) *Feed {
	return &Feed{
		source:   source,
		interval: interval,
		logger:   logger,
	}
}

// Prime performs the initial load so the feed serves prices before the
// first rotation. The cursor stays at zero.
func (f *Feed) Prime() error {
	snapshots, err := f.source.Load()
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = snapshots
	f.cursor = 0
	f.rotatedAt = time.Now()
	return nil
}

// Current returns the snapshot under the cursor and the time of the last
// rotation. ok is false when the feed has no data; no price is ever
// fabricated for an empty feed.
func (f *Feed) Current() (domain.PriceSnapshot, time.Time, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.snapshots) == 0 {
		return nil, f.rotatedAt, false
	}
	return f.snapshots[f.cursor].Clone(), f.rotatedAt, true
}

// Run drives rotation until ctx is cancelled. It ticks every second and
// rotates once the configured interval has elapsed, independent of any
// request traffic.
func (f *Feed) Run(ctx context.Context) error {
	ticker := time.NewTicker(defaultTickEvery)
	defer ticker.Stop()

	f.logger.Info("price feed started", zap.Duration("rotation_interval", f.interval))

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("price feed stopped")
			return ctx.Err()
		case now := <-ticker.C:
			f.tick(now)
		}
	}
}

// tick rotates the feed when the interval since the last rotation has
// elapsed. The sequence is reloaded from the source on every rotation; a
// failed or empty reload keeps the previous sequence so readers never lose
// data mid-flight. Reload I/O happens outside the lock, readers observe
// either the pre- or post-rotation state in full.
func (f *Feed) tick(now time.Time) {
	f.mu.RLock()
	last := f.rotatedAt
	f.mu.RUnlock()

	if now.Sub(last) < f.interval {
		return
	}

	snapshots, err := f.source.Load()

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case err != nil:
		f.logger.Warn("price reload failed, keeping previous snapshots", zap.Error(err))
	case len(snapshots) == 0:
		f.logger.Warn("price source returned no snapshots, keeping previous state")
	default:
		f.snapshots = snapshots
	}

	if n := len(f.snapshots); n > 0 {
		f.cursor = (f.cursor + 1) % n
	} else {
		f.cursor = 0
	}
	f.rotatedAt = now

	f.logger.Debug("price feed rotated",
		zap.Int("cursor", f.cursor),
		zap.Int("snapshots", len(f.snapshots)))
}
