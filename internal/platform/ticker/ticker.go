package ticker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Ticker runs tickFn on a fixed interval. At most one tick is in flight at a
// time: a tick that comes due while the previous one is still running is skipped.
type Ticker struct {
	name     string
	interval time.Duration
	tickFn   func(context.Context)
	logger   *slog.Logger

	inFlight sync.Mutex
}

func New(name string, interval time.Duration, tickFn func(context.Context), logger *slog.Logger) (*Ticker, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	return &Ticker{
		name:     name,
		interval: interval,
		tickFn:   tickFn,
		logger:   logger.With("ticker", name),
	}, nil
}

// Run ticks immediately and then every interval until ctx is done.
// It always returns ctx.Err().
func (t *Ticker) Run(ctx context.Context) error {
	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	t.logger.Info("ticker started", "interval", t.interval.String())
	t.TryRun(ctx)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("ticker stopping")
			return ctx.Err()
		case <-tk.C:
			t.TryRun(ctx)
		}
	}
}

// TryRun executes one tick unless another is already running.
// It reports whether the tick ran.
func (t *Ticker) TryRun(ctx context.Context) bool {
	if !t.inFlight.TryLock() {
		t.logger.Debug("tick skipped, previous tick still running")
		return false
	}
	defer t.inFlight.Unlock()
	t.safeTick(ctx)
	return true
}

func (t *Ticker) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("tick panic recovered", "panic", r)
		}
	}()

	start := time.Now()
	t.tickFn(ctx)
	t.logger.Debug("tick completed", "duration_ms", time.Since(start).Milliseconds())
}
