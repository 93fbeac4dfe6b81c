// Package scheduler drives the engine's periodic sweeps.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stake-plus/fitbet/src/config"
	"github.com/stake-plus/fitbet/src/data"
	"github.com/stake-plus/fitbet/src/modules/core"
)

var _ core.Module = (*Module)(nil)

// Ticker runs one pass of every sweep.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) error
}

// Locker guards ticks across processes. data.Lease satisfies it.
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Report describes one tick. Skipped is set when another process holds the
// lease.
type Report struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Skipped   bool          `json:"skipped"`
	Err       string        `json:"error,omitempty"`
}

// Module owns the tick loop. Manual ticks through RunNow are serialised with
// the loop so two ticks never overlap.
type Module struct {
	cfg    config.SchedulerConfig
	ticker Ticker
	lock   Locker
	now    func() time.Time

	mu     sync.Mutex
	last   Report
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes a Module.
type Option func(*Module)

// WithLocker requires the lease before every tick.
func WithLocker(l Locker) Option { return func(m *Module) { m.lock = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(m *Module) { m.now = now } }

// New builds the scheduler around t.
func New(cfg config.SchedulerConfig, t Ticker, opts ...Option) *Module {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	m := &Module{
		cfg:    cfg,
		ticker: t,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements core.Module.
func (m *Module) Name() string { return "scheduler" }

// Start launches the loop. The first tick runs after cfg.FirstTick.
func (m *Module) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	log.Printf("scheduler: ticking every %s (first tick in %s)", m.cfg.Interval, m.cfg.FirstTick)
	go m.loop(runCtx)
	return nil
}

// Stop ends the loop and gives the lease back.
func (m *Module) Stop(ctx context.Context) {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	if m.lock != nil {
		if err := m.lock.Release(ctx); err != nil {
			log.Printf("scheduler: release lease: %v", err)
		}
	}
}

func (m *Module) loop(ctx context.Context) {
	defer close(m.done)

	first := time.NewTimer(m.cfg.FirstTick)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return
	case <-first.C:
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if rep := m.RunNow(ctx); rep.Err != "" {
			log.Printf("scheduler: tick %s: %s", rep.ID, rep.Err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunNow ticks immediately, waiting for any tick already in progress.
func (m *Module) RunNow(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	rep := Report{ID: uuid.NewString(), StartedAt: m.now()}
	if m.lock != nil {
		if err := m.lock.Acquire(ctx); err != nil {
			if errors.Is(err, data.ErrLeaseHeld) {
				rep.Skipped = true
			} else {
				rep.Err = "acquire lease: " + err.Error()
			}
			m.last = rep
			return rep
		}
	}

	if err := m.ticker.Tick(ctx, rep.StartedAt); err != nil {
		rep.Err = err.Error()
	}
	rep.Elapsed = m.now().Sub(rep.StartedAt)
	m.last = rep
	return rep
}

// Last returns the most recent tick report.
func (m *Module) Last() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
