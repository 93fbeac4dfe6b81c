package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sweep is one step of a tick.
type Sweep struct {
	Name string
	Run  func(ctx context.Context, now time.Time) error
}

// Sweeps lists the tick steps in execution order.
func (e *Engine) Sweeps() []Sweep {
	return []Sweep{
		{"onboarding_timeouts", e.HandleOnboardingTimeouts},
		{"election_timeouts", e.FinalizeOverdueElections},
		{"open_windows", e.OpenCheckinWindows},
		{"reminders", e.SendCheckinReminders},
		{"close_windows", e.CloseCheckinWindows},
		{"finalize_challenges", e.FinalizeEndedChallenges},
	}
}

// Tick runs every sweep once, in order. A failing or panicking sweep is
// logged and the next one still runs; the combined failures are returned.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	var errs []error
	for _, s := range e.Sweeps() {
		if err := e.runSweep(ctx, now, s); err != nil {
			e.logf("engine: sweep %s: %v", s.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) runSweep(ctx context.Context, now time.Time, s Sweep) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Run(ctx, now)
}
