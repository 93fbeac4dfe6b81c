package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stake-plus/fitbet/src/events"
	"github.com/stake-plus/fitbet/src/notify"
	"github.com/stake-plus/fitbet/src/shared/fit"
	"github.com/stake-plus/fitbet/src/store"
)

// GenerateWindows lays out check-in windows between start and end. The first
// opens one period after start; each lasts min(windowDuration, period) and
// the last is clipped to end. A non-positive period falls back to the window
// duration.
func GenerateWindows(start, end time.Time, period, windowDuration time.Duration) []fit.CheckinWindow {
	if period <= 0 {
		period = windowDuration
	}
	if period <= 0 {
		return nil
	}
	length := windowDuration
	if length <= 0 || length > period {
		length = period
	}

	var out []fit.CheckinWindow
	n := 1
	for opens := start.Add(period); opens.Before(end); opens = opens.Add(period) {
		closes := opens.Add(length)
		if closes.After(end) {
			closes = end
		}
		out = append(out, fit.CheckinWindow{
			WindowNumber: n,
			OpensAt:      opens,
			ClosesAt:     closes,
			Status:       fit.WindowScheduled,
		})
		n++
	}
	return out
}

// OpenCheckinWindows opens every scheduled window whose open time has passed.
func (e *Engine) OpenCheckinWindows(ctx context.Context, now time.Time) error {
	due, err := e.store.ListWindows(ctx, store.WindowFilter{
		Statuses:        []fit.WindowStatus{fit.WindowScheduled},
		OpensAtOrBefore: &now,
	})
	if err != nil {
		return fmt.Errorf("engine: list due windows: %w", err)
	}
	var errs []error
	for i := range due {
		if err := e.openWindow(ctx, now, due[i].ID); err != nil {
			errs = append(errs, fmt.Errorf("engine: open window %d: %w", due[i].ID, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) openWindow(ctx context.Context, now time.Time, windowID uint64) error {
	// Reload: an earlier item in this sweep may have touched the row.
	w, err := e.store.GetWindow(ctx, windowID)
	if err != nil {
		return err
	}
	if w.Status != fit.WindowScheduled {
		return nil
	}
	c, err := e.store.GetChallenge(ctx, w.ChallengeID)
	if err != nil {
		return err
	}
	if c.Status != fit.ChallengeActive {
		e.logf("engine: window %d belongs to %s challenge %d; leaving it scheduled", w.ID, c.Status, c.ID)
		return nil
	}

	started, err := e.store.ListWindows(ctx, store.WindowFilter{ChallengeID: c.ID, OpensAtOrBefore: &now})
	if err != nil {
		return err
	}

	var successor *fit.CheckinWindow
	for i := range started {
		other := &started[i]
		if other.ID == w.ID || !other.OpensAt.After(w.OpensAt) {
			continue
		}
		if successor == nil || other.OpensAt.Before(successor.OpensAt) {
			successor = other
		}
	}
	if successor != nil && w.ClosesAt.After(successor.OpensAt) {
		w.ClosesAt = successor.OpensAt
	}

	for i := range started {
		pred := started[i]
		if pred.ID == w.ID || pred.Status != fit.WindowOpen || !pred.OpensAt.Before(w.OpensAt) {
			continue
		}
		at := w.OpensAt
		if err := e.closeWindow(ctx, now, c, &pred, closeOptions{clampTo: &at, silent: true}); err != nil {
			return fmt.Errorf("force close predecessor %d: %w", pred.ID, err)
		}
	}

	w.Status = fit.WindowOpen
	if err := e.store.SaveWindow(ctx, w); err != nil {
		return err
	}

	msg := msgWindowOpen(w)
	e.track(ctx, now, fit.NotificationGroup, c.ID, notify.GroupChat(c.ChatID), w.ID, msg)
	active, err := e.activeParticipants(ctx, c.ID)
	if err != nil {
		e.logf("engine: window %d opened but participants could not be listed: %v", w.ID, err)
	}
	for i := range active {
		p := &active[i]
		e.track(ctx, now, fit.NotificationDirect, p.ID, notify.User(p.UserID), w.ID, msg)
	}
	e.emit(ctx, events.Event{
		Type:        events.WindowOpened,
		ChallengeID: c.ID,
		At:          now,
		Detail:      map[string]string{"window": fmt.Sprint(w.WindowNumber)},
	})
	return nil
}

// SendCheckinReminders nudges participants who have not submitted when an
// open window nears its close. Each window is reminded at most once.
func (e *Engine) SendCheckinReminders(ctx context.Context, now time.Time) error {
	threshold := e.cfg.ReminderBeforeClose
	horizon := now.Add(threshold)
	due, err := e.store.ListWindows(ctx, store.WindowFilter{
		Statuses:         []fit.WindowStatus{fit.WindowOpen},
		ClosesAtOrBefore: &horizon,
		Unreminded:       true,
	})
	if err != nil {
		return fmt.Errorf("engine: list windows to remind: %w", err)
	}
	var errs []error
	for i := range due {
		if err := e.remind(ctx, now, &due[i]); err != nil {
			errs = append(errs, fmt.Errorf("engine: remind window %d: %w", due[i].ID, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) remind(ctx context.Context, now time.Time, w *fit.CheckinWindow) error {
	c, err := e.store.GetChallenge(ctx, w.ChallengeID)
	if err != nil {
		return err
	}
	missing, err := e.missingCheckins(ctx, c.ID, w.ID)
	if err != nil {
		return err
	}

	w.ReminderSentAt = timePtr(now)
	if err := e.store.SaveWindow(ctx, w); err != nil {
		return err
	}
	if w.Length() <= e.cfg.ReminderBeforeClose || len(missing) == 0 {
		return nil
	}

	e.sendText(ctx, notify.GroupChat(c.ChatID), fmt.Sprintf(
		"Check-in #%d closes %s. Still missing: %s", w.WindowNumber, formatTime(w.ClosesAt), roster(labels(missing))))
	msg := msgReminderDirect(w)
	for i := range missing {
		e.send(ctx, notify.User(missing[i].UserID), msg)
	}
	return nil
}

func (e *Engine) missingCheckins(ctx context.Context, challengeID, windowID uint64) ([]fit.Participant, error) {
	active, err := e.activeParticipants(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	submitted, err := e.submittedSet(ctx, windowID)
	if err != nil {
		return nil, err
	}
	var missing []fit.Participant
	for _, p := range active {
		if !submitted[p.ID] {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

func (e *Engine) submittedSet(ctx context.Context, windowID uint64) (map[uint64]bool, error) {
	checkins, err := e.store.ListCheckins(ctx, windowID)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]bool, len(checkins))
	for _, ck := range checkins {
		out[ck.ParticipantID] = true
	}
	return out, nil
}

// CloseCheckinWindows closes every open window whose close time has passed.
func (e *Engine) CloseCheckinWindows(ctx context.Context, now time.Time) error {
	due, err := e.store.ListWindows(ctx, store.WindowFilter{
		Statuses:         []fit.WindowStatus{fit.WindowOpen},
		ClosesAtOrBefore: &now,
	})
	if err != nil {
		return fmt.Errorf("engine: list windows to close: %w", err)
	}
	var errs []error
	for i := range due {
		w := due[i]
		c, err := e.store.GetChallenge(ctx, w.ChallengeID)
		if err != nil {
			errs = append(errs, fmt.Errorf("engine: close window %d: %w", w.ID, err))
			continue
		}
		if err := e.closeWindow(ctx, now, c, &w, closeOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("engine: close window %d: %w", w.ID, err))
		}
	}
	return errors.Join(errs...)
}

type closeOptions struct {
	// clampTo pulls the close time back when it is earlier than the scheduled close.
	clampTo *time.Time
	// silent suppresses the group roster for forced closures.
	silent bool
}

// closeWindow tallies every active participant exactly once: a submission
// counts as completed, otherwise as skipped. Exceeding the challenge's skip
// allowance disqualifies the participant for good.
func (e *Engine) closeWindow(ctx context.Context, now time.Time, c *fit.Challenge, w *fit.CheckinWindow, opts closeOptions) error {
	if w.Status != fit.WindowOpen {
		return nil
	}
	if opts.clampTo != nil && opts.clampTo.Before(w.ClosesAt) {
		w.ClosesAt = *opts.clampTo
	}

	active, err := e.activeParticipants(ctx, c.ID)
	if err != nil {
		return err
	}
	submitted, err := e.submittedSet(ctx, w.ID)
	if err != nil {
		return err
	}

	var done, skipped, disqualified, tallied []fit.Participant
	for i := range active {
		p := active[i]
		p.TotalCheckins++
		if submitted[p.ID] {
			p.CompletedCheckins++
			done = append(done, p)
		} else {
			p.SkippedCheckins++
			skipped = append(skipped, p)
			if p.SkippedCheckins > c.MaxSkips {
				p.Status = fit.ParticipantDisqualified
				disqualified = append(disqualified, p)
			}
		}
		p.PendingCheckinWindowID = nil
		p.PendingCheckinRequestedAt = nil
		tallied = append(tallied, p)
	}

	w.Status = fit.WindowClosed
	if err := e.store.CloseWindow(ctx, w, tallied); err != nil {
		if errors.Is(err, fit.ErrConflict) {
			e.logf("engine: window %d was already closed", w.ID)
			return nil
		}
		w.Status = fit.WindowOpen
		return fmt.Errorf("tally window %d: %w", w.ID, err)
	}

	e.stripWindowActions(ctx, w.ID)

	for i := range disqualified {
		p := &disqualified[i]
		e.sendText(ctx, notify.User(p.UserID), fmt.Sprintf(
			"You missed %d check-ins, more than the %d allowed, and are disqualified from the challenge.", p.SkippedCheckins, c.MaxSkips))
		e.emit(ctx, events.Event{Type: events.ParticipantDisqualified, ChallengeID: c.ID, UserID: p.UserID, At: now})
	}

	if !opts.silent {
		text := fmt.Sprintf("Check-in #%d closed.\nSubmitted: %s\nSkipped: %s", w.WindowNumber, roster(labels(done)), roster(labels(skipped)))
		if len(disqualified) > 0 {
			text += "\nDisqualified: " + roster(labels(disqualified))
		}
		e.sendText(ctx, notify.GroupChat(c.ChatID), text)
	}
	e.emit(ctx, events.Event{
		Type:        events.WindowClosed,
		ChallengeID: c.ID,
		At:          now,
		Detail: map[string]string{
			"window":    fmt.Sprint(w.WindowNumber),
			"submitted": fmt.Sprint(len(done)),
			"skipped":   fmt.Sprint(len(skipped)),
		},
	})
	return nil
}
