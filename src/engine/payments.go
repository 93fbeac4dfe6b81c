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

// OnMarkPaid records that the participant transferred their stake. The bank
// holder's own payment is confirmed on the spot.
func (e *Engine) OnMarkPaid(ctx context.Context, now time.Time, participantID uint64, actorID int64) error {
	p, err := e.getParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	if p.UserID != actorID {
		return fit.Preconditionf("only the participant can mark their own payment")
	}
	if p.Status != fit.ParticipantPendingPay {
		return fit.Preconditionf("payment cannot be marked in status %s", p.Status)
	}
	c, err := e.getChallenge(ctx, p.ChallengeID)
	if err != nil {
		return err
	}
	if !c.Status.PreActive() {
		return fit.Preconditionf("this challenge is not collecting payments")
	}

	if c.IsBankHolder(actorID) {
		if err := e.confirmPayment(ctx, now, c, p, actorID); err != nil {
			return err
		}
		_, err := e.maybeActivate(ctx, now, c.ID)
		return err
	}

	pay := &fit.Payment{ParticipantID: p.ID, Status: fit.PaymentMarkedPaid, MarkedPaidAt: timePtr(now)}
	if err := e.store.UpsertPayment(ctx, pay); err != nil {
		return fit.Collaborator("mark payment", err)
	}
	p.Status = fit.ParticipantPaymentMarked
	if err := e.store.SaveParticipant(ctx, p); err != nil {
		return fit.Collaborator("save participant", err)
	}

	if c.BankHolderID != nil {
		e.send(ctx, notify.User(*c.BankHolderID), msgConfirmRequest(p, c))
		e.sendText(ctx, notify.User(p.UserID), "Thanks! The bank holder has been asked to confirm your payment.")
	} else {
		e.sendText(ctx, notify.User(p.UserID), "Thanks! Your payment will be confirmed once the bank holder is elected.")
	}
	return nil
}

// OnConfirmPayment is the bank holder acknowledging a marked payment.
func (e *Engine) OnConfirmPayment(ctx context.Context, now time.Time, participantID uint64, actorID int64) error {
	p, err := e.getParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	c, err := e.getChallenge(ctx, p.ChallengeID)
	if err != nil {
		return err
	}
	if !c.IsBankHolder(actorID) {
		return fit.Preconditionf("only the bank holder can confirm payments")
	}
	if p.Status != fit.ParticipantPaymentMarked {
		return fit.Preconditionf("%s has not marked their payment", p.Label())
	}
	if err := e.confirmPayment(ctx, now, c, p, actorID); err != nil {
		return err
	}
	_, err = e.maybeActivate(ctx, now, c.ID)
	return err
}

func (e *Engine) confirmPayment(ctx context.Context, now time.Time, c *fit.Challenge, p *fit.Participant, confirmedBy int64) error {
	pay, err := e.store.GetPayment(ctx, p.ID)
	if err != nil && !errors.Is(err, fit.ErrNotFound) {
		return fit.Collaborator("load payment", err)
	}
	if pay == nil {
		pay = &fit.Payment{ParticipantID: p.ID}
	}
	if pay.MarkedPaidAt == nil {
		pay.MarkedPaidAt = timePtr(now)
	}
	pay.Status = fit.PaymentConfirmed
	pay.ConfirmedAt = timePtr(now)
	pay.ConfirmedBy = int64Ptr(confirmedBy)
	if err := e.store.UpsertPayment(ctx, pay); err != nil {
		return fit.Collaborator("confirm payment", err)
	}
	p.Status = fit.ParticipantActive
	if err := e.store.SaveParticipant(ctx, p); err != nil {
		return fit.Collaborator("save participant", err)
	}

	e.sendText(ctx, notify.User(p.UserID), "Your payment is confirmed. You are in!")
	e.sendText(ctx, notify.GroupChat(c.ChatID), fmt.Sprintf("Payment from %s confirmed.", p.Label()))
	e.emit(ctx, events.Event{Type: events.PaymentConfirmed, ChallengeID: c.ID, UserID: p.UserID, At: now})
	return nil
}

// maybeActivate starts the challenge when nobody is left in a pre-payment
// state and at least one participant is active.
func (e *Engine) maybeActivate(ctx context.Context, now time.Time, challengeID uint64) (bool, error) {
	c, err := e.getChallenge(ctx, challengeID)
	if err != nil {
		return false, err
	}
	if !c.Status.PreActive() {
		return false, nil
	}
	blocking, err := e.store.CountParticipants(ctx, store.ParticipantFilter{ChallengeID: c.ID, Statuses: fit.BlockingStatuses})
	if err != nil {
		return false, fit.Collaborator("count pending participants", err)
	}
	if blocking > 0 {
		return false, nil
	}
	active, err := e.store.CountParticipants(ctx, store.ParticipantFilter{
		ChallengeID: c.ID,
		Statuses:    []fit.ParticipantStatus{fit.ParticipantActive},
	})
	if err != nil {
		return false, fit.Collaborator("count active participants", err)
	}
	if active == 0 {
		return false, nil
	}

	unit := c.DurationUnit
	if unit == "" {
		unit = e.cfg.DurationUnit
	}
	started := now
	ends := unit.Add(started, c.Duration)

	windows := GenerateWindows(started, ends, e.cfg.CheckinPeriod, e.cfg.WindowDuration)
	if err := e.store.ReplaceWindows(ctx, c.ID, windows); err != nil {
		return false, fit.Collaborator("generate windows", err)
	}

	c.DurationUnit = unit
	c.Status = fit.ChallengeActive
	c.StartedAt = timePtr(started)
	c.EndsAt = timePtr(ends)
	if err := e.store.SaveChallenge(ctx, c); err != nil {
		return false, fit.Collaborator("activate challenge", err)
	}

	text := fmt.Sprintf("The challenge has started! It ends %s with %d check-ins.", formatTime(ends), len(windows))
	if len(windows) > 0 {
		text += fmt.Sprintf(" First check-in opens %s.", formatTime(windows[0].OpensAt))
	}
	e.sendText(ctx, notify.GroupChat(c.ChatID), text)
	e.emit(ctx, events.Event{
		Type:        events.ChallengeActivated,
		ChallengeID: c.ID,
		At:          now,
		Detail:      map[string]string{"ends_at": ends.UTC().Format(time.RFC3339), "participants": fmt.Sprint(active)},
	})
	return true, nil
}
