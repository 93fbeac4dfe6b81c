// Package engine implements the challenge lifecycle: onboarding, the bank
// holder election, the payment gate, check-in windows and settlement.
//
// Every entry point and sweep takes the current time explicitly; the engine
// never reads the wall clock. Sweeps are meant to be driven by a single
// caller (see Tick) and keep going past per-item failures.
package engine

import (
	"context"
	"errors"
	"log"
	"time"

	aicore "github.com/stake-plus/fitbet/src/ai/core"
	"github.com/stake-plus/fitbet/src/events"
	"github.com/stake-plus/fitbet/src/notify"
	"github.com/stake-plus/fitbet/src/shared/fit"
	"github.com/stake-plus/fitbet/src/store"
)

// Config holds the timing knobs of the lifecycle.
type Config struct {
	// DurationUnit is stamped on new challenges.
	DurationUnit fit.DurationUnit
	// CheckinPeriod is the spacing between window openings.
	CheckinPeriod time.Duration
	// WindowDuration is how long a window stays open, capped at CheckinPeriod.
	WindowDuration time.Duration
	// ReminderBeforeClose is the remaining time at which missing participants are nudged.
	ReminderBeforeClose time.Duration
	// OnboardingTimeout drops participants who never finish onboarding.
	OnboardingTimeout time.Duration
	// ElectionTimeout finalizes elections regardless of turnout.
	ElectionTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DurationUnit:        fit.UnitMonths,
		CheckinPeriod:       14 * 24 * time.Hour,
		WindowDuration:      48 * time.Hour,
		ReminderBeforeClose: 12 * time.Hour,
		OnboardingTimeout:   48 * time.Hour,
		ElectionTimeout:     24 * time.Hour,
	}
}

// Advisor produces optional goal and check-in feedback.
type Advisor interface {
	ValidateGoal(ctx context.Context, in aicore.GoalInput) (aicore.GoalValidation, error)
	AnalyzeCheckin(ctx context.Context, in aicore.CheckinInput) (aicore.CheckinAdvice, error)
}

// Actor is the chat-platform identity behind an inbound event.
type Actor struct {
	UserID    int64
	Username  string
	FirstName string
}

// Label renders the actor like a participant label.
func (a Actor) Label() string { return fit.UserLabel(a.UserID, a.Username, a.FirstName) }

// Engine wires the store and the collaborators together.
type Engine struct {
	store    store.Store
	notifier notify.Notifier
	advisor  Advisor
	events   events.Publisher
	cfg      Config
	logf     func(format string, args ...any)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithAdvisor enables goal and check-in feedback.
func WithAdvisor(a Advisor) Option { return func(e *Engine) { e.advisor = a } }

// WithEvents publishes lifecycle events.
func WithEvents(p events.Publisher) Option { return func(e *Engine) { e.events = p } }

// WithLogger replaces log.Printf.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(e *Engine) { e.logf = logf }
}

// New builds an engine. Zero config fields fall back to DefaultConfig.
func New(st store.Store, n notify.Notifier, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.DurationUnit == "" {
		cfg.DurationUnit = def.DurationUnit
	}
	if cfg.CheckinPeriod <= 0 {
		cfg.CheckinPeriod = def.CheckinPeriod
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = def.WindowDuration
	}
	if cfg.ReminderBeforeClose <= 0 {
		cfg.ReminderBeforeClose = def.ReminderBeforeClose
	}
	if cfg.OnboardingTimeout <= 0 {
		cfg.OnboardingTimeout = def.OnboardingTimeout
	}
	if cfg.ElectionTimeout <= 0 {
		cfg.ElectionTimeout = def.ElectionTimeout
	}
	e := &Engine{
		store:    st,
		notifier: n,
		events:   events.Nop{},
		cfg:      cfg,
		logf:     log.Printf,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) send(ctx context.Context, to notify.Recipient, msg notify.Message) string {
	id, err := e.notifier.Send(ctx, to, msg)
	if err != nil {
		e.logf("engine: notify %s %d: %v", to.Kind, to.ID, err)
		return ""
	}
	return id
}

func (e *Engine) sendText(ctx context.Context, to notify.Recipient, text string) {
	e.send(ctx, to, notify.Message{Text: text})
}

func (e *Engine) emit(ctx context.Context, ev events.Event) {
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logf("engine: publish %s: %v", ev.Type, err)
	}
}

// track sends msg and remembers it as the latest notification for owner,
// deleting the one it supersedes.
func (e *Engine) track(ctx context.Context, now time.Time, kind fit.NotificationKind, ownerID uint64, to notify.Recipient, windowID uint64, msg notify.Message) {
	prev, err := e.store.GetNotification(ctx, kind, ownerID)
	switch {
	case err == nil && prev.MessageID != "":
		if err := e.notifier.Delete(ctx, recipientOf(prev), prev.MessageID); err != nil {
			e.logf("engine: retract %s notification %s: %v", kind, prev.MessageID, err)
		}
	case err != nil && !errors.Is(err, fit.ErrNotFound):
		e.logf("engine: load %s notification for %d: %v", kind, ownerID, err)
	}

	id := e.send(ctx, to, msg)
	if id == "" {
		return
	}
	rec := &fit.NotificationRecord{
		Kind:        kind,
		OwnerID:     ownerID,
		RecipientID: to.ID,
		MessageID:   id,
		WindowID:    windowID,
		UpdatedAt:   now,
	}
	if err := e.store.UpsertNotification(ctx, rec); err != nil {
		e.logf("engine: track %s notification for %d: %v", kind, ownerID, err)
	}
}

// stripWindowActions removes the check-in button from every tracked
// notification of a closed window.
func (e *Engine) stripWindowActions(ctx context.Context, windowID uint64) {
	for _, kind := range []fit.NotificationKind{fit.NotificationGroup, fit.NotificationDirect} {
		recs, err := e.store.ListNotifications(ctx, kind, windowID)
		if err != nil {
			e.logf("engine: list %s notifications for window %d: %v", kind, windowID, err)
			continue
		}
		for _, rec := range recs {
			if err := e.notifier.EditActions(ctx, recipientOf(&rec), rec.MessageID, nil); err != nil {
				e.logf("engine: strip actions from %s: %v", rec.MessageID, err)
			}
		}
	}
}

func recipientOf(rec *fit.NotificationRecord) notify.Recipient {
	if rec.Kind == fit.NotificationGroup {
		return notify.GroupChat(rec.RecipientID)
	}
	return notify.User(rec.RecipientID)
}

func (e *Engine) getChallenge(ctx context.Context, id uint64) (*fit.Challenge, error) {
	c, err := e.store.GetChallenge(ctx, id)
	if err != nil {
		if errors.Is(err, fit.ErrNotFound) {
			return nil, fit.NotFoundf("challenge %d not found", id)
		}
		return nil, fit.Collaborator("load challenge", err)
	}
	return c, nil
}

func (e *Engine) getParticipant(ctx context.Context, id uint64) (*fit.Participant, error) {
	p, err := e.store.GetParticipant(ctx, id)
	if err != nil {
		if errors.Is(err, fit.ErrNotFound) {
			return nil, fit.NotFoundf("participant %d not found", id)
		}
		return nil, fit.Collaborator("load participant", err)
	}
	return p, nil
}

func (e *Engine) findParticipant(ctx context.Context, challengeID uint64, userID int64) (*fit.Participant, error) {
	p, err := e.store.FindParticipant(ctx, challengeID, userID)
	if err != nil {
		if errors.Is(err, fit.ErrNotFound) {
			return nil, fit.NotFoundf("you are not a participant of this challenge")
		}
		return nil, fit.Collaborator("load participant", err)
	}
	return p, nil
}

func (e *Engine) eligibleParticipants(ctx context.Context, challengeID uint64) ([]fit.Participant, error) {
	ps, err := e.store.ListParticipants(ctx, store.ParticipantFilter{
		ChallengeID: challengeID,
		Statuses:    fit.EligibleStatuses,
	})
	if err != nil {
		return nil, fit.Collaborator("list eligible participants", err)
	}
	sortByUser(ps)
	return ps, nil
}

func (e *Engine) activeParticipants(ctx context.Context, challengeID uint64) ([]fit.Participant, error) {
	ps, err := e.store.ListParticipants(ctx, store.ParticipantFilter{
		ChallengeID: challengeID,
		Statuses:    []fit.ParticipantStatus{fit.ParticipantActive},
	})
	if err != nil {
		return nil, fit.Collaborator("list active participants", err)
	}
	return ps, nil
}

func timePtr(t time.Time) *time.Time { return &t }

func int64Ptr(v int64) *int64 { return &v }
