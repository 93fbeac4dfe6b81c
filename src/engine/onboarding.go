package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	aicore "github.com/stake-plus/fitbet/src/ai/core"
	"github.com/stake-plus/fitbet/src/events"
	"github.com/stake-plus/fitbet/src/notify"
	"github.com/stake-plus/fitbet/src/shared/fit"
	"github.com/stake-plus/fitbet/src/store"
)

// Metric ranges accepted from participants.
const (
	MinWeight = 30.0
	MaxWeight = 150.0
	MinWaist  = 40.0
	MaxWaist  = 150.0
	MinHeight = 140.0
	MaxHeight = 220.0
)

var liveChallengeStatuses = []fit.ChallengeStatus{fit.ChallengeDraft, fit.ChallengePendingPayments, fit.ChallengeActive}

var liveParticipantStatuses = []fit.ParticipantStatus{
	fit.ParticipantOnboarding, fit.ParticipantPendingPay, fit.ParticipantPaymentMarked, fit.ParticipantActive,
}

// CreateChallengeInput is the creation command.
type CreateChallengeInput struct {
	ChatID              int64
	ChatTitle           string
	Creator             Actor
	Duration            int
	Stake               decimal.Decimal
	DisciplineThreshold float64
	MaxSkips            int
}

// CreateChallenge opens a draft challenge in a chat that has no live one.
func (e *Engine) CreateChallenge(ctx context.Context, now time.Time, in CreateChallengeInput) (*fit.Challenge, error) {
	switch {
	case in.ChatID == 0:
		return nil, fit.Validationf("challenges can only be created in a group chat")
	case in.Duration <= 0:
		return nil, fit.Validationf("duration must be positive")
	case !in.Stake.IsPositive():
		return nil, fit.Validationf("stake must be positive")
	case in.Stake.Exponent() < -2:
		return nil, fit.Validationf("stake can have at most two decimal places")
	case in.DisciplineThreshold <= 0 || in.DisciplineThreshold > 1:
		return nil, fit.Validationf("discipline threshold must be between 0 and 100%%")
	case in.MaxSkips < 0:
		return nil, fit.Validationf("max skips cannot be negative")
	}

	live, err := e.store.ListChallenges(ctx, store.ChallengeFilter{ChatID: in.ChatID, Statuses: liveChallengeStatuses})
	if err != nil {
		return nil, fit.Collaborator("list challenges", err)
	}
	if len(live) > 0 {
		return nil, fit.Preconditionf("this chat already has a running challenge")
	}

	c := &fit.Challenge{
		ChatID:              in.ChatID,
		ChatTitle:           fit.CleanName(in.ChatTitle, 255),
		CreatorID:           in.Creator.UserID,
		Duration:            in.Duration,
		DurationUnit:        e.cfg.DurationUnit,
		Stake:               in.Stake,
		DisciplineThreshold: in.DisciplineThreshold,
		MaxSkips:            in.MaxSkips,
		Status:              fit.ChallengeDraft,
		CreatedAt:           now,
	}
	if err := e.store.CreateChallenge(ctx, c); err != nil {
		return nil, fit.Collaborator("create challenge", err)
	}

	e.send(ctx, notify.GroupChat(c.ChatID), msgChallengeCreated(c))
	e.emit(ctx, events.Event{Type: events.ChallengeCreated, ChallengeID: c.ID, UserID: c.CreatorID, At: now})
	return c, nil
}

// ChallengeForChat returns the chat's live challenge.
func (e *Engine) ChallengeForChat(ctx context.Context, chatID int64) (*fit.Challenge, error) {
	live, err := e.store.ListChallenges(ctx, store.ChallengeFilter{ChatID: chatID, Statuses: liveChallengeStatuses})
	if err != nil {
		return nil, fit.Collaborator("list challenges", err)
	}
	if len(live) == 0 {
		return nil, fit.NotFoundf("there is no running challenge in this chat")
	}
	return &live[len(live)-1], nil
}

// OnParticipantJoin enrolls the actor, or rejoins them after a drop.
func (e *Engine) OnParticipantJoin(ctx context.Context, now time.Time, challengeID uint64, actor Actor) (*fit.Participant, error) {
	c, err := e.getChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !c.Status.PreActive() {
		return nil, fit.Preconditionf("this challenge is no longer accepting participants")
	}

	if err := e.ensureNotInOtherChallenge(ctx, challengeID, actor.UserID); err != nil {
		return nil, err
	}

	username := fit.CleanName(actor.Username, 64)
	firstName := fit.CleanName(actor.FirstName, 128)

	p, err := e.store.FindParticipant(ctx, challengeID, actor.UserID)
	switch {
	case err == nil:
		switch p.Status {
		case fit.ParticipantOnboarding:
			e.sendText(ctx, notify.User(p.UserID), msgOnboardingPrompt(c))
			return p, nil
		case fit.ParticipantDropped:
			resetForRejoin(p, now)
			p.Username, p.FirstName = username, firstName
			if err := e.store.DeletePayment(ctx, p.ID); err != nil {
				return nil, fit.Collaborator("clear payment", err)
			}
			if err := e.store.SaveParticipant(ctx, p); err != nil {
				return nil, fit.Collaborator("save participant", err)
			}
		case fit.ParticipantPendingPay, fit.ParticipantPaymentMarked, fit.ParticipantActive,
			fit.ParticipantCompleted, fit.ParticipantDisqualified:
			return nil, fit.Conflictf("you already joined this challenge")
		default:
			return nil, fit.Preconditionf("unexpected participant status %q", p.Status)
		}
	case errors.Is(err, fit.ErrNotFound):
		p = &fit.Participant{
			ChallengeID: challengeID,
			UserID:      actor.UserID,
			Username:    username,
			FirstName:   firstName,
			Status:      fit.ParticipantOnboarding,
			JoinedAt:    now,
		}
		if err := e.store.CreateParticipant(ctx, p); err != nil {
			if errors.Is(err, fit.ErrConflict) {
				return nil, fit.Conflictf("you already joined this challenge")
			}
			return nil, fit.Collaborator("create participant", err)
		}
	default:
		return nil, fit.Collaborator("load participant", err)
	}

	e.sendText(ctx, notify.GroupChat(c.ChatID), fmt.Sprintf("%s joined the challenge.", p.Label()))
	e.sendText(ctx, notify.User(p.UserID), msgOnboardingPrompt(c))
	return p, nil
}

func (e *Engine) ensureNotInOtherChallenge(ctx context.Context, challengeID uint64, userID int64) error {
	others, err := e.store.ListParticipants(ctx, store.ParticipantFilter{UserID: userID, Statuses: liveParticipantStatuses})
	if err != nil {
		return fit.Collaborator("list memberships", err)
	}
	for _, other := range others {
		if other.ChallengeID == challengeID {
			continue
		}
		oc, err := e.store.GetChallenge(ctx, other.ChallengeID)
		if err != nil {
			if errors.Is(err, fit.ErrNotFound) {
				continue
			}
			return fit.Collaborator("load challenge", err)
		}
		if oc.Status.Live() {
			return fit.Preconditionf("you are already taking part in another challenge")
		}
	}
	return nil
}

func resetForRejoin(p *fit.Participant, now time.Time) {
	p.Status = fit.ParticipantOnboarding
	p.JoinedAt = now
	p.OnboardingCompletedAt = nil
	p.Track = ""
	p.StartWeight, p.StartWaist, p.Height = 0, 0, 0
	p.TargetWeight, p.TargetWaist = 0, 0
	p.StartPhotoFront, p.StartPhotoLeft, p.StartPhotoRight, p.StartPhotoBack = "", "", "", ""
	p.GoalValidation, p.GoalFeedback = "", ""
	p.TotalCheckins, p.CompletedCheckins, p.SkippedCheckins = 0, 0, 0
	p.PendingCheckinWindowID = nil
	p.PendingCheckinRequestedAt = nil
}

// OnboardingInput carries the start metrics collected by the chat layer.
type OnboardingInput struct {
	Track        fit.Track
	StartWeight  float64
	StartWaist   float64
	Height       float64
	TargetWeight float64
	TargetWaist  float64
	Photos       [4]string
}

// Validate checks ranges before anything is written.
func (in OnboardingInput) Validate() error {
	switch in.Track {
	case fit.TrackCut, fit.TrackBulk:
	default:
		return fit.Validationf("track must be cut or bulk")
	}
	if err := checkRange("weight", in.StartWeight, MinWeight, MaxWeight); err != nil {
		return err
	}
	if err := checkRange("waist", in.StartWaist, MinWaist, MaxWaist); err != nil {
		return err
	}
	if err := checkRange("height", in.Height, MinHeight, MaxHeight); err != nil {
		return err
	}
	if err := checkRange("target weight", in.TargetWeight, MinWeight, MaxWeight); err != nil {
		return err
	}
	return checkRange("target waist", in.TargetWaist, MinWaist, MaxWaist)
}

func checkRange(name string, v, lo, hi float64) error {
	if v < lo || v > hi || v != v {
		return fit.Validationf("%s must be between %.0f and %.0f", name, lo, hi)
	}
	return nil
}

// OnOnboardingComplete records start metrics and moves the participant to the payment step.
func (e *Engine) OnOnboardingComplete(ctx context.Context, now time.Time, participantID uint64, in OnboardingInput) (*fit.Participant, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	p, err := e.getParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p.Status != fit.ParticipantOnboarding {
		return nil, fit.Preconditionf("onboarding is already complete")
	}
	c, err := e.getChallenge(ctx, p.ChallengeID)
	if err != nil {
		return nil, err
	}
	if !c.Status.PreActive() {
		return nil, fit.Preconditionf("this challenge is no longer accepting participants")
	}

	p.Track = in.Track
	p.StartWeight, p.StartWaist, p.Height = in.StartWeight, in.StartWaist, in.Height
	p.TargetWeight, p.TargetWaist = in.TargetWeight, in.TargetWaist
	p.StartPhotoFront, p.StartPhotoLeft, p.StartPhotoRight, p.StartPhotoBack = in.Photos[0], in.Photos[1], in.Photos[2], in.Photos[3]
	p.Status = fit.ParticipantPendingPay
	p.OnboardingCompletedAt = timePtr(now)
	if err := e.store.SaveParticipant(ctx, p); err != nil {
		return nil, fit.Collaborator("save participant", err)
	}
	if err := e.store.UpsertPayment(ctx, &fit.Payment{ParticipantID: p.ID, Status: fit.PaymentPending}); err != nil {
		return nil, fit.Collaborator("create payment", err)
	}

	e.validateGoal(ctx, p)

	e.send(ctx, notify.User(p.UserID), msgPayPrompt(c, p))
	e.sendText(ctx, notify.GroupChat(c.ChatID), fmt.Sprintf("%s finished onboarding.", p.Label()))
	e.sendBallotIfRunning(ctx, c, p)
	return p, nil
}

func (e *Engine) validateGoal(ctx context.Context, p *fit.Participant) {
	if e.advisor == nil {
		return
	}
	res, err := e.advisor.ValidateGoal(ctx, goalInput(p))
	if err != nil {
		e.logf("engine: goal validation for participant %d: %v", p.ID, err)
		return
	}
	p.GoalValidation = string(res.Verdict)
	p.GoalFeedback = res.Feedback
	if err := e.store.SaveParticipant(ctx, p); err != nil {
		e.logf("engine: save goal validation for participant %d: %v", p.ID, err)
	}
	if res.Feedback != "" {
		e.sendText(ctx, notify.User(p.UserID), fmt.Sprintf("Goal check (%s): %s", res.Verdict, res.Feedback))
	}
}

func goalInput(p *fit.Participant) aicore.GoalInput {
	return aicore.GoalInput{
		Track:        string(p.Track),
		Height:       p.Height,
		StartWeight:  p.StartWeight,
		StartWaist:   p.StartWaist,
		TargetWeight: p.TargetWeight,
		TargetWaist:  p.TargetWaist,
	}
}

// sendBallotIfRunning lets a participant who finished onboarding mid-election vote.
func (e *Engine) sendBallotIfRunning(ctx context.Context, c *fit.Challenge, p *fit.Participant) {
	running, err := e.store.ListElections(ctx, store.ElectionFilter{ChallengeID: c.ID, Status: fit.ElectionInProgress})
	if err != nil {
		e.logf("engine: list elections for challenge %d: %v", c.ID, err)
		return
	}
	if len(running) == 0 {
		return
	}
	eligible, err := e.eligibleParticipants(ctx, c.ID)
	if err != nil || len(eligible) < 2 {
		return
	}
	e.send(ctx, notify.User(p.UserID), msgBallot(running[0].ID, eligible))
}

// OnboardingFor returns the actor's participant record awaiting onboarding.
func (e *Engine) OnboardingFor(ctx context.Context, userID int64) (*fit.Participant, error) {
	ps, err := e.store.ListParticipants(ctx, store.ParticipantFilter{
		UserID:   userID,
		Statuses: []fit.ParticipantStatus{fit.ParticipantOnboarding},
	})
	if err != nil {
		return nil, fit.Collaborator("list participants", err)
	}
	if len(ps) == 0 {
		return nil, fit.NotFoundf("you have no pending onboarding; join a challenge first")
	}
	return &ps[len(ps)-1], nil
}

// HandleOnboardingTimeouts drops participants stuck in onboarding past the timeout.
func (e *Engine) HandleOnboardingTimeouts(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-e.cfg.OnboardingTimeout)
	stale, err := e.store.ListParticipants(ctx, store.ParticipantFilter{
		Statuses:     []fit.ParticipantStatus{fit.ParticipantOnboarding},
		JoinedBefore: &cutoff,
	})
	if err != nil {
		return fmt.Errorf("engine: list stale onboarding: %w", err)
	}

	var errs []error
	touched := map[uint64]bool{}
	var order []uint64
	for i := range stale {
		p := stale[i]
		p.Status = fit.ParticipantDropped
		if err := e.store.SaveParticipant(ctx, &p); err != nil {
			errs = append(errs, fmt.Errorf("engine: drop participant %d: %w", p.ID, err))
			continue
		}
		if !touched[p.ChallengeID] {
			touched[p.ChallengeID] = true
			order = append(order, p.ChallengeID)
		}
		e.sendText(ctx, notify.User(p.UserID), "You did not finish onboarding in time and were removed from the challenge. You can join again while it is open.")
		if c, err := e.store.GetChallenge(ctx, p.ChallengeID); err == nil {
			e.sendText(ctx, notify.GroupChat(c.ChatID), fmt.Sprintf("%s was removed: onboarding was not completed in time.", p.Label()))
		}
		e.emit(ctx, events.Event{Type: events.ParticipantDropped, ChallengeID: p.ChallengeID, UserID: p.UserID, At: now})
	}

	for _, id := range order {
		if _, err := e.maybeActivate(ctx, now, id); err != nil {
			errs = append(errs, fmt.Errorf("engine: activate challenge %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// OnCancelChallenge lets the creator abandon a challenge before it starts.
func (e *Engine) OnCancelChallenge(ctx context.Context, now time.Time, challengeID uint64, actorID int64) error {
	c, err := e.getChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if c.CreatorID != actorID {
		return fit.Preconditionf("only the creator can cancel the challenge")
	}
	if !c.Status.PreActive() {
		return fit.Preconditionf("the challenge can only be cancelled before it starts")
	}
	c.Status = fit.ChallengeCancelled
	if err := e.store.SaveChallenge(ctx, c); err != nil {
		return fit.Collaborator("save challenge", err)
	}

	running, err := e.store.ListElections(ctx, store.ElectionFilter{ChallengeID: c.ID, Status: fit.ElectionInProgress})
	if err != nil {
		e.logf("engine: list elections for cancelled challenge %d: %v", c.ID, err)
	}
	for i := range running {
		el := running[i]
		el.Status = fit.ElectionCancelled
		el.CompletedAt = timePtr(now)
		if err := e.store.SaveElection(ctx, &el); err != nil {
			e.logf("engine: cancel election %d: %v", el.ID, err)
		}
	}

	e.sendText(ctx, notify.GroupChat(c.ChatID), "The challenge was cancelled by its creator.")
	e.emit(ctx, events.Event{Type: events.ChallengeCancelled, ChallengeID: c.ID, UserID: actorID, At: now})
	return nil
}
