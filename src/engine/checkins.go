package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	aicore "github.com/stake-plus/fitbet/src/ai/core"
	"github.com/stake-plus/fitbet/src/events"
	"github.com/stake-plus/fitbet/src/notify"
	"github.com/stake-plus/fitbet/src/shared/fit"
	"github.com/stake-plus/fitbet/src/store"
	"gorm.io/datatypes"
)

// OnCheckinRequested marks that the participant started a check-in for the window.
func (e *Engine) OnCheckinRequested(ctx context.Context, now time.Time, windowID uint64, userID int64) (*fit.Participant, error) {
	w, p, err := e.openWindowParticipant(ctx, windowID, userID)
	if err != nil {
		return nil, err
	}
	p.PendingCheckinWindowID = &w.ID
	p.PendingCheckinRequestedAt = timePtr(now)
	if err := e.store.SaveParticipant(ctx, p); err != nil {
		return nil, fit.Collaborator("save participant", err)
	}
	e.sendText(ctx, notify.User(userID), fmt.Sprintf(
		"Check-in #%d: send /checkin <weight kg> <waist cm>, then your photos, before %s.", w.WindowNumber, formatTime(w.ClosesAt)))
	return p, nil
}

// PendingCheckinFor returns the participant whose check-in the user started.
func (e *Engine) PendingCheckinFor(ctx context.Context, userID int64) (*fit.Participant, error) {
	ps, err := e.store.ListParticipants(ctx, store.ParticipantFilter{
		UserID:   userID,
		Statuses: []fit.ParticipantStatus{fit.ParticipantActive},
	})
	if err != nil {
		return nil, fit.Collaborator("list participants", err)
	}
	for i := range ps {
		if ps[i].PendingCheckinWindowID != nil {
			return &ps[i], nil
		}
	}
	return nil, fit.NotFoundf("tap the check-in button of an open window first")
}

func (e *Engine) openWindowParticipant(ctx context.Context, windowID uint64, userID int64) (*fit.CheckinWindow, *fit.Participant, error) {
	w, err := e.store.GetWindow(ctx, windowID)
	if err != nil {
		if errors.Is(err, fit.ErrNotFound) {
			return nil, nil, fit.NotFoundf("check-in window %d not found", windowID)
		}
		return nil, nil, fit.Collaborator("load window", err)
	}
	if w.Status != fit.WindowOpen {
		return nil, nil, fit.Preconditionf("check-in #%d is not open", w.WindowNumber)
	}
	p, err := e.findParticipant(ctx, w.ChallengeID, userID)
	if err != nil {
		return nil, nil, err
	}
	if p.Status != fit.ParticipantActive {
		return nil, nil, fit.Preconditionf("only active participants can check in")
	}
	return w, p, nil
}

// ValidateMeasurements checks check-in weight and waist ranges.
func ValidateMeasurements(weight, waist float64) error {
	if err := checkRange("weight", weight, MinWeight, MaxWeight); err != nil {
		return err
	}
	return checkRange("waist", waist, MinWaist, MaxWaist)
}

// CheckinInput is one submission from the chat layer.
type CheckinInput struct {
	WindowID uint64
	UserID   int64
	Weight   float64
	Waist    float64
	Photos   [4]string
}

// OnCheckinSubmitted stores the participant's submission for an open window.
// Counters are only touched when the window closes.
func (e *Engine) OnCheckinSubmitted(ctx context.Context, now time.Time, in CheckinInput) (*fit.Checkin, error) {
	if err := ValidateMeasurements(in.Weight, in.Waist); err != nil {
		return nil, err
	}
	w, p, err := e.openWindowParticipant(ctx, in.WindowID, in.UserID)
	if err != nil {
		return nil, err
	}

	ck := &fit.Checkin{
		ParticipantID: p.ID,
		WindowID:      w.ID,
		ChallengeID:   w.ChallengeID,
		Weight:        in.Weight,
		Waist:         in.Waist,
		PhotoFront:    in.Photos[0],
		PhotoLeft:     in.Photos[1],
		PhotoRight:    in.Photos[2],
		PhotoBack:     in.Photos[3],
		SubmittedAt:   now,
	}
	// Look up history before inserting so the advice prompt sees prior check-ins only.
	history := e.checkinHistory(ctx, p)
	if err := e.store.CreateCheckin(ctx, ck); err != nil {
		if errors.Is(err, fit.ErrConflict) {
			return nil, fit.Conflictf("you already checked in for #%d", w.WindowNumber)
		}
		return nil, fit.Collaborator("store checkin", err)
	}

	p.PendingCheckinWindowID = nil
	p.PendingCheckinRequestedAt = nil
	if err := e.store.SaveParticipant(ctx, p); err != nil {
		e.logf("engine: clear pending checkin for participant %d: %v", p.ID, err)
	}

	e.sendText(ctx, notify.User(p.UserID), fmt.Sprintf("Check-in #%d saved: %.1f kg, waist %.1f cm.", w.WindowNumber, ck.Weight, ck.Waist))
	e.emit(ctx, events.Event{
		Type:        events.CheckinSubmitted,
		ChallengeID: w.ChallengeID,
		UserID:      p.UserID,
		At:          now,
		Detail:      map[string]string{"window": fmt.Sprint(w.WindowNumber)},
	})
	e.adviseCheckin(ctx, now, p, ck, history)
	return ck, nil
}

func (e *Engine) checkinHistory(ctx context.Context, p *fit.Participant) []string {
	if e.advisor == nil {
		return nil
	}
	last, err := e.store.LatestCheckin(ctx, p.ID)
	if err != nil {
		return nil
	}
	return []string{fmt.Sprintf("previous: %.1f kg, waist %.1f cm on %s", last.Weight, last.Waist, formatTime(last.SubmittedAt))}
}

func (e *Engine) adviseCheckin(ctx context.Context, now time.Time, p *fit.Participant, ck *fit.Checkin, history []string) {
	if e.advisor == nil {
		return
	}
	advice, err := e.advisor.AnalyzeCheckin(ctx, aicore.CheckinInput{
		Goal:          goalInput(p),
		CurrentWeight: ck.Weight,
		CurrentWaist:  ck.Waist,
		History:       history,
	})
	if err != nil {
		e.logf("engine: checkin advice for participant %d: %v", p.ID, err)
		return
	}
	flags, _ := json.Marshal(advice.WarningFlags)
	rec := &fit.CheckinRecommendation{
		CheckinID:           ck.ID,
		ParticipantID:       p.ID,
		ProgressAssessment:  advice.ProgressAssessment,
		NutritionAdvice:     advice.NutritionAdvice,
		TrainingAdvice:      advice.TrainingAdvice,
		MotivationalMessage: advice.MotivationalMessage,
		WarningFlags:        datatypes.JSON(flags),
		Model:               advice.Model,
		LatencyMs:           advice.LatencyMs,
		CreatedAt:           now,
	}
	if err := e.store.CreateRecommendation(ctx, rec); err != nil {
		e.logf("engine: store checkin advice for participant %d: %v", p.ID, err)
	}

	var b strings.Builder
	for _, part := range []struct{ title, body string }{
		{"Progress", advice.ProgressAssessment},
		{"Nutrition", advice.NutritionAdvice},
		{"Training", advice.TrainingAdvice},
		{"", advice.MotivationalMessage},
	} {
		if part.body == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		if part.title != "" {
			b.WriteString(part.title + ": ")
		}
		b.WriteString(part.body)
	}
	if len(advice.WarningFlags) > 0 {
		b.WriteString("\nWarnings: " + strings.Join(advice.WarningFlags, "; "))
	}
	if b.Len() > 0 {
		e.sendText(ctx, notify.User(p.UserID), b.String())
	}
}
