package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stake-plus/fitbet/src/events"
	"github.com/stake-plus/fitbet/src/notify"
	"github.com/stake-plus/fitbet/src/shared/fit"
	"github.com/stake-plus/fitbet/src/store"
)

// FinalizeEndedChallenges settles every active challenge whose end time has passed.
func (e *Engine) FinalizeEndedChallenges(ctx context.Context, now time.Time) error {
	ended, err := e.store.ListChallenges(ctx, store.ChallengeFilter{
		Statuses:       []fit.ChallengeStatus{fit.ChallengeActive},
		EndsAtOrBefore: &now,
	})
	if err != nil {
		return fmt.Errorf("engine: list ended challenges: %w", err)
	}
	var errs []error
	for i := range ended {
		if err := e.settle(ctx, now, &ended[i]); err != nil {
			errs = append(errs, fmt.Errorf("engine: settle challenge %d: %w", ended[i].ID, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) settle(ctx context.Context, now time.Time, c *fit.Challenge) error {
	open, err := e.store.ListWindows(ctx, store.WindowFilter{
		ChallengeID: c.ID,
		Statuses:    []fit.WindowStatus{fit.WindowOpen},
	})
	if err != nil {
		return err
	}
	end := now
	if c.EndsAt != nil && c.EndsAt.Before(now) {
		end = *c.EndsAt
	}
	for i := range open {
		if err := e.closeWindow(ctx, now, c, &open[i], closeOptions{clampTo: &end, silent: true}); err != nil {
			return fmt.Errorf("close window %d: %w", open[i].ID, err)
		}
	}

	scores, err := e.scoreChallenge(ctx, c)
	if err != nil {
		return err
	}

	active, err := e.activeParticipants(ctx, c.ID)
	if err != nil {
		return err
	}
	for i := range active {
		p := active[i]
		p.Status = fit.ParticipantCompleted
		if err := e.store.SaveParticipant(ctx, &p); err != nil {
			return fmt.Errorf("complete participant %d: %w", p.ID, err)
		}
	}
	c.Status = fit.ChallengeCompleted
	if err := e.store.SaveChallenge(ctx, c); err != nil {
		return err
	}

	if len(scores) == 0 {
		e.sendText(ctx, notify.GroupChat(c.ChatID), "The challenge has ended. No stakes were confirmed, so there is nothing to settle.")
	} else {
		e.sendText(ctx, notify.GroupChat(c.ChatID), rankingText(scores))
		for i := range scores {
			e.sendText(ctx, notify.User(scores[i].UserID), resultText(c, &scores[i]))
		}
	}

	winners := 0
	for i := range scores {
		if scores[i].Winner {
			winners++
		}
	}
	e.emit(ctx, events.Event{
		Type:        events.ChallengeSettled,
		ChallengeID: c.ID,
		At:          now,
		Detail:      map[string]string{"scored": fmt.Sprint(len(scores)), "winners": fmt.Sprint(winners)},
	})
	return nil
}

// scoreChallenge scores every participant with a confirmed payment, assigns
// payouts and ranks them.
func (e *Engine) scoreChallenge(ctx context.Context, c *fit.Challenge) ([]Score, error) {
	ps, err := e.store.ListParticipants(ctx, store.ParticipantFilter{ChallengeID: c.ID})
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(ps))
	for i := range ps {
		ids = append(ids, ps[i].ID)
	}
	payments, err := e.store.ListPayments(ctx, ids)
	if err != nil {
		return nil, err
	}
	confirmed := make(map[uint64]bool, len(payments))
	for _, pay := range payments {
		if pay.Status == fit.PaymentConfirmed {
			confirmed[pay.ParticipantID] = true
		}
	}

	var scores []Score
	for i := range ps {
		p := &ps[i]
		if !confirmed[p.ID] {
			continue
		}
		latest, err := e.store.LatestCheckin(ctx, p.ID)
		if err != nil {
			if !errors.Is(err, fit.ErrNotFound) {
				return nil, err
			}
			latest = nil
		}
		scores = append(scores, ScoreParticipant(c, p, latest))
	}
	if len(scores) == 0 {
		return nil, nil
	}
	AssignPayouts(c.Stake, scores)
	RankScores(scores)
	return scores, nil
}

// Standings previews the settlement of a challenge without changing it.
func (e *Engine) Standings(ctx context.Context, challengeID uint64) ([]Score, error) {
	c, err := e.getChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	scores, err := e.scoreChallenge(ctx, c)
	if err != nil {
		return nil, fit.Collaborator("score challenge", err)
	}
	return scores, nil
}

func rankingText(scores []Score) string {
	var b strings.Builder
	b.WriteString("The challenge has ended. Final ranking:")
	for i := range scores {
		s := &scores[i]
		mark := ""
		if s.Winner {
			mark = " (winner)"
		}
		fmt.Fprintf(&b, "\n%d. %s: %s points, goal %s%%, discipline %s%%, payout %s%s",
			i+1, s.Label, formatScore(s.Total), formatScore(s.GoalAchievement), formatScore(s.Discipline), formatMoney(s.Payout), mark)
	}
	return b.String()
}

func resultText(c *fit.Challenge, s *Score) string {
	outcome := "You did not meet the winning conditions this time."
	if s.Winner {
		outcome = "Congratulations, you won!"
	}
	return fmt.Sprintf("%s\nGoal achievement: %s%%\nDiscipline: %s%% (threshold %.0f%%)\nTotal: %s\nPayout: %s (stake %s)",
		outcome, formatScore(s.GoalAchievement), formatScore(s.Discipline), c.DisciplineThreshold*100,
		formatScore(s.Total), formatMoney(s.Payout), formatMoney(c.Stake))
}
