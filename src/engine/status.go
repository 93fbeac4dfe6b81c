package engine

import (
	"context"

	"github.com/stake-plus/fitbet/src/shared/fit"
	"github.com/stake-plus/fitbet/src/store"
)

// Participation pairs a user's participant record with its challenge.
type Participation struct {
	Challenge   fit.Challenge
	Participant fit.Participant
}

// Challenge loads one challenge.
func (e *Engine) Challenge(ctx context.Context, id uint64) (*fit.Challenge, error) {
	return e.getChallenge(ctx, id)
}

// Roster lists every participant of a challenge ordered by user ID.
func (e *Engine) Roster(ctx context.Context, challengeID uint64) ([]fit.Participant, error) {
	if _, err := e.getChallenge(ctx, challengeID); err != nil {
		return nil, err
	}
	ps, err := e.store.ListParticipants(ctx, store.ParticipantFilter{ChallengeID: challengeID})
	if err != nil {
		return nil, fit.Collaborator("list participants", err)
	}
	sortByUser(ps)
	return ps, nil
}

// Windows lists the check-in schedule of a challenge.
func (e *Engine) Windows(ctx context.Context, challengeID uint64) ([]fit.CheckinWindow, error) {
	if _, err := e.getChallenge(ctx, challengeID); err != nil {
		return nil, err
	}
	ws, err := e.store.ListWindows(ctx, store.WindowFilter{ChallengeID: challengeID})
	if err != nil {
		return nil, fit.Collaborator("list windows", err)
	}
	return ws, nil
}

// ParticipationsOf lists every challenge the user joined, oldest first.
func (e *Engine) ParticipationsOf(ctx context.Context, userID int64) ([]Participation, error) {
	ps, err := e.store.ListParticipants(ctx, store.ParticipantFilter{UserID: userID})
	if err != nil {
		return nil, fit.Collaborator("list participants", err)
	}
	out := make([]Participation, 0, len(ps))
	for i := range ps {
		c, err := e.getChallenge(ctx, ps[i].ChallengeID)
		if err != nil {
			return nil, err
		}
		out = append(out, Participation{Challenge: *c, Participant: ps[i]})
	}
	return out, nil
}
