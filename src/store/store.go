// Package store defines the persistence contract the engine runs against.
// Missing rows surface as fit.ErrNotFound and uniqueness violations as
// fit.ErrConflict, both wrapped so errors.Is matches.
package store

import (
	"context"
	"time"

	"github.com/stake-plus/fitbet/src/shared/fit"
)

// ChallengeFilter selects challenges. Zero fields do not filter.
type ChallengeFilter struct {
	ChatID         int64
	Statuses       []fit.ChallengeStatus
	EndsAtOrBefore *time.Time
}

// ParticipantFilter selects participants. Zero fields do not filter.
type ParticipantFilter struct {
	ChallengeID  uint64
	UserID       int64
	Statuses     []fit.ParticipantStatus
	JoinedBefore *time.Time
}

// WindowFilter selects check-in windows. Zero fields do not filter.
type WindowFilter struct {
	ChallengeID      uint64
	Statuses         []fit.WindowStatus
	OpensAtOrBefore  *time.Time
	ClosesAtOrBefore *time.Time
	Unreminded       bool
}

// ElectionFilter selects elections. Zero fields do not filter.
type ElectionFilter struct {
	ChallengeID   uint64
	Status        fit.ElectionStatus
	CreatedBefore *time.Time
}

// Store is the typed persistence layer. Listings are ordered by primary key
// unless the method says otherwise.
type Store interface {
	CreateChallenge(ctx context.Context, c *fit.Challenge) error
	GetChallenge(ctx context.Context, id uint64) (*fit.Challenge, error)
	ListChallenges(ctx context.Context, f ChallengeFilter) ([]fit.Challenge, error)
	SaveChallenge(ctx context.Context, c *fit.Challenge) error

	// CreateParticipant fails with fit.ErrConflict when the user already joined.
	CreateParticipant(ctx context.Context, p *fit.Participant) error
	GetParticipant(ctx context.Context, id uint64) (*fit.Participant, error)
	FindParticipant(ctx context.Context, challengeID uint64, userID int64) (*fit.Participant, error)
	ListParticipants(ctx context.Context, f ParticipantFilter) ([]fit.Participant, error)
	CountParticipants(ctx context.Context, f ParticipantFilter) (int64, error)
	SaveParticipant(ctx context.Context, p *fit.Participant) error

	// ReplaceWindows discards every window of the challenge and inserts ws.
	ReplaceWindows(ctx context.Context, challengeID uint64, ws []fit.CheckinWindow) error
	GetWindow(ctx context.Context, id uint64) (*fit.CheckinWindow, error)
	// ListWindows orders by opens-at, then window number.
	ListWindows(ctx context.Context, f WindowFilter) ([]fit.CheckinWindow, error)
	SaveWindow(ctx context.Context, w *fit.CheckinWindow) error
	// CloseWindow saves the tallied participants and w, which must still be
	// open in the store, as one unit: either every row is written or none is.
	// A window that is no longer open fails with fit.ErrConflict.
	CloseWindow(ctx context.Context, w *fit.CheckinWindow, tallied []fit.Participant) error

	// CreateCheckin fails with fit.ErrConflict on a second submission for the window.
	CreateCheckin(ctx context.Context, c *fit.Checkin) error
	FindCheckin(ctx context.Context, participantID, windowID uint64) (*fit.Checkin, error)
	ListCheckins(ctx context.Context, windowID uint64) ([]fit.Checkin, error)
	// LatestCheckin returns the most recently submitted check-in of a participant.
	LatestCheckin(ctx context.Context, participantID uint64) (*fit.Checkin, error)
	CreateRecommendation(ctx context.Context, r *fit.CheckinRecommendation) error

	// CreateElection fails with fit.ErrConflict when one is already in progress for the challenge.
	CreateElection(ctx context.Context, e *fit.BankHolderElection) error
	GetElection(ctx context.Context, id uint64) (*fit.BankHolderElection, error)
	ListElections(ctx context.Context, f ElectionFilter) ([]fit.BankHolderElection, error)
	SaveElection(ctx context.Context, e *fit.BankHolderElection) error

	// CreateVote fails with fit.ErrConflict when the voter already voted.
	CreateVote(ctx context.Context, v *fit.BankHolderVote) error
	ListVotes(ctx context.Context, electionID uint64) ([]fit.BankHolderVote, error)

	// UpsertPayment inserts or replaces the payment keyed by participant.
	UpsertPayment(ctx context.Context, p *fit.Payment) error
	GetPayment(ctx context.Context, participantID uint64) (*fit.Payment, error)
	DeletePayment(ctx context.Context, participantID uint64) error
	ListPayments(ctx context.Context, participantIDs []uint64) ([]fit.Payment, error)

	GetNotification(ctx context.Context, kind fit.NotificationKind, ownerID uint64) (*fit.NotificationRecord, error)
	ListNotifications(ctx context.Context, kind fit.NotificationKind, windowID uint64) ([]fit.NotificationRecord, error)
	UpsertNotification(ctx context.Context, n *fit.NotificationRecord) error
}
