// Package memstore is an in-process store.Store used by tests and dry runs.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/stake-plus/fitbet/src/shared/fit"
	"github.com/stake-plus/fitbet/src/store"
)

// Store keeps every entity in maps guarded by one mutex. Values are copied on
// the way in and out so callers never alias stored rows.
type Store struct {
	mu sync.Mutex

	seq uint64

	challenges      map[uint64]fit.Challenge
	participants    map[uint64]fit.Participant
	windows         map[uint64]fit.CheckinWindow
	checkins        map[uint64]fit.Checkin
	recommendations map[uint64]fit.CheckinRecommendation
	elections       map[uint64]fit.BankHolderElection
	votes           map[uint64]fit.BankHolderVote
	payments        map[uint64]fit.Payment // keyed by participant
	notifications   map[notificationKey]fit.NotificationRecord
}

type notificationKey struct {
	kind  fit.NotificationKind
	owner uint64
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		challenges:      map[uint64]fit.Challenge{},
		participants:    map[uint64]fit.Participant{},
		windows:         map[uint64]fit.CheckinWindow{},
		checkins:        map[uint64]fit.Checkin{},
		recommendations: map[uint64]fit.CheckinRecommendation{},
		elections:       map[uint64]fit.BankHolderElection{},
		votes:           map[uint64]fit.BankHolderVote{},
		payments:        map[uint64]fit.Payment{},
		notifications:   map[notificationKey]fit.NotificationRecord{},
	}
}

func (s *Store) next() uint64 {
	s.seq++
	return s.seq
}

func notFound(entity string, key any) error {
	return fmt.Errorf("memstore: %s %v: %w", entity, key, fit.ErrNotFound)
}

func conflict(entity string) error {
	return fmt.Errorf("memstore: %s: %w", entity, fit.ErrConflict)
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (s *Store) CreateChallenge(_ context.Context, c *fit.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.next()
	s.challenges[c.ID] = *c
	return nil
}

func (s *Store) GetChallenge(_ context.Context, id uint64) (*fit.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return nil, notFound("challenge", id)
	}
	return &c, nil
}

func (s *Store) ListChallenges(_ context.Context, f store.ChallengeFilter) ([]fit.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []fit.Challenge
	for _, id := range sortedKeys(s.challenges) {
		c := s.challenges[id]
		if f.ChatID != 0 && c.ChatID != f.ChatID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, c.Status) {
			continue
		}
		if f.EndsAtOrBefore != nil && (c.EndsAt == nil || c.EndsAt.After(*f.EndsAtOrBefore)) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) SaveChallenge(_ context.Context, c *fit.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[c.ID]; !ok {
		return notFound("challenge", c.ID)
	}
	s.challenges[c.ID] = *c
	return nil
}

func (s *Store) CreateParticipant(_ context.Context, p *fit.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.participants {
		if existing.ChallengeID == p.ChallengeID && existing.UserID == p.UserID {
			return conflict("participant")
		}
	}
	p.ID = s.next()
	s.participants[p.ID] = *p
	return nil
}

func (s *Store) GetParticipant(_ context.Context, id uint64) (*fit.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return nil, notFound("participant", id)
	}
	return &p, nil
}

func (s *Store) FindParticipant(_ context.Context, challengeID uint64, userID int64) (*fit.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range sortedKeys(s.participants) {
		p := s.participants[id]
		if p.ChallengeID == challengeID && p.UserID == userID {
			return &p, nil
		}
	}
	return nil, notFound("participant", fmt.Sprintf("%d/%d", challengeID, userID))
}

func (s *Store) matchParticipants(f store.ParticipantFilter) []fit.Participant {
	var out []fit.Participant
	for _, id := range sortedKeys(s.participants) {
		p := s.participants[id]
		if f.ChallengeID != 0 && p.ChallengeID != f.ChallengeID {
			continue
		}
		if f.UserID != 0 && p.UserID != f.UserID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, p.Status) {
			continue
		}
		if f.JoinedBefore != nil && p.JoinedAt.After(*f.JoinedBefore) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *Store) ListParticipants(_ context.Context, f store.ParticipantFilter) ([]fit.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchParticipants(f), nil
}

func (s *Store) CountParticipants(_ context.Context, f store.ParticipantFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.matchParticipants(f))), nil
}

func (s *Store) SaveParticipant(_ context.Context, p *fit.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.ID]; !ok {
		return notFound("participant", p.ID)
	}
	s.participants[p.ID] = *p
	return nil
}

func (s *Store) ReplaceWindows(_ context.Context, challengeID uint64, ws []fit.CheckinWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.windows {
		if w.ChallengeID == challengeID {
			delete(s.windows, id)
		}
	}
	seen := map[int]bool{}
	for i := range ws {
		if seen[ws[i].WindowNumber] {
			return conflict("checkin window")
		}
		seen[ws[i].WindowNumber] = true
		ws[i].ChallengeID = challengeID
		ws[i].ID = s.next()
		s.windows[ws[i].ID] = ws[i]
	}
	return nil
}

func (s *Store) GetWindow(_ context.Context, id uint64) (*fit.CheckinWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	if !ok {
		return nil, notFound("checkin window", id)
	}
	return &w, nil
}

func (s *Store) ListWindows(_ context.Context, f store.WindowFilter) ([]fit.CheckinWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []fit.CheckinWindow
	for _, w := range s.windows {
		if f.ChallengeID != 0 && w.ChallengeID != f.ChallengeID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, w.Status) {
			continue
		}
		if f.OpensAtOrBefore != nil && w.OpensAt.After(*f.OpensAtOrBefore) {
			continue
		}
		if f.ClosesAtOrBefore != nil && w.ClosesAt.After(*f.ClosesAtOrBefore) {
			continue
		}
		if f.Unreminded && w.ReminderSentAt != nil {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpensAt.Equal(out[j].OpensAt) {
			return out[i].OpensAt.Before(out[j].OpensAt)
		}
		if out[i].ChallengeID != out[j].ChallengeID {
			return out[i].ChallengeID < out[j].ChallengeID
		}
		return out[i].WindowNumber < out[j].WindowNumber
	})
	return out, nil
}

func (s *Store) SaveWindow(_ context.Context, w *fit.CheckinWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[w.ID]; !ok {
		return notFound("checkin window", w.ID)
	}
	s.windows[w.ID] = *w
	return nil
}

func (s *Store) CloseWindow(_ context.Context, w *fit.CheckinWindow, tallied []fit.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.windows[w.ID]
	if !ok {
		return notFound("checkin window", w.ID)
	}
	if stored.Status != fit.WindowOpen {
		return conflict("checkin window")
	}
	for i := range tallied {
		if _, ok := s.participants[tallied[i].ID]; !ok {
			return notFound("participant", tallied[i].ID)
		}
	}
	for i := range tallied {
		s.participants[tallied[i].ID] = tallied[i]
	}
	s.windows[w.ID] = *w
	return nil
}

func (s *Store) CreateCheckin(_ context.Context, c *fit.Checkin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.checkins {
		if existing.ParticipantID == c.ParticipantID && existing.WindowID == c.WindowID {
			return conflict("checkin")
		}
	}
	c.ID = s.next()
	s.checkins[c.ID] = *c
	return nil
}

func (s *Store) FindCheckin(_ context.Context, participantID, windowID uint64) (*fit.Checkin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.checkins {
		if c.ParticipantID == participantID && c.WindowID == windowID {
			return &c, nil
		}
	}
	return nil, notFound("checkin", fmt.Sprintf("%d/%d", participantID, windowID))
}

func (s *Store) ListCheckins(_ context.Context, windowID uint64) ([]fit.Checkin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []fit.Checkin
	for _, id := range sortedKeys(s.checkins) {
		if c := s.checkins[id]; c.WindowID == windowID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) LatestCheckin(_ context.Context, participantID uint64) (*fit.Checkin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *fit.Checkin
	for _, id := range sortedKeys(s.checkins) {
		c := s.checkins[id]
		if c.ParticipantID != participantID {
			continue
		}
		if latest == nil || !c.SubmittedAt.Before(latest.SubmittedAt) {
			latest = &c
		}
	}
	if latest == nil {
		return nil, notFound("checkin for participant", participantID)
	}
	return latest, nil
}

func (s *Store) CreateRecommendation(_ context.Context, r *fit.CheckinRecommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.recommendations {
		if existing.CheckinID == r.CheckinID {
			return conflict("checkin recommendation")
		}
	}
	r.ID = s.next()
	s.recommendations[r.ID] = *r
	return nil
}

// Recommendations returns stored advice rows for a participant.
func (s *Store) Recommendations(participantID uint64) []fit.CheckinRecommendation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []fit.CheckinRecommendation
	for _, id := range sortedKeys(s.recommendations) {
		if r := s.recommendations[id]; r.ParticipantID == participantID {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) CreateElection(_ context.Context, e *fit.BankHolderElection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Status == fit.ElectionInProgress {
		for _, existing := range s.elections {
			if existing.ChallengeID == e.ChallengeID && existing.Status == fit.ElectionInProgress {
				return conflict("bank holder election")
			}
		}
	}
	e.ID = s.next()
	s.elections[e.ID] = *e
	return nil
}

func (s *Store) GetElection(_ context.Context, id uint64) (*fit.BankHolderElection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.elections[id]
	if !ok {
		return nil, notFound("bank holder election", id)
	}
	return &e, nil
}

func (s *Store) ListElections(_ context.Context, f store.ElectionFilter) ([]fit.BankHolderElection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []fit.BankHolderElection
	for _, id := range sortedKeys(s.elections) {
		e := s.elections[id]
		if f.ChallengeID != 0 && e.ChallengeID != f.ChallengeID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.CreatedBefore != nil && e.CreatedAt.After(*f.CreatedBefore) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) SaveElection(_ context.Context, e *fit.BankHolderElection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.elections[e.ID]; !ok {
		return notFound("bank holder election", e.ID)
	}
	s.elections[e.ID] = *e
	return nil
}

func (s *Store) CreateVote(_ context.Context, v *fit.BankHolderVote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.votes {
		if existing.ElectionID == v.ElectionID && existing.VoterID == v.VoterID {
			return conflict("bank holder vote")
		}
	}
	v.ID = s.next()
	s.votes[v.ID] = *v
	return nil
}

func (s *Store) ListVotes(_ context.Context, electionID uint64) ([]fit.BankHolderVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []fit.BankHolderVote
	for _, id := range sortedKeys(s.votes) {
		if v := s.votes[id]; v.ElectionID == electionID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) UpsertPayment(_ context.Context, p *fit.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.payments[p.ParticipantID]; ok {
		p.ID = existing.ID
	} else {
		p.ID = s.next()
	}
	s.payments[p.ParticipantID] = *p
	return nil
}

func (s *Store) GetPayment(_ context.Context, participantID uint64) (*fit.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[participantID]
	if !ok {
		return nil, notFound("payment for participant", participantID)
	}
	return &p, nil
}

func (s *Store) DeletePayment(_ context.Context, participantID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.payments, participantID)
	return nil
}

func (s *Store) ListPayments(_ context.Context, participantIDs []uint64) ([]fit.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []fit.Payment
	for _, id := range participantIDs {
		if p, ok := s.payments[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) GetNotification(_ context.Context, kind fit.NotificationKind, ownerID uint64) (*fit.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[notificationKey{kind, ownerID}]
	if !ok {
		return nil, notFound("notification", fmt.Sprintf("%s/%d", kind, ownerID))
	}
	return &n, nil
}

func (s *Store) ListNotifications(_ context.Context, kind fit.NotificationKind, windowID uint64) ([]fit.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []fit.NotificationRecord
	for _, n := range s.notifications {
		if n.Kind == kind && n.WindowID == windowID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out, nil
}

func (s *Store) UpsertNotification(_ context.Context, n *fit.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := notificationKey{n.Kind, n.OwnerID}
	if existing, ok := s.notifications[key]; ok {
		n.ID = existing.ID
	} else {
		n.ID = s.next()
	}
	s.notifications[key] = *n
	return nil
}
