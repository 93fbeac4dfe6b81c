// Package gormstore implements store.Store on top of gorm. The connection
// must be opened with TranslateError so duplicate keys surface as
// gorm.ErrDuplicatedKey.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/stake-plus/fitbet/src/shared/fit"
	"github.com/stake-plus/fitbet/src/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the gorm-backed store.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an open gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that need raw access.
func (s *Store) DB() *gorm.DB { return s.db }

func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("gormstore: %s: %w", op, fit.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("gormstore: %s: %w", op, fit.ErrConflict)
	}
	return fmt.Errorf("gormstore: %s: %w", op, err)
}

func (s *Store) CreateChallenge(ctx context.Context, c *fit.Challenge) error {
	return translate("create challenge", s.db.WithContext(ctx).Create(c).Error)
}

func (s *Store) GetChallenge(ctx context.Context, id uint64) (*fit.Challenge, error) {
	var c fit.Challenge
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, translate("get challenge", err)
	}
	return &c, nil
}

func (s *Store) ListChallenges(ctx context.Context, f store.ChallengeFilter) ([]fit.Challenge, error) {
	q := s.db.WithContext(ctx).Model(&fit.Challenge{})
	if f.ChatID != 0 {
		q = q.Where("chat_id = ?", f.ChatID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.EndsAtOrBefore != nil {
		q = q.Where("ends_at IS NOT NULL AND ends_at <= ?", *f.EndsAtOrBefore)
	}
	var out []fit.Challenge
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		return nil, translate("list challenges", err)
	}
	return out, nil
}

func (s *Store) SaveChallenge(ctx context.Context, c *fit.Challenge) error {
	return translate("save challenge", s.db.WithContext(ctx).Save(c).Error)
}

func (s *Store) CreateParticipant(ctx context.Context, p *fit.Participant) error {
	return translate("create participant", s.db.WithContext(ctx).Create(p).Error)
}

func (s *Store) GetParticipant(ctx context.Context, id uint64) (*fit.Participant, error) {
	var p fit.Participant
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate("get participant", err)
	}
	return &p, nil
}

func (s *Store) FindParticipant(ctx context.Context, challengeID uint64, userID int64) (*fit.Participant, error) {
	var p fit.Participant
	err := s.db.WithContext(ctx).
		Where("challenge_id = ? AND user_id = ?", challengeID, userID).
		First(&p).Error
	if err != nil {
		return nil, translate("find participant", err)
	}
	return &p, nil
}

func participantQuery(db *gorm.DB, f store.ParticipantFilter) *gorm.DB {
	q := db.Model(&fit.Participant{})
	if f.ChallengeID != 0 {
		q = q.Where("challenge_id = ?", f.ChallengeID)
	}
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.JoinedBefore != nil {
		q = q.Where("joined_at <= ?", *f.JoinedBefore)
	}
	return q
}

func (s *Store) ListParticipants(ctx context.Context, f store.ParticipantFilter) ([]fit.Participant, error) {
	var out []fit.Participant
	if err := participantQuery(s.db.WithContext(ctx), f).Order("id ASC").Find(&out).Error; err != nil {
		return nil, translate("list participants", err)
	}
	return out, nil
}

func (s *Store) CountParticipants(ctx context.Context, f store.ParticipantFilter) (int64, error) {
	var n int64
	if err := participantQuery(s.db.WithContext(ctx), f).Count(&n).Error; err != nil {
		return 0, translate("count participants", err)
	}
	return n, nil
}

func (s *Store) SaveParticipant(ctx context.Context, p *fit.Participant) error {
	return translate("save participant", s.db.WithContext(ctx).Save(p).Error)
}

func (s *Store) ReplaceWindows(ctx context.Context, challengeID uint64, ws []fit.CheckinWindow) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("challenge_id = ?", challengeID).Delete(&fit.CheckinWindow{}).Error; err != nil {
			return err
		}
		if len(ws) == 0 {
			return nil
		}
		for i := range ws {
			ws[i].ChallengeID = challengeID
		}
		return tx.Create(&ws).Error
	})
	return translate("replace windows", err)
}

func (s *Store) GetWindow(ctx context.Context, id uint64) (*fit.CheckinWindow, error) {
	var w fit.CheckinWindow
	if err := s.db.WithContext(ctx).First(&w, id).Error; err != nil {
		return nil, translate("get window", err)
	}
	return &w, nil
}

func (s *Store) ListWindows(ctx context.Context, f store.WindowFilter) ([]fit.CheckinWindow, error) {
	q := s.db.WithContext(ctx).Model(&fit.CheckinWindow{})
	if f.ChallengeID != 0 {
		q = q.Where("challenge_id = ?", f.ChallengeID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.OpensAtOrBefore != nil {
		q = q.Where("opens_at <= ?", *f.OpensAtOrBefore)
	}
	if f.ClosesAtOrBefore != nil {
		q = q.Where("closes_at <= ?", *f.ClosesAtOrBefore)
	}
	if f.Unreminded {
		q = q.Where("reminder_sent_at IS NULL")
	}
	var out []fit.CheckinWindow
	if err := q.Order("opens_at ASC, challenge_id ASC, window_number ASC").Find(&out).Error; err != nil {
		return nil, translate("list windows", err)
	}
	return out, nil
}

func (s *Store) SaveWindow(ctx context.Context, w *fit.CheckinWindow) error {
	return translate("save window", s.db.WithContext(ctx).Save(w).Error)
}

// CloseWindow flips the window with a conditional update so a second closer
// matches no row and rolls back before touching any participant.
func (s *Store) CloseWindow(ctx context.Context, w *fit.CheckinWindow, tallied []fit.Participant) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&fit.CheckinWindow{}).
			Where("id = ? AND status = ?", w.ID, fit.WindowOpen).
			Updates(map[string]any{"status": w.Status, "closes_at": w.ClosesAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrDuplicatedKey
		}
		for i := range tallied {
			if err := tx.Save(&tallied[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return translate("close window", err)
}

func (s *Store) CreateCheckin(ctx context.Context, c *fit.Checkin) error {
	return translate("create checkin", s.db.WithContext(ctx).Create(c).Error)
}

func (s *Store) FindCheckin(ctx context.Context, participantID, windowID uint64) (*fit.Checkin, error) {
	var c fit.Checkin
	err := s.db.WithContext(ctx).
		Where("participant_id = ? AND window_id = ?", participantID, windowID).
		First(&c).Error
	if err != nil {
		return nil, translate("find checkin", err)
	}
	return &c, nil
}

func (s *Store) ListCheckins(ctx context.Context, windowID uint64) ([]fit.Checkin, error) {
	var out []fit.Checkin
	if err := s.db.WithContext(ctx).Where("window_id = ?", windowID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, translate("list checkins", err)
	}
	return out, nil
}

func (s *Store) LatestCheckin(ctx context.Context, participantID uint64) (*fit.Checkin, error) {
	var c fit.Checkin
	err := s.db.WithContext(ctx).
		Where("participant_id = ?", participantID).
		Order("submitted_at DESC, id DESC").
		First(&c).Error
	if err != nil {
		return nil, translate("latest checkin", err)
	}
	return &c, nil
}

func (s *Store) CreateRecommendation(ctx context.Context, r *fit.CheckinRecommendation) error {
	return translate("create recommendation", s.db.WithContext(ctx).Create(r).Error)
}

// CreateElection locks the challenge's in-progress elections so two starts
// cannot both succeed.
func (s *Store) CreateElection(ctx context.Context, e *fit.BankHolderElection) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if e.Status == fit.ElectionInProgress {
			var open []fit.BankHolderElection
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("challenge_id = ? AND status = ?", e.ChallengeID, fit.ElectionInProgress).
				Find(&open).Error
			if err != nil {
				return err
			}
			if len(open) > 0 {
				return gorm.ErrDuplicatedKey
			}
		}
		return tx.Create(e).Error
	})
	return translate("create election", err)
}

func (s *Store) GetElection(ctx context.Context, id uint64) (*fit.BankHolderElection, error) {
	var e fit.BankHolderElection
	if err := s.db.WithContext(ctx).First(&e, id).Error; err != nil {
		return nil, translate("get election", err)
	}
	return &e, nil
}

func (s *Store) ListElections(ctx context.Context, f store.ElectionFilter) ([]fit.BankHolderElection, error) {
	q := s.db.WithContext(ctx).Model(&fit.BankHolderElection{})
	if f.ChallengeID != 0 {
		q = q.Where("challenge_id = ?", f.ChallengeID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CreatedBefore != nil {
		q = q.Where("created_at <= ?", *f.CreatedBefore)
	}
	var out []fit.BankHolderElection
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		return nil, translate("list elections", err)
	}
	return out, nil
}

func (s *Store) SaveElection(ctx context.Context, e *fit.BankHolderElection) error {
	return translate("save election", s.db.WithContext(ctx).Save(e).Error)
}

func (s *Store) CreateVote(ctx context.Context, v *fit.BankHolderVote) error {
	return translate("create vote", s.db.WithContext(ctx).Create(v).Error)
}

func (s *Store) ListVotes(ctx context.Context, electionID uint64) ([]fit.BankHolderVote, error) {
	var out []fit.BankHolderVote
	if err := s.db.WithContext(ctx).Where("election_id = ?", electionID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, translate("list votes", err)
	}
	return out, nil
}

func (s *Store) UpsertPayment(ctx context.Context, p *fit.Payment) error {
	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "participant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "marked_paid_at", "confirmed_at", "confirmed_by"}),
	}).Create(p).Error
	if err != nil {
		return translate("upsert payment", err)
	}
	var stored fit.Payment
	if err := db.Where("participant_id = ?", p.ParticipantID).First(&stored).Error; err != nil {
		return translate("reload payment", err)
	}
	p.ID = stored.ID
	return nil
}

func (s *Store) GetPayment(ctx context.Context, participantID uint64) (*fit.Payment, error) {
	var p fit.Payment
	if err := s.db.WithContext(ctx).Where("participant_id = ?", participantID).First(&p).Error; err != nil {
		return nil, translate("get payment", err)
	}
	return &p, nil
}

func (s *Store) DeletePayment(ctx context.Context, participantID uint64) error {
	return translate("delete payment", s.db.WithContext(ctx).Where("participant_id = ?", participantID).Delete(&fit.Payment{}).Error)
}

func (s *Store) ListPayments(ctx context.Context, participantIDs []uint64) ([]fit.Payment, error) {
	if len(participantIDs) == 0 {
		return nil, nil
	}
	var out []fit.Payment
	if err := s.db.WithContext(ctx).Where("participant_id IN ?", participantIDs).Order("participant_id ASC").Find(&out).Error; err != nil {
		return nil, translate("list payments", err)
	}
	return out, nil
}

func (s *Store) GetNotification(ctx context.Context, kind fit.NotificationKind, ownerID uint64) (*fit.NotificationRecord, error) {
	var n fit.NotificationRecord
	err := s.db.WithContext(ctx).Where("kind = ? AND owner_id = ?", kind, ownerID).First(&n).Error
	if err != nil {
		return nil, translate("get notification", err)
	}
	return &n, nil
}

func (s *Store) ListNotifications(ctx context.Context, kind fit.NotificationKind, windowID uint64) ([]fit.NotificationRecord, error) {
	var out []fit.NotificationRecord
	err := s.db.WithContext(ctx).Where("kind = ? AND window_id = ?", kind, windowID).Order("owner_id ASC").Find(&out).Error
	if err != nil {
		return nil, translate("list notifications", err)
	}
	return out, nil
}

func (s *Store) UpsertNotification(ctx context.Context, n *fit.NotificationRecord) error {
	return translate("upsert notification", s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"recipient_id", "message_id", "window_id", "updated_at"}),
	}).Create(n).Error)
}
