package httpapi

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/stake-plus/fitbet/src/shared/fit"
)

type challengeView struct {
	ID                  uint64          `json:"id"`
	ChatID              int64           `json:"chat_id"`
	ChatTitle           string          `json:"chat_title"`
	CreatorID           int64           `json:"creator_id"`
	Duration            int             `json:"duration"`
	DurationUnit        string          `json:"duration_unit"`
	Stake               decimal.Decimal `json:"stake"`
	DisciplineThreshold float64         `json:"discipline_threshold"`
	MaxSkips            int             `json:"max_skips"`
	BankHolderID        *int64          `json:"bank_holder_id,omitempty"`
	Status              string          `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	StartedAt           *time.Time      `json:"started_at,omitempty"`
	EndsAt              *time.Time      `json:"ends_at,omitempty"`
}

func newChallengeView(c *fit.Challenge) challengeView {
	return challengeView{
		ID:                  c.ID,
		ChatID:              c.ChatID,
		ChatTitle:           c.ChatTitle,
		CreatorID:           c.CreatorID,
		Duration:            c.Duration,
		DurationUnit:        string(c.DurationUnit),
		Stake:               c.Stake,
		DisciplineThreshold: c.DisciplineThreshold,
		MaxSkips:            c.MaxSkips,
		BankHolderID:        c.BankHolderID,
		Status:              string(c.Status),
		CreatedAt:           c.CreatedAt,
		StartedAt:           c.StartedAt,
		EndsAt:              c.EndsAt,
	}
}

type participantView struct {
	ID                uint64 `json:"id"`
	UserID            int64  `json:"user_id"`
	Label             string `json:"label"`
	Status            string `json:"status"`
	Track             string `json:"track,omitempty"`
	TotalCheckins     int    `json:"total_checkins"`
	CompletedCheckins int    `json:"completed_checkins"`
	SkippedCheckins   int    `json:"skipped_checkins"`
}

func newParticipantViews(ps []fit.Participant) []participantView {
	out := make([]participantView, 0, len(ps))
	for i := range ps {
		p := &ps[i]
		out = append(out, participantView{
			ID:                p.ID,
			UserID:            p.UserID,
			Label:             p.Label(),
			Status:            string(p.Status),
			Track:             string(p.Track),
			TotalCheckins:     p.TotalCheckins,
			CompletedCheckins: p.CompletedCheckins,
			SkippedCheckins:   p.SkippedCheckins,
		})
	}
	return out
}

type windowView struct {
	ID             uint64     `json:"id"`
	Number         int        `json:"number"`
	OpensAt        time.Time  `json:"opens_at"`
	ClosesAt       time.Time  `json:"closes_at"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
	Status         string     `json:"status"`
}

func newWindowViews(ws []fit.CheckinWindow) []windowView {
	out := make([]windowView, 0, len(ws))
	for i := range ws {
		w := &ws[i]
		out = append(out, windowView{
			ID:             w.ID,
			Number:         w.WindowNumber,
			OpensAt:        w.OpensAt,
			ClosesAt:       w.ClosesAt,
			ReminderSentAt: w.ReminderSentAt,
			Status:         string(w.Status),
		})
	}
	return out
}
