package fit

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Challenge is one group commitment instance scoped to one chat.
type Challenge struct {
	ID                  uint64          `gorm:"primaryKey;autoIncrement"`
	ChatID              int64           `gorm:"index;not null"`
	ChatTitle           string          `gorm:"size:255"`
	CreatorID           int64           `gorm:"not null"`
	Duration            int             `gorm:"not null"`
	DurationUnit        DurationUnit    `gorm:"size:8;not null"`
	Stake               decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DisciplineThreshold float64         `gorm:"not null"`
	MaxSkips            int             `gorm:"not null"`
	BankHolderID        *int64
	BankHolderUsername  *string         `gorm:"size:64"`
	Status              ChallengeStatus `gorm:"size:24;index;not null"`
	CreatedAt           time.Time
	StartedAt           *time.Time
	EndsAt              *time.Time `gorm:"index"`
}

func (Challenge) TableName() string { return "fit_challenges" }

// HasBankHolder reports whether an election already picked a holder.
func (c *Challenge) HasBankHolder() bool { return c.BankHolderID != nil }

// IsBankHolder reports whether userID is the elected holder.
func (c *Challenge) IsBankHolder(userID int64) bool {
	return c.BankHolderID != nil && *c.BankHolderID == userID
}

// Participant is one user's membership in one challenge.
type Participant struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	ChallengeID uint64 `gorm:"uniqueIndex:idx_participant_challenge_user;not null"`
	UserID      int64  `gorm:"uniqueIndex:idx_participant_challenge_user;index;not null"`
	Username    string `gorm:"size:64"`
	FirstName   string `gorm:"size:128"`

	Track        Track `gorm:"size:8"`
	StartWeight  float64
	StartWaist   float64
	Height       float64
	TargetWeight float64
	TargetWaist  float64

	StartPhotoFront string `gorm:"size:255"`
	StartPhotoLeft  string `gorm:"size:255"`
	StartPhotoRight string `gorm:"size:255"`
	StartPhotoBack  string `gorm:"size:255"`

	GoalValidation string `gorm:"size:16"`
	GoalFeedback   string `gorm:"type:text"`

	TotalCheckins     int `gorm:"not null;default:0"`
	CompletedCheckins int `gorm:"not null;default:0"`
	SkippedCheckins   int `gorm:"not null;default:0"`

	PendingCheckinWindowID    *uint64
	PendingCheckinRequestedAt *time.Time

	Status                ParticipantStatus `gorm:"size:24;index;not null"`
	JoinedAt              time.Time         `gorm:"index"`
	OnboardingCompletedAt *time.Time
}

func (Participant) TableName() string { return "fit_participants" }

// Label renders the participant the way group rosters show them.
func (p *Participant) Label() string {
	return UserLabel(p.UserID, p.Username, p.FirstName)
}

// UserLabel prefers @username, then first name, then the raw identity.
func UserLabel(userID int64, username, firstName string) string {
	if username != "" {
		return "@" + username
	}
	if firstName != "" {
		return firstName
	}
	return fmt.Sprintf("id %d", userID)
}

// CheckinWindow is a time-boxed opportunity to submit one check-in.
type CheckinWindow struct {
	ID             uint64       `gorm:"primaryKey;autoIncrement"`
	ChallengeID    uint64       `gorm:"uniqueIndex:idx_window_challenge_number;not null"`
	WindowNumber   int          `gorm:"uniqueIndex:idx_window_challenge_number;not null"`
	OpensAt        time.Time    `gorm:"index;not null"`
	ClosesAt       time.Time    `gorm:"index;not null"`
	ReminderSentAt *time.Time
	Status         WindowStatus `gorm:"size:16;index;not null"`
}

func (CheckinWindow) TableName() string { return "fit_checkin_windows" }

// Length is the window's total open duration.
func (w *CheckinWindow) Length() time.Duration { return w.ClosesAt.Sub(w.OpensAt) }

// Checkin is one participant's submission for one window.
type Checkin struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	ParticipantID uint64 `gorm:"uniqueIndex:idx_checkin_participant_window;not null"`
	WindowID      uint64 `gorm:"uniqueIndex:idx_checkin_participant_window;index;not null"`
	ChallengeID   uint64 `gorm:"index;not null"`
	Weight        float64
	Waist         float64
	PhotoFront    string `gorm:"size:255"`
	PhotoLeft     string `gorm:"size:255"`
	PhotoRight    string `gorm:"size:255"`
	PhotoBack     string `gorm:"size:255"`
	SubmittedAt   time.Time
}

func (Checkin) TableName() string { return "fit_checkins" }

// CheckinRecommendation stores advice generated for a check-in.
type CheckinRecommendation struct {
	ID                  uint64 `gorm:"primaryKey;autoIncrement"`
	CheckinID           uint64 `gorm:"uniqueIndex;not null"`
	ParticipantID       uint64 `gorm:"index;not null"`
	ProgressAssessment  string `gorm:"type:text"`
	NutritionAdvice     string `gorm:"type:text"`
	TrainingAdvice      string `gorm:"type:text"`
	MotivationalMessage string `gorm:"type:text"`
	WarningFlags        datatypes.JSON
	Model               string `gorm:"size:64"`
	LatencyMs           int64
	CreatedAt           time.Time
}

func (CheckinRecommendation) TableName() string { return "fit_checkin_recommendations" }

// BankHolderElection picks the participant who confirms payments.
type BankHolderElection struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	ChallengeID uint64         `gorm:"index;not null"`
	InitiatedBy int64          `gorm:"not null"`
	Status      ElectionStatus `gorm:"size:16;index;not null"`
	CreatedAt   time.Time      `gorm:"index"`
	CompletedAt *time.Time
}

func (BankHolderElection) TableName() string { return "fit_bankholder_elections" }

// BankHolderVote is one voter's ballot in one election.
type BankHolderVote struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	ElectionID uint64 `gorm:"uniqueIndex:idx_vote_election_voter;not null"`
	VoterID    int64  `gorm:"uniqueIndex:idx_vote_election_voter;not null"`
	VotedForID int64  `gorm:"not null"`
	VotedAt    time.Time
}

func (BankHolderVote) TableName() string { return "fit_bankholder_votes" }

// Payment tracks one participant's stake transfer.
type Payment struct {
	ID            uint64        `gorm:"primaryKey;autoIncrement"`
	ParticipantID uint64        `gorm:"uniqueIndex;not null"`
	Status        PaymentStatus `gorm:"size:16;not null"`
	MarkedPaidAt  *time.Time
	ConfirmedAt   *time.Time
	ConfirmedBy   *int64
}

func (Payment) TableName() string { return "fit_payments" }

// NotificationRecord remembers the latest check-in notification per group or participant.
type NotificationRecord struct {
	ID          uint64           `gorm:"primaryKey;autoIncrement"`
	Kind        NotificationKind `gorm:"size:8;uniqueIndex:idx_notification_owner;not null"`
	OwnerID     uint64           `gorm:"uniqueIndex:idx_notification_owner;not null"`
	RecipientID int64            `gorm:"not null"`
	MessageID   string           `gorm:"size:64;not null"`
	WindowID    uint64           `gorm:"index"`
	UpdatedAt   time.Time
}

func (NotificationRecord) TableName() string { return "fit_notifications" }

// Setting represents a configuration setting stored in the database
type Setting struct {
	ID     uint8  `gorm:"primaryKey"`
	Name   string `gorm:"size:64;not null"`
	Value  string `gorm:"type:text;not null"`
	Active uint8  `gorm:"not null"`
}

func (Setting) TableName() string { return "settings" }

// Models lists every persisted type for migration.
func Models() []any {
	return []any{
		&Setting{},
		&Challenge{},
		&Participant{},
		&CheckinWindow{},
		&Checkin{},
		&CheckinRecommendation{},
		&BankHolderElection{},
		&BankHolderVote{},
		&Payment{},
		&NotificationRecord{},
	}
}
