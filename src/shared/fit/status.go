package fit

import "time"

// ChallengeStatus is the lifecycle state of a challenge.
type ChallengeStatus string

const (
	ChallengeDraft           ChallengeStatus = "draft"
	ChallengePendingPayments ChallengeStatus = "pending_payments"
	ChallengeActive          ChallengeStatus = "active"
	ChallengeCompleted       ChallengeStatus = "completed"
	ChallengeCancelled       ChallengeStatus = "cancelled"
)

// Valid reports whether s is a known challenge status.
func (s ChallengeStatus) Valid() bool {
	switch s {
	case ChallengeDraft, ChallengePendingPayments, ChallengeActive, ChallengeCompleted, ChallengeCancelled:
		return true
	}
	return false
}

// Live reports whether the challenge still occupies its chat.
func (s ChallengeStatus) Live() bool {
	switch s {
	case ChallengeDraft, ChallengePendingPayments, ChallengeActive:
		return true
	case ChallengeCompleted, ChallengeCancelled:
		return false
	}
	return false
}

// PreActive reports whether the challenge has not started yet and is not terminal.
func (s ChallengeStatus) PreActive() bool {
	switch s {
	case ChallengeDraft, ChallengePendingPayments:
		return true
	case ChallengeActive, ChallengeCompleted, ChallengeCancelled:
		return false
	}
	return false
}

// ParticipantStatus is the lifecycle state of a participant.
type ParticipantStatus string

const (
	ParticipantOnboarding    ParticipantStatus = "onboarding"
	ParticipantPendingPay    ParticipantStatus = "pending_payment"
	ParticipantPaymentMarked ParticipantStatus = "payment_marked"
	ParticipantActive        ParticipantStatus = "active"
	ParticipantCompleted     ParticipantStatus = "completed"
	ParticipantDropped       ParticipantStatus = "dropped"
	ParticipantDisqualified  ParticipantStatus = "disqualified"
)

// Valid reports whether s is a known participant status.
func (s ParticipantStatus) Valid() bool {
	switch s {
	case ParticipantOnboarding, ParticipantPendingPay, ParticipantPaymentMarked, ParticipantActive,
		ParticipantCompleted, ParticipantDropped, ParticipantDisqualified:
		return true
	}
	return false
}

// ElectionEligible reports whether the participant may vote and be voted for.
func (s ParticipantStatus) ElectionEligible() bool {
	switch s {
	case ParticipantPendingPay, ParticipantPaymentMarked, ParticipantActive:
		return true
	case ParticipantOnboarding, ParticipantCompleted, ParticipantDropped, ParticipantDisqualified:
		return false
	}
	return false
}

// BlocksActivation reports whether a participant in this status keeps the challenge from starting.
func (s ParticipantStatus) BlocksActivation() bool {
	switch s {
	case ParticipantOnboarding, ParticipantPendingPay, ParticipantPaymentMarked:
		return true
	case ParticipantActive, ParticipantCompleted, ParticipantDropped, ParticipantDisqualified:
		return false
	}
	return false
}

// Live reports whether the participant still takes part in their challenge.
func (s ParticipantStatus) Live() bool {
	switch s {
	case ParticipantOnboarding, ParticipantPendingPay, ParticipantPaymentMarked, ParticipantActive:
		return true
	case ParticipantCompleted, ParticipantDropped, ParticipantDisqualified:
		return false
	}
	return false
}

// EligibleStatuses lists the statuses counted by the bank holder election.
var EligibleStatuses = []ParticipantStatus{ParticipantPendingPay, ParticipantPaymentMarked, ParticipantActive}

// BlockingStatuses lists the statuses that hold back activation.
var BlockingStatuses = []ParticipantStatus{ParticipantOnboarding, ParticipantPendingPay, ParticipantPaymentMarked}

// WindowStatus is the lifecycle state of a check-in window.
type WindowStatus string

const (
	WindowScheduled WindowStatus = "scheduled"
	WindowOpen      WindowStatus = "open"
	WindowClosed    WindowStatus = "closed"
)

// Valid reports whether s is a known window status.
func (s WindowStatus) Valid() bool {
	switch s {
	case WindowScheduled, WindowOpen, WindowClosed:
		return true
	}
	return false
}

// ElectionStatus is the lifecycle state of a bank holder election.
type ElectionStatus string

const (
	ElectionInProgress ElectionStatus = "in_progress"
	ElectionCompleted  ElectionStatus = "completed"
	ElectionCancelled  ElectionStatus = "cancelled"
)

// Valid reports whether s is a known election status.
func (s ElectionStatus) Valid() bool {
	switch s {
	case ElectionInProgress, ElectionCompleted, ElectionCancelled:
		return true
	}
	return false
}

// PaymentStatus is the state of a participant's stake transfer.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentMarkedPaid PaymentStatus = "marked_paid"
	PaymentConfirmed  PaymentStatus = "confirmed"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentMarkedPaid, PaymentConfirmed:
		return true
	}
	return false
}

// Track is the participant's goal direction.
type Track string

const (
	TrackCut  Track = "cut"
	TrackBulk Track = "bulk"
)

// ParseTrack accepts "cut" or "bulk" in any case.
func ParseTrack(raw string) (Track, error) {
	switch Track(lower(raw)) {
	case TrackCut:
		return TrackCut, nil
	case TrackBulk:
		return TrackBulk, nil
	}
	return "", Validationf("track must be cut or bulk, got %q", raw)
}

// DurationUnit is the unit a challenge's duration is counted in.
type DurationUnit string

const (
	UnitHours  DurationUnit = "hours"
	UnitDays   DurationUnit = "days"
	UnitMonths DurationUnit = "months"
)

// ParseDurationUnit accepts hours, days or months. Empty defaults to months.
func ParseDurationUnit(raw string) (DurationUnit, error) {
	switch DurationUnit(lower(raw)) {
	case UnitHours:
		return UnitHours, nil
	case UnitDays:
		return UnitDays, nil
	case UnitMonths, "":
		return UnitMonths, nil
	}
	return "", Validationf("duration unit must be hours, days or months, got %q", raw)
}

// Add returns start moved forward by n units. Months use calendar arithmetic.
func (u DurationUnit) Add(start time.Time, n int) time.Time {
	switch u {
	case UnitHours:
		return start.Add(time.Duration(n) * time.Hour)
	case UnitDays:
		return start.Add(time.Duration(n) * 24 * time.Hour)
	case UnitMonths:
		return start.AddDate(0, n, 0)
	}
	return start.AddDate(0, n, 0)
}

// NotificationKind distinguishes group and per-participant notification tracking.
type NotificationKind string

const (
	NotificationGroup  NotificationKind = "group"
	NotificationDirect NotificationKind = "direct"
)
