package fit

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// CallbackKind names the one-shot affordances attached to notifications.
type CallbackKind string

const (
	CallbackJoin    CallbackKind = "join"
	CallbackPaid    CallbackKind = "paid"
	CallbackConfirm CallbackKind = "confirm"
	CallbackVote    CallbackKind = "vote"
	CallbackCheckin CallbackKind = "checkin"
)

// Callback is a parsed affordance payload.
type Callback struct {
	Kind CallbackKind
	// ID is the challenge, participant, election or window the callback refers to.
	ID uint64
	// Candidate is only set for votes.
	Candidate int64
}

// JoinData builds the join payload for a challenge.
func JoinData(challengeID uint64) string { return fmt.Sprintf("join_%d", challengeID) }

// PaidData builds the mark-paid payload for a participant.
func PaidData(participantID uint64) string { return fmt.Sprintf("paid_%d", participantID) }

// ConfirmData builds the confirm-payment payload for a participant.
func ConfirmData(participantID uint64) string { return fmt.Sprintf("confirm_%d", participantID) }

// VoteData builds the ballot payload for a candidate in an election.
func VoteData(electionID uint64, candidate int64) string {
	return fmt.Sprintf("vote_%d_%d", electionID, candidate)
}

// CheckinData builds the check-in request payload for a window.
func CheckinData(windowID uint64) string { return fmt.Sprintf("checkin_%d", windowID) }

// ParseCallback decodes the payloads produced by the *Data builders.
func ParseCallback(data string) (Callback, error) {
	parts := strings.Split(strings.TrimSpace(data), "_")
	if len(parts) < 2 {
		return Callback{}, Validationf("unknown action %q", data)
	}
	kind := CallbackKind(parts[0])
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || id == 0 {
		return Callback{}, Validationf("invalid action id in %q", data)
	}
	cb := Callback{Kind: kind, ID: id}
	switch kind {
	case CallbackJoin, CallbackPaid, CallbackConfirm, CallbackCheckin:
		if len(parts) != 2 {
			return Callback{}, Validationf("unexpected action payload %q", data)
		}
	case CallbackVote:
		if len(parts) != 3 {
			return Callback{}, Validationf("unexpected vote payload %q", data)
		}
		candidate, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return Callback{}, Validationf("invalid candidate in %q", data)
		}
		cb.Candidate = candidate
	default:
		return Callback{}, Validationf("unknown action %q", data)
	}
	return cb, nil
}

var namePolicy = bluemonday.StrictPolicy()

// CleanName strips markup from user-supplied names and titles and caps their length.
func CleanName(raw string, max int) string {
	cleaned := html.UnescapeString(namePolicy.Sanitize(raw))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if max > 0 {
		if r := []rune(cleaned); len(r) > max {
			cleaned = string(r[:max])
		}
	}
	return cleaned
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
