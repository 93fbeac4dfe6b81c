// Package events publishes engine lifecycle events to a Redis stream so other
// services can follow challenges without polling the database.
package events

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the stream key events are appended to.
const DefaultStream = "fitbet.events"

// Type names a lifecycle event.
type Type string

const (
	ChallengeCreated        Type = "challenge.created"
	ChallengeActivated      Type = "challenge.activated"
	ChallengeSettled        Type = "challenge.settled"
	ChallengeCancelled      Type = "challenge.cancelled"
	ElectionStarted         Type = "election.started"
	ElectionFinalized       Type = "election.finalized"
	PaymentConfirmed        Type = "payment.confirmed"
	WindowOpened            Type = "window.opened"
	WindowClosed            Type = "window.closed"
	CheckinSubmitted        Type = "checkin.submitted"
	ParticipantDropped      Type = "participant.dropped"
	ParticipantDisqualified Type = "participant.disqualified"
)

// Event is one lifecycle fact.
type Event struct {
	Type        Type
	ChallengeID uint64
	UserID      int64
	At          time.Time
	Detail      map[string]string
}

// Values flattens the event into stream fields.
func (e Event) Values() map[string]interface{} {
	out := map[string]interface{}{
		"type":         string(e.Type),
		"challenge_id": strconv.FormatUint(e.ChallengeID, 10),
		"at":           e.At.UTC().Format(time.RFC3339),
	}
	if e.UserID != 0 {
		out["user_id"] = strconv.FormatInt(e.UserID, 10)
	}
	for k, v := range e.Detail {
		if _, taken := out[k]; !taken {
			out[k] = v
		}
	}
	return out
}

// Publisher accepts events. Publishing is advisory; callers log failures.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Redis appends events to a capped stream.
type Redis struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewRedis returns a publisher on stream (DefaultStream when empty), trimmed
// approximately to maxLen entries when maxLen > 0.
func NewRedis(rdb *redis.Client, stream string, maxLen int64) *Redis {
	if stream == "" {
		stream = DefaultStream
	}
	return &Redis{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: ev.Values(),
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	_, err := r.rdb.XAdd(ctx, args).Result()
	return err
}
