package events

import (
	"context"
	"testing"
	"time"
)

func TestValuesFlattensEvent(t *testing.T) {
	at := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	ev := Event{
		Type:        WindowClosed,
		ChallengeID: 9,
		UserID:      77,
		At:          at,
		Detail:      map[string]string{"window": "3", "type": "spoofed"},
	}
	got := ev.Values()
	if got["type"] != "window.closed" {
		t.Fatalf("type = %v", got["type"])
	}
	if got["challenge_id"] != "9" || got["user_id"] != "77" || got["window"] != "3" {
		t.Fatalf("values = %v", got)
	}
	if got["at"] != "2026-03-01T11:00:00Z" {
		t.Fatalf("at = %v", got["at"])
	}
}

func TestValuesOmitsZeroUser(t *testing.T) {
	if _, ok := (Event{Type: ChallengeActivated, ChallengeID: 1}).Values()["user_id"]; ok {
		t.Fatal("user_id should be omitted")
	}
}

func TestNopPublisher(t *testing.T) {
	if err := (Nop{}).Publish(context.Background(), Event{Type: ChallengeCreated}); err != nil {
		t.Fatalf("Nop.Publish = %v", err)
	}
}
