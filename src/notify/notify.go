// Package notify delivers best-effort messages to groups and users.
package notify

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
)

// RecipientKind distinguishes group chats from direct messages.
type RecipientKind string

const (
	Group  RecipientKind = "group"
	Direct RecipientKind = "direct"
)

// Recipient identifies where a message goes.
type Recipient struct {
	ID   int64
	Kind RecipientKind
}

// GroupChat addresses a group chat.
func GroupChat(id int64) Recipient { return Recipient{ID: id, Kind: Group} }

// User addresses one user directly.
func User(id int64) Recipient { return Recipient{ID: id, Kind: Direct} }

// Action is one tappable affordance. Data is an opaque callback payload.
type Action struct {
	Label string
	Data  string
}

// Message is the text plus optional rows of actions.
type Message struct {
	Text    string
	Actions [][]Action
}

// Notifier is the outbound channel. All methods may fail; callers treat
// failures as advisory.
type Notifier interface {
	Send(ctx context.Context, to Recipient, msg Message) (string, error)
	EditActions(ctx context.Context, to Recipient, messageID string, actions [][]Action) error
	Delete(ctx context.Context, to Recipient, messageID string) error
}

// Log writes every message to the standard logger. Useful when no chat
// platform is configured.
type Log struct {
	mu  sync.Mutex
	seq int
}

func (l *Log) Send(_ context.Context, to Recipient, msg Message) (string, error) {
	l.mu.Lock()
	l.seq++
	id := l.seq
	l.mu.Unlock()
	log.Printf("notify: %s %d: %s%s", to.Kind, to.ID, msg.Text, describeActions(msg.Actions))
	return strconv.Itoa(id), nil
}

func (l *Log) EditActions(_ context.Context, to Recipient, messageID string, actions [][]Action) error {
	log.Printf("notify: %s %d: edit %s%s", to.Kind, to.ID, messageID, describeActions(actions))
	return nil
}

func (l *Log) Delete(_ context.Context, to Recipient, messageID string) error {
	log.Printf("notify: %s %d: delete %s", to.Kind, to.ID, messageID)
	return nil
}

func describeActions(rows [][]Action) string {
	if len(rows) == 0 {
		return ""
	}
	var labels []string
	for _, row := range rows {
		for _, a := range row {
			labels = append(labels, a.Label)
		}
	}
	return " [" + strings.Join(labels, " | ") + "]"
}
