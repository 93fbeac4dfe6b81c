// Package discord delivers notifications through a Discord bot session.
// Group recipients are channel snowflakes; direct recipients are user
// snowflakes resolved to DM channels on each call.
package discord

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/fitbet/src/notify"
)

const maxButtonsPerRow = 5

// Notifier sends through a discordgo session.
type Notifier struct {
	session *discordgo.Session
}

var _ notify.Notifier = (*Notifier)(nil)

// New wraps an open session.
func New(session *discordgo.Session) *Notifier {
	return &Notifier{session: session}
}

func (n *Notifier) channelFor(to notify.Recipient) (string, error) {
	id := strconv.FormatInt(to.ID, 10)
	if to.Kind != notify.Direct {
		return id, nil
	}
	ch, err := n.session.UserChannelCreate(id)
	if err != nil {
		return "", fmt.Errorf("discord: open DM with %s: %w", id, err)
	}
	return ch.ID, nil
}

func (n *Notifier) Send(_ context.Context, to notify.Recipient, msg notify.Message) (string, error) {
	channelID, err := n.channelFor(to)
	if err != nil {
		return "", err
	}
	send := &discordgo.MessageSend{Content: msg.Text}
	if comps := Components(msg.Actions); len(comps) > 0 {
		send.Components = comps
	}
	sent, err := n.session.ChannelMessageSendComplex(channelID, send)
	if err != nil {
		return "", fmt.Errorf("discord: send to %s: %w", channelID, err)
	}
	return sent.ID, nil
}

func (n *Notifier) EditActions(_ context.Context, to notify.Recipient, messageID string, actions [][]notify.Action) error {
	channelID, err := n.channelFor(to)
	if err != nil {
		return err
	}
	edit := discordgo.NewMessageEdit(channelID, messageID)
	components := Components(actions)
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	edit.Components = &components
	if _, err := n.session.ChannelMessageEditComplex(edit); err != nil {
		return fmt.Errorf("discord: edit %s/%s: %w", channelID, messageID, err)
	}
	return nil
}

func (n *Notifier) Delete(_ context.Context, to notify.Recipient, messageID string) error {
	channelID, err := n.channelFor(to)
	if err != nil {
		return err
	}
	if err := n.session.ChannelMessageDelete(channelID, messageID); err != nil {
		return fmt.Errorf("discord: delete %s/%s: %w", channelID, messageID, err)
	}
	return nil
}

// Components maps action rows to button rows, splitting rows wider than
// Discord allows.
func Components(rows [][]notify.Action) []discordgo.MessageComponent {
	var components []discordgo.MessageComponent
	for _, row := range rows {
		var current []discordgo.MessageComponent
		for _, a := range row {
			current = append(current, discordgo.Button{
				Label:    a.Label,
				Style:    discordgo.PrimaryButton,
				CustomID: a.Data,
			})
			if len(current) == maxButtonsPerRow {
				components = append(components, discordgo.ActionsRow{Components: current})
				current = nil
			}
		}
		if len(current) > 0 {
			components = append(components, discordgo.ActionsRow{Components: current})
		}
	}
	return components
}
