// Package telegram delivers notifications through the Telegram Bot API.
// Group recipients are chat IDs; direct recipients are user IDs, which double
// as private chat IDs.
package telegram

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stake-plus/fitbet/src/notify"
)

// Notifier sends through a bot session.
type Notifier struct {
	bot *tgbotapi.BotAPI
}

var _ notify.Notifier = (*Notifier)(nil)

// New wraps an authenticated bot.
func New(bot *tgbotapi.BotAPI) *Notifier {
	return &Notifier{bot: bot}
}

func (n *Notifier) Send(_ context.Context, to notify.Recipient, msg notify.Message) (string, error) {
	out := tgbotapi.NewMessage(to.ID, msg.Text)
	if len(msg.Actions) > 0 {
		out.ReplyMarkup = Keyboard(msg.Actions)
	}
	sent, err := n.bot.Send(out)
	if err != nil {
		return "", fmt.Errorf("telegram: send to %d: %w", to.ID, err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

func (n *Notifier) EditActions(_ context.Context, to notify.Recipient, messageID string, actions [][]notify.Action) error {
	id, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("telegram: bad message id %q: %w", messageID, err)
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(to.ID, id, Keyboard(actions))
	if _, err := n.bot.Request(edit); err != nil {
		return fmt.Errorf("telegram: edit %d/%d: %w", to.ID, id, err)
	}
	return nil
}

func (n *Notifier) Delete(_ context.Context, to notify.Recipient, messageID string) error {
	id, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("telegram: bad message id %q: %w", messageID, err)
	}
	if _, err := n.bot.Request(tgbotapi.NewDeleteMessage(to.ID, id)); err != nil {
		return fmt.Errorf("telegram: delete %d/%d: %w", to.ID, id, err)
	}
	return nil
}

// Keyboard converts action rows to an inline keyboard. An empty input yields
// an empty keyboard, which removes existing buttons when used in an edit.
func Keyboard(rows [][]notify.Action) tgbotapi.InlineKeyboardMarkup {
	keyboard := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, a := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Data))
		}
		keyboard.InlineKeyboard = append(keyboard.InlineKeyboard, buttons)
	}
	return keyboard
}
