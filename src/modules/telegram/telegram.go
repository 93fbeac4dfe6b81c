// Package telegram runs the Telegram update loop and feeds it to the chat
// handler.
package telegram

import (
	"context"
	"fmt"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stake-plus/fitbet/src/chat"
	"github.com/stake-plus/fitbet/src/config"
	"github.com/stake-plus/fitbet/src/engine"
	"github.com/stake-plus/fitbet/src/modules/core"
	"github.com/stake-plus/fitbet/src/modules/scheduler"
)

var _ core.Module = (*Module)(nil)

const cmdTick = "tick"

// Sender is the part of tgbotapi.BotAPI the loop replies through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TickRunner lets the configured admin trigger a tick from chat.
type TickRunner interface {
	RunNow(ctx context.Context) scheduler.Report
}

// Module owns the long-polling loop.
type Module struct {
	cfg     config.TelegramConfig
	bot     *tgbotapi.BotAPI
	out     Sender
	handler *chat.Handler
	ticks   TickRunner
	now     func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New wraps an authenticated bot. ticks may be nil.
func New(cfg config.TelegramConfig, bot *tgbotapi.BotAPI, handler *chat.Handler, ticks TickRunner) *Module {
	return &Module{
		cfg:     cfg,
		bot:     bot,
		out:     bot,
		handler: handler,
		ticks:   ticks,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Name implements core.Module.
func (m *Module) Name() string { return "telegram" }

// Start begins long polling.
func (m *Module) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := m.bot.GetUpdatesChan(u)
	log.Printf("telegram: polling as @%s", m.bot.Self.UserName)

	go func() {
		defer close(m.done)
		for {
			select {
			case <-runCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				m.handleUpdate(runCtx, update)
			}
		}
	}()
	return nil
}

// Stop ends polling and waits for the loop to drain.
func (m *Module) Stop(context.Context) {
	if m.cancel == nil {
		return
	}
	m.bot.StopReceivingUpdates()
	m.cancel()
	<-m.done
	m.cancel = nil
}

func (m *Module) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("telegram: panic handling update %d: %v", update.UpdateID, r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		m.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		m.handleMessage(ctx, update.Message)
	}
}

func (m *Module) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	src := sourceOf(msg.From, msg.Chat)

	if msg.IsCommand() {
		name := msg.Command()
		if name == cmdTick {
			m.reply(msg.Chat.ID, m.adminTick(ctx, msg.From.ID))
			return
		}
		m.reply(msg.Chat.ID, m.handler.Command(ctx, m.now(), src, name, msg.CommandArguments()))
		return
	}

	if len(msg.Photo) > 0 {
		// Telegram lists sizes smallest first.
		largest := msg.Photo[len(msg.Photo)-1]
		if text, ok := m.handler.Photo(ctx, m.now(), src, largest.FileID); ok {
			m.reply(msg.Chat.ID, text)
		}
	}
}

func (m *Module) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil {
		return
	}
	var src chat.Source
	if cq.Message != nil {
		src = sourceOf(cq.From, cq.Message.Chat)
	} else {
		src = sourceOf(cq.From, nil)
	}
	text := m.handler.Callback(ctx, m.now(), src, cq.Data)
	if _, err := m.out.Request(tgbotapi.NewCallback(cq.ID, text)); err != nil {
		log.Printf("telegram: answer callback %s: %v", cq.ID, err)
	}
}

func (m *Module) adminTick(ctx context.Context, userID int64) string {
	if m.ticks == nil || m.cfg.AdminID == 0 || userID != m.cfg.AdminID {
		return "Unknown command. Send /help for the list."
	}
	rep := m.ticks.RunNow(ctx)
	switch {
	case rep.Skipped:
		return "Tick skipped: another instance holds the lease."
	case rep.Err != "":
		return fmt.Sprintf("Tick %s finished with errors: %s", rep.ID, rep.Err)
	}
	return fmt.Sprintf("Tick %s finished in %s.", rep.ID, rep.Elapsed.Round(time.Millisecond))
}

func (m *Module) reply(chatID int64, text string) {
	if text == "" {
		return
	}
	if _, err := m.out.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("telegram: reply to %d: %v", chatID, err)
	}
}

func sourceOf(from *tgbotapi.User, c *tgbotapi.Chat) chat.Source {
	src := chat.Source{Actor: engine.Actor{
		UserID:    from.ID,
		Username:  from.UserName,
		FirstName: from.FirstName,
	}}
	if c != nil && !c.IsPrivate() {
		src.ChatID = c.ID
		src.ChatTitle = c.Title
	}
	return src
}
