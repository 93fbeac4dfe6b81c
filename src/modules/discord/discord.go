// Package discord runs the Discord gateway session and feeds slash commands,
// button presses and DM attachments to the chat handler.
package discord

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/fitbet/src/chat"
	"github.com/stake-plus/fitbet/src/config"
	"github.com/stake-plus/fitbet/src/engine"
	"github.com/stake-plus/fitbet/src/modules/core"
)

var _ core.Module = (*Module)(nil)

// Module owns the gateway connection.
type Module struct {
	cfg     config.DiscordConfig
	session *discordgo.Session
	handler *chat.Handler
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSession creates an unopened bot session with the intents the module needs.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages
	return session, nil
}

// New wires handlers onto session; Start opens it.
func New(cfg config.DiscordConfig, session *discordgo.Session, handler *chat.Handler) *Module {
	m := &Module{
		cfg:     cfg,
		session: session,
		handler: handler,
		now:     func() time.Time { return time.Now().UTC() },
		ctx:     context.Background(),
	}
	session.AddHandler(m.onReady)
	session.AddHandler(m.onInteractionCreate)
	session.AddHandler(m.onMessageCreate)
	return m
}

// Name implements core.Module.
func (m *Module) Name() string { return "discord" }

// Start opens the gateway.
func (m *Module) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)
	if err := m.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	return nil
}

// Stop closes the gateway.
func (m *Module) Stop(context.Context) {
	if m.cancel != nil {
		m.cancel()
	}
	if err := m.session.Close(); err != nil {
		log.Printf("discord: close session: %v", err)
	}
}

func (m *Module) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("discord: logged in as %s", r.User.String())
	if err := RegisterSlashCommands(s, m.cfg.GuildID); err != nil {
		log.Printf("discord: %v", err)
	}
}

func (m *Module) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	src, ok := m.sourceOf(s, i.Interaction)
	if !ok {
		log.Printf("discord: interaction %s without a resolvable user", i.ID)
		return
	}

	var reply string
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		reply = m.handler.Command(m.ctx, m.now(), src, data.Name, commandArgs(data.Name, data.Options))
		if reply == "" {
			reply = "Done."
		}
	case discordgo.InteractionMessageComponent:
		reply = m.handler.Callback(m.ctx, m.now(), src, i.MessageComponentData().CustomID)
	default:
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: reply,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}); err != nil {
		log.Printf("discord: respond to interaction %s: %v", i.ID, err)
	}
}

func (m *Module) onMessageCreate(s *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot || msg.GuildID != "" || len(msg.Attachments) == 0 {
		return
	}
	userID, err := strconv.ParseInt(msg.Author.ID, 10, 64)
	if err != nil {
		return
	}
	src := chat.Source{Actor: engine.Actor{UserID: userID, Username: msg.Author.Username, FirstName: msg.Author.GlobalName}}
	for _, att := range msg.Attachments {
		if !isImage(att) {
			continue
		}
		text, ok := m.handler.Photo(m.ctx, m.now(), src, photoRef(att))
		if !ok {
			return
		}
		if _, err := s.ChannelMessageSend(msg.ChannelID, text); err != nil {
			log.Printf("discord: reply in %s: %v", msg.ChannelID, err)
		}
	}
}

// sourceOf resolves the acting user and, for guild interactions, the channel
// that stands in for the group chat.
func (m *Module) sourceOf(s *discordgo.Session, i *discordgo.Interaction) (chat.Source, bool) {
	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user == nil {
		return chat.Source{}, false
	}
	userID, err := strconv.ParseInt(user.ID, 10, 64)
	if err != nil {
		return chat.Source{}, false
	}
	src := chat.Source{Actor: engine.Actor{UserID: userID, Username: user.Username, FirstName: user.GlobalName}}
	if i.GuildID == "" {
		return src, true
	}
	channelID, err := strconv.ParseInt(i.ChannelID, 10, 64)
	if err != nil {
		return chat.Source{}, false
	}
	src.ChatID = channelID
	if s != nil && s.State != nil {
		if ch, err := s.State.Channel(i.ChannelID); err == nil {
			src.ChatTitle = ch.Name
		}
	}
	return src, true
}

func isImage(att *discordgo.MessageAttachment) bool {
	return strings.HasPrefix(att.ContentType, "image/")
}

// photoRef drops the signed query string so the reference fits the column.
func photoRef(att *discordgo.MessageAttachment) string {
	url := att.URL
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	if len(url) > 255 {
		return att.ID
	}
	return url
}
