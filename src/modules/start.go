// Package modules assembles the engine and its long-running modules.
package modules

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	aicore "github.com/stake-plus/fitbet/src/ai/core"
	_ "github.com/stake-plus/fitbet/src/ai/providers"
	"github.com/stake-plus/fitbet/src/chat"
	"github.com/stake-plus/fitbet/src/config"
	"github.com/stake-plus/fitbet/src/data"
	"github.com/stake-plus/fitbet/src/engine"
	"github.com/stake-plus/fitbet/src/events"
	"github.com/stake-plus/fitbet/src/modules/core"
	discordmodule "github.com/stake-plus/fitbet/src/modules/discord"
	"github.com/stake-plus/fitbet/src/modules/httpapi"
	"github.com/stake-plus/fitbet/src/modules/scheduler"
	telegrammodule "github.com/stake-plus/fitbet/src/modules/telegram"
	"github.com/stake-plus/fitbet/src/notify"
	discordnotify "github.com/stake-plus/fitbet/src/notify/discord"
	telegramnotify "github.com/stake-plus/fitbet/src/notify/telegram"
	"github.com/stake-plus/fitbet/src/store/gormstore"
	"gorm.io/gorm"
)

// Manager re-exports core.Manager for main.
type Manager = core.Manager

// StartAll builds the engine for the configured platform and starts every
// enabled module. rdb may be nil, in which case events are dropped and ticks
// run without the cross-process lease.
func StartAll(ctx context.Context, db *gorm.DB, rdb *redis.Client, base config.Base) (*Manager, error) {
	lifecycle, err := config.LoadLifecycleConfig()
	if err != nil {
		return nil, fmt.Errorf("modules: lifecycle config: %w", err)
	}

	mgr := core.NewManager()
	var (
		notifier notify.Notifier
		tgBot    *tgbotapi.BotAPI
		dgModule func(h *chat.Handler) core.Module
	)
	switch base.Platform {
	case config.PlatformTelegram:
		tgCfg := config.LoadTelegramConfig()
		if tgCfg.Token == "" {
			return nil, fmt.Errorf("modules: TELEGRAM_TOKEN is required for the telegram platform")
		}
		tgBot, err = tgbotapi.NewBotAPI(tgCfg.Token)
		if err != nil {
			return nil, fmt.Errorf("modules: telegram login: %w", err)
		}
		tgBot.Debug = tgCfg.Debug
		log.Printf("modules: telegram authorised as @%s", tgBot.Self.UserName)
		notifier = telegramnotify.New(tgBot)
	case config.PlatformDiscord:
		dcCfg := config.LoadDiscordConfig()
		if dcCfg.Token == "" {
			return nil, fmt.Errorf("modules: DISCORD_TOKEN is required for the discord platform")
		}
		session, err := discordmodule.NewSession(dcCfg.Token)
		if err != nil {
			return nil, fmt.Errorf("modules: discord session: %w", err)
		}
		notifier = discordnotify.New(session)
		dgModule = func(h *chat.Handler) core.Module { return discordmodule.New(dcCfg, session, h) }
	default:
		return nil, fmt.Errorf("modules: unsupported platform %q", base.Platform)
	}

	opts := []engine.Option{}
	aiCfg := config.LoadAIConfig()
	if aiCfg.Enabled() {
		client, err := aicore.NewClient(aiCfg.Factory())
		if err != nil {
			log.Printf("modules: ai client unavailable, continuing without feedback: %v", err)
		} else {
			opts = append(opts, engine.WithAdvisor(aicore.NewAdvisor(client)))
			log.Printf("modules: ai feedback via %s (%s)", aiCfg.Provider, aiCfg.Model)
		}
	} else {
		log.Printf("modules: ai feedback disabled via configuration")
	}
	if rdb != nil {
		evCfg := config.LoadEventsConfig()
		opts = append(opts, engine.WithEvents(events.NewRedis(rdb, evCfg.Stream, evCfg.MaxLen)))
	}
	eng := engine.New(gormstore.New(db), notifier, lifecycle.Engine(), opts...)

	// Stay nil when the scheduler is disabled.
	var (
		tgTicks  telegrammodule.TickRunner
		apiTicks httpapi.TickRunner
	)
	schedCfg := config.LoadSchedulerConfig(lifecycle.Interval())
	if schedCfg.Enabled {
		var schedOpts []scheduler.Option
		if rdb != nil {
			schedOpts = append(schedOpts, scheduler.WithLocker(data.NewLease(rdb, schedCfg.LeaseKey, schedCfg.LeaseTTL)))
		}
		sched := scheduler.New(schedCfg, eng, schedOpts...)
		tgTicks, apiTicks = sched, sched
		if err := mgr.Add(sched); err != nil {
			return nil, fmt.Errorf("modules: add scheduler: %w", err)
		}
		log.Printf("modules: scheduler ticking every %s", schedCfg.Interval)
	} else {
		log.Printf("modules: scheduler disabled via configuration")
	}

	handler := chat.NewHandler(eng)
	var chatMod core.Module
	if tgBot != nil {
		chatMod = telegrammodule.New(config.LoadTelegramConfig(), tgBot, handler, tgTicks)
	} else {
		chatMod = dgModule(handler)
	}
	if err := mgr.Add(chatMod); err != nil {
		return nil, fmt.Errorf("modules: add %s: %w", chatMod.Name(), err)
	}

	apiCfg := config.LoadAPIConfig()
	if apiCfg.Enabled {
		if err := mgr.Add(httpapi.New(apiCfg, eng, apiTicks)); err != nil {
			return nil, fmt.Errorf("modules: add httpapi: %w", err)
		}
	} else {
		log.Printf("modules: http api disabled via configuration")
	}

	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	log.Printf("modules: started %v", mgr.Names())
	return mgr, nil
}
