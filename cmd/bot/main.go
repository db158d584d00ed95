package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/config"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/handlers"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/i18n"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/middleware"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/ai"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/availability"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/filter"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/lexicon"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/memory"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/momentum"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/mood"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/pacing"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/phase"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/prompt"
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/services/storage"
	"github.com/alexgrosjean991-web/luna-bot-sub000/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting Luna...")

	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		log.WithError(err).Fatal("Failed to create bot")
	}

	bot.Debug = cfg.Logging.Level == "debug"
	log.WithField("username", bot.Self.UserName).Info("Bot authorized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := middleware.NewMetrics()

	storageManager, err := storage.NewManager(cfg, metrics, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}

	lexicons, err := lexicon.Load(cfg.Lexicons.Path)
	if err != nil {
		log.WithError(err).Fatal("Failed to load lexicons")
	}

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	modules, err := prompt.NewModuleStore(cfg.Prompts.Directory, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load prompt modules")
	}

	aiService := ai.NewClient(&cfg.Backends, metrics, log)
	momentumEngine := momentum.NewEngine(lexicons, log)
	moodEngine := mood.NewEngine(lexicons, log)
	arbiter := availability.NewArbiter(log)
	retriever := memory.NewRetriever(storageManager, &cfg.Memory, log)
	extractor := memory.NewExtractor(ctx, storageManager, aiService, &cfg.Memory, metrics, log)
	assembler := prompt.NewAssembler(modules, cfg.Prompts.TokenBudget, log)
	responseFilter := filter.NewFilter(lexicons, localizer, cfg.Pipeline.EmojiCap, log)
	pacer := pacing.NewDispatcher(localizer, log)
	gate := phase.NewGate(&cfg.Paywall, cfg.Location(), log)
	rateLimiter := middleware.NewRateLimiter(cfg, log)
	sender := handlers.NewTelegramSender(bot)

	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	commandHandler := handlers.NewCommandHandler(cfg, sender, storageManager, localizer, log)

	messageHandler := handlers.NewMessageHandler(handlers.MessageHandlerParams{
		Config:      cfg,
		Sender:      sender,
		Store:       storageManager,
		AIService:   aiService,
		Momentum:    momentumEngine,
		Mood:        moodEngine,
		Arbiter:     arbiter,
		Retriever:   retriever,
		Extractor:   extractor,
		Assembler:   assembler,
		Filter:      responseFilter,
		Pacer:       pacer,
		Gate:        gate,
		Lexicons:    lexicons,
		RateLimiter: rateLimiter,
		Localizer:   localizer,
		Metrics:     metrics,
		Logger:      log,
	})

	var updates tgbotapi.UpdatesChannel

	if cfg.Bot.Webhook.Enabled {
		webhookURL := fmt.Sprintf("%s/%s", cfg.Bot.Webhook.URL, bot.Token)
		webhook, err := tgbotapi.NewWebhook(webhookURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to create webhook")
		}

		if _, err := bot.Request(webhook); err != nil {
			log.WithError(err).Fatal("Failed to set webhook")
		}

		updates = bot.ListenForWebhook("/" + bot.Token)
		log.WithField("url", webhookURL).Info("Webhook set")
	} else {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = cfg.Bot.UpdateTimeout

		updates = bot.GetUpdatesChan(u)
		log.Info("Using long polling")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for update := range updates {
			if update.Message == nil || update.Message.Chat == nil {
				continue
			}
			if !update.Message.Chat.IsPrivate() {
				// Luna is a one-on-one companion, group chats are ignored.
				continue
			}

			msg := update.Message
			externalID := msg.Chat.ID
			displayName := msg.From.FirstName
			langHint := msg.From.LanguageCode

			if msg.IsCommand() {
				// Commands run inline, they only touch storage.
				if err := commandHandler.HandleCommand(ctx, externalID, displayName, langHint, msg.Command(), msg.CommandArguments()); err != nil {
					log.WithError(err).Error("Failed to handle command")
				}
				continue
			}

			if msg.Text == "" {
				continue
			}

			// Turns run concurrently across users; the handler serializes
			// turns for the same user internally.
			go func(extID int64, name, lang, text string) {
				if err := messageHandler.HandleText(ctx, extID, name, lang, text); err != nil {
					log.WithError(err).WithField("external_id", extID).Error("Turn failed")
				}
			}(externalID, displayName, langHint, msg.Text)
		}
	}()

	go startPeriodicTasks(ctx, cfg.Memory.CompactInterval, storageManager, metrics, log)

	<-sigChan
	log.Info("Shutdown signal received")

	if cfg.Bot.Webhook.Enabled {
		if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.WithError(err).Error("Failed to delete webhook")
		}
	}

	cancel()

	// Let in-flight extraction jobs finish before the process exits.
	done := make(chan struct{})
	go func() {
		extractor.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("Extraction jobs did not finish in time")
	}

	log.Info("Bot stopped")
}

// startPeriodicTasks runs timeline compaction and refreshes population gauges.
func startPeriodicTasks(ctx context.Context, interval time.Duration, store *storage.Manager, metrics *middleware.Metrics, log *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := store.KnownUserIDs(ctx)
			if err != nil {
				log.WithError(err).Error("Compaction sweep failed to list users")
				continue
			}
			metrics.SetActiveUsers(float64(len(ids)))

			now := time.Now()
			total := 0
			for _, id := range ids {
				changed, err := store.CompactTimeline(ctx, id, now)
				if err != nil {
					log.WithError(err).WithField("user_id", id).Warn("Timeline compaction failed")
					continue
				}
				total += changed
			}
			if total > 0 {
				log.WithFields(logrus.Fields{
					"users":  len(ids),
					"events": total,
				}).Info("Timeline compaction sweep done")
			}
		}
	}
}
