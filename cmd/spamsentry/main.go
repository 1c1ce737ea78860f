package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/spamsentry/spamsentry/internal/adapters"
	"github.com/spamsentry/spamsentry/internal/adapters/llm/gemini"
	"github.com/spamsentry/spamsentry/internal/adapters/llm/openai"
	"github.com/spamsentry/spamsentry/internal/bot"
	"github.com/spamsentry/spamsentry/internal/chat"
	"github.com/spamsentry/spamsentry/internal/config"
	"github.com/spamsentry/spamsentry/internal/db/sqlite"
	"github.com/spamsentry/spamsentry/internal/detector"
	"github.com/spamsentry/spamsentry/internal/handlers"
	"github.com/spamsentry/spamsentry/internal/infra"
	"github.com/spamsentry/spamsentry/internal/lifecycle"
	"github.com/spamsentry/spamsentry/internal/moderation"
	"github.com/spamsentry/spamsentry/internal/observability"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	if err := observability.Init(); err != nil {
		log.WithError(err).Fatalln("cant initialize observability")
	}

	workDir := infra.GetWorkDir(cfg.DotPath)
	store, err := sqlite.NewSQLiteClient(workDir, cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatalln("cant open database")
	}
	defer store.Close()

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		log.WithError(err).Fatalln("cant initialize bot api")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	defer botAPI.StopReceivingUpdates()

	llmClient, err := buildLLM(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatalln("cant initialize llm client")
	}
	spamDetector := detector.New(llmClient, cfg.LLM.Timeout, log.WithField("object", "Detector"))

	whitelistPath := cfg.Moderation.WhitelistPath
	if !filepath.IsAbs(whitelistPath) {
		whitelistPath = filepath.Join(workDir, whitelistPath)
	}
	whitelist, err := moderation.LoadWhitelist(whitelistPath)
	if err != nil {
		log.WithError(err).Fatalln("cant load whitelist")
	}

	adapter := chat.NewTelegramAdapter(botAPI)
	limiter := moderation.NewRateLimiter(store, cfg.Moderation.DailyAPILimit, nil)
	ledger := moderation.NewViolationLedger(store, cfg.Moderation.ViolationRetention, nil)
	engine := moderation.NewPunishmentEngine(adapter, ledger, store, nil)
	orchestrator := moderation.NewOrchestrator(
		spamDetector, limiter, ledger, engine, whitelist, adapter,
		moderation.OrchestratorOptions{
			SpamThreshold:    cfg.Moderation.SpamThreshold,
			DryRun:           cfg.Moderation.DryRun,
			WhitelistEnabled: cfg.Moderation.WhitelistEnabled,
			TargetChatID:     cfg.Moderation.TargetChatID,
		},
	)

	service := bot.NewService(botAPI, store)
	bot.RegisterUpdateHandler("admin", handlers.NewAdmin(service, ledger, limiter, whitelist, nil))
	bot.RegisterUpdateHandler("moderation", orchestrator)
	processor := bot.NewUpdateProcessor(service, []string{"admin", "moderation"})

	runtime := lifecycle.NewRuntime(
		observability.NewMetricsServer(cfg.MetricsAddr),
		moderation.NewAdminRefresher(whitelist, adapter, cfg.Moderation.TargetChatID, cfg.Moderation.AdminRefreshInterval),
	)
	if err := runtime.Start(ctx); err != nil {
		log.WithError(err).Fatalln("cant start background components")
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		if err := runtime.Stop(stopCtx); err != nil {
			log.WithError(err).Error("cant stop background components")
		}
	}()

	if cfg.Moderation.DryRun {
		log.Warn("dry run enabled, spam will be logged but not acted upon")
	}
	log.Info("spamsentry started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		errCh := make(chan error, 1)
		infra.GoRecoverable(3, "update-loop", func() {
			errCh <- pollUpdates(gctx, botAPI, processor)
		})
		return <-errCh
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("update loop terminated")
	}
	log.Info("shutting down")
}

func pollUpdates(ctx context.Context, botAPI *api.BotAPI, processor *bot.UpdateProcessor) error {
	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60

	updateChan, errorChan := bot.GetUpdatesChans(ctx, botAPI, updateConfig)
	for {
		select {
		case err := <-errorChan:
			return errors.WithMessage(err, "bot api get updates error")
		case update, ok := <-updateChan:
			if !ok {
				return nil
			}
			if err := processor.Process(ctx, &update); err != nil {
				log.WithError(err).Errorln("cant process update")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func buildLLM(ctx context.Context, cfg *config.Config) (adapters.LLM, error) {
	logger := log.WithField("object", "LLM")
	switch cfg.LLM.Type {
	case "gemini":
		return gemini.NewGemini(ctx, cfg.LLM.APIKey, cfg.LLM.Model, logger)
	case "openai", "":
		return openai.NewOpenAI(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, logger), nil
	default:
		return nil, errors.Errorf("unknown llm api type: %s", cfg.LLM.Type)
	}
}
