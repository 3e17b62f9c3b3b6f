package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finbot/internal/backend"
	"finbot/internal/bot"
	"finbot/internal/cache"
	"finbot/internal/cli"
	"finbot/internal/config"
	"finbot/internal/extract"
	apphttp "finbot/internal/http"
	"finbot/internal/ledger"
	"finbot/internal/log"
	"finbot/internal/menu"
	"finbot/internal/retry"
	"finbot/internal/services"
	"finbot/internal/telegram"

	"golang.org/x/sync/errgroup"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient := cli.InitAMQP(logger, cfg)
	var publisher ledger.Publisher
	checks := map[string]apphttp.Check{"sqlite": repo.Ping}
	if amqpClient != nil {
		defer amqpClient.Close()
		publisher = amqpClient
		checks["amqp"] = amqpClient.Check
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, "backend", backendCfg.Type)
		os.Exit(1)
	}
	if res.Cleanup != nil {
		defer res.Cleanup()
	}

	// Counterparty and classification lists, keyed per spreadsheet.
	lookups := cache.NewLRUCache[[]string](500, 10*time.Minute)
	caches := cache.NewManager(logger.Logger)
	caches.Register(lookups)
	caches.StartCleanup(10 * time.Minute)
	defer caches.Stop()

	ledgers := services.NewLedgerService(repo, res.Backend, cfg.GoogleSpreadsheetID, ledger.Options{
		Retry: retry.Policy{
			MaxAttempts:  cfg.RetryAttempts,
			InitialDelay: cfg.RetryDelay,
		},
		Publisher: publisher,
		Cache:     lookups,
		Logger:    logger,
	})

	opts := bot.Options{
		Renderer:    menu.New(cfg.DecimalSeparator),
		Logger:      logger,
		RecentLimit: cfg.RecentLimit,
	}
	if cfg.GeminiAPIKey != "" {
		ex, err := extract.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			logger.Warn("Free-text extraction disabled", log.FieldError, err)
		} else {
			opts.Extractor = ex
		}
	}

	tg, err := telegram.New(cfg.TelegramToken, logger)
	if err != nil {
		logger.Error("Failed to connect to Telegram", log.FieldErrorType, log.ErrorTypeNetwork, log.FieldError, err)
		os.Exit(1)
	}
	b := bot.New(tg, ledgers, opts)

	g, gctx := errgroup.WithContext(ctx)
	dispatcher := bot.NewDispatcher(gctx, b, logger)

	srvOpts := apphttp.Options{Checks: checks, Logger: logger}
	if cfg.TelegramMode == config.ModeWebhook {
		srvOpts.Webhook = tg.WebhookHandler(dispatcher, cfg.WebhookSecret)
		srvOpts.WebhookPath = cfg.WebhookPath
	}
	srv := apphttp.NewServer(":"+cfg.Port, srvOpts)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g.Go(func() error {
		logger.Info("Starting HTTP server", "port", cfg.Port, "mode", cfg.TelegramMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	switch cfg.TelegramMode {
	case config.ModeWebhook:
		if err := tg.SetWebhook(ctx, cfg.WebhookEndpoint(), cfg.WebhookSecret); err != nil {
			logger.Error("Failed to register webhook", log.FieldError, err)
			os.Exit(1)
		}
	default:
		if err := tg.DeleteWebhook(ctx); err != nil {
			logger.Warn("Failed to clear webhook before polling", log.FieldError, err)
		}
		g.Go(func() error { return tg.Poll(gctx, dispatcher) })
	}

	logger.Info("finbot started",
		log.FieldOperation, log.OpStartup,
		"backend", backendCfg.Type,
		"default_spreadsheet", cfg.GoogleSpreadsheetID != "",
		"extraction", opts.Extractor != nil,
		"recent_limit", cfg.RecentLimit)

	if err := g.Wait(); err != nil {
		logger.Error("finbot stopped with error", log.FieldError, err)
		dispatcher.Wait()
		os.Exit(1)
	}
	dispatcher.Wait()
	logger.Info("finbot stopped gracefully", log.FieldOperation, log.OpShutdown)
}
