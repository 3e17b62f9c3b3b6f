package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finbot/internal/amqp"
	"finbot/internal/cli"
	"finbot/internal/config"
	apphttp "finbot/internal/http"
	"finbot/internal/log"
	"finbot/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting ledger-worker")

	cfg := config.Load()
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", log.FieldErrorType, log.ErrorTypeConfiguration, log.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldErrorType, log.ErrorTypeNetwork, log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Logger: logger,
		Checks: map[string]apphttp.Check{
			"sqlite": repo.Ping,
			"amqp":   client.Check,
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Health server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return worker.NewAuditWorker(repo, logger).Run(gctx, client)
	})

	if err := g.Wait(); err != nil {
		logger.Error("ledger-worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("ledger-worker stopped gracefully", log.FieldOperation, log.OpShutdown)
}
