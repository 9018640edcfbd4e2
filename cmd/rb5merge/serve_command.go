package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/radar-merge-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/radar-merge-service/internal/adapter/kafka"
	"github.com/couchcryptid/radar-merge-service/internal/adapter/ledger"
	"github.com/couchcryptid/radar-merge-service/internal/pipeline"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume archive jobs from Kafka and publish product events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), a)
		},
	}
}

func serve(parent context.Context, a *app) error {
	cfg, logger, metrics := a.cfg, a.logger, a.metrics

	var (
		jobLedger pipeline.Ledger
		checkers  []httpadapter.ReadinessChecker
	)
	if cfg.LedgerPath != "" {
		l, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := l.Close(); err != nil {
				logger.Error("ledger close error", "error", err)
			}
		}()
		jobLedger = l
		checkers = append(checkers, l)
		logger.Info("job ledger enabled", "path", cfg.LedgerPath)
	} else {
		logger.Info("job ledger disabled")
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	submitter := kafkaadapter.NewSubmitter(cfg)
	transformer := pipeline.NewJobTransformer(a.merger(), jobLedger, pipeline.JobDefaults{
		BaseDir:  cfg.OutputBaseDir,
		Interval: cfg.CycleInterval,
		Task:     cfg.TaskName,
	}, logger)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)
	checkers = append([]httpadapter.ReadinessChecker{p}, checkers...)

	srv := httpadapter.NewServer(cfg.HTTPAddr, submitter, logger, checkers...)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start job pipeline.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := submitter.Close(); err != nil {
		logger.Error("kafka submitter close error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
