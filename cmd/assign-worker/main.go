package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicore/waitlist-scheduling/internal/agenda"
	"github.com/clinicore/waitlist-scheduling/internal/config"
	"github.com/clinicore/waitlist-scheduling/internal/db"
	"github.com/clinicore/waitlist-scheduling/internal/metrics"
	redisclient "github.com/clinicore/waitlist-scheduling/internal/redis"
	"github.com/clinicore/waitlist-scheduling/internal/waitlist"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Str("service", "assign-worker").Logger()

	logger.Info().Msg("assign-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.AssignInterval).Msg("config loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	metrics.Register()

	agendaClient := agenda.NewClient(cfg.AgendaBaseURL, cfg.AgendaAPIKey, logger)
	if cfg.SlotCacheTTL > 0 {
		agendaClient.UseRedisCache(rdb, cfg.SlotCacheTTL)
	}

	repo := waitlist.NewPgRepository(pgPool)
	locker := redisclient.NewRedisRunLocker(rdb, cfg.RunLockTTL)
	svc := waitlist.NewService(repo, agendaClient, locker, cfg, logger)

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.AssignInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping assign worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *waitlist.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if err := svc.ExpireOverdueEntries(runCtx); err != nil {
		logger.Error().Err(err).Msg("expiry pass error")
	}

	start := time.Now()
	result, err := svc.RunAssignments(runCtx)
	if err != nil {
		if errors.Is(err, waitlist.ErrRunInProgress) {
			logger.Info().Msg("assignment run already in progress, skipping")
			return
		}
		logger.Error().Err(err).Msg("assignment run error")
		return
	}

	logger.Info().
		Int("committed", len(result.Committed)).
		Int("conflicts", result.Conflicts).
		Dur("elapsed", time.Since(start)).
		Msg("assignment run complete")
}
