package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/clinicbase/clinic-scheduling/internal/booking"
	"github.com/clinicbase/clinic-scheduling/internal/config"
	"github.com/clinicbase/clinic-scheduling/internal/db"
	"github.com/clinicbase/clinic-scheduling/internal/notify"
	redisclient "github.com/clinicbase/clinic-scheduling/internal/redis"
	"github.com/clinicbase/clinic-scheduling/internal/schedule"
	"github.com/clinicbase/clinic-scheduling/internal/slot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg.Env).With().Str("service", "batch-worker").Logger()
	log.Info().Str("env", cfg.Env).Int("precompute_days", cfg.PrecomputeDays).Msg("starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	bookingRepo := booking.NewPgRepository(pgPool)
	scheduleRepo := schedule.NewPgRepository(pgPool)

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	cache := slot.NewCache(rdb, scheduleRepo, bookingRepo, cfg.SlotCacheTTL, log)
	notifier := newNotifier(cfg, log)

	bookingSvc := booking.NewService(bookingRepo, scheduleRepo, locker, cache, notifier, log)
	precomputer := slot.NewPrecomputer(cache, scheduleRepo, log)

	warmCache := func() {
		ctx, cancel := context.WithTimeout(rootCtx, 10*time.Minute)
		defer cancel()
		if _, err := precomputer.Run(ctx, cfg.PrecomputeDays); err != nil {
			log.Error().Err(err).Msg("precompute run")
		}
	}

	sweepReminders := func() {
		ctx, cancel := context.WithTimeout(rootCtx, 5*time.Minute)
		defer cancel()
		res, err := bookingSvc.SweepReminders(ctx, cfg.ReminderLookahead)
		if err != nil {
			log.Error().Err(err).Msg("reminder sweep")
			return
		}
		if res.Processed > 0 || res.Failed > 0 {
			log.Info().Int("processed", res.Processed).Int("failed", res.Failed).Msg("reminder sweep complete")
		}
	}

	// Warm the cache once on boot so a restart never leaves it cold.
	warmCache()

	c := cron.New()
	if _, err := c.AddFunc("*/15 * * * *", warmCache); err != nil {
		log.Fatal().Err(err).Msg("schedule precompute job")
	}
	if _, err := c.AddFunc("*/5 * * * *", sweepReminders); err != nil {
		log.Fatal().Err(err).Msg("schedule reminder job")
	}
	c.Start()

	<-rootCtx.Done()
	log.Info().Msg("shutting down batch-worker")

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.ShutdownTimeout):
		log.Warn().Msg("jobs still running at shutdown deadline")
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func newNotifier(cfg config.Config, log zerolog.Logger) notify.Notifier {
	if cfg.NotifyMode == "smtp" {
		return notify.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	}
	return notify.NewLogNotifier(log)
}
