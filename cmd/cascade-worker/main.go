package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicbase/clinic-scheduling/internal/booking"
	"github.com/clinicbase/clinic-scheduling/internal/cascade"
	"github.com/clinicbase/clinic-scheduling/internal/config"
	"github.com/clinicbase/clinic-scheduling/internal/db"
	"github.com/clinicbase/clinic-scheduling/internal/notify"
	"github.com/clinicbase/clinic-scheduling/internal/outbox"
	redisclient "github.com/clinicbase/clinic-scheduling/internal/redis"
	"github.com/clinicbase/clinic-scheduling/internal/schedule"
	"github.com/clinicbase/clinic-scheduling/internal/slot"
	"github.com/clinicbase/clinic-scheduling/internal/waitlist"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg.Env).With().Str("service", "cascade-worker").Logger()
	log.Info().Str("env", cfg.Env).Dur("poll_interval", cfg.OutboxPollInterval).Msg("starting up")

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
	waitlistRepo := waitlist.NewPgRepository(pgPool)
	outboxRepo := outbox.NewPgRepository(pgPool)

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	cache := slot.NewCache(rdb, scheduleRepo, bookingRepo, cfg.SlotCacheTTL, log)
	notifier := newNotifier(cfg, log)

	consumer := cascade.NewConsumer(bookingRepo, scheduleRepo, cache, notifier, cfg.RescheduleHorizon, log)
	resolver := waitlist.NewResolver(waitlistRepo, scheduleRepo, locker, cache, notifier, log)

	poller := outbox.NewPoller(outboxRepo, cfg.OutboxPollInterval, log)
	poller.Handle(schedule.EventScheduleChanged, consumer.HandleScheduleChanged)
	poller.Handle(booking.EventAppointmentCancelled, resolver.HandleCancelled)

	poller.Run(rootCtx)
	log.Info().Msg("cascade-worker stopped")
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
