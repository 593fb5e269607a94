package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicbase/clinic-scheduling/internal/api"
	"github.com/clinicbase/clinic-scheduling/internal/booking"
	"github.com/clinicbase/clinic-scheduling/internal/config"
	"github.com/clinicbase/clinic-scheduling/internal/db"
	"github.com/clinicbase/clinic-scheduling/internal/notify"
	redisclient "github.com/clinicbase/clinic-scheduling/internal/redis"
	"github.com/clinicbase/clinic-scheduling/internal/schedule"
	"github.com/clinicbase/clinic-scheduling/internal/slot"
	"github.com/clinicbase/clinic-scheduling/internal/waitlist"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg.Env).With().Str("service", "api-server").Logger()
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("starting up")

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

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	cache := slot.NewCache(rdb, scheduleRepo, bookingRepo, cfg.SlotCacheTTL, log)
	notifier := newNotifier(cfg, log)

	bookingSvc := booking.NewService(bookingRepo, scheduleRepo, locker, cache, notifier, log)
	scheduleSvc := schedule.NewService(scheduleRepo, locker, cache, log)
	resolver := waitlist.NewResolver(waitlistRepo, scheduleRepo, locker, cache, notifier, log)

	router := api.NewRouter(api.RouterConfig{
		Bookings:  bookingSvc,
		Schedules: scheduleSvc,
		Slots:     cache,
		Waitlist:  resolver,
		PgPool:    pgPool,
		Redis:     rdb,
		Log:       log,
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()
	log.Info().Msg("listening")

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
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
