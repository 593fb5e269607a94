package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicbase/clinic-scheduling/internal/booking"
	"github.com/clinicbase/clinic-scheduling/internal/schedule"
	"github.com/clinicbase/clinic-scheduling/internal/slot"
	"github.com/clinicbase/clinic-scheduling/internal/waitlist"
)

type RouterConfig struct {
	Bookings  *booking.Service
	Schedules *schedule.Service
	Slots     *slot.Cache
	Waitlist  *waitlist.Resolver
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Log       zerolog.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/doctors/{id}/slots", getSlotsHandler(cfg.Slots))
	r.Get("/doctors/{id}/schedule", getScheduleHandler(cfg.Schedules))
	r.Put("/doctors/{id}/schedule", updateScheduleHandler(cfg.Schedules))

	r.Post("/appointments", createAppointmentHandler(cfg.Bookings))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Bookings))
	r.Patch("/appointments/{id}", updateAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Bookings))

	r.Post("/waitlist", createWaitlistEntryHandler(cfg.Waitlist))
	r.Get("/waitlist/{id}", getWaitlistEntryHandler(cfg.Waitlist))
	r.Post("/waitlist/{id}/cancel", cancelWaitlistEntryHandler(cfg.Waitlist))
	r.Post("/waitlist/claims/{token}", confirmClaimHandler(cfg.Waitlist))

	return r
}
