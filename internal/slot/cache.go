package slot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicbase/clinic-scheduling/internal/schedule"
)

// ReasonDoctorNotWorking explains an empty slot list caused by the weekly
// schedule rather than by bookings.
const ReasonDoctorNotWorking = "doctor not working"

type ScheduleSource interface {
	GetWeekly(ctx context.Context, doctorID uuid.UUID) (schedule.Weekly, int, error)
}

type AppointmentSource interface {
	ListBookedIntervals(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]BookedInterval, error)
}

// Cache memoizes generator output in Redis, keyed by (doctor, date, duration).
// Entries carry a fingerprint of the inputs that produced them; a mismatch on
// read forces recomputation, so the cache can never serve slots computed from
// an outdated schedule or appointment set. The appointment table stays the
// single source of truth - conflict checks never consult this cache.
type Cache struct {
	rdb   *redis.Client
	sched ScheduleSource
	appts AppointmentSource
	ttl   time.Duration
	log   zerolog.Logger
}

func NewCache(rdb *redis.Client, sched ScheduleSource, appts AppointmentSource, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		rdb:   rdb,
		sched: sched,
		appts: appts,
		ttl:   ttl,
		log:   log.With().Str("component", "slot-cache").Logger(),
	}
}

type cacheEntry struct {
	Fingerprint string      `json:"fingerprint"`
	Reason      string      `json:"reason,omitempty"`
	Slots       []Candidate `json:"slots"`
}

// Slots returns the bookable candidates for one doctor, day and duration,
// from cache when the fingerprint still matches, recomputed otherwise.
func (c *Cache) Slots(ctx context.Context, doctorID uuid.UUID, day time.Time, duration time.Duration) ([]Candidate, string, error) {
	weekly, version, err := c.sched.GetWeekly(ctx, doctorID)
	if err != nil {
		return nil, "", fmt.Errorf("load schedule: %w", err)
	}

	booked, err := c.appts.ListBookedIntervals(ctx, doctorID, day)
	if err != nil {
		return nil, "", fmt.Errorf("list booked intervals: %w", err)
	}

	now := time.Now()
	fp := fingerprint(version, booked)
	key := cacheKey(doctorID, day, duration)

	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var e cacheEntry
		if err := json.Unmarshal(raw, &e); err == nil && e.Fingerprint == fp {
			return dropPast(e.Slots, day, now), e.Reason, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed, recomputing")
	}

	iv := weekly.Day(day)
	var reason string
	if iv == nil {
		reason = ReasonDoctorNotWorking
	}
	slots := Generate(iv, day, duration, booked, now)

	e := cacheEntry{Fingerprint: fp, Reason: reason, Slots: slots}
	if raw, err := json.Marshal(e); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}

	return slots, reason, nil
}

// Invalidate eagerly evicts cached entries: one date's keys when date is set,
// every key for the doctor otherwise. Stale slots would let staff double-book
// from the UI, so eviction does not wait for TTL expiry.
func (c *Cache) Invalidate(ctx context.Context, doctorID uuid.UUID, date *time.Time) error {
	pattern := fmt.Sprintf("slots:%s:*", doctorID)
	if date != nil {
		pattern = fmt.Sprintf("slots:%s:%s:*", doctorID, dateKey(*date))
	}

	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("evict cache keys: %w", err)
	}
	return nil
}

// dropPast removes candidates that started while the entry sat in cache.
// Only today's list can be affected; the fingerprint does not cover the clock.
func dropPast(slots []Candidate, day, now time.Time) []Candidate {
	if day.Year() != now.Year() || day.YearDay() != now.YearDay() {
		return slots
	}
	out := slots[:0:0]
	for _, s := range slots {
		if !s.Start.Before(now) {
			out = append(out, s)
		}
	}
	return out
}

// fingerprint folds the schedule version and the day's appointment set into
// one staleness check value.
func fingerprint(scheduleVersion int, booked []BookedInterval) string {
	h := xxhash.New()
	for _, b := range booked {
		fmt.Fprintf(h, "%s|%d|%d;", b.ID, b.Start.Unix(), b.End.Unix())
	}
	return fmt.Sprintf("v%d:%016x", scheduleVersion, h.Sum64())
}

func cacheKey(doctorID uuid.UUID, day time.Time, duration time.Duration) string {
	return fmt.Sprintf("slots:%s:%s:%d", doctorID, dateKey(day), int(duration/time.Minute))
}

func dateKey(day time.Time) string {
	return day.Format("2006-01-02")
}
