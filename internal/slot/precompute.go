package slot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type DoctorSource interface {
	ListActiveDoctorIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Precomputer warms the slot cache ahead of interactive booking traffic.
type Precomputer struct {
	cache   *Cache
	doctors DoctorSource
	log     zerolog.Logger
}

func NewPrecomputer(cache *Cache, doctors DoctorSource, log zerolog.Logger) *Precomputer {
	return &Precomputer{
		cache:   cache,
		doctors: doctors,
		log:     log.With().Str("component", "precompute").Logger(),
	}
}

type PrecomputeResult struct {
	Computed int
	Failed   int
}

// Run warms (doctor, date) pairs for the next daysAhead days at each day's
// slot granularity. One doctor/day failing is recorded and skipped; the batch
// always finishes. Safe to run concurrently with live bookings - it only ever
// writes derived cache entries.
func (p *Precomputer) Run(ctx context.Context, daysAhead int) (PrecomputeResult, error) {
	doctorIDs, err := p.doctors.ListActiveDoctorIDs(ctx)
	if err != nil {
		return PrecomputeResult{}, fmt.Errorf("list active doctors: %w", err)
	}

	today := time.Now()
	var res PrecomputeResult

	for _, doctorID := range doctorIDs {
		weekly, _, err := p.cache.sched.GetWeekly(ctx, doctorID)
		if err != nil {
			p.log.Error().Err(err).Stringer("doctor_id", doctorID).Msg("load schedule")
			res.Failed++
			continue
		}

		for i := 0; i < daysAhead; i++ {
			day := today.AddDate(0, 0, i)
			iv := weekly.Day(day)
			if iv == nil {
				continue
			}

			duration := time.Duration(iv.SlotDuration) * time.Minute
			if _, _, err := p.cache.Slots(ctx, doctorID, day, duration); err != nil {
				p.log.Error().Err(err).
					Stringer("doctor_id", doctorID).
					Str("day", dateKey(day)).
					Msg("precompute slots")
				res.Failed++
				continue
			}
			res.Computed++
		}
	}

	p.log.Info().Int("computed", res.Computed).Int("failed", res.Failed).Msg("precompute complete")
	return res, nil
}
