package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/clinicbase/clinic-scheduling/internal/redis"
)

// Invalidator evicts cached slot lists; nil date means all dates.
type Invalidator interface {
	Invalidate(ctx context.Context, doctorID uuid.UUID, date *time.Time) error
}

var ErrScheduleBusy = errors.New("doctor's calendar is being modified, please retry")

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cache  Invalidator
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, cache Invalidator, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cache:  cache,
		log:    log.With().Str("component", "schedule").Logger(),
	}
}

func (s *Service) GetWeekly(ctx context.Context, doctorID uuid.UUID) (Weekly, int, error) {
	return s.repo.GetWeekly(ctx, doctorID)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetDoctor(ctx, id)
}

// UpdateSchedule replaces the doctor's weekly availability in one transaction:
// new rows, bumped version, and - when future appointments no longer fit the
// new hours - a schedule.changed outbox event naming them. The cascade worker
// picks the event up after commit; this call never waits on notification I/O.
func (s *Service) UpdateSchedule(ctx context.Context, doctorID uuid.UUID, w Weekly) (*ChangeNotice, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	var notice *ChangeNotice
	err := s.locker.WithLock(ctx, "doctor:"+doctorID.String(), func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(txCtx context.Context, tx Tx) error {
			if _, err := tx.ReplaceWeekly(txCtx, doctorID, w); err != nil {
				return fmt.Errorf("replace weekly schedule: %w", err)
			}

			future, err := tx.ListFutureAppointments(txCtx, doctorID, time.Now())
			if err != nil {
				return fmt.Errorf("list future appointments: %w", err)
			}

			var stranded []uuid.UUID
			for _, a := range future {
				if !w.FitsAppointment(a.StartAt, a.EndAt) {
					stranded = append(stranded, a.ID)
				}
			}

			if len(stranded) == 0 {
				return nil
			}

			notice = &ChangeNotice{DoctorID: doctorID, AppointmentIDs: stranded}
			return tx.AppendEvent(txCtx, EventScheduleChanged, notice)
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	// Schedule shape changed, so every cached date for this doctor is stale.
	if err := s.cache.Invalidate(ctx, doctorID, nil); err != nil {
		s.log.Warn().Err(err).Stringer("doctor_id", doctorID).Msg("invalidate slot cache")
	}

	if notice != nil {
		s.log.Info().
			Stringer("doctor_id", doctorID).
			Int("stranded", len(notice.AppointmentIDs)).
			Msg("schedule change stranded appointments")
	}

	return notice, nil
}
