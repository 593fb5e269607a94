package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbase/clinic-scheduling/internal/notify"
	redisclient "github.com/clinicbase/clinic-scheduling/internal/redis"
	"github.com/clinicbase/clinic-scheduling/internal/schedule"
)

// ScheduleSource provides the doctor's recurring availability.
type ScheduleSource interface {
	GetWeekly(ctx context.Context, doctorID uuid.UUID) (schedule.Weekly, int, error)
}

// CacheInvalidator evicts cached slot lists. A nil date means every date for
// the doctor.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, doctorID uuid.UUID, date *time.Time) error
}

type Service struct {
	repo     Repository
	sched    ScheduleSource
	locker   redisclient.Locker
	cache    CacheInvalidator
	notifier notify.Notifier
	log      zerolog.Logger
}

func NewService(repo Repository, sched ScheduleSource, locker redisclient.Locker, cache CacheInvalidator, notifier notify.Notifier, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		sched:    sched,
		locker:   locker,
		cache:    cache,
		notifier: notifier,
		log:      log.With().Str("component", "booking").Logger(),
	}
}

// Create books an appointment. The conflict check and the insert run in one
// transaction with the overlapping rows locked, wrapped in a per-doctor Redis
// lock so concurrent bookings for the same doctor serialize across processes.
func (s *Service) Create(ctx context.Context, d Draft, allowSoftConflicts bool) (*Appointment, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	if d.PatientID != nil {
		if _, err := s.repo.GetPatientByID(ctx, *d.PatientID); err != nil {
			return nil, err
		}
	}

	var created *Appointment
	err := s.locker.WithLock(ctx, doctorLockKey(d.DoctorID), func(lockCtx context.Context) error {
		// Loaded under the lock so a concurrent schedule update cannot slip
		// in between the containment check and the insert.
		weekly, _, err := s.sched.GetWeekly(lockCtx, d.DoctorID)
		if err != nil {
			return fmt.Errorf("load schedule: %w", err)
		}
		if !weekly.FitsAppointment(d.StartAt, d.EndAt) {
			return ErrSlotNotAvailable
		}

		return s.repo.InTx(lockCtx, func(txCtx context.Context, tx Tx) error {
			existing, err := tx.LockOverlapping(txCtx, d, nil)
			if err != nil {
				return fmt.Errorf("lock overlapping appointments: %w", err)
			}

			report := Classify(d, nil, existing)
			if blocking := report.Blocking(allowSoftConflicts); len(blocking) > 0 {
				return &ConflictError{Conflicts: blocking}
			}

			created = &Appointment{
				DoctorID:    d.DoctorID,
				PatientID:   d.PatientID,
				ProcedureID: d.ProcedureID,
				RoomID:      d.RoomID,
				EquipmentID: d.EquipmentID,
				AssistantID: d.AssistantID,
				StartAt:     d.StartAt,
				EndAt:       d.EndAt,
				Status:      StatusPlanned,
			}
			return tx.Insert(txCtx, created)
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrCalendarBusy
		}
		return nil, err
	}

	s.invalidateDay(ctx, created.DoctorID, created.StartAt)
	return created, nil
}

// Reschedule moves an appointment to a new interval, re-running the full
// conflict check with the appointment itself excluded.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, startAt, endAt time.Time, allowSoftConflicts bool) (*Appointment, error) {
	if !startAt.Before(endAt) {
		return nil, fmt.Errorf("start %s must be before end %s", startAt, endAt)
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.Final() {
		return nil, &InvalidTransitionError{From: current.Status, To: current.Status}
	}

	var moved *Appointment
	err = s.locker.WithLock(ctx, doctorLockKey(current.DoctorID), func(lockCtx context.Context) error {
		// Same ordering as Create: the schedule read happens under the lock,
		// after any in-flight schedule update has committed.
		weekly, _, err := s.sched.GetWeekly(lockCtx, current.DoctorID)
		if err != nil {
			return fmt.Errorf("load schedule: %w", err)
		}
		if !weekly.FitsAppointment(startAt, endAt) {
			return ErrSlotNotAvailable
		}

		return s.repo.InTx(lockCtx, func(txCtx context.Context, tx Tx) error {
			locked, err := tx.GetByID(txCtx, id)
			if err != nil {
				return err
			}
			if locked.Status.Final() {
				return &InvalidTransitionError{From: locked.Status, To: locked.Status}
			}

			d := Draft{
				DoctorID:    locked.DoctorID,
				PatientID:   locked.PatientID,
				ProcedureID: locked.ProcedureID,
				RoomID:      locked.RoomID,
				EquipmentID: locked.EquipmentID,
				AssistantID: locked.AssistantID,
				StartAt:     startAt,
				EndAt:       endAt,
			}

			existing, err := tx.LockOverlapping(txCtx, d, &id)
			if err != nil {
				return fmt.Errorf("lock overlapping appointments: %w", err)
			}

			report := Classify(d, &id, existing)
			if blocking := report.Blocking(allowSoftConflicts); len(blocking) > 0 {
				return &ConflictError{Conflicts: blocking}
			}

			moved, err = tx.UpdateInterval(txCtx, id, startAt, endAt)
			return err
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrCalendarBusy
		}
		return nil, err
	}

	s.invalidateDay(ctx, moved.DoctorID, current.StartAt)
	s.invalidateDay(ctx, moved.DoctorID, moved.StartAt)
	return moved, nil
}

// Transition applies a workflow status change. Cancellation goes through
// Cancel so the waitlist offer event is emitted.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("unknown status %q", to)
	}
	if to == StatusCancelled {
		return s.Cancel(ctx, id)
	}

	var updated *Appointment
	err := s.repo.InTx(ctx, func(txCtx context.Context, tx Tx) error {
		current, err := tx.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(to) {
			return &InvalidTransitionError{From: current.Status, To: to}
		}

		updated, err = tx.UpdateStatus(txCtx, id, current.Status, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Cancel soft-deletes the appointment and emits the cancellation event that
// drives waitlist offers. The appointment row stays; cancelled is terminal.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var cancelled *Appointment
	err := s.repo.InTx(ctx, func(txCtx context.Context, tx Tx) error {
		current, err := tx.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(StatusCancelled) {
			return &InvalidTransitionError{From: current.Status, To: StatusCancelled}
		}

		cancelled, err = tx.UpdateStatus(txCtx, id, current.Status, StatusCancelled)
		if err != nil {
			return err
		}

		return tx.AppendEvent(txCtx, EventAppointmentCancelled, CancelledEvent{
			AppointmentID: cancelled.ID,
			DoctorID:      cancelled.DoctorID,
			PatientID:     cancelled.PatientID,
			ProcedureID:   cancelled.ProcedureID,
			StartAt:       cancelled.StartAt,
			EndAt:         cancelled.EndAt,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateDay(ctx, cancelled.DoctorID, cancelled.StartAt)
	return cancelled, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// SweepResult reports batch outcomes per item; one failure never aborts the
// sweep.
type SweepResult struct {
	Processed int
	Failed    int
}

// SweepReminders notifies patients of appointments starting within the
// lookahead window. Idempotent: an appointment is only reminded once, tracked
// by reminder_sent_at.
func (s *Service) SweepReminders(ctx context.Context, lookahead time.Duration) (SweepResult, error) {
	now := time.Now()

	due, err := s.repo.ListDueReminders(ctx, now, now.Add(lookahead))
	if err != nil {
		return SweepResult{}, fmt.Errorf("list due reminders: %w", err)
	}

	var res SweepResult
	for _, item := range due {
		msg := notify.Message{
			Template: notify.TemplateAppointmentReminder,
			Data: map[string]any{
				"patient_name": item.PatientName,
				"doctor_name":  item.DoctorName,
				"start":        notify.FormatTime(item.StartAt),
			},
		}
		if item.PatientEmail != nil {
			msg.Recipient = *item.PatientEmail
		}

		if err := s.notifier.Send(ctx, msg); err != nil {
			s.log.Error().Err(err).Stringer("appointment_id", item.AppointmentID).Msg("send reminder")
			res.Failed++
			continue
		}
		if err := s.repo.MarkReminderSent(ctx, item.AppointmentID, now); err != nil {
			s.log.Error().Err(err).Stringer("appointment_id", item.AppointmentID).Msg("mark reminder sent")
			res.Failed++
			continue
		}
		res.Processed++
	}

	return res, nil
}

func (s *Service) invalidateDay(ctx context.Context, doctorID uuid.UUID, day time.Time) {
	if err := s.cache.Invalidate(ctx, doctorID, &day); err != nil {
		// The cache is a derived read optimization; a failed eviction is
		// caught by the fingerprint check on the next read.
		s.log.Warn().Err(err).Stringer("doctor_id", doctorID).Time("day", day).Msg("invalidate slot cache")
	}
}

func doctorLockKey(doctorID uuid.UUID) string {
	return "doctor:" + doctorID.String()
}
