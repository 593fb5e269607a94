package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbase/clinic-scheduling/internal/booking"
	"github.com/clinicbase/clinic-scheduling/internal/notify"
	"github.com/clinicbase/clinic-scheduling/internal/outbox"
	redisclient "github.com/clinicbase/clinic-scheduling/internal/redis"
	"github.com/clinicbase/clinic-scheduling/internal/schedule"
)

type DoctorSource interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*schedule.Doctor, error)
}

// Invalidator evicts cached slot lists after a successful claim books the
// freed interval.
type Invalidator interface {
	Invalidate(ctx context.Context, doctorID uuid.UUID, date *time.Time) error
}

// Resolver reacts to cancellations by offering the freed slot to matching
// waitlist entries, and arbitrates the resulting claim race: the first
// confirmation to commit wins, everyone else gets ErrClaimExpired.
type Resolver struct {
	repo     Repository
	doctors  DoctorSource
	locker   redisclient.Locker
	cache    Invalidator
	notifier notify.Notifier
	log      zerolog.Logger
}

func NewResolver(repo Repository, doctors DoctorSource, locker redisclient.Locker, cache Invalidator, notifier notify.Notifier, log zerolog.Logger) *Resolver {
	return &Resolver{
		repo:     repo,
		doctors:  doctors,
		locker:   locker,
		cache:    cache,
		notifier: notifier,
		log:      log.With().Str("component", "waitlist").Logger(),
	}
}

// HandleCancelled is the outbox handler for appointment.cancelled events.
func (r *Resolver) HandleCancelled(ctx context.Context, ev outbox.Event) error {
	var ce booking.CancelledEvent
	if err := json.Unmarshal(ev.Payload, &ce); err != nil {
		return fmt.Errorf("decode cancelled event: %w", err)
	}
	return r.OfferFreedSlot(ctx, ce)
}

// OfferFreedSlot sends a claim offer to every matching pending entry, best
// ranked first. The slot is not pre-reserved: offers may race, and the claim
// confirmation decides the winner. A failed notification is logged and does
// not block the remaining offers.
func (r *Resolver) OfferFreedSlot(ctx context.Context, ce booking.CancelledEvent) error {
	entries, err := r.repo.ListMatching(ctx, ce.DoctorID, ce.ProcedureID, ce.StartAt, ce.EndAt)
	if err != nil {
		return fmt.Errorf("list matching entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	doctorName := ce.DoctorID.String()
	if doc, err := r.doctors.GetDoctor(ctx, ce.DoctorID); err == nil {
		doctorName = doc.Name
	}

	for _, e := range entries {
		token := uuid.New()
		if err := r.repo.StampOffer(ctx, e.ID, token, ce.DoctorID, ce.StartAt, ce.EndAt); err != nil {
			r.log.Error().Err(err).Stringer("entry_id", e.ID).Msg("stamp offer")
			continue
		}

		msg := notify.Message{
			Template: notify.TemplateWaitlistOffer,
			Data: map[string]any{
				"patient_name": e.PatientName,
				"doctor_name":  doctorName,
				"start":        notify.FormatTime(ce.StartAt),
				"end":          notify.FormatTime(ce.EndAt),
				"claim_token":  token.String(),
			},
		}
		if e.PatientEmail != nil {
			msg.Recipient = *e.PatientEmail
		}

		if err := r.notifier.Send(ctx, msg); err != nil {
			// The offer stands; the patient can still claim through other
			// channels, and delivery retries are the collaborator's concern.
			r.log.Error().Err(err).Stringer("entry_id", e.ID).Msg("send waitlist offer")
		}
	}

	r.log.Info().
		Stringer("doctor_id", ce.DoctorID).
		Int("offers", len(entries)).
		Msg("waitlist offers sent")
	return nil
}

// ConfirmClaim books the offered interval for the entry holding the token.
// The claim runs under the same per-doctor lock that walk-in bookings take,
// so racing claims and racing Create calls serialize on one key. Inside the
// lock the entry and the interval are re-verified in a transaction; the first
// committer wins and any later attempt sees a non-pending entry or an
// occupied interval.
func (r *Resolver) ConfirmClaim(ctx context.Context, token uuid.UUID) (*booking.Appointment, error) {
	// Unlocked pre-read to learn which doctor's lock to take. Everything it
	// tells us is re-checked under the lock.
	entry, err := r.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if entry.Status != StatusPending || entry.OfferedDoctorID == nil {
		return nil, ErrClaimExpired
	}

	var created *booking.Appointment

	err = r.locker.WithLock(ctx, "doctor:"+entry.OfferedDoctorID.String(), func(lockCtx context.Context) error {
		return r.repo.InClaimTx(lockCtx, token, func(txCtx context.Context, e *Entry, btx booking.Tx) error {
			if e.Status != StatusPending {
				return ErrClaimExpired
			}
			if e.OfferedDoctorID == nil || e.OfferedStart == nil || e.OfferedEnd == nil {
				return ErrClaimExpired
			}

			patientID := e.PatientID
			draft := booking.Draft{
				DoctorID:    *e.OfferedDoctorID,
				PatientID:   &patientID,
				ProcedureID: e.ProcedureID,
				StartAt:     *e.OfferedStart,
				EndAt:       *e.OfferedEnd,
			}

			existing, err := btx.LockOverlapping(txCtx, draft, nil)
			if err != nil {
				return fmt.Errorf("lock overlapping appointments: %w", err)
			}
			report := booking.Classify(draft, nil, existing)
			if len(report.Blocking(false)) > 0 {
				// Someone else booked the interval first.
				return ErrClaimExpired
			}

			created = &booking.Appointment{
				DoctorID:    draft.DoctorID,
				PatientID:   draft.PatientID,
				ProcedureID: draft.ProcedureID,
				StartAt:     draft.StartAt,
				EndAt:       draft.EndAt,
				Status:      booking.StatusPlanned,
			}
			if err := btx.Insert(txCtx, created); err != nil {
				return err
			}

			e.Status = StatusBooked
			e.AppointmentID = &created.ID
			return nil
		})
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, ErrClaimBusy
	}
	if err != nil {
		return nil, err
	}

	day := created.StartAt
	if err := r.cache.Invalidate(ctx, created.DoctorID, &day); err != nil {
		r.log.Warn().Err(err).Stringer("doctor_id", created.DoctorID).Msg("invalidate slot cache")
	}

	r.log.Info().
		Stringer("entry_token", token).
		Stringer("appointment_id", created.ID).
		Msg("waitlist claim booked")
	return created, nil
}

// CreateEntry registers a patient on the waitlist.
func (r *Resolver) CreateEntry(ctx context.Context, e *Entry) (*Entry, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := r.repo.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// CancelEntry removes a pending entry from the waitlist.
func (r *Resolver) CancelEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return r.repo.Cancel(ctx, id)
}

func (r *Resolver) GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return r.repo.GetByID(ctx, id)
}
