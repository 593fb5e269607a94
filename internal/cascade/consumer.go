// Package cascade turns schedule-change notices into reschedule offers. It
// runs decoupled from the schedule-update transaction, so slow notification
// I/O never holds a database lock.
package cascade

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicbase/clinic-scheduling/internal/booking"
	"github.com/clinicbase/clinic-scheduling/internal/notify"
	"github.com/clinicbase/clinic-scheduling/internal/outbox"
	"github.com/clinicbase/clinic-scheduling/internal/schedule"
	"github.com/clinicbase/clinic-scheduling/internal/slot"
)

// MaxOptions keeps the offer message short.
const MaxOptions = 3

type BookingSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*booking.Patient, error)
}

type DoctorSource interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*schedule.Doctor, error)
}

// SlotSource yields candidate slots for one doctor, day and duration.
type SlotSource interface {
	Slots(ctx context.Context, doctorID uuid.UUID, day time.Time, duration time.Duration) ([]slot.Candidate, string, error)
}

type Consumer struct {
	bookings    BookingSource
	doctors     DoctorSource
	slots       SlotSource
	notifier    notify.Notifier
	horizonDays int
	log         zerolog.Logger
}

func NewConsumer(bookings BookingSource, doctors DoctorSource, slots SlotSource, notifier notify.Notifier, horizonDays int, log zerolog.Logger) *Consumer {
	return &Consumer{
		bookings:    bookings,
		doctors:     doctors,
		slots:       slots,
		notifier:    notifier,
		horizonDays: horizonDays,
		log:         log.With().Str("component", "cascade").Logger(),
	}
}

// HandleScheduleChanged is the outbox handler for schedule.changed events.
// Candidates are processed independently: one failing appointment never
// blocks the offers for the rest, and an appointment with no replacement
// options still gets its (empty-options) notification. Statuses are never
// touched here - the patient decides what happens to a stranded appointment.
func (c *Consumer) HandleScheduleChanged(ctx context.Context, ev outbox.Event) error {
	var notice schedule.ChangeNotice
	if err := json.Unmarshal(ev.Payload, &notice); err != nil {
		return fmt.Errorf("decode schedule change notice: %w", err)
	}

	doctorName := notice.DoctorID.String()
	if doc, err := c.doctors.GetDoctor(ctx, notice.DoctorID); err == nil {
		doctorName = doc.Name
	}

	for _, apptID := range notice.AppointmentIDs {
		if err := c.offerReschedule(ctx, apptID, doctorName); err != nil {
			c.log.Error().Err(err).Stringer("appointment_id", apptID).Msg("reschedule offer")
		}
	}
	return nil
}

func (c *Consumer) offerReschedule(ctx context.Context, apptID uuid.UUID, doctorName string) error {
	appt, err := c.bookings.GetByID(ctx, apptID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status == booking.StatusCancelled {
		return nil
	}

	options, err := c.replacementOptions(ctx, appt)
	if err != nil {
		return fmt.Errorf("compute replacement options: %w", err)
	}

	formatted := make([]string, 0, len(options))
	for _, opt := range options {
		formatted = append(formatted, notify.FormatTime(opt.Start))
	}

	msg := notify.Message{
		Template: notify.TemplateRescheduleOptions,
		Data: map[string]any{
			"doctor_name": doctorName,
			"old_time":    notify.FormatTime(appt.StartAt),
			"options":     formatted,
		},
	}
	if appt.PatientID != nil {
		if patient, err := c.bookings.GetPatientByID(ctx, *appt.PatientID); err == nil {
			msg.Data["patient_name"] = patient.Name
			if patient.Email != nil {
				msg.Recipient = *patient.Email
			}
		}
	}

	if err := c.notifier.Send(ctx, msg); err != nil {
		return fmt.Errorf("send reschedule options: %w", err)
	}
	return nil
}

// replacementOptions scans forward from today, collecting up to MaxOptions
// candidates of the same length as the stranded appointment.
func (c *Consumer) replacementOptions(ctx context.Context, appt *booking.Appointment) ([]slot.Candidate, error) {
	duration := appt.EndAt.Sub(appt.StartAt)
	today := time.Now()

	var options []slot.Candidate
	for i := 0; i < c.horizonDays && len(options) < MaxOptions; i++ {
		day := today.AddDate(0, 0, i)
		candidates, _, err := c.slots.Slots(ctx, appt.DoctorID, day, duration)
		if err != nil {
			return nil, err
		}
		for _, cand := range candidates {
			options = append(options, cand)
			if len(options) == MaxOptions {
				break
			}
		}
	}
	return options, nil
}
