package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPlanned   Status = "planned"
	StatusConfirmed Status = "confirmed"
	StatusWaiting   Status = "waiting"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// validTransitions is the workflow state machine. "Reminder sent" is tracked
// on a separate timestamp, not as a status, so reminders cannot interfere
// with status-based rules.
var validTransitions = map[Status][]Status{
	StatusPlanned:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusWaiting, StatusDone, StatusCancelled, StatusNoShow},
	StatusWaiting:   {StatusDone, StatusCancelled},
	StatusDone:      {},
	StatusCancelled: {},
	StatusNoShow:    {},
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// Final reports whether the appointment left the active workflow. Final
// appointments cannot be moved.
func (s Status) Final() bool {
	return s == StatusDone || s == StatusCancelled || s == StatusNoShow
}

type Appointment struct {
	ID             uuid.UUID
	DoctorID       uuid.UUID
	PatientID      *uuid.UUID
	ProcedureID    *uuid.UUID
	RoomID         *uuid.UUID
	EquipmentID    *uuid.UUID
	AssistantID    *uuid.UUID
	StartAt        time.Time
	EndAt          time.Time
	Status         Status
	ReminderSentAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Draft is a proposed appointment before it has an identity.
type Draft struct {
	DoctorID    uuid.UUID
	PatientID   *uuid.UUID
	ProcedureID *uuid.UUID
	RoomID      *uuid.UUID
	EquipmentID *uuid.UUID
	AssistantID *uuid.UUID
	StartAt     time.Time
	EndAt       time.Time
}

func (d Draft) Validate() error {
	if d.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor is required")
	}
	if !d.StartAt.Before(d.EndAt) {
		return fmt.Errorf("start %s must be before end %s", d.StartAt, d.EndAt)
	}
	return nil
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CancelledEvent is the outbox payload emitted when an appointment is
// cancelled; the waitlist resolver consumes it.
type CancelledEvent struct {
	AppointmentID uuid.UUID  `json:"appointment_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	PatientID     *uuid.UUID `json:"patient_id,omitempty"`
	ProcedureID   *uuid.UUID `json:"procedure_id,omitempty"`
	StartAt       time.Time  `json:"start_at"`
	EndAt         time.Time  `json:"end_at"`
}

const EventAppointmentCancelled = "appointment.cancelled"

// ReminderItem is one appointment due for a reminder, hydrated with the
// contact details the notification needs.
type ReminderItem struct {
	AppointmentID uuid.UUID
	DoctorName    string
	PatientName   string
	PatientEmail  *string
	StartAt       time.Time
	EndAt         time.Time
}
