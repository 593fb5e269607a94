package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Doctor struct {
	ID              uuid.UUID
	Name            string
	Specialty       *string
	Active          bool
	ScheduleVersion int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ApptWindow is the slice of an appointment the cascade containment test
// needs.
type ApptWindow struct {
	ID      uuid.UUID
	StartAt time.Time
	EndAt   time.Time
}

// ChangeNotice is the outbox payload emitted when a schedule mutation strands
// appointments outside the new working hours.
type ChangeNotice struct {
	DoctorID       uuid.UUID   `json:"doctor_id"`
	AppointmentIDs []uuid.UUID `json:"candidate_appointment_ids"`
}

const EventScheduleChanged = "schedule.changed"

type Repository interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListActiveDoctorIDs(ctx context.Context) ([]uuid.UUID, error)

	// GetWeekly returns the recurring availability and its version. The
	// version changes on every mutation; the slot cache folds it into its
	// fingerprint.
	GetWeekly(ctx context.Context, doctorID uuid.UUID) (Weekly, int, error)

	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	// ReplaceWeekly swaps the doctor's weekly rows and bumps the schedule
	// version, returning the new version.
	ReplaceWeekly(ctx context.Context, doctorID uuid.UUID, w Weekly) (int, error)

	// ListFutureAppointments returns non-cancelled appointments starting at
	// or after from, rows locked so the candidate set cannot shift under the
	// containment test.
	ListFutureAppointments(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]ApptWindow, error)

	AppendEvent(ctx context.Context, eventType string, payload any) error
}
