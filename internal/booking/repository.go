package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbase/clinic-scheduling/internal/slot"
)

// Repository contains all DB interactions needed by the booking service.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// ListBookedIntervals returns the non-cancelled appointment intervals of
	// one doctor on one calendar day, for slot generation and fingerprinting.
	ListBookedIntervals(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]slot.BookedInterval, error)

	// Reminder sweep
	ListDueReminders(ctx context.Context, from, to time.Time) ([]ReminderItem, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error

	// InTx runs fn inside one transaction; the conflict check and the write
	// that follows it must share it.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transaction-scoped slice of the repository.
type Tx interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// LockOverlapping returns every non-cancelled appointment that overlaps
	// the draft's interval on any shared resource, with the rows locked until
	// the transaction ends. This is what makes check-then-act safe.
	LockOverlapping(ctx context.Context, d Draft, excludeID *uuid.UUID) ([]Appointment, error)

	Insert(ctx context.Context, a *Appointment) error
	UpdateInterval(ctx context.Context, id uuid.UUID, startAt, endAt time.Time) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// AppendEvent writes an outbox event that commits with the transaction.
	AppendEvent(ctx context.Context, eventType string, payload any) error
}
