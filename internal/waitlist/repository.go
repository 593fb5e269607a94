package waitlist

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbase/clinic-scheduling/internal/booking"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	Cancel(ctx context.Context, id uuid.UUID) (*Entry, error)

	// ListMatching returns pending entries eligible for a freed slot: doctor
	// matches (or the entry has no doctor preference), the entry's procedure
	// matches when it pins one, and the preferred window overlaps the freed
	// interval. Ordered by priority asc, then created_at asc.
	ListMatching(ctx context.Context, doctorID uuid.UUID, procedureID *uuid.UUID, start, end time.Time) ([]Entry, error)

	// GetByToken reads the entry currently holding the claim token, without
	// locking it. A token that matches no entry (never issued, or superseded
	// by a newer offer) yields ErrClaimExpired, never ErrEntryNotFound.
	GetByToken(ctx context.Context, token uuid.UUID) (*Entry, error)

	// StampOffer records the single-use claim token and the offered interval,
	// replacing any earlier offer on the entry.
	StampOffer(ctx context.Context, id uuid.UUID, token uuid.UUID, doctorID uuid.UUID, start, end time.Time) error

	// InClaimTx locks the entry holding the claim token and runs fn with it
	// plus a booking transaction view sharing the same database transaction.
	// If fn succeeds, the entry's status and appointment link are persisted
	// before commit. This is the claim race's critical section.
	InClaimTx(ctx context.Context, token uuid.UUID, fn func(ctx context.Context, e *Entry, btx booking.Tx) error) error
}
