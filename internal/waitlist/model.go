package waitlist

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
)

var (
	ErrEntryNotFound = errors.New("waitlist entry not found")

	// ErrClaimExpired is the benign "you lost the race" outcome: the entry was
	// already booked or cancelled, the token was superseded by a newer offer,
	// or the offered interval is no longer free.
	ErrClaimExpired = errors.New("claim no longer available")

	// ErrClaimBusy means another request holds the doctor's booking lock.
	// Transient; the claimer can retry.
	ErrClaimBusy = errors.New("doctor's calendar is being modified, please retry")
)

// Entry is a patient waiting for a slot. Lower priority is served first;
// creation order breaks ties. Only the claim resolver moves it to booked.
type Entry struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	DoctorID    *uuid.UUID // nil means any doctor
	ProcedureID *uuid.UUID
	WindowStart time.Time
	WindowEnd   time.Time
	Priority    int
	Status      Status

	// Offer state, stamped when a freed slot is offered to this entry. The
	// claim token is single use; the slot itself is never pre-reserved.
	ClaimToken      *uuid.UUID
	OfferedDoctorID *uuid.UUID
	OfferedStart    *time.Time
	OfferedEnd      *time.Time

	AppointmentID *uuid.UUID

	// Hydrated by list queries for notifications.
	PatientName  string
	PatientEmail *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e Entry) Validate() error {
	if e.PatientID == uuid.Nil {
		return fmt.Errorf("patient is required")
	}
	if !e.WindowStart.Before(e.WindowEnd) {
		return fmt.Errorf("window start %s must be before window end %s", e.WindowStart, e.WindowEnd)
	}
	if e.Priority < 0 {
		return fmt.Errorf("priority must not be negative, got %d", e.Priority)
	}
	return nil
}
