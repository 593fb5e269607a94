package booking

import (
	"errors"
	"fmt"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPatientNotFound     = errors.New("patient not found")

	// ErrSlotNotAvailable means the requested interval falls outside the
	// doctor's working hours. No specific appointment is in the way, so it
	// carries no conflict detail.
	ErrSlotNotAvailable = errors.New("requested interval is outside the doctor's working hours")

	// ErrInvalidStatusTransition and ErrConflict are match targets for
	// errors.Is; the concrete errors carry the detail.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrConflict                = errors.New("appointment conflicts with existing bookings")

	// ErrCalendarBusy means another request holds the doctor's booking lock.
	ErrCalendarBusy = errors.New("doctor's calendar is being modified, please retry")
)

// InvalidTransitionError reports the offending from/to pair.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidStatusTransition
}

// ConflictError carries every blocking overlap so the caller can render or
// override them.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("appointment conflicts with %d existing booking(s)", len(e.Conflicts))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
