package slot

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicbase/clinic-scheduling/internal/schedule"
)

// Candidate is a bookable interval. It carries no identity; it only exists
// until the caller books it or throws it away.
type Candidate struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BookedInterval is the projection of a non-cancelled appointment that slot
// generation needs: its identity (for fingerprinting) and its interval.
type BookedInterval struct {
	ID    uuid.UUID
	Start time.Time
	End   time.Time
}

// Generate produces the ordered candidate slots for one calendar day.
//
// The grid is stepped by the doctor's slot granularity, not by the requested
// duration. A candidate is emitted only if it fits entirely inside the working
// hours, clears the break, does not overlap any booked interval, and, when day
// is today, does not start in the past. Pure function of its inputs.
func Generate(iv *schedule.WorkingInterval, day time.Time, duration time.Duration, booked []BookedInterval, now time.Time) []Candidate {
	if iv == nil || duration <= 0 {
		return nil
	}

	durMinutes := schedule.TimeOfDay(duration / time.Minute)
	sameDay := day.Year() == now.Year() && day.YearDay() == now.YearDay()

	var out []Candidate
	for from := iv.Start; from+durMinutes <= iv.End; from += schedule.TimeOfDay(iv.SlotDuration) {
		to := from + durMinutes
		if !iv.Contains(from, to) {
			continue
		}

		start := from.At(day)
		end := to.At(day)

		if sameDay && start.Before(now) {
			continue
		}
		if overlapsAny(start, end, booked) {
			continue
		}

		out = append(out, Candidate{Start: start, End: end})
	}

	return out
}

func overlapsAny(start, end time.Time, booked []BookedInterval) bool {
	for _, b := range booked {
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
