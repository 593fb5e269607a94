package slot

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFingerprintStable(t *testing.T) {
	booked := []BookedInterval{
		{ID: uuid.New(), Start: at(10, 0), End: at(10, 30)},
	}

	if fingerprint(3, booked) != fingerprint(3, booked) {
		t.Error("same inputs must produce the same fingerprint")
	}
}

func TestFingerprintChangesWithInputs(t *testing.T) {
	a := BookedInterval{ID: uuid.New(), Start: at(10, 0), End: at(10, 30)}
	base := fingerprint(1, []BookedInterval{a})

	if fingerprint(2, []BookedInterval{a}) == base {
		t.Error("schedule version bump must change the fingerprint")
	}

	moved := a
	moved.Start = at(11, 0)
	moved.End = at(11, 30)
	if fingerprint(1, []BookedInterval{moved}) == base {
		t.Error("moving a booking must change the fingerprint")
	}

	if fingerprint(1, nil) == base {
		t.Error("removing a booking must change the fingerprint")
	}

	extra := BookedInterval{ID: uuid.New(), Start: at(12, 0), End: at(12, 30)}
	if fingerprint(1, []BookedInterval{a, extra}) == base {
		t.Error("adding a booking must change the fingerprint")
	}
}

func TestCacheKeyPerDoctorDayDuration(t *testing.T) {
	doctor := uuid.New()
	day := time.Date(2026, 1, 5, 15, 30, 0, 0, time.UTC)

	got := cacheKey(doctor, day, 45*time.Minute)
	want := "slots:" + doctor.String() + ":2026-01-05:45"
	if got != want {
		t.Errorf("cacheKey = %q, want %q", got, want)
	}

	// The time-of-day component of day must not leak into the key.
	if got != cacheKey(doctor, day.Add(5*time.Hour), 45*time.Minute) {
		t.Error("keys for the same date must match regardless of time of day")
	}
}

func TestDropPast(t *testing.T) {
	slots := []Candidate{
		{Start: at(9, 0), End: at(9, 30)},
		{Start: at(10, 0), End: at(10, 30)},
		{Start: at(11, 0), End: at(11, 30)},
	}

	got := dropPast(slots, testDay, at(9, 30))
	if len(got) != 2 || !got[0].Start.Equal(at(10, 0)) {
		t.Errorf("got %v, want the 10:00 and 11:00 slots", starts(got))
	}

	// A cached list for another day is returned untouched.
	otherDay := at(23, 0).AddDate(0, 0, -1)
	if got := dropPast(slots, testDay, otherDay); len(got) != 3 {
		t.Errorf("got %d slots, want all 3 for a non-today date", len(got))
	}
}
