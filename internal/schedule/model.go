package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrDoctorNotFound = errors.New("doctor not found")
)

// TimeOfDay is minutes since midnight, serialized as "HH:MM".
type TimeOfDay int

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// At anchors the time of day onto a calendar day.
func (t TimeOfDay) At(day time.Time) time.Time {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return midnight.Add(time.Duration(t) * time.Minute)
}

// WorkingInterval is one weekday's working hours with an optional break and
// the doctor's slot granularity.
type WorkingInterval struct {
	Start        TimeOfDay  `json:"start"`
	End          TimeOfDay  `json:"end"`
	BreakStart   *TimeOfDay `json:"break_start,omitempty"`
	BreakEnd     *TimeOfDay `json:"break_end,omitempty"`
	SlotDuration int        `json:"slot_duration_minutes"`
}

func (iv WorkingInterval) Validate() error {
	if iv.Start >= iv.End {
		return fmt.Errorf("start %s must be before end %s", iv.Start, iv.End)
	}
	if iv.SlotDuration <= 0 {
		return fmt.Errorf("slot duration must be positive, got %d", iv.SlotDuration)
	}
	if (iv.BreakStart == nil) != (iv.BreakEnd == nil) {
		return errors.New("break start and break end must both be set or both be absent")
	}
	if iv.BreakStart != nil {
		if *iv.BreakStart >= *iv.BreakEnd {
			return fmt.Errorf("break start %s must be before break end %s", *iv.BreakStart, *iv.BreakEnd)
		}
		if *iv.BreakStart < iv.Start || *iv.BreakEnd > iv.End {
			return fmt.Errorf("break %s-%s must lie within working hours %s-%s",
				*iv.BreakStart, *iv.BreakEnd, iv.Start, iv.End)
		}
	}
	return nil
}

// Contains reports whether [from, to), expressed as minutes since midnight,
// fits inside the working hours without touching the break.
func (iv WorkingInterval) Contains(from, to TimeOfDay) bool {
	if from < iv.Start || to > iv.End {
		return false
	}
	if iv.BreakStart != nil && from < *iv.BreakEnd && *iv.BreakStart < to {
		return false
	}
	return true
}

// Weekly is a doctor's recurring availability. A weekday absent from the map
// means the doctor does not work that day.
type Weekly map[time.Weekday]WorkingInterval

func (w Weekly) Validate() error {
	for day, iv := range w {
		if day < time.Sunday || day > time.Saturday {
			return fmt.Errorf("invalid weekday %d", day)
		}
		if err := iv.Validate(); err != nil {
			return fmt.Errorf("weekday %s: %w", day, err)
		}
	}
	return nil
}

// FitsAppointment reports whether an absolute interval lies inside the weekly
// working hours of its own day. Intervals spanning midnight never fit.
func (w Weekly) FitsAppointment(start, end time.Time) bool {
	if !start.Before(end) {
		return false
	}
	sameDay := start.Year() == end.Year() && start.YearDay() == end.YearDay()
	if !sameDay {
		// end at exactly midnight counts as the same day
		midnight := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location()).AddDate(0, 0, 1)
		if !end.Equal(midnight) {
			return false
		}
	}
	iv, ok := w[start.Weekday()]
	if !ok {
		return false
	}
	from := TimeOfDay(start.Hour()*60 + start.Minute())
	to := from + TimeOfDay(end.Sub(start)/time.Minute)
	return iv.Contains(from, to)
}

// Day returns the working interval for a calendar day, or nil when the doctor
// does not work that day.
func (w Weekly) Day(day time.Time) *WorkingInterval {
	iv, ok := w[day.Weekday()]
	if !ok {
		return nil
	}
	return &iv
}
