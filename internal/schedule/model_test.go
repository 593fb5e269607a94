package schedule

import (
	"testing"
	"time"
)

func tod(t *testing.T, s string) TimeOfDay {
	t.Helper()
	v, err := ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func todPtr(t *testing.T, s string) *TimeOfDay {
	t.Helper()
	v := tod(t, s)
	return &v
}

func TestParseTimeOfDay(t *testing.T) {
	if got := tod(t, "09:30"); got != TimeOfDay(9*60+30) {
		t.Errorf("09:30 = %d, want %d", got, 9*60+30)
	}
	if got := tod(t, "00:00"); got != 0 {
		t.Errorf("00:00 = %d, want 0", got)
	}
	if _, err := ParseTimeOfDay("25:00"); err == nil {
		t.Error("expected error for 25:00")
	}
	if _, err := ParseTimeOfDay("9am"); err == nil {
		t.Error("expected error for 9am")
	}
}

func TestTimeOfDayRoundTrip(t *testing.T) {
	if got := tod(t, "17:05").String(); got != "17:05" {
		t.Errorf("String() = %q, want %q", got, "17:05")
	}
}

func TestWorkingIntervalValidate(t *testing.T) {
	tests := []struct {
		name    string
		iv      WorkingInterval
		wantErr bool
	}{
		{
			name: "valid without break",
			iv:   WorkingInterval{Start: tod(t, "09:00"), End: tod(t, "17:00"), SlotDuration: 30},
		},
		{
			name: "valid with break",
			iv: WorkingInterval{
				Start: tod(t, "09:00"), End: tod(t, "17:00"),
				BreakStart: todPtr(t, "13:00"), BreakEnd: todPtr(t, "14:00"),
				SlotDuration: 30,
			},
		},
		{
			name:    "start after end",
			iv:      WorkingInterval{Start: tod(t, "17:00"), End: tod(t, "09:00"), SlotDuration: 30},
			wantErr: true,
		},
		{
			name:    "zero slot duration",
			iv:      WorkingInterval{Start: tod(t, "09:00"), End: tod(t, "17:00")},
			wantErr: true,
		},
		{
			name: "break start without end",
			iv: WorkingInterval{
				Start: tod(t, "09:00"), End: tod(t, "17:00"),
				BreakStart: todPtr(t, "13:00"), SlotDuration: 30,
			},
			wantErr: true,
		},
		{
			name: "break outside working hours",
			iv: WorkingInterval{
				Start: tod(t, "09:00"), End: tod(t, "17:00"),
				BreakStart: todPtr(t, "17:30"), BreakEnd: todPtr(t, "18:00"),
				SlotDuration: 30,
			},
			wantErr: true,
		},
		{
			name: "inverted break",
			iv: WorkingInterval{
				Start: tod(t, "09:00"), End: tod(t, "17:00"),
				BreakStart: todPtr(t, "14:00"), BreakEnd: todPtr(t, "13:00"),
				SlotDuration: 30,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.iv.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkingIntervalContains(t *testing.T) {
	iv := WorkingInterval{
		Start: tod(t, "09:00"), End: tod(t, "17:00"),
		BreakStart: todPtr(t, "13:00"), BreakEnd: todPtr(t, "14:00"),
		SlotDuration: 30,
	}

	tests := []struct {
		name     string
		from, to string
		want     bool
	}{
		{"inside morning", "09:00", "09:30", true},
		{"ends exactly at break start", "12:30", "13:00", true},
		{"starts exactly at break end", "14:00", "14:30", true},
		{"overlaps break start", "12:45", "13:15", false},
		{"inside break", "13:15", "13:45", false},
		{"spans whole break", "12:30", "14:30", false},
		{"before opening", "08:30", "09:00", false},
		{"ends past closing", "16:45", "17:15", false},
		{"ends exactly at closing", "16:30", "17:00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := iv.Contains(tod(t, tt.from), tod(t, tt.to))
			if got != tt.want {
				t.Errorf("Contains(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestWeeklyFitsAppointment(t *testing.T) {
	w := Weekly{
		time.Monday: {
			Start: tod(t, "09:00"), End: tod(t, "17:00"),
			BreakStart: todPtr(t, "13:00"), BreakEnd: todPtr(t, "14:00"),
			SlotDuration: 30,
		},
	}

	// 2026-01-05 is a Monday.
	monday := func(h, m int) time.Time {
		return time.Date(2026, 1, 5, h, m, 0, 0, time.UTC)
	}
	tuesday := func(h, m int) time.Time {
		return time.Date(2026, 1, 6, h, m, 0, 0, time.UTC)
	}

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"inside working hours", monday(10, 0), monday(10, 30), true},
		{"during break", monday(13, 0), monday(13, 30), false},
		{"day off", tuesday(10, 0), tuesday(10, 30), false},
		{"spans midnight", monday(23, 30), tuesday(0, 30), false},
		{"inverted interval", monday(11, 0), monday(10, 0), false},
		{"before opening", monday(8, 0), monday(8, 30), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := w.FitsAppointment(tt.start, tt.end)
			if got != tt.want {
				t.Errorf("FitsAppointment(%v, %v) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestWeeklyFitsAppointmentUntilMidnight(t *testing.T) {
	w := Weekly{
		time.Monday: {Start: tod(t, "18:00"), End: TimeOfDay(24 * 60), SlotDuration: 60},
	}

	start := time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)

	if !w.FitsAppointment(start, end) {
		t.Error("interval ending exactly at midnight should fit a schedule ending at 24:00")
	}
}

func TestWeeklyDay(t *testing.T) {
	w := Weekly{
		time.Monday: {Start: tod(t, "09:00"), End: tod(t, "17:00"), SlotDuration: 30},
	}

	monday := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	if iv := w.Day(monday); iv == nil {
		t.Fatal("expected interval for Monday")
	} else if iv.Start != tod(t, "09:00") {
		t.Errorf("Start = %s, want 09:00", iv.Start)
	}

	tuesday := monday.AddDate(0, 0, 1)
	if iv := w.Day(tuesday); iv != nil {
		t.Errorf("expected nil for Tuesday, got %+v", iv)
	}
}
