package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicbase/clinic-scheduling/internal/booking"
	"github.com/clinicbase/clinic-scheduling/internal/schedule"
	"github.com/clinicbase/clinic-scheduling/internal/slot"
	"github.com/clinicbase/clinic-scheduling/internal/waitlist"
)

type CreateAppointmentRequest struct {
	DoctorID           string    `json:"doctor_id"`
	PatientID          *string   `json:"patient_id,omitempty"`
	ProcedureID        *string   `json:"procedure_id,omitempty"`
	RoomID             *string   `json:"room_id,omitempty"`
	EquipmentID        *string   `json:"equipment_id,omitempty"`
	AssistantID        *string   `json:"assistant_id,omitempty"`
	StartAt            time.Time `json:"start_at"`
	EndAt              time.Time `json:"end_at"`
	AllowSoftConflicts bool      `json:"allow_soft_conflicts"`
}

type UpdateAppointmentRequest struct {
	StartAt            *time.Time `json:"start_at,omitempty"`
	EndAt              *time.Time `json:"end_at,omitempty"`
	Status             *string    `json:"status,omitempty"`
	AllowSoftConflicts bool       `json:"allow_soft_conflicts"`
}

type AppointmentResponse struct {
	ID             uuid.UUID  `json:"id"`
	DoctorID       uuid.UUID  `json:"doctor_id"`
	PatientID      *uuid.UUID `json:"patient_id,omitempty"`
	ProcedureID    *uuid.UUID `json:"procedure_id,omitempty"`
	RoomID         *uuid.UUID `json:"room_id,omitempty"`
	EquipmentID    *uuid.UUID `json:"equipment_id,omitempty"`
	AssistantID    *uuid.UUID `json:"assistant_id,omitempty"`
	StartAt        time.Time  `json:"start_at"`
	EndAt          time.Time  `json:"end_at"`
	Status         string     `json:"status"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		DoctorID:       a.DoctorID,
		PatientID:      a.PatientID,
		ProcedureID:    a.ProcedureID,
		RoomID:         a.RoomID,
		EquipmentID:    a.EquipmentID,
		AssistantID:    a.AssistantID,
		StartAt:        a.StartAt,
		EndAt:          a.EndAt,
		Status:         string(a.Status),
		ReminderSentAt: a.ReminderSentAt,
	}
}

type SlotsResponse struct {
	Slots  []slot.Candidate `json:"slots"`
	Reason string           `json:"reason,omitempty"`
}

type DayScheduleRequest struct {
	Weekday      int     `json:"weekday"` // 0 = Sunday ... 6 = Saturday
	Start        string  `json:"start"`
	End          string  `json:"end"`
	BreakStart   *string `json:"break_start,omitempty"`
	BreakEnd     *string `json:"break_end,omitempty"`
	SlotDuration int     `json:"slot_duration_minutes"`
}

type UpdateScheduleRequest struct {
	Days []DayScheduleRequest `json:"days"`
}

type UpdateScheduleResponse struct {
	DoctorID               uuid.UUID   `json:"doctor_id"`
	StrandedAppointmentIDs []uuid.UUID `json:"stranded_appointment_ids"`
}

type WeeklyScheduleResponse struct {
	DoctorID uuid.UUID                           `json:"doctor_id"`
	Version  int                                 `json:"version"`
	Days     map[string]schedule.WorkingInterval `json:"days"`
}

type CreateWaitlistEntryRequest struct {
	PatientID   string    `json:"patient_id"`
	DoctorID    *string   `json:"doctor_id,omitempty"`
	ProcedureID *string   `json:"procedure_id,omitempty"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Priority    int       `json:"priority"`
}

type WaitlistEntryResponse struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      *uuid.UUID `json:"doctor_id,omitempty"`
	ProcedureID   *uuid.UUID `json:"procedure_id,omitempty"`
	WindowStart   time.Time  `json:"window_start"`
	WindowEnd     time.Time  `json:"window_end"`
	Priority      int        `json:"priority"`
	Status        string     `json:"status"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
}

func toWaitlistEntryResponse(e *waitlist.Entry) WaitlistEntryResponse {
	return WaitlistEntryResponse{
		ID:            e.ID,
		PatientID:     e.PatientID,
		DoctorID:      e.DoctorID,
		ProcedureID:   e.ProcedureID,
		WindowStart:   e.WindowStart,
		WindowEnd:     e.WindowEnd,
		Priority:      e.Priority,
		Status:        string(e.Status),
		AppointmentID: e.AppointmentID,
	}
}

type ConflictDetail struct {
	Kind          string    `json:"kind"`
	Severity      string    `json:"severity"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
}

type ErrorResponse struct {
	Error     string           `json:"error"`
	Details   string           `json:"details,omitempty"`
	Conflicts []ConflictDetail `json:"conflicts,omitempty"`
}
