package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicbase/clinic-scheduling/internal/booking"
	"github.com/clinicbase/clinic-scheduling/internal/schedule"
	"github.com/clinicbase/clinic-scheduling/internal/slot"
	"github.com/clinicbase/clinic-scheduling/internal/waitlist"
)

func getSlotsHandler(slots *slot.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		day, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		duration, err := time.ParseDuration(r.URL.Query().Get("duration") + "m")
		if err != nil || duration <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a positive number of minutes")
			return
		}

		candidates, reason, err := slots.Slots(r.Context(), doctorID, day, duration)
		if err != nil {
			if errors.Is(err, schedule.ErrDoctorNotFound) {
				writeError(w, http.StatusNotFound, "doctor_not_found", "doctor not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		if candidates == nil {
			candidates = []slot.Candidate{}
		}
		writeJSON(w, http.StatusOK, SlotsResponse{Slots: candidates, Reason: reason})
	}
}

func createAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		draft := booking.Draft{
			DoctorID: doctorID,
			StartAt:  req.StartAt,
			EndAt:    req.EndAt,
		}
		if !assignOptionalID(w, &draft.PatientID, req.PatientID, "patient_id") ||
			!assignOptionalID(w, &draft.ProcedureID, req.ProcedureID, "procedure_id") ||
			!assignOptionalID(w, &draft.RoomID, req.RoomID, "room_id") ||
			!assignOptionalID(w, &draft.EquipmentID, req.EquipmentID, "equipment_id") ||
			!assignOptionalID(w, &draft.AssistantID, req.AssistantID, "assistant_id") {
			return
		}

		appt, err := svc.Create(r.Context(), draft, req.AllowSoftConflicts)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		var appt *booking.Appointment
		switch {
		case req.StartAt != nil && req.EndAt != nil:
			appt, err = svc.Reschedule(r.Context(), id, *req.StartAt, *req.EndAt, req.AllowSoftConflicts)
		case req.Status != nil:
			appt, err = svc.Transition(r.Context(), id, booking.Status(*req.Status))
		default:
			writeError(w, http.StatusBadRequest, "invalid_request_body", "provide start_at and end_at, or status")
			return
		}
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Cancel(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		weekly, version, err := svc.GetWeekly(r.Context(), doctorID)
		if err != nil {
			if errors.Is(err, schedule.ErrDoctorNotFound) {
				writeError(w, http.StatusNotFound, "doctor_not_found", "doctor not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		days := make(map[string]schedule.WorkingInterval, len(weekly))
		for weekday, iv := range weekly {
			days[weekday.String()] = iv
		}
		writeJSON(w, http.StatusOK, WeeklyScheduleResponse{DoctorID: doctorID, Version: version, Days: days})
	}
}

func updateScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		var req UpdateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		weekly, err := weeklyFromRequest(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule", err.Error())
			return
		}

		notice, err := svc.UpdateSchedule(r.Context(), doctorID, weekly)
		if err != nil {
			switch {
			case errors.Is(err, schedule.ErrDoctorNotFound):
				writeError(w, http.StatusNotFound, "doctor_not_found", "doctor not found")
			case errors.Is(err, schedule.ErrScheduleBusy):
				writeError(w, http.StatusConflict, "schedule_busy", err.Error())
			default:
				writeError(w, http.StatusUnprocessableEntity, "invalid_schedule", err.Error())
			}
			return
		}

		resp := UpdateScheduleResponse{DoctorID: doctorID, StrandedAppointmentIDs: []uuid.UUID{}}
		if notice != nil {
			resp.StrandedAppointmentIDs = notice.AppointmentIDs
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createWaitlistEntryHandler(resolver *waitlist.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateWaitlistEntryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		entry := waitlist.Entry{
			PatientID:   patientID,
			WindowStart: req.WindowStart,
			WindowEnd:   req.WindowEnd,
			Priority:    req.Priority,
		}
		if !assignOptionalID(w, &entry.DoctorID, req.DoctorID, "doctor_id") ||
			!assignOptionalID(w, &entry.ProcedureID, req.ProcedureID, "procedure_id") {
			return
		}

		created, err := resolver.CreateEntry(r.Context(), &entry)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid_waitlist_entry", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, toWaitlistEntryResponse(created))
	}
}

func getWaitlistEntryHandler(resolver *waitlist.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_entry_id", "id must be a valid UUID")
			return
		}

		entry, err := resolver.GetEntry(r.Context(), id)
		if err != nil {
			handleWaitlistError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toWaitlistEntryResponse(entry))
	}
}

func cancelWaitlistEntryHandler(resolver *waitlist.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_entry_id", "id must be a valid UUID")
			return
		}

		entry, err := resolver.CancelEntry(r.Context(), id)
		if err != nil {
			handleWaitlistError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toWaitlistEntryResponse(entry))
	}
}

func confirmClaimHandler(resolver *waitlist.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := uuid.Parse(chi.URLParam(r, "token"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_claim_token", "token must be a valid UUID")
			return
		}

		appt, err := resolver.ConfirmClaim(r.Context(), token)
		if err != nil {
			handleWaitlistError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	var conflictErr *booking.ConflictError
	var transitionErr *booking.InvalidTransitionError

	switch {
	case errors.As(err, &conflictErr):
		writeConflict(w, conflictErr)
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, "invalid_status_transition", transitionErr.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, schedule.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", "doctor not found")
	case errors.Is(err, booking.ErrSlotNotAvailable):
		writeError(w, http.StatusUnprocessableEntity, "slot_not_available", err.Error())
	case errors.Is(err, booking.ErrCalendarBusy):
		writeError(w, http.StatusConflict, "calendar_busy", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleWaitlistError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, waitlist.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "waitlist_entry_not_found", err.Error())
	case errors.Is(err, waitlist.ErrClaimExpired):
		// Losing the race is a normal outcome, not a server fault.
		writeError(w, http.StatusGone, "claim_expired", err.Error())
	case errors.Is(err, waitlist.ErrClaimBusy):
		writeError(w, http.StatusConflict, "claim_busy", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func assignOptionalID(w http.ResponseWriter, dst **uuid.UUID, raw *string, field string) bool {
	if raw == nil {
		return true
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return false
	}
	*dst = &id
	return true
}

func weeklyFromRequest(req UpdateScheduleRequest) (schedule.Weekly, error) {
	weekly := make(schedule.Weekly, len(req.Days))
	for _, day := range req.Days {
		iv := schedule.WorkingInterval{SlotDuration: day.SlotDuration}

		var err error
		if iv.Start, err = schedule.ParseTimeOfDay(day.Start); err != nil {
			return nil, err
		}
		if iv.End, err = schedule.ParseTimeOfDay(day.End); err != nil {
			return nil, err
		}
		if day.BreakStart != nil {
			bs, err := schedule.ParseTimeOfDay(*day.BreakStart)
			if err != nil {
				return nil, err
			}
			iv.BreakStart = &bs
		}
		if day.BreakEnd != nil {
			be, err := schedule.ParseTimeOfDay(*day.BreakEnd)
			if err != nil {
				return nil, err
			}
			iv.BreakEnd = &be
		}

		weekly[time.Weekday(day.Weekday)] = iv
	}
	return weekly, weekly.Validate()
}
