package api

import (
	"encoding/json"
	"net/http"

	"github.com/clinicbase/clinic-scheduling/internal/booking"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func writeConflict(w http.ResponseWriter, conflictErr *booking.ConflictError) {
	details := make([]ConflictDetail, 0, len(conflictErr.Conflicts))
	for _, c := range conflictErr.Conflicts {
		details = append(details, ConflictDetail{
			Kind:          string(c.Kind),
			Severity:      string(c.Severity),
			AppointmentID: c.Appointment.ID,
			StartAt:       c.Appointment.StartAt,
			EndAt:         c.Appointment.EndAt,
		})
	}
	writeJSON(w, http.StatusConflict, ErrorResponse{
		Error:     "conflict",
		Details:   conflictErr.Error(),
		Conflicts: details,
	})
}
