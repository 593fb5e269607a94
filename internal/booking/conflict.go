package booking

import (
	"github.com/google/uuid"
)

type ResourceKind string

const (
	KindDoctor    ResourceKind = "doctor"
	KindRoom      ResourceKind = "room"
	KindEquipment ResourceKind = "equipment"
	KindAssistant ResourceKind = "assistant"
)

type Severity string

const (
	// SeverityHard always blocks. A doctor cannot be in two places at once.
	SeverityHard Severity = "hard"
	// SeveritySoft blocks unless the caller explicitly allows it.
	SeveritySoft Severity = "soft"
)

func (k ResourceKind) Severity() Severity {
	if k == KindDoctor {
		return SeverityHard
	}
	return SeveritySoft
}

// Conflict is one existing appointment overlapping the draft on one resource
// dimension. An appointment sharing several resources appears once per
// dimension.
type Conflict struct {
	Kind        ResourceKind
	Severity    Severity
	Appointment Appointment
}

// Report enumerates every overlap found for a draft.
type Report struct {
	Conflicts []Conflict
}

// Classify builds the conflict report for a draft against a set of existing
// non-cancelled appointments. Overlap is the half-open interval test
// (a.start < b.end && b.start < a.end). The appointment being updated, if
// any, is excluded.
func Classify(d Draft, excludeID *uuid.UUID, existing []Appointment) Report {
	var report Report
	for _, a := range existing {
		if a.Status == StatusCancelled {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if !d.StartAt.Before(a.EndAt) || !a.StartAt.Before(d.EndAt) {
			continue
		}
		for _, kind := range sharedResources(d, a) {
			report.Conflicts = append(report.Conflicts, Conflict{
				Kind:        kind,
				Severity:    kind.Severity(),
				Appointment: a,
			})
		}
	}
	return report
}

func sharedResources(d Draft, a Appointment) []ResourceKind {
	var kinds []ResourceKind
	if d.DoctorID == a.DoctorID {
		kinds = append(kinds, KindDoctor)
	}
	if sameRef(d.RoomID, a.RoomID) {
		kinds = append(kinds, KindRoom)
	}
	if sameRef(d.EquipmentID, a.EquipmentID) {
		kinds = append(kinds, KindEquipment)
	}
	if sameRef(d.AssistantID, a.AssistantID) {
		kinds = append(kinds, KindAssistant)
	}
	return kinds
}

func sameRef(a, b *uuid.UUID) bool {
	return a != nil && b != nil && *a == *b
}

// Blocking returns the conflicts that stop the draft from being persisted.
// Hard conflicts always block; soft conflicts block unless allowed.
func (r Report) Blocking(allowSoft bool) []Conflict {
	var out []Conflict
	for _, c := range r.Conflicts {
		if c.Severity == SeverityHard || !allowSoft {
			out = append(out, c)
		}
	}
	return out
}
