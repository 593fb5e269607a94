package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Template names understood by the delivery implementations.
const (
	TemplateRescheduleOptions   = "reschedule-options"
	TemplateWaitlistOffer       = "waitlist-offer"
	TemplateAppointmentReminder = "appointment-reminder"
)

// Message is what the core hands to the delivery collaborator. Delivery
// failures are the collaborator's concern; callers log and move on.
type Message struct {
	Recipient string // contact address; empty means the patient has none on file
	Template  string
	Data      map[string]any
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes the message to the log instead of delivering it. Default
// in dev.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.log.Info().
		Str("recipient", msg.Recipient).
		Str("template", msg.Template).
		Interface("data", msg.Data).
		Msg("notification")
	return nil
}
