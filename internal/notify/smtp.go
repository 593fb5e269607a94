package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// SMTPNotifier delivers messages as email via gomail.
type SMTPNotifier struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPNotifier(host string, port int, username, password, from string) *SMTPNotifier {
	return &SMTPNotifier{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (n *SMTPNotifier) Send(_ context.Context, msg Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("no recipient contact for template %s", msg.Template)
	}

	subject, body := render(msg)

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", msg.Recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Template, msg.Recipient, err)
	}
	return nil
}

func render(msg Message) (subject, body string) {
	switch msg.Template {
	case TemplateRescheduleOptions:
		return "Your appointment needs a new time", rescheduleBody(msg.Data)
	case TemplateWaitlistOffer:
		return "A slot opened up for you", waitlistBody(msg.Data)
	case TemplateAppointmentReminder:
		return "Appointment reminder", reminderBody(msg.Data)
	default:
		return "Notification from your clinic", fmt.Sprintf("<p>%v</p>", msg.Data)
	}
}

func rescheduleBody(data map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Dear %v,</p>", data["patient_name"])
	fmt.Fprintf(&b, "<p>Dr. %v's working hours changed and your appointment at %v no longer fits.</p>",
		data["doctor_name"], data["old_time"])

	options, _ := data["options"].([]string)
	if len(options) == 0 {
		b.WriteString("<p>We could not find a replacement automatically. Please call the clinic to rebook.</p>")
	} else {
		b.WriteString("<p>Suggested alternatives:</p><ul>")
		for _, opt := range options {
			fmt.Fprintf(&b, "<li>%s</li>", opt)
		}
		b.WriteString("</ul>")
	}
	return b.String()
}

func waitlistBody(data map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Dear %v,</p>", data["patient_name"])
	fmt.Fprintf(&b, "<p>A slot with Dr. %v is now available: %v &ndash; %v.</p>",
		data["doctor_name"], data["start"], data["end"])
	fmt.Fprintf(&b, "<p>Claim it with reference <strong>%v</strong>. First confirmation wins.</p>", data["claim_token"])
	return b.String()
}

func reminderBody(data map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Dear %v,</p>", data["patient_name"])
	fmt.Fprintf(&b, "<p>This is a reminder of your appointment with Dr. %v at %v.</p>",
		data["doctor_name"], data["start"])
	return b.String()
}

// FormatTime is the single place notification timestamps get formatted.
func FormatTime(t time.Time) string {
	return t.Format("Mon 02 Jan 2006 15:04")
}
