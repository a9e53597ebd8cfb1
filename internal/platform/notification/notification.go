// Package notification renders patient-facing messages for clinic events and
// hands them to email and SMS senders.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Channel is the medium a message is delivered through.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Template ids raised by the domain handlers.
const (
	AppointmentBooked      = "appointment-booked"
	AppointmentRescheduled = "appointment-rescheduled"
	AppointmentCancelled   = "appointment-cancelled"
	InvoiceCreated         = "invoice-created"
	PaymentReceived        = "payment-received"
)

// EmailSender delivers email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Template is a message with {{key}} placeholders. SMS uses the shorter text
// when set and falls back to Body.
type Template struct {
	ID      string
	Subject string
	Body    string
	SMS     string
}

// TemplateEngine stores templates and renders them with key/value data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	for _, t := range builtIn {
		e.templates[t.ID] = t
	}
	return e
}

var builtIn = []Template{
	{
		ID:      AppointmentBooked,
		Subject: "Appointment Confirmation - {{appointment_number}}",
		Body: "Dear {{patient_name}},\n\nYour {{type}} appointment has been scheduled for {{date}} at {{time}}" +
			" with Dr. {{doctor_name}}.\n\nAppointment number: {{appointment_number}}\n\nPlease arrive 15 minutes early.",
		SMS: "Appointment {{appointment_number}} confirmed for {{date}} at {{time}} with Dr. {{doctor_name}}.",
	},
	{
		ID:      AppointmentRescheduled,
		Subject: "Appointment Updated - {{appointment_number}}",
		Body:    "Dear {{patient_name}},\n\nYour appointment {{appointment_number}} is now on {{date}} at {{time}} with Dr. {{doctor_name}}.",
		SMS:     "Appointment {{appointment_number}} moved to {{date}} at {{time}}.",
	},
	{
		ID:      AppointmentCancelled,
		Subject: "Appointment Cancelled - {{appointment_number}}",
		Body:    "Dear {{patient_name}},\n\nYour appointment {{appointment_number}} on {{date}} at {{time}} has been cancelled.\n\nReason: {{reason}}",
		SMS:     "Appointment {{appointment_number}} on {{date}} at {{time}} was cancelled.",
	},
	{
		ID:      InvoiceCreated,
		Subject: "Invoice {{bill_number}}",
		Body:    "Dear {{patient_name}},\n\nInvoice {{bill_number}} for ${{total_amount}} has been issued.",
		SMS:     "Invoice {{bill_number}} issued: ${{total_amount}}.",
	},
	{
		ID:      PaymentReceived,
		Subject: "Payment Confirmation",
		Body: "Dear {{patient_name}},\n\nPayment of ${{amount}} has been received for invoice {{bill_number}}." +
			"\n\nStatus: {{payment_status}}. Remaining balance: ${{remaining_amount}}\n\nThank you for your payment.",
		SMS: "Payment of ${{amount}} received for {{bill_number}}. Balance ${{remaining_amount}}.",
	},
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render substitutes data into the template for the given channel. Unknown
// placeholders are left as they are.
func (e *TemplateEngine) Render(templateID string, ch Channel, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	if ch == ChannelSMS && t.SMS != "" {
		body = t.SMS
	}
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}
