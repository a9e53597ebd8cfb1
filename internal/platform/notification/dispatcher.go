package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/db"
)

// Contact is where a patient receives messages. Either address may be empty.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// ContactResolver looks up a patient's contact details.
type ContactResolver interface {
	Contact(ctx context.Context, patientID uuid.UUID) (Contact, error)
}

// Event asks for a template to be sent to one patient. Data fills the
// template placeholders; patient_name is added from the contact.
type Event struct {
	Template  string
	PatientID uuid.UUID
	Data      map[string]string
}

// Dispatcher delivers events after the triggering write has committed.
// Failures are logged and never reach the caller.
type Dispatcher struct {
	contacts ContactResolver
	email    EmailSender
	sms      SMSSender
	tpl      *TemplateEngine
	timeout  time.Duration
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(contacts ContactResolver, email EmailSender, sms SMSSender, tpl *TemplateEngine, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Dispatcher{
		contacts: contacts,
		email:    email,
		sms:      sms,
		tpl:      tpl,
		timeout:  timeout,
		logger:   logger.With().Str("component", "notification").Logger(),
	}
}

// Dispatch sends ev in the background on a context detached from ctx. The
// request finishing does not cancel delivery, and delivery never touches the
// request's database connection. A panic in a resolver or sender is logged.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().
					Interface("panic", r).
					Str("template", ev.Template).
					Str("patient_id", ev.PatientID.String()).
					Msg("notification panicked")
			}
		}()
		sendCtx, cancel := context.WithTimeout(db.Detach(ctx), d.timeout)
		defer cancel()
		if err := d.Deliver(sendCtx, ev); err != nil {
			d.logger.Warn().Err(err).
				Str("template", ev.Template).
				Str("patient_id", ev.PatientID.String()).
				Msg("notification failed")
		}
	}()
}

// Wait blocks until every dispatched event has been attempted.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Deliver renders ev and sends it on every channel the patient has an
// address for.
func (d *Dispatcher) Deliver(ctx context.Context, ev Event) error {
	contact, err := d.contacts.Contact(ctx, ev.PatientID)
	if err != nil {
		return err
	}

	data := make(map[string]string, len(ev.Data)+1)
	for k, v := range ev.Data {
		data[k] = v
	}
	data["patient_name"] = contact.Name

	var errs []error
	if contact.Email != "" && d.email != nil {
		subject, body, err := d.tpl.Render(ev.Template, ChannelEmail, data)
		if err == nil {
			err = d.email.SendEmail(ctx, contact.Email, subject, body)
		}
		errs = append(errs, err)
	}
	if contact.Phone != "" && d.sms != nil {
		_, body, err := d.tpl.Render(ev.Template, ChannelSMS, data)
		if err == nil {
			err = d.sms.SendSMS(ctx, contact.Phone, body)
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
