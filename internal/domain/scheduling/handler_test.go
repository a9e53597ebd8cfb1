package scheduling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/notification"
)

type recordingNotifier struct {
	events []notification.Event
}

func (r *recordingNotifier) Dispatch(_ context.Context, ev notification.Event) {
	r.events = append(r.events, ev)
}

func newTestHandler() (*Handler, *fixture, *recordingNotifier, *echo.Echo) {
	f := newFixture()
	n := &recordingNotifier{}
	return NewHandler(f.svc, n), f, n, echo.New()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req.WithContext(auth.WithIdentity(req.Context(), "reception-1", []string{auth.RoleReceptionist}))
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	if he.Code != code {
		t.Errorf("expected %d, got %d (%v)", code, he.Code, he.Message)
	}
}

func TestHandler_BookAppointment(t *testing.T) {
	h, f, n, e := newTestHandler()
	body := `{"patient_id":"` + f.patient.String() + `","doctor_id":"` + f.doctor.String() +
		`","appointment_date":"2026-03-02","appointment_time":"10:30","type":"Follow-up"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", body), rec)

	if err := h.BookAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var a Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.AppointmentNumber != "APT0001" || a.Time.String() != "10:30" || a.Type != TypeFollowUp {
		t.Errorf("unexpected appointment %+v", a)
	}
	if a.CreatedBy == nil || *a.CreatedBy != "reception-1" {
		t.Errorf("expected actor recorded, got %v", a.CreatedBy)
	}
	if len(n.events) != 1 || n.events[0].Template != notification.AppointmentBooked || n.events[0].PatientID != f.patient {
		t.Errorf("unexpected notifications %+v", n.events)
	}
}

func TestHandler_BookAppointment_Conflict(t *testing.T) {
	h, f, n, e := newTestHandler()
	f.book(t, monday, "10:30")

	body := `{"patient_id":"` + uuid.NewString() + `","doctor_id":"` + f.doctor.String() +
		`","appointment_date":"2026-03-02","appointment_time":"10:30"}`
	c := e.NewContext(jsonRequest(http.MethodPost, "/", body), httptest.NewRecorder())

	expectHTTPError(t, h.BookAppointment(c), http.StatusConflict)
	if len(n.events) != 0 {
		t.Error("no notification may be sent for a rejected booking")
	}
}

func TestHandler_BookAppointment_BadTime(t *testing.T) {
	h, f, _, e := newTestHandler()
	body := `{"patient_id":"` + f.patient.String() + `","doctor_id":"` + f.doctor.String() +
		`","appointment_date":"2026-03-02","appointment_time":"half past ten"}`
	c := e.NewContext(jsonRequest(http.MethodPost, "/", body), httptest.NewRecorder())

	expectHTTPError(t, h.BookAppointment(c), http.StatusBadRequest)
}

func TestHandler_AvailableSlots(t *testing.T) {
	h, f, _, e := newTestHandler()
	f.book(t, monday, "09:00")

	req := httptest.NewRequest(http.MethodGet, "/?doctor_id="+f.doctor.String()+"&date=2026-03-02", nil)
	rec := httptest.NewRecorder()
	if err := h.AvailableSlots(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		Slots []string `json:"available_slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Slots) != 15 || body.Slots[0] != "09:30" {
		t.Errorf("unexpected slots %v", body.Slots)
	}
}

func TestHandler_AvailableSlots_BadParams(t *testing.T) {
	h, f, _, e := newTestHandler()
	for _, target := range []string{
		"/?doctor_id=abc&date=2026-03-02",
		"/?doctor_id=" + f.doctor.String() + "&date=tomorrow",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		expectHTTPError(t, h.AvailableSlots(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest)
	}

	req := httptest.NewRequest(http.MethodGet, "/?doctor_id="+uuid.NewString()+"&date=2026-03-02", nil)
	expectHTTPError(t, h.AvailableSlots(e.NewContext(req, httptest.NewRecorder())), http.StatusNotFound)
}

func TestHandler_UpdateAppointment(t *testing.T) {
	h, f, n, e := newTestHandler()
	a := f.book(t, monday, "09:00")

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, "/", `{"appointment_time":"13:00"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.UpdateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if len(n.events) != 1 || n.events[0].Template != notification.AppointmentRescheduled {
		t.Errorf("expected a reschedule notification, got %+v", n.events)
	}
	if n.events[0].Data["time"] != "13:00" {
		t.Errorf("expected new time in notification, got %v", n.events[0].Data)
	}
}

func TestHandler_UpdateAppointment_CancelNotifies(t *testing.T) {
	h, f, n, e := newTestHandler()
	a := f.book(t, monday, "09:00")

	rec := httptest.NewRecorder()
	body := `{"status":"Cancelled","cancellation_reason":"doctor unavailable"}`
	c := e.NewContext(jsonRequest(http.MethodPut, "/", body), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.UpdateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.events) != 1 || n.events[0].Template != notification.AppointmentCancelled {
		t.Fatalf("expected a cancellation notification, got %+v", n.events)
	}
	if n.events[0].Data["reason"] != "doctor unavailable" {
		t.Errorf("expected the reason in the notification, got %v", n.events[0].Data)
	}
}

func TestHandler_UpdateAppointment_NoValidFields(t *testing.T) {
	h, f, n, e := newTestHandler()
	a := f.book(t, monday, "09:00")

	c := e.NewContext(jsonRequest(http.MethodPut, "/", `{"unknown":"x"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	expectHTTPError(t, h.UpdateAppointment(c), http.StatusBadRequest)
	if len(n.events) != 0 {
		t.Error("unexpected notification")
	}
}

func TestHandler_CancelAppointment(t *testing.T) {
	h, f, n, e := newTestHandler()
	a := f.book(t, monday, "09:00")

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodDelete, "/", `{"reason":"travel"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.CancelAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.events) != 1 || n.events[0].Data["reason"] != "travel" {
		t.Errorf("unexpected notifications %+v", n.events)
	}

	c = e.NewContext(jsonRequest(http.MethodDelete, "/", ""), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	expectHTTPError(t, h.CancelAppointment(c), http.StatusConflict)
}

func TestHandler_GetAppointment_NotFound(t *testing.T) {
	h, _, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	expectHTTPError(t, h.GetAppointment(c), http.StatusNotFound)
}

func TestHandler_DailySchedule(t *testing.T) {
	h, f, _, e := newTestHandler()
	f.book(t, monday, "09:00")
	f.book(t, monday, "09:30")

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?date=2026-03-02", nil), rec)
	if err := h.DailySchedule(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Date         string        `json:"date"`
		Appointments []Appointment `json:"appointments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Date != "2026-03-02" || len(body.Appointments) != 2 {
		t.Errorf("unexpected daily schedule %+v", body)
	}
}

func TestHandler_RouteGuards(t *testing.T) {
	h, _, _, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/appointments/"+uuid.NewString(), nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "nurse-1", []string{auth.RoleNurse}))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a nurse cancelling, got %d", rec.Code)
	}
}
