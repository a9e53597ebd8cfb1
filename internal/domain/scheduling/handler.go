package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/pkg/pagination"
)

var timeNow = time.Now

// Notifier receives patient notifications after a change has committed.
type Notifier interface {
	Dispatch(ctx context.Context, ev notification.Event)
}

type Handler struct {
	svc    *Service
	notify Notifier
}

func NewHandler(svc *Service, notify Notifier) *Handler {
	return &Handler{svc: svc, notify: notify}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments")
	g.GET("", h.ListAppointments, auth.RequirePermission(auth.ViewAppointments))
	g.GET("/slots/available", h.AvailableSlots, auth.RequirePermission(auth.ViewAppointments))
	g.GET("/schedule/daily", h.DailySchedule, auth.RequirePermission(auth.ViewAppointments))
	g.GET("/:id", h.GetAppointment, auth.RequirePermission(auth.ViewAppointments))
	g.POST("", h.BookAppointment, auth.RequirePermission(auth.CreateAppointments))
	g.PUT("/:id", h.UpdateAppointment, auth.RequirePermission(auth.UpdateAppointments))
	g.POST("/:id/complete", h.CompleteAppointment, auth.RequirePermission(auth.UpdateAppointments))
	g.DELETE("/:id", h.CancelAppointment, auth.RequirePermission(auth.DeleteAppointments))

	// per-doctor day view lives next to the staff routes
	api.GET("/staff/:id/schedule", h.DoctorDay, auth.RequirePermission(auth.ViewAppointments))
}

func (h *Handler) AvailableSlots(c echo.Context) error {
	doctorID, err := uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id must be a UUID")
	}
	date, err := ParseDate(c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	avail, err := h.svc.AvailableSlots(c.Request().Context(), doctorID, date)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, avail)
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var in BookInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in.CreatedBy = auth.UserIDFromContext(c.Request().Context())

	a, err := h.svc.BookAppointment(c.Request().Context(), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	h.dispatch(c, notification.AppointmentBooked, a)
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	var f ListFilter
	f.Status = c.QueryParam("status")
	if v := c.QueryParam("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "doctor_id must be a UUID")
		}
		f.DoctorID = id
	}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "patient_id must be a UUID")
		}
		f.PatientID = id
	}
	if v := c.QueryParam("date"); v != "" {
		d, err := ParseDate(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.Date = d
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var changes Changes
	if err := json.NewDecoder(c.Request().Body).Decode(&changes); err != nil && !errors.Is(err, io.EOF) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, tr, err := h.svc.UpdateAppointment(c.Request().Context(), id, changes)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	switch {
	case tr.Cancelled:
		h.dispatch(c, notification.AppointmentCancelled, a)
	case tr.Moved && a.Occupies():
		h.dispatch(c, notification.AppointmentRescheduled, a)
	}
	return c.JSON(http.StatusOK, a)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req cancelRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if req.Reason == "" {
		req.Reason = c.QueryParam("reason")
	}

	a, err := h.svc.CancelAppointment(c.Request().Context(), id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	h.dispatch(c, notification.AppointmentCancelled, a)
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var out Outcome
	if err := c.Bind(&out); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.CompleteAppointment(c.Request().Context(), id, out)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DailySchedule(c echo.Context) error {
	date := NewDate(timeNow())
	if v := c.QueryParam("date"); v != "" {
		d, err := ParseDate(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		date = d
	}
	appts, err := h.svc.DailySchedule(c.Request().Context(), date)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"date":         date,
		"appointments": appts,
	})
}

func (h *Handler) DoctorDay(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	date, err := ParseDate(c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	dd, err := h.svc.DoctorDay(c.Request().Context(), id, date)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, dd)
}

func (h *Handler) dispatch(c echo.Context, template string, a *Appointment) {
	if h.notify == nil {
		return
	}
	data := map[string]string{
		"appointment_number": a.AppointmentNumber,
		"date":               a.Date.String(),
		"time":               a.Time.String(),
		"type":               a.Type,
		"doctor_name":        a.DoctorName,
	}
	if a.CancellationReason != nil {
		data["reason"] = *a.CancellationReason
	} else {
		data["reason"] = "not given"
	}
	h.notify.Dispatch(c.Request().Context(), notification.Event{
		Template:  template,
		PatientID: a.PatientID,
		Data:      data,
	})
}
