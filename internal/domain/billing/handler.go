package billing

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/pkg/pagination"
)

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
	g := api.Group("/billing")
	g.GET("", h.ListBills, auth.RequirePermission(auth.ViewBilling))
	g.POST("", h.CreateBill, auth.RequirePermission(auth.CreateBilling))
	g.GET("/payments/history", h.PaymentHistory, auth.RequirePermission(auth.ViewBilling))
	g.GET("/stats/overview", h.Stats, auth.RequirePermission(auth.ViewBilling))
	g.GET("/:id", h.GetBill, auth.RequirePermission(auth.ViewBilling))
	g.POST("/:id/items", h.AddItem, auth.RequirePermission(auth.CreateBilling))
	g.DELETE("/:id/items/:itemId", h.RemoveItem, auth.RequirePermission(auth.CreateBilling))
	g.POST("/:id/payment", h.RecordPayment, auth.RequirePermission(auth.ProcessPayments))

	api.GET("/patients/:id/outstanding-bills", h.Outstanding, auth.RequirePermission(auth.ViewBilling))
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) CreateBill(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in.CreatedBy = auth.UserIDFromContext(c.Request().Context())
	b, err := h.svc.CreateBill(c.Request().Context(), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	h.dispatch(c, notification.InvoiceCreated, b, map[string]string{
		"total_amount": b.TotalAmount.StringFixed(2),
	})
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBill(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	b, err := h.svc.GetBill(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBills(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{Status: c.QueryParam("status")}
	if raw := c.QueryParam("patient_id"); raw != "" {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "patient_id must be a UUID")
		}
		f.PatientID = &pid
	}
	items, total, err := h.svc.ListBills(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) AddItem(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in ItemInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	b, err := h.svc.AddItem(c.Request().Context(), id, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) RemoveItem(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	itemID, err := parseID(c, "itemId")
	if err != nil {
		return err
	}
	b, err := h.svc.RemoveItem(c.Request().Context(), id, itemID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in PaymentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in.ProcessedBy = auth.UserIDFromContext(c.Request().Context())
	res, b, err := h.svc.RecordPayment(c.Request().Context(), id, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	h.dispatch(c, notification.PaymentReceived, b, map[string]string{
		"amount":           res.PaymentAmount.StringFixed(2),
		"payment_status":   res.PaymentStatus,
		"remaining_amount": res.RemainingAmount.StringFixed(2),
	})
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Outstanding(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	bills, err := h.svc.Outstanding(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, bills)
}

func (h *Handler) PaymentHistory(c echo.Context) error {
	pg := pagination.FromContext(c)
	var patientID *uuid.UUID
	if raw := c.QueryParam("patient_id"); raw != "" {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "patient_id must be a UUID")
		}
		patientID = &pid
	}
	items, total, err := h.svc.PaymentHistory(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Stats(c echo.Context) error {
	days := 0
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be an integer")
		}
		days = n
		if days == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be positive")
		}
	}
	st, err := h.svc.Stats(c.Request().Context(), days)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) dispatch(c echo.Context, template string, b *Bill, data map[string]string) {
	if h.notify == nil {
		return
	}
	data["bill_number"] = b.BillNumber
	h.notify.Dispatch(c.Request().Context(), notification.Event{
		Template:  template,
		PatientID: b.PatientID,
		Data:      data,
	})
}
