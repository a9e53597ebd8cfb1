package patient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

func TestHandler_RegisterPatient(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	body := `{"first_name":"Ada","last_name":"Lovelace","phone":"555-0001","date_of_birth":"1815-12-10"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithIdentity(req.Context(), "recep-1", []string{auth.RoleReceptionist}))
	rec := httptest.NewRecorder()

	if err := h.RegisterPatient(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var p Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.PatientCode != "P0001" {
		t.Errorf("expected P0001, got %s", p.PatientCode)
	}
	if p.CreatedBy == nil || *p.CreatedBy != "recep-1" {
		t.Errorf("expected created_by recep-1, got %v", p.CreatedBy)
	}
	if p.DateOfBirth == nil || *p.DateOfBirth != "1815-12-10" {
		t.Errorf("unexpected date_of_birth %v", p.DateOfBirth)
	}
}

func TestHandler_RegisterPatient_Duplicate(t *testing.T) {
	svc, _ := newTestService()
	register(t, svc, "555-0001", "")
	h := NewHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"first_name":"A","last_name":"B","phone":"555-0001"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	err := h.RegisterPatient(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_GetPatient(t *testing.T) {
	svc, _ := newTestService()
	p := register(t, svc, "555-0001", "")
	h := NewHandler(svc)
	e := echo.New()

	tests := []struct {
		name string
		id   string
		code int
	}{
		{"found", p.ID.String(), http.StatusOK},
		{"malformed id", "abc", http.StatusBadRequest},
		{"unknown", "6f1c1f7e-8a52-4f43-a8a3-0d2b5b2e2c11", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			c.SetParamNames("id")
			c.SetParamValues(tt.id)
			err := h.GetPatient(c)
			if tt.code == http.StatusOK {
				if err != nil || rec.Code != http.StatusOK {
					t.Errorf("expected 200, got %v / %d", err, rec.Code)
				}
				return
			}
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != tt.code {
				t.Errorf("expected %d, got %v", tt.code, err)
			}
		})
	}
}

func TestHandler_ListPatients(t *testing.T) {
	svc, _ := newTestService()
	register(t, svc, "555-0001", "")
	register(t, svc, "555-0002", "")
	h := NewHandler(svc)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?search=ada&limit=1", nil), rec)
	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Pagination struct {
			TotalItems int `json:"total_items"`
			TotalPages int `json:"total_pages"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pagination.TotalItems != 2 || resp.Pagination.TotalPages != 2 {
		t.Errorf("unexpected pagination %+v", resp.Pagination)
	}
}

func TestHandler_AccountantCannotRegister(t *testing.T) {
	svc, _ := newTestService()
	e := echo.New()
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithIdentity(req.Context(), "acc", []string{auth.RoleAccountant}))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}
