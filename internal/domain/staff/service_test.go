package staff

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

type mockStaffRepo struct {
	staff map[uuid.UUID]*Staff
}

func newMockStaffRepo() *mockStaffRepo {
	return &mockStaffRepo{staff: make(map[uuid.UUID]*Staff)}
}

func (m *mockStaffRepo) Create(_ context.Context, s *Staff) error {
	for _, other := range m.staff {
		if other.UserID == s.UserID {
			return apperr.Conflict("a staff profile already exists for user %s", s.UserID)
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.staff[s.ID] = &cp
	return nil
}

func (m *mockStaffRepo) GetByID(_ context.Context, id uuid.UUID) (*Staff, error) {
	s, ok := m.staff[id]
	if !ok {
		return nil, apperr.NotFound("staff member %s not found", id)
	}
	cp := *s
	return &cp, nil
}

func (m *mockStaffRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return m.GetByID(ctx, id)
}

func (m *mockStaffRepo) Update(_ context.Context, s *Staff, _ []Assignment) error {
	cp := *s
	m.staff[s.ID] = &cp
	return nil
}

func (m *mockStaffRepo) List(_ context.Context, f ListFilter, _, _ int) ([]*Staff, int, error) {
	var result []*Staff
	for _, s := range m.staff {
		if f.Role != "" && s.Role != f.Role {
			continue
		}
		if f.ActiveOnly && !s.IsActive {
			continue
		}
		result = append(result, s)
	}
	return result, len(result), nil
}

func (m *mockStaffRepo) DoctorSchedule(_ context.Context, id uuid.UUID) ([]byte, error) {
	s, ok := m.staff[id]
	if !ok || s.Role != auth.RoleDoctor || !s.IsActive {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	return s.Schedule, nil
}

type directTx struct{}

func (directTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

func newTestService() (*Service, *mockStaffRepo) {
	repo := newMockStaffRepo()
	return NewService(repo, directTx{}, zerolog.Nop()), repo
}

func createDoctor(t *testing.T, svc *Service) *Staff {
	t.Helper()
	st, err := svc.CreateStaff(context.Background(), CreateInput{
		UserID:    "doc-" + uuid.NewString(),
		FirstName: "Gregory",
		LastName:  "House",
		Role:      auth.RoleDoctor,
		Schedule:  json.RawMessage(`{"monday": {"working": true, "start": "9:00", "end": "13:00"}}`),
	})
	if err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	return st
}

func TestCreateStaff_NormalizesSchedule(t *testing.T) {
	svc, _ := newTestService()
	st := createDoctor(t, svc)

	if !st.IsActive {
		t.Error("new staff must be active")
	}
	want := `{"Monday":{"working":true,"start":"09:00","end":"13:00"}}`
	if string(st.Schedule) != want {
		t.Errorf("expected normalized schedule %s, got %s", want, st.Schedule)
	}
}

func TestCreateStaff_Validation(t *testing.T) {
	svc, _ := newTestService()
	tests := []struct {
		name string
		in   CreateInput
	}{
		{"missing user", CreateInput{FirstName: "A", LastName: "B", Role: auth.RoleNurse}},
		{"missing name", CreateInput{UserID: "u1", FirstName: "A", Role: auth.RoleNurse}},
		{"bad role", CreateInput{UserID: "u1", FirstName: "A", LastName: "B", Role: "janitor"}},
		{"bad schedule", CreateInput{UserID: "u1", FirstName: "A", LastName: "B", Role: auth.RoleDoctor,
			Schedule: json.RawMessage(`{"Monday": {"working": true, "start": "18:00", "end": "08:00"}}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateStaff(context.Background(), tt.in)
			if !errors.Is(err, apperr.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestCreateStaff_DuplicateUser(t *testing.T) {
	svc, _ := newTestService()
	in := CreateInput{UserID: "u1", FirstName: "A", LastName: "B", Role: auth.RoleNurse}
	if _, err := svc.CreateStaff(context.Background(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CreateStaff(context.Background(), in); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateStaff_Schedule(t *testing.T) {
	svc, _ := newTestService()
	st := createDoctor(t, svc)

	updated, err := svc.UpdateStaff(context.Background(), st.ID, Changes{
		"schedule":       json.RawMessage(`{"Friday": {"working": true, "start": "10:00", "end": "11:00"}}`),
		"specialization": json.RawMessage(`"Diagnostics"`),
		"role":           json.RawMessage(`"admin"`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Role != auth.RoleDoctor {
		t.Error("role must not be mutable through update")
	}
	if updated.Specialization == nil || *updated.Specialization != "Diagnostics" {
		t.Errorf("specialization not updated: %v", updated.Specialization)
	}

	raw, err := svc.DoctorSchedule(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	week, err := scheduling.ParseWeekSchedule(raw)
	if err != nil {
		t.Fatalf("stored schedule does not parse: %v", err)
	}
	friday, _ := scheduling.ParseDate("2026-03-06")
	day, ok := week.Day(friday)
	if !ok || len(scheduling.GenerateSlots(day, nil)) != 2 {
		t.Errorf("unexpected Friday schedule %+v", day)
	}
}

func TestUpdateStaff_Rejects(t *testing.T) {
	svc, _ := newTestService()
	st := createDoctor(t, svc)

	for name, ch := range map[string]Changes{
		"malformed schedule": {"schedule": json.RawMessage(`{"Monday": {"working": true, "start": "late"}}`)},
		"blank name":         {"first_name": json.RawMessage(`"   "`)},
		"nothing allowed":    {"role": json.RawMessage(`"admin"`)},
	} {
		_, err := svc.UpdateStaff(context.Background(), st.ID, ch)
		if !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}

	got, _ := svc.GetStaff(context.Background(), st.ID)
	if !strings.Contains(string(got.Schedule), `"Monday"`) {
		t.Errorf("schedule must be unchanged after rejected updates, got %s", got.Schedule)
	}
}

func TestDoctorSchedule_OnlyActiveDoctors(t *testing.T) {
	svc, _ := newTestService()
	nurse, _ := svc.CreateStaff(context.Background(), CreateInput{UserID: "n1", FirstName: "A", LastName: "B", Role: auth.RoleNurse})
	if _, err := svc.DoctorSchedule(context.Background(), nurse.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a nurse, got %v", err)
	}

	doc := createDoctor(t, svc)
	if _, err := svc.UpdateStaff(context.Background(), doc.ID, Changes{"is_active": json.RawMessage(`false`)}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.DoctorSchedule(context.Background(), doc.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for an inactive doctor, got %v", err)
	}

	doctors, total, _ := svc.ListDoctors(context.Background(), "", 10, 0)
	if total != 0 || len(doctors) != 0 {
		t.Errorf("expected no active doctors, got %d", total)
	}
}
