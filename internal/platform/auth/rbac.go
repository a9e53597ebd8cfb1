package auth

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin        = "admin"
	RoleDoctor       = "doctor"
	RoleNurse        = "nurse"
	RoleReceptionist = "receptionist"
	RoleAccountant   = "accountant"
)

// Permission names a single capability checked at the route level.
type Permission string

const (
	ViewAppointments   Permission = "view_appointments"
	CreateAppointments Permission = "create_appointments"
	UpdateAppointments Permission = "update_appointments"
	DeleteAppointments Permission = "delete_appointments"
	ViewBilling        Permission = "view_billing"
	CreateBilling      Permission = "create_billing"
	ProcessPayments    Permission = "process_payments"
	ViewPatients       Permission = "view_patients"
	ManagePatients     Permission = "manage_patients"
	ViewStaff          Permission = "view_staff"
	ManageStaff        Permission = "manage_staff"
)

// rolePermissions is the static grant table. Admin holds every permission
// implicitly and is not listed.
var rolePermissions = map[string][]Permission{
	RoleDoctor: {
		ViewAppointments, CreateAppointments, UpdateAppointments,
		ViewPatients, ManagePatients, ViewStaff, ViewBilling,
	},
	RoleNurse: {
		ViewAppointments, UpdateAppointments, ViewPatients, ViewStaff,
	},
	RoleReceptionist: {
		ViewAppointments, CreateAppointments, UpdateAppointments, DeleteAppointments,
		ViewPatients, ManagePatients, ViewStaff, ViewBilling, CreateBilling,
	},
	RoleAccountant: {
		ViewBilling, CreateBilling, ProcessPayments, ViewPatients,
	},
}

// HasPermission reports whether any of roles grants perm.
func HasPermission(roles []string, perm Permission) bool {
	for _, role := range roles {
		if role == RoleAdmin {
			return true
		}
		for _, p := range rolePermissions[role] {
			if p == perm {
				return true
			}
		}
	}
	return false
}

// RequirePermission returns middleware that rejects callers none of whose
// roles grant perm.
func RequirePermission(perm Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			roles := RolesFromContext(c.Request().Context())
			if len(roles) == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !HasPermission(roles, perm) {
				return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("required permission: %s", perm))
			}
			return next(c)
		}
	}
}
