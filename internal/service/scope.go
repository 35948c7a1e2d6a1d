package service

import (
	"context"
	"sort"

	"github.com/noah-isme/faculty-records-api/internal/models"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
)

// Scope is the set of record owners a requester may see. When Unrestricted is false only
// EmployeeIDs are visible, and an empty set sees nothing.
type Scope struct {
	Unrestricted bool
	Department   models.Department
	EmployeeIDs  []string
}

// Allows reports whether a record owned by employeeID is inside the scope.
func (s Scope) Allows(employeeID string) bool {
	if s.Unrestricted {
		return true
	}
	for _, id := range s.EmployeeIDs {
		if id == employeeID {
			return true
		}
	}
	return false
}

// Apply narrows a record filter to the scope.
func (s Scope) Apply(filter models.RecordFilter) models.RecordFilter {
	if s.Unrestricted {
		filter.Restricted = false
		filter.EmployeeIDs = nil
		return filter
	}
	filter.Restricted = true
	filter.EmployeeIDs = append([]string(nil), s.EmployeeIDs...)
	return filter
}

// Key identifies the scope for cache partitioning.
func (s Scope) Key() string {
	switch {
	case s.Unrestricted:
		return "all"
	case s.Department != "":
		return "department:" + string(s.Department)
	case len(s.EmployeeIDs) == 1:
		return "employee:" + s.EmployeeIDs[0]
	default:
		return "none"
	}
}

// ScopeDepartment reports which department's directory ResolveScope needs for the requester, if any.
func ScopeDepartment(requester models.Requester, explicit models.Department) (models.Department, bool) {
	switch requester.Role {
	case models.RoleIncharge:
		return requester.Department, requester.Department != ""
	case models.RoleAdmin:
		return explicit, explicit != ""
	default:
		return "", false
	}
}

// ResolveScope derives the visible owner set from the requester, an optional explicit department and a
// directory snapshot. Faculty see only themselves and incharges only their own department's faculty;
// both ignore the explicit department. Admins see one department's faculty when it is given, else everything.
func ResolveScope(requester models.Requester, explicit models.Department, directory []models.Employee) (Scope, error) {
	switch requester.Role {
	case models.RoleFaculty:
		if requester.EmployeeID == "" {
			return Scope{}, appErrors.ErrUnauthorized
		}
		return Scope{EmployeeIDs: []string{requester.EmployeeID}}, nil
	case models.RoleIncharge:
		if requester.Department == "" {
			return Scope{}, appErrors.Clone(appErrors.ErrForbidden, "reviewer has no department")
		}
		return departmentScope(requester.Department, directory), nil
	case models.RoleAdmin:
		if explicit == "" {
			return Scope{Unrestricted: true}, nil
		}
		if _, ok := models.ParseDepartment(string(explicit)); !ok {
			return Scope{}, appErrors.Clone(appErrors.ErrValidation, "unknown department")
		}
		return departmentScope(explicit, directory), nil
	default:
		return Scope{}, appErrors.ErrForbidden
	}
}

func departmentScope(department models.Department, directory []models.Employee) Scope {
	ids := make([]string, 0)
	for _, e := range directory {
		if e.Department == department && e.Role == models.RoleFaculty {
			ids = append(ids, e.EmployeeID)
		}
	}
	sort.Strings(ids)
	return Scope{Department: department, EmployeeIDs: ids}
}

type directoryReader interface {
	ListEmployeesByDepartment(ctx context.Context, department models.Department) ([]models.Employee, error)
	FindEmployees(ctx context.Context, employeeIDs []string) ([]models.Employee, error)
}

// checkSession compares the requester's token claims with their current directory entry. A deactivated
// account, or a role or department changed since the token was issued, ends the session.
func checkSession(requester models.Requester, current models.Employee) error {
	if !current.Active {
		return appErrors.Clone(appErrors.ErrUnauthorized, "account is inactive")
	}
	if current.Role != requester.Role || current.Department != requester.Department {
		return appErrors.Clone(appErrors.ErrUnauthorized, "session is out of date, sign in again")
	}
	return nil
}

// verifyRequester re-reads the requester from the directory and applies checkSession.
func verifyRequester(ctx context.Context, directory directoryReader, requester models.Requester) error {
	if requester.EmployeeID == "" {
		return appErrors.ErrUnauthorized
	}
	found, err := directory.FindEmployees(ctx, []string{requester.EmployeeID})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requester")
	}
	for _, e := range found {
		if e.EmployeeID == requester.EmployeeID {
			return checkSession(requester, e)
		}
	}
	return appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
}

// loadScope verifies the requester against the directory, then reads a fresh department snapshot when
// the scope depends on one.
func loadScope(ctx context.Context, directory directoryReader, requester models.Requester, explicit models.Department) (Scope, error) {
	if err := verifyRequester(ctx, directory, requester); err != nil {
		return Scope{}, err
	}
	var snapshot []models.Employee
	if dept, needed := ScopeDepartment(requester, explicit); needed {
		employees, err := directory.ListEmployeesByDepartment(ctx, dept)
		if err != nil {
			return Scope{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department directory")
		}
		snapshot = employees
	}
	return ResolveScope(requester, explicit, snapshot)
}

// parseExplicitDepartment validates an optional department argument. Only admins may narrow by
// department; for everyone else the argument is ignored.
func parseExplicitDepartment(requester models.Requester, raw string) (models.Department, error) {
	if raw == "" || requester.Role != models.RoleAdmin {
		return "", nil
	}
	dept, ok := models.ParseDepartment(raw)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown department")
	}
	return dept, nil
}
