package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/faculty-records-api/internal/models"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
)

var testDirectory = []models.Employee{
	{EmployeeID: "E123", Name: "Asha", Department: models.DeptCSE, Role: models.RoleFaculty, Active: true},
	{EmployeeID: "E124", Name: "Bala", Department: models.DeptCSE, Role: models.RoleFaculty, Active: true},
	{EmployeeID: "E900", Name: "Ravi", Department: models.DeptCSE, Role: models.RoleIncharge, Active: true},
	{EmployeeID: "E200", Name: "Chitra", Department: models.DeptECE, Role: models.RoleFaculty, Active: true},
	{EmployeeID: "E901", Name: "Devi", Department: models.DeptECE, Role: models.RoleIncharge, Active: true},
	{EmployeeID: "A1", Name: "Admin", Department: models.DeptSH, Role: models.RoleAdmin, Active: true},
}

func TestResolveScopeFacultyIgnoresDepartment(t *testing.T) {
	scope, err := ResolveScope(models.Requester{EmployeeID: "E123", Role: models.RoleFaculty, Department: models.DeptCSE}, models.DeptECE, testDirectory)
	require.NoError(t, err)
	require.False(t, scope.Unrestricted)
	require.Equal(t, []string{"E123"}, scope.EmployeeIDs)
	require.Equal(t, "employee:E123", scope.Key())
}

func TestResolveScopeInchargeOwnDepartmentFacultyOnly(t *testing.T) {
	scope, err := ResolveScope(models.Requester{EmployeeID: "E900", Role: models.RoleIncharge, Department: models.DeptCSE}, models.DeptECE, testDirectory)
	require.NoError(t, err)
	require.Equal(t, []string{"E123", "E124"}, scope.EmployeeIDs)
	require.False(t, scope.Allows("E200"))
	require.False(t, scope.Allows("E900"))
	require.Equal(t, "department:CSE", scope.Key())
}

func TestResolveScopeAdmin(t *testing.T) {
	admin := models.Requester{EmployeeID: "A1", Role: models.RoleAdmin}

	scope, err := ResolveScope(admin, "", testDirectory)
	require.NoError(t, err)
	require.True(t, scope.Unrestricted)
	require.True(t, scope.Allows("anyone"))
	require.Equal(t, "all", scope.Key())

	scope, err = ResolveScope(admin, models.DeptECE, testDirectory)
	require.NoError(t, err)
	require.Equal(t, []string{"E200"}, scope.EmployeeIDs)

	_, err = ResolveScope(admin, models.Department("PHYSICS"), testDirectory)
	require.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestResolveScopeEmptyDepartmentSeesNothing(t *testing.T) {
	scope, err := ResolveScope(models.Requester{Role: models.RoleIncharge, Department: models.DeptMBA}, "", testDirectory)
	require.NoError(t, err)
	require.Empty(t, scope.EmployeeIDs)
	filter := scope.Apply(models.RecordFilter{Type: models.RecordAward})
	require.True(t, filter.Restricted)
	require.Empty(t, filter.EmployeeIDs)
}

func TestResolveScopeRejectsUnknownRoles(t *testing.T) {
	_, err := ResolveScope(models.Requester{EmployeeID: "E1", Role: models.UserRole("hod"), Department: models.DeptCSE}, "", testDirectory)
	require.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = ResolveScope(models.Requester{Role: models.RoleFaculty}, "", testDirectory)
	require.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestScopeDepartment(t *testing.T) {
	dept, ok := ScopeDepartment(models.Requester{Role: models.RoleIncharge, Department: models.DeptCSE}, models.DeptECE)
	require.True(t, ok)
	require.Equal(t, models.DeptCSE, dept)

	_, ok = ScopeDepartment(models.Requester{Role: models.RoleFaculty, Department: models.DeptCSE}, models.DeptECE)
	require.False(t, ok)

	_, ok = ScopeDepartment(models.Requester{Role: models.RoleAdmin}, "")
	require.False(t, ok)
}

type stubDirectory struct {
	byDept    map[models.Department][]models.Employee
	err       error
	deptCalls int
	findCalls int
}

func newStubDirectory(employees []models.Employee) *stubDirectory {
	d := &stubDirectory{byDept: map[models.Department][]models.Employee{}}
	for _, e := range employees {
		d.byDept[e.Department] = append(d.byDept[e.Department], e)
	}
	return d
}

// put replaces the directory entry for e.EmployeeID.
func (d *stubDirectory) put(e models.Employee) {
	for dept, list := range d.byDept {
		kept := list[:0:0]
		for _, existing := range list {
			if existing.EmployeeID != e.EmployeeID {
				kept = append(kept, existing)
			}
		}
		d.byDept[dept] = kept
	}
	d.byDept[e.Department] = append(d.byDept[e.Department], e)
}

func (d *stubDirectory) ListEmployeesByDepartment(_ context.Context, department models.Department) ([]models.Employee, error) {
	d.deptCalls++
	if d.err != nil {
		return nil, d.err
	}
	return d.byDept[department], nil
}

func (d *stubDirectory) FindEmployees(_ context.Context, ids []string) ([]models.Employee, error) {
	d.findCalls++
	if d.err != nil {
		return nil, d.err
	}
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.Employee
	for _, list := range d.byDept {
		for _, e := range list {
			if wanted[e.EmployeeID] {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func TestLoadScopeReadsDirectoryFreshEachCall(t *testing.T) {
	dir := newStubDirectory(testDirectory)
	incharge := models.Requester{EmployeeID: "E900", Role: models.RoleIncharge, Department: models.DeptCSE}

	_, err := loadScope(context.Background(), dir, incharge, "")
	require.NoError(t, err)
	dir.byDept[models.DeptCSE] = append(dir.byDept[models.DeptCSE], models.Employee{EmployeeID: "E125", Department: models.DeptCSE, Role: models.RoleFaculty, Active: true})
	scope, err := loadScope(context.Background(), dir, incharge, "")
	require.NoError(t, err)
	require.True(t, scope.Allows("E125"))
	require.Equal(t, 2, dir.deptCalls)

	_, err = loadScope(context.Background(), dir, models.Requester{EmployeeID: "E123", Role: models.RoleFaculty, Department: models.DeptCSE}, "")
	require.NoError(t, err)
	require.Equal(t, 2, dir.deptCalls)
}

func TestLoadScopeRejectsStaleSessions(t *testing.T) {
	ctx := context.Background()
	incharge := models.Requester{EmployeeID: "E900", Role: models.RoleIncharge, Department: models.DeptCSE}

	moved := newStubDirectory([]models.Employee{{EmployeeID: "E900", Department: models.DeptECE, Role: models.RoleIncharge, Active: true}})
	_, err := loadScope(ctx, moved, incharge, "")
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
	require.Zero(t, moved.deptCalls)

	demoted := newStubDirectory([]models.Employee{{EmployeeID: "E900", Department: models.DeptCSE, Role: models.RoleFaculty, Active: true}})
	_, err = loadScope(ctx, demoted, incharge, "")
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)

	inactive := newStubDirectory([]models.Employee{{EmployeeID: "E900", Department: models.DeptCSE, Role: models.RoleIncharge}})
	_, err = loadScope(ctx, inactive, incharge, "")
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, err = loadScope(ctx, newStubDirectory(nil), incharge, "")
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
