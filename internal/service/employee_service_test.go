package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/faculty-records-api/internal/dto"
	"github.com/noah-isme/faculty-records-api/internal/models"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
)

type mockEmployeeRepo struct {
	users      map[string]*models.User
	lastFilter models.UserFilter
	listErr    error
}

func newMockEmployeeRepo(users ...models.User) *mockEmployeeRepo {
	repo := &mockEmployeeRepo{users: make(map[string]*models.User)}
	for i := range users {
		u := users[i]
		repo.users[u.ID] = &u
	}
	return repo
}

func (m *mockEmployeeRepo) List(_ context.Context, filter models.UserFilter) ([]models.User, error) {
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	var users []models.User
	for _, u := range m.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		users = append(users, *u)
	}
	return users, nil
}

func (m *mockEmployeeRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEmployeeRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEmployeeRepo) FindByEmployeeID(_ context.Context, employeeID string) (*models.User, error) {
	for _, u := range m.users {
		if u.EmployeeID == employeeID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEmployeeRepo) Create(_ context.Context, user *models.User) error {
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *mockEmployeeRepo) Update(_ context.Context, user *models.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func newEmployeeFixture(users ...models.User) (*EmployeeService, *mockEmployeeRepo, *recordingAudit, *countingInvalidator) {
	repo := newMockEmployeeRepo(users...)
	audit := &recordingAudit{}
	inv := &countingInvalidator{}
	return NewEmployeeService(repo, newStubDirectory(testDirectory), validator.New(), audit, inv, zap.NewNop()), repo, audit, inv
}

func validCreateEmployee() dto.CreateEmployeeRequest {
	return dto.CreateEmployeeRequest{
		EmployeeID: "E321",
		Email:      "New.Faculty@college.test",
		Name:       "New Faculty",
		Department: "cse",
		Role:       "Faculty",
		Password:   "s3cret-pass",
	}
}

func TestEmployeeCreate(t *testing.T) {
	svc, repo, audit, inv := newEmployeeFixture()

	user, err := svc.Create(context.Background(), adminAnyDept, validCreateEmployee())
	require.NoError(t, err)
	assert.Equal(t, "E321", user.EmployeeID)
	assert.Equal(t, "new.faculty@college.test", user.Email)
	assert.Equal(t, models.DeptCSE, user.Department)
	assert.Equal(t, models.RoleFaculty, user.Role)
	assert.True(t, user.Active)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users[user.ID].PasswordHash), []byte("s3cret-pass")))

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionEmployeeCreate, audit.logs[0].Action)
	assert.Nil(t, audit.logs[0].OldValues)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(audit.logs[0].NewValues, &payload))
	assert.Equal(t, "E321", payload["employeeId"])
	assert.Equal(t, 1, inv.calls)
}

func TestEmployeeCreateRejectsLegacyRole(t *testing.T) {
	svc, repo, _, _ := newEmployeeFixture()
	req := validCreateEmployee()
	req.Role = "hod"

	_, err := svc.Create(context.Background(), adminAnyDept, req)
	requireCode(t, err, appErrors.ErrValidation)
	assert.Empty(t, repo.users)
}

func TestEmployeeCreateRejectsUnknownDepartment(t *testing.T) {
	svc, _, _, _ := newEmployeeFixture()
	req := validCreateEmployee()
	req.Department = "PHYSICS"

	_, err := svc.Create(context.Background(), adminAnyDept, req)
	requireCode(t, err, appErrors.ErrValidation)
}

func TestEmployeeCreateDuplicates(t *testing.T) {
	existing := models.User{ID: "u1", EmployeeID: "E321", Email: "taken@college.test", Role: models.RoleFaculty, Department: models.DeptCSE}
	svc, _, _, _ := newEmployeeFixture(existing)

	_, err := svc.Create(context.Background(), adminAnyDept, validCreateEmployee())
	requireCode(t, err, appErrors.ErrConflict)

	req := validCreateEmployee()
	req.EmployeeID = "E999"
	req.Email = "taken@college.test"
	_, err = svc.Create(context.Background(), adminAnyDept, req)
	requireCode(t, err, appErrors.ErrConflict)
}

func TestEmployeeOperationsRequireAdmin(t *testing.T) {
	svc, _, _, _ := newEmployeeFixture(models.User{ID: "u1", EmployeeID: "E1"})
	ctx := context.Background()

	_, err := svc.List(ctx, inchargeCSE, dto.EmployeeQuery{})
	requireCode(t, err, appErrors.ErrForbidden)
	_, err = svc.Get(ctx, facultyE123, "u1")
	requireCode(t, err, appErrors.ErrForbidden)
	_, err = svc.Create(ctx, inchargeCSE, validCreateEmployee())
	requireCode(t, err, appErrors.ErrForbidden)
	_, err = svc.Update(ctx, facultyE123, "u1", dto.UpdateEmployeeRequest{})
	requireCode(t, err, appErrors.ErrForbidden)
}

func TestEmployeeUpdateMovesDepartment(t *testing.T) {
	existing := models.User{ID: "u1", EmployeeID: "E123", Name: "Asha", Department: models.DeptCSE, Role: models.RoleFaculty, Active: true}
	svc, repo, audit, inv := newEmployeeFixture(existing)
	dept := "ece"
	role := "incharge"

	user, err := svc.Update(context.Background(), adminAnyDept, "u1", dto.UpdateEmployeeRequest{Department: &dept, Role: &role})
	require.NoError(t, err)
	assert.Equal(t, models.DeptECE, user.Department)
	assert.Equal(t, models.RoleIncharge, user.Role)
	assert.Equal(t, "Asha", repo.users["u1"].Name)
	assert.Equal(t, 1, inv.calls)

	require.Len(t, audit.logs, 1)
	var before map[string]interface{}
	require.NoError(t, json.Unmarshal(audit.logs[0].OldValues, &before))
	assert.Equal(t, "CSE", before["department"])
}

func TestEmployeeUpdateValidation(t *testing.T) {
	existing := models.User{ID: "u1", EmployeeID: "E123", Name: "Asha", Department: models.DeptCSE, Role: models.RoleFaculty}
	svc, repo, _, inv := newEmployeeFixture(existing)
	ctx := context.Background()
	blank := "  "
	hod := "hod"

	_, err := svc.Update(ctx, adminAnyDept, "u1", dto.UpdateEmployeeRequest{Name: &blank})
	requireCode(t, err, appErrors.ErrValidation)
	_, err = svc.Update(ctx, adminAnyDept, "u1", dto.UpdateEmployeeRequest{Role: &hod})
	requireCode(t, err, appErrors.ErrValidation)
	_, err = svc.Update(ctx, adminAnyDept, "missing", dto.UpdateEmployeeRequest{})
	requireCode(t, err, appErrors.ErrNotFound)

	assert.Equal(t, models.RoleFaculty, repo.users["u1"].Role)
	assert.Zero(t, inv.calls)
}

func TestEmployeeListFilters(t *testing.T) {
	svc, repo, _, _ := newEmployeeFixture(
		models.User{ID: "u1", EmployeeID: "E1", Role: models.RoleFaculty, Department: models.DeptCSE},
		models.User{ID: "u2", EmployeeID: "E2", Role: models.RoleIncharge, Department: models.DeptCSE},
	)

	users, err := svc.List(context.Background(), adminAnyDept, dto.EmployeeQuery{Role: "incharge", Department: "cse", Active: "true", Search: "e2"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "E2", users[0].EmployeeID)
	require.NotNil(t, repo.lastFilter.Department)
	assert.Equal(t, models.DeptCSE, *repo.lastFilter.Department)
	require.NotNil(t, repo.lastFilter.Active)
	assert.True(t, *repo.lastFilter.Active)
	assert.Equal(t, "e2", repo.lastFilter.Search)

	_, err = svc.List(context.Background(), adminAnyDept, dto.EmployeeQuery{Active: "sometimes"})
	requireCode(t, err, appErrors.ErrValidation)
}

func TestEmployeeOperationsRejectDemotedAdmin(t *testing.T) {
	directory := newStubDirectory(testDirectory)
	directory.put(models.Employee{EmployeeID: "A1", Name: "Admin", Department: models.DeptSH, Role: models.RoleFaculty, Active: true})
	repo := newMockEmployeeRepo()
	svc := NewEmployeeService(repo, directory, validator.New(), &recordingAudit{}, &countingInvalidator{}, zap.NewNop())

	_, err := svc.Create(context.Background(), adminAnyDept, validCreateEmployee())
	requireCode(t, err, appErrors.ErrUnauthorized)
	assert.Empty(t, repo.users)

	_, err = svc.List(context.Background(), adminAnyDept, dto.EmployeeQuery{})
	requireCode(t, err, appErrors.ErrUnauthorized)
}
