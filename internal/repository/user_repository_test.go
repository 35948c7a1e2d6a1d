package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/faculty-records-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "employee_id", "email", "password_hash", "name", "department", "role", "active", "last_login", "created_at", "updated_at"})
}

func TestFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + userColumns + " FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("user@example.com").
		WillReturnRows(userRows().AddRow("1", "E123", "user@example.com", "hash", "Asha", "CSE", string(models.RoleFaculty), true, now, now, now))

	user, err := repo.FindByEmail(context.Background(), " User@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "E123", user.EmployeeID)
	assert.Equal(t, models.DeptCSE, user.Department)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmployeeIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE employee_id = $1")).
		WithArgs("E404").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmployeeID(context.Background(), "E404")
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindEmployeesSingleBatchQuery(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT employee_id, name, department, role, active FROM users WHERE employee_id IN ($1,$2,$3)")).
		WithArgs("E1", "E2", "E3").
		WillReturnRows(sqlmock.NewRows([]string{"employee_id", "name", "department", "role", "active"}).
			AddRow("E1", "One", "CSE", "faculty", true).
			AddRow("E3", "Three", "ECE", "faculty", false))

	employees, err := repo.FindEmployees(context.Background(), []string{"E1", "E2", "E3"})
	require.NoError(t, err)
	require.Len(t, employees, 2)
	assert.Equal(t, models.DeptECE, employees[1].Department)
	assert.True(t, employees[0].Active)
	assert.False(t, employees[1].Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindEmployeesEmptyInput(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	employees, err := repo.FindEmployees(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, employees)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEmployeesByDepartment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT employee_id, name, department, role, active FROM users WHERE department = $1")).
		WithArgs(models.DeptCSE).
		WillReturnRows(sqlmock.NewRows([]string{"employee_id", "name", "department", "role", "active"}).
			AddRow("E123", "Asha", "CSE", "faculty", true).
			AddRow("E900", "Ravi", "CSE", "incharge", true))

	employees, err := repo.ListEmployeesByDepartment(context.Background(), models.DeptCSE)
	require.NoError(t, err)
	require.Len(t, employees, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRefreshToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateRefreshToken(context.Background(), &models.RefreshToken{ID: "1", UserID: "u1", Token: "token", ExpiresAt: time.Now(), CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsersWithFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	role := models.RoleFaculty
	dept := models.DeptCSE
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+userColumns+" FROM users WHERE role = $1 AND department = $2 AND (LOWER(name) LIKE $3 OR LOWER(email) LIKE $4 OR LOWER(employee_id) LIKE $5) ORDER BY employee_id")).
		WithArgs(role, dept, "%asha%", "%asha%", "%asha%").
		WillReturnRows(userRows().AddRow("1", "E123", "a@example.com", "hash", "Asha", "CSE", "faculty", true, nil, now, now))

	users, err := repo.List(context.Background(), models.UserFilter{Role: &role, Department: &dept, Search: "Asha"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUserMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET name = ")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.User{ID: "missing", Name: "X", Role: models.RoleFaculty, Department: models.DeptCSE})
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
