package models

import (
	"strings"
	"time"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleFaculty  UserRole = "faculty"
	RoleIncharge UserRole = "incharge"
	RoleAdmin    UserRole = "admin"
)

// Valid reports whether the role is one of the supported roles. Legacy names such as "hod" are not.
func (r UserRole) Valid() bool {
	switch r {
	case RoleFaculty, RoleIncharge, RoleAdmin:
		return true
	}
	return false
}

// IsReviewer reports whether the role may accept or reject records.
func (r UserRole) IsReviewer() bool {
	return r == RoleIncharge || r == RoleAdmin
}

// Department is one of the fixed academic departments.
type Department string

const (
	DeptCSE   Department = "CSE"
	DeptECE   Department = "ECE"
	DeptEEE   Department = "EEE"
	DeptMECH  Department = "MECH"
	DeptCIVIL Department = "CIVIL"
	DeptIT    Department = "IT"
	DeptAIDS  Department = "AIDS"
	DeptMBA   Department = "MBA"
	DeptSH    Department = "SH"
)

// Departments lists every supported department in display order.
var Departments = []Department{DeptCSE, DeptECE, DeptEEE, DeptMECH, DeptCIVIL, DeptIT, DeptAIDS, DeptMBA, DeptSH}

// ParseDepartment normalises a department code; ok is false for unknown codes.
func ParseDepartment(raw string) (Department, bool) {
	code := Department(strings.ToUpper(strings.TrimSpace(raw)))
	for _, d := range Departments {
		if d == code {
			return d, true
		}
	}
	return "", false
}

// User represents an employee account stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	EmployeeID   string     `db:"employee_id" json:"employeeId"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Name         string     `db:"name" json:"name"`
	Department   Department `db:"department" json:"department"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

// Employee is the directory projection used for scoping and owner annotation.
type Employee struct {
	EmployeeID string     `db:"employee_id" json:"employeeId"`
	Name       string     `db:"name" json:"name"`
	Department Department `db:"department" json:"department"`
	Role       UserRole   `db:"role" json:"role"`
	Active     bool       `db:"active" json:"active"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role       *UserRole
	Department *Department
	Active     *bool
	Search     string
}
