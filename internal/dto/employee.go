package dto

// CreateEmployeeRequest registers a new employee account.
type CreateEmployeeRequest struct {
	EmployeeID string `json:"employeeId" validate:"required,max=32"`
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"required,max=200"`
	Department string `json:"department" validate:"required"`
	Role       string `json:"role" validate:"required"`
	Password   string `json:"password" validate:"required,min=8"`
}

// UpdateEmployeeRequest changes directory attributes. Omitted fields are left unchanged.
type UpdateEmployeeRequest struct {
	Name       *string `json:"name" validate:"omitempty,max=200"`
	Department *string `json:"department"`
	Role       *string `json:"role"`
	Active     *bool   `json:"active"`
}

// EmployeeQuery mirrors the supported directory filters.
type EmployeeQuery struct {
	Role       string `form:"role"`
	Department string `form:"department"`
	Active     string `form:"active"`
	Search     string `form:"search"`
}
