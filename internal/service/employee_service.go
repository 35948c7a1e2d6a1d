package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/faculty-records-api/internal/dto"
	"github.com/noah-isme/faculty-records-api/internal/models"
	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
)

type employeeRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByEmployeeID(ctx context.Context, employeeID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

// EmployeeService manages the employee directory. Every operation is admin only.
type EmployeeService struct {
	repo        employeeRepository
	directory   directoryReader
	validator   *validator.Validate
	audit       auditLogger
	invalidator summaryInvalidator
	logger      *zap.Logger
}

// NewEmployeeService creates an instance of EmployeeService.
func NewEmployeeService(repo employeeRepository, directory directoryReader, validate *validator.Validate, audit auditLogger, invalidator summaryInvalidator, logger *zap.Logger) *EmployeeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EmployeeService{repo: repo, directory: directory, validator: validate, audit: audit, invalidator: invalidator, logger: logger}
}

// List returns employees matching the query ordered by employee id.
func (s *EmployeeService) List(ctx context.Context, requester models.Requester, query dto.EmployeeQuery) ([]models.User, error) {
	if err := s.requireAdmin(ctx, requester); err != nil {
		return nil, err
	}
	filter, err := employeeFilter(query)
	if err != nil {
		return nil, err
	}
	users, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list employees")
	}
	return users, nil
}

// Get returns an employee by user id.
func (s *EmployeeService) Get(ctx context.Context, requester models.Requester, id string) (*models.User, error) {
	if err := s.requireAdmin(ctx, requester); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// Create registers a new employee account.
func (s *EmployeeService) Create(ctx context.Context, requester models.Requester, req dto.CreateEmployeeRequest) (*models.User, error) {
	if err := s.requireAdmin(ctx, requester); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create employee payload")
	}
	role, err := parseRole(req.Role)
	if err != nil {
		return nil, err
	}
	department, ok := models.ParseDepartment(req.Department)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown department")
	}
	employeeID := strings.TrimSpace(req.EmployeeID)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.repo.FindByEmployeeID(ctx, employeeID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "employee id already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check employee id uniqueness")
	}
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		EmployeeID:   employeeID,
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		Department:   department,
		Role:         role,
		Active:       true,
		PasswordHash: string(passwordHash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create employee")
	}

	s.record(ctx, requester, models.AuditActionEmployeeCreate, user.ID, nil, directoryPayload(user))
	s.invalidate(ctx)
	return user, nil
}

// Update changes name, department, role or active flag. Department and role moves change scopes, so cached summaries are dropped.
func (s *EmployeeService) Update(ctx context.Context, requester models.Requester, id string, req dto.UpdateEmployeeRequest) (*models.User, error) {
	if err := s.requireAdmin(ctx, requester); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update employee payload")
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	before := directoryPayload(user)

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "name must not be empty")
		}
		user.Name = name
	}
	if req.Department != nil {
		department, ok := models.ParseDepartment(*req.Department)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown department")
		}
		user.Department = department
	}
	if req.Role != nil {
		role, err := parseRole(*req.Role)
		if err != nil {
			return nil, err
		}
		user.Role = role
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update employee")
	}

	s.record(ctx, requester, models.AuditActionEmployeeUpdate, user.ID, before, directoryPayload(user))
	s.invalidate(ctx)
	return user, nil
}

func (s *EmployeeService) load(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
	}
	return user, nil
}

func (s *EmployeeService) record(ctx context.Context, requester models.Requester, action, resourceID string, before, after map[string]interface{}) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     optionalString(requester.UserID),
		Action:     action,
		Resource:   "employees",
		ResourceID: optionalString(resourceID),
		NewValues:  mustJSON(after),
	}
	if before != nil {
		entry.OldValues = mustJSON(before)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record employee audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *EmployeeService) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.InvalidateSummaries(ctx)
	}
}

func (s *EmployeeService) requireAdmin(ctx context.Context, requester models.Requester) error {
	if requester.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only administrators can manage employees")
	}
	return verifyRequester(ctx, s.directory, requester)
}

func parseRole(raw string) (models.UserRole, error) {
	role := models.UserRole(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "role must be faculty, incharge or admin")
	}
	return role, nil
}

func employeeFilter(query dto.EmployeeQuery) (models.UserFilter, error) {
	filter := models.UserFilter{Search: query.Search}
	if raw := strings.TrimSpace(query.Role); raw != "" {
		role, err := parseRole(raw)
		if err != nil {
			return filter, err
		}
		filter.Role = &role
	}
	if raw := strings.TrimSpace(query.Department); raw != "" {
		department, ok := models.ParseDepartment(raw)
		if !ok {
			return filter, appErrors.Clone(appErrors.ErrValidation, "unknown department")
		}
		filter.Department = &department
	}
	if raw := strings.TrimSpace(query.Active); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "active must be true or false")
		}
		filter.Active = &active
	}
	return filter, nil
}

func directoryPayload(user *models.User) map[string]interface{} {
	return map[string]interface{}{
		"employeeId": user.EmployeeID,
		"name":       user.Name,
		"department": user.Department,
		"role":       user.Role,
		"active":     user.Active,
	}
}
