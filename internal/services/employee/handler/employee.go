package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"rentflow-system/internal/apperr"
	"rentflow-system/internal/database/models"
	"rentflow-system/internal/utils"
)

type EmployeeInput struct {
	Name     string `json:"name" binding:"required"`
	Position string `json:"position"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	IsActive *bool  `json:"is_active"`
}

func (in EmployeeInput) validate() error {
	v := &apperr.ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		v.Add("name", "is required")
	}
	if in.Email != "" && !strings.Contains(in.Email, "@") {
		v.Add("email", "is not a valid address")
	}
	return v.OrNil()
}

type ListEmployeesParams struct {
	Search   string `form:"search"`
	IsActive *bool  `form:"is_active"`
	utils.PageRequest
}

type EmployeeHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewEmployeeHandler(db *gorm.DB, redisClient *redis.Client) *EmployeeHandler {
	return &EmployeeHandler{
		db:    db,
		redis: redisClient,
	}
}

func (s *EmployeeHandler) CreateEmployee(ctx context.Context, in EmployeeInput) (*models.Employee, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	employee := models.Employee{
		Name:     strings.TrimSpace(in.Name),
		Position: in.Position,
		Phone:    in.Phone,
		Email:    in.Email,
		IsActive: active,
	}
	if err := s.db.WithContext(ctx).Create(&employee).Error; err != nil {
		return nil, fmt.Errorf("failed to create employee: %w", err)
	}
	return &employee, nil
}

func (s *EmployeeHandler) GetEmployee(ctx context.Context, id int64) (*models.Employee, error) {
	var employee models.Employee
	if err := s.db.WithContext(ctx).First(&employee, id).Error; err != nil {
		return nil, apperr.FromDB(err, "employee", id)
	}
	return &employee, nil
}

func (s *EmployeeHandler) UpdateEmployee(ctx context.Context, id int64, in EmployeeInput) (*models.Employee, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	employee, err := s.GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"name":     strings.TrimSpace(in.Name),
		"position": in.Position,
		"phone":    in.Phone,
		"email":    in.Email,
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if err := s.db.WithContext(ctx).Model(employee).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update employee: %w", err)
	}
	return s.GetEmployee(ctx, id)
}

// DeleteEmployee refuses employees with commission history; deactivate them instead.
func (s *EmployeeHandler) DeleteEmployee(ctx context.Context, id int64) error {
	if _, err := s.GetEmployee(ctx, id); err != nil {
		return err
	}

	var assignments int64
	if err := s.db.WithContext(ctx).Model(&models.EmployeeAssignment{}).Where("employee_id = ?", id).Count(&assignments).Error; err != nil {
		return fmt.Errorf("failed to count assignments: %w", err)
	}
	if assignments > 0 {
		return apperr.Conflict("employee %d has %d commission assignment(s)", id, assignments)
	}

	return s.db.WithContext(ctx).Delete(&models.Employee{}, id).Error
}

func (s *EmployeeHandler) ListEmployees(ctx context.Context, params ListEmployeesParams) ([]models.Employee, utils.PageMeta, error) {
	var employees []models.Employee
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Employee{})
	if params.IsActive != nil {
		query = query.Where("is_active = ?", *params.IsActive)
	}
	if params.Search != "" {
		query = query.Where("LOWER(name) LIKE ?", utils.LikePattern(params.Search))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, utils.PageMeta{}, fmt.Errorf("failed to count employees: %w", err)
	}

	page := params.PageRequest.Normalize()
	if err := query.Order("name asc").Offset(page.Offset()).Limit(page.PageSize).Find(&employees).Error; err != nil {
		return nil, utils.PageMeta{}, fmt.Errorf("failed to list employees: %w", err)
	}

	return employees, utils.NewPageMeta(page, total), nil
}
