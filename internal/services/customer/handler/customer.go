package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"rentflow-system/internal/apperr"
	"rentflow-system/internal/database/models"
	"rentflow-system/internal/utils"
)

type CustomerInput struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

func (in CustomerInput) validate() error {
	v := &apperr.ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		v.Add("name", "is required")
	}
	if in.Email != "" && !strings.Contains(in.Email, "@") {
		v.Add("email", "is not a valid address")
	}
	return v.OrNil()
}

type ListCustomersParams struct {
	Search string `form:"search"`
	utils.PageRequest
}

type CustomerHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewCustomerHandler(db *gorm.DB, redisClient *redis.Client) *CustomerHandler {
	return &CustomerHandler{
		db:    db,
		redis: redisClient,
	}
}

func (s *CustomerHandler) CreateCustomer(ctx context.Context, in CustomerInput) (*models.Customer, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	customer := models.Customer{
		Name:    strings.TrimSpace(in.Name),
		Phone:   strings.TrimSpace(in.Phone),
		Email:   strings.TrimSpace(in.Email),
		Address: in.Address,
		Notes:   in.Notes,
	}
	if err := s.db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return &customer, nil
}

func (s *CustomerHandler) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	var customer models.Customer
	if err := s.db.WithContext(ctx).First(&customer, id).Error; err != nil {
		return nil, apperr.FromDB(err, "customer", id)
	}
	return &customer, nil
}

func (s *CustomerHandler) UpdateCustomer(ctx context.Context, id int64, in CustomerInput) (*models.Customer, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	customer, err := s.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"name":    strings.TrimSpace(in.Name),
		"phone":   strings.TrimSpace(in.Phone),
		"email":   strings.TrimSpace(in.Email),
		"address": in.Address,
		"notes":   in.Notes,
	}
	if err := s.db.WithContext(ctx).Model(customer).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update customer: %w", err)
	}
	return s.GetCustomer(ctx, id)
}

// DeleteCustomer refuses customers that still have invoices.
func (s *CustomerHandler) DeleteCustomer(ctx context.Context, id int64) error {
	if _, err := s.GetCustomer(ctx, id); err != nil {
		return err
	}

	var invoices int64
	if err := s.db.WithContext(ctx).Model(&models.Invoice{}).Where("customer_id = ?", id).Count(&invoices).Error; err != nil {
		return fmt.Errorf("failed to count invoices: %w", err)
	}
	if invoices > 0 {
		return apperr.Conflict("customer %d has %d invoice(s)", id, invoices)
	}

	return s.db.WithContext(ctx).Delete(&models.Customer{}, id).Error
}

func (s *CustomerHandler) ListCustomers(ctx context.Context, params ListCustomersParams) ([]models.Customer, utils.PageMeta, error) {
	var customers []models.Customer
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Customer{})
	if params.Search != "" {
		term := utils.LikePattern(params.Search)
		query = query.Where("LOWER(name) LIKE ? OR phone LIKE ?", term, term)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, utils.PageMeta{}, fmt.Errorf("failed to count customers: %w", err)
	}

	page := params.PageRequest.Normalize()
	if err := query.Order("name asc").Offset(page.Offset()).Limit(page.PageSize).Find(&customers).Error; err != nil {
		return nil, utils.PageMeta{}, fmt.Errorf("failed to list customers: %w", err)
	}

	return customers, utils.NewPageMeta(page, total), nil
}

// FindOrCreate looks a customer up by phone, then by case-insensitive name,
// and creates one when neither matches.
func (s *CustomerHandler) FindOrCreate(ctx context.Context, name, phone string) (*models.Customer, bool, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)

	var customer models.Customer
	db := s.db.WithContext(ctx)

	if phone != "" {
		err := db.Where("phone = ?", phone).Order("id asc").First(&customer).Error
		if err == nil {
			return &customer, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("failed to look up customer by phone: %w", err)
		}
	}

	if name != "" {
		err := db.Where("LOWER(name) = ?", strings.ToLower(name)).Order("id asc").First(&customer).Error
		if err == nil {
			return &customer, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("failed to look up customer by name: %w", err)
		}
	}

	if name == "" {
		name = phone
	}
	created, err := s.CreateCustomer(ctx, CustomerInput{Name: name, Phone: phone})
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}
