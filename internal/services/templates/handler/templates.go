package handler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rentflow-system/internal/apperr"
	"rentflow-system/internal/database/models"
	"rentflow-system/internal/utils"
)

var colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

type TemplateConfigInput struct {
	CompanyName    string       `json:"company_name"`
	CompanyAddress string       `json:"company_address"`
	CompanyPhone   string       `json:"company_phone"`
	CompanyEmail   string       `json:"company_email"`
	LogoURL        string       `json:"logo_url"`
	TaxRate        utils.Number `json:"tax_rate"`
	Currency       string       `json:"currency"`
	PrimaryColor   string       `json:"primary_color"`
	InvoicePrefix  string       `json:"invoice_prefix"`
	FooterNote     string       `json:"footer_note"`
}

type TemplateInput struct {
	Name      string              `json:"name" binding:"required"`
	IsDefault bool                `json:"is_default"`
	Config    TemplateConfigInput `json:"config"`
}

func (in TemplateInput) toConfig() (models.TemplateConfig, error) {
	v := &apperr.ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		v.Add("name", "is required")
	}

	c := in.Config
	switch {
	case c.TaxRate.Provided() && !c.TaxRate.IsSet():
		v.Add("config.tax_rate", "must be a number")
	case c.TaxRate.Decimal().IsNegative() || c.TaxRate.Decimal().GreaterThan(decimal.NewFromInt(100)):
		v.Add("config.tax_rate", "must be between 0 and 100")
	}

	code := strings.ToUpper(strings.TrimSpace(c.Currency))
	if code != "" {
		if _, err := currency.ParseISO(code); err != nil {
			v.Add("config.currency", "must be an ISO 4217 code")
		}
	}
	color := strings.TrimSpace(c.PrimaryColor)
	if color != "" && !colorPattern.MatchString(color) {
		v.Add("config.primary_color", "must be a hex color")
	}
	prefix := strings.TrimSpace(c.InvoicePrefix)
	if strings.ContainsAny(prefix, " /\\") {
		v.Add("config.invoice_prefix", "must not contain spaces or slashes")
	}
	if err := v.OrNil(); err != nil {
		return models.TemplateConfig{}, err
	}

	return models.TemplateConfig{
		CompanyName:    strings.TrimSpace(c.CompanyName),
		CompanyAddress: c.CompanyAddress,
		CompanyPhone:   c.CompanyPhone,
		CompanyEmail:   c.CompanyEmail,
		LogoURL:        c.LogoURL,
		TaxRate:        c.TaxRate.Decimal(),
		Currency:       code,
		PrimaryColor:   color,
		InvoicePrefix:  prefix,
		FooterNote:     c.FooterNote,
	}.WithDefaults(), nil
}

type TemplateHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewTemplateHandler(db *gorm.DB, redisClient *redis.Client) *TemplateHandler {
	return &TemplateHandler{
		db:    db,
		redis: redisClient,
	}
}

func (s *TemplateHandler) CreateTemplate(ctx context.Context, in TemplateInput) (*models.InvoiceTemplate, error) {
	cfg, err := in.toConfig()
	if err != nil {
		return nil, err
	}

	tpl := models.InvoiceTemplate{
		Name:   strings.TrimSpace(in.Name),
		Config: datatypes.NewJSONType(cfg),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tpl).Error; err != nil {
			return fmt.Errorf("failed to create template: %w", err)
		}
		if in.IsDefault {
			return setDefaultTx(tx, tpl.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetTemplate(ctx, tpl.ID)
}

func (s *TemplateHandler) GetTemplate(ctx context.Context, id int64) (*models.InvoiceTemplate, error) {
	var tpl models.InvoiceTemplate
	if err := s.db.WithContext(ctx).First(&tpl, id).Error; err != nil {
		return nil, apperr.FromDB(err, "template", id)
	}
	return &tpl, nil
}

func (s *TemplateHandler) UpdateTemplate(ctx context.Context, id int64, in TemplateInput) (*models.InvoiceTemplate, error) {
	cfg, err := in.toConfig()
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tpl models.InvoiceTemplate
		if err := tx.First(&tpl, id).Error; err != nil {
			return apperr.FromDB(err, "template", id)
		}
		tpl.Name = strings.TrimSpace(in.Name)
		tpl.Config = datatypes.NewJSONType(cfg)
		if err := tx.Select("name", "config", "updated_at").Save(&tpl).Error; err != nil {
			return fmt.Errorf("failed to update template: %w", err)
		}
		if in.IsDefault && !tpl.IsDefault {
			return setDefaultTx(tx, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetTemplate(ctx, id)
}

// DeleteTemplate detaches invoices that referenced the template; they render with the default afterwards.
func (s *TemplateHandler) DeleteTemplate(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tpl models.InvoiceTemplate
		if err := tx.First(&tpl, id).Error; err != nil {
			return apperr.FromDB(err, "template", id)
		}
		if err := tx.Model(&models.Invoice{}).Where("template_id = ?", id).Update("template_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach invoices: %w", err)
		}
		return tx.Delete(&models.InvoiceTemplate{}, id).Error
	})
}

func (s *TemplateHandler) ListTemplates(ctx context.Context) ([]models.InvoiceTemplate, error) {
	var templates []models.InvoiceTemplate
	if err := s.db.WithContext(ctx).Order("is_default desc, name asc").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// SetDefault makes id the only default template.
func (s *TemplateHandler) SetDefault(ctx context.Context, id int64) (*models.InvoiceTemplate, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return setDefaultTx(tx, id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetTemplate(ctx, id)
}

// setDefaultTx locks every template row in id order, so concurrent swaps queue on the
// same rows, then clears the old default before marking id. The partial unique index on
// is_default rejects a second default that slips past.
func setDefaultTx(tx *gorm.DB, id int64) error {
	var ids []int64
	err := tx.Model(&models.InvoiceTemplate{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Order("id asc").
		Pluck("id", &ids).Error
	if err != nil {
		return fmt.Errorf("failed to lock templates: %w", err)
	}
	found := false
	for _, tid := range ids {
		if tid == id {
			found = true
			break
		}
	}
	if !found {
		return apperr.NotFound("template", id)
	}

	err = tx.Model(&models.InvoiceTemplate{}).
		Where("is_default = ? AND id <> ?", true, id).
		Update("is_default", false).Error
	if err != nil {
		return fmt.Errorf("failed to clear default template: %w", err)
	}
	err = tx.Model(&models.InvoiceTemplate{}).
		Where("id = ? AND is_default = ?", id, false).
		Update("is_default", true).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("another template became the default concurrently")
	}
	if err != nil {
		return fmt.Errorf("failed to set default template: %w", err)
	}
	return nil
}

// DefaultTemplate returns the default template or a not-found error when none is set.
func (s *TemplateHandler) DefaultTemplate(ctx context.Context) (*models.InvoiceTemplate, error) {
	var tpl models.InvoiceTemplate
	if err := s.db.WithContext(ctx).Where("is_default = ?", true).Order("id asc").First(&tpl).Error; err != nil {
		return nil, apperr.FromDB(err, "template", "default")
	}
	return &tpl, nil
}

// ResolveConfig picks the explicit template, else the default one, else built-in defaults.
// An explicit id that does not exist is an error.
func (s *TemplateHandler) ResolveConfig(ctx context.Context, templateID *int64) (models.TemplateConfig, *models.InvoiceTemplate, error) {
	if templateID != nil {
		tpl, err := s.GetTemplate(ctx, *templateID)
		if err != nil {
			return models.TemplateConfig{}, nil, err
		}
		return tpl.Config.Data().WithDefaults(), tpl, nil
	}

	tpl, err := s.DefaultTemplate(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return models.TemplateConfig{}.WithDefaults(), nil, nil
		}
		return models.TemplateConfig{}, nil, err
	}
	return tpl.Config.Data().WithDefaults(), tpl, nil
}
