package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Invoice struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	InvoiceNumber     string          `gorm:"size:64;uniqueIndex;not null" json:"invoice_number"`
	CustomerID        int64           `gorm:"index;not null" json:"customer_id"`
	TemplateID        *int64          `gorm:"index" json:"template_id"`
	RentalStartDate   time.Time       `gorm:"not null" json:"rental_start_date"`
	RentalDays        int             `gorm:"not null" json:"rental_days"`
	TransportAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"transport_amount"`
	TransportDiscount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"transport_discount"`
	TaxAmount         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax_amount"`
	EquipmentSubtotal decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"equipment_subtotal"`
	ServicesTotal     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"services_total"`
	Subtotal          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	TotalDue          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_due"`
	Status            string          `gorm:"size:20;index;not null" json:"status"`
	Source            string          `gorm:"size:20;not null" json:"source"`
	Notes             string          `gorm:"type:text" json:"notes"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	Customer    *Customer            `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Template    *InvoiceTemplate     `gorm:"foreignKey:TemplateID" json:"-"`
	Items       []InvoiceItem        `gorm:"foreignKey:InvoiceID" json:"items"`
	Services    []InvoiceService     `gorm:"foreignKey:InvoiceID" json:"services"`
	Assignments []EmployeeAssignment `gorm:"foreignKey:InvoiceID" json:"assignments,omitempty"`
}

const (
	MatchStatusManual  = "manual"
	MatchStatusMatched = "matched"
	MatchStatusNoMatch = "no_match"
)

// InvoiceItem keeps a nil EquipmentID for scanned lines awaiting reconciliation.
type InvoiceItem struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	InvoiceID   int64           `gorm:"index;not null" json:"invoice_id"`
	EquipmentID *int64          `gorm:"index" json:"equipment_id"`
	Description string          `gorm:"size:255;not null" json:"description"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	Rate        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"rate"`
	RentalDays  int             `gorm:"not null" json:"rental_days"`
	Discount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"discount"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"line_total"`
	ManualRate  bool            `gorm:"not null" json:"manual_rate"`
	MatchStatus string          `gorm:"size:20;not null" json:"match_status"`
	Position    int             `gorm:"not null" json:"position"`
}

type InvoiceService struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	InvoiceID int64           `gorm:"index;not null" json:"invoice_id"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Discount  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"discount"`
	Total     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Position  int             `gorm:"not null" json:"position"`

	Assignments []EmployeeAssignment `gorm:"foreignKey:ServiceID" json:"assignments,omitempty"`
}

// EmployeeAssignment ties an employee to exactly one of an invoice or a service.
// Rows with PaidAt set are settled history.
type EmployeeAssignment struct {
	ID                   int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	EmployeeID           int64           `gorm:"index;not null" json:"employee_id"`
	InvoiceID            *int64          `gorm:"index" json:"invoice_id"`
	ServiceID            *int64          `gorm:"index" json:"service_id"`
	Role                 string          `gorm:"size:20;not null" json:"role"`
	CommissionPercentage decimal.Decimal `gorm:"type:decimal(9,4);not null" json:"commission_percentage"`
	CommissionAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"commission_amount"`
	PaidAt               *time.Time      `gorm:"index" json:"paid_at"`
	PaymentBatchID       *string         `gorm:"size:64;index" json:"payment_batch_id"`
	Notes                *string         `gorm:"type:text" json:"notes"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`

	Employee *Employee `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
}

func (a EmployeeAssignment) IsPaid() bool {
	return a.PaidAt != nil
}

// TemplateConfig is the branding and policy block of an invoice template.
type TemplateConfig struct {
	CompanyName    string          `json:"company_name"`
	CompanyAddress string          `json:"company_address"`
	CompanyPhone   string          `json:"company_phone"`
	CompanyEmail   string          `json:"company_email"`
	LogoURL        string          `json:"logo_url"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	Currency       string          `json:"currency"`
	PrimaryColor   string          `json:"primary_color"`
	InvoicePrefix  string          `json:"invoice_prefix"`
	FooterNote     string          `json:"footer_note"`
}

const (
	DefaultCurrency     = "USD"
	DefaultPrimaryColor = "#1f2937"
	DefaultPrefix       = "INV"
)

// WithDefaults fills the optional fields left empty.
func (c TemplateConfig) WithDefaults() TemplateConfig {
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	if c.PrimaryColor == "" {
		c.PrimaryColor = DefaultPrimaryColor
	}
	if c.InvoicePrefix == "" {
		c.InvoicePrefix = DefaultPrefix
	}
	return c
}

type InvoiceTemplate struct {
	ID        int64                              `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string                             `gorm:"size:255;not null" json:"name"`
	IsDefault bool                               `gorm:"not null;index" json:"is_default"`
	Config    datatypes.JSONType[TemplateConfig] `json:"config"`
	CreatedAt time.Time                          `json:"created_at"`
	UpdatedAt time.Time                          `json:"updated_at"`
}
