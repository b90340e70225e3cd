package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:255;not null;index" json:"name"`
	Phone     string    `gorm:"size:50;index" json:"phone"`
	Email     string    `gorm:"size:255" json:"email"`
	Address   string    `gorm:"type:text" json:"address"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Equipment is the rental catalog. DailyRate is the authoritative line rate.
type Equipment struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string          `gorm:"size:255;not null;index" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	DailyRate   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"daily_rate"`
	WeeklyRate  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"weekly_rate"`
	MonthlyRate decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"monthly_rate"`
	IsActive    bool            `gorm:"not null;index" json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Equipment) TableName() string {
	return "equipment"
}

type Employee struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:255;not null;index" json:"name"`
	Position  string    `gorm:"size:100" json:"position"`
	Phone     string    `gorm:"size:50" json:"phone"`
	Email     string    `gorm:"size:255" json:"email"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
