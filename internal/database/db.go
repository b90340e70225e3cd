package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"rentflow-system/internal/database/models"
)

func NewConnection(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DSN is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	log.Info().Msg("Database connected")
	return db, nil
}

// Migrate creates or updates every table the application uses.
func Migrate(db *gorm.DB) error {
	tables := []interface{}{
		&models.Customer{},
		&models.Equipment{},
		&models.Employee{},
		&models.InvoiceTemplate{},
		&models.Invoice{},
		&models.InvoiceItem{},
		&models.InvoiceService{},
		&models.EmployeeAssignment{},
	}
	for _, t := range tables {
		if err := db.AutoMigrate(t); err != nil {
			return fmt.Errorf("migrate %T: %w", t, err)
		}
	}
	// at most one default template
	err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_invoice_templates_single_default ON invoice_templates (is_default) WHERE is_default").Error
	if err != nil {
		return fmt.Errorf("migrate default template index: %w", err)
	}
	return nil
}

// Ping reports whether the database answers.
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
