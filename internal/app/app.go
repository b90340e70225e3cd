// Package app wires configuration, storage and the service handlers together for
// the gateway and the command line tool.
package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"rentflow-system/config"
	"rentflow-system/internal/commission"
	"rentflow-system/internal/database"
	"rentflow-system/internal/gateway/clients"
	"rentflow-system/internal/pdf"
	commissionhandler "rentflow-system/internal/services/commissions/handler"
	customerhandler "rentflow-system/internal/services/customer/handler"
	employeehandler "rentflow-system/internal/services/employee/handler"
	equipmenthandler "rentflow-system/internal/services/equipment/handler"
	invoicehandler "rentflow-system/internal/services/invoice/handler"
	scannerhandler "rentflow-system/internal/services/scanner/handler"
	templatehandler "rentflow-system/internal/services/templates/handler"
)

type Services struct {
	Customers   *customerhandler.CustomerHandler
	Employees   *employeehandler.EmployeeHandler
	Equipment   *equipmenthandler.EquipmentHandler
	Templates   *templatehandler.TemplateHandler
	Commissions *commissionhandler.CommissionHandler
	Invoices    *invoicehandler.InvoiceHandler
	Scanner     *scannerhandler.ScannerHandler
}

// NewServices builds every service handler. redisClient may be nil.
func NewServices(cfg config.Config, db *gorm.DB, redisClient *redis.Client, engines scannerhandler.EngineSource, renderer invoicehandler.PDFRenderer) *Services {
	policy := commission.Policy{
		OrganizerPercent: cfg.Commission.OrganizerPercent,
		SetupPoolPercent: cfg.Commission.SetupPoolPercent,
	}

	s := &Services{
		Customers:   customerhandler.NewCustomerHandler(db, redisClient),
		Employees:   employeehandler.NewEmployeeHandler(db, redisClient),
		Equipment:   equipmenthandler.NewEquipmentHandler(db, redisClient),
		Templates:   templatehandler.NewTemplateHandler(db, redisClient),
		Commissions: commissionhandler.NewCommissionHandler(db, redisClient, policy),
	}
	s.Invoices = invoicehandler.NewInvoiceHandler(db, redisClient, s.Templates, s.Commissions, renderer, invoicehandler.Options{
		NumberPrefix:  cfg.Invoice.NumberPrefix,
		NumberRetries: cfg.Invoice.NumberRetries,
		ShareSecret:   cfg.Share.Secret,
		ShareTTL:      cfg.Share.TTL,
	})
	s.Scanner = scannerhandler.NewScannerHandler(engines, s.Equipment, s.Customers, s.Invoices, cfg.AI.DefaultEngine, cfg.AI.ScanTimeout)
	return s
}

// NewRenderer builds the invoice PDF renderer on top of wkhtmltopdf.
func NewRenderer(cfg config.PDFConfig) (*pdf.Renderer, error) {
	converter := pdf.NewWkhtmltopdfConverter(cfg.WkhtmltopdfPath, cfg.DPI)
	return pdf.NewRenderer(pdf.NewFormatter(language.English), converter)
}

// Runtime is everything a process needs: connections, engines and services.
type Runtime struct {
	Config   config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Engines  *clients.ScannerEngines
	Services *Services
}

// Open connects to the database, tries redis and the scanner engines, and builds the
// services. Only a database failure is fatal; the rest run degraded.
func Open(ctx context.Context, cfg config.Config) (*Runtime, error) {
	db, err := database.NewConnection(cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redisClient, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, running without cache and events")
		redisClient = nil
	}

	engines, err := clients.NewScannerEnginesWithFallback(ctx, cfg.AI, cfg.OCR)
	if err != nil {
		log.Warn().Err(err).Msg("Some scanner engines may be unavailable")
	}

	renderer, err := NewRenderer(cfg.PDF)
	if err != nil {
		return nil, fmt.Errorf("failed to build pdf renderer: %w", err)
	}

	return &Runtime{
		Config:   cfg,
		DB:       db,
		Redis:    redisClient,
		Engines:  engines,
		Services: NewServices(cfg, db, redisClient, engines, renderer),
	}, nil
}

func (r *Runtime) Close() {
	if r.Engines != nil {
		r.Engines.Close()
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis")
		}
	}
	if sqlDB, err := r.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}
}
