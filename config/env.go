package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"rentflow-system/internal/logger"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	AI         AIConfig
	OCR        OCRConfig
	PDF        PDFConfig
	Commission CommissionConfig
	Invoice    InvoiceConfig
	Share      ShareConfig
	RateLimit  RateLimitConfig
	Log        logger.LogConfig
}

type ServerConfig struct {
	Port          string
	AllowedOrigin string
	ReadTimeout   time.Duration
}

type DBConfig struct {
	DSN string
}

type AIConfig struct {
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIModel   string
	DefaultEngine string
	ScanTimeout   time.Duration
}

type OCRConfig struct {
	Enabled         bool
	CredentialsFile string
}

type PDFConfig struct {
	WkhtmltopdfPath string
	DPI             uint
}

type CommissionConfig struct {
	OrganizerPercent decimal.Decimal
	SetupPoolPercent decimal.Decimal
}

type InvoiceConfig struct {
	NumberPrefix  string
	NumberRetries int
}

type ShareConfig struct {
	Secret string
	TTL    time.Duration
}

type RateLimitConfig struct {
	Scan string
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	return Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://localhost:3000"),
			ReadTimeout:   getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		},
		DB: DBConfig{
			DSN: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=rentflow port=5432 sslmode=disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", true),
		},
		AI: AIConfig{
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			DefaultEngine: getEnv("SCAN_DEFAULT_ENGINE", "gemini"),
			ScanTimeout:   getEnvDuration("SCAN_TIMEOUT", 60*time.Second),
		},
		OCR: OCRConfig{
			Enabled:         getEnvBool("OCR_ENABLED", false),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		PDF: PDFConfig{
			WkhtmltopdfPath: getEnv("WKHTMLTOPDF_PATH", ""),
			DPI:             uint(getEnvInt("PDF_DPI", 300)),
		},
		Commission: CommissionConfig{
			OrganizerPercent: getEnvDecimal("COMMISSION_ORGANIZER_PERCENT", decimal.NewFromInt(5)),
			SetupPoolPercent: getEnvDecimal("COMMISSION_SETUP_POOL_PERCENT", decimal.NewFromInt(30)),
		},
		Invoice: InvoiceConfig{
			NumberPrefix:  getEnv("INVOICE_NUMBER_PREFIX", "INV"),
			NumberRetries: getEnvInt("INVOICE_NUMBER_RETRIES", 3),
		},
		Share: ShareConfig{
			Secret: getEnv("SHARE_LINK_SECRET", "change-me-in-production"),
			TTL:    getEnvDuration("SHARE_LINK_TTL", 7*24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Scan: getEnv("RATE_LIMIT_SCAN", "10-M"),
		},
		Log: logger.LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "console"),
			TimeFormat: getEnv("LOG_TIME_FORMAT", time.RFC3339),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return defaultValue
	}
	return v
}
