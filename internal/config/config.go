package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultTaxRate         = "0.10"
	defaultOrderCodePrefix = "TRX"
	defaultGatewayTimeout  = 10 * time.Second
	defaultMidtransBaseURL = "https://api.sandbox.midtrans.com"
	defaultKafkaTopic      = "pos.orders"
	defaultMetricsPrefix   = "kasir"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string

	TaxRate         decimal.Decimal
	OrderCodePrefix string

	MidtransServerKey string
	MidtransBaseURL   string
	GatewayTimeout    time.Duration

	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret     string
	MetricsPrefix string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:            os.Getenv("DB_HOST"),
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBName:            os.Getenv("DB_NAME"),
		DBPort:            os.Getenv("DB_PORT"),
		AppPort:           getEnv("APP_PORT", "8080"),
		AppEnv:            os.Getenv("APP_ENV"),
		TaxRate:           parseRate(os.Getenv("TAX_RATE")),
		OrderCodePrefix:   getEnv("ORDER_CODE_PREFIX", defaultOrderCodePrefix),
		MidtransServerKey: os.Getenv("MIDTRANS_SERVER_KEY"),
		MidtransBaseURL:   getEnv("MIDTRANS_BASE_URL", defaultMidtransBaseURL),
		GatewayTimeout:    parseDuration(os.Getenv("GATEWAY_TIMEOUT"), defaultGatewayTimeout),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:        getEnv("KAFKA_TOPIC", defaultKafkaTopic),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		MetricsPrefix:     getEnv("METRICS_PREFIX", defaultMetricsPrefix),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseRate accepts either a fraction ("0.11") or a percentage ("11").
func parseRate(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.RequireFromString(defaultTaxRate)
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || rate.IsNegative() {
		log.Printf("invalid TAX_RATE %q, using %s", raw, defaultTaxRate)
		return decimal.RequireFromString(defaultTaxRate)
	}
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		rate = rate.Div(decimal.NewFromInt(100))
	}
	return rate
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
