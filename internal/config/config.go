package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	BackendBaseURL         string
	BackendTimeout         time.Duration
	BackendServiceToken    string
	BreakerFailures        uint32
	BreakerTimeout         time.Duration
	RedirectPrimaryPrefix  string
	RedirectFallbackPrefix string
	PaymentResultMarker    string
	PaymentPollDelay       time.Duration
	PaymentMaxPollAttempts int

	TaxRate     decimal.Decimal
	DeliveryFee decimal.Decimal

	RedisAddr     string
	RedisPassword string
	CartCacheTTL  time.Duration

	MongoURI    string
	MongoDBName string

	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	MigrationsPath string

	KafkaBrokers []string
	OutboxTopic  string
	KafkaGroupID string
}

// Load reads the configuration from the environment. Unset keys fall back
// to their defaults; malformed values are an error.
func Load() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		RequestTimeout:     p.duration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: 1 << 20, // 1MB
		LogLevel:           getEnv("LOG_LEVEL", "info"),

		BackendBaseURL:         getEnv("BACKEND_BASE_URL", "https://api.nsenterprise.net/api"),
		BackendTimeout:         p.duration("BACKEND_TIMEOUT", 10*time.Second),
		BackendServiceToken:    getEnv("BACKEND_SERVICE_TOKEN", ""),
		BreakerFailures:        uint32(p.integer("BREAKER_FAILURES", 5)),
		BreakerTimeout:         p.duration("BREAKER_TIMEOUT", 30*time.Second),
		RedirectPrimaryPrefix:  getEnv("REDIRECT_PRIMARY_PREFIX", "https://api.nsenterprise.net"),
		RedirectFallbackPrefix: getEnv("REDIRECT_FALLBACK_PREFIX", "http://localhost:5000"),
		PaymentResultMarker:    getEnv("PAYMENT_RESULT_MARKER", "/payment-result"),
		PaymentPollDelay:       p.duration("PAYMENT_POLL_DELAY", 3*time.Second),
		PaymentMaxPollAttempts: p.integer("PAYMENT_MAX_POLL_ATTEMPTS", 0),

		TaxRate:     p.decimal("TAX_RATE", "0.05"),
		DeliveryFee: p.decimal("DELIVERY_FEE", "2.99"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		CartCacheTTL:  p.duration("CART_CACHE_TTL", 24*time.Hour),

		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "checkoutdb"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         p.integer("DB_PORT", 5432),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "checkout"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./internal/outbox/migrations"),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		OutboxTopic:  getEnv("OUTBOX_TOPIC", "payment-outcome"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "checkout-reconciler"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.TaxRate.IsNegative() {
		return nil, fmt.Errorf("TAX_RATE must not be negative")
	}
	if cfg.DeliveryFee.IsNegative() {
		return nil, fmt.Errorf("DELIVERY_FEE must not be negative")
	}
	if cfg.PaymentMaxPollAttempts < 0 {
		return nil, fmt.Errorf("PAYMENT_MAX_POLL_ATTEMPTS must not be negative")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser keeps the first conversion error.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) decimal(key, def string) decimal.Decimal {
	v := getEnv(key, def)
	d, err := decimal.NewFromString(v)
	if err != nil {
		p.fail(key, v, err)
		return decimal.RequireFromString(def)
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
