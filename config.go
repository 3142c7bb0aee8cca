package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"checkout-service/awsclient"
	"checkout-service/providers"
	"checkout-service/services"

	"github.com/joho/godotenv"
)

const (
	ProviderOcto   = "octo"
	ProviderStripe = "stripe"
)

// Config holds all configuration for the checkout service.
type Config struct {
	Env              string
	Port             string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisURL string
	CacheTTL time.Duration

	PaymentProvider string
	PaymentCurrency string
	Octo            providers.OctoConfig
	Stripe          providers.StripeConfig

	EventsSNSTopicARN string
	NotifyQueueURL    string

	CloudWatchEnabled  bool
	CloudWatchLogGroup string
	MetricsNamespace   string

	AllowedOrigins     []string
	AllowedOriginRegex string

	RateLimitRequests     int
	RateLimitWindow       time.Duration
	RateLimitExcludePaths []string

	Orders services.OrderConfig
}

// DSN builds the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
		c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone)
}

// LoadConfig reads configuration from .env and environment variables with
// optional Secrets Manager override.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:              getEnv("ENV", "development"),
		Port:             getEnv("PORT", "8090"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),

		RedisURL: os.Getenv("REDIS_URL"),
		CacheTTL: time.Duration(getEnvInt("CACHE_TTL_SEC", 60)) * time.Second,

		PaymentProvider: strings.ToLower(getEnv("PAYMENT_PROVIDER", ProviderOcto)),
		PaymentCurrency: getEnv("PAYMENT_CURRENCY", services.DefaultPaymentCurrency),
		Octo: providers.OctoConfig{
			APIBase:     getEnv("OCTO_API_BASE", providers.DefaultOctoAPIBase),
			ShopID:      os.Getenv("OCTO_SHOP_ID"),
			Secret:      os.Getenv("OCTO_SECRET"),
			ReturnURL:   os.Getenv("OCTO_RETURN_URL"),
			NotifyURL:   os.Getenv("OCTO_NOTIFY_URL"),
			Language:    getEnv("OCTO_LANGUAGE", "ru"),
			Currency:    getEnv("OCTO_CURRENCY", "UZS"),
			AutoCapture: getEnvBool("OCTO_AUTO_CAPTURE", true),
			Test:        getEnvBool("OCTO_TEST", false),
			USDRate:     getEnvFloat("OCTO_USD_UZS_RATE", 0),
		},
		Stripe: providers.StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Currency:      getEnv("STRIPE_CURRENCY", "uzs"),
			SuccessURL:    os.Getenv("STRIPE_SUCCESS_URL"),
			CancelURL:     os.Getenv("STRIPE_CANCEL_URL"),
			MinorUnits:    int64(getEnvInt("STRIPE_MINOR_UNITS", 100)),
		},

		EventsSNSTopicARN: os.Getenv("CHECKOUT_SNS_TOPIC_ARN"),
		NotifyQueueURL:    os.Getenv("NOTIFY_QUEUE_URL"),

		CloudWatchEnabled:  getEnvBool("CLOUDWATCH_ENABLED", false),
		CloudWatchLogGroup: getEnv("CLOUDWATCH_LOG_GROUP", "/checkout-service"),
		MetricsNamespace:   getEnv("CLOUDWATCH_METRICS_NAMESPACE", "CheckoutService"),

		AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		AllowedOriginRegex: os.Getenv("ALLOWED_ORIGIN_REGEX"),

		RateLimitRequests:     getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:       time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SEC", 60)) * time.Second,
		RateLimitExcludePaths: splitList(getEnv("RATE_LIMIT_EXCLUDE_PATHS", "/health,/metrics,/payments/notify")),

		Orders: services.OrderConfig{
			MaxQtyPerItem: getEnvInt("ORDER_MAX_QTY_PER_ITEM", services.DefaultMaxQtyPerItem),
			MergeWindow:   getEnvDuration("ORDER_MERGE_WINDOW", services.DefaultMergeWindow),
			LockStock:     getEnvBool("ORDER_LOCK_STOCK", false),
		},
	}
	cfg.Orders.CacheTTL = cfg.CacheTTL

	if raw := os.Getenv("OCTO_EXTRA_PARAMS"); raw != "" {
		var extra map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &extra); err != nil {
			return nil, fmt.Errorf("OCTO_EXTRA_PARAMS must be a JSON object: %w", err)
		}
		cfg.Octo.ExtraParams = extra
	}

	// Override credentials from Secrets Manager when running on AWS
	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := awsclient.LoadAWSConfig(context.Background()); err == nil {
			sm := awsclient.NewSecretsClient(awsCfg, getEnv("AWS_SECRETS_PREFIX", awsclient.DefaultSecretPrefix))
			secrets, err := sm.LoadCheckoutSecrets(context.Background())
			if err != nil {
				return nil, fmt.Errorf("load secrets: %w", err)
			}
			applySecrets(cfg, secrets)
		}
	}

	if cfg.PostgresUser == "" || cfg.PostgresPassword == "" || cfg.PostgresDB == "" || cfg.PostgresHost == "" {
		return nil, fmt.Errorf("database config incomplete")
	}
	if cfg.AllowedOriginRegex != "" {
		if _, err := regexp.Compile(cfg.AllowedOriginRegex); err != nil {
			return nil, fmt.Errorf("invalid ALLOWED_ORIGIN_REGEX: %w", err)
		}
	}
	switch cfg.PaymentProvider {
	case ProviderOcto:
	case ProviderStripe:
		if cfg.Stripe.SecretKey == "" {
			return nil, fmt.Errorf("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	default:
		return nil, fmt.Errorf("unknown PAYMENT_PROVIDER %q", cfg.PaymentProvider)
	}
	return cfg, nil
}

// applySecrets overrides config with every non-empty secret.
func applySecrets(cfg *Config, sec awsclient.CheckoutSecrets) {
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.PostgresUser, sec.DB.User)
	override(&cfg.PostgresPassword, sec.DB.Password)
	override(&cfg.PostgresDB, sec.DB.Name)
	override(&cfg.PostgresHost, sec.DB.Host)
	override(&cfg.PostgresPort, sec.DB.Port)
	override(&cfg.Octo.Secret, sec.OctoSecret)
	override(&cfg.Stripe.SecretKey, sec.StripeSecretKey)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "/")); p != "" {
			out = append(out, p)
		}
	}
	return out
}
