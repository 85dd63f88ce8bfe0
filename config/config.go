package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	aws_pkg "checkout-service/pkg/aws"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the checkout service.
type Config struct {
	Port   string
	AppEnv string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisURL string

	// SiteURL is the storefront origin used to build provider redirect URLs.
	SiteURL string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeCurrency      string

	MercadoPagoAccessToken string
	MercadoPagoCurrency    string
	MercadoPagoBaseURL     string

	JWTSecret string

	PaymentSNSTopicARN string
	ReconcileQueueURL  string

	AWSUseSecrets       bool
	CloudWatchEnabled   bool
	CloudWatchLogGroup  string
	CloudWatchNamespace string
}

// DSN returns the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
		c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

// StripeEnabled reports whether the card provider is configured.
func (c *Config) StripeEnabled() bool { return c.StripeSecretKey != "" }

// MercadoPagoEnabled reports whether the wallet provider is configured.
func (c *Config) MercadoPagoEnabled() bool { return c.MercadoPagoAccessToken != "" }

// LoadConfig reads configuration from the environment (and a local .env file
// if present). When AWS_USE_SECRETS=true, credentials are overridden from
// Secrets Manager.
func LoadConfig(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	cfg := FromEnv()

	if cfg.AWSUseSecrets {
		awsCfg, err := aws_pkg.LoadAWSConfig(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("load aws config for secrets: %w", err)
		}
		ApplySecrets(ctx, cfg, aws_pkg.NewSecretsClient(awsCfg, secretsPrefix))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables and defaults only.
func FromEnv() *Config {
	return &Config{
		Port:   getEnv("PORT", "8088"),
		AppEnv: getEnv("APP_ENV", "development"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),

		RedisURL: os.Getenv("REDIS_URL"),

		SiteURL: strings.TrimSuffix(getEnv("SITE_URL", "http://localhost:3000"), "/"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeCurrency:      strings.ToLower(getEnv("STRIPE_CURRENCY", "usd")),

		MercadoPagoAccessToken: os.Getenv("MERCADOPAGO_ACCESS_TOKEN"),
		MercadoPagoCurrency:    strings.ToUpper(getEnv("MERCADOPAGO_CURRENCY", "ARS")),
		MercadoPagoBaseURL:     getEnv("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		PaymentSNSTopicARN: os.Getenv("PAYMENT_SNS_TOPIC_ARN"),
		ReconcileQueueURL:  os.Getenv("RECONCILE_QUEUE_URL"),

		AWSUseSecrets:       os.Getenv("AWS_USE_SECRETS") == "true",
		CloudWatchEnabled:   os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchLogGroup:  getEnv("CLOUDWATCH_LOG_GROUP", "/storefront/services"),
		CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", "Storefront"),
	}
}

const secretsPrefix = "checkout/"

// ApplySecrets overrides credentials with values found in Secrets Manager.
// Missing secrets leave the environment values in place.
func ApplySecrets(ctx context.Context, cfg *Config, sm aws_pkg.SecretGetter) {
	if db, err := aws_pkg.GetSecretJSON(ctx, sm, "DB_CREDENTIALS"); err == nil {
		override(&cfg.PostgresUser, db["POSTGRES_USER"])
		override(&cfg.PostgresPassword, db["POSTGRES_PASSWORD"])
		override(&cfg.PostgresDB, db["POSTGRES_DB"])
		override(&cfg.PostgresHost, db["POSTGRES_HOST"])
		override(&cfg.PostgresPort, db["POSTGRES_PORT"])
	}

	for name, dst := range map[string]*string{
		"STRIPE_SECRET_KEY":        &cfg.StripeSecretKey,
		"STRIPE_WEBHOOK_SECRET":    &cfg.StripeWebhookSecret,
		"MERCADOPAGO_ACCESS_TOKEN": &cfg.MercadoPagoAccessToken,
		"JWT_SECRET":               &cfg.JWTSecret,
	} {
		if v, err := sm.GetSecret(ctx, name); err == nil {
			override(dst, v)
		}
	}
}

// Validate checks that the service can start.
func (c *Config) Validate() error {
	if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" || c.PostgresHost == "" {
		return fmt.Errorf("database config incomplete")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if !c.StripeEnabled() && !c.MercadoPagoEnabled() {
		return fmt.Errorf("at least one of STRIPE_SECRET_KEY or MERCADOPAGO_ACCESS_TOKEN is required")
	}
	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
