package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string `mapstructure:"RUN_MODE"` // Overridden by the -m flag when set
	AppEnv  string `mapstructure:"APP_ENV"`

	// MongoDB
	MongoURI          string `mapstructure:"MONGO_URI"`
	MongoDbName       string `mapstructure:"MONGO_DB_NAME"`
	MongoTransactions bool   `mapstructure:"MONGO_TRANSACTIONS"`

	// Redis
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// JWT
	JwtSecret string        `mapstructure:"JWT_SECRET"`
	JwtTTL    time.Duration `mapstructure:"JWT_TTL"`

	// Server
	ApiPort        string `mapstructure:"API_PORT"`
	ServiceApiPort string `mapstructure:"SERVICE_API_PORT"`

	// Email
	SmtpHost        string `mapstructure:"SMTP_HOST"`
	SmtpPort        int    `mapstructure:"SMTP_PORT"`
	SmtpUsername    string `mapstructure:"SMTP_USERNAME"`
	SmtpPassword    string `mapstructure:"SMTP_PASSWORD"`
	SmtpFromAddress string `mapstructure:"SMTP_FROM_ADDRESS"`
	ContactAddress  string `mapstructure:"CONTACT_ADDRESS"`
	DefaultLocale   string `mapstructure:"DEFAULT_LOCALE"`
	MockServices    bool   `mapstructure:"MOCK_SERVICES"`
	LogEmails       string `mapstructure:"LOG_EMAILS"`

	// AWS S3
	AwsAccessKeyID     string `mapstructure:"AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `mapstructure:"AWS_SECRET_ACCESS_KEY"`
	AwsRegion          string `mapstructure:"AWS_REGION"`
	AwsS3Bucket        string `mapstructure:"AWS_S3_BUCKET"`
	ImageBaseS3URL     string `mapstructure:"IMAGE_BASE_S3_URL"`
	ImageMaxDimension  int    `mapstructure:"IMAGE_MAX_DIMENSION"`
	ImageMaxSizeMB     int    `mapstructure:"IMAGE_MAX_SIZE_MB"`

	// Billing
	StripeSecretKey    string `mapstructure:"STRIPE_SECRET_KEY"`
	PriceKey           string `mapstructure:"PRICE_KEY"`
	CheckoutSuccessURL string `mapstructure:"CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL  string `mapstructure:"CHECKOUT_CANCEL_URL"`

	// Kafka
	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`

	// Business rules
	TrialPeriodDays     float64       `mapstructure:"TRIAL_PERIOD_DAYS"`
	RetentionDays       int           `mapstructure:"RETENTION_DAYS"`
	TempRegistrationTTL time.Duration `mapstructure:"TEMP_REGISTRATION_TTL"`
	PendingDeletionDays int           `mapstructure:"PENDING_DELETION_DAYS"`
	InactivityPeriod    time.Duration `mapstructure:"INACTIVITY_PERIOD"`
	Timezone            string        `mapstructure:"TIMEZONE"`

	// Scheduled jobs (5-field cron)
	CronScheduledDeletion string        `mapstructure:"CRON_SCHEDULED_DELETION"`
	CronOfferNotifier     string        `mapstructure:"CRON_OFFER_NOTIFIER"`
	CronUnverifiedSweep   string        `mapstructure:"CRON_UNVERIFIED_SWEEP"`
	CronTrialReminder     string        `mapstructure:"CRON_TRIAL_REMINDER"`
	CronRetentionPurge    string        `mapstructure:"CRON_RETENTION_PURGE"`
	CronInactivitySweep   string        `mapstructure:"CRON_INACTIVITY_SWEEP"`
	CronOutboxRelay       string        `mapstructure:"CRON_OUTBOX_RELAY"`
	JobTimeout            time.Duration `mapstructure:"JOB_TIMEOUT"`

	// Rate Limiting Defaults
	RateLimitBucketSize int `mapstructure:"RATE_LIMIT_BUCKET_SIZE"`
	RateLimitRefillRate int `mapstructure:"RATE_LIMIT_REFILL_RATE"` // tokens per second
}

// IsDevelopment reports whether detailed error output is allowed.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("RUN_MODE", "all")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("MONGO_DB_NAME", "fixmatch")
	v.SetDefault("MONGO_TRANSACTIONS", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("API_PORT", "8080")
	v.SetDefault("SERVICE_API_PORT", "12345")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM_ADDRESS", "noreply@fixmatch.se")
	v.SetDefault("CONTACT_ADDRESS", "info@fixmatch.se")
	v.SetDefault("DEFAULT_LOCALE", "sv-SE")
	v.SetDefault("MOCK_SERVICES", false)
	v.SetDefault("LOG_EMAILS", "")
	v.SetDefault("AWS_ACCESS_KEY_ID", "")
	v.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	v.SetDefault("AWS_REGION", "eu-north-1")
	v.SetDefault("AWS_S3_BUCKET", "")
	v.SetDefault("IMAGE_BASE_S3_URL", "")
	v.SetDefault("IMAGE_MAX_DIMENSION", 1600)
	v.SetDefault("IMAGE_MAX_SIZE_MB", 10)
	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("PRICE_KEY", "")
	v.SetDefault("CHECKOUT_SUCCESS_URL", "https://fixmatch.se/#/sign-in")
	v.SetDefault("CHECKOUT_CANCEL_URL", "https://fixmatch.se/#/register-repair-shop")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "fixmatch.bookings")
	v.SetDefault("TRIAL_PERIOD_DAYS", 121.6)
	v.SetDefault("RETENTION_DAYS", 1825)
	v.SetDefault("TEMP_REGISTRATION_TTL", "40m")
	v.SetDefault("PENDING_DELETION_DAYS", 30)
	v.SetDefault("INACTIVITY_PERIOD", "8760h")
	v.SetDefault("TIMEZONE", "Europe/Stockholm")
	v.SetDefault("CRON_SCHEDULED_DELETION", "*/19 * * * *")
	v.SetDefault("CRON_OFFER_NOTIFIER", "15 9,15 * * *")
	v.SetDefault("CRON_UNVERIFIED_SWEEP", "*/13 * * * *")
	v.SetDefault("CRON_TRIAL_REMINDER", "*/19 * * * *")
	v.SetDefault("CRON_RETENTION_PURGE", "0 0 * * *")
	v.SetDefault("CRON_INACTIVITY_SWEEP", "0 0 1 * *")
	v.SetDefault("CRON_OUTBOX_RELAY", "*/5 * * * *")
	v.SetDefault("JOB_TIMEOUT", "30m")
	v.SetDefault("RATE_LIMIT_BUCKET_SIZE", 20)
	v.SetDefault("RATE_LIMIT_REFILL_RATE", 5)
}

// Load configuration from environment variables.
// RunMode comes from the command-line flag and wins over RUN_MODE when non-empty.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"MONGO_URI", "JWT_SECRET"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Comma separated lists arrive as one string from the environment.
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if runMode != "" {
		cfg.RunMode = runMode
	}

	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("missing required environment variable: MONGO_URI")
	}
	if cfg.JwtSecret == "" {
		return nil, fmt.Errorf("missing required environment variable: JWT_SECRET")
	}
	if cfg.TrialPeriodDays <= 0 {
		return nil, fmt.Errorf("invalid TRIAL_PERIOD_DAYS: %v", cfg.TrialPeriodDays)
	}
	if cfg.RetentionDays <= 0 {
		return nil, fmt.Errorf("invalid RETENTION_DAYS: %d", cfg.RetentionDays)
	}

	return cfg, nil
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
