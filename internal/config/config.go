// Package config defines the global configuration structure for the billgate
// service. Configuration is loaded once at process startup and is immutable
// thereafter, following 12-Factor principles.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup immediately.
package config

import (
	"time"

	"billgate/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the billgate service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"billgate-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Gateway       GatewayConfig
	Email         EmailConfig
	Observability ObservabilityConfig

	// Build metadata (injected via ldflags, not env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// DashboardURL is where buyers land after the gateway's return/cancel
	// redirects (no trailing slash), e.g. https://app.example.com.
	DashboardURL string `envconfig:"DASHBOARD_URL" validate:"required,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"af-south-1"`

	// NotificationQueue is the SQS queue emails are published to when the
	// email provider is "sqs". Unused with the "smtp" provider.
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// GatewayConfig holds payment gateway verification settings and the fallback
// merchant credentials used when a tenant has no per-tenant credential row.
type GatewayConfig struct {
	// Fallback merchant account. Per-tenant credentials stored in the
	// database take precedence; these cover single-merchant deployments.
	MerchantID  string       `envconfig:"GATEWAY_MERCHANT_ID" validate:"required"`
	MerchantKey SecretString `envconfig:"GATEWAY_MERCHANT_KEY" validate:"required"`
	Passphrase  SecretString `envconfig:"GATEWAY_PASSPHRASE"`
	Sandbox     bool         `envconfig:"GATEWAY_SANDBOX" default:"false"`

	// TrustedHosts are the gateway hostnames notifications may originate
	// from, resolved per request.
	TrustedHosts []string `envconfig:"GATEWAY_TRUSTED_HOSTS" default:"www.payfast.co.za,sandbox.payfast.co.za"`

	// ConfirmTimeout bounds the server-side confirmation round trip.
	ConfirmTimeout time.Duration `envconfig:"GATEWAY_CONFIRM_TIMEOUT" default:"30s"`

	// AmountTolerance is the maximum absolute difference tolerated between
	// the invoice amount and the notified gross, as a decimal string.
	AmountTolerance string `envconfig:"GATEWAY_AMOUNT_TOLERANCE" default:"0.01"`

	// CredentialKey is the 32-byte hex-encoded key that encrypts merchant
	// credentials at rest.
	CredentialKey SecretString `envconfig:"GATEWAY_CREDENTIAL_KEY" validate:"required,len=64,hexadecimal"`
}

// EmailConfig holds email delivery configuration. The "sqs" provider hands
// messages to a downstream worker via the notification queue; the "smtp"
// provider delivers directly.
type EmailConfig struct {
	Provider    string `envconfig:"EMAIL_PROVIDER" default:"sqs" validate:"oneof=sqs smtp"`
	FromAddress string `envconfig:"EMAIL_FROM_ADDRESS" default:"billing@billgate.io"`
	FromName    string `envconfig:"EMAIL_FROM_NAME" default:"BillGate Billing"`

	SMTPHost     string       `envconfig:"SMTP_HOST"`
	SMTPPort     int          `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string       `envconfig:"SMTP_USERNAME"`
	SMTPPassword SecretString `envconfig:"SMTP_PASSWORD"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"BillGate"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
