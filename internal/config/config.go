// Package config defines the global configuration structure for the ClipVault
// pipeline. Configuration is loaded once at process initialization (Lambda
// Cold Start) and is immutable thereafter. It follows 12-Factor App
// principles by strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"

	"clipvault/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the ClipVault pipeline.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"clipvault"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	AWS           AWSConfig
	Pipeline      PipelineConfig
	Video         VideoConfig
	Registry      RegistryConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings for the standalone API mode.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Resource Identifiers
	ClipBucket    string `envconfig:"CLIP_BUCKET" validate:"required"`
	AlarmQueueURL string `envconfig:"SQS_ALARM_EVENTS" validate:"required,url"`
	DlqURL        string `envconfig:"SQS_ALARM_DLQ" validate:"omitempty,url"`

	// Secrets Manager id (name or ARN) of the video portal credentials.
	CredentialSecretID string `envconfig:"VIDEO_CREDENTIALS_SECRET" validate:"required"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// PipelineConfig holds the timing and partitioning policy for the two-phase
// ingest/process pipeline.
type PipelineConfig struct {
	// ProcessingDelay is the per-message SQS delivery delay between ingestion
	// and the first processing attempt, giving the video system time to
	// finish writing the clip export.
	ProcessingDelay time.Duration `envconfig:"PROCESSING_DELAY" default:"120s"`

	// DayFolderTZ is the single canonical timezone for day-folder bucketing.
	// Key derivation and the backward scans all use this one location.
	DayFolderTZ string `envconfig:"DAY_FOLDER_TZ" default:"America/New_York"`

	// Backward-scan horizons. Latest-video lookups stop after
	// LatestHorizonDays empty folders; explicit event lookups scan further
	// back since they may be requested well after ingestion.
	LatestHorizonDays int `envconfig:"LATEST_HORIZON_DAYS" default:"30" validate:"min=1"`
	EventHorizonDays  int `envconfig:"EVENT_HORIZON_DAYS" default:"90" validate:"min=1"`

	// SignedURLTTL is the expiry applied to presigned download URLs.
	SignedURLTTL time.Duration `envconfig:"SIGNED_URL_TTL" default:"1h"`

	// CredentialTTL bounds the in-process credential cache. Zero disables
	// refresh (cache lives for the process lifetime).
	CredentialTTL time.Duration `envconfig:"CREDENTIAL_TTL" default:"15m"`
}

// VideoConfig holds the acquisition polling contract for the external video
// portal.
type VideoConfig struct {
	PollInterval time.Duration `envconfig:"VIDEO_POLL_INTERVAL" default:"1s"`
	PollBudget   time.Duration `envconfig:"VIDEO_POLL_BUDGET" default:"60s"`
	UserAgent    string        `envconfig:"VIDEO_USER_AGENT" default:"ClipVault/1.0"`
}

// RegistryConfig holds the device registry connection. An empty DSN disables
// the registry; device display names then fall back to raw identifiers.
type RegistryConfig struct {
	DSN SecretString `envconfig:"DEVICE_REGISTRY_DSN"`
}

// SecurityConfig holds CORS settings and the optional query API key guard.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// QueryAPIKeyHash is a bcrypt hash. When set, query routes require an
	// X-Api-Key header whose value matches it. Empty disables the guard
	// (the webhook route is always open to the alarm source).
	QueryAPIKeyHash SecretString `envconfig:"QUERY_API_KEY_HASH"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ClipVault"`
}

// Location resolves the canonical day-folder timezone.
func (c PipelineConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.DayFolderTZ)
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
