// Package main is the entrypoint for the Clip Worker Lambda function.
//
// The Clip Worker consumes delayed alarm messages from the alarm SQS queue
// and materializes their durable artifacts: it enriches each alarm record,
// stores the metadata JSON in the clip bucket, and acquires the associated
// video clip from the external video portal when the alarm references one.
//
// Cold Start (main):
//  1. Resolve SSM-backed secrets and load configuration.
//  2. Initialize structured logger and AWS SDK configuration.
//  3. Initialize S3 object store, Secrets Manager credential source, and
//     CloudWatch metrics.
//  4. Initialize the portal client with the polling contract.
//  5. Initialize the device registry (Postgres when a DSN is configured,
//     otherwise the raw-identifier fallback).
//  6. Register the processor handler and call lambda.Start.
//
// Each batch is handled with partial-batch failure reporting so SQS
// redelivers only the messages that failed; the DLQ absorbs messages that
// exhaust the redrive policy.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/jackc/pgx/v5/pgxpool"

	"clipvault/internal/config"
	"clipvault/internal/keys"
	"clipvault/internal/metrics"
	"clipvault/internal/processor"
	"clipvault/internal/registry"
	"clipvault/internal/secrets"
	"clipvault/internal/storage"
	"clipvault/internal/types"
	"clipvault/internal/video"
)

func main() {
	proc, err := buildProcessor(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	lambda.Start(proc.Handle)
}

// buildProcessor performs all cold-start wiring.
func buildProcessor(ctx context.Context) (*processor.Processor, error) {
	cfg, err := config.LoadConfig(newSecretProvider())
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("clipvault clip worker starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"dlq_url", cfg.AWS.DlqURL,
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	loc, err := cfg.Pipeline.Location()
	if err != nil {
		return nil, fmt.Errorf("resolving day-folder timezone: %w", err)
	}
	scheme := keys.NewScheme(loc)

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			o.UsePathStyle = true
		}
	})
	store := storage.New(s3Client, cfg.AWS.ClipBucket, logger)

	smClient := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	creds := secrets.NewCredentialSource(smClient, cfg.AWS.CredentialSecretID, cfg.Pipeline.CredentialTTL, logger)

	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	pipelineMetrics := metrics.NewCloudWatchPipelineMetrics(cwClient, cfg.Observability.MetricNamespace, &slogAdapter{logger: logger})

	portal := video.NewPortalClient(
		&http.Client{Timeout: 30 * time.Second},
		video.Config{
			PollInterval: cfg.Video.PollInterval,
			PollBudget:   cfg.Video.PollBudget,
			UserAgent:    cfg.Video.UserAgent,
		},
		logger,
	)

	deviceRegistry, err := newDeviceRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return processor.New(store, portal, creds, deviceRegistry, scheme, pipelineMetrics, logger), nil
}

// newDeviceRegistry connects to the device registry database when a DSN is
// configured. Without one, enrichment falls back to raw hardware identifiers.
func newDeviceRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (types.DeviceRegistry, error) {
	dsn := cfg.Registry.DSN.Unmask()
	if dsn == "" {
		logger.Info("device registry disabled, using raw device identifiers")
		return registry.NewStaticRegistry(nil), nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to device registry: %w", err)
	}
	return registry.NewDeviceRepository(pool), nil
}

// newSecretProvider returns the SSM provider used for secret resolution, or
// nil in local mode where SSM resolution is bypassed.
func newSecretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return nil
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	return config.NewSSMProvider(region)
}

// slogAdapter adapts *slog.Logger to the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }

func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
