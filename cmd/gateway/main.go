// Package main is the entrypoint for the unified ClipVault gateway Lambda.
//
// A single deployed function is wired to three event sources at once: API
// Gateway (webhook ingestion and video queries), the alarm SQS queue
// (delayed clip processing), and an EventBridge scheduled rule (warm-up
// pings). The raw invocation payload is classified by shape and dispatched
// to the matching handler.
//
// Cold Start (main):
//  1. Resolve SSM-backed secrets and load configuration.
//  2. Initialize structured logger and AWS SDK configuration.
//  3. Wire the full pipeline: object store, delay-queue publisher,
//     credential source, portal client, device registry, metrics.
//  4. Build the HTTP server plus proxy adapter and the batch processor.
//  5. Register the dispatching handler and call lambda.Start.
package main

import (
	"context"
	"encoding/json"
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
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"clipvault/internal/alarm"
	"clipvault/internal/api"
	"clipvault/internal/classifier"
	"clipvault/internal/config"
	"clipvault/internal/finder"
	"clipvault/internal/keys"
	"clipvault/internal/metrics"
	"clipvault/internal/processor"
	"clipvault/internal/queue"
	"clipvault/internal/registry"
	"clipvault/internal/secrets"
	"clipvault/internal/storage"
	"clipvault/internal/types"
	"clipvault/internal/video"
)

// pingResponse is returned for scheduled warm-up invocations.
var pingResponse = map[string]string{"msg": "No action taken on request."}

// dispatcher routes classified invocations to the API adapter or the batch
// processor.
type dispatcher struct {
	adapter   *api.LambdaAdapter
	processor *processor.Processor
	logger    *slog.Logger
}

// Handle is the raw Lambda handler. The return type varies by invocation
// source, which is why the payload arrives untyped.
func (d *dispatcher) Handle(ctx context.Context, raw json.RawMessage) (any, error) {
	inv, err := classifier.Classify(raw)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to classify invocation", "error", err)
		return nil, err
	}

	switch inv.Kind {
	case classifier.KindScheduledPing:
		d.logger.DebugContext(ctx, "warm-up ping received")
		return pingResponse, nil
	case classifier.KindQueueBatch:
		return d.processor.Handle(ctx, *inv.Queue)
	case classifier.KindHTTPRequest:
		return d.adapter.Handle(ctx, *inv.HTTP)
	}

	return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
		fmt.Sprintf("no handler for invocation kind %q", inv.Kind), nil)
}

func main() {
	d, err := buildDispatcher(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	lambda.Start(d.Handle)
}

// buildDispatcher performs all cold-start wiring for both invocation paths.
func buildDispatcher(ctx context.Context) (*dispatcher, error) {
	cfg, err := config.LoadConfig(newSecretProvider())
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("clipvault gateway starting",
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

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	publisher := queue.NewAlarmPublisher(sqsClient, cfg.AWS.AlarmQueueURL, logger)

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

	ingestion := alarm.NewIngestionService(publisher, cfg.Pipeline.ProcessingDelay, pipelineMetrics, logger)
	videoFinder := finder.New(
		store,
		scheme,
		cfg.Pipeline.LatestHorizonDays,
		cfg.Pipeline.EventHorizonDays,
		cfg.Pipeline.SignedURLTTL,
		pipelineMetrics,
		logger,
	)

	srv, err := api.NewServer(cfg, ingestion, videoFinder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.MountRoutes()

	return &dispatcher{
		adapter:   api.NewLambdaAdapter(srv),
		processor: processor.New(store, portal, creds, deviceRegistry, scheme, pipelineMetrics, logger),
		logger:    logger,
	}, nil
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
