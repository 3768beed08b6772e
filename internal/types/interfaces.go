package types

import (
	"context"
	"time"
)

// Logger defines the structured logging interface used throughout the
// pipeline. Lambda entrypoints wrap *slog.Logger in an adapter to satisfy it.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// ObjectStore is the durable day-partitioned object storage used by the
// ingestion, processing, and query stages. Keys follow the
// {YYYY-MM-DD}/{eventId}_{device}_{timestamp}.{ext} layout and per-key
// semantics are last-writer-wins, which is what makes at-least-once
// reprocessing safe.
type ObjectStore interface {
	// Put stores body under key, overwriting any existing object.
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// Get returns the full object body, or an AppError with
	// ErrCodeStorageRead wrapping the cause.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists performs a lightweight existence check (HEAD) without
	// transferring the body.
	Exists(ctx context.Context, key string) (bool, error)

	// ListKeys returns all object keys under the given prefix.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// PresignGet returns a time-limited credential-free URL granting read
	// access to one key.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// AlarmPublisher enqueues a validated alarm record onto the delay queue.
type AlarmPublisher interface {
	// PublishAlarm sends the record with the given per-message delivery
	// delay. Message attributes carry eventId, device, and timestamp so the
	// DLQ can be triaged without deserializing bodies.
	PublishAlarm(ctx context.Context, rec *AlarmRecord, delay time.Duration) error
}

// VideoAcquirer wraps the external clip export capability behind a
// retry/timeout contract. Fetch polls for artifact completion within its
// configured budget and returns the final clip bytes; it never retries
// beyond that budget, leaving redelivery to the queue.
type VideoAcquirer interface {
	Fetch(ctx context.Context, clipURL string, creds Credentials) ([]byte, error)
}

// CredentialSource supplies portal credentials. Implementations cache the
// fetched value; the cache is an optimization, never a correctness
// dependency.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)

	// Invalidate discards any cached value so the next call re-fetches.
	Invalidate()
}

// DeviceRegistry resolves a stable device identifier (e.g. a hardware
// address) to its human-readable display name. Lookup failures are
// non-fatal; callers fall back to the raw identifier.
type DeviceRegistry interface {
	DisplayName(ctx context.Context, device string) (string, error)
}

// PipelineMetrics records pipeline telemetry. Implementations must never
// fail the calling operation; emission errors are logged and swallowed.
type PipelineMetrics interface {
	RecordIngest(ctx context.Context, outcome string)
	RecordQueueLag(ctx context.Context, lag time.Duration)
	RecordAcquisition(ctx context.Context, outcome string, duration time.Duration)
	RecordScanDepth(ctx context.Context, query string, days int)
}
