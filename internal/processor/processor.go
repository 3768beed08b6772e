// Package processor consumes delayed alarm messages and materializes their
// durable artifacts: the enriched metadata JSON always, plus the video clip
// when the alarm references one. Processing is idempotent by construction
// because every artifact key is re-derived from the record itself, so SQS
// at-least-once delivery and DLQ replays converge on the same objects.
package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/sync/errgroup"

	"clipvault/internal/keys"
	"clipvault/internal/types"
	"clipvault/internal/video"
)

const (
	metadataContentType = "application/json"
	videoContentType    = "video/mp4"

	// defaultConcurrency bounds parallel message processing within one batch.
	// Each in-flight message can hold a portal session, and the portal caps
	// sessions per account.
	defaultConcurrency = 4
)

// Processor handles delayed alarm batches.
type Processor struct {
	store       types.ObjectStore
	acquirer    types.VideoAcquirer
	creds       types.CredentialSource
	registry    types.DeviceRegistry
	scheme      *keys.Scheme
	metrics     types.PipelineMetrics
	clock       types.Clock
	logger      *slog.Logger
	concurrency int
}

// Option is a functional option for configuring a Processor.
type Option func(*Processor)

// WithConcurrency overrides the per-batch processing parallelism.
func WithConcurrency(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithClock injects a clock. Tests use it to pin queue-lag measurements.
func WithClock(clock types.Clock) Option {
	return func(p *Processor) {
		p.clock = clock
	}
}

// New creates a Processor.
func New(
	store types.ObjectStore,
	acquirer types.VideoAcquirer,
	creds types.CredentialSource,
	registry types.DeviceRegistry,
	scheme *keys.Scheme,
	metrics types.PipelineMetrics,
	logger *slog.Logger,
	opts ...Option,
) *Processor {
	p := &Processor{
		store:       store,
		acquirer:    acquirer,
		creds:       creds,
		registry:    registry,
		scheme:      scheme,
		metrics:     metrics,
		clock:       types.RealClock{},
		logger:      logger,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle processes an SQS batch. Messages are processed independently and
// concurrently; each failure is reported as a partial batch failure so SQS
// redelivers only that message, and the DLQ absorbs messages that exhaust
// their redrive policy.
func (p *Processor) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, record := range sqsEvent.Records {
		g.Go(func() error {
			if err := p.processMessage(gctx, record); err != nil {
				p.logger.ErrorContext(gctx, "failed to process alarm message",
					"message_id", record.MessageId,
					"error", err,
				)
				mu.Lock()
				response.BatchItemFailures = append(response.BatchItemFailures,
					events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
				)
				mu.Unlock()
			}
			// Failures are reported per message; never abort the batch.
			return nil
		})
	}

	// Closures always return nil; Wait only fences completion.
	_ = g.Wait()
	return response, nil
}

// processMessage materializes the artifacts for one alarm record. A nil
// return ACKs the message; an error surrenders it for redelivery.
func (p *Processor) processMessage(ctx context.Context, record events.SQSMessage) error {
	var rec types.AlarmRecord
	if err := json.Unmarshal([]byte(record.Body), &rec); err != nil {
		// A body that never parses will never parse; retrying would only
		// cycle it into the DLQ with no diagnostic value. Drop it.
		p.logger.ErrorContext(ctx, "dropping unparseable alarm message",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}
	if len(rec.Triggers) == 0 || rec.CanonicalTrigger().EventID == "" {
		p.logger.ErrorContext(ctx, "dropping alarm message without canonical trigger",
			"message_id", record.MessageId,
		)
		return nil
	}

	p.recordQueueLag(ctx, record)

	trig := rec.CanonicalTrigger()
	logger := p.logger.With(
		"message_id", record.MessageId,
		"event_id", trig.EventID,
		"device", trig.Device,
		"timestamp", rec.Timestamp,
	)

	// Videoless alarms never touch the portal, so a secrets outage must not
	// block their metadata.
	var creds types.Credentials
	if rec.EventPath != "" {
		var err error
		creds, err = p.creds.Credentials(ctx)
		if err != nil {
			return err
		}
	}

	p.enrich(ctx, &rec, creds)
	pair := p.scheme.Derive(trig.EventID, trig.Device, rec.Timestamp)

	metadata, err := json.Marshal(&rec)
	if err != nil {
		logger.ErrorContext(ctx, "dropping alarm record that failed to serialize", "error", err)
		return nil
	}

	// Metadata is written before acquisition so an event is queryable even
	// when its clip never materializes. Rewrites on redelivery are identical.
	if err := p.store.Put(ctx, pair.MetadataKey, metadata, metadataContentType); err != nil {
		return err
	}

	if rec.EventPath == "" {
		p.metrics.RecordAcquisition(ctx, types.OutcomeSkipped, 0)
		logger.InfoContext(ctx, "alarm processed without video", "event_key", pair.MetadataKey)
		return nil
	}

	start := p.clock.Now()
	clip, err := p.acquirer.Fetch(ctx, rec.EventPath, creds)
	if err != nil {
		if video.IsAuthFailure(err) {
			// Rotated portal credentials; force a re-fetch before redelivery.
			p.creds.Invalidate()
		}
		p.metrics.RecordAcquisition(ctx, types.OutcomeFailure, p.clock.Now().Sub(start))
		return err
	}
	p.metrics.RecordAcquisition(ctx, types.OutcomeSuccess, p.clock.Now().Sub(start))

	if err := p.store.Put(ctx, pair.VideoKey, clip, videoContentType); err != nil {
		return err
	}

	logger.InfoContext(ctx, "alarm processed with video",
		"event_key", pair.MetadataKey,
		"video_key", pair.VideoKey,
		"clip_bytes", len(clip),
	)
	return nil
}

// enrich populates the derived trigger fields and the local portal link.
// Enrichment happens exactly once per stored record; redeliveries recompute
// the same values.
func (p *Processor) enrich(ctx context.Context, rec *types.AlarmRecord, creds types.Credentials) {
	trig := rec.CanonicalTrigger()
	pair := p.scheme.Derive(trig.EventID, trig.Device, rec.Timestamp)

	trig.Date = p.scheme.DayFolder(rec.Timestamp)
	trig.EventKey = pair.MetadataKey
	if rec.EventPath != "" {
		trig.VideoKey = pair.VideoKey
	}

	name, err := p.registry.DisplayName(ctx, trig.Device)
	if err != nil {
		// Registry misses are expected for unprovisioned cameras.
		trig.DeviceName = trig.Device
	} else {
		trig.DeviceName = name
	}

	if rec.EventPath != "" {
		rec.EventLocalLink = "https://" + creds.Hostname + "/" + strings.TrimPrefix(rec.EventPath, "/")
	}
}

// recordQueueLag emits the enqueue-to-processing delay, which includes the
// intentional delivery delay.
func (p *Processor) recordQueueLag(ctx context.Context, record events.SQSMessage) {
	sent, ok := record.Attributes["SentTimestamp"]
	if !ok {
		return
	}
	millis, err := strconv.ParseInt(sent, 10, 64)
	if err != nil {
		return
	}
	p.metrics.RecordQueueLag(ctx, p.clock.Now().Sub(time.UnixMilli(millis)))
}
