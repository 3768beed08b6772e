package alarm

import (
	"context"
	"log/slog"
	"time"

	"clipvault/internal/types"
)

// Ack is the acceptance response returned to the alarm system. Acceptance
// means "queued for processing", never "clip stored"; the estimate tells the
// caller when artifacts should start appearing.
type Ack struct {
	EventID                 string `json:"eventId"`
	Device                  string `json:"device"`
	EstimatedProcessingTime string `json:"estimatedProcessingTime"`
}

// IngestionService validates alarm webhooks and enqueues accepted records
// with the configured processing delay.
type IngestionService struct {
	publisher types.AlarmPublisher
	delay     time.Duration
	metrics   types.PipelineMetrics
	logger    *slog.Logger
}

// NewIngestionService creates the ingestion service. delay is how long a
// record sits in the queue before first processing, sized to outlast the
// portal's typical export latency.
func NewIngestionService(publisher types.AlarmPublisher, delay time.Duration, metrics types.PipelineMetrics, logger *slog.Logger) *IngestionService {
	return &IngestionService{
		publisher: publisher,
		delay:     delay,
		metrics:   metrics,
		logger:    logger,
	}
}

// Ingest validates the raw webhook body and, on success, enqueues the record.
// The returned Ack identifies the accepted event.
func (s *IngestionService) Ingest(ctx context.Context, body []byte) (*Ack, error) {
	rec, err := ParseAlarmWebhook(body)
	if err != nil {
		s.metrics.RecordIngest(ctx, types.OutcomeRejected)
		s.logger.WarnContext(ctx, "alarm webhook rejected", "error", err)
		return nil, err
	}

	if err := s.publisher.PublishAlarm(ctx, rec, s.delay); err != nil {
		s.metrics.RecordIngest(ctx, types.OutcomeFailure)
		return nil, err
	}

	trig := rec.CanonicalTrigger()
	s.metrics.RecordIngest(ctx, types.OutcomeSuccess)
	s.logger.InfoContext(ctx, "alarm accepted",
		"event_id", trig.EventID,
		"device", trig.Device,
		"timestamp", rec.Timestamp,
		"has_video", rec.EventPath != "",
	)

	return &Ack{
		EventID:                 trig.EventID,
		Device:                  trig.Device,
		EstimatedProcessingTime: s.delay.String(),
	}, nil
}
