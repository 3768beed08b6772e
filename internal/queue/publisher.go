// Package queue provides the SQS-based producer that defers alarm processing.
// Every validated alarm is serialized and sent with a per-message delivery
// delay; the delay is what gives the external video system time to finish
// writing the clip export before the worker first attempts acquisition.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"clipvault/internal/types"
)

// maxSQSDelay is the SQS per-message delay ceiling (15 minutes).
const maxSQSDelay = 900 * time.Second

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// AlarmPublisher implements types.AlarmPublisher on top of SQS. The message
// body is the serialized AlarmRecord; message attributes duplicate the
// identifying fields so dead-letter queue contents can be triaged without
// deserializing bodies.
type AlarmPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewAlarmPublisher creates a publisher targeting the given queue URL.
func NewAlarmPublisher(client SQSSender, queueURL string, logger *slog.Logger) *AlarmPublisher {
	return &AlarmPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// PublishAlarm serializes the record and dispatches it with the requested
// delivery delay, clamped to the SQS maximum. A fresh trace ID is attached
// for log correlation across the ingest/process boundary.
func (p *AlarmPublisher) PublishAlarm(ctx context.Context, rec *types.AlarmRecord, delay time.Duration) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to marshal alarm record", err)
	}

	if delay > maxSQSDelay {
		delay = maxSQSDelay
	}
	if delay < 0 {
		delay = 0
	}

	trig := rec.CanonicalTrigger()
	traceID := uuid.New().String()

	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(delay / time.Second),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			types.AttrEventID: {
				DataType:    aws.String("String"),
				StringValue: aws.String(trig.EventID),
			},
			types.AttrDevice: {
				DataType:    aws.String("String"),
				StringValue: aws.String(trig.Device),
			},
			types.AttrTimestamp: {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatInt(rec.Timestamp, 10)),
			},
			types.AttrTraceID: {
				DataType:    aws.String("String"),
				StringValue: aws.String(traceID),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue,
			fmt.Sprintf("failed to enqueue alarm event to %s", p.queueURL), err)
	}

	p.logger.InfoContext(ctx, "alarm event enqueued",
		"queue_url", p.queueURL,
		"event_id", trig.EventID,
		"device", trig.Device,
		"timestamp", rec.Timestamp,
		"delay_seconds", int(delay/time.Second),
		"trace_id", traceID,
	)

	return nil
}

// Compile-time assertion that AlarmPublisher implements types.AlarmPublisher.
var _ types.AlarmPublisher = (*AlarmPublisher)(nil)
