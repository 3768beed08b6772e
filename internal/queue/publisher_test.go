package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"clipvault/internal/types"
)

// --- Mock SQS Client ---

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	// calls records every SendMessageInput passed to SendMessage.
	calls []*sqs.SendMessageInput
	// err is returned by SendMessage if non-nil (simulates SQS failures).
	err error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

// --- Test Helpers ---

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/alarm-events"

func testRecord() *types.AlarmRecord {
	return &types.AlarmRecord{
		Name: "motion rule",
		Triggers: []types.Trigger{
			{Key: "motion", Device: "AA:BB", EventID: "evt1"},
		},
		Timestamp: 1700000000000,
	}
}

// --- Tests ---

func TestPublishAlarm_SendsSerializedRecord(t *testing.T) {
	mock := &mockSQSSender{}
	pub := NewAlarmPublisher(mock, testQueueURL, slog.Default())

	if err := pub.PublishAlarm(context.Background(), testRecord(), 120*time.Second); err != nil {
		t.Fatalf("PublishAlarm returned unexpected error: %v", err)
	}

	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(mock.calls))
	}
	call := mock.calls[0]

	if *call.QueueUrl != testQueueURL {
		t.Errorf("queue URL = %q, want %q", *call.QueueUrl, testQueueURL)
	}
	if call.DelaySeconds != 120 {
		t.Errorf("delay = %d, want 120", call.DelaySeconds)
	}

	var rec types.AlarmRecord
	if err := json.Unmarshal([]byte(*call.MessageBody), &rec); err != nil {
		t.Fatalf("failed to unmarshal message body: %v", err)
	}
	if rec.Triggers[0].EventID != "evt1" || rec.Timestamp != 1700000000000 {
		t.Errorf("round-tripped record = %+v", rec)
	}
}

func TestPublishAlarm_AttachesTriageAttributes(t *testing.T) {
	mock := &mockSQSSender{}
	pub := NewAlarmPublisher(mock, testQueueURL, slog.Default())

	if err := pub.PublishAlarm(context.Background(), testRecord(), 0); err != nil {
		t.Fatalf("PublishAlarm returned unexpected error: %v", err)
	}

	attrs := mock.calls[0].MessageAttributes
	if got := *attrs[types.AttrEventID].StringValue; got != "evt1" {
		t.Errorf("eventId attribute = %q", got)
	}
	if got := *attrs[types.AttrDevice].StringValue; got != "AA:BB" {
		t.Errorf("device attribute = %q", got)
	}
	if got := *attrs[types.AttrTimestamp].StringValue; got != "1700000000000" {
		t.Errorf("timestamp attribute = %q", got)
	}
	if got := *attrs[types.AttrTraceID].StringValue; got == "" {
		t.Error("traceId attribute is empty")
	}
}

func TestPublishAlarm_ClampsDelayToSQSMax(t *testing.T) {
	mock := &mockSQSSender{}
	pub := NewAlarmPublisher(mock, testQueueURL, slog.Default())

	if err := pub.PublishAlarm(context.Background(), testRecord(), time.Hour); err != nil {
		t.Fatalf("PublishAlarm returned unexpected error: %v", err)
	}

	if got := mock.calls[0].DelaySeconds; got != 900 {
		t.Errorf("delay = %d, want clamped 900", got)
	}
}

func TestPublishAlarm_MapsSendFailure(t *testing.T) {
	mock := &mockSQSSender{err: errors.New("queue unavailable")}
	pub := NewAlarmPublisher(mock, testQueueURL, slog.Default())

	err := pub.PublishAlarm(context.Background(), testRecord(), 0)

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeInternalQueue {
		t.Fatalf("expected %s AppError, got %v", types.ErrCodeInternalQueue, err)
	}
}
