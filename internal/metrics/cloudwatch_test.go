package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"clipvault/internal/types"
)

type mockCWClient struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCWClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

// captureLogger implements types.Logger and records error messages.
type captureLogger struct {
	errorMsgs []string
}

func (l *captureLogger) Info(string, ...any) {}
func (l *captureLogger) Warn(string, ...any) {}
func (l *captureLogger) Error(msg string, _ ...any) {
	l.errorMsgs = append(l.errorMsgs, msg)
}
func (l *captureLogger) With(...any) types.Logger { return l }

func TestRecordIngest_EmitsOutcomeDimension(t *testing.T) {
	mock := &mockCWClient{}
	m := NewCloudWatchPipelineMetrics(mock, "ClipVault", &captureLogger{})

	m.RecordIngest(context.Background(), types.OutcomeRejected)

	if len(mock.inputs) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(mock.inputs))
	}
	datum := mock.inputs[0].MetricData[0]
	if *datum.MetricName != types.MetricIngest {
		t.Errorf("metric name = %q", *datum.MetricName)
	}
	if *datum.Dimensions[0].Value != types.OutcomeRejected {
		t.Errorf("outcome dimension = %q", *datum.Dimensions[0].Value)
	}
}

func TestRecordAcquisition_EmitsCountAndLatency(t *testing.T) {
	mock := &mockCWClient{}
	m := NewCloudWatchPipelineMetrics(mock, "ClipVault", &captureLogger{})

	m.RecordAcquisition(context.Background(), types.OutcomeSuccess, 2500*time.Millisecond)

	if len(mock.inputs) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(mock.inputs))
	}
	data := mock.inputs[0].MetricData
	if len(data) != 2 {
		t.Fatalf("expected 2 metric data points, got %d", len(data))
	}
	if *data[1].Value != 2500 {
		t.Errorf("latency value = %v, want 2500", *data[1].Value)
	}
}

func TestPut_SwallowsPublishErrors(t *testing.T) {
	mock := &mockCWClient{err: errors.New("throttled")}
	logger := &captureLogger{}
	m := NewCloudWatchPipelineMetrics(mock, "", logger)

	// Must not panic or propagate.
	m.RecordQueueLag(context.Background(), 2*time.Minute)
	m.RecordScanDepth(context.Background(), "latest", 3)

	if len(logger.errorMsgs) != 2 {
		t.Errorf("logged errors = %d, want one per swallowed publish failure", len(logger.errorMsgs))
	}
}
