// Package metrics emits pipeline telemetry to CloudWatch. Emission is
// fire-and-forget: a metrics outage must never fail an ingest or a clip
// acquisition, so every publish error is logged and swallowed.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"clipvault/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPipelineMetrics implements types.PipelineMetrics against
// CloudWatch.
//
// Metrics emitted:
//   - AlarmIngest: Dims {Outcome} -- on every webhook ingest decision
//   - AlarmQueueLag: No dims -- enqueue-to-processing-start delay
//   - VideoAcquisition: Dims {Outcome} -- plus a latency companion metric
//   - FinderScanDepth: Dims {Query} -- days scanned backward per lookup
type CloudWatchPipelineMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchPipelineMetrics creates a metrics emitter publishing to the
// given CloudWatch namespace.
func NewCloudWatchPipelineMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchPipelineMetrics {
	if namespace == "" {
		namespace = types.DefaultMetricNS
	}
	return &CloudWatchPipelineMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordIngest counts one webhook ingest decision by outcome.
func (m *CloudWatchPipelineMetrics) RecordIngest(ctx context.Context, outcome string) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricIngest),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimOutcome), Value: aws.String(outcome)},
		},
	})
}

// RecordQueueLag tracks the time between message enqueue and worker
// processing start, which includes the intentional delivery delay.
func (m *CloudWatchPipelineMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricQueueLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

// RecordAcquisition counts one clip acquisition outcome and records how long
// the portal protocol took.
func (m *CloudWatchPipelineMetrics) RecordAcquisition(ctx context.Context, outcome string, duration time.Duration) {
	m.put(ctx,
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAcquisition),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(types.DimOutcome), Value: aws.String(outcome)},
			},
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAcquisition + "Latency"),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(types.DimOutcome), Value: aws.String(outcome)},
			},
		},
	)
}

// RecordScanDepth tracks how many day folders a finder walked before
// resolving a query. A rising trend means clips are aging out.
func (m *CloudWatchPipelineMetrics) RecordScanDepth(ctx context.Context, query string, days int) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricScanDepth),
		Value:      aws.Float64(float64(days)),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimQuery), Value: aws.String(query)},
		},
	})
}

func (m *CloudWatchPipelineMetrics) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to publish pipeline metric",
			"error", err,
			"namespace", m.namespace,
		)
	}
}

// NoopMetrics implements types.PipelineMetrics with no-ops, for local runs
// and tests.
type NoopMetrics struct{}

func (NoopMetrics) RecordIngest(context.Context, string)                     {}
func (NoopMetrics) RecordQueueLag(context.Context, time.Duration)            {}
func (NoopMetrics) RecordAcquisition(context.Context, string, time.Duration) {}
func (NoopMetrics) RecordScanDepth(context.Context, string, int)             {}

// Compile-time assertions.
var (
	_ types.PipelineMetrics = (*CloudWatchPipelineMetrics)(nil)
	_ types.PipelineMetrics = NoopMetrics{}
)
