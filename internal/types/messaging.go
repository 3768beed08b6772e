package types

// Message attribute names attached to every queued alarm so that dead-letter
// queue contents can be triaged without deserializing message bodies.
const (
	AttrEventID   = "eventId"
	AttrDevice    = "device"
	AttrTimestamp = "timestamp"
	AttrTraceID   = "traceId"
)

// Metric names and dimensions emitted by the pipeline.
const (
	MetricIngest      = "AlarmIngest"
	MetricQueueLag    = "AlarmQueueLag"
	MetricAcquisition = "VideoAcquisition"
	MetricScanDepth   = "FinderScanDepth"
	DimOutcome        = "Outcome"
	DimQuery          = "Query"
	DefaultMetricNS   = "ClipVault"
)

// Acquisition and ingest outcome values for the Outcome metric dimension.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeSkipped  = "skipped"
	OutcomeRejected = "rejected"
)
