// Package types defines the shared domain model for the ClipVault pipeline:
// alarm records and their triggers, the queue transport envelope, credentials
// for the video portal, the application error taxonomy, and the interfaces
// that decouple the pipeline stages from their AWS-backed implementations.
package types

// SourceRef identifies one device/type pair involved in an alarm rule.
type SourceRef struct {
	Device string `json:"device"`
	Type   string `json:"type,omitempty"`
}

// Condition is one rule condition attached to an alarm, as delivered by the
// external alarm system. Carried through verbatim; the pipeline never
// evaluates conditions.
type Condition struct {
	Type   string `json:"type,omitempty"`
	Source string `json:"source,omitempty"`
}

// Trigger is a single activation instance within an alarm. The external
// system populates Key, Device, and EventID; the DelayedProcessor populates
// the remaining fields exactly once before the record is persisted. EventID
// is the primary idempotency key for the whole pipeline.
type Trigger struct {
	Key     string `json:"key"`
	Device  string `json:"device"`
	EventID string `json:"eventId"`

	// Enrichment fields, populated during delayed processing and never
	// mutated after the record is stored.
	DeviceName string `json:"deviceName,omitempty"`
	Date       string `json:"date,omitempty"`
	EventKey   string `json:"eventKey,omitempty"`
	VideoKey   string `json:"videoKey,omitempty"`
}

// AlarmRecord is the root entity for one alarm occurrence. It is created at
// HTTP ingestion, travels by value through the delay queue, is enriched once
// inside the DelayedProcessor, and is terminally persisted as an immutable
// JSON object in the clip bucket.
type AlarmRecord struct {
	Name       string      `json:"name,omitempty"`
	Sources    []SourceRef `json:"sources,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`

	// Triggers is non-empty for every validated record; the first element
	// is the canonical trigger used for storage key derivation.
	Triggers []Trigger `json:"triggers"`

	// Timestamp is the authoritative event time in epoch milliseconds. It is
	// taken from the webhook envelope, never from the nested alarm payload.
	Timestamp int64 `json:"timestamp"`

	// EventPath is the video system's relative path to the clip export.
	// An empty EventPath means the alarm has no associated video and the
	// acquisition step is skipped entirely.
	EventPath string `json:"eventPath,omitempty"`

	// EventLocalLink is derived during processing: the portal hostname from
	// the fetched credentials joined with EventPath.
	EventLocalLink string `json:"eventLocalLink,omitempty"`
}

// CanonicalTrigger returns the first trigger, which drives key derivation.
// Callers must only invoke this on validated records (non-empty Triggers).
func (r *AlarmRecord) CanonicalTrigger() *Trigger {
	return &r.Triggers[0]
}

// Credentials authenticate against the external video portal. The secret
// fields use SecretString so that accidental logging or JSON serialization
// of a credentials value never leaks plaintext.
type Credentials struct {
	Hostname string       `json:"hostname"`
	Username string       `json:"username"`
	Password SecretString `json:"password"`
	APIKey   SecretString `json:"apiKey"`
}
