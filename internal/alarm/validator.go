// Package alarm implements webhook ingestion: envelope validation, alarm
// record construction, and handoff to the delay queue. Ingestion never
// touches object storage; every accepted alarm reaches the store only through
// delayed processing.
package alarm

import (
	"encoding/json"

	"clipvault/internal/types"
)

// webhookEnvelope is the wire shape of the external alarm system's POST body.
// The envelope timestamp is authoritative; any timestamp inside the nested
// alarm payload is ignored.
type webhookEnvelope struct {
	Alarm     *types.AlarmRecord `json:"alarm"`
	Timestamp int64              `json:"timestamp"`
}

// ParseAlarmWebhook validates the raw webhook body and returns the alarm
// record with the envelope timestamp applied. All failures are AppErrors with
// validation_* codes so the HTTP layer maps them to 400 responses.
func ParseAlarmWebhook(body []byte) (*types.AlarmRecord, error) {
	if len(body) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationEmptyBody,
			"request body is empty", nil)
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"request body is not valid JSON", err)
	}

	if env.Alarm == nil {
		return nil, types.NewAppError(types.ErrCodeValidationMissingAlarm,
			"envelope is missing the alarm object", nil)
	}
	if len(env.Alarm.Triggers) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationMissingTriggers,
			"alarm has no triggers", nil)
	}

	trig := env.Alarm.CanonicalTrigger()
	if trig.EventID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingEventID,
			"first trigger is missing eventId", nil)
	}
	if trig.Device == "" {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"first trigger is missing device", nil,
			map[string]any{"field": "triggers[0].device"})
	}
	if env.Timestamp <= 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"envelope timestamp is missing or not positive", nil,
			map[string]any{"field": "timestamp"})
	}

	// The envelope timestamp always wins over anything nested in the alarm.
	env.Alarm.Timestamp = env.Timestamp
	return env.Alarm, nil
}
