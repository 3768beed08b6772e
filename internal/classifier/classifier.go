// Package classifier inspects raw Lambda invocation payloads and determines
// which event source produced them. A single deployed function can be wired
// to API Gateway, an SQS trigger, and a scheduled warm-up rule at the same
// time; the payload shape is the only way to tell the invocations apart.
package classifier

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	"clipvault/internal/types"
)

// Kind names the recognized invocation sources.
type Kind string

const (
	// KindScheduledPing is an EventBridge scheduled rule invocation, used
	// only to keep the function warm.
	KindScheduledPing Kind = "scheduled_ping"

	// KindQueueBatch is an SQS trigger invocation carrying alarm records.
	KindQueueBatch Kind = "queue_batch"

	// KindHTTPRequest is an API Gateway proxy invocation.
	KindHTTPRequest Kind = "http_request"
)

// Invocation is the classified payload. Exactly one of the pointer fields is
// non-nil, matching Kind.
type Invocation struct {
	Kind  Kind
	Ping  *events.CloudWatchEvent
	Queue *events.SQSEvent
	HTTP  *events.APIGatewayProxyRequest
}

// peek mirrors just enough of each payload shape to discriminate between
// them without fully decoding the event.
type peek struct {
	Source  string `json:"source"`
	Records []struct {
		EventSource string `json:"eventSource"`
	} `json:"Records"`
	HTTPMethod     string           `json:"httpMethod"`
	RequestContext *json.RawMessage `json:"requestContext"`
}

// Classify determines the invocation source of a raw Lambda payload and
// decodes it into the matching typed event.
func Classify(raw json.RawMessage) (*Invocation, error) {
	var p peek
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"invocation payload is not valid JSON", err)
	}

	switch {
	case len(p.Records) > 0 && p.Records[0].EventSource == "aws:sqs":
		var ev events.SQSEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON,
				"payload looks like an SQS event but does not decode as one", err)
		}
		return &Invocation{Kind: KindQueueBatch, Queue: &ev}, nil

	case p.Source == "aws.events":
		var ev events.CloudWatchEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON,
				"payload looks like a scheduled event but does not decode as one", err)
		}
		return &Invocation{Kind: KindScheduledPing, Ping: &ev}, nil

	case p.HTTPMethod != "" || p.RequestContext != nil:
		var ev events.APIGatewayProxyRequest
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON,
				"payload looks like an API Gateway request but does not decode as one", err)
		}
		return &Invocation{Kind: KindHTTPRequest, HTTP: &ev}, nil
	}

	return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
		fmt.Sprintf("unrecognized invocation payload (%d bytes)", len(raw)), nil)
}
