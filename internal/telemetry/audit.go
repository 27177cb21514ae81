package telemetry

import (
	"context"
	"log"
	"time"

	"program-chat-service/internal/observability"
)

// AuditEmitter publishes audit records for user-initiated chat actions
// (sends, uploads, share ingests).
type AuditEmitter struct {
	publisher   observability.Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	Email         string       `json:"email,omitempty"`
	ChatID        string       `json:"chat_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Action string `json:"action"`
	Detail string `json:"detail,omitempty"`
}

func NewAuditEmitter(publisher observability.Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit records one audit event. Failures are logged and swallowed; auditing
// never fails a user action.
func (e *AuditEmitter) Emit(ctx context.Context, action, detail, requestID, email, chatID string) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		Email:         email,
		ChatID:        chatID,
		Payload: AuditPayload{
			Action: action,
			Detail: detail,
		},
	}

	if err := e.publisher.PublishJSON(ctx, e.routingKey, envelope, observability.BuildHeaders(requestID, "")); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
