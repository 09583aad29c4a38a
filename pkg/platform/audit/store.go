package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Store persists audit events. Implementations write to an outbox so a relay
// can forward them to the broker.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Outbox is the relay-side view of a Store.
type Outbox interface {
	ListPending(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}

// Payload is the JSON document published for every event.
type Payload struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	AgentID   string `json:"agent_id,omitempty"`
	Subject   string `json:"subject"`
	Action    string `json:"action"`
	Purpose   string `json:"purpose,omitempty"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
	IP        string `json:"ip,omitempty"`
	Severity  string `json:"severity,omitempty"`
}

// NewOutboxEntry builds the outbox row for event. The category is always
// derived from the action.
func NewOutboxEntry(event Event, now time.Time) (OutboxEntry, error) {
	eventID := uuid.NewString()
	category := AuditEvent(event.Action).Category()
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}

	payload := Payload{
		ID:        eventID,
		Category:  string(category),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Subject:   event.Subject,
		Action:    event.Action,
		Purpose:   event.Purpose,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
		IP:        event.IP,
		Severity:  string(event.Severity),
	}
	aggregateType := "audit"
	aggregateID := eventID
	if !event.AgentID.IsNil() {
		payload.AgentID = event.AgentID.String()
		aggregateType = "agent"
		aggregateID = payload.AgentID
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return OutboxEntry{}, err
	}
	return OutboxEntry{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     event.Action,
		Category:      category,
		Payload:       data,
		CreatedAt:     now,
	}, nil
}
