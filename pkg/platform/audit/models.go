package audit

import (
	"time"

	id "healthcommons/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// consent changes, data disclosures, privacy budget spend. Emitted
	// fail-closed and retained long term.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring:
	// denied access, emergency overrides, rejected queries.
	CategorySecurity EventCategory = "security"
)

// Event is the stored and relayed form of every audit record. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// AgentID is the patient or participant whose data or rights are affected.
	AgentID   id.AgentID
	Subject   string
	Action    string
	Purpose   string
	Decision  string
	Reason    string
	RequestID string
	// ActorID tracks who performed the action when different from AgentID,
	// e.g. the researcher running a query or the clinician reading a record.
	ActorID  string
	IP       string
	Severity Severity
}

type AuditEvent string

const (
	// Consent events
	EventConsentGranted  AuditEvent = "consent_granted"
	EventConsentRevoked  AuditEvent = "consent_revoked"
	EventConsentExtended AuditEvent = "consent_extended"
	EventConsentAmended  AuditEvent = "consent_amended"

	// Access events
	EventAccessGranted   AuditEvent = "access_granted"
	EventAccessDenied    AuditEvent = "access_denied"
	EventEmergencyAccess AuditEvent = "emergency_access"

	// Pool events
	EventPoolCreated          AuditEvent = "pool_created"
	EventPoolStatusChanged    AuditEvent = "pool_status_changed"
	EventContributionRecorded AuditEvent = "contribution_recorded"

	// Query and budget events
	EventQueryExecuted AuditEvent = "query_executed"
	EventQueryRejected AuditEvent = "query_rejected"
	EventBudgetRenewed AuditEvent = "budget_renewed"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventConsentGranted:       CategoryCompliance,
	EventConsentRevoked:       CategoryCompliance,
	EventConsentExtended:      CategoryCompliance,
	EventConsentAmended:       CategoryCompliance,
	EventAccessGranted:        CategoryCompliance,
	EventPoolCreated:          CategoryCompliance,
	EventPoolStatusChanged:    CategoryCompliance,
	EventContributionRecorded: CategoryCompliance,
	EventQueryExecuted:        CategoryCompliance,
	EventBudgetRenewed:        CategoryCompliance,

	EventAccessDenied:    CategorySecurity,
	EventEmergencyAccess: CategorySecurity,
	EventQueryRejected:   CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategorySecurity so they are never silently
// routed to the compliance topic.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategorySecurity
}

// ComplianceEvent captures regulatory-significant actions requiring guaranteed persistence.
// Use with the compliance publisher for fail-closed semantics.
type ComplianceEvent struct {
	Timestamp time.Time  // When the event occurred (set automatically if zero)
	AgentID   id.AgentID // The patient affected (required)
	Subject   string     // Consent hash, pool ID or query ID
	Action    string     // The action taken (e.g., "consent_granted")
	Purpose   string     // Purpose of data processing
	Decision  string     // Outcome of the action (e.g., "granted", "executed")
	RequestID string     // Correlation ID for request tracing
	ActorID   string     // Who performed the action if different from AgentID
}

// ToEvent converts to the stored Event form.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:  CategoryCompliance,
		Timestamp: e.Timestamp,
		AgentID:   e.AgentID,
		Subject:   e.Subject,
		Action:    e.Action,
		Purpose:   e.Purpose,
		Decision:  e.Decision,
		RequestID: e.RequestID,
		ActorID:   e.ActorID,
	}
}

// SecurityEvent captures security-relevant actions for SIEM and alerting.
// Events are processed asynchronously with buffering.
type SecurityEvent struct {
	Timestamp time.Time  // When the event occurred (set automatically if zero)
	AgentID   id.AgentID // Patient whose data was targeted, if any
	Subject   string     // Entity involved (requester, pool ID)
	Action    string     // Security action (e.g., "access_denied")
	Reason    string     // Why this happened (e.g., "consent_revoked")
	IP        string     // Client IP address
	RequestID string     // Correlation ID
	ActorID   string     // Actor if different from subject
	Severity  Severity   // "info", "warning", "critical" for SIEM routing
}

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ToEvent converts to the stored Event form.
func (e SecurityEvent) ToEvent() Event {
	return Event{
		Category:  CategorySecurity,
		Timestamp: e.Timestamp,
		AgentID:   e.AgentID,
		Subject:   e.Subject,
		Action:    e.Action,
		Reason:    e.Reason,
		RequestID: e.RequestID,
		ActorID:   e.ActorID,
		IP:        e.IP,
		Severity:  e.Severity,
	}
}

// OutboxEntry is a persisted event waiting to be relayed to the broker.
type OutboxEntry struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Category      EventCategory
	Payload       []byte
	CreatedAt     time.Time
}
