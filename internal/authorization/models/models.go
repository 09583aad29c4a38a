// Package models holds the authorization request, decision and access log types.
package models

import (
	"time"

	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
)

// Reasons reported on decisions and access logs.
const (
	ReasonSelfAccess            = "self-access"
	ReasonConsent               = "consent"
	ReasonEmergencyOverride     = "emergency override"
	ReasonNoConsent             = "no matching consent"
	ReasonConsentExpired        = "consent expired"
	ReasonConsentRevoked        = "consent revoked"
	ReasonJustificationRequired = "justification required"
	ReasonLookupFailed          = "consent lookup failed"
)

// AccessRequest asks whether requester may apply permission to the
// patient's data in category.
type AccessRequest struct {
	Patient       id.AgentID
	Requester     id.AgentID
	Roles         []string
	Category      id.DataCategory
	Permission    id.Permission
	Emergency     bool
	Justification string
}

func (r AccessRequest) Validate() error {
	if r.Patient.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "patient is required")
	}
	if r.Requester.IsNil() {
		return dErrors.New(dErrors.CodeUnauthenticated, "requester is required")
	}
	if !r.Category.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid data category")
	}
	if !r.Permission.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid permission")
	}
	return nil
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Authorized        bool
	ConsentHash       id.Hash
	Reason            string
	ExpiresAt         *time.Time
	EmergencyOverride bool
}

// Outcome of a logged access attempt.
type Outcome string

const (
	OutcomeGranted Outcome = "granted"
	OutcomeDenied  Outcome = "denied"
)

// AccessLog is the immutable record written for every authorization check.
type AccessLog struct {
	ID                id.AccessLogID
	Patient           id.AgentID
	Requester         id.AgentID
	Category          id.DataCategory
	Permission        id.Permission
	Outcome           Outcome
	Reason            string
	ConsentHash       id.Hash
	EmergencyOverride bool
	Justification     string
	ClientIP          string
	ClientSummary     string
	RequestID         string
	AccessedAt        time.Time
}

// LogFilter narrows an access log listing. Zero values do not filter.
type LogFilter struct {
	From     time.Time
	To       time.Time
	Accessor id.AgentID
	Limit    int
}

func (f LogFilter) Matches(l *AccessLog) bool {
	if !f.From.IsZero() && l.AccessedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !l.AccessedAt.Before(f.To) {
		return false
	}
	if !f.Accessor.IsNil() && l.Requester != f.Accessor {
		return false
	}
	return true
}
