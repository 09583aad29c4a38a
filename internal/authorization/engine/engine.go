// Package engine evaluates access requests against a patient's consents. It
// is pure: callers supply the consents and the clock.
package engine

import (
	"strings"
	"time"

	authzmodel "healthcommons/internal/authorization/models"
	consentmodel "healthcommons/internal/consent/models"
	dErrors "healthcommons/pkg/domain-errors"
)

// Evaluate decides req against the consents the patient has granted. A
// denial returns the decision together with a domain error describing it.
//
// Order of checks:
//  1. self-access is always authorized;
//  2. emergency requests without justification are rejected;
//  3. the effective matching consent with the latest valid_from authorizes;
//  4. an emergency request with justification is authorized as an override;
//  5. otherwise the most recent non-effective match explains the denial.
func Evaluate(req authzmodel.AccessRequest, consents []*consentmodel.Consent, now time.Time) (authzmodel.Decision, error) {
	if req.Requester == req.Patient {
		return authzmodel.Decision{Authorized: true, Reason: authzmodel.ReasonSelfAccess}, nil
	}
	if req.Emergency && strings.TrimSpace(req.Justification) == "" {
		return authzmodel.Decision{Reason: authzmodel.ReasonJustificationRequired},
			dErrors.New(dErrors.CodeJustificationRequired, "emergency access requires a justification")
	}

	var effective, stale *consentmodel.Consent
	for _, c := range consents {
		if !matches(c, req) {
			continue
		}
		if c.IsEffective(now) {
			if effective == nil || c.ValidFrom.After(effective.ValidFrom) {
				effective = c
			}
			continue
		}
		// Superseded versions are history, not the current state of a grant.
		if c.IsSuperseded() {
			continue
		}
		if stale == nil || c.ValidFrom.After(stale.ValidFrom) {
			stale = c
		}
	}

	if effective != nil {
		return authzmodel.Decision{
			Authorized:  true,
			ConsentHash: effective.Hash,
			Reason:      authzmodel.ReasonConsent,
			ExpiresAt:   effective.ValidUntil,
		}, nil
	}
	if req.Emergency {
		return authzmodel.Decision{
			Authorized:        true,
			Reason:            authzmodel.ReasonEmergencyOverride,
			EmergencyOverride: true,
		}, nil
	}
	return deny(stale, now)
}

func matches(c *consentmodel.Consent, req authzmodel.AccessRequest) bool {
	return c.Grantor == req.Patient &&
		c.Grantee.Matches(req.Requester, req.Roles, req.Emergency) &&
		c.Covers(req.Category) &&
		c.Permits(req.Permission, req.Emergency)
}

func deny(stale *consentmodel.Consent, now time.Time) (authzmodel.Decision, error) {
	switch {
	case stale == nil:
		return authzmodel.Decision{Reason: authzmodel.ReasonNoConsent},
			dErrors.New(dErrors.CodeUnauthorized, "no consent covers this request")
	case stale.IsRevoked():
		return authzmodel.Decision{ConsentHash: stale.Hash, Reason: authzmodel.ReasonConsentRevoked},
			dErrors.New(dErrors.CodeConsentRevoked, "the matching consent was revoked")
	case stale.IsExpired(now):
		return authzmodel.Decision{ConsentHash: stale.Hash, Reason: authzmodel.ReasonConsentExpired},
			dErrors.New(dErrors.CodeConsentExpired, "the matching consent has expired")
	default:
		return authzmodel.Decision{ConsentHash: stale.Hash, Reason: authzmodel.ReasonNoConsent},
			dErrors.New(dErrors.CodeUnauthorized, "the matching consent is not yet valid")
	}
}
