package domain

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	dErrors "healthcommons/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so the compiler rejects passing a pool
// ID where an agent ID is expected.
type (
	// AgentID identifies a participant: a patient, clinician, researcher or service.
	AgentID uuid.UUID
	// PoolID identifies a data pool.
	PoolID uuid.UUID
	// ContributionID identifies a single contribution to a pool.
	ContributionID uuid.UUID
	// AccessLogID identifies an access attempt log row.
	AccessLogID uuid.UUID
)

func (a AgentID) String() string        { return uuid.UUID(a).String() }
func (a AgentID) IsNil() bool           { return uuid.UUID(a) == uuid.Nil }
func (p PoolID) String() string         { return uuid.UUID(p).String() }
func (p PoolID) IsNil() bool            { return uuid.UUID(p) == uuid.Nil }
func (c ContributionID) String() string { return uuid.UUID(c).String() }
func (c ContributionID) IsNil() bool    { return uuid.UUID(c) == uuid.Nil }
func (l AccessLogID) String() string    { return uuid.UUID(l).String() }
func (l AccessLogID) IsNil() bool       { return uuid.UUID(l) == uuid.Nil }

// MarshalText lets typed IDs appear as JSON strings and map keys.
func (a AgentID) MarshalText() ([]byte, error) { return []byte(a.String()), nil }
func (p PoolID) MarshalText() ([]byte, error)  { return []byte(p.String()), nil }

func (a *AgentID) UnmarshalText(b []byte) error {
	v, err := ParseAgentID(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (p *PoolID) UnmarshalText(b []byte) error {
	v, err := ParsePoolID(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParseAgentID parses an agent identifier at a trust boundary.
func ParseAgentID(s string) (AgentID, error) {
	u, err := parseUUID(s, "agent id")
	return AgentID(u), err
}

// ParsePoolID parses a pool identifier at a trust boundary.
func ParsePoolID(s string) (PoolID, error) {
	u, err := parseUUID(s, "pool id")
	return PoolID(u), err
}

// ParseContributionID parses a contribution identifier.
func ParseContributionID(s string) (ContributionID, error) {
	u, err := parseUUID(s, "contribution id")
	return ContributionID(u), err
}

// ParseAccessLogID parses an access log identifier.
func ParseAccessLogID(s string) (AccessLogID, error) {
	u, err := parseUUID(s, "access log id")
	return AccessLogID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}

// Hash is the content address of an immutable record: lowercase hex SHA-256.
type Hash string

// HashLength is the length of a hex encoded SHA-256 digest.
const HashLength = 64

// ParseHash validates a content address from external input.
func ParseHash(s string) (Hash, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "hash cannot be empty")
	}
	if len(s) != HashLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid hash")
	}
	s = strings.ToLower(s)
	if _, err := hex.DecodeString(s); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid hash")
	}
	return Hash(s), nil
}

func (h Hash) String() string { return string(h) }
func (h Hash) IsNil() bool    { return h == "" }

func (c ContributionID) MarshalText() ([]byte, error) { return []byte(c.String()), nil }
func (l AccessLogID) MarshalText() ([]byte, error)    { return []byte(l.String()), nil }
