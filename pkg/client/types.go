package client

import (
	"time"

	"healthcommons/internal/privacy/mechanism"
	id "healthcommons/pkg/domain"
)

// Grantee names who a consent is granted to: an agent or a role.
type Grantee struct {
	Kind  string     `json:"kind"`
	Agent id.AgentID `json:"agent,omitzero"`
	Role  string     `json:"role,omitempty"`
}

type GrantConsentRequest struct {
	Grantee        Grantee    `json:"grantee"`
	Scope          string     `json:"scope"`
	Permissions    []string   `json:"permissions,omitempty"`
	DataCategories []string   `json:"data_categories"`
	Exclusions     []string   `json:"exclusions,omitempty"`
	Purpose        string     `json:"purpose"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
}

type UpdateScopeRequest struct {
	Scope          string   `json:"scope"`
	Permissions    []string `json:"permissions,omitempty"`
	DataCategories []string `json:"data_categories"`
	Exclusions     []string `json:"exclusions,omitempty"`
}

type Consent struct {
	Hash             id.Hash    `json:"hash"`
	Grantor          string     `json:"grantor"`
	Grantee          Grantee    `json:"grantee"`
	Scope            string     `json:"scope"`
	Permissions      []string   `json:"permissions,omitempty"`
	DataCategories   []string   `json:"data_categories"`
	Exclusions       []string   `json:"exclusions,omitempty"`
	Purpose          string     `json:"purpose"`
	ValidFrom        time.Time  `json:"valid_from"`
	ValidUntil       *time.Time `json:"valid_until,omitempty"`
	IsActive         bool       `json:"is_active"`
	IsEffective      bool       `json:"is_effective"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevocationReason string     `json:"revocation_reason,omitempty"`
	SupersededBy     id.Hash    `json:"superseded_by,omitempty"`
	Version          int        `json:"version"`
	PreviousHash     id.Hash    `json:"previous_hash,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type AuthorizationRequest struct {
	Patient       id.AgentID `json:"patient"`
	Category      string     `json:"category"`
	Permission    string     `json:"permission"`
	Emergency     bool       `json:"emergency"`
	Justification string     `json:"justification,omitempty"`
}

type Decision struct {
	Authorized        bool       `json:"authorized"`
	ConsentHash       id.Hash    `json:"consent_hash,omitempty"`
	Reason            string     `json:"reason"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	EmergencyOverride bool       `json:"emergency_override"`
}

// AccessLogFilter narrows GET /patients/me/access-logs. Zero values are omitted.
type AccessLogFilter struct {
	From     time.Time
	To       time.Time
	Accessor id.AgentID
	Limit    int
}

type AccessLog struct {
	ID                string    `json:"id"`
	Requester         string    `json:"requester"`
	Category          string    `json:"category"`
	Permission        string    `json:"permission"`
	Outcome           string    `json:"outcome"`
	Reason            string    `json:"reason"`
	ConsentHash       id.Hash   `json:"consent_hash,omitempty"`
	EmergencyOverride bool      `json:"emergency_override"`
	Justification     string    `json:"justification,omitempty"`
	ClientIP          string    `json:"client_ip,omitempty"`
	ClientSummary     string    `json:"client_summary,omitempty"`
	AccessedAt        time.Time `json:"accessed_at"`
}

type AccessorSummary struct {
	Accessor   string    `json:"accessor"`
	Granted    int       `json:"granted"`
	Denied     int       `json:"denied"`
	Emergency  int       `json:"emergency"`
	Categories []string  `json:"categories"`
	LastAccess time.Time `json:"last_access"`
}

type DisclosureReport struct {
	Patient   string            `json:"patient"`
	From      time.Time         `json:"from"`
	To        time.Time         `json:"to"`
	Accessors []AccessorSummary `json:"accessors"`
}

type Composition struct {
	Method     string  `json:"method"`
	DeltaPrime float64 `json:"delta_prime,omitempty"`
}

type CreatePoolRequest struct {
	Name                 string       `json:"name"`
	Description          string       `json:"description,omitempty"`
	DataCategories       []string     `json:"data_categories"`
	RequiredConsentLevel string       `json:"required_consent_level,omitempty"`
	DefaultEpsilon       float64      `json:"default_epsilon"`
	BudgetPerUser        float64      `json:"budget_per_user"`
	DeltaBudget          float64      `json:"delta_budget,omitempty"`
	GovernanceModel      string       `json:"governance_model,omitempty"`
	Composition          *Composition `json:"composition,omitempty"`
	MinContributors      int          `json:"min_contributors,omitempty"`
}

type Pool struct {
	ID                   id.PoolID   `json:"id"`
	Name                 string      `json:"name"`
	Description          string      `json:"description,omitempty"`
	DataCategories       []string    `json:"data_categories"`
	RequiredConsentLevel string      `json:"required_consent_level"`
	DefaultEpsilon       float64     `json:"default_epsilon"`
	BudgetPerUser        float64     `json:"budget_per_user"`
	DeltaBudget          float64     `json:"delta_budget"`
	GovernanceModel      string      `json:"governance_model"`
	Composition          Composition `json:"composition"`
	MinContributors      int         `json:"min_contributors"`
	Status               string      `json:"status"`
	IsActive             bool        `json:"is_active"`
	Creator              string      `json:"creator"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

type Payload struct {
	Value  float64 `json:"value"`
	Flag   *bool   `json:"flag,omitempty"`
	Bucket string  `json:"bucket,omitempty"`
}

type ContributeRequest struct {
	Category    string  `json:"category"`
	ConsentHash id.Hash `json:"consent_hash"`
	Payload     Payload `json:"payload"`
	// LocalEpsilon is the privacy loss of noise the caller already added to
	// Payload. The server stores the payload as sent and only debits this
	// amount; it never perturbs values itself.
	LocalEpsilon float64 `json:"local_epsilon,omitempty"`
}

type Contribution struct {
	ID             string    `json:"id"`
	PoolID         id.PoolID `json:"pool_id"`
	Category       string    `json:"category"`
	PayloadHash    id.Hash   `json:"payload_hash"`
	ConsentHash    id.Hash   `json:"consent_hash"`
	BudgetConsumed float64   `json:"budget_consumed"`
	CreatedAt      time.Time `json:"created_at"`
}

type BudgetStatus struct {
	Total            float64 `json:"total"`
	Consumed         float64 `json:"consumed"`
	Remaining        float64 `json:"remaining"`
	TotalDelta       float64 `json:"total_delta"`
	ConsumedDelta    float64 `json:"consumed_delta"`
	RemainingDelta   float64 `json:"remaining_delta"`
	QueriesAnswered  int64   `json:"queries_answered"`
	IsExhausted      bool    `json:"is_exhausted"`
	PercentRemaining float64 `json:"percent_remaining"`
}

type BudgetDisplay struct {
	Severity       string `json:"severity"`
	CanQuery       bool   `json:"can_query"`
	Recommendation string `json:"recommendation,omitempty"`
}

type Budget struct {
	Patient           string        `json:"patient"`
	PoolID            string        `json:"pool_id"`
	Status            BudgetStatus  `json:"status"`
	Display           BudgetDisplay `json:"display"`
	CompositionMethod string        `json:"composition_method"`
	PeriodStart       time.Time     `json:"period_start"`
	PeriodEnd         time.Time     `json:"period_end"`
	AutoRenew         bool          `json:"auto_renew"`
}

type BudgetCheck struct {
	CanExecute       bool    `json:"can_execute"`
	RemainingEpsilon float64 `json:"remaining_epsilon"`
	RemainingDelta   float64 `json:"remaining_delta"`
	RequiredEpsilon  float64 `json:"required_epsilon"`
	RequiredDelta    float64 `json:"required_delta"`
	ShortfallEpsilon float64 `json:"shortfall_epsilon"`
	ShortfallDelta   float64 `json:"shortfall_delta"`
	PercentRemaining float64 `json:"percent_remaining"`
	EstimatedQueries int64   `json:"estimated_queries"`
}

// QueryRequest asks for a noisy aggregate. Patient defaults to the caller on
// the server; the advisory budget check always reads the caller's budget.
// Histograms must declare Buckets; anything else lands in "other". Medians
// must carry a Grid, and the answer is one of its points.
type QueryRequest struct {
	Patient     *id.AgentID     `json:"patient,omitempty"`
	Category    string          `json:"category"`
	QueryType   string          `json:"query_type"`
	Epsilon     float64         `json:"epsilon"`
	Delta       *float64        `json:"delta,omitempty"`
	Sensitivity float64         `json:"sensitivity"`
	Mechanism   string          `json:"mechanism,omitempty"`
	Buckets     []string        `json:"buckets,omitempty"`
	Grid        *mechanism.Grid `json:"grid,omitempty"`
}

type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

type Bucket struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type QueryResult struct {
	PoolID             id.PoolID    `json:"pool_id"`
	Patient            string       `json:"patient"`
	Category           string       `json:"category"`
	QueryType          string       `json:"query_type"`
	Value              float64      `json:"value"`
	Values             []Bucket     `json:"values,omitempty"`
	EpsilonConsumed    float64      `json:"epsilon_consumed"`
	DeltaConsumed      float64      `json:"delta_consumed"`
	StandardError      *float64     `json:"standard_error,omitempty"`
	ConfidenceInterval *Interval    `json:"confidence_interval,omitempty"`
	ConfidenceLevel    float64      `json:"confidence_level,omitempty"`
	Mechanism          string       `json:"mechanism"`
	ContributorCount   int          `json:"contributor_count"`
	ExecutedAt         time.Time    `json:"executed_at"`
	Budget             BudgetStatus `json:"budget"`
}
