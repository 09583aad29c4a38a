// Package models holds the differentially-private query request and result types.
package models

import (
	"slices"
	"strings"
	"time"

	"healthcommons/internal/privacy/budget"
	"healthcommons/internal/privacy/mechanism"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	platformstrings "healthcommons/pkg/platform/strings"
)

// QueryType is the aggregate a query computes.
type QueryType string

const (
	QueryCount     QueryType = "count"
	QuerySum       QueryType = "sum"
	QueryAverage   QueryType = "average"
	QueryMedian    QueryType = "median"
	QueryHistogram QueryType = "histogram"
)

func ParseQueryType(raw string) (QueryType, error) {
	t := QueryType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case QueryCount, QuerySum, QueryAverage, QueryMedian, QueryHistogram:
		return t, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown query type %q", raw)
}

// DefaultMechanism is the mechanism a query type uses when none is named.
func (t QueryType) DefaultMechanism() budget.Mechanism {
	switch t {
	case QueryAverage:
		return budget.MechanismGaussian
	case QueryMedian:
		return budget.MechanismExponential
	default:
		return budget.MechanismLaplace
	}
}

// Supports reports whether mechanism m can answer queries of type t.
// Randomized response only answers boolean counts.
func (t QueryType) Supports(m budget.Mechanism) bool {
	switch t {
	case QueryCount:
		return m == budget.MechanismLaplace || m == budget.MechanismRandomizedResponse
	case QuerySum, QueryHistogram:
		return m == budget.MechanismLaplace
	case QueryAverage:
		return m == budget.MechanismGaussian || m == budget.MechanismLaplace
	case QueryMedian:
		return m == budget.MechanismExponential
	}
	return false
}

// OtherBucket collects histogram records whose bucket was not declared.
const OtherBucket = "other"

// MaxBuckets bounds the declared histogram domain.
const MaxBuckets = 1000

// Request asks for one noisy aggregate over a pool. The spend is charged to
// Patient's ledger for the pool. Histograms release exactly Buckets plus
// OtherBucket and medians release a point of Grid, so neither output shape
// depends on the records.
type Request struct {
	PoolID   id.PoolID
	Patient  id.AgentID
	Category id.DataCategory
	Type     QueryType
	Params   budget.Params
	Buckets  []string
	Grid     *mechanism.Grid
}

// Prepared returns r with the mechanism defaulted and checks that the
// combination is answerable.
func (r Request) Prepared() (Request, error) {
	if r.Patient.IsNil() {
		return r, dErrors.New(dErrors.CodeValidation, "patient is required")
	}
	if !r.Category.IsValid() || r.Category == id.CategoryAll {
		return r, dErrors.New(dErrors.CodeValidation, "a single data category is required")
	}
	if r.Params.Mechanism == "" {
		r.Params.Mechanism = r.Type.DefaultMechanism()
	}
	if !r.Params.Mechanism.IsValid() {
		return r, dErrors.Newf(dErrors.CodeValidation, "unknown mechanism %q", r.Params.Mechanism)
	}
	if !r.Type.Supports(r.Params.Mechanism) {
		return r, dErrors.Newf(dErrors.CodeValidation, "%s queries cannot use the %s mechanism", r.Type, r.Params.Mechanism)
	}
	if err := budget.ValidateParams(r.Params); err != nil {
		return r, err
	}
	if err := r.prepareDomain(); err != nil {
		return r, err
	}
	return r, nil
}

func (r *Request) prepareDomain() error {
	if r.Type != QueryHistogram && len(r.Buckets) > 0 {
		return dErrors.New(dErrors.CodeValidation, "buckets only apply to histogram queries")
	}
	if r.Type != QueryMedian && r.Grid != nil {
		return dErrors.New(dErrors.CodeValidation, "a grid only applies to median queries")
	}

	switch r.Type {
	case QueryHistogram:
		r.Buckets = platformstrings.DedupeAndTrim(r.Buckets)
		switch {
		case len(r.Buckets) == 0:
			return dErrors.New(dErrors.CodeValidation, "histogram queries must declare their buckets")
		case len(r.Buckets) > MaxBuckets:
			return dErrors.Newf(dErrors.CodeValidation, "at most %d buckets may be declared", MaxBuckets)
		case slices.Contains(r.Buckets, OtherBucket):
			return dErrors.Newf(dErrors.CodeValidation, "bucket %q is reserved", OtherBucket)
		}
	case QueryMedian:
		if r.Grid == nil {
			return dErrors.New(dErrors.CodeValidation, "median queries must declare lower, upper and step")
		}
		if err := r.Grid.Validate(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
		}
	}
	return nil
}

// Bucket is one noisy histogram bin.
type Bucket struct {
	Label string
	Value float64
}

// Result is a released query answer. Only noisy values ever leave the executor.
type Result struct {
	PoolID             id.PoolID
	Patient            id.AgentID
	Category           id.DataCategory
	Type               QueryType
	Value              float64
	Values             []Bucket
	EpsilonConsumed    float64
	DeltaConsumed      float64
	StandardError      *float64
	ConfidenceInterval *mechanism.Interval
	Mechanism          budget.Mechanism
	Contributors       int
	ExecutedAt         time.Time
	Budget             budget.Status
}
