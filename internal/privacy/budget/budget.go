// Package budget holds the pure privacy-budget rules: status derivation,
// parameter and query validation, planning helpers and composition. Nothing in
// here touches storage, so the client SDK runs the exact same checks before a
// request leaves the process.
package budget

import (
	"fmt"
	"math"

	dErrors "healthcommons/pkg/domain-errors"
)

const (
	// MinEpsilon is the floor below which remaining budget counts as exhausted.
	MinEpsilon = 1e-10
	// MaxDelta is the largest per-query delta accepted.
	MaxDelta = 0.01
	// MaxPerQuery is the largest per-query epsilon accepted.
	MaxPerQuery = 10.0
)

// Mechanism names the noise mechanism a query uses.
type Mechanism string

const (
	MechanismLaplace            Mechanism = "laplace"
	MechanismGaussian           Mechanism = "gaussian"
	MechanismExponential        Mechanism = "exponential"
	MechanismRandomizedResponse Mechanism = "randomized_response"
)

func (m Mechanism) IsValid() bool {
	switch m {
	case MechanismLaplace, MechanismGaussian, MechanismExponential, MechanismRandomizedResponse:
		return true
	}
	return false
}

// Params are the privacy parameters of one query.
type Params struct {
	Epsilon     float64
	Delta       *float64
	Sensitivity float64
	Mechanism   Mechanism
}

// DeltaValue returns the delta or zero when unset.
func (p Params) DeltaValue() float64 {
	if p.Delta == nil {
		return 0
	}
	return *p.Delta
}

// Ledger is the input view CalculateStatus derives from. Consumed values are
// already composed according to the ledger's composition method.
type Ledger struct {
	TotalEpsilon    float64
	ConsumedEpsilon float64
	TotalDelta      float64
	ConsumedDelta   float64
	QueryCount      int64
}

// Status is the derived budget state.
type Status struct {
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

// CalculateStatus derives the status of a ledger.
func CalculateStatus(l Ledger) Status {
	remaining := math.Max(0, l.TotalEpsilon-l.ConsumedEpsilon)
	percent := 0.0
	if l.TotalEpsilon > 0 {
		percent = remaining / l.TotalEpsilon * 100
	}
	return Status{
		Total:            l.TotalEpsilon,
		Consumed:         l.ConsumedEpsilon,
		Remaining:        remaining,
		TotalDelta:       l.TotalDelta,
		ConsumedDelta:    l.ConsumedDelta,
		RemainingDelta:   math.Max(0, l.TotalDelta-l.ConsumedDelta),
		QueriesAnswered:  l.QueryCount,
		IsExhausted:      remaining < MinEpsilon,
		PercentRemaining: percent,
	}
}

func validEpsilon(eps float64) bool {
	return !math.IsNaN(eps) && !math.IsInf(eps, 0) && eps > 0
}

// ValidateParams checks query parameters independently of any ledger.
func ValidateParams(p Params) error {
	if !validEpsilon(p.Epsilon) {
		return dErrors.New(dErrors.CodeInvalidEpsilon, "epsilon must be a positive finite number")
	}
	if p.Mechanism == MechanismGaussian && p.Delta == nil {
		return dErrors.New(dErrors.CodeInvalidDelta, "gaussian mechanism requires delta")
	}
	if p.Delta != nil {
		d := *p.Delta
		if math.IsNaN(d) || d < 0 || d >= 1 {
			return dErrors.New(dErrors.CodeInvalidDelta, "delta must be in [0, 1)")
		}
		if d > MaxDelta {
			return dErrors.Newf(dErrors.CodeInvalidDelta, "delta must not exceed %g", MaxDelta)
		}
		if p.Mechanism == MechanismGaussian && d == 0 {
			return dErrors.New(dErrors.CodeInvalidDelta, "gaussian mechanism requires a positive delta")
		}
	}
	if math.IsNaN(p.Sensitivity) || math.IsInf(p.Sensitivity, 0) || p.Sensitivity <= 0 {
		return dErrors.New(dErrors.CodeInvalidSensitivity, "sensitivity bound must be positive")
	}
	return nil
}

// ValidateQuery checks that status can pay for a query spending epsilon.
// Budget denials carry the percent remaining as metadata.
func ValidateQuery(status Status, epsilon float64) error {
	if !validEpsilon(epsilon) {
		return dErrors.New(dErrors.CodeInvalidEpsilon, "epsilon must be a positive finite number")
	}
	if epsilon > MaxPerQuery {
		return dErrors.Newf(dErrors.CodeInvalidEpsilon, "epsilon must not exceed %g per query", MaxPerQuery)
	}
	if status.IsExhausted {
		return dErrors.New(dErrors.CodeBudgetExhausted, "privacy budget exhausted").
			WithMeta(dErrors.MetaPercentRemaining, status.PercentRemaining)
	}
	if epsilon > status.Remaining {
		return dErrors.New(dErrors.CodeInsufficientBudget,
			fmt.Sprintf("insufficient budget: requested %g, remaining %g", epsilon, status.Remaining)).
			WithMeta(dErrors.MetaPercentRemaining, status.PercentRemaining)
	}
	return nil
}

// EstimateRemainingQueries returns how many queries of epsilon still fit.
func EstimateRemainingQueries(status Status, epsilon float64) int64 {
	if !validEpsilon(epsilon) || status.IsExhausted {
		return 0
	}
	return int64(math.Floor(status.Remaining / epsilon))
}

// CalculateOptimalEpsilon splits the remaining budget evenly over desiredQueries.
func CalculateOptimalEpsilon(status Status, desiredQueries int) float64 {
	if desiredQueries <= 0 || status.IsExhausted {
		return 0
	}
	eps := status.Remaining / float64(desiredQueries)
	return math.Min(math.Max(eps, 0), MaxPerQuery)
}

// SimulateConsumption applies epsilons in order under basic composition,
// skipping non-positive values and stopping at the first one that would
// overflow the total. It returns the resulting status and how many were admitted.
func SimulateConsumption(status Status, epsilons []float64) (Status, int) {
	consumed := status.Consumed
	queries := status.QueriesAnswered
	admitted := 0
	for _, eps := range epsilons {
		if !validEpsilon(eps) {
			continue
		}
		if consumed+eps > status.Total {
			break
		}
		consumed += eps
		queries++
		admitted++
	}
	return CalculateStatus(Ledger{
		TotalEpsilon:    status.Total,
		ConsumedEpsilon: consumed,
		TotalDelta:      status.TotalDelta,
		ConsumedDelta:   status.ConsumedDelta,
		QueryCount:      queries,
	}), admitted
}

// Severity is the UI band for a budget.
type Severity string

const (
	SeverityHealthy  Severity = "healthy"
	SeverityCaution  Severity = "caution"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// DisplayInfo is what a client shows next to a budget.
type DisplayInfo struct {
	Severity       Severity `json:"severity"`
	CanQuery       bool     `json:"can_query"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// GetDisplayInfo maps a status to a severity band.
func GetDisplayInfo(status Status) DisplayInfo {
	switch {
	case status.IsExhausted:
		return DisplayInfo{
			Severity:       SeverityCritical,
			Recommendation: "Privacy budget exhausted. No further queries can run until the budget period renews.",
		}
	case status.PercentRemaining >= 50:
		return DisplayInfo{Severity: SeverityHealthy, CanQuery: true}
	case status.PercentRemaining >= 25:
		return DisplayInfo{
			Severity:       SeverityCaution,
			CanQuery:       true,
			Recommendation: "Less than half of the privacy budget remains. Prefer smaller epsilon values.",
		}
	case status.PercentRemaining >= 10:
		return DisplayInfo{
			Severity:       SeverityWarning,
			CanQuery:       true,
			Recommendation: "Privacy budget is running low. Reserve it for essential queries.",
		}
	default:
		return DisplayInfo{
			Severity:       SeverityCritical,
			CanQuery:       true,
			Recommendation: "Privacy budget is nearly exhausted. Only a few low-epsilon queries remain.",
		}
	}
}

// BudgetCheck is the result of CheckQueryBudget.
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

// CheckQueryBudget reports whether a query of (epsilon, delta) fits and by how much it falls short.
func CheckQueryBudget(status Status, epsilon, delta float64) BudgetCheck {
	check := BudgetCheck{
		RemainingEpsilon: status.Remaining,
		RemainingDelta:   status.RemainingDelta,
		RequiredEpsilon:  epsilon,
		RequiredDelta:    delta,
		ShortfallEpsilon: math.Max(0, epsilon-status.Remaining),
		ShortfallDelta:   math.Max(0, delta-status.RemainingDelta),
		PercentRemaining: status.PercentRemaining,
		EstimatedQueries: EstimateRemainingQueries(status, epsilon),
	}
	check.CanExecute = ValidateQuery(status, epsilon) == nil && check.ShortfallDelta == 0
	return check
}
