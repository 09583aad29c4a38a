package budget

import (
	"math"

	dErrors "healthcommons/pkg/domain-errors"
)

// CompositionMethod selects how per-query losses accumulate on a ledger.
type CompositionMethod string

const (
	CompositionBasic    CompositionMethod = "basic"
	CompositionAdvanced CompositionMethod = "advanced"
)

// Composition is fixed when a ledger entry is created.
//
// Basic: loss_ε = Σεᵢ, loss_δ = Σδᵢ.
//
// Advanced(δ′), heterogeneous advanced composition:
//
//	loss_ε = min(Σεᵢ, √(2·ln(1/δ′)·Σεᵢ²) + Σεᵢ(e^εᵢ − 1))
//	loss_δ = Σδᵢ + δ′
//
// For k equal epsilons this is the familiar √(2k·ln(1/δ′))·ε + kε(e^ε − 1).
type Composition struct {
	Method     CompositionMethod `json:"method"`
	DeltaPrime float64           `json:"delta_prime,omitempty"`
}

func Basic() Composition {
	return Composition{Method: CompositionBasic}
}

func Advanced(deltaPrime float64) Composition {
	return Composition{Method: CompositionAdvanced, DeltaPrime: deltaPrime}
}

// Validate checks the composition against the delta budget it will draw from.
func (c Composition) Validate(totalDelta float64) error {
	switch c.Method {
	case CompositionBasic:
		return nil
	case CompositionAdvanced:
		if math.IsNaN(c.DeltaPrime) || c.DeltaPrime <= 0 || c.DeltaPrime >= totalDelta {
			return dErrors.New(dErrors.CodeInvalidDelta, "advanced composition requires 0 < δ′ < delta budget")
		}
		return nil
	default:
		return dErrors.New(dErrors.CodeValidation, "composition must be basic or advanced")
	}
}

// ComposeEpsilon returns the total epsilon loss of history.
func (c Composition) ComposeEpsilon(history []float64) float64 {
	var sum, sumSq, drift float64
	for _, eps := range history {
		sum += eps
		sumSq += eps * eps
		drift += eps * math.Expm1(eps)
	}
	if c.Method != CompositionAdvanced || len(history) == 0 {
		return sum
	}
	advanced := math.Sqrt(2*math.Log(1/c.DeltaPrime)*sumSq) + drift
	return math.Min(sum, advanced)
}

// ComposeDelta returns the total delta loss given the summed per-query deltas
// and the number of queries composed.
func (c Composition) ComposeDelta(deltaSum float64, queries int) float64 {
	if c.Method == CompositionAdvanced && queries > 0 {
		return deltaSum + c.DeltaPrime
	}
	return deltaSum
}
