package mechanism

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ConfidenceLevel is the two-sided level reported with noisy answers.
const ConfidenceLevel = 0.95

const z95 = 1.959963984540054

// Interval is a confidence interval around a noisy value.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// LaplaceScale is b = sensitivity / epsilon.
func LaplaceScale(sensitivity, epsilon float64) float64 {
	return sensitivity / epsilon
}

// Laplace draws from Laplace(0, scale) by inverse CDF.
func Laplace(src Source, scale float64) (float64, error) {
	u, err := src.Uniform()
	if err != nil {
		return 0, err
	}
	u -= 0.5
	if u < 0 {
		return scale * math.Log1p(2*u), nil
	}
	return -scale * math.Log1p(-2*u), nil
}

// LaplaceInterval is the interval holding the true value with probability
// ConfidenceLevel: ± b·ln(1/(1−level)).
func LaplaceInterval(value, scale float64) Interval {
	half := scale * math.Log(1/(1-ConfidenceLevel))
	return Interval{Lower: value - half, Upper: value + half}
}

// LaplaceStandardError is √2·b.
func LaplaceStandardError(scale float64) float64 {
	return math.Sqrt2 * scale
}

// GaussianSigma is the classic calibration σ = Δ·√(2·ln(1.25/δ))/ε.
func GaussianSigma(sensitivity, epsilon, delta float64) float64 {
	return sensitivity * math.Sqrt(2*math.Log(1.25/delta)) / epsilon
}

// Gaussian draws from N(0, sigma²) using the Box-Muller transform.
func Gaussian(src Source, sigma float64) (float64, error) {
	u1, err := src.Uniform()
	if err != nil {
		return 0, err
	}
	u2, err := src.Uniform()
	if err != nil {
		return 0, err
	}
	return sigma * math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2), nil
}

// GaussianInterval is ±1.96σ.
func GaussianInterval(value, sigma float64) Interval {
	return Interval{Lower: value - z95*sigma, Upper: value + z95*sigma}
}

var errNoCandidates = errors.New("exponential mechanism needs at least one candidate")

// Exponential selects an index with probability ∝ exp(ε·u(i) / (2Δ)).
func Exponential(src Source, utilities []float64, epsilon, sensitivity float64) (int, error) {
	if len(utilities) == 0 {
		return 0, errNoCandidates
	}
	maxU := math.Inf(-1)
	for _, u := range utilities {
		maxU = math.Max(maxU, u)
	}
	weights := make([]float64, len(utilities))
	var total float64
	for i, u := range utilities {
		// Shifting by the max keeps exp() from overflowing and does not change the distribution.
		weights[i] = math.Exp(epsilon * (u - maxU) / (2 * sensitivity))
		total += weights[i]
	}
	r, err := src.Uniform()
	if err != nil {
		return 0, err
	}
	target := r * total
	for i, w := range weights {
		target -= w
		if target <= 0 {
			return i, nil
		}
	}
	return len(weights) - 1, nil
}

// MaxGridPoints bounds the candidate set of a Grid.
const MaxGridPoints = 10_001

var (
	errGridBounds = errors.New("grid needs finite bounds with lower < upper")
	errGridStep   = errors.New("grid step must be positive")
	errGridSize   = fmt.Errorf("grid has more than %d points", MaxGridPoints)
)

// Grid is the analyst-declared output domain of a private median: the points
// Lower, Lower+Step, ... up to Upper.
type Grid struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Step  float64 `json:"step"`
}

func (g Grid) Validate() error {
	if math.IsNaN(g.Lower) || math.IsInf(g.Lower, 0) || math.IsNaN(g.Upper) || math.IsInf(g.Upper, 0) || g.Lower >= g.Upper {
		return errGridBounds
	}
	if math.IsNaN(g.Step) || math.IsInf(g.Step, 0) || g.Step <= 0 {
		return errGridStep
	}
	if (g.Upper-g.Lower)/g.Step >= MaxGridPoints {
		return errGridSize
	}
	return nil
}

// Points lists the grid in ascending order. Call Validate first.
func (g Grid) Points() []float64 {
	// The epsilon absorbs rounding when Step divides the range exactly.
	n := int(math.Floor((g.Upper-g.Lower)/g.Step+1e-9)) + 1
	points := make([]float64, n)
	for i := range points {
		points[i] = g.Lower + float64(i)*g.Step
	}
	return points
}

// Clamp moves v into [Lower, Upper].
func (g Grid) Clamp(v float64) float64 {
	return math.Min(math.Max(v, g.Lower), g.Upper)
}

// Median picks a private median over the points of grid with the exponential
// mechanism. Values are clamped into the grid's range and a point c scores
// −|#{v ≤ c} − n/2|, which one record moves by at most 1. The output is
// always a grid point, never a record value, and the candidate set does not
// depend on the data.
func Median(src Source, values []float64, epsilon float64, grid Grid) (float64, error) {
	if err := grid.Validate(); err != nil {
		return 0, err
	}
	clamped := make([]float64, len(values))
	for i, v := range values {
		clamped[i] = grid.Clamp(v)
	}
	sort.Float64s(clamped)

	points := grid.Points()
	half := float64(len(clamped)) / 2
	utilities := make([]float64, len(points))
	for i, c := range points {
		atOrBelow := sort.Search(len(clamped), func(j int) bool { return clamped[j] > c })
		utilities[i] = -math.Abs(float64(atOrBelow) - half)
	}
	idx, err := Exponential(src, utilities, epsilon, 1)
	if err != nil {
		return 0, err
	}
	return points[idx], nil
}

// KeepProbability is the chance randomized response reports the truth: e^ε/(1+e^ε).
func KeepProbability(epsilon float64) float64 {
	return 1 / (1 + math.Exp(-epsilon))
}

// RandomizedResponse reports truth with KeepProbability and flips it otherwise.
func RandomizedResponse(src Source, truth bool, epsilon float64) (bool, error) {
	u, err := src.Uniform()
	if err != nil {
		return false, err
	}
	if u < KeepProbability(epsilon) {
		return truth, nil
	}
	return !truth, nil
}

// DebiasCount estimates the true number of "yes" answers among n randomized responses.
func DebiasCount(observedYes, n int, epsilon float64) float64 {
	p := KeepProbability(epsilon)
	return (float64(observedYes) - float64(n)*(1-p)) / (2*p - 1)
}

// RandomizedResponseStandardError is the standard error of DebiasCount.
func RandomizedResponseStandardError(n int, epsilon float64) float64 {
	p := KeepProbability(epsilon)
	return math.Sqrt(float64(n)*p*(1-p)) / (2*p - 1)
}
