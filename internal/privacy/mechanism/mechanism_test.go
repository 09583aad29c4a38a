package mechanism

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequence replays fixed uniforms.
type sequence struct {
	values []float64
	i      int
}

func (s *sequence) Uniform() (float64, error) {
	v := s.values[s.i%len(s.values)]
	s.i++
	return v, nil
}

func TestCryptoSourceRange(t *testing.T) {
	src := CryptoSource{}
	for range 1000 {
		u, err := src.Uniform()
		require.NoError(t, err)
		assert.Greater(t, u, 0.0)
		assert.Less(t, u, 1.0)
	}
}

func TestLaplace(t *testing.T) {
	t.Run("median draw is zero", func(t *testing.T) {
		v, err := Laplace(&sequence{values: []float64{0.5}}, 2)
		require.NoError(t, err)
		assert.Equal(t, 0.0, v)
	})

	t.Run("inverse cdf is symmetric", func(t *testing.T) {
		lo, _ := Laplace(&sequence{values: []float64{0.25}}, 1)
		hi, _ := Laplace(&sequence{values: []float64{0.75}}, 1)
		assert.InDelta(t, -math.Ln2, lo, 1e-12)
		assert.InDelta(t, math.Ln2, hi, 1e-12)
	})

	t.Run("empirical scale matches", func(t *testing.T) {
		src := CryptoSource{}
		const n = 20000
		var sumAbs float64
		for range n {
			v, err := Laplace(src, 3)
			require.NoError(t, err)
			sumAbs += math.Abs(v)
		}
		// E|X| = b for Laplace(0, b).
		assert.InDelta(t, 3.0, sumAbs/n, 0.15)
	})

	t.Run("interval and standard error", func(t *testing.T) {
		iv := LaplaceInterval(10, 1)
		assert.InDelta(t, 10-math.Log(20), iv.Lower, 1e-12)
		assert.InDelta(t, 10+math.Log(20), iv.Upper, 1e-12)
		assert.InDelta(t, math.Sqrt2*2, LaplaceStandardError(2), 1e-12)
	})
}

func TestGaussian(t *testing.T) {
	sigma := GaussianSigma(1, 1, 1e-5)
	assert.InDelta(t, math.Sqrt(2*math.Log(1.25e5)), sigma, 1e-12)

	src := CryptoSource{}
	const n = 20000
	var sum, sumSq float64
	for range n {
		v, err := Gaussian(src, 2)
		require.NoError(t, err)
		sum += v
		sumSq += v * v
	}
	mean := sum / n
	assert.InDelta(t, 0, mean, 0.1)
	assert.InDelta(t, 2, math.Sqrt(sumSq/n-mean*mean), 0.1)

	iv := GaussianInterval(0, 1)
	assert.InDelta(t, -1.96, iv.Lower, 1e-3)
}

func TestExponentialPrefersHighUtility(t *testing.T) {
	src := CryptoSource{}
	counts := make([]int, 3)
	for range 2000 {
		i, err := Exponential(src, []float64{0, -0.5, -1}, 4, 1)
		require.NoError(t, err)
		counts[i]++
	}
	assert.Greater(t, counts[0], counts[1])
	assert.Greater(t, counts[1], counts[2])

	_, err := Exponential(src, nil, 1, 1)
	assert.Error(t, err)
}

func TestMedianStaysOnTheGrid(t *testing.T) {
	grid := Grid{Lower: 0, Upper: 200, Step: 2.5}
	onGrid := func(v float64) bool {
		steps := (v - grid.Lower) / grid.Step
		return v >= grid.Lower && v <= grid.Upper && math.Abs(steps-math.Round(steps)) < 1e-9
	}

	tests := map[string][]float64{
		"values between points": {9.1, 1.3, 5.7, 3.9, 7.2},
		"values out of range":   {-40, 350, 1e9, -1e9},
		"no values":             nil,
	}
	for name, values := range tests {
		t.Run(name, func(t *testing.T) {
			for range 200 {
				m, err := Median(CryptoSource{}, values, 0.5, grid)
				require.NoError(t, err)
				assert.True(t, onGrid(m), "median %v is not a grid point", m)
			}
		})
	}
}

func TestMedianConcentratesNearTheTrueMedian(t *testing.T) {
	values := make([]float64, 101)
	for i := range values {
		values[i] = float64(i)
	}
	grid := Grid{Lower: 0, Upper: 100, Step: 1}
	near := 0
	for range 200 {
		m, err := Median(CryptoSource{}, values, 5, grid)
		require.NoError(t, err)
		if math.Abs(m-50) <= 5 {
			near++
		}
	}
	assert.Greater(t, near, 180)
}

func TestGridValidate(t *testing.T) {
	tests := []struct {
		name string
		grid Grid
		ok   bool
	}{
		{name: "valid", grid: Grid{Lower: 0, Upper: 10, Step: 0.5}, ok: true},
		{name: "inverted", grid: Grid{Lower: 10, Upper: 0, Step: 1}},
		{name: "zero step", grid: Grid{Lower: 0, Upper: 10}},
		{name: "infinite bound", grid: Grid{Lower: math.Inf(-1), Upper: 10, Step: 1}},
		{name: "too many points", grid: Grid{Lower: 0, Upper: 1e6, Step: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.grid.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	points := Grid{Lower: 1, Upper: 2, Step: 0.25}.Points()
	assert.Equal(t, []float64{1, 1.25, 1.5, 1.75, 2}, points)
}

func TestRandomizedResponse(t *testing.T) {
	keep := KeepProbability(math.Log(3))
	assert.InDelta(t, 0.75, keep, 1e-12)

	truth, _ := RandomizedResponse(&sequence{values: []float64{0.1}}, true, math.Log(3))
	assert.True(t, truth)
	flipped, _ := RandomizedResponse(&sequence{values: []float64{0.9}}, true, math.Log(3))
	assert.False(t, flipped)

	// 100 respondents, 60 true: expected observed = 60·0.75 + 40·0.25 = 55.
	assert.InDelta(t, 60, DebiasCount(55, 100, math.Log(3)), 1e-9)
	assert.Greater(t, RandomizedResponseStandardError(100, math.Log(3)), 0.0)
}
