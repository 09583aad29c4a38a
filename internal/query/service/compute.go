package service

import (
	"errors"

	commonsmodels "healthcommons/internal/commons/models"
	"healthcommons/internal/privacy/budget"
	"healthcommons/internal/privacy/mechanism"
	"healthcommons/internal/query/models"
)

var errNoGrid = errors.New("median query has no grid")

// answer is the noisy part of a Result.
type answer struct {
	value    float64
	values   []models.Bucket
	stdErr   *float64
	interval *mechanism.Interval
}

// compute answers req over payloads. Sensitivity is taken as declared; values
// are not clamped.
func compute(src mechanism.Source, req models.Request, payloads []commonsmodels.Payload) (answer, error) {
	p := req.Params
	switch req.Type {
	case models.QueryCount:
		if p.Mechanism == budget.MechanismRandomizedResponse {
			return randomizedCount(src, payloads, p.Epsilon)
		}
		return laplace(src, float64(len(payloads)), p)
	case models.QuerySum:
		return laplace(src, sum(payloads), p)
	case models.QueryAverage:
		mean := 0.0
		if len(payloads) > 0 {
			mean = sum(payloads) / float64(len(payloads))
		}
		if p.Mechanism == budget.MechanismLaplace {
			return laplace(src, mean, p)
		}
		return gaussian(src, mean, p)
	case models.QueryMedian:
		values := make([]float64, len(payloads))
		for i, pl := range payloads {
			values[i] = pl.Value
		}
		if req.Grid == nil {
			return answer{}, errNoGrid
		}
		v, err := mechanism.Median(src, values, p.Epsilon, *req.Grid)
		if err != nil {
			return answer{}, err
		}
		return answer{value: v}, nil
	case models.QueryHistogram:
		return histogram(src, payloads, req.Buckets, p)
	}
	return answer{}, nil
}

func sum(payloads []commonsmodels.Payload) float64 {
	var total float64
	for _, pl := range payloads {
		total += pl.Value
	}
	return total
}

func laplace(src mechanism.Source, truth float64, p budget.Params) (answer, error) {
	scale := mechanism.LaplaceScale(p.Sensitivity, p.Epsilon)
	noise, err := mechanism.Laplace(src, scale)
	if err != nil {
		return answer{}, err
	}
	v := truth + noise
	se := mechanism.LaplaceStandardError(scale)
	ci := mechanism.LaplaceInterval(v, scale)
	return answer{value: v, stdErr: &se, interval: &ci}, nil
}

func gaussian(src mechanism.Source, truth float64, p budget.Params) (answer, error) {
	sigma := mechanism.GaussianSigma(p.Sensitivity, p.Epsilon, p.DeltaValue())
	noise, err := mechanism.Gaussian(src, sigma)
	if err != nil {
		return answer{}, err
	}
	v := truth + noise
	ci := mechanism.GaussianInterval(v, sigma)
	return answer{value: v, stdErr: &sigma, interval: &ci}, nil
}

// randomizedCount counts payloads whose flag is set. Each flag passes through
// randomized response before it is tallied; a missing flag counts as false.
func randomizedCount(src mechanism.Source, payloads []commonsmodels.Payload, epsilon float64) (answer, error) {
	yes := 0
	for _, pl := range payloads {
		reported, err := mechanism.RandomizedResponse(src, pl.Flag != nil && *pl.Flag, epsilon)
		if err != nil {
			return answer{}, err
		}
		if reported {
			yes++
		}
	}
	n := len(payloads)
	v := mechanism.DebiasCount(yes, n, epsilon)
	se := mechanism.RandomizedResponseStandardError(n, epsilon)
	// The debiased count is approximately normal for moderate n.
	ci := mechanism.GaussianInterval(v, se)
	return answer{value: v, stdErr: &se, interval: &ci}, nil
}

// histogram releases a noisy count for every declared bucket, zeros
// included, plus models.OtherBucket for records outside the declared set.
// The released labels depend only on the request. Buckets are disjoint so
// the whole histogram costs a single epsilon. Value is the sum of the noisy
// counts.
func histogram(src mechanism.Source, payloads []commonsmodels.Payload, buckets []string, p budget.Params) (answer, error) {
	labels := append(append(make([]string, 0, len(buckets)+1), buckets...), models.OtherBucket)
	index := make(map[string]int, len(labels))
	for i, label := range labels {
		index[label] = i
	}
	counts := make([]int, len(labels))
	other := len(labels) - 1
	for _, pl := range payloads {
		i, ok := index[pl.Bucket]
		if !ok {
			i = other
		}
		counts[i]++
	}

	scale := mechanism.LaplaceScale(p.Sensitivity, p.Epsilon)
	out := answer{values: make([]models.Bucket, 0, len(labels))}
	for i, label := range labels {
		noise, err := mechanism.Laplace(src, scale)
		if err != nil {
			return answer{}, err
		}
		v := float64(counts[i]) + noise
		out.values = append(out.values, models.Bucket{Label: label, Value: v})
		out.value += v
	}
	se := mechanism.LaplaceStandardError(scale)
	out.stdErr = &se
	return out, nil
}
