// Package stats holds the numeric summaries used by the corpus analyzer.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Summary describes a distribution of values. Std is the population
// standard deviation.
type Summary struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Q25    float64 `json:"q25"`
	Q75    float64 `json:"q75"`
}

// Summarize computes a Summary. An empty input yields the zero Summary.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mean, std := MeanStd(sorted)
	return Summary{
		Mean:   mean,
		Std:    std,
		Median: Percentile(sorted, 50),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Q25:    Percentile(sorted, 25),
		Q75:    Percentile(sorted, 75),
	}
}

// MeanStd returns the mean and population standard deviation, or zeros
// for an empty input.
func MeanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(values, nil)
}

// Percentile returns the p-th percentile (0-100) of sorted values using
// linear interpolation between closest ranks, the same rule as numpy's
// default.
func Percentile(sorted []float64, p float64) float64 {
	switch n := len(sorted); n {
	case 0:
		return 0
	case 1:
		return sorted[0]
	default:
		rank := p / 100 * float64(n-1)
		lo := int(math.Floor(rank))
		hi := int(math.Ceil(rank))
		if lo == hi {
			return sorted[lo]
		}
		return sorted[lo] + (rank-float64(lo))*(sorted[hi]-sorted[lo])
	}
}

// ChiSquareResult is a goodness-of-fit test outcome.
type ChiSquareResult struct {
	Statistic        float64 `json:"statistic"`
	PValue           float64 `json:"p_value"`
	DegreesOfFreedom int     `json:"degrees_of_freedom"`
}

// ChiSquareUniform tests observed counts against a uniform expectation
// over the same categories. With fewer than two categories there is
// nothing to test: the statistic, p-value and degrees of freedom are 0.
func ChiSquareUniform(observed []float64) ChiSquareResult {
	k := len(observed)
	if k < 2 {
		return ChiSquareResult{}
	}
	total := floats.Sum(observed)
	if total == 0 {
		return ChiSquareResult{}
	}

	expected := make([]float64, k)
	for i := range expected {
		expected[i] = total / float64(k)
	}
	chi2 := stat.ChiSquare(observed, expected)
	dist := distuv.ChiSquared{K: float64(k - 1)}
	return ChiSquareResult{
		Statistic:        chi2,
		PValue:           dist.Survival(chi2),
		DegreesOfFreedom: k - 1,
	}
}
