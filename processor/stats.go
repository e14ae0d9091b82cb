package processor

import (
	"math"
	"sort"

	"optionsflow/models"
)

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev is the sample standard deviation, 0 below two values.
func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - m
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}

// quantile interpolates linearly between closest ranks of sorted.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}

// pearson is 0 when either series is constant.
func pearson(x, y []float64) float64 {
	n := len(x)
	if n < 2 || len(y) != n {
		return 0
	}
	meanX, meanY := mean(x), mean(y)

	var num, denomX, denomY float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		num += dx * dy
		denomX += dx * dx
		denomY += dy * dy
	}
	denom := math.Sqrt(denomX * denomY)
	if denom == 0 {
		return 0
	}
	corr := num / denom
	if corr > 1 {
		return 1
	}
	if corr < -1 {
		return -1
	}
	return corr
}

// Describe computes the descriptive statistics of values. The input slice
// is not reordered.
func Describe(values []float64, quantiles []float64) models.Stats {
	qs := make([]models.Quantile, len(quantiles))
	for i, p := range quantiles {
		qs[i] = models.Quantile{P: p}
	}
	if len(values) == 0 {
		return models.Stats{Quantiles: qs}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	for i := range qs {
		qs[i].Value = quantile(sorted, qs[i].P)
	}
	return models.Stats{
		Count:     len(sorted),
		Mean:      mean(sorted),
		StdDev:    stdDev(sorted),
		Min:       sorted[0],
		Quantiles: qs,
		Max:       sorted[len(sorted)-1],
	}
}
