package weather

import (
	"math"
	"slices"
)

// StatsSummary describes the evaluated metric values.
type StatsSummary struct {
	Mean float64 `json:"mean"`
	P10  float64 `json:"p10"`
	P50  float64 `json:"p50"`
	P90  float64 `json:"p90"`
}

// Summarize returns nil for an empty input. NaNs are ignored.
func Summarize(values []float64) *StatsSummary {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	slices.Sort(clean)

	var sum float64
	for _, v := range clean {
		sum += v
	}
	return &StatsSummary{
		Mean: round(sum/float64(len(clean)), 1),
		P10:  round(percentile(clean, 10), 1),
		P50:  round(percentile(clean, 50), 1),
		P90:  round(percentile(clean, 90), 1),
	}
}

// Percentile returns the p-th percentile of values using linear
// interpolation. values is not modified. NaN for an empty input.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return percentile(sorted, p)
}

// percentile interpolates linearly between closest ranks of sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// Coverage is the percentage of the theoretical years × (2W+1) days that
// were evaluable.
func Coverage(evaluableDays, years, radius int) float64 {
	theoretical := years * (2*radius + 1)
	if theoretical <= 0 {
		return 0
	}
	return round(100*float64(evaluableDays)/float64(theoretical), 1)
}

// Probability is the exceedance percentage over evaluable days.
func Probability(exceed, evaluable int) float64 {
	if evaluable == 0 {
		return 0
	}
	return round(100*float64(exceed)/float64(evaluable), 1)
}
