// Package aggregate derives comparable statistics from finished samples.
// Everything here is a pure function of its inputs.
package aggregate

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"
)

// Throughput returns operations per second, or 0 for a non-positive duration.
func Throughput(ops int64, d time.Duration) float64 {
	if d <= 0 || ops <= 0 {
		return 0
	}
	return float64(ops) / d.Seconds()
}

// Percentile returns the nearest-rank p-th percentile (0 < p <= 100) of
// samples. ok is false when samples is empty or p is out of range.
// samples is not modified.
func Percentile(samples []float64, p float64) (value float64, ok bool) {
	if len(samples) == 0 || p <= 0 || p > 100 {
		return 0, false
	}
	v, err := stats.PercentileNearestRank(stats.Float64Data(samples), p)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// DurationPercentile is Percentile over durations.
func DurationPercentile(samples []time.Duration, p float64) (time.Duration, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	fs := make([]float64, len(samples))
	for i, s := range samples {
		fs[i] = float64(s)
	}
	v, ok := Percentile(fs, p)
	return time.Duration(v), ok
}

// ImprovementPercent is how much smaller optimized is than baseline, in
// percent of baseline. It is 0 when baseline is not positive.
func ImprovementPercent(baseline, optimized float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return (baseline - optimized) / baseline * 100
}

// CoefficientOfVariation returns stddev/mean*100 using the population
// standard deviation. It is 0 for empty input or a zero mean.
func CoefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean, err := stats.Mean(values)
	if err != nil || mean == 0 {
		return 0
	}
	sd, err := stats.StandardDeviationPopulation(values)
	if err != nil {
		return 0
	}
	return math.Abs(sd / mean * 100)
}

// DefaultGrowthTolerance is the coefficient of variation, in percent, under
// which per-record figures count as scale invariant.
const DefaultGrowthTolerance = 15.0

// LinearGrowth reports whether perRecord values across scales stay within
// tolerance percent CV, i.e. total cost grows linearly with record count.
func LinearGrowth(perRecord []float64, tolerance float64) (cv float64, linear bool) {
	cv = CoefficientOfVariation(perRecord)
	return cv, cv < tolerance
}

// MemoryPerRecord divides used bytes by records, treating negative usage as
// zero.
func MemoryPerRecord(used int64, records int64) float64 {
	if used <= 0 || records <= 0 {
		return 0
	}
	return float64(used) / float64(records)
}

// HitRatio returns hits/(hits+misses), or 0 with no lookups.
func HitRatio(hits, misses int64) float64 {
	total := hits + misses
	if total <= 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// GrowthRate fits a least-squares line through values taken at successive
// iterations and returns its slope (units per iteration).
func GrowthRate(values []float64) float64 {
	n := float64(len(values))
	if len(values) < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// LeakSuspected reports whether heap readings taken after each repetition of
// the same workload keep growing by more than threshold bytes per iteration.
func LeakSuspected(readings []uint64, threshold float64) bool {
	if len(readings) < 3 {
		return false
	}
	values := make([]float64, len(readings))
	for i, r := range readings {
		values[i] = float64(r)
	}
	return GrowthRate(values) > threshold
}
