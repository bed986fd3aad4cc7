package models

import (
	"math"
	"sort"
)

// BaselineSeries holds one issue's event counts across the historical
// comparison periods, most-recent-first. Periods where the issue did not
// appear are recorded as zero, never omitted, so len(Counts) always equals
// the configured baseline depth. Degraded marks periods whose fetch failed
// and was zero-filled; such counts are statistically indistinguishable from
// a quiet period but callers can use the flag to discount spike signals.
type BaselineSeries struct {
	IssueID  string `json:"issue_id"`
	Counts   []int  `json:"counts"`
	Degraded []bool `json:"degraded,omitempty"`
}

// Mean returns the arithmetic mean of the counts.
func (s BaselineSeries) Mean() float64 {
	if len(s.Counts) == 0 {
		return 0
	}
	sum := 0
	for _, c := range s.Counts {
		sum += c
	}
	return float64(sum) / float64(len(s.Counts))
}

// StdDev returns the population standard deviation of the counts.
func (s BaselineSeries) StdDev() float64 {
	if len(s.Counts) == 0 {
		return 0
	}
	mean := s.Mean()
	variance := 0.0
	for _, c := range s.Counts {
		diff := float64(c) - mean
		variance += diff * diff
	}
	variance /= float64(len(s.Counts))
	return math.Sqrt(variance)
}

// Median returns the median of the counts.
func (s BaselineSeries) Median() float64 {
	return medianInts(s.Counts)
}

// MAD returns the median absolute deviation of the counts.
func (s BaselineSeries) MAD() float64 {
	if len(s.Counts) == 0 {
		return 0
	}
	med := s.Median()
	deviations := make([]float64, len(s.Counts))
	for i, c := range s.Counts {
		deviations[i] = math.Abs(float64(c) - med)
	}
	return medianFloats(deviations)
}

// AllZero reports whether every baseline period recorded zero events.
func (s BaselineSeries) AllZero() bool {
	for _, c := range s.Counts {
		if c != 0 {
			return false
		}
	}
	return true
}

// AnyDegraded reports whether any period was zero-filled after a failed fetch.
func (s BaselineSeries) AnyDegraded() bool {
	for _, d := range s.Degraded {
		if d {
			return true
		}
	}
	return false
}

func medianInts(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	floats := make([]float64, len(values))
	for i, v := range values {
		floats[i] = float64(v)
	}
	return medianFloats(floats)
}

func medianFloats(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
