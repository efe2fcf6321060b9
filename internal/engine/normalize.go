package engine

import (
	"math"
	"sort"

	"github.com/rezkam/rapo/internal/domain"
)

// normalizeValues rescales values per rule_config.normalization_type.
// NaN entries (missing operands) pass through unchanged so they
// keep failing every subsequent tolerance check rather than polluting the
// statistics.
func normalizeValues(values []float64, kind domain.NormalizationType) []float64 {
	out := make([]float64, len(values))
	switch kind {
	case domain.NormalizationNone, domain.NormalizationDefault:
		copy(out, values)
		return out

	case domain.NormalizationMinMax:
		min, max := finiteMinMax(values)
		span := max - min
		for i, v := range values {
			if math.IsNaN(v) {
				out[i] = v
				continue
			}
			if span == 0 {
				out[i] = 0
				continue
			}
			out[i] = (v - min) / span
		}
		return out

	case domain.NormalizationRank:
		ranks := denseRankFloat(values)
		for i, v := range values {
			if math.IsNaN(v) {
				out[i] = v
				continue
			}
			out[i] = float64(ranks[i])
		}
		return out

	case domain.NormalizationZNorm:
		mean, stddev := finiteMeanStddev(values)
		for i, v := range values {
			if math.IsNaN(v) {
				out[i] = v
				continue
			}
			if stddev == 0 {
				out[i] = 0
				continue
			}
			out[i] = (v - mean) / stddev
		}
		return out

	default:
		copy(out, values)
		return out
	}
}

func finiteMinMax(values []float64) (min, max float64) {
	first := true
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func finiteMeanStddev(values []float64) (mean, stddev float64) {
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, 0
	}
	mean = sum / float64(n)

	var sqSum float64
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		d := v - mean
		sqSum += d * d
	}
	stddev = math.Sqrt(sqSum / float64(n))
	return mean, stddev
}

// denseRankFloat assigns 1-based dense ranks (ascending, ties share a rank)
// to values, leaving NaN entries at rank 0.
func denseRankFloat(values []float64) []int {
	type indexed struct {
		idx int
		val float64
	}
	finite := make([]indexed, 0, len(values))
	for i, v := range values {
		if !math.IsNaN(v) {
			finite = append(finite, indexed{i, v})
		}
	}
	sort.Slice(finite, func(i, j int) bool { return finite[i].val < finite[j].val })

	ranks := make([]int, len(values))
	rank := 0
	var prev float64
	hasPrev := false
	for _, e := range finite {
		if !hasPrev || e.val != prev {
			rank++
			prev = e.val
			hasPrev = true
		}
		ranks[e.idx] = rank
	}
	return ranks
}
