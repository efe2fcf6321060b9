package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rezkam/rapo/internal/domain"
)

const nullKeyToken = "\x1e<null>\x1e"

// BuildCandidates joins a and b on every correlation_config rule plus the
// date-proximity rule, computing every feature column COMB carries.
// Candidates are generated in A-major, B-minor order; generation aborts
// with ErrCorrelationLimitExceeded as soon as the configured
// correlation_limit is reached, so a degenerate cross join (a trivial key
// crossing two large sides) never materializes in full.
func BuildCandidates(a, b []SourceRecord, rule domain.RuleConfig) ([]CombRow, error) {
	normA, normB := normalizeDiscrepancyOperands(a, b, rule)

	cap, hasCap := rule.CorrelationLimit.Cap(len(a), len(b))

	var rows []CombRow
	for ai := range a {
		for bi := range b {
			keyValue, ok := correlationKey(a[ai], b[bi], rule.CorrelationConfig)
			if !ok {
				continue
			}
			shift := a[ai].Date.Sub(b[bi].Date).Seconds()
			if shift < float64(rule.TimeShiftFrom) || shift > float64(rule.TimeShiftTo) {
				continue
			}
			if hasCap && len(rows) >= cap {
				return nil, domain.ErrCorrelationLimitExceeded
			}

			row := CombRow{
				AID: a[ai].Key, BID: b[bi].Key,
				KeyValue: keyValue,
				DateA:    a[ai].Date, DateB: b[bi].Date,
				TimeShiftValue: shift,
			}
			row.DiscrepancyFields, row.DiscrepancySum = discrepancyFields(rule.DiscrepancyConfig, normA, normB, ai, bi)
			row.DiscrepancyTime = shift < float64(rule.TimeToleranceFrom) || shift > float64(rule.TimeToleranceTo)
			rows = append(rows, row)
		}
	}

	assignTimeShiftGroups(rows, rule)
	assignTotalMatchNumbers(rows)
	assignCorrelationTypes(rows)
	assignRanks(rows)
	initializeOnePairs(rows)

	return rows, nil
}

// normalizeDiscrepancyOperands normalizes each discrepancy_config field
// over the union of both sides' values (the Open Question decision
// recorded in DESIGN.md), returning per-field, per-record-index normalized
// slices aligned with a and b respectively.
func normalizeDiscrepancyOperands(a, b []SourceRecord, rule domain.RuleConfig) (normA, normB [][]float64) {
	numFields := len(rule.DiscrepancyConfig)
	normA = make([][]float64, numFields)
	normB = make([][]float64, numFields)
	for fi := range rule.DiscrepancyConfig {
		combined := make([]float64, 0, len(a)+len(b))
		for _, rec := range a {
			combined = append(combined, rec.DiscrepancyValues[fi])
		}
		for _, rec := range b {
			combined = append(combined, rec.DiscrepancyValues[fi])
		}
		normed := normalizeValues(combined, rule.NormalizationType)
		normA[fi] = normed[:len(a)]
		normB[fi] = normed[len(a):]
	}
	return normA, normB
}

func discrepancyFields(cfg []domain.DiscrepancyRule, normA, normB [][]float64, ai, bi int) ([]FieldDiscrepancy, float64) {
	var fields []FieldDiscrepancy
	var sum float64
	for fi, rule := range cfg {
		na := normA[fi][ai]
		nb := normB[fi][bi]

		// delta is expressed as field_b - field_a: a B value above its A
		// counterpart reports a positive delta.
		var delta float64
		switch {
		case math.IsNaN(na) || math.IsNaN(nb):
			delta = math.Inf(1)
		case rule.PercentageMode:
			if na == 0 {
				delta = math.Inf(1)
			} else {
				delta = (nb - na) / na * 100
			}
		default:
			delta = nb - na
		}

		inTolerance := !math.IsInf(delta, 0) && delta >= rule.NumericToleranceFrom && delta <= rule.NumericToleranceTo
		sum += math.Abs(delta)
		if !inTolerance {
			fields = append(fields, FieldDiscrepancy{Field: rule.Name(), Delta: delta, InTolerance: false})
		}
	}
	return fields, sum
}

// correlationKey evaluates every correlation_config rule for the pair and,
// if all are satisfied, returns the separator-safe key_value.
func correlationKey(a, b SourceRecord, cfg []domain.CorrelationRule) (string, bool) {
	parts := make([]string, len(cfg))
	for i, rule := range cfg {
		av, bv := a.CorrelationValues[i], b.CorrelationValues[i]
		switch {
		case av == nil && bv == nil:
			if !rule.AllowNull {
				return "", false
			}
			parts[i] = nullKeyToken
		case av == nil || bv == nil:
			return "", false
		case !valuesEqual(av, bv):
			return "", false
		default:
			parts[i] = fmt.Sprint(av)
		}
	}
	return strings.Join(parts, "\x1f"), true
}

func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// assignTimeShiftGroups clusters time-drifted events: within each key_value,
// order candidates by max(date_a, date_b) and start a new group whenever
// the gap to the previous record falls outside [time_shift_from, time_shift_to].
func assignTimeShiftGroups(rows []CombRow, rule domain.RuleConfig) {
	type entry struct {
		idx     int
		maxDate time.Time
	}
	groups := map[string][]entry{}
	for i, r := range rows {
		maxDate := r.DateA
		if r.DateB.After(maxDate) {
			maxDate = r.DateB
		}
		groups[r.KeyValue] = append(groups[r.KeyValue], entry{i, maxDate})
	}

	for _, entries := range groups {
		sort.Slice(entries, func(i, j int) bool { return entries[i].maxDate.Before(entries[j].maxDate) })
		group := 0
		var prev time.Time
		hasPrev := false
		for _, e := range entries {
			if !hasPrev {
				group = 1
			} else {
				gap := e.maxDate.Sub(prev).Seconds()
				if gap < float64(rule.TimeShiftFrom) || gap > float64(rule.TimeShiftTo) {
					group++
				}
			}
			rows[e.idx].TimeShiftGroupNumber = group
			prev = e.maxDate
			hasPrev = true
		}
	}
}

type clusterKey struct {
	key   string
	group int
}

// assignTotalMatchNumbers: total_match_number_a is the count of distinct
// b_ids sharing (key_value, time_shift_group_number);
// total_match_number_b mirrors it for a_ids.
func assignTotalMatchNumbers(rows []CombRow) {
	bIDs := map[clusterKey]map[string]bool{}
	aIDs := map[clusterKey]map[string]bool{}
	for _, r := range rows {
		ck := clusterKey{r.KeyValue, r.TimeShiftGroupNumber}
		if bIDs[ck] == nil {
			bIDs[ck] = map[string]bool{}
		}
		bIDs[ck][r.BID] = true
		if aIDs[ck] == nil {
			aIDs[ck] = map[string]bool{}
		}
		aIDs[ck][r.AID] = true
	}
	for i := range rows {
		ck := clusterKey{rows[i].KeyValue, rows[i].TimeShiftGroupNumber}
		rows[i].TotalMatchNumberA = len(bIDs[ck])
		rows[i].TotalMatchNumberB = len(aIDs[ck])
	}
}

// assignCorrelationTypes labels each pair's matching topology from its
// cluster cardinalities.
func assignCorrelationTypes(rows []CombRow) {
	for i := range rows {
		ta, tb := rows[i].TotalMatchNumberA, rows[i].TotalMatchNumberB
		switch {
		case ta == 1 && tb == 1:
			rows[i].CorrelationType = domain.CorrelationO
		case ta == tb && ta > 1:
			rows[i].CorrelationType = domain.CorrelationF
		case tb == 1 && ta > 1:
			rows[i].CorrelationType = domain.CorrelationA
		case ta == 1 && tb > 1:
			rows[i].CorrelationType = domain.CorrelationB
		default:
			rows[i].CorrelationType = domain.CorrelationM
		}
	}
}

// assignRanks computes time_shift_rank_{a,b} and discrepancy_rank, the
// per-side rankings the stabilizer's selection reads.
func assignRanks(rows []CombRow) {
	shiftRankA := rankWithinGroups(rows, func(r CombRow) string { return r.AID }, func(r CombRow) float64 { return math.Abs(r.TimeShiftValue) })
	shiftRankB := rankWithinGroups(rows, func(r CombRow) string { return r.BID }, func(r CombRow) float64 { return math.Abs(r.TimeShiftValue) })
	discRankA := rankWithinGroups(rows, func(r CombRow) string { return r.AID }, func(r CombRow) float64 { return r.DiscrepancySum })
	discRankB := rankWithinGroups(rows, func(r CombRow) string { return r.BID }, func(r CombRow) float64 { return r.DiscrepancySum })

	for i := range rows {
		rows[i].TimeShiftRankA = shiftRankA[i]
		rows[i].TimeShiftRankB = shiftRankB[i]
		rows[i].DiscrepancyRankA = discRankA[i]
		rows[i].DiscrepancyRankB = discRankB[i]
	}

	assignMatchPositions(rows)
}

// assignMatchPositions numbers each side's candidates 1..n in the
// preference order the stabilizer selects by; position 1 is the side's
// first choice.
func assignMatchPositions(rows []CombRow) {
	bySide := func(idOf func(CombRow) string, keyOf func(CombRow) (int, int, string), set func(i, pos int)) {
		groups := map[string][]int{}
		for i, r := range rows {
			groups[idOf(r)] = append(groups[idOf(r)], i)
		}
		for _, idxs := range groups {
			sort.Slice(idxs, func(x, y int) bool {
				x1, x2, x3 := keyOf(rows[idxs[x]])
				y1, y2, y3 := keyOf(rows[idxs[y]])
				if x1 != y1 {
					return x1 < y1
				}
				if x2 != y2 {
					return x2 < y2
				}
				return x3 < y3
			})
			for pos, i := range idxs {
				set(i, pos+1)
			}
		}
	}

	bySide(
		func(r CombRow) string { return r.AID },
		func(r CombRow) (int, int, string) { return r.DiscrepancyRankA, r.TimeShiftRankA, r.BID },
		func(i, pos int) { rows[i].MatchPositionA = pos },
	)
	bySide(
		func(r CombRow) string { return r.BID },
		func(r CombRow) (int, int, string) { return r.DiscrepancyRankB, r.TimeShiftRankB, r.AID },
		func(i, pos int) { rows[i].MatchPositionB = pos },
	)
}

func rankWithinGroups(rows []CombRow, groupOf func(CombRow) string, valueOf func(CombRow) float64) []int {
	groups := map[string][]int{}
	for i, r := range rows {
		k := groupOf(r)
		groups[k] = append(groups[k], i)
	}
	ranks := make([]int, len(rows))
	for _, idxs := range groups {
		values := make([]float64, len(idxs))
		for j, idx := range idxs {
			values[j] = valueOf(rows[idx])
		}
		rnk := denseRankFloat(values)
		for j, idx := range idxs {
			ranks[idx] = rnk[j]
		}
	}
	return ranks
}

// initializeOnePairs: O pairs need no stabilization; they are resolved on
// sight.
func initializeOnePairs(rows []CombRow) {
	for i := range rows {
		if rows[i].CorrelationType == domain.CorrelationO {
			rows[i].CorrelationStatus = domain.StatusResolved
			rows[i].CorrelationIndicator = domain.IndicatorResolved
		}
	}
}
