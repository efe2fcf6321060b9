package engine

import "github.com/rezkam/rapo/internal/domain"

// Stabilize is a fixed-point loop over unresolved A/B/M
// pairs. Each round, every still-unresolved id on each side picks its best
// remaining candidate ordered by (discrepancy_rank_side, time_shift_rank_side,
// other_id); a pair is selected only when it is simultaneously the best
// pick for both its A id and its B id. Selected pairs are marked resolved
// and excluded from the next round. The loop terminates when a round
// selects nothing, which happens in at most min(|A|, |B|) rounds since each
// resolved pair removes at least one id from contention on each side.
func Stabilize(rows []CombRow, orgA, orgB map[string]*OrgRow) (winners []DupPair, iterations int) {
	maxRounds := len(orgA) + len(orgB) + 1 // backstop; convergence happens well before this

	for round := 0; round < maxRounds; round++ {
		candidates := unresolvedCandidates(rows, orgA, orgB)
		if len(candidates) == 0 {
			break
		}

		bestForA := bestPickPerSide(rows, candidates, func(r CombRow) string { return r.AID }, func(r CombRow) (int, int, string) {
			return r.DiscrepancyRankA, r.TimeShiftRankA, r.BID
		})
		bestForB := bestPickPerSide(rows, candidates, func(r CombRow) string { return r.BID }, func(r CombRow) (int, int, string) {
			return r.DiscrepancyRankB, r.TimeShiftRankB, r.AID
		})

		var selected []int
		for _, idx := range candidates {
			r := rows[idx]
			if bestForA[r.AID] == idx && bestForB[r.BID] == idx {
				selected = append(selected, idx)
			}
		}
		if len(selected) == 0 {
			break
		}

		for _, idx := range selected {
			rows[idx].CorrelationStatus = domain.StatusResolved
			rows[idx].CorrelationIndicator = domain.IndicatorResolved
			winners = append(winners, DupPair{AID: rows[idx].AID, BID: rows[idx].BID})
		}
		RefreshIndicators(rows, orgA, orgB)
		iterations++
	}

	return winners, iterations
}

// unresolvedCandidates returns the row indices eligible for this round:
// type A/B/M, not yet resolved, and both endpoints still unresolved in
// ORG_A/ORG_B.
func unresolvedCandidates(rows []CombRow, orgA, orgB map[string]*OrgRow) []int {
	var out []int
	for i, r := range rows {
		switch r.CorrelationType {
		case domain.CorrelationA, domain.CorrelationB, domain.CorrelationM:
		default:
			continue
		}
		if r.Resolved() {
			continue
		}
		if a, ok := orgA[r.AID]; !ok || a.Indicator == domain.IndicatorResolved {
			continue
		}
		if b, ok := orgB[r.BID]; !ok || b.Indicator == domain.IndicatorResolved {
			continue
		}
		out = append(out, i)
	}
	return out
}

// bestPickPerSide groups candidates by idOf(row) and returns, for each id,
// the row index minimizing keyOf(row) lexicographically — the "row_number
// ordered by (discrepancy_rank_side, time_shift_rank_side, other_id) = 1"
// selection rule.
func bestPickPerSide(rows []CombRow, candidates []int, idOf func(CombRow) string, keyOf func(CombRow) (int, int, string)) map[string]int {
	best := map[string]int{}
	bestKey := map[string][3]any{}
	for _, idx := range candidates {
		r := rows[idx]
		id := idOf(r)
		k1, k2, k3 := keyOf(r)
		if _, ok := best[id]; !ok || less3(k1, k2, k3, bestKey[id]) {
			best[id] = idx
			bestKey[id] = [3]any{k1, k2, k3}
		}
	}
	return best
}

func less3(k1, k2 int, k3 string, other [3]any) bool {
	o1, o2, o3 := other[0].(int), other[1].(int), other[2].(string)
	if k1 != o1 {
		return k1 < o1
	}
	if k2 != o2 {
		return k2 < o2
	}
	return k3 < o3
}
