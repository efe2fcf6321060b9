package engine

import (
	"math"
	"sort"
	"time"

	"github.com/rezkam/rapo/internal/domain"
)

// ResolveFuzzyDuplicates pairs records positionally inside each F cluster
// (equal A/B cardinality > 1): both sides are ordered by (date, sum of the
// record's own numeric discrepancy fields, id) and position k is paired
// with position k, provided that exact (a_id, b_id) pair actually exists in
// rows. Resolved pairs are marked in place; the returned DupPairs are what
// DUP records.
//
// Only invoked when rule_config.fuzzy_optimization is true.
func ResolveFuzzyDuplicates(a, b []SourceRecord, rows []CombRow, orgA, orgB map[string]*OrgRow) []DupPair {
	clusters := map[clusterKey][]int{}
	for i, r := range rows {
		if r.CorrelationType != domain.CorrelationF {
			continue
		}
		ck := clusterKey{r.KeyValue, r.TimeShiftGroupNumber}
		clusters[ck] = append(clusters[ck], i)
	}

	sumA := recordDiscrepancySums(a)
	sumB := recordDiscrepancySums(b)

	var dups []DupPair
	for _, idxs := range clusters {
		aOrder, bOrder, pairIndex := clusterPositions(rows, idxs, sumA, sumB)
		n := len(aOrder)
		if len(bOrder) < n {
			n = len(bOrder)
		}
		for k := 0; k < n; k++ {
			aID, bID := aOrder[k], bOrder[k]
			idx, ok := pairIndex[[2]string{aID, bID}]
			if !ok {
				continue
			}
			rows[idx].CorrelationStatus = domain.StatusResolved
			rows[idx].CorrelationIndicator = domain.IndicatorResolved
			dups = append(dups, DupPair{AID: aID, BID: bID})
		}
	}

	RefreshIndicators(rows, orgA, orgB)
	return dups
}

// recordDiscrepancySums totals each record's own discrepancy-field values,
// keyed by source key. NaN operands (missing values) are skipped so one
// absent field doesn't poison a record's ordering position.
func recordDiscrepancySums(recs []SourceRecord) map[string]float64 {
	sums := make(map[string]float64, len(recs))
	for _, rec := range recs {
		var sum float64
		for _, v := range rec.DiscrepancyValues {
			if !math.IsNaN(v) {
				sum += v
			}
		}
		sums[rec.Key] = sum
	}
	return sums
}

type clusterMember struct {
	id    string
	date  time.Time
	score float64 // the record's own discrepancy-field sum
}

// clusterPositions orders the distinct A ids and B ids of a cluster by
// (date, sum of the record's numeric discrepancy fields, id), assigning
// positions 1..n on each side.
func clusterPositions(rows []CombRow, idxs []int, sumA, sumB map[string]float64) (aOrder, bOrder []string, pairIndex map[[2]string]int) {
	aMembers := map[string]clusterMember{}
	bMembers := map[string]clusterMember{}
	pairIndex = map[[2]string]int{}

	for _, idx := range idxs {
		r := rows[idx]
		pairIndex[[2]string{r.AID, r.BID}] = idx

		if _, ok := aMembers[r.AID]; !ok {
			aMembers[r.AID] = clusterMember{id: r.AID, date: r.DateA, score: sumA[r.AID]}
		}
		if _, ok := bMembers[r.BID]; !ok {
			bMembers[r.BID] = clusterMember{id: r.BID, date: r.DateB, score: sumB[r.BID]}
		}
	}

	aOrder = sortedMemberIDs(aMembers)
	bOrder = sortedMemberIDs(bMembers)
	return aOrder, bOrder, pairIndex
}

func sortedMemberIDs(members map[string]clusterMember) []string {
	list := make([]clusterMember, 0, len(members))
	for _, m := range members {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].date.Equal(list[j].date) {
			return list[i].date.Before(list[j].date)
		}
		if list[i].score != list[j].score {
			return list[i].score < list[j].score
		}
		return list[i].id < list[j].id
	})
	ids := make([]string, len(list))
	for i, m := range list {
		ids[i] = m.id
	}
	return ids
}
