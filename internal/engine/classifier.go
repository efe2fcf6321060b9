package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rezkam/rapo/internal/domain"
)

// ClassifyA classifies side A's records.
func ClassifyA(records []SourceRecord, org map[string]*OrgRow, combByA map[string][]CombRow, rule domain.RuleConfig) []domain.ResultRow {
	return classifySide(records, org, combByA, rule, rule.NeedIssuesA, rule.NeedReconsA, func(r CombRow) string { return r.BID })
}

// ClassifyB classifies side B's records (symmetric to A).
func ClassifyB(records []SourceRecord, org map[string]*OrgRow, combByB map[string][]CombRow, rule domain.RuleConfig) []domain.ResultRow {
	return classifySide(records, org, combByB, rule, rule.NeedIssuesB, rule.NeedReconsB, func(r CombRow) string { return r.AID })
}

// classifySide assigns each record one of {Success, Loss, Duplicate,
// Discrepancy}. combByKey must map this side's source key to every COMB
// row referencing it (resolved or not); otherID extracts the counterpart
// id used for rapo_discrepancy_id.
func classifySide(records []SourceRecord, org map[string]*OrgRow, combByKey map[string][]CombRow, rule domain.RuleConfig, needIssues, needRecons bool, otherID func(CombRow) string) []domain.ResultRow {
	var out []domain.ResultRow

	for _, rec := range records {
		o := org[rec.Key]
		candidates := combByKey[rec.Key]

		rt, discID, discDesc := classifyOne(o, candidates, rule, otherID)

		if rt == domain.ResultDuplicate && rule.AllowDuplicates {
			continue
		}
		if rt == domain.ResultSuccess && !needRecons {
			continue
		}
		if rt != domain.ResultSuccess && !needIssues {
			continue
		}

		out = append(out, domain.ResultRow{
			SourceKey:              rec.Key,
			Date:                   rec.Date,
			Source:                 rec.Raw,
			ResultType:             rt,
			DiscrepancyID:          discID,
			DiscrepancyDescription: discDesc,
		})
	}

	return out
}

func classifyOne(o *OrgRow, candidates []CombRow, rule domain.RuleConfig, otherID func(CombRow) string) (rt domain.ResultType, discID, discDesc string) {
	switch {
	case o != nil && o.Indicator == domain.IndicatorResolved:
		offending, hasDiscrepancy := firstResolvedDiscrepancy(candidates)
		if !hasDiscrepancy {
			return domain.ResultSuccess, "", ""
		}
		return domain.ResultDiscrepancy, otherID(offending), describeDiscrepancy(offending)

	case o == nil || o.CorrelationType == domain.CorrelationNone:
		return domain.ResultLoss, "", ""

	default:
		// Has candidates (F/A/B/M topology) but lost the stabilizer/fuzzy
		// round for its cluster: Duplicate, unless discrepancy_matching
		// reclassifies it to Loss.
		if rule.DiscrepancyMatching && anyDiscrepancy(candidates) {
			return domain.ResultLoss, "", ""
		}
		return domain.ResultDuplicate, "", ""
	}
}

func firstResolvedDiscrepancy(candidates []CombRow) (CombRow, bool) {
	for _, c := range candidates {
		if c.Resolved() && c.HasDiscrepancy() {
			return c, true
		}
	}
	return CombRow{}, false
}

func anyDiscrepancy(candidates []CombRow) bool {
	for _, c := range candidates {
		if c.HasDiscrepancy() {
			return true
		}
	}
	return false
}

// describeDiscrepancy renders "field[delta], field2[delta2]", appending a
// time_shift entry in the same shape when the time envelope itself was
// violated.
func describeDiscrepancy(row CombRow) string {
	parts := make([]string, 0, len(row.DiscrepancyFields)+1)
	for _, f := range row.DiscrepancyFields {
		parts = append(parts, fmt.Sprintf("%s[%s]", f.Field, formatDelta(f.Delta)))
	}
	if row.DiscrepancyTime {
		parts = append(parts, fmt.Sprintf("time_shift[%s]", formatDelta(row.TimeShiftValue)))
	}
	return strings.Join(parts, ", ")
}

func formatDelta(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// CombByKey indexes rows by one side's id for classifier lookups.
func CombByKey(rows []CombRow, idOf func(CombRow) string) map[string][]CombRow {
	out := map[string][]CombRow{}
	for _, r := range rows {
		id := idOf(r)
		out[id] = append(out[id], r)
	}
	return out
}
