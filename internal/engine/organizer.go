package engine

import "github.com/rezkam/rapo/internal/domain"

// Organize summarizes matching topology: for every key appearing in
// sourceKeys, aggregate COMB's pairs (selected via idOf) and pick the best
// correlation_type by priority O > F > A > B > M. Keys with no COMB rows
// get the zero OrgRow (CorrelationType == domain.CorrelationNone, the
// no-candidates marker).
func Organize(sourceKeys []string, rows []CombRow, idOf func(CombRow) string) map[string]*OrgRow {
	orgs := make(map[string]*OrgRow, len(sourceKeys))
	for _, key := range sourceKeys {
		orgs[key] = &OrgRow{Key: key}
	}

	for _, r := range rows {
		key := idOf(r)
		org, ok := orgs[key]
		if !ok {
			// A COMB row referencing a key outside sourceKeys cannot occur in a
			// correctly built pipeline; skip defensively rather than panic.
			continue
		}
		org.CorrelationType = domain.Best(org.CorrelationType, r.CorrelationType)
		if r.CorrelationType == domain.CorrelationO {
			org.Indicator = domain.IndicatorResolved
		}
	}
	return orgs
}

// OrganizeA is Organize specialized for the A side.
func OrganizeA(sourceKeys []string, rows []CombRow) map[string]*OrgRow {
	return Organize(sourceKeys, rows, func(r CombRow) string { return r.AID })
}

// OrganizeB is Organize specialized for the B side.
func OrganizeB(sourceKeys []string, rows []CombRow) map[string]*OrgRow {
	return Organize(sourceKeys, rows, func(r CombRow) string { return r.BID })
}

// RefreshIndicators re-derives orgA/orgB's Indicator from rows' current
// CorrelationStatus, called after the fuzzy resolver and each stabilizer
// round mark more pairs resolved.
func RefreshIndicators(rows []CombRow, orgA, orgB map[string]*OrgRow) {
	for _, r := range rows {
		if !r.Resolved() {
			continue
		}
		if org, ok := orgA[r.AID]; ok {
			org.Indicator = domain.IndicatorResolved
		}
		if org, ok := orgB[r.BID]; ok {
			org.Indicator = domain.IndicatorResolved
		}
	}
}
