// Package engine implements the eight-stage reconciliation pipeline: window
// resolution, source fetching, correlation, organizing, fuzzy duplicate
// resolution, match stabilization, classification and result writing. The
// stages that manipulate candidate sets (everything after the source
// fetchers materialize their relations) operate on plain Go slices and maps
// — only the source fetch and result write stages round-trip to the
// database, keeping the hard matching logic unit-testable without one.
package engine

import (
	"time"

	"github.com/rezkam/rapo/internal/domain"
)

// SourceRecord is one row of SOURCE_A or SOURCE_B after fetching: its
// synthesized key, its coerced date, the resolved correlation/discrepancy
// operands (aligned index-for-index with rule_config.correlation_config and
// rule_config.discrepancy_config), and the full row for eventual output.
type SourceRecord struct {
	Key               string
	Date              time.Time
	CorrelationValues []any
	// DiscrepancyValues holds each discrepancy_config pair's numeric operand
	// for this side; a record with no value for a rule carries math.NaN().
	DiscrepancyValues []float64
	Raw               map[string]any
}

// FieldDiscrepancy names one discrepancy_config field that fell outside its
// tolerance for a given COMB pair.
type FieldDiscrepancy struct {
	Field       string
	Delta       float64
	InTolerance bool
}

// CombRow is one candidate pair, carrying every feature column named in
// the COMB relation carries.
type CombRow struct {
	AID, BID     string
	KeyValue     string
	DateA, DateB time.Time

	TimeShiftValue       float64 // seconds, DateA - DateB
	TimeShiftRankA       int     // dense rank of |TimeShiftValue| among AID's candidates
	TimeShiftRankB       int     // dense rank of |TimeShiftValue| among BID's candidates
	TimeShiftGroupNumber int

	DiscrepancyTime   bool // time_shift_value outside time_tolerance_from/to
	DiscrepancyFields []FieldDiscrepancy
	DiscrepancySum    float64 // sum of |delta| across all discrepancy_config fields
	DiscrepancyRankA  int     // dense rank of DiscrepancySum among AID's candidates
	DiscrepancyRankB  int     // dense rank of DiscrepancySum among BID's candidates

	TotalMatchNumberA int // distinct b_ids sharing (KeyValue, TimeShiftGroupNumber)
	TotalMatchNumberB int // distinct a_ids sharing (KeyValue, TimeShiftGroupNumber)

	MatchPositionA int // row_number among AID's candidates by (DiscrepancyRankA, TimeShiftRankA, BID)
	MatchPositionB int // row_number among BID's candidates by (DiscrepancyRankB, TimeShiftRankB, AID)

	CorrelationType      domain.CorrelationType
	CorrelationStatus    domain.CorrelationStatus
	CorrelationIndicator domain.Indicator
}

// HasDiscrepancy reports whether this pair violates the time envelope or
// any numeric tolerance.
func (c CombRow) HasDiscrepancy() bool {
	return c.DiscrepancyTime || len(c.DiscrepancyFields) > 0
}

// Resolved reports whether this pair has been assigned as a final match.
func (c CombRow) Resolved() bool {
	return c.CorrelationIndicator == domain.IndicatorResolved
}

// OrgRow is one row of ORG_A or ORG_B: a source key's aggregated matching
// topology.
type OrgRow struct {
	Key             string
	CorrelationType domain.CorrelationType
	Indicator       domain.Indicator
}

// DupPair is one row of DUP: a pair resolved by fuzzy positional matching.
type DupPair struct {
	AID, BID string
}
