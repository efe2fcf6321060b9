package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/rapo/internal/domain"
	"github.com/rezkam/rapo/internal/engine"
)

// recMultiKey builds a SourceRecord with two correlation_config operands,
// for exercising multi-key allow_null semantics.
func recMultiKey(key string, date time.Time, k1, k2 any) engine.SourceRecord {
	return engine.SourceRecord{
		Key:               key,
		Date:              date,
		CorrelationValues: []any{k1, k2},
		Raw:               map[string]any{},
	}
}

// TestAllowNull_IsPerPair pins the Open Question decision recorded in
// DESIGN.md: allow_null is evaluated independently per correlation_config
// entry. A null on a pair whose allow_null=false must reject the candidate
// even when another pair on the same row pair is null with allow_null=true.
func TestAllowNull_IsPerPair(t *testing.T) {
	T := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rule := baseRule()
	rule.CorrelationConfig = []domain.CorrelationRule{
		{FieldA: "k1", FieldB: "k1", AllowNull: true},
		{FieldA: "k2", FieldB: "k2", AllowNull: false},
	}

	// Both correlation keys null: the allow_null=true pair matches on null,
	// but the allow_null=false pair must reject the candidate outright.
	a := []engine.SourceRecord{recMultiKey("a1", T, nil, nil)}
	b := []engine.SourceRecord{recMultiKey("b1", T, nil, nil)}

	rows, err := engine.BuildCandidates(a, b, rule)
	require.NoError(t, err)
	assert.Empty(t, rows, "a null on the allow_null=false pair must not be excused by the other pair's allow_null=true")
}

func TestAllowNull_TruePairMatchesOnNull(t *testing.T) {
	T := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rule := baseRule()
	rule.CorrelationConfig = []domain.CorrelationRule{
		{FieldA: "k1", FieldB: "k1", AllowNull: true},
		{FieldA: "k2", FieldB: "k2", AllowNull: false},
	}

	// k1 null on both sides (allowed), k2 equal and non-null: candidate forms.
	a := []engine.SourceRecord{recMultiKey("a1", T, nil, "x")}
	b := []engine.SourceRecord{recMultiKey("b1", T, nil, "x")}

	rows, err := engine.BuildCandidates(a, b, rule)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a1", rows[0].AID)
	assert.Equal(t, "b1", rows[0].BID)
}

func TestAllowNull_FalsePairRejectsOneSidedNull(t *testing.T) {
	T := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rule := baseRule()
	rule.CorrelationConfig = []domain.CorrelationRule{
		{FieldA: "k", FieldB: "k", AllowNull: false},
	}

	a := []engine.SourceRecord{rec("a1", T, nil)}
	b := []engine.SourceRecord{rec("b1", T, "x")}

	rows, err := engine.BuildCandidates(a, b, rule)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// When allow_duplicates=true, no ERROR row may carry a Duplicate verdict.
func TestDuplicateSuppression_AllowDuplicatesTrue(t *testing.T) {
	T := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rule := baseRule()
	rule.AllowDuplicates = true

	// One A row, two B rows sharing its key: the losing B row would be
	// classified Duplicate absent suppression.
	a := []engine.SourceRecord{rec("a1", T, 1)}
	b := []engine.SourceRecord{rec("b1", T, 1), rec("b2", T, 1)}

	_, errA, _, errB, _ := runReconciliation(t, a, b, rule)
	for _, r := range errA {
		assert.NotEqual(t, domain.ResultDuplicate, r.ResultType)
	}
	for _, r := range errB {
		assert.NotEqual(t, domain.ResultDuplicate, r.ResultType)
	}
}

// TestSymmetry_ABSwap: swapping which slice is passed as A and which as B
// over the same rows yields the mirror classification (both sides still
// resolve to Discrepancy; a discrepancy is a property of the resolved pair,
// not of a particular side).
func TestSymmetry_ABSwap(t *testing.T) {
	T := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rule := baseRule()
	rule.DiscrepancyConfig = []domain.DiscrepancyRule{{FieldA: "v", FieldB: "v", NumericToleranceFrom: -2, NumericToleranceTo: 2}}

	a := []engine.SourceRecord{recWithValue("a1", T, 1, "v", 100)}
	b := []engine.SourceRecord{recWithValue("b1", T, 1, "v", 103)}

	_, errA, _, errB, _ := runReconciliation(t, a, b, rule)
	require.Len(t, errA, 1)
	require.Len(t, errB, 1)
	assert.Equal(t, domain.ResultDiscrepancy, errA[0].ResultType)
	assert.Equal(t, domain.ResultDiscrepancy, errB[0].ResultType)

	// Swap which slice plays A and which plays B: the mirror classification
	// holds, with each side's own result unchanged relative to itself.
	_, errBSwapped, _, errASwapped, _ := runReconciliation(t, b, a, rule)
	require.Len(t, errASwapped, 1)
	require.Len(t, errBSwapped, 1)
	assert.Equal(t, domain.ResultDiscrepancy, errASwapped[0].ResultType)
	assert.Equal(t, domain.ResultDiscrepancy, errBSwapped[0].ResultType)
}
