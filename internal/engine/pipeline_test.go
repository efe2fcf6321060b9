package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/rapo/internal/domain"
	"github.com/rezkam/rapo/internal/engine"
)

func keysOf(recs []engine.SourceRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Key
	}
	return out
}

// runReconciliation drives the whole in-memory pipeline (everything after
// the source fetchers) and returns the classified, output_limit-applied
// results for both sides.
func runReconciliation(t *testing.T, a, b []engine.SourceRecord, rule domain.RuleConfig) (stageA, errA, stageB, errB []domain.ResultRow, combRows []engine.CombRow) {
	t.Helper()

	rows, err := engine.BuildCandidates(a, b, rule)
	require.NoError(t, err)

	orgA := engine.OrganizeA(keysOf(a), rows)
	orgB := engine.OrganizeB(keysOf(b), rows)

	if rule.FuzzyOptimization {
		engine.ResolveFuzzyDuplicates(a, b, rows, orgA, orgB)
	}
	engine.Stabilize(rows, orgA, orgB)

	combA := engine.CombByKey(rows, func(r engine.CombRow) string { return r.AID })
	combB := engine.CombByKey(rows, func(r engine.CombRow) string { return r.BID })

	resA := engine.ClassifyA(a, orgA, combA, rule)
	resB := engine.ClassifyB(b, orgB, combB, rule)

	stageA, errA = engine.SplitResults(resA, rule.OutputLimitA)
	stageB, errB = engine.SplitResults(resB, rule.OutputLimitB)
	return stageA, errA, stageB, errB, rows
}

func baseRule() domain.RuleConfig {
	return domain.RuleConfig{
		NeedIssuesA: true, NeedIssuesB: true,
		NeedReconsA: true, NeedReconsB: true,
		NormalizationType: domain.NormalizationNone,
		TimeShiftFrom:     -60,
		TimeShiftTo:       60,
		TimeToleranceFrom: -60,
		TimeToleranceTo:   60,
		CorrelationConfig: []domain.CorrelationRule{{FieldA: "k", FieldB: "k"}},
	}
}

func rec(key string, date time.Time, k any) engine.SourceRecord {
	return engine.SourceRecord{
		Key:               key,
		Date:              date,
		CorrelationValues: []any{k},
		Raw:               map[string]any{"key": k},
	}
}

func TestPerfectMatch(t *testing.T) {
	T := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	a := []engine.SourceRecord{rec("a1", T, 1), rec("a2", T, 2)}
	b := []engine.SourceRecord{rec("b1", T, 1), rec("b2", T, 2)}

	stageA, errA, stageB, errB, _ := runReconciliation(t, a, b, baseRule())

	assert.Len(t, stageA, 2)
	assert.Len(t, stageB, 2)
	assert.Empty(t, errA)
	assert.Empty(t, errB)
	for _, r := range stageA {
		assert.Equal(t, domain.ResultSuccess, r.ResultType)
	}
}

func TestPureLoss(t *testing.T) {
	T := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	a := []engine.SourceRecord{rec("a1", T, 1)}

	stageA, errA, stageB, errB, _ := runReconciliation(t, a, nil, baseRule())

	assert.Empty(t, stageA)
	require.Len(t, errA, 1)
	assert.Equal(t, domain.ResultLoss, errA[0].ResultType)
	assert.Empty(t, stageB)
	assert.Empty(t, errB)
}

func recWithValue(key string, date time.Time, k any, field string, v float64) engine.SourceRecord {
	r := rec(key, date, k)
	r.DiscrepancyValues = []float64{v}
	r.Raw[field] = v
	return r
}

func TestNumericDiscrepancyTolerance(t *testing.T) {
	T := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rule := baseRule()
	rule.DiscrepancyConfig = []domain.DiscrepancyRule{{FieldA: "v", FieldB: "v", NumericToleranceFrom: -5, NumericToleranceTo: 5}}

	a := []engine.SourceRecord{recWithValue("a1", T, 1, "v", 100)}
	b := []engine.SourceRecord{recWithValue("b1", T, 1, "v", 103)}

	stageA, errA, _, _, _ := runReconciliation(t, a, b, rule)
	require.Len(t, stageA, 1)
	assert.Empty(t, errA)
	assert.Equal(t, domain.ResultSuccess, stageA[0].ResultType)

	rule.DiscrepancyConfig[0].NumericToleranceFrom = -2
	rule.DiscrepancyConfig[0].NumericToleranceTo = 2
	stageA2, errA2, _, _, _ := runReconciliation(t, a, b, rule)
	assert.Empty(t, stageA2)
	require.Len(t, errA2, 1)
	assert.Equal(t, domain.ResultDiscrepancy, errA2[0].ResultType)
	assert.Equal(t, "v[3]", errA2[0].DiscrepancyDescription)
}

func TestTimeShiftedFuzzyCluster(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rule := baseRule()
	rule.FuzzyOptimization = true
	rule.TimeShiftFrom = -120
	rule.TimeShiftTo = 120

	a := []engine.SourceRecord{
		rec("a1", base, 1),
		rec("a2", base.Add(2*time.Minute), 1),
	}
	b := []engine.SourceRecord{
		rec("b1", base.Add(1*time.Minute), 1),
		rec("b2", base.Add(3*time.Minute), 1),
	}

	stageA, errA, stageB, errB, _ := runReconciliation(t, a, b, rule)

	assert.Len(t, stageA, 2)
	assert.Len(t, stageB, 2)
	assert.Empty(t, errA)
	assert.Empty(t, errB)
}

func TestOneToManyWithDiscrepancyMatching(t *testing.T) {
	T := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rule := baseRule()
	rule.AllowDuplicates = true
	rule.DiscrepancyMatching = true
	rule.DiscrepancyConfig = []domain.DiscrepancyRule{{FieldA: "v", FieldB: "v", NumericToleranceFrom: -1, NumericToleranceTo: 1}}

	a := []engine.SourceRecord{recWithValue("a1", T, 1, "v", 10)}
	b := []engine.SourceRecord{
		recWithValue("b1", T, 1, "v", 10),
		recWithValue("b2", T, 1, "v", 99),
	}

	stageA, errA, stageB, errB, _ := runReconciliation(t, a, b, rule)

	require.Len(t, stageA, 1)
	assert.Equal(t, domain.ResultSuccess, stageA[0].ResultType)
	assert.Empty(t, errA)

	require.Len(t, stageB, 1)
	assert.Equal(t, domain.ResultSuccess, stageB[0].ResultType)
	require.Len(t, errB, 1)
	assert.Equal(t, domain.ResultLoss, errB[0].ResultType)
}

func TestCorrelationLimitExceeded(t *testing.T) {
	T := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rule := baseRule()
	rule.CorrelationLimit = domain.CorrelationLimit{Mode: domain.CorrelationLimitAuto}

	// A trivial shared key makes every A row match every B row: 1000*1000
	// candidates against a ~2500 cap.
	a := make([]engine.SourceRecord, 1000)
	b := make([]engine.SourceRecord, 1000)
	for i := range a {
		a[i] = rec("a", T, "same")
	}
	for i := range b {
		b[i] = rec("b", T, "same")
	}

	_, err := engine.BuildCandidates(a, b, rule)
	require.ErrorIs(t, err, domain.ErrCorrelationLimitExceeded)
}

func TestConvergence_BoundedIterations(t *testing.T) {
	T := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rule := baseRule()

	// Many-to-many cluster sharing one key: stabilizer must still terminate.
	a := []engine.SourceRecord{rec("a1", T, 1), rec("a2", T, 1), rec("a3", T, 1)}
	b := []engine.SourceRecord{rec("b1", T, 1), rec("b2", T, 1)}

	rows, err := engine.BuildCandidates(a, b, rule)
	require.NoError(t, err)

	orgA := engine.OrganizeA(keysOf(a), rows)
	orgB := engine.OrganizeB(keysOf(b), rows)
	_, iterations := engine.Stabilize(rows, orgA, orgB)

	assert.LessOrEqual(t, iterations, min(len(a), len(b)))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func TestMatchPositions_BestCandidateIsPositionOne(t *testing.T) {
	T := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rule := baseRule()
	rule.DiscrepancyConfig = []domain.DiscrepancyRule{{FieldA: "v", FieldB: "v", NumericToleranceFrom: -1, NumericToleranceTo: 1}}

	a := []engine.SourceRecord{recWithValue("a1", T, 1, "v", 10)}
	b := []engine.SourceRecord{
		recWithValue("b1", T, 1, "v", 10),
		recWithValue("b2", T, 1, "v", 50),
	}

	rows, err := engine.BuildCandidates(a, b, rule)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byBID := map[string]engine.CombRow{}
	for _, r := range rows {
		byBID[r.BID] = r
	}
	assert.Equal(t, 1, byBID["b1"].MatchPositionA, "the zero-delta pair is a1's first choice")
	assert.Equal(t, 2, byBID["b2"].MatchPositionA)
	assert.Equal(t, 1, byBID["b1"].MatchPositionB)
	assert.Equal(t, 1, byBID["b2"].MatchPositionB, "b2 has only one candidate")
}

func TestSplitResults_OutputLimitOrdersByDateThenKey(t *testing.T) {
	T := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []domain.ResultRow{
		{SourceKey: "z", Date: T, ResultType: domain.ResultLoss},
		{SourceKey: "a", Date: T.Add(time.Hour), ResultType: domain.ResultLoss},
		{SourceKey: "a", Date: T, ResultType: domain.ResultLoss},
		{SourceKey: "s", Date: T, ResultType: domain.ResultSuccess},
	}

	limit := 2
	stage, errs := engine.SplitResults(rows, &limit)

	require.Len(t, stage, 1)
	require.Len(t, errs, 2)
	assert.Equal(t, "a", errs[0].SourceKey)
	assert.Equal(t, T, errs[0].Date)
	assert.Equal(t, "z", errs[1].SourceKey)
}
