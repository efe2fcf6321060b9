package engine

import (
	"context"

	"github.com/rezkam/rapo/internal/domain"
)

// SourceFetcher materializes one side's windowed, filtered, keyed rows.
// storage/postgres implements it against SOURCE_A/SOURCE_B,
// resolving correlation_config/discrepancy_config operands (including
// formula_mode expressions) into SourceRecord.CorrelationValues and
// DiscrepancyValues at fetch time.
type SourceFetcher interface {
	FetchSource(ctx context.Context, processID string, window domain.Window, control domain.ControlConfig) ([]SourceRecord, error)
}

// ResultWriter persists one side's classified rows. storage/postgres
// implements it against rapo_res{a,b}_<control> and the per-process
// ERROR/STAGE temp relations.
type ResultWriter interface {
	WriteResults(ctx context.Context, processID string, stage, errs []domain.ResultRow) error
}

// Cleaner drops a process_id's temporary relations once a run terminates.
// storage/postgres implements it; a ReconciliationPipeline with no
// Cleaner configured treats Cleanup as a no-op, which is only correct for
// tests that never created temp relations in the first place.
type Cleaner interface {
	Cleanup(ctx context.Context, processID string) error
}

// ReconciliationPipeline wires the two database round trips that bracket
// the run (source fetch and result save) to the in-memory correlator, organizer, fuzzy
// resolver, stabilizer and classifier stages between them. Its Fetch,
// Correlate, Classify and Save methods give it the shape process.Pipeline
// expects; this package deliberately never imports process so the engine
// stays the pure, independently testable half of a run.
type ReconciliationPipeline struct {
	FetchA, FetchB SourceFetcher
	WriteA, WriteB ResultWriter
	Cleaner        Cleaner
	Rule           domain.RuleConfig

	sourceA, sourceB []SourceRecord
	rows             []CombRow
	orgA, orgB       map[string]*OrgRow
	resultA, resultB []domain.ResultRow
	outputLimit      *int // control-level cap, captured at Fetch

	successA, successB int
	errorA, errorB     int
}

func (p *ReconciliationPipeline) Fetch(ctx context.Context, processID string, window domain.Window, control domain.ControlConfig) error {
	a, err := p.FetchA.FetchSource(ctx, processID, window, control)
	if err != nil {
		return err
	}
	b, err := p.FetchB.FetchSource(ctx, processID, window, control)
	if err != nil {
		return err
	}
	p.sourceA, p.sourceB = a, b
	p.outputLimit = control.OutputLimit
	return nil
}

// Correlate runs the middle of the pipeline: candidate generation, organizing,
// fuzzy positional pairing when enabled, and stabilization.
func (p *ReconciliationPipeline) Correlate(ctx context.Context, processID string) error {
	rows, err := BuildCandidates(p.sourceA, p.sourceB, p.Rule)
	if err != nil {
		return err
	}
	p.rows = rows
	p.orgA = OrganizeA(sourceKeys(p.sourceA), rows)
	p.orgB = OrganizeB(sourceKeys(p.sourceB), rows)

	if p.Rule.FuzzyOptimization {
		ResolveFuzzyDuplicates(p.sourceA, p.sourceB, p.rows, p.orgA, p.orgB)
	}
	Stabilize(p.rows, p.orgA, p.orgB)
	return nil
}

// Classify runs stage 7 for both sides.
func (p *ReconciliationPipeline) Classify(ctx context.Context, processID string) error {
	combA := CombByKey(p.rows, func(r CombRow) string { return r.AID })
	combB := CombByKey(p.rows, func(r CombRow) string { return r.BID })
	p.resultA = ClassifyA(p.sourceA, p.orgA, combA, p.Rule)
	p.resultB = ClassifyB(p.sourceB, p.orgB, combB, p.Rule)
	return nil
}

// Save runs stage 8: splits each side into STAGE/ERROR, applies
// output_limit (the side-specific rule_config limit, falling back to the
// control-level cap), and writes both through the injected ResultWriters.
func (p *ReconciliationPipeline) Save(ctx context.Context, processID string) error {
	stageA, errA := SplitResults(p.resultA, effectiveLimit(p.Rule.OutputLimitA, p.outputLimit))
	stageB, errB := SplitResults(p.resultB, effectiveLimit(p.Rule.OutputLimitB, p.outputLimit))
	p.successA, p.errorA = len(stageA), len(errA)
	p.successB, p.errorB = len(stageB), len(errB)

	if err := p.WriteA.WriteResults(ctx, processID, stageA, errA); err != nil {
		return err
	}
	return p.WriteB.WriteResults(ctx, processID, stageB, errB)
}

// Cleanup drops this run's temporary relations unless no Cleaner is wired,
// in which case it is a deliberate no-op (used by tests that never created any).
func (p *ReconciliationPipeline) Cleanup(ctx context.Context, processID string) error {
	if p.Cleaner == nil {
		return nil
	}
	return p.Cleaner.Cleanup(ctx, processID)
}

// Counts returns the fetched/success/error counters the run log records,
// read after Save has written the final tables so that
// success_number and error_number equal the written STAGE/ERROR row counts
// (output_limit included), not the pre-truncation classification counts.
func (p *ReconciliationPipeline) Counts() (fetchedA, fetchedB, successA, successB, errorA, errorB int) {
	return len(p.sourceA), len(p.sourceB), p.successA, p.successB, p.errorA, p.errorB
}

func effectiveLimit(side, control *int) *int {
	if side != nil {
		return side
	}
	return control
}

func sourceKeys(recs []SourceRecord) []string {
	keys := make([]string, len(recs))
	for i, r := range recs {
		keys[i] = r.Key
	}
	return keys
}
