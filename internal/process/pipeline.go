package process

import (
	"context"

	"github.com/rezkam/rapo/internal/domain"
)

// ControlKind selects which capability set a control's pipeline implements
// (polymorphism over control types). Only Reconciliation is
// built out; the others are named so the catalogue can describe a control's
// kind even though this engine has nothing to run for them yet.
type ControlKind string

const (
	ControlReconciliation ControlKind = "Reconciliation"
	ControlAnalysis       ControlKind = "Analysis"
	ControlComparison     ControlKind = "Comparison"
	ControlReport         ControlKind = "Report"
	ControlKPI            ControlKind = "KPI"
)

// Pipeline is the capability set a control kind must provide: fetch its
// sources, correlate them, classify the result, and persist it.
// engine.ReconciliationPipeline satisfies this by structural typing; the
// Runner holds only this interface, so any future control kind plugs in
// without the Runner changing.
type Pipeline interface {
	Fetch(ctx context.Context, processID string, window domain.Window, control domain.ControlConfig) error
	Correlate(ctx context.Context, processID string) error
	Classify(ctx context.Context, processID string) error
	Save(ctx context.Context, processID string) error

	// Cleanup drops this process_id's temporary relations. Skipped by the
	// Runner when RunOptions.Debug is set, which retains them for inspection.
	Cleanup(ctx context.Context, processID string) error
}

// PipelineFor resolves a control kind to its runnable Pipeline. Only
// Reconciliation has one; the other kinds are catalogued but have no
// runnable pipeline here.
func PipelineFor(kind ControlKind, reconciliation Pipeline) (Pipeline, error) {
	if kind == ControlReconciliation {
		if reconciliation == nil {
			return nil, domain.ErrUnsupportedControlKind
		}
		return reconciliation, nil
	}
	return nil, domain.ErrUnsupportedControlKind
}
