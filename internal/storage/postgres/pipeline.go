package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rezkam/rapo/internal/domain"
	"github.com/rezkam/rapo/internal/engine"
)

// NewReconciliationPipeline wires a control's Postgres-backed fetch and
// write sides into an engine.ReconciliationPipeline, ready to hand to
// process.Runner. The returned pipeline is scoped to a single control;
// callers build a fresh one per control (and per iteration, since
// iterations share control_id but otherwise run the identical pipeline).
func NewReconciliationPipeline(pool *pgxpool.Pool, control domain.ControlConfig) *engine.ReconciliationPipeline {
	return &engine.ReconciliationPipeline{
		FetchA: &SideFetcher{Pool: pool, Side: SideA},
		FetchB: &SideFetcher{Pool: pool, Side: SideB},
		WriteA: &SideWriter{Pool: pool, Table: control.OutputTableA},
		WriteB: &SideWriter{Pool: pool, Table: control.OutputTableB},
		Cleaner: &Cleaner{Pool: pool},
		Rule:    control.Rule,
	}
}
