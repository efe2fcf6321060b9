package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rezkam/rapo/internal/domain"
	"github.com/rezkam/rapo/internal/sqlast"
)

// tempRelationStages lists the per-process_id temporary relations
// ("rapo_temp_<stage>_<process_id>"). Only the fetch and save stages
// round-trip through the database in this implementation, and neither
// creates one of these relations (SOURCE_A/SOURCE_B are read with a plain
// SELECT, results go straight to the per-control result tables, and COMB,
// ORG_A/B, DUP and MAC are kept as in-process Go slices/maps by
// internal/engine, since every stage between them is pure computation over
// the already-fetched rows). Cleaner
// still issues DROP TABLE IF EXISTS against the full naming scheme so a
// control whose rule_config or a future stage does materialize one of
// these (e.g. a prerequisite_sql that stages its own temp table under this
// convention) is cleaned up the same way.
var tempRelationStages = []string{
	"source_a", "source_b",
	"comb", "mod",
	"org_a", "org_b",
	"dup", "mac",
	"error_a", "error_b",
	"stage_a", "stage_b",
}

// Cleaner drops a process_id's temporary relations; they are deleted on
// exit unless Debug mode is active.
type Cleaner struct {
	Pool *pgxpool.Pool
}

func (c *Cleaner) Cleanup(ctx context.Context, processID string) error {
	dialect := sqlast.PostgresDialect{}
	for _, stage := range tempRelationStages {
		name := fmt.Sprintf("rapo_temp_%s_%s", stage, processID)
		if _, err := c.Pool.Exec(ctx, "DROP TABLE IF EXISTS "+dialect.QuoteIdent(name)); err != nil {
			return domain.WrapDB(fmt.Sprintf("drop %s", name), err)
		}
	}
	return nil
}
