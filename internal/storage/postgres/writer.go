package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rezkam/rapo/internal/domain"
	"github.com/rezkam/rapo/internal/sqlast"
)

// rapo result-table columns: every result table carries exactly
// these four alongside the source columns.
const (
	colResultType = "rapo_result_type"
	colDiscID     = "rapo_discrepancy_id"
	colDiscDesc   = "rapo_discrepancy_description"
	colProcessID  = "rapo_process_id"
)

// SideWriter implements engine.ResultWriter for one side of a control:
// it creates the per-control result table
// (ControlConfig.OutputTable{A,B}, i.e. rapo_res{a,b}_<control_name>) on
// first write and appends STAGE (Success) and ERROR (Loss/Duplicate/
// Discrepancy) rows to it tagged with the four RAPO columns. Result tables
// are never truncated between runs — a failed run's Save is simply never
// called, so prior successful data is preserved.
type SideWriter struct {
	Pool  *pgxpool.Pool
	Table string
}

// WriteResults persists stage ++ errs into the side's result table,
// creating it on first use even when both are empty. Column shape is
// inferred from the union of source fields observed across the rows being
// written; a run that writes zero rows (legal when a source is empty)
// creates a table carrying only the four RAPO columns. Since CREATE TABLE
// IF NOT EXISTS leaves an existing table alone, ensureTable then adds any
// source column the table lacks (as text) the first time a later run does
// have rows to write.
func (w *SideWriter) WriteResults(ctx context.Context, processID string, stage, errs []domain.ResultRow) error {
	rows := make([]domain.ResultRow, 0, len(stage)+len(errs))
	rows = append(rows, stage...)
	rows = append(rows, errs...)

	cols := sourceColumns(rows)
	if err := w.ensureTable(ctx, cols); err != nil {
		return domain.WrapDB(fmt.Sprintf("ensure result table %s", w.Table), err)
	}
	if len(rows) == 0 {
		return nil
	}
	if err := w.insertRows(ctx, processID, cols, rows); err != nil {
		return domain.WrapDB(fmt.Sprintf("write results %s", w.Table), err)
	}
	return nil
}

// sourceColumns returns the sorted union of source field names across
// rows, giving CREATE TABLE a stable column order.
func sourceColumns(rows []domain.ResultRow) []string {
	seen := map[string]bool{}
	for _, r := range rows {
		for k := range r.Source {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func (w *SideWriter) ensureTable(ctx context.Context, cols []string) error {
	dialect := sqlast.PostgresDialect{}

	defs := make([]string, 0, len(cols)+4)
	for _, c := range cols {
		defs = append(defs, fmt.Sprintf("%s text", dialect.QuoteIdent(c)))
	}
	defs = append(defs,
		dialect.QuoteIdent(colResultType)+" text NOT NULL",
		dialect.QuoteIdent(colDiscID)+" text NOT NULL DEFAULT ''",
		dialect.QuoteIdent(colDiscDesc)+" text NOT NULL DEFAULT ''",
		dialect.QuoteIdent(colProcessID)+" uuid NOT NULL",
	)

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", dialect.QuoteIdent(w.Table), strings.Join(defs, ", "))
	if _, err := w.Pool.Exec(ctx, ddl); err != nil {
		return err
	}
	for _, c := range cols {
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s text", dialect.QuoteIdent(w.Table), dialect.QuoteIdent(c))
		if _, err := w.Pool.Exec(ctx, alter); err != nil {
			return err
		}
	}
	return nil
}

// insertRows appends rows through one pgx.Batch holding a single-row
// INSERT per row; source columns
// are rendered through fmt.Sprint so the dynamically-typed CREATE TABLE
// above (all source columns are declared text) always accepts them.
func (w *SideWriter) insertRows(ctx context.Context, processID string, cols []string, rows []domain.ResultRow) error {
	dialect := sqlast.PostgresDialect{}

	quoted := make([]string, 0, len(cols)+4)
	for _, c := range cols {
		quoted = append(quoted, dialect.QuoteIdent(c))
	}
	quoted = append(quoted, dialect.QuoteIdent(colResultType), dialect.QuoteIdent(colDiscID), dialect.QuoteIdent(colDiscDesc), dialect.QuoteIdent(colProcessID))

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		dialect.QuoteIdent(w.Table),
		strings.Join(quoted, ", "),
		placeholders(len(quoted)),
	)

	batch := &pgx.Batch{}
	for _, r := range rows {
		args := make([]any, 0, len(cols)+4)
		for _, c := range cols {
			args = append(args, stringify(r.Source[c]))
		}
		args = append(args, string(r.ResultType), r.DiscrepancyID, r.DiscrepancyDescription, processID)
		batch.Queue(insertSQL, args...)
	}

	br := w.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range rows {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(ph, ", ")
}

func stringify(v any) any {
	if v == nil {
		return nil
	}
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}
