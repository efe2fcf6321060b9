package postgres

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rezkam/rapo/internal/domain"
	"github.com/rezkam/rapo/internal/engine"
	"github.com/rezkam/rapo/internal/sqlast"
)

// Side selects which half of a control's configuration a SideFetcher or
// SideWriter reads.
type Side int

const (
	SideA Side = iota
	SideB
)

// SideFetcher implements engine.SourceFetcher for one side of a control:
// it materializes SOURCE_A or SOURCE_B as rows in the resolved
// window, passing source_filter_*, keyed by the configured key field or by
// row identity when none is declared.
type SideFetcher struct {
	Pool *pgxpool.Pool
	Side Side
}

// sourceOperand is one correlation_config or discrepancy_config operand
// resolved to this side: either a plain column reference (FormulaMode
// false) or a formula expression that must be projected under a
// synthesized alias (FormulaMode true). AllowNull is only meaningful for
// correlation operands; a false value prefilters the side to non-null rows.
type sourceOperand struct {
	Expr        string
	FormulaMode bool
	AllowNull   bool
}

func sideParams(c domain.ControlConfig, side Side) (sourceName, dateField, keyField, filter string, corrFields, discFields []sourceOperand) {
	if side == SideA {
		corr := make([]sourceOperand, len(c.Rule.CorrelationConfig))
		for i, r := range c.Rule.CorrelationConfig {
			corr[i] = sourceOperand{Expr: r.FieldA, FormulaMode: r.FormulaMode, AllowNull: r.AllowNull}
		}
		disc := make([]sourceOperand, len(c.Rule.DiscrepancyConfig))
		for i, r := range c.Rule.DiscrepancyConfig {
			disc[i] = sourceOperand{Expr: r.FieldA, FormulaMode: r.FormulaMode}
		}
		return c.SourceNameA, c.SourceDateFieldA, c.SourceKeyFieldA, c.SourceFilterA, corr, disc
	}
	corr := make([]sourceOperand, len(c.Rule.CorrelationConfig))
	for i, r := range c.Rule.CorrelationConfig {
		corr[i] = sourceOperand{Expr: r.FieldB, FormulaMode: r.FormulaMode, AllowNull: r.AllowNull}
	}
	disc := make([]sourceOperand, len(c.Rule.DiscrepancyConfig))
	for i, r := range c.Rule.DiscrepancyConfig {
		disc[i] = sourceOperand{Expr: r.FieldB, FormulaMode: r.FormulaMode}
	}
	return c.SourceNameB, c.SourceDateFieldB, c.SourceKeyFieldB, c.SourceFilterB, corr, disc
}

// sqlExpr resolves an operand to the AST node it reads as: raw SQL text
// when formula_mode, a quoted column reference otherwise.
func (op sourceOperand) sqlExpr() sqlast.Expr {
	if op.FormulaMode {
		return sqlast.Raw{SQL: op.Expr}
	}
	return sqlast.Column{Name: op.Expr}
}

const (
	corrAliasPrefix = "rapo_corr_"
	discAliasPrefix = "rapo_disc_"
)

const rowIdentityAlias = "rapo_row_key"

// buildSourceQuery renders the windowed source SELECT: the window bound
// via sqlast.InWindow, source_filter_* (already a boolean SQL expression)
// injected as a sqlast.Raw conjunct, and every correlation operand whose
// rule has allow_null=false prefiltered to non-null rows via sqlast.NotNull
// so null keys never reach candidate generation on that side. The original
// timestamp is kept for time-shift math. Every formula_mode
// correlation_config/discrepancy_config operand is an expression over the
// source, so it is projected as its own aliased column via
// sqlast.FormulaRef and FetchSource reads it back by alias instead of
// re-evaluating SQL in Go.
func buildSourceQuery(c domain.ControlConfig, side Side, window domain.Window) (query string, args []any, dateField, keyCol string, corrCols, discCols []string) {
	sourceName, dateField, keyField, filter, corr, disc := sideParams(c, side)
	dialect := sqlast.PostgresDialect{}

	keyAlias := domain.KeyFieldOrAlias(keyField, rowIdentityAlias)
	keyExpr := keyField
	if keyExpr == "" {
		keyExpr = "ctid::text"
	}

	preds := []sqlast.Expr{sqlast.InWindow{
		Col:  sqlast.Column{Name: dateField},
		From: sqlast.Literal{Value: window.From},
		To:   sqlast.Literal{Value: window.To},
	}}
	if strings.TrimSpace(filter) != "" {
		preds = append(preds, sqlast.Raw{SQL: "(" + filter + ")"})
	}
	for _, op := range corr {
		if !op.AllowNull {
			preds = append(preds, sqlast.NotNull{Expr: op.sqlExpr()})
		}
	}
	whereSQL, whereArgs := sqlast.Render(sqlast.And{Exprs: preds})

	columns := []string{"*", fmt.Sprintf("%s AS %s", keyExpr, dialect.QuoteIdent(keyAlias))}

	corrCols = make([]string, len(corr))
	for i, op := range corr {
		if !op.FormulaMode {
			corrCols[i] = op.Expr
			continue
		}
		alias := fmt.Sprintf("%s%d", corrAliasPrefix, i)
		ref := sqlast.FormulaRef{Formula: op.Expr, Alias: dialect.QuoteIdent(alias)}
		columns = append(columns, ref.Render(dialect, nil))
		corrCols[i] = alias
	}
	discCols = make([]string, len(disc))
	for i, op := range disc {
		if !op.FormulaMode {
			discCols[i] = op.Expr
			continue
		}
		alias := fmt.Sprintf("%s%d", discAliasPrefix, i)
		ref := sqlast.FormulaRef{Formula: op.Expr, Alias: dialect.QuoteIdent(alias)}
		columns = append(columns, ref.Render(dialect, nil))
		discCols[i] = alias
	}

	query = fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s",
		strings.Join(columns, ", "),
		dialect.QuoteIdent(sourceName),
		whereSQL,
	)
	return query, whereArgs, dateField, keyAlias, corrCols, discCols
}

// FetchSource runs the query built by buildSourceQuery and assembles
// engine.SourceRecords, resolving each configured correlation_config/
// discrepancy_config field into SourceRecord.CorrelationValues/
// DiscrepancyValues so the rest of the pipeline never touches SQL again.
func (f *SideFetcher) FetchSource(ctx context.Context, processID string, window domain.Window, control domain.ControlConfig) ([]engine.SourceRecord, error) {
	query, args, dateField, keyCol, corrFields, discFields := buildSourceQuery(control, f.Side, window)

	var out []engine.SourceRecord
	scan := func(rows pgx.Rows) error {
		defer rows.Close()
		var err error
		out, err = f.scanRecords(rows, dateField, keyCol, corrFields, discFields)
		return err
	}

	// Parallelism reaches the database only as a per-statement degree
	// hint; SET LOCAL scopes it to this fetch's transaction.
	if control.Parallelism > 1 {
		err := pgx.BeginFunc(ctx, f.Pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL max_parallel_workers_per_gather = %d", control.Parallelism)); err != nil {
				return err
			}
			rows, err := tx.Query(ctx, query, args...)
			if err != nil {
				return err
			}
			return scan(rows)
		})
		if err != nil {
			return nil, domain.WrapDB("fetch source", err)
		}
		return out, nil
	}

	rows, err := f.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapDB("fetch source", err)
	}
	if err := scan(rows); err != nil {
		return nil, domain.WrapDB("fetch source", err)
	}
	return out, nil
}

func (f *SideFetcher) scanRecords(rows pgx.Rows, dateField, keyCol string, corrFields, discFields []string) ([]engine.SourceRecord, error) {
	fields := rows.FieldDescriptions()
	var out []engine.SourceRecord
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		raw := make(map[string]any, len(fields))
		for i, fd := range fields {
			raw[string(fd.Name)] = values[i]
		}

		rec := engine.SourceRecord{
			Key: fmt.Sprint(raw[keyCol]),
			Raw: raw,
		}
		if dv, ok := raw[dateField]; ok {
			if t, ok := dv.(time.Time); ok {
				rec.Date = t
			}
		}
		rec.CorrelationValues = make([]any, len(corrFields))
		for i, field := range corrFields {
			rec.CorrelationValues[i] = raw[field]
		}
		rec.DiscrepancyValues = make([]float64, len(discFields))
		for i, field := range discFields {
			if fv, ok := toFloat(raw[field]); ok {
				rec.DiscrepancyValues[i] = fv
			} else {
				// Missing or non-numeric operands must keep failing tolerance
				// checks downstream instead of comparing as zero.
				rec.DiscrepancyValues[i] = math.NaN()
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
