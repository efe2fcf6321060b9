// Package sqlast is a typed predicate AST: rule_config entries drive
// predicate and projection construction through And/NotNull/InWindow/
// FormulaRef nodes rendered by a dialect-specific emitter, rather than
// string concatenation.
package sqlast

import "fmt"

// Expr is any node that can render itself as SQL text against a Dialect,
// appending its bind values to args and returning the rendered fragment.
type Expr interface {
	Render(d Dialect, args *Args) string
}

// Dialect renders the dialect-specific bits an Expr needs: bind-parameter
// placeholders and identifier quoting. Only PostgresDialect is implemented;
// a second dialect (e.g. for a test backend) could be added without
// touching any Expr implementation.
type Dialect interface {
	Placeholder(n int) string
	QuoteIdent(name string) string
}

// Args accumulates bind values in positional order as Exprs render.
type Args struct {
	values []any
}

// Add appends v and returns its 1-based position.
func (a *Args) Add(v any) int {
	a.values = append(a.values, v)
	return len(a.values)
}

// Values returns the accumulated bind values in order.
func (a *Args) Values() []any { return a.values }

// Column references a (possibly table-qualified) column.
type Column struct {
	Table string // optional
	Name  string
}

func (c Column) Render(d Dialect, _ *Args) string {
	if c.Table == "" {
		return d.QuoteIdent(c.Name)
	}
	return d.QuoteIdent(c.Table) + "." + d.QuoteIdent(c.Name)
}

// Literal is a bind-parameter value.
type Literal struct {
	Value any
}

func (l Literal) Render(d Dialect, args *Args) string {
	return d.Placeholder(args.Add(l.Value))
}

// Raw is trusted, pre-rendered SQL text injected verbatim — used for
// source_filter_* expressions and formula_mode operands, where the
// configuration supplies SQL text rather than a column reference.
type Raw struct {
	SQL string
}

func (r Raw) Render(_ Dialect, _ *Args) string {
	return r.SQL
}

// And renders the conjunction of its operands. An empty And renders as the
// SQL literal "true".
type And struct {
	Exprs []Expr
}

func (a And) Render(d Dialect, args *Args) string {
	if len(a.Exprs) == 0 {
		return "true"
	}
	if len(a.Exprs) == 1 {
		return a.Exprs[0].Render(d, args)
	}
	out := "("
	for i, e := range a.Exprs {
		if i > 0 {
			out += " AND "
		}
		out += e.Render(d, args)
	}
	return out + ")"
}

// NotNull renders expr IS NOT NULL — the source-side prefilter for
// correlation operands whose rule has allow_null=false.
type NotNull struct {
	Expr Expr
}

func (n NotNull) Render(d Dialect, args *Args) string {
	return fmt.Sprintf("(%s IS NOT NULL)", n.Expr.Render(d, args))
}

// InWindow renders col >= from AND col < to, the half-open window
// containment check every SOURCE_* row must satisfy.
type InWindow struct {
	Col      Expr
	From, To Expr
}

func (w InWindow) Render(d Dialect, args *Args) string {
	col := w.Col.Render(d, args)
	from := w.From.Render(d, args)
	to := w.To.Render(d, args)
	return fmt.Sprintf("(%s >= %s AND %s < %s)", col, from, col, to)
}

// FormulaRef renders a formula_mode correlation/discrepancy operand:
// trusted expression text evaluated over the source row, optionally
// aliased (e.g. "amount * 1.2 AS adjusted_amount" in a projection list).
type FormulaRef struct {
	Formula string
	Alias   string
}

func (f FormulaRef) Render(_ Dialect, _ *Args) string {
	if f.Alias == "" {
		return f.Formula
	}
	return fmt.Sprintf("%s AS %s", f.Formula, f.Alias)
}
