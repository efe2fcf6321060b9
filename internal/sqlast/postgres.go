package sqlast

import "strconv"

// PostgresDialect renders Expr trees as PostgreSQL text: $1-style
// positional placeholders and double-quoted identifiers.
type PostgresDialect struct{}

func (PostgresDialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (PostgresDialect) QuoteIdent(name string) string {
	return `"` + name + `"`
}

// Render renders expr against the Postgres dialect, returning the SQL
// fragment and its bind values in order.
func Render(expr Expr) (sql string, values []any) {
	var args Args
	sql = expr.Render(PostgresDialect{}, &args)
	return sql, args.Values()
}
