package sqlast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rezkam/rapo/internal/sqlast"
)

func TestColumn(t *testing.T) {
	sql, values := sqlast.Render(sqlast.Column{Table: "a", Name: "k"})
	assert.Equal(t, `"a"."k"`, sql)
	assert.Empty(t, values)

	sql, _ = sqlast.Render(sqlast.Column{Name: "k"})
	assert.Equal(t, `"k"`, sql)
}

func TestAnd(t *testing.T) {
	and := sqlast.And{Exprs: []sqlast.Expr{
		sqlast.NotNull{Expr: sqlast.Column{Name: "a"}},
		sqlast.Raw{SQL: "(amount > 0)"},
	}}
	sql, values := sqlast.Render(and)
	assert.Equal(t, `(("a" IS NOT NULL) AND (amount > 0))`, sql)
	assert.Empty(t, values)

	sql, _ = sqlast.Render(sqlast.And{})
	assert.Equal(t, "true", sql)

	sql, _ = sqlast.Render(sqlast.And{Exprs: []sqlast.Expr{sqlast.Raw{SQL: "(x = 1)"}}})
	assert.Equal(t, "(x = 1)", sql)
}

func TestNotNull(t *testing.T) {
	sql, _ := sqlast.Render(sqlast.NotNull{Expr: sqlast.Column{Name: "k"}})
	assert.Equal(t, `("k" IS NOT NULL)`, sql)

	sql, _ = sqlast.Render(sqlast.NotNull{Expr: sqlast.Raw{SQL: "amount * 1.2"}})
	assert.Equal(t, `(amount * 1.2 IS NOT NULL)`, sql)
}

func TestInWindow(t *testing.T) {
	w := sqlast.InWindow{
		Col:  sqlast.Column{Name: "d"},
		From: sqlast.Literal{Value: "2026-01-01"},
		To:   sqlast.Literal{Value: "2026-02-01"},
	}
	sql, values := sqlast.Render(w)
	assert.Equal(t, `("d" >= $1 AND "d" < $2)`, sql)
	assert.Equal(t, []any{"2026-01-01", "2026-02-01"}, values)
}

func TestFormulaRef(t *testing.T) {
	f := sqlast.FormulaRef{Formula: "amount * 1.2", Alias: "adj"}
	sql, _ := sqlast.Render(f)
	assert.Equal(t, "amount * 1.2 AS adj", sql)

	f2 := sqlast.FormulaRef{Formula: "amount * 1.2"}
	sql2, _ := sqlast.Render(f2)
	assert.Equal(t, "amount * 1.2", sql2)
}
