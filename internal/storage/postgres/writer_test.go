package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/rapo/internal/domain"
	"github.com/rezkam/rapo/internal/storage/postgres"
)

// setupTestPool skips rather than fails when no database is configured, so
// the unit test suite stays runnable without Postgres.
func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("RAPO_TEST_DSN")
	if dsn == "" {
		t.Skip("RAPO_TEST_DSN not set, skipping Postgres integration test")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestSideWriter_CreatesTableOnFirstWrite(t *testing.T) {
	pool := setupTestPool(t)
	ctx := context.Background()
	table := "rapo_resa_writer_test"
	_, _ = pool.Exec(ctx, `DROP TABLE IF EXISTS `+table)
	t.Cleanup(func() { _, _ = pool.Exec(ctx, `DROP TABLE IF EXISTS `+table) })

	w := &postgres.SideWriter{Pool: pool, Table: table}

	stage := []domain.ResultRow{{
		SourceKey:  "a1",
		Date:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Source:     map[string]any{"k": "1", "v": "10"},
		ResultType: domain.ResultSuccess,
	}}
	errs := []domain.ResultRow{{
		SourceKey:              "a2",
		Date:                   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		Source:                 map[string]any{"k": "2", "v": "20"},
		ResultType:             domain.ResultDiscrepancy,
		DiscrepancyID:          "b2",
		DiscrepancyDescription: "v[5]",
		ProcessID:              "p1",
	}}

	require.NoError(t, w.WriteResults(ctx, "22222222-2222-2222-2222-222222222222", stage, errs))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM `+table).Scan(&count))
	require.Equal(t, 2, count)

	// A second run appends rather than truncating.
	require.NoError(t, w.WriteResults(ctx, "33333333-3333-3333-3333-333333333333", stage, nil))
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM `+table).Scan(&count))
	require.Equal(t, 3, count)
}

func TestSideWriter_EmptyRunStillCreatesTable(t *testing.T) {
	pool := setupTestPool(t)
	ctx := context.Background()
	table := "rapo_resb_writer_empty_test"
	_, _ = pool.Exec(ctx, `DROP TABLE IF EXISTS `+table)
	t.Cleanup(func() { _, _ = pool.Exec(ctx, `DROP TABLE IF EXISTS `+table) })

	w := &postgres.SideWriter{Pool: pool, Table: table}
	require.NoError(t, w.WriteResults(ctx, "p1", nil, nil))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM `+table).Scan(&count))
	require.Equal(t, 0, count)
}

func TestCleaner_DropsTempRelations(t *testing.T) {
	pool := setupTestPool(t)
	ctx := context.Background()
	processID := "11111111-1111-1111-1111-111111111111"

	_, err := pool.Exec(ctx, `CREATE TABLE "rapo_temp_source_a_`+processID+`" (id int)`)
	require.NoError(t, err)

	c := &postgres.Cleaner{Pool: pool}
	require.NoError(t, c.Cleanup(ctx, processID))

	var exists bool
	err = pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
		"rapo_temp_source_a_"+processID).Scan(&exists)
	require.NoError(t, err)
	require.False(t, exists)
}
