package postgres

import (
	"context"

	"github.com/rezkam/rapo/internal/domain"
)

// ExecPreparation implements process.StatementStore.ExecPreparation: a
// control's preparation_sql runs verbatim on the shared pool, once per run,
// inside the STARTED state.
func (s *Store) ExecPreparation(ctx context.Context, sql string) error {
	_, err := s.pool.Exec(ctx, sql)
	return domain.WrapDB("preparation_sql", err)
}

// EvalPrerequisite implements process.StatementStore.EvalPrerequisite: the
// query's first column of its first row is the prerequisite value the run
// log records; a query returning no rows counts as 0 and vetoes the run.
func (s *Store) EvalPrerequisite(ctx context.Context, sql string) (int, error) {
	var value int
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return 0, domain.WrapDB("prerequisite_sql", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, domain.WrapDB("prerequisite_sql", rows.Err())
	}
	if err := rows.Scan(&value); err != nil {
		return 0, domain.WrapDB("prerequisite_sql", err)
	}
	return value, nil
}
