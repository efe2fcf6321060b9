package postgres

import (
	"context"

	"github.com/rezkam/rapo/internal/domain"
)

// Insert implements process.LogStore.Insert against rapo_process_log
// one row created at ADDED.
func (s *Store) Insert(ctx context.Context, p domain.Process) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rapo_process_log
			(process_id, control_id, iteration_label, state, date_from, date_to)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ProcessID, p.ControlID, p.IterationLabel, string(p.State), p.DateFrom, p.DateTo)
	return domain.WrapDB("insert process log", err)
}

// Update implements process.LogStore.Update: re-written in full on every
// state transition rather than column-by-column, keeping this the only
// write path a caller needs to reason about.
func (s *Store) Update(ctx context.Context, p domain.Process) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE rapo_process_log SET
			state = $2,
			start_date = $3,
			end_date = $4,
			fetched_number_a = $5,
			fetched_number_b = $6,
			success_number_a = $7,
			success_number_b = $8,
			error_number_a = $9,
			error_number_b = $10,
			prerequisite_value = $11,
			text_log = $12,
			text_error = $13,
			text_message = $14
		WHERE process_id = $1
	`,
		p.ProcessID, string(p.State), p.StartDate, p.EndDate,
		p.FetchedNumberA, p.FetchedNumberB,
		p.SuccessNumberA, p.SuccessNumberB,
		p.ErrorNumberA, p.ErrorNumberB,
		p.PrerequisiteValue,
		p.TextLog, p.TextError, p.TextMessage,
	)
	return domain.WrapDB("update process log", err)
}
