package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/rezkam/rapo/internal/domain"
)

// Acquire implements process.InstanceLeaseStore.Acquire against
// rapo_instance_lease: inside one short transaction, count this control's
// current lease rows and insert a new one only if doing so keeps the
// count at or under limit. limit <= 0 means unlimited.
func (s *Store) Acquire(ctx context.Context, controlID, processID string, limit int) (bool, error) {
	if limit <= 0 {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO rapo_instance_lease (control_id, process_id) VALUES ($1, $2)
		`, controlID, processID)
		if err != nil {
			return false, domain.WrapDB("acquire instance lease", err)
		}
		return true, nil
	}

	var acquired bool
	err := s.executeInTransaction(ctx, "acquire_instance_lease", func(tx pgx.Tx) error {
		// Serializes concurrent acquire attempts for the same control_id so the
		// count-then-insert below can't race two runs past the limit at once.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, controlID); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM rapo_instance_lease WHERE control_id = $1
		`, controlID).Scan(&count); err != nil {
			return err
		}
		if count >= limit {
			acquired = false
			return nil
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO rapo_instance_lease (control_id, process_id) VALUES ($1, $2)
		`, controlID, processID); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, domain.WrapDB("acquire instance lease", err)
	}
	return acquired, nil
}

// Release implements process.InstanceLeaseStore.Release: deletes this
// process_id's lease row once the run reaches a terminal state.
func (s *Store) Release(ctx context.Context, controlID, processID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM rapo_instance_lease WHERE control_id = $1 AND process_id = $2
	`, controlID, processID)
	return domain.WrapDB("release instance lease", err)
}
