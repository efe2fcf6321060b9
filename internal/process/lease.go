package process

import (
	"context"

	"github.com/rezkam/rapo/internal/domain"
)

// InstanceLeaseStore enforces instance_limit against
// rapo_instance_lease: one row per non-terminal process_id for a
// control_id. storage/postgres implements this against a short
// transaction, keeping shared mutable state (CONFIG/LOG) behind small
// writes.
type InstanceLeaseStore interface {
	// Acquire inserts a lease row for processID under controlID if doing so
	// would not exceed limit concurrent leases for that control. ok is false
	// (no error) when the limit is already reached.
	Acquire(ctx context.Context, controlID, processID string, limit int) (ok bool, err error)

	// Release deletes processID's lease row. Called once the run reaches a
	// terminal state, regardless of outcome.
	Release(ctx context.Context, controlID, processID string) error
}

// LogStore persists Process rows into the run log: one row per run,
// created at ADDED and updated as the run progresses through its states.
type LogStore interface {
	Insert(ctx context.Context, p domain.Process) error
	Update(ctx context.Context, p domain.Process) error
}

// StatementStore executes a control's preparation_sql and evaluates its
// prerequisite_sql, both of which run inside the STARTED state.
// storage/postgres implements it against the same pool as everything else.
type StatementStore interface {
	// ExecPreparation runs preparation_sql verbatim.
	ExecPreparation(ctx context.Context, sql string) error

	// EvalPrerequisite evaluates prerequisite_sql as a scalar query. A zero
	// result vetoes the run with PREREQUISITE_FAILED.
	EvalPrerequisite(ctx context.Context, sql string) (int, error)
}
