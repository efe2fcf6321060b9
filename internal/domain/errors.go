package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the fatal kinds listed in the error handling design.
// Every one of these transitions the owning process to ProcessError.
var (
	// ErrConfigInvalid indicates malformed rule_config, an unknown period_type,
	// an unknown normalization_type, or an empty correlation_config.
	ErrConfigInvalid = errors.New("rapo: control configuration invalid")

	// ErrPrerequisiteFailed indicates prerequisite_sql returned 0 (a query
	// returning no rows counts as 0) or prerun_hook returned a non-empty
	// abort code or an error.
	ErrPrerequisiteFailed = errors.New("rapo: prerequisite check failed")

	// ErrCorrelationLimitExceeded indicates the correlator's candidate pair
	// count exceeded the control's correlation_limit.
	ErrCorrelationLimitExceeded = errors.New("rapo: correlation limit exceeded")

	// ErrInstanceLimitReached indicates a new run refused to start because
	// the number of non-terminal runs for the control already equals
	// instance_limit.
	ErrInstanceLimitReached = errors.New("rapo: instance limit reached")

	// ErrTimeout indicates an asynchronous run exceeded its configured timeout.
	// Synchronous runs never raise this.
	ErrTimeout = errors.New("rapo: run timed out")

	// ErrUnsupportedControlKind indicates a control kind other than
	// Reconciliation was requested; only Reconciliation is implemented here.
	ErrUnsupportedControlKind = errors.New("rapo: unsupported control kind")
)

// DBError wraps an underlying database driver error verbatim, per the
// DB_ERROR kind: "underlying database exception; wrapped verbatim into
// text_error".
type DBError struct {
	Op  string
	Err error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("rapo: db error during %s: %v", e.Op, e.Err)
}

func (e *DBError) Unwrap() error { return e.Err }

// WrapDB wraps err as a DBError naming the operation it occurred during.
// Returns nil if err is nil.
func WrapDB(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DBError{Op: op, Err: err}
}

// IsDBError reports whether err is (or wraps) a DBError.
func IsDBError(err error) bool {
	var dbErr *DBError
	return errors.As(err, &dbErr)
}
