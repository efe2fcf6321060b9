package process

import (
	"context"

	"github.com/rezkam/rapo/internal/domain"
)

// PrerunHook runs after STARTED, before the pipeline's first stage. A
// non-nil error or a non-empty returned string aborts the run with
// PREREQUISITE_FAILED, the string becoming TextMessage; hook *configuration*
// (how one is registered against a control) is out of scope here, only the
// callable shape the engine invokes.
type PrerunHook func(ctx context.Context, processID string) (string, error)

// PostrunHook fires once after the run reaches a terminal state. It
// cannot influence the outcome it is told about; it exists for callers that
// want to chain or notify on completion (the cascade mechanism named in the
// GLOSSARY is built on top of this, out of scope here).
type PostrunHook func(ctx context.Context, processID string, final domain.ProcessState)
