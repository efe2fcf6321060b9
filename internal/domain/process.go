package domain

import "time"

// ProcessState is a run's position in ADDED -> WAITING -> STARTED ->
// (PROGRESS)* -> DONE | ERROR | CANCELLED.
type ProcessState string

const (
	ProcessAdded     ProcessState = "ADDED"
	ProcessWaiting   ProcessState = "WAITING"
	ProcessStarted   ProcessState = "STARTED"
	ProcessProgress  ProcessState = "PROGRESS"
	ProcessDone      ProcessState = "DONE"
	ProcessError     ProcessState = "ERROR"
	ProcessCancelled ProcessState = "CANCELLED"
)

// Terminal reports whether the state ends the run (no further stage runs,
// temp relations are cleaned up unless Debug mode is active).
func (s ProcessState) Terminal() bool {
	switch s {
	case ProcessDone, ProcessError, ProcessCancelled:
		return true
	default:
		return false
	}
}

// StatusCode maps a process state to the one-letter run status code
// observable externally via LOG.status.
func (s ProcessState) StatusCode() string {
	switch s {
	case ProcessAdded:
		return "A"
	case ProcessWaiting:
		return "Q"
	case ProcessStarted:
		return "S"
	case ProcessProgress:
		return "P"
	case ProcessDone:
		return "D"
	case ProcessError:
		return "E"
	case ProcessCancelled:
		return "C"
	default:
		return ""
	}
}

// Process is one row of LOG: a run's status and counters.
type Process struct {
	ProcessID string
	ControlID string
	// IterationLabel identifies which iteration_config entry produced this
	// run; empty for the base run.
	IterationLabel string

	State ProcessState

	DateFrom time.Time
	DateTo   time.Time

	StartDate *time.Time
	EndDate   *time.Time

	FetchedNumberA int
	FetchedNumberB int
	SuccessNumberA int
	SuccessNumberB int
	ErrorNumberA   int
	ErrorNumberB   int

	PrerequisiteValue *int

	TextLog     string
	TextError   string
	TextMessage string
}

// Duration returns the run's wall-clock duration, or zero if not finished.
func (p Process) Duration() time.Duration {
	if p.StartDate == nil || p.EndDate == nil {
		return 0
	}
	return p.EndDate.Sub(*p.StartDate)
}
