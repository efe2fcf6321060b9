package process

import "fmt"

// PanicError records a panic recovered from a pipeline stage. Runner.Run
// converts it into the run's TextError and transitions the process to
// ERROR rather than letting the panic escape and take other controls'
// scheduled runs down with it.
type PanicError struct {
	Value      any
	StackTrace string
}

func (e PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
