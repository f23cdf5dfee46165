package coordinator

import "fmt"

// CycleError reports a cycle that produced no snapshot. The previous
// snapshot stays authoritative.
type CycleError struct {
	CycleID string
	Cause   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("refresh cycle %s failed: %v", e.CycleID, e.Cause)
}

func (e *CycleError) Unwrap() error {
	return e.Cause
}
