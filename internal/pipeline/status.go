package pipeline

import "fmt"

// Status is the lifecycle state of a run, stage or job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusSkipped marks stages downstream of a failure that never started.
	StatusSkipped Status = "skipped"
)

// IsTerminal reports whether the status will not change again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Validate checks that the status is one of the known values.
func (s Status) Validate() error {
	switch s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed, StatusSkipped:
		return nil
	}
	return fmt.Errorf("invalid status: %q", s)
}
