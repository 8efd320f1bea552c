package sweep

import "fmt"

// RunStatus is the coordinator's lifecycle state for one run.
type RunStatus string

const (
	StatusCreated   RunStatus = "created"
	StatusSubmitted RunStatus = "submitted"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanAdvance reports whether moving from s to next goes forward.
// Created may fail directly when the run cannot be prepared.
func (s RunStatus) CanAdvance(next RunStatus) bool {
	switch s {
	case StatusCreated:
		return next == StatusSubmitted || next == StatusFailed
	case StatusSubmitted:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// SweepStatus is the state of a whole sweep.
type SweepStatus string

const (
	SweepStatusRunning  SweepStatus = "running"
	SweepStatusComplete SweepStatus = "complete"
	SweepStatusError    SweepStatus = "error"
)

// RunRecord tracks one run through the sweep.
type RunRecord struct {
	Name          string
	Configuration Configuration
	Status        RunStatus
	Kernel        string
	Metric        *float64
	Err           string
}

// Advance moves the record forward, rejecting backward or repeated moves.
func (r *RunRecord) Advance(next RunStatus) error {
	if !r.Status.CanAdvance(next) {
		return fmt.Errorf("run %q: invalid transition %s -> %s", r.Name, r.Status, next)
	}
	r.Status = next
	return nil
}
