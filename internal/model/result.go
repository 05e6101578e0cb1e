package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mailai/internal/failure"
)

// Status is the final state of one processed message.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// ProcessingResult is the outcome of one message in one cycle.
type ProcessingResult struct {
	UID      uint32
	From     string
	Subject  string
	Status   Status
	Stage    failure.Stage
	Kind     failure.Kind
	Provider string
	Model    string
	Reason   string
}

// CycleMode tells a single pass from a monitor tick.
type CycleMode string

const (
	ModeOnce    CycleMode = "once"
	ModeMonitor CycleMode = "monitor"
)

// CycleReport summarizes one processing cycle.
type CycleReport struct {
	ID         uuid.UUID
	Mode       CycleMode
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []ProcessingResult

	// Err is set when the cycle was aborted (connection or configuration
	// failure). Results then holds whatever finished before the abort.
	Err error
}

// NewCycleReport starts a report with a fresh ID.
func NewCycleReport(mode CycleMode) *CycleReport {
	return &CycleReport{
		ID:        uuid.New(),
		Mode:      mode,
		StartedAt: time.Now(),
	}
}

// Add appends a message result.
func (r *CycleReport) Add(res ProcessingResult) {
	r.Results = append(r.Results, res)
}

// CycleCounts is the per-status tally of a cycle.
type CycleCounts struct {
	Delivered int
	Skipped   int
	Failed    int
}

// Counts tallies results by status.
func (r *CycleReport) Counts() CycleCounts {
	var c CycleCounts
	for _, res := range r.Results {
		switch res.Status {
		case StatusDelivered:
			c.Delivered++
		case StatusSkipped:
			c.Skipped++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// Aborted reports whether the cycle stopped early.
func (r *CycleReport) Aborted() bool {
	return r.Err != nil
}
