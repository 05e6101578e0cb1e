package store

import (
	"context"
	"time"

	"github.com/nhle/mailai/internal/model"
)

// CycleSummary is one journaled cycle without its per-message outcomes.
type CycleSummary struct {
	ID         string    `db:"id" json:"id"`
	Mode       string    `db:"mode" json:"mode"`
	StartedAt  time.Time `db:"started_at" json:"started_at"`
	FinishedAt time.Time `db:"finished_at" json:"finished_at"`
	Delivered  int       `db:"delivered" json:"delivered"`
	Skipped    int       `db:"skipped" json:"skipped"`
	Failed     int       `db:"failed" json:"failed"`
	Error      string    `db:"error" json:"error,omitempty"`
}

// Journal is an append-only record of processing cycles. It is written
// by the processing loop and read only for display; it never decides
// whether a message is processed.
type Journal interface {
	RecordCycle(ctx context.Context, report *model.CycleReport) error
	RecentCycles(ctx context.Context, limit int) ([]CycleSummary, error)
	CycleOutcomes(ctx context.Context, cycleID string) ([]model.ProcessingResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
