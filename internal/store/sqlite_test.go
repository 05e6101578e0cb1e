package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailai/internal/failure"
	"github.com/nhle/mailai/internal/model"
)

// newTestStore creates an in-memory SQLiteStore with all migrations
// applied and closes it when the test completes.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})
	return s
}

func report(started time.Time, results ...model.ProcessingResult) *model.CycleReport {
	return &model.CycleReport{
		ID:         uuid.New(),
		Mode:       model.ModeOnce,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Results:    results,
	}
}

func TestRecordCycleAndReadBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r := report(started,
		model.ProcessingResult{UID: 4, From: "alice@example.com", Subject: "AI: 2+2", Status: model.StatusDelivered, Provider: "chatgpt", Model: "gpt-5-mini"},
		model.ProcessingResult{UID: 5, Subject: "AI: empty", Status: model.StatusSkipped, Stage: failure.StageExtract, Reason: "empty request"},
		model.ProcessingResult{UID: 6, Subject: "AI: fails", Status: model.StatusFailed, Stage: failure.StageSend, Kind: failure.KindDelivery, Reason: "550"},
	)
	require.NoError(t, s.RecordCycle(ctx, r))

	cycles, err := s.RecentCycles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, cycles, 1)

	c := cycles[0]
	require.Equal(t, r.ID.String(), c.ID)
	require.Equal(t, "once", c.Mode)
	require.Equal(t, 1, c.Delivered)
	require.Equal(t, 1, c.Skipped)
	require.Equal(t, 1, c.Failed)
	require.Empty(t, c.Error)
	require.True(t, c.StartedAt.Equal(started))

	outcomes, err := s.CycleOutcomes(ctx, r.ID.String()[:8])
	require.NoError(t, err)
	require.Equal(t, r.Results, outcomes)
}

func TestRecordAbortedCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := report(time.Now())
	r.Err = errors.New("connection failure during fetch: dial tcp: refused")
	require.NoError(t, s.RecordCycle(ctx, r))

	cycles, err := s.RecentCycles(ctx, 0)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	require.Contains(t, cycles[0].Error, "refused")
}

func TestRecentCyclesNewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		r := report(base.Add(time.Duration(i) * time.Hour))
		ids = append(ids, r.ID.String())
		require.NoError(t, s.RecordCycle(ctx, r))
	}

	cycles, err := s.RecentCycles(ctx, 2)
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	require.Equal(t, ids[2], cycles[0].ID)
	require.Equal(t, ids[1], cycles[1].ID)
}

func TestPruneRemovesOldCyclesAndOutcomes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := report(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		model.ProcessingResult{UID: 1, Status: model.StatusDelivered})
	recent := report(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		model.ProcessingResult{UID: 2, Status: model.StatusDelivered})
	require.NoError(t, s.RecordCycle(ctx, old))
	require.NoError(t, s.RecordCycle(ctx, recent))

	n, err := s.Prune(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	outcomes, err := s.CycleOutcomes(ctx, old.ID.String())
	require.NoError(t, err)
	require.Empty(t, outcomes)

	cycles, err := s.RecentCycles(ctx, 0)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	require.Equal(t, recent.ID.String(), cycles[0].ID)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.runMigrations())

	var version int
	require.NoError(t, s.db.Get(&version, "SELECT MAX(version) FROM schema_version"))
	require.Equal(t, len(migrations), version)
}
