package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailai/internal/failure"
	"github.com/nhle/mailai/internal/model"
)

// SQLiteStore implements Journal using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Journal = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to ":memory:" is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// RecordCycle stores a finished cycle and its per-message outcomes in
// one transaction.
func (s *SQLiteStore) RecordCycle(ctx context.Context, report *model.CycleReport) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	counts := report.Counts()
	errText := ""
	if report.Err != nil {
		errText = report.Err.Error()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cycles (
			id, mode, started_at, finished_at,
			delivered, skipped, failed, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID.String(), string(report.Mode),
		report.StartedAt.UTC(), report.FinishedAt.UTC(),
		counts.Delivered, counts.Skipped, counts.Failed, errText,
	)
	if err != nil {
		return fmt.Errorf("inserting cycle %s: %w", report.ID, err)
	}

	if len(report.Results) > 0 {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO outcomes (
				cycle_id, uid, sender, subject, status,
				stage, kind, provider, model, reason
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing outcome statement: %w", err)
		}
		defer stmt.Close()

		for _, r := range report.Results {
			_, err = stmt.ExecContext(ctx,
				report.ID.String(), r.UID, r.From, r.Subject, string(r.Status),
				string(r.Stage), string(r.Kind), r.Provider, r.Model, r.Reason,
			)
			if err != nil {
				return fmt.Errorf("inserting outcome for UID %d: %w", r.UID, err)
			}
		}
	}

	return tx.Commit()
}

// RecentCycles returns up to limit cycles, newest first.
func (s *SQLiteStore) RecentCycles(ctx context.Context, limit int) ([]CycleSummary, error) {
	query := "SELECT * FROM cycles ORDER BY started_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var cycles []CycleSummary
	if err := s.db.SelectContext(ctx, &cycles, query); err != nil {
		return nil, fmt.Errorf("querying cycles: %w", err)
	}
	return cycles, nil
}

type outcomeRow struct {
	UID      uint32 `db:"uid"`
	Sender   string `db:"sender"`
	Subject  string `db:"subject"`
	Status   string `db:"status"`
	Stage    string `db:"stage"`
	Kind     string `db:"kind"`
	Provider string `db:"provider"`
	Model    string `db:"model"`
	Reason   string `db:"reason"`
}

// CycleOutcomes returns the per-message results of the cycle whose ID
// starts with cycleID, in processing order.
func (s *SQLiteStore) CycleOutcomes(ctx context.Context, cycleID string) ([]model.ProcessingResult, error) {
	var rows []outcomeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT uid, sender, subject, status, stage, kind, provider, model, reason
		FROM outcomes
		WHERE cycle_id LIKE ? || '%'
		ORDER BY id`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes for %s: %w", cycleID, err)
	}

	results := make([]model.ProcessingResult, len(rows))
	for i, r := range rows {
		results[i] = model.ProcessingResult{
			UID:      r.UID,
			From:     r.Sender,
			Subject:  r.Subject,
			Status:   model.Status(r.Status),
			Stage:    failure.Stage(r.Stage),
			Kind:     failure.Kind(r.Kind),
			Provider: r.Provider,
			Model:    r.Model,
			Reason:   r.Reason,
		}
	}
	return results, nil
}

// Prune deletes cycles that started before the cutoff, with their
// outcomes, and returns how many cycles were removed.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	cutoff := before.UTC()
	_, err = tx.ExecContext(ctx, `
		DELETE FROM outcomes
		WHERE cycle_id IN (SELECT id FROM cycles WHERE started_at < ?)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning outcomes: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM cycles WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning cycles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return n, tx.Commit()
}
