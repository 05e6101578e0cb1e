package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cycles (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	delivered   INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS outcomes (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id  TEXT NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
	uid       INTEGER NOT NULL,
	sender    TEXT NOT NULL DEFAULT '',
	subject   TEXT NOT NULL DEFAULT '',
	status    TEXT NOT NULL,
	stage     TEXT NOT NULL DEFAULT '',
	kind      TEXT NOT NULL DEFAULT '',
	provider  TEXT NOT NULL DEFAULT '',
	model     TEXT NOT NULL DEFAULT '',
	reason    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at);
CREATE INDEX IF NOT EXISTS idx_outcomes_cycle_id ON outcomes(cycle_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_outcomes_status
	ON outcomes(status);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
