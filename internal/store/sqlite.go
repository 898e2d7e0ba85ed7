package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/multiplier-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS history (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	source      TEXT NOT NULL,
	text        TEXT NOT NULL,
	multipliers TEXT NOT NULL,
	prediction  REAL NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_history_created_at ON history(created_at);
`

const sqliteInsertHistory = `INSERT INTO history (id, source, text, multipliers, prediction, created_at) VALUES (?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, entry *model.HistoryEntry) error {
	prepareEntry(entry)

	multJSON, err := json.Marshal(entry.Multipliers)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal multipliers")
	}

	_, err = s.db.ExecContext(ctx, sqliteInsertHistory,
		entry.ID, string(entry.Source), entry.Text, string(multJSON), entry.Prediction, entry.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert history %s", entry.ID)
}

func (s *SQLiteStore) ListHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, text, multipliers, prediction, created_at FROM history ORDER BY seq DESC LIMIT ?`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list history")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var multJSON string
		if err := rows.Scan(&e.ID, &e.Source, &e.Text, &multJSON, &e.Prediction, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		if err := json.Unmarshal([]byte(multJSON), &e.Multipliers); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal multipliers")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list history iterate")
}

func (s *SQLiteStore) ImportHistory(ctx context.Context, entries []model.HistoryEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteInsertHistory)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import prepare")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range entries {
		e := entries[i]
		prepareEntry(&e)
		multJSON, err := json.Marshal(e.Multipliers)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal multipliers")
		}
		if _, err := stmt.ExecContext(ctx, e.ID, string(e.Source), e.Text, string(multJSON), e.Prediction, e.CreatedAt); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import history %s", e.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import commit")
	}
	return int64(len(entries)), nil
}
