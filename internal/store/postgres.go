package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/multiplier-cli/internal/db"
	"github.com/sells-group/multiplier-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters. Zero fields
// keep the defaults (4 max, 1 min).
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

func (c *PoolConfig) apply(pgxCfg *pgxpool.Config) {
	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	if c != nil {
		if c.MaxConns > 0 {
			pgxCfg.MaxConns = c.MaxConns
		}
		if c.MinConns > 0 {
			pgxCfg.MinConns = c.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
}

var historyColumns = []string{"id", "source", "text", "multipliers", "prediction", "created_at"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	poolCfg.apply(pgxCfg)

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS history (
	seq         BIGSERIAL PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	source      TEXT NOT NULL,
	text        TEXT NOT NULL,
	multipliers JSONB NOT NULL,
	prediction  DOUBLE PRECISION NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_history_created_at ON history(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, entry *model.HistoryEntry) error {
	prepareEntry(entry)

	multJSON, err := json.Marshal(entry.Multipliers)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal multipliers")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO history (id, source, text, multipliers, prediction, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, string(entry.Source), entry.Text, string(multJSON), entry.Prediction, entry.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert history %s", entry.ID)
}

func (s *PostgresStore) ListHistory(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, text, multipliers, prediction, created_at FROM history ORDER BY seq DESC LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list history")
	}
	defer rows.Close()

	var out []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var source string
		var multJSON []byte
		if err := rows.Scan(&e.ID, &source, &e.Text, &multJSON, &e.Prediction, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		e.Source = model.SourceOrder(source)
		if err := json.Unmarshal(multJSON, &e.Multipliers); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal multipliers")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list history iterate")
}

func (s *PostgresStore) ImportHistory(ctx context.Context, entries []model.HistoryEntry) (int64, error) {
	rows := make([][]any, 0, len(entries))
	for i := range entries {
		e := entries[i]
		prepareEntry(&e)
		multJSON, err := json.Marshal(e.Multipliers)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal multipliers")
		}
		rows = append(rows, []any{e.ID, string(e.Source), e.Text, string(multJSON), e.Prediction, e.CreatedAt})
	}

	n, err := db.CopyFrom(ctx, s.pool, "history", historyColumns, rows)
	return n, eris.Wrap(err, "postgres: import history")
}
