// Package store archives finished sessions in postgres. It is optional:
// without a DSN the server runs purely in-memory, which is the normal mode,
// and archive failures never feed back into the session path.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"cardtable/internal/session"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(dsn string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS session_results (
    id         BIGSERIAL PRIMARY KEY,
    session_id BIGINT NOT NULL,
    capacity   INT NOT NULL,
    ranking    JSONB NOT NULL DEFAULT '[]',
    started_at TIMESTAMPTZ,
    ended_at   TIMESTAMPTZ NOT NULL
)`)
	return err
}

// ArchiveSession implements session.Archiver.
func (s *Store) ArchiveSession(ctx context.Context, rec session.Record) error {
	ranking, err := json.Marshal(rec.Ranking)
	if err != nil {
		return err
	}
	var startedAt *time.Time
	if !rec.StartedAt.IsZero() {
		startedAt = &rec.StartedAt
	}
	_, err = s.Pool.Exec(ctx,
		`INSERT INTO session_results (session_id, capacity, ranking, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.SessionID, rec.Capacity, ranking, startedAt, rec.EndedAt)
	return err
}

type Result struct {
	SessionID int             `json:"session_id"`
	Capacity  int             `json:"capacity"`
	Ranking   []session.Score `json:"ranking"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	EndedAt   time.Time       `json:"ended_at"`
}

// RecentResults lists the latest archived sessions, newest first.
func (s *Store) RecentResults(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT session_id, capacity, ranking, started_at, ended_at
		 FROM session_results ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var res Result
		var ranking []byte
		if err := rows.Scan(&res.SessionID, &res.Capacity, &ranking, &res.StartedAt, &res.EndedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(ranking, &res.Ranking); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
