package marker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS retry_markers (
	parent_id    TEXT PRIMARY KEY,
	marker_id    TEXT NOT NULL,
	job          TEXT NOT NULL,
	policy_json  TEXT NOT NULL,
	attached_at  TEXT NOT NULL
);
`

// SQLiteStore keeps markers next to the host's build records in SQLite
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at dbPath and runs migrations
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one connection: attaches are serialised
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Attach(ctx context.Context, m Marker) (Outcome, error) {
	if m.ParentID == "" {
		return AlreadyPresent, ErrEmptyParentID
	}

	policyJSON, err := json.Marshal(m.Policy)
	if err != nil {
		return AlreadyPresent, fmt.Errorf("marshal policy: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO retry_markers (parent_id, marker_id, job, policy_json, attached_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(parent_id) DO NOTHING`,
		m.ParentID, m.ID, m.Job, string(policyJSON), m.AttachedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return AlreadyPresent, fmt.Errorf("insert marker: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return AlreadyPresent, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return AlreadyPresent, nil
	}
	return Attached, nil
}

func (s *SQLiteStore) Get(ctx context.Context, parentID string) (Marker, bool, error) {
	var (
		m          Marker
		policyJSON string
		attachedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT parent_id, marker_id, job, policy_json, attached_at FROM retry_markers WHERE parent_id = ?`,
		parentID,
	).Scan(&m.ParentID, &m.ID, &m.Job, &policyJSON, &attachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Marker{}, false, nil
	}
	if err != nil {
		return Marker{}, false, fmt.Errorf("query marker: %w", err)
	}

	if err := json.Unmarshal([]byte(policyJSON), &m.Policy); err != nil {
		return Marker{}, false, fmt.Errorf("unmarshal policy: %w", err)
	}
	if m.AttachedAt, err = time.Parse(time.RFC3339Nano, attachedAt); err != nil {
		return Marker{}, false, fmt.Errorf("parse attached_at: %w", err)
	}
	return m, true, nil
}

func (s *SQLiteStore) Detach(ctx context.Context, parentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM retry_markers WHERE parent_id = ?`, parentID); err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM retry_markers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count markers: %w", err)
	}
	return n, nil
}
