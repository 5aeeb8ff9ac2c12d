package checkpoint

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/ragflow/graph"
)

// SqliteStore implements Store on SQLite.
type SqliteStore struct {
	db        *sql.DB
	tableName string
}

var _ Store = (*SqliteStore)(nil)

// SqliteOptions configures a SqliteStore.
type SqliteOptions struct {
	Path      string
	TableName string // default "checkpoints"
}

// NewSqliteStore opens (and if needed initializes) a SQLite checkpoint store.
func NewSqliteStore(opts SqliteOptions) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "checkpoints"
	}

	s := &SqliteStore{db: db, tableName: tableName}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqliteStore) initSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (run_id, step)
		);
		CREATE INDEX IF NOT EXISTS idx_%s_run_id ON %s (run_id);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// Save implements Store.
func (s *SqliteStore) Save(ctx context.Context, cp graph.Checkpoint) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, step, node, state, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET
			node = excluded.node,
			state = excluded.state,
			created_at = excluded.created_at
	`, s.tableName)

	_, err := s.db.ExecContext(ctx, query,
		cp.RunID, cp.Step, cp.Node, string(cp.State), cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Latest implements Store.
func (s *SqliteStore) Latest(ctx context.Context, runID string) (graph.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT run_id, step, node, state, created_at FROM %s
		WHERE run_id = ? ORDER BY step DESC LIMIT 1
	`, s.tableName)

	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx, query, runID))
	if err == sql.ErrNoRows {
		return graph.Checkpoint{}, ErrNotFound
	}
	return cp, err
}

// List implements Store.
func (s *SqliteStore) List(ctx context.Context, runID string) ([]graph.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT run_id, step, node, state, created_at FROM %s
		WHERE run_id = ? ORDER BY step ASC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []graph.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Delete implements Store.
func (s *SqliteStore) Delete(ctx context.Context, runID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE run_id = ?`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query, runID); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (graph.Checkpoint, error) {
	var (
		cp    graph.Checkpoint
		state string
	)
	if err := row.Scan(&cp.RunID, &cp.Step, &cp.Node, &state, &cp.CreatedAt); err != nil {
		return graph.Checkpoint{}, err
	}
	cp.State = []byte(state)
	return cp, nil
}
