package mapping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteStore implements Store on SQLite with WAL, so other processes can
// read the mapping while the bot writes it.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path.
// An empty path opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		// write transactions take the lock at BEGIN, so busy_timeout applies
		// instead of failing on a read-to-write upgrade
		dsn = path + "?_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping store: %w", err)
	}

	// one connection: a single writer, and :memory: stays one database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc ignores most DSN params, so pragmas go through Exec
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS "index" (
		room_id TEXT PRIMARY KEY,
		value   TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS "name" (
		room_id TEXT PRIMARY KEY,
		value   TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqlRead(ctx context.Context, q querier, roomID string) (RoomMapping, bool, error) {
	m := RoomMapping{RoomID: roomID}
	found := false

	for _, col := range []struct {
		table string
		dst   *string
	}{
		{`"index"`, &m.IndexName},
		{`"name"`, &m.DisplayName},
	} {
		err := q.QueryRowContext(ctx, `SELECT value FROM `+col.table+` WHERE room_id = ?`, roomID).Scan(col.dst)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return RoomMapping{}, false, err
		default:
			found = true
		}
	}
	return m, found, nil
}

func sqlWrite(ctx context.Context, tx *sql.Tx, roomID string, m RoomMapping) error {
	upsert := func(table, value string) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO `+table+` (room_id, value) VALUES (?, ?)
			 ON CONFLICT(room_id) DO UPDATE SET value = excluded.value`, roomID, value)
		return err
	}
	if m.IndexName != "" {
		if err := upsert(`"index"`, m.IndexName); err != nil {
			return err
		}
	}
	if m.DisplayName != "" {
		if err := upsert(`"name"`, m.DisplayName); err != nil {
			return err
		}
	}
	return nil
}

// inTx runs fn in a write transaction, committing only when fn succeeds.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Lookup implements Store.
func (s *SQLiteStore) Lookup(ctx context.Context, roomID string) (RoomMapping, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return RoomMapping{}, false, ErrClosed
	}

	// both tables are read from one snapshot
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return RoomMapping{}, false, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return sqlRead(ctx, tx, roomID)
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, roomID string, fn func(*RoomMapping) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		m, _, err := sqlRead(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if err := fn(&m); err != nil {
			return err
		}
		return sqlWrite(ctx, tx, roomID, m)
	})
}

// Move implements Store.
func (s *SQLiteStore) Move(ctx context.Context, from, to string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		src, _, err := sqlRead(ctx, tx, from)
		if err != nil {
			return err
		}
		if src.IndexName == "" {
			return ErrSourceMissing
		}
		return sqlWrite(ctx, tx, to, RoomMapping{
			RoomID:      to,
			IndexName:   src.IndexName,
			DisplayName: src.Name(),
		})
	})
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]RoomMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.room_id, i.value, COALESCE(n.value, '')
		FROM "index" i LEFT JOIN "name" n ON n.room_id = i.room_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rooms []RoomMapping
	for rows.Next() {
		var m RoomMapping
		if err := rows.Scan(&m.RoomID, &m.IndexName, &m.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return normalize(rooms), nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.path != "" {
		// fold the WAL back so the file is self-contained
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
