package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS room_transcripts (
	room_id    TEXT PRIMARY KEY,
	events     BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteSlot stores one row per room id in a SQLite database.
type SQLiteSlot struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// OpenSQLiteSlot opens (creating if needed) the database at path. The
// special path ":memory:" keeps everything in process.
func OpenSQLiteSlot(path string) (*SQLiteSlot, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// single writer, and ":memory:" is per connection
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteSlot{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteSlot) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load reads the row for roomID.
func (s *SQLiteSlot) Load(ctx context.Context, roomID string) ([]byte, bool, error) {
	if s == nil || s.sqlDB == nil {
		return nil, false, fmt.Errorf("storage is not configured")
	}
	var data []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT events FROM room_transcripts WHERE room_id = ?`, roomID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load transcript: %w", err)
	}
	return data, true, nil
}

// Save upserts the row for roomID.
func (s *SQLiteSlot) Save(ctx context.Context, roomID string, data []byte) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO room_transcripts (room_id, events, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(room_id) DO UPDATE SET events = excluded.events, updated_at = excluded.updated_at`,
		roomID, data, s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}
