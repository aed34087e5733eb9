package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nerrad567/hearth-go/event"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	connectTimeout = 5 * time.Second
)

// ErrEmptyEvent indicates an attempt to record a timeline event without
// type or code.
var ErrEmptyEvent = errors.New("history: event has no type or code")

// schema bootstraps the timeline table. Kept additive; new columns get
// their own ALTER migrations when needed.
const schema = `
CREATE TABLE IF NOT EXISTS timeline (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	event_code  TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	event_name  TEXT NOT NULL DEFAULT '',
	device_id   TEXT NOT NULL DEFAULT '',
	device_name TEXT NOT NULL DEFAULT '',
	device_type TEXT NOT NULL DEFAULT '',
	event_utc   INTEGER NOT NULL DEFAULT 0,
	recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_timeline_device ON timeline(device_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_timeline_recorded ON timeline(recorded_at);
`

// Entry is one persisted timeline event plus its storage metadata.
type Entry struct {
	ID         int64
	Event      event.TimelineEvent
	RecordedAt time.Time
}

// Store persists timeline events to a local SQLite database.
//
// The store is an optional sink: it is wired as a timeline callback and
// everything it records stays available across restarts, unlike the
// cloud's own timeline which is retained server-side only.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the timeline database at path and
// bootstraps the schema.
//
// Parameters:
//   - path: Filesystem path to the SQLite file; parent directories are
//     created as needed
//
// Returns:
//   - *Store: Ready store
//   - error: If the file cannot be opened or the schema applied
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	// SQLite supports one writer; a single pooled connection avoids lock
	// contention between the stream goroutine and readers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}

	// File might not exist until the first write on some platforms.
	_ = os.Chmod(path, filePermissions)

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record persists one timeline event.
func (s *Store) Record(ctx context.Context, ev event.TimelineEvent) error {
	if ev.EventType == "" && ev.EventCode == "" {
		return ErrEmptyEvent
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO timeline
		 (event_code, event_type, event_name, device_id, device_name, device_type, event_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.EventCode,
		ev.EventType,
		ev.EventName,
		ev.DeviceID,
		ev.DeviceName,
		ev.DeviceType,
		ev.UnixTime(),
	)
	if err != nil {
		return fmt.Errorf("inserting timeline event: %w", err)
	}
	return nil
}

// Recent returns the newest entries across all devices, newest first.
// A non-positive limit takes the default; over-large limits are clamped.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return s.query(ctx,
		`SELECT id, event_code, event_type, event_name, device_id, device_name, device_type, event_utc, recorded_at
		 FROM timeline
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		clampLimit(limit),
	)
}

// ByDevice returns the newest entries for one device, newest first.
func (s *Store) ByDevice(ctx context.Context, deviceID string, limit int) ([]Entry, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("history: device id is required")
	}
	return s.query(ctx,
		`SELECT id, event_code, event_type, event_name, device_id, device_name, device_type, event_utc, recorded_at
		 FROM timeline
		 WHERE device_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		clampLimit(limit),
	)
}

// Prune deletes entries recorded more than olderThan ago and returns how
// many were removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: retention must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM timeline WHERE recorded_at < ?",
		cutoff.Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning timeline: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying timeline: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var utc int64
		var recordedAt string
		if err := rows.Scan(
			&e.ID,
			&e.Event.EventCode,
			&e.Event.EventType,
			&e.Event.EventName,
			&e.Event.DeviceID,
			&e.Event.DeviceName,
			&e.Event.DeviceType,
			&utc,
			&recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning timeline entry: %w", err)
		}
		e.Event.EventUTC = json.Number(strconv.FormatInt(utc, 10))
		ts, err := parseTimestamp(recordedAt)
		if err != nil {
			return nil, err
		}
		e.RecordedAt = ts
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating timeline: %w", err)
	}
	return entries, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// parseTimestamp handles the formats the sqlite driver emits for DATETIME
// defaults.
func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05",
		time.RFC3339,
		"2006-01-02T15:04:05Z07:00",
	} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("history: unparseable timestamp %q", raw)
}
