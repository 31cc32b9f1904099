package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	_ "modernc.org/sqlite"
)

// Entry is one recorded event.
type Entry struct {
	Seq        int64           `json:"seq"`
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Source     string          `json:"source"`
	Time       time.Time       `json:"time"`
	InstanceID string          `json:"instanceId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Filter narrows a query. Zero values match everything.
type Filter struct {
	TypePrefix string
	Source     string
	InstanceID string
	Since      time.Time
	// Limit caps the number of entries, newest first. Zero means 100.
	Limit int
}

const defaultQueryLimit = 100

// Store persists journal entries in SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// OpenStore opens or creates the database at path and applies migrations.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// EntryFromEvent converts a CloudEvent. The instance id is taken from the
// event data when present.
func EntryFromEvent(event cloudevents.Event) Entry {
	entry := Entry{
		ID:     event.ID(),
		Type:   event.Type(),
		Source: event.Source(),
		Time:   event.Time(),
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	if data := event.Data(); len(data) > 0 {
		entry.Data = json.RawMessage(data)
		var fields struct {
			InstanceID string `json:"instanceId"`
		}
		if json.Unmarshal(data, &fields) == nil {
			entry.InstanceID = fields.InstanceID
		}
	}
	return entry
}

// Append writes entries in one transaction.
func (s *Store) Append(ctx context.Context, entries ...Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin journal write: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO entries (id, type, source, time, instance_id, data) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare journal write: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var data any
		if len(e.Data) > 0 {
			data = string(e.Data)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Type, e.Source, e.Time.UnixNano(), nullable(e.InstanceID), data); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to write journal entry %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journal write: %w", err)
	}
	return nil
}

// Query returns the entries matching f, newest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var (
		where []string
		args  []any
	)
	if f.TypePrefix != "" {
		where = append(where, "substr(type, 1, ?) = ?")
		args = append(args, len(f.TypePrefix), f.TypePrefix)
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, f.Source)
	}
	if f.InstanceID != "" {
		where = append(where, "instance_id = ?")
		args = append(args, f.InstanceID)
	}
	if !f.Since.IsZero() {
		where = append(where, "time >= ?")
		args = append(args, f.Since.UnixNano())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	query := "SELECT seq, id, type, source, time, instance_id, data FROM entries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e          Entry
			nanos      int64
			instanceID sql.NullString
			data       sql.NullString
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.Type, &e.Source, &nanos, &instanceID, &data); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Time = time.Unix(0, nanos)
		e.InstanceID = instanceID.String
		if data.Valid {
			e.Data = json.RawMessage(data.String)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than before and returns how many went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE time < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return n, nil
}

// Close closes the database. It is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
