// Package store persists decoded recordings in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"example.com/evt3gate/internal/evt3"
)

//go:embed schema.sql
var schema string

const insertBatch = 50_000

var ErrNotFound = errors.New("recording not found")

// RecordingInfo describes a stored recording without its events.
type RecordingInfo struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Source    string        `json:"source,omitempty"`
	Metadata  evt3.Metadata `json:"metadata"`
	Events    int64         `json:"events"`
	Words     int64         `json:"words"`
	TimeLoops uint64        `json:"timeLoops"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Store is a SQLite-backed event store.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveRecording stores rec and all of its events under a new ID.
func (s *Store) SaveRecording(ctx context.Context, name string, rec evt3.Recording) (RecordingInfo, error) {
	if err := ctx.Err(); err != nil {
		return RecordingInfo{}, err
	}
	if s == nil || s.sqlDB == nil {
		return RecordingInfo{}, fmt.Errorf("storage is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = filepath.Base(rec.Path)
	}
	info := RecordingInfo{
		ID:        uuid.NewString(),
		Name:      name,
		Source:    rec.Path,
		Metadata:  rec.Metadata,
		Events:    int64(len(rec.Events)),
		Words:     rec.Stats.Words,
		TimeLoops: rec.Stats.TimeLoops,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	minTime, maxTime := timeColumns(rec.Metadata)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return RecordingInfo{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO recordings (id, name, source, width, height, min_time, max_time, event_count, words, time_loops, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Name, info.Source,
		info.Metadata.Width, info.Metadata.Height,
		minTime, maxTime,
		info.Events, info.Words, int64(info.TimeLoops),
		info.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return RecordingInfo{}, fmt.Errorf("insert recording: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (recording_id, seq, t, x, y, p) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return RecordingInfo{}, fmt.Errorf("prepare events: %w", err)
	}
	defer stmt.Close()
	for i, ev := range rec.Events {
		if i%insertBatch == 0 {
			if err := ctx.Err(); err != nil {
				return RecordingInfo{}, err
			}
		}
		if _, err := stmt.ExecContext(ctx, info.ID, i, clampTime(ev.Timestamp), ev.X, ev.Y, ev.Polarity); err != nil {
			return RecordingInfo{}, fmt.Errorf("insert event %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return RecordingInfo{}, fmt.Errorf("commit: %w", err)
	}
	return info, nil
}

// ListRecordings returns every stored recording, newest first.
func (s *Store) ListRecordings(ctx context.Context) ([]RecordingInfo, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, source, width, height, min_time, max_time, event_count, words, time_loops, created_at
		 FROM recordings ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()
	var out []RecordingInfo
	for rows.Next() {
		info, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// GetRecording returns the recording with the given ID or ErrNotFound.
func (s *Store) GetRecording(ctx context.Context, id string) (RecordingInfo, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, source, width, height, min_time, max_time, event_count, words, time_loops, created_at
		 FROM recordings WHERE id = ?`, strings.TrimSpace(id))
	info, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RecordingInfo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return info, err
}

// EventsInRange returns the stored events of recording id with
// t0 < t < tend, in decode order.
func (s *Store) EventsInRange(ctx context.Context, id string, t0, tend uint64) ([]evt3.Event, error) {
	return s.EventsInWindow(ctx, id, evt3.Window{From: t0, To: tend, HasFrom: true, HasTo: true})
}

// EventsInWindow returns the stored events of recording id inside w, in
// decode order. Open bounds are not applied.
func (s *Store) EventsInWindow(ctx context.Context, id string, w evt3.Window) ([]evt3.Event, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	query := `SELECT t, x, y, p FROM events WHERE recording_id = ?`
	args := []any{id}
	if w.HasFrom {
		query += ` AND t > ?`
		args = append(args, clampTime(w.From))
	}
	if w.HasTo {
		query += ` AND t < ?`
		args = append(args, clampTime(w.To))
	}
	return s.queryEvents(ctx, id, query+` ORDER BY seq`, args...)
}

// Events returns every stored event of recording id in decode order.
func (s *Store) Events(ctx context.Context, id string) ([]evt3.Event, error) {
	return s.queryEvents(ctx, id, `SELECT t, x, y, p FROM events WHERE recording_id = ? ORDER BY seq`, id)
}

func (s *Store) queryEvents(ctx context.Context, id, query string, args ...any) ([]evt3.Event, error) {
	if _, err := s.GetRecording(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	var out []evt3.Event
	for rows.Next() {
		var ev evt3.Event
		var ts int64
		if err := rows.Scan(&ts, &ev.X, &ev.Y, &ev.Polarity); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Timestamp = uint64(ts)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// DeleteRecording removes a recording and its events.
func (s *Store) DeleteRecording(ctx context.Context, id string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (RecordingInfo, error) {
	var info RecordingInfo
	var minTime, maxTime sql.NullInt64
	var loops, created int64
	err := row.Scan(&info.ID, &info.Name, &info.Source,
		&info.Metadata.Width, &info.Metadata.Height,
		&minTime, &maxTime,
		&info.Events, &info.Words, &loops, &created)
	if err != nil {
		return RecordingInfo{}, err
	}
	info.Metadata.MinTime = math.MaxUint64
	if minTime.Valid && maxTime.Valid {
		info.Metadata.MinTime = uint64(minTime.Int64)
		info.Metadata.MaxTime = uint64(maxTime.Int64)
	}
	info.TimeLoops = uint64(loops)
	info.CreatedAt = time.UnixMilli(created).UTC()
	return info, nil
}

// timeColumns maps the empty-recording sentinel to NULL.
func timeColumns(m evt3.Metadata) (sql.NullInt64, sql.NullInt64) {
	if m.Empty() {
		return sql.NullInt64{}, sql.NullInt64{}
	}
	return sql.NullInt64{Int64: clampTime(m.MinTime), Valid: true},
		sql.NullInt64{Int64: clampTime(m.MaxTime), Valid: true}
}

func clampTime(t uint64) int64 {
	if t > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(t)
}
