package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-ptzscan/pkg/detection"
)

const schema = `
CREATE TABLE IF NOT EXISTS captures (
	id          TEXT PRIMARY KEY,
	event_id    TEXT NOT NULL,
	view        TEXT NOT NULL,
	pan         REAL NOT NULL,
	tilt        REAL NOT NULL,
	zoom        REAL NOT NULL,
	label       TEXT NOT NULL DEFAULT '',
	confidence  REAL NOT NULL DEFAULT 0,
	detections  TEXT NOT NULL DEFAULT '[]',
	file        TEXT NOT NULL DEFAULT '',
	image_bytes INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS captures_created ON captures(created_at DESC);
CREATE INDEX IF NOT EXISTS captures_event ON captures(event_id);
`

// Index keeps capture metadata in SQLite so the dashboard can list recent
// events without walking the capture directory. Images are not stored.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (or creates) the index at path. Use ":memory:" for a
// throwaway index.
func OpenIndex(ctx context.Context, path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("events: open index: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY and
	// keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("events: ping index: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("events: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("events: create schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Record implements Recorder.
func (x *Index) Record(ctx context.Context, c Capture) error {
	c.fill(time.Now())
	dets := c.Detections
	if dets == nil {
		dets = []detection.Detection{}
	}
	detJSON, err := json.Marshal(dets)
	if err != nil {
		return fmt.Errorf("events: marshal detections: %w", err)
	}

	_, err = x.db.ExecContext(ctx, `
		INSERT INTO captures (id, event_id, view, pan, tilt, zoom, label, confidence, detections, file, image_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.EventID, string(c.View), c.Pose.Pan, c.Pose.Tilt, c.Pose.Zoom,
		c.Label, c.Confidence, string(detJSON), c.Filename(), len(c.Image), c.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("events: insert capture: %w", err)
	}
	return nil
}

// Entry is a capture row as listed by Recent.
type Entry struct {
	Capture
	File       string `json:"file"`
	ImageBytes int    `json:"image_bytes"`
}

// Recent returns up to limit captures, newest first.
func (x *Index) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := x.db.QueryContext(ctx, `
		SELECT id, event_id, view, pan, tilt, zoom, label, confidence, detections, file, image_bytes, created_at
		FROM captures
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("events: query captures: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			view    string
			detJSON string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.EventID, &view, &e.Pose.Pan, &e.Pose.Tilt, &e.Pose.Zoom,
			&e.Label, &e.Confidence, &detJSON, &e.File, &e.ImageBytes, &created); err != nil {
			return nil, fmt.Errorf("events: scan capture: %w", err)
		}
		e.View = View(view)
		e.CreatedAt = time.Unix(0, created)
		if err := json.Unmarshal([]byte(detJSON), &e.Detections); err != nil {
			return nil, fmt.Errorf("events: decode detections: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of indexed captures.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM captures`).Scan(&n)
	return n, err
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}
