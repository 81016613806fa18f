package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

var _ Store = (*SQLiteStore)(nil)

const ddlActivities = `
CREATE TABLE IF NOT EXISTS screen_activities (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp     TEXT    NOT NULL,
    app_name      TEXT    NOT NULL DEFAULT '',
    window_title  TEXT    NOT NULL DEFAULT '',
    activity_type TEXT    NOT NULL DEFAULT '',
    description   TEXT    NOT NULL DEFAULT '',
    url           TEXT    NOT NULL DEFAULT '',
    document      TEXT    NOT NULL DEFAULT '',
    tags          TEXT    NOT NULL DEFAULT '[]',
    confidence    REAL    NOT NULL DEFAULT 0,
    created_at    TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_screen_activities_app_name
    ON screen_activities (app_name);
`

// SQLiteStore is a [Store] backed by a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if necessary) the database at path and ensures
// the schema exists. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("activity: open %s: %w", path, err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// alive across calls.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("activity: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, ddlActivities); err != nil {
		db.Close()
		return nil, fmt.Errorf("activity: migrate: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Save implements [Store].
func (s *SQLiteStore) Save(ctx context.Context, a ScreenActivity) (int64, error) {
	tags, err := json.Marshal(nonNil(a.Tags))
	if err != nil {
		return 0, fmt.Errorf("activity: encode tags: %w", err)
	}
	const q = `
		INSERT INTO screen_activities
		    (timestamp, app_name, window_title, activity_type, description, url, document, tags, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		a.Timestamp,
		a.AppName,
		a.WindowTitle,
		a.ActivityType,
		a.Description,
		a.URL,
		a.Document,
		string(tags),
		a.Confidence,
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("activity: save: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("activity: save: last insert id: %w", err)
	}
	return id, nil
}

// Recent implements [Store].
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]ScreenActivity, error) {
	if limit <= 0 {
		return nil, nil
	}
	const q = `
		SELECT id, timestamp, app_name, window_title, activity_type, description, url, document, tags, confidence
		FROM   screen_activities
		ORDER  BY id DESC
		LIMIT  ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("activity: recent: %w", err)
	}
	defer rows.Close()

	var out []ScreenActivity
	for rows.Next() {
		var (
			a    ScreenActivity
			tags string
		)
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.AppName, &a.WindowTitle, &a.ActivityType,
			&a.Description, &a.URL, &a.Document, &tags, &a.Confidence); err != nil {
			return nil, fmt.Errorf("activity: recent: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
			return nil, fmt.Errorf("activity: recent: decode tags of %d: %w", a.ID, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activity: recent: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

// Ping implements [Store].
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements [Store].
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
