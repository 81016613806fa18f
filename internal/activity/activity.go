// Package activity defines the screen-activity records produced by screenshot
// analysis and the stores that keep a history of them.
//
// Two [Store] implementations are provided: [SQLiteStore], a file-backed
// store on the pure-Go modernc.org/sqlite driver, and [MemStore], a bounded
// in-memory ring used when no database path is configured and in tests.
package activity

import (
	"context"
	"errors"
)

// ErrClosed is returned by store operations after Close.
var ErrClosed = errors.New("activity: store closed")

// ScreenActivity is the structured description of what the user was doing in
// one screenshot.
type ScreenActivity struct {
	// ID is assigned by the store on Save. Zero for unsaved activities.
	ID int64 `json:"id,omitempty"`

	// Timestamp is the capture time as supplied by the caller (RFC 3339).
	Timestamp string `json:"timestamp"`

	AppName     string `json:"app_name"`
	WindowTitle string `json:"window_title"`

	// ActivityType is a coarse category such as "coding", "browsing",
	// "communication", "writing", "meeting", "media" or "other".
	ActivityType string `json:"activity_type"`

	Description string   `json:"description"`
	URL         string   `json:"url,omitempty"`
	Document    string   `json:"document,omitempty"`
	Tags        []string `json:"tags"`

	// Confidence is the model's self-reported certainty in [0, 1].
	Confidence float64 `json:"confidence"`
}

// AppContext is the reduced result of a quick extraction: which application
// is in the foreground and what it is showing.
type AppContext struct {
	AppName     string `json:"app_name"`
	WindowTitle string `json:"window_title"`
	URL         string `json:"url,omitempty"`
}

// Summary condenses a list of activities.
type Summary struct {
	Summary         string         `json:"summary"`
	TotalActivities int            `json:"total_activities"`
	TopApps         []string       `json:"top_apps"`
	Categories      map[string]int `json:"categories"`
	Highlights      []string       `json:"highlights"`
}

// Store persists screen activities.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists a and returns its assigned ID.
	Save(ctx context.Context, a ScreenActivity) (int64, error)

	// Recent returns up to limit of the most recently saved activities in
	// the order they were saved (oldest first). A non-positive limit
	// returns nothing.
	Recent(ctx context.Context, limit int) ([]ScreenActivity, error)

	// Ping reports whether the store is usable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
