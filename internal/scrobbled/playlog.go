// Package scrobbled observes presence transitions and classifies what the
// listener did: play, pause, scrub, track change, or playing a track all
// the way through. Played-through tracks are recorded to a local play log.
package scrobbled

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/chorus/pkg/music"
)

// schema is the play log table. One row per played-through track.
const schema = `
CREATE TABLE IF NOT EXISTS plays (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id   TEXT NOT NULL,
	artist    TEXT NOT NULL,
	title     TEXT NOT NULL,
	album     TEXT NOT NULL DEFAULT '',
	played_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plays_user_track ON plays(user_id, artist, title);
`

// PlayLog records played-through tracks to SQLite.
type PlayLog struct {
	db *sql.DB
}

// NewPlayLog opens (or creates) the play log at the given path. Use
// ":memory:" for an ephemeral log.
func NewPlayLog(path string) (*PlayLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("scrobbled: failed to open play log: %w", err)
	}

	// SQLite only supports one concurrent writer; a single connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("scrobbled: failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("scrobbled: failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("scrobbled: failed to create schema: %w", err)
	}

	return &PlayLog{db: db}, nil
}

// Record appends one played-through track for the user.
func (l *PlayLog) Record(ctx context.Context, userID string, track *music.Track, playedAt time.Time) error {
	if !track.Present() {
		return fmt.Errorf("scrobbled: cannot record a track without a name")
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO plays (user_id, artist, title, album, played_at) VALUES (?, ?, ?, ?, ?)`,
		userID, track.Artist.Name, track.Name, track.Album.Name, playedAt.UTC())
	if err != nil {
		return fmt.Errorf("scrobbled: failed to record play: %w", err)
	}
	return nil
}

// Count returns how often the user has played the track through.
func (l *PlayLog) Count(ctx context.Context, userID, artist, title string) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM plays WHERE user_id = ? AND artist = ? AND title = ?`,
		userID, artist, title).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("scrobbled: failed to count plays: %w", err)
	}
	return count, nil
}

// Close releases the database handle.
func (l *PlayLog) Close() error {
	return l.db.Close()
}
