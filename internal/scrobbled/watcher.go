package scrobbled

import (
	"context"
	"log"
	"time"

	"github.com/scrypster/chorus/pkg/music"
)

// Event classifies one presence transition.
type Event string

const (
	// EventPlay means playback started after silence.
	EventPlay Event = "play"
	// EventPause means the listener stopped mid-track (or the playlist
	// ended).
	EventPause Event = "pause"
	// EventScrub means the listener jumped within the same track.
	EventScrub Event = "scrub"
	// EventTrackChange means a new track started before the old one
	// would have ended, or after scrubbing.
	EventTrackChange Event = "track change"
	// EventPlayedThrough means the previous track ran start to finish.
	// It implies a track change and is the only event that is recorded.
	EventPlayedThrough Event = "played through"
	// EventNone means the transition carried no music activity change.
	EventNone Event = ""
)

// State is one observation of a user's listening activity: the track plus
// the timing the presence reported. CreatedAt is when the activity state
// was created, Start/End the predicted span of the track.
type State struct {
	Track     music.Track
	Start     time.Time
	End       time.Time
	CreatedAt time.Time
}

// startSlack absorbs the clock skew between the platform creating an
// activity and the track actually starting.
const startSlack = time.Second

// Classify names what happened between two observations of the same user.
// A nil state means no music activity on that side.
func Classify(before, after *State, now time.Time) Event {
	switch {
	case before == nil && after == nil:
		return EventNone
	case before == nil:
		return EventPlay
	case after == nil:
		return EventPause
	}

	if before.Track.Equal(&after.Track) {
		// Same track but the state changed: the listener jumped around.
		// A real position change replaces the predicted end, so only a
		// transition before the old end can be a scrub.
		if now.Before(before.End) {
			return EventScrub
		}
		return EventNone
	}

	// The previous track ran from its start to its predicted end when the
	// activity existed before the track started and the change arrives no
	// sooner than the predicted end.
	startedFromBeginning := !before.CreatedAt.After(before.Start.Add(startSlack))
	ranToEnd := !now.Add(startSlack).Before(before.End)
	if startedFromBeginning && ranToEnd {
		return EventPlayedThrough
	}
	return EventTrackChange
}

// Recorder persists played-through tracks. *PlayLog implements it.
type Recorder interface {
	Record(ctx context.Context, userID string, track *music.Track, playedAt time.Time) error
}

// Watcher folds presence transitions per user and records played-through
// tracks. It keeps the last observed state per user; Observe is the feed.
type Watcher struct {
	recorder Recorder
	last     map[string]*State
}

// NewWatcher creates a watcher recording into recorder. A nil recorder
// only classifies.
func NewWatcher(recorder Recorder) *Watcher {
	return &Watcher{recorder: recorder, last: make(map[string]*State)}
}

// Observe feeds one observation for a user and returns the classified
// event. The watcher is not safe for concurrent use; feed it from a single
// goroutine (the gateway read loop).
func (w *Watcher) Observe(ctx context.Context, userID string, state *State, now time.Time) Event {
	before := w.last[userID]
	if state == nil {
		delete(w.last, userID)
	} else {
		w.last[userID] = state
	}

	event := Classify(before, state, now)
	switch event {
	case EventNone:
		return event
	case EventPlayedThrough:
		track := before.Track
		log.Printf("Played through: %s - %s", track.Artist.Name, track.Name)
		if w.recorder != nil {
			if err := w.recorder.Record(ctx, userID, &track, now); err != nil {
				log.Printf("Failed to record play: %v", err)
			}
		}
	case EventPlay, EventPause, EventScrub, EventTrackChange:
		var track music.Track
		if state != nil {
			track = state.Track
		} else {
			track = before.Track
		}
		log.Printf("%s: %s - %s", event, track.Artist.Name, track.Name)
	}
	return event
}
