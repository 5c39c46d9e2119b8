package platform

import (
	"strings"
	"sync"
	"time"

	"github.com/scrypster/chorus/pkg/music"
)

// activityListening is the Discord activity type for "Listening to ...".
const activityListening = 2

// PresenceCache holds the latest music activity per user, fed by gateway
// presence events. It implements PresenceView.
type PresenceCache struct {
	mu        sync.RWMutex
	listening map[string]*music.Track
}

var _ PresenceView = (*PresenceCache)(nil)

// NewPresenceCache creates an empty presence cache.
func NewPresenceCache() *PresenceCache {
	return &PresenceCache{listening: make(map[string]*music.Track)}
}

// Listening returns the track the user is currently listening to, or nil.
// The returned value is a copy; callers may overlay onto it freely.
func (p *PresenceCache) Listening(userID string) *music.Track {
	p.mu.RLock()
	defer p.mu.RUnlock()

	t, ok := p.listening[userID]
	if !ok {
		return nil
	}
	out := *t
	return &out
}

// presenceUpdate is the wire shape of a PRESENCE_UPDATE dispatch.
type presenceUpdate struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Activities []presenceActivity `json:"activities"`
}

type presenceActivity struct {
	Type      int    `json:"type"`
	Name      string `json:"name"`
	Details   string `json:"details"`    // track title
	State     string `json:"state"`      // artists, "; "-separated
	SyncID    string `json:"sync_id"`    // Spotify track ID
	CreatedAt int64  `json:"created_at"` // ms since epoch
	Assets    struct {
		LargeText string `json:"large_text"` // album name
	} `json:"assets"`
	Timestamps struct {
		Start int64 `json:"start"`
		End   int64 `json:"end"`
	} `json:"timestamps"`
}

// ListeningState is a listening activity with its timing: the predicted
// track span and when the activity state was created. Consumers that only
// care about "what" use the cache; the scrobble watcher needs the "when".
type ListeningState struct {
	Track     music.Track
	Start     time.Time
	End       time.Time
	CreatedAt time.Time
}

// listeningState extracts the full listening state from the first
// listening activity, or nil.
func listeningState(activities []presenceActivity) *ListeningState {
	for i := range activities {
		act := &activities[i]
		if act.Type != activityListening || act.Details == "" {
			continue
		}
		track := listeningTrack(activities[i : i+1])
		state := &ListeningState{Track: *track}
		if act.Timestamps.Start > 0 {
			state.Start = time.UnixMilli(act.Timestamps.Start)
		}
		if act.Timestamps.End > 0 {
			state.End = time.UnixMilli(act.Timestamps.End)
		}
		if act.CreatedAt > 0 {
			state.CreatedAt = time.UnixMilli(act.CreatedAt)
		}
		return state
	}
	return nil
}

// apply folds one presence event into the cache. A presence with no
// listening activity clears the user's entry.
func (p *PresenceCache) apply(ev *presenceUpdate) {
	track := listeningTrack(ev.Activities)

	p.mu.Lock()
	defer p.mu.Unlock()
	if track == nil {
		delete(p.listening, ev.User.ID)
		return
	}
	p.listening[ev.User.ID] = track
}

// listeningTrack extracts a track from the first listening activity, if
// any. Rich-presence music apps report the title in details and the
// artist list in state.
func listeningTrack(activities []presenceActivity) *music.Track {
	for i := range activities {
		act := &activities[i]
		if act.Type != activityListening || act.Details == "" {
			continue
		}
		track := &music.Track{
			Name:   act.Details,
			Artist: music.Artist{Name: primaryArtist(act.State)},
		}
		if act.Assets.LargeText != "" {
			track.Album = music.Album{
				Name:   act.Assets.LargeText,
				Artist: track.Artist,
			}
		}
		if act.SyncID != "" {
			track.URL = music.Str("https://open.spotify.com/track/" + act.SyncID)
		}
		if act.Timestamps.End > act.Timestamps.Start && act.Timestamps.Start > 0 {
			track.LengthMs = music.Int(int(act.Timestamps.End - act.Timestamps.Start))
		}
		return track
	}
	return nil
}

// primaryArtist takes the first artist of the "; "-separated list Spotify
// presences carry.
func primaryArtist(state string) string {
	if i := strings.Index(state, "; "); i >= 0 {
		return state[:i]
	}
	return state
}
