// Package music provides the shared value types for musical entities
// (artists, albums, tracks) and the overlay merge used to combine partial
// results from multiple catalog sources into a single answer.
package music

// Artist describes a musical artist. The zero value is an absent artist.
type Artist struct {
	Name       string
	Bio        *string
	URL        *string
	ImageURL   *string
	Tags       *string // comma-joined genre/tag list
	Popularity *int
}

// Album describes an album. Albums own their artist; an album resolved from
// one source can later have its artist enriched from another.
type Album struct {
	Name       string
	Artist     Artist
	Date       *string // release date, at least a 4-digit year prefix
	TrackCount *int
	LengthMs   *int
	URL        *string
	ImageURL   *string
	Popularity *int
}

// Track describes a single track. Tracks own both their artist and album.
type Track struct {
	Name       string
	Artist     Artist
	Album      Album
	LengthMs   *int
	URL        *string
	Popularity *int
}

// Present reports whether the artist carries a value. Name is the identity
// key; an entity with an empty name is treated as absent everywhere.
func (a *Artist) Present() bool { return a != nil && a.Name != "" }

// Present reports whether the album carries a value.
func (a *Album) Present() bool { return a != nil && a.Name != "" }

// Present reports whether the track carries a value.
func (t *Track) Present() bool { return t != nil && t.Name != "" }

// Equal reports name-only equality. Two artists with the same name are the
// same artist regardless of how much metadata either side carries.
func (a *Artist) Equal(other *Artist) bool {
	return a != nil && other != nil && a.Name == other.Name
}

// Equal reports name-only equality.
func (a *Album) Equal(other *Album) bool {
	return a != nil && other != nil && a.Name == other.Name
}

// Equal reports name-only equality.
func (t *Track) Equal(other *Track) bool {
	return t != nil && other != nil && t.Name == other.Name
}

// Overlay copies every set field of src onto a. Unset src fields never erase
// existing data, so overlaying is additive and idempotent. An absent src is
// a no-op.
func (a *Artist) Overlay(src *Artist) {
	if !src.Present() {
		return
	}
	a.Name = src.Name
	overlayStr(&a.Bio, src.Bio)
	overlayStr(&a.URL, src.URL)
	overlayStr(&a.ImageURL, src.ImageURL)
	overlayStr(&a.Tags, src.Tags)
	overlayInt(&a.Popularity, src.Popularity)
}

// Overlay copies every set field of src onto a. The nested artist is
// overlaid recursively rather than replaced, so an enrichment album that
// only knows a release date cannot wipe an artist resolved earlier.
func (a *Album) Overlay(src *Album) {
	if !src.Present() {
		return
	}
	a.Name = src.Name
	a.Artist.Overlay(&src.Artist)
	overlayStr(&a.Date, src.Date)
	overlayInt(&a.TrackCount, src.TrackCount)
	overlayInt(&a.LengthMs, src.LengthMs)
	overlayStr(&a.URL, src.URL)
	overlayStr(&a.ImageURL, src.ImageURL)
	overlayInt(&a.Popularity, src.Popularity)
}

// Overlay copies every set field of src onto t, recursing into the nested
// artist and album.
func (t *Track) Overlay(src *Track) {
	if !src.Present() {
		return
	}
	t.Name = src.Name
	t.Artist.Overlay(&src.Artist)
	t.Album.Overlay(&src.Album)
	overlayInt(&t.LengthMs, src.LengthMs)
	overlayStr(&t.URL, src.URL)
	overlayInt(&t.Popularity, src.Popularity)
}

func overlayStr(dst **string, src *string) {
	if src != nil && *src != "" {
		v := *src
		*dst = &v
	}
}

func overlayInt(dst **int, src *int) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

// Str returns a pointer to v, skipping empty strings so adapters can assign
// optional fields without an if around every one.
func Str(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }
