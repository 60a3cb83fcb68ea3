// Package editor holds the ordered track list a mixtape is assembled from
// and the per-item editing state a sortable list view drives.
package editor

import "mixtape/pkg/models"

// TrackList is an ordered collection of tracks keyed by stable ids.
// The zero value is an empty list.
type TrackList struct {
	tracks []models.TrackMeta
}

// NewTrackList copies tracks into a new list.
func NewTrackList(tracks []models.TrackMeta) *TrackList {
	tl := &TrackList{tracks: make([]models.TrackMeta, len(tracks))}
	copy(tl.tracks, tracks)
	return tl
}

// Tracks returns a copy of all tracks in order.
func (tl *TrackList) Tracks() []models.TrackMeta {
	result := make([]models.TrackMeta, len(tl.tracks))
	copy(result, tl.tracks)
	return result
}

// IDs returns the track ids in order.
func (tl *TrackList) IDs() []string {
	ids := make([]string, len(tl.tracks))
	for i, t := range tl.tracks {
		ids[i] = t.ID
	}
	return ids
}

// Len returns the number of tracks.
func (tl *TrackList) Len() int {
	return len(tl.tracks)
}

// Index returns the position of id, or -1.
func (tl *TrackList) Index(id string) int {
	for i, t := range tl.tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Get returns the track with the given id.
func (tl *TrackList) Get(id string) (models.TrackMeta, bool) {
	i := tl.Index(id)
	if i < 0 {
		return models.TrackMeta{}, false
	}
	return tl.tracks[i], true
}

// Append adds tracks to the end of the list.
func (tl *TrackList) Append(tracks ...models.TrackMeta) {
	tl.tracks = append(tl.tracks, tracks...)
}

// Remove deletes the track with the given id.
// Returns false if no track matched.
func (tl *TrackList) Remove(id string) bool {
	i := tl.Index(id)
	if i < 0 {
		return false
	}
	tl.tracks = append(tl.tracks[:i], tl.tracks[i+1:]...)
	return true
}

// Rename sets the title of the track with the given id. Empty titles are
// ignored and report false.
func (tl *TrackList) Rename(id, title string) bool {
	if title == "" {
		return false
	}
	i := tl.Index(id)
	if i < 0 {
		return false
	}
	tl.tracks[i].Title = title
	return true
}

// SetLength updates the duration of the track with the given id.
func (tl *TrackList) SetLength(id string, seconds float64) bool {
	i := tl.Index(id)
	if i < 0 {
		return false
	}
	tl.tracks[i].LengthSeconds = seconds
	return true
}

// Move places the track activeID at the index currently held by overID,
// shifting the tracks in between. Returns false when either id is unknown;
// moving a track onto itself succeeds without change.
func (tl *TrackList) Move(activeID, overID string) bool {
	from := tl.Index(activeID)
	to := tl.Index(overID)
	if from < 0 || to < 0 {
		return false
	}
	if from == to {
		return true
	}

	track := tl.tracks[from]
	tl.tracks = append(tl.tracks[:from], tl.tracks[from+1:]...)
	tl.tracks = append(tl.tracks[:to], append([]models.TrackMeta{track}, tl.tracks[to:]...)...)
	return true
}
