package editor

import "mixtape/pkg/models"

// Callbacks carry editor intents back to whoever owns the track list.
// Any of them may be nil.
type Callbacks struct {
	OnRemove  func(id string)
	OnEdit    func(id, title string)
	OnReorder func(activeID, overID string)
}

// ItemView is the render state of one row.
type ItemView struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Duration string `json:"duration"`
	Loading  bool   `json:"loading"`
	Editing  bool   `json:"editing"`
	Buffer   string `json:"buffer,omitempty"`
	Error    bool   `json:"error"`
}

type itemState struct {
	track   models.TrackMeta
	editing bool
	buffer  string
}

// Editor is a controlled view over a parent-owned track list. It keeps only
// the per-row editing toggles and text buffers; every change to the list
// itself is reported through Callbacks and takes effect once the parent
// calls SetTracks again. An Editor is not safe for concurrent use.
type Editor struct {
	callbacks  Callbacks
	order      []string
	items      map[string]*itemState
	trackError bool
}

// New creates an editor showing tracks.
func New(tracks []models.TrackMeta, cb Callbacks) *Editor {
	e := &Editor{
		callbacks: cb,
		items:     make(map[string]*itemState),
	}
	e.SetTracks(tracks)
	return e
}

// SetTracks replaces the displayed tracks. A row whose track changed gets its
// edit buffer reset to the current title; rows that disappeared are dropped.
func (e *Editor) SetTracks(tracks []models.TrackMeta) {
	order := make([]string, 0, len(tracks))
	seen := make(map[string]bool, len(tracks))

	for _, t := range tracks {
		order = append(order, t.ID)
		seen[t.ID] = true

		st, ok := e.items[t.ID]
		if !ok {
			e.items[t.ID] = &itemState{track: t, buffer: t.Title}
			continue
		}
		if st.track != t {
			st.track = t
			st.buffer = t.Title
		}
	}

	for id := range e.items {
		if !seen[id] {
			delete(e.items, id)
		}
	}
	e.order = order
}

// SetTrackError toggles the error highlight shown on every row.
func (e *Editor) SetTrackError(on bool) {
	e.trackError = on
}

// Items returns the sortable ids in display order.
func (e *Editor) Items() []string {
	ids := make([]string, len(e.order))
	copy(ids, e.order)
	return ids
}

// View returns the render state of each row in order.
func (e *Editor) View() []ItemView {
	views := make([]ItemView, 0, len(e.order))
	for _, id := range e.order {
		st := e.items[id]
		v := ItemView{
			ID:       id,
			Title:    st.track.Title,
			Duration: models.FormatDuration(st.track.LengthSeconds),
			Loading:  st.track.Loading(),
			Editing:  st.editing,
			Error:    e.trackError,
		}
		if st.editing {
			v.Buffer = st.buffer
		}
		views = append(views, v)
	}
	return views
}

// Remove asks the owner to drop the row with id.
func (e *Editor) Remove(id string) bool {
	if _, ok := e.items[id]; !ok {
		return false
	}
	if e.callbacks.OnRemove != nil {
		e.callbacks.OnRemove(id)
	}
	return true
}

// BeginEdit switches a row into editing mode. Rows still loading metadata
// cannot be edited.
func (e *Editor) BeginEdit(id string) bool {
	st, ok := e.items[id]
	if !ok || st.track.Loading() || st.editing {
		return false
	}
	st.editing = true
	st.buffer = st.track.Title
	return true
}

// SetBuffer changes the in-progress title of an editing row.
func (e *Editor) SetBuffer(id, text string) bool {
	st, ok := e.items[id]
	if !ok || !st.editing {
		return false
	}
	st.buffer = text
	return true
}

// CommitEdit leaves editing mode. The buffer is handed to OnEdit only when
// it is non-empty; it reports whether OnEdit was called.
func (e *Editor) CommitEdit(id string) bool {
	st, ok := e.items[id]
	if !ok || !st.editing {
		return false
	}
	st.editing = false

	if st.buffer == "" {
		st.buffer = st.track.Title
		return false
	}
	if e.callbacks.OnEdit != nil {
		e.callbacks.OnEdit(id, st.buffer)
	}
	return true
}

// Reorder reports a drop of activeID onto overID.
func (e *Editor) Reorder(activeID, overID string) bool {
	if activeID == overID {
		return false
	}
	if _, ok := e.items[activeID]; !ok {
		return false
	}
	if _, ok := e.items[overID]; !ok {
		return false
	}
	if e.callbacks.OnReorder != nil {
		e.callbacks.OnReorder(activeID, overID)
	}
	return true
}

// Bind wires an editor directly to a TrackList so that each callback
// mutates the list and refreshes the view.
func Bind(tl *TrackList) *Editor {
	var e *Editor
	e = New(tl.Tracks(), Callbacks{
		OnRemove: func(id string) {
			tl.Remove(id)
			e.SetTracks(tl.Tracks())
		},
		OnEdit: func(id, title string) {
			tl.Rename(id, title)
			e.SetTracks(tl.Tracks())
		},
		OnReorder: func(activeID, overID string) {
			tl.Move(activeID, overID)
			e.SetTracks(tl.Tracks())
		},
	})
	return e
}
