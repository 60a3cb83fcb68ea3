// Package draft manages mixtapes that are still being put together: their
// details, their ordered tracks and the audio uploaded for them.
package draft

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mixtape/internal/audiometa"
	"mixtape/internal/database"
	"mixtape/internal/editor"
	"mixtape/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound          = database.ErrNotFound
	ErrForbidden         = errors.New("invalid edit token")
	ErrEmptyName         = errors.New("draft name cannot be empty")
	ErrEmptyTitle        = errors.New("track title cannot be empty")
	ErrInvalidLength     = errors.New("track length cannot be negative")
	ErrTrackNotFound     = errors.New("track not found")
	ErrTrackLoading      = errors.New("track metadata is still loading")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Submitter queues audio extraction jobs.
type Submitter interface {
	Submit(job audiometa.Job) error
}

// Service owns the draft lifecycle. Edits to one draft are serialised; edits
// to different drafts run concurrently.
type Service struct {
	db        *database.Database
	extractor *audiometa.Extractor
	jobs      Submitter
	uploadDir string
	logger    *logrus.Logger
	tokenCost int

	locks sync.Map // draft id -> *sync.Mutex
}

// NewService creates a draft service storing uploads under uploadDir.
func NewService(db *database.Database, extractor *audiometa.Extractor, jobs Submitter, uploadDir string, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		db:        db,
		extractor: extractor,
		jobs:      jobs,
		uploadDir: uploadDir,
		logger:    logger,
		tokenCost: bcrypt.DefaultCost,
	}
}

func (s *Service) lock(id string) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Create stores a new empty draft and returns it with its edit token. The
// token is not recoverable afterwards.
func (s *Service) Create(name, description, image string) (*models.Draft, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", ErrEmptyName
	}

	token, err := generateEditToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate edit token: %w", err)
	}
	hash, err := hashToken(token, s.tokenCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash edit token: %w", err)
	}

	now := time.Now().UTC()
	d := &models.Draft{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Image:       strings.TrimSpace(image),
		Tracks:      []models.TrackMeta{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.CreateDraft(d, hash); err != nil {
		return nil, "", fmt.Errorf("failed to create draft: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"draft_id": d.ID,
		"name":     d.Name,
	}).Info("Draft created")
	return d, token, nil
}

// Get returns a draft by id.
func (s *Service) Get(id string) (*models.Draft, error) {
	return s.db.GetDraft(id)
}

// List returns all drafts, most recently updated first.
func (s *Service) List() ([]models.DraftSummary, error) {
	return s.db.ListDrafts()
}

// Authorize checks token against the draft's stored hash.
func (s *Service) Authorize(id, token string) error {
	hash, err := s.db.GetTokenHash(id)
	if err != nil {
		return err
	}
	if !tokenMatches(hash, token) {
		return ErrForbidden
	}
	return nil
}

// UpdateDetails changes the display fields of a draft.
func (s *Service) UpdateDetails(id, token, name, description, image string) (*models.Draft, error) {
	if err := s.Authorize(id, token); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	unlock := s.lock(id)
	defer unlock()

	if err := s.db.UpdateDraftDetails(id, name, strings.TrimSpace(description), strings.TrimSpace(image)); err != nil {
		return nil, err
	}
	return s.db.GetDraft(id)
}

// Delete removes a draft and any audio uploaded for it.
func (s *Service) Delete(id, token string) error {
	if err := s.Authorize(id, token); err != nil {
		return err
	}

	unlock := s.lock(id)
	defer unlock()

	if err := s.db.DeleteDraft(id); err != nil {
		return err
	}
	s.locks.Delete(id)

	if err := os.RemoveAll(s.draftDir(id)); err != nil {
		s.logger.WithError(err).WithField("draft_id", id).Warn("Failed to remove draft uploads")
	}
	s.logger.WithField("draft_id", id).Info("Draft deleted")
	return nil
}

// mutate loads the track list of a draft, applies fn through an editor bound
// to it and persists the result when fn reports a change.
func (s *Service) mutate(id string, fn func(tl *editor.TrackList, e *editor.Editor) (bool, error)) (*models.Draft, error) {
	unlock := s.lock(id)
	defer unlock()

	d, err := s.db.GetDraft(id)
	if err != nil {
		return nil, err
	}

	tl := editor.NewTrackList(d.Tracks)
	changed, err := fn(tl, editor.Bind(tl))
	if err != nil {
		return nil, err
	}
	if !changed {
		return d, nil
	}

	if err := s.db.SaveTracks(id, tl.Tracks()); err != nil {
		return nil, fmt.Errorf("failed to save tracks: %w", err)
	}
	return s.db.GetDraft(id)
}

// AddTrack appends a track whose metadata is already known.
func (s *Service) AddTrack(id, token, title string, lengthSeconds float64) (*models.Draft, models.TrackMeta, error) {
	if err := s.Authorize(id, token); err != nil {
		return nil, models.TrackMeta{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, models.TrackMeta{}, ErrEmptyTitle
	}
	if lengthSeconds < 0 {
		return nil, models.TrackMeta{}, ErrInvalidLength
	}

	track := models.TrackMeta{ID: uuid.NewString(), Title: title, LengthSeconds: lengthSeconds}
	d, err := s.mutate(id, func(tl *editor.TrackList, _ *editor.Editor) (bool, error) {
		tl.Append(track)
		return true, nil
	})
	return d, track, err
}

// UploadTrack stores an audio file and appends a loading track for it.
// Title and length are filled in once extraction finishes; if it fails the
// track is titled after the uploaded file name.
func (s *Service) UploadTrack(id, token, filename string, r io.Reader) (*models.Draft, models.TrackMeta, error) {
	if err := s.Authorize(id, token); err != nil {
		return nil, models.TrackMeta{}, err
	}
	filename = filepath.Base(filename)
	if !s.extractor.IsAudioFile(filename) {
		return nil, models.TrackMeta{}, fmt.Errorf("%s: %w", filename, ErrUnsupportedFormat)
	}

	track := models.TrackMeta{ID: uuid.NewString()}
	// One directory per track keeps the original name for the title fallback.
	path := filepath.Join(s.trackDir(id, track.ID), filename)
	if err := saveFile(path, r); err != nil {
		return nil, models.TrackMeta{}, fmt.Errorf("failed to store upload: %w", err)
	}

	d, err := s.mutate(id, func(tl *editor.TrackList, _ *editor.Editor) (bool, error) {
		tl.Append(track)
		return true, nil
	})
	if err != nil {
		os.RemoveAll(filepath.Dir(path))
		return nil, models.TrackMeta{}, err
	}
	if err := s.db.SetTrackFile(id, track.ID, path); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.WithError(err).WithField("track_id", track.ID).Warn("Failed to record upload path")
	}

	fallback := audiometa.TitleFromFilename(filename)
	job := audiometa.Job{
		Path: path,
		Done: func(info audiometa.Info, err error) {
			s.completeUpload(id, track.ID, fallback, info, err)
		},
	}
	if err := s.jobs.Submit(job); err != nil {
		s.logger.WithError(err).WithField("track_id", track.ID).Warn("Extraction queue unavailable, extracting inline")
		info, err := s.extractor.Extract(path)
		s.completeUpload(id, track.ID, fallback, info, err)
		if d, err = s.db.GetDraft(id); err != nil {
			return nil, models.TrackMeta{}, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"draft_id": id,
		"track_id": track.ID,
		"file":     filename,
	}).Info("Track uploaded")
	return d, track, nil
}

func (s *Service) completeUpload(draftID, trackID, fallback string, info audiometa.Info, extractErr error) {
	title := info.Title
	if extractErr != nil || title == "" {
		title = fallback
	}

	_, err := s.mutate(draftID, func(tl *editor.TrackList, _ *editor.Editor) (bool, error) {
		if !tl.Rename(trackID, title) {
			// removed while extraction ran
			return false, nil
		}
		tl.SetLength(trackID, info.LengthSeconds)
		return true, nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"draft_id": draftID,
			"track_id": trackID,
		}).Error("Failed to store extracted metadata")
	}
}

// RemoveTrack drops a track and its uploaded audio.
func (s *Service) RemoveTrack(id, token, trackID string) (*models.Draft, error) {
	if err := s.Authorize(id, token); err != nil {
		return nil, err
	}

	d, err := s.mutate(id, func(_ *editor.TrackList, e *editor.Editor) (bool, error) {
		if !e.Remove(trackID) {
			return false, ErrTrackNotFound
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	// Uploads land in the track dir before the track is appended, so the dir
	// is found even when its path has not been recorded yet.
	dir := s.trackDir(id, trackID)
	if err := os.RemoveAll(dir); err != nil {
		s.logger.WithError(err).WithField("track_dir", dir).Warn("Failed to remove track upload")
	}
	return d, nil
}

// RenameTrack sets a track's title. Tracks still loading cannot be renamed.
func (s *Service) RenameTrack(id, token, trackID, title string) (*models.Draft, error) {
	if err := s.Authorize(id, token); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	return s.mutate(id, func(tl *editor.TrackList, e *editor.Editor) (bool, error) {
		current, ok := tl.Get(trackID)
		if !ok {
			return false, ErrTrackNotFound
		}
		if current.Loading() {
			return false, ErrTrackLoading
		}
		if current.Title == title {
			return false, nil
		}
		e.BeginEdit(trackID)
		e.SetBuffer(trackID, title)
		return e.CommitEdit(trackID), nil
	})
}

// MoveTrack moves activeID to the position currently held by overID.
func (s *Service) MoveTrack(id, token, activeID, overID string) (*models.Draft, error) {
	if err := s.Authorize(id, token); err != nil {
		return nil, err
	}

	return s.mutate(id, func(tl *editor.TrackList, e *editor.Editor) (bool, error) {
		if tl.Index(activeID) < 0 || tl.Index(overID) < 0 {
			return false, ErrTrackNotFound
		}
		return e.Reorder(activeID, overID), nil
	})
}

// TrackAudio returns the stored upload of a track and its MIME type. Tracks
// added without a file report ErrTrackNotFound.
func (s *Service) TrackAudio(id, trackID string) (string, string, error) {
	if _, err := s.db.GetTokenHash(id); err != nil {
		return "", "", err
	}
	files, err := s.db.TrackFiles(id)
	if err != nil {
		return "", "", err
	}
	path, ok := files[trackID]
	if !ok {
		return "", "", ErrTrackNotFound
	}
	return path, s.extractor.GetContentType(path), nil
}

// Export builds the off-chain JSON document for a draft. Tracks whose
// metadata is still loading are left out.
func (s *Service) Export(id string) (*models.ExtendedJSONMetadata, error) {
	d, err := s.db.GetDraft(id)
	if err != nil {
		return nil, err
	}

	tracks := make([]models.TrackMeta, 0, len(d.Tracks))
	var total float64
	for _, t := range d.Tracks {
		if t.Loading() {
			continue
		}
		tracks = append(tracks, t)
		total += t.LengthSeconds
	}

	meta := &models.ExtendedJSONMetadata{
		Name:   models.StringPtr(d.Name),
		Tracks: tracks,
		Attributes: []models.Attribute{
			{TraitType: "Tracks", Value: len(tracks)},
			{TraitType: "Length", Value: models.FormatDuration(total)},
		},
		Properties: map[string]interface{}{
			"category": "audio",
		},
	}
	if d.Description != "" {
		meta.Description = models.StringPtr(d.Description)
	}
	if d.Image != "" {
		meta.Image = models.StringPtr(d.Image)
	}
	return meta, nil
}

func (s *Service) draftDir(id string) string {
	return filepath.Join(s.uploadDir, id)
}

func (s *Service) trackDir(draftID, trackID string) string {
	return filepath.Join(s.draftDir(draftID), trackID)
}

func saveFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
