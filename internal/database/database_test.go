package database

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"mixtape/pkg/models"

	"github.com/sirupsen/logrus"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newDraft(id string, tracks ...models.TrackMeta) *models.Draft {
	now := time.Now().UTC()
	return &models.Draft{
		ID:        id,
		Name:      "Summer Tape",
		Tracks:    tracks,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func trackIDs(tracks []models.TrackMeta) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}

func TestDatabase(t *testing.T) {
	db := newTestDB(t)

	t.Run("CreateAndGetDraft", func(t *testing.T) {
		draft := newDraft("d1",
			models.TrackMeta{ID: "t1", Title: "Intro", LengthSeconds: 61},
			models.TrackMeta{ID: "t2", Title: "Outro", LengthSeconds: 122.5},
		)
		if err := db.CreateDraft(draft, "hash"); err != nil {
			t.Fatalf("Failed to create draft: %v", err)
		}

		got, err := db.GetDraft("d1")
		if err != nil {
			t.Fatalf("Failed to get draft: %v", err)
		}
		if got.Name != draft.Name {
			t.Errorf("Expected name %s, got %s", draft.Name, got.Name)
		}
		if len(got.Tracks) != 2 || got.Tracks[1].LengthSeconds != 122.5 {
			t.Errorf("Unexpected tracks: %+v", got.Tracks)
		}
	})

	t.Run("GetMissingDraft", func(t *testing.T) {
		if _, err := db.GetDraft("missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if _, err := db.GetTokenHash("missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("TokenHash", func(t *testing.T) {
		hash, err := db.GetTokenHash("d1")
		if err != nil {
			t.Fatalf("Failed to get token hash: %v", err)
		}
		if hash != "hash" {
			t.Errorf("Expected hash, got %s", hash)
		}
	})

	t.Run("SaveTracksReordersAndDeletes", func(t *testing.T) {
		if err := db.SetTrackFile("d1", "t1", "/uploads/d1/t1.mp3"); err != nil {
			t.Fatalf("Failed to set track file: %v", err)
		}

		tracks := []models.TrackMeta{
			{ID: "t3", Title: "New"},
			{ID: "t1", Title: "Intro (edit)", LengthSeconds: 61},
		}
		if err := db.SaveTracks("d1", tracks); err != nil {
			t.Fatalf("Failed to save tracks: %v", err)
		}

		got, err := db.GetDraft("d1")
		if err != nil {
			t.Fatal(err)
		}
		ids := trackIDs(got.Tracks)
		if len(ids) != 2 || ids[0] != "t3" || ids[1] != "t1" {
			t.Errorf("Unexpected order: %v", ids)
		}
		if got.Tracks[1].Title != "Intro (edit)" {
			t.Errorf("Expected renamed title, got %s", got.Tracks[1].Title)
		}

		files, err := db.TrackFiles("d1")
		if err != nil {
			t.Fatal(err)
		}
		if files["t1"] != "/uploads/d1/t1.mp3" {
			t.Errorf("Expected file path kept across save, got %v", files)
		}
	})

	t.Run("SaveTracksMissingDraft", func(t *testing.T) {
		if err := db.SaveTracks("missing", nil); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateDraftDetails", func(t *testing.T) {
		if err := db.UpdateDraftDetails("d1", "Winter Tape", "cold", "https://img"); err != nil {
			t.Fatalf("Failed to update draft: %v", err)
		}
		got, err := db.GetDraft("d1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != "Winter Tape" || got.Description != "cold" || got.Image != "https://img" {
			t.Errorf("Unexpected details: %+v", got)
		}
	})

	t.Run("ListDrafts", func(t *testing.T) {
		if err := db.CreateDraft(newDraft("d2"), "hash2"); err != nil {
			t.Fatal(err)
		}
		summaries, err := db.ListDrafts()
		if err != nil {
			t.Fatalf("Failed to list drafts: %v", err)
		}
		if len(summaries) != 2 {
			t.Fatalf("Expected 2 drafts, got %d", len(summaries))
		}
		counts := map[string]int{}
		for _, s := range summaries {
			counts[s.ID] = s.TrackCount
		}
		if counts["d1"] != 2 || counts["d2"] != 0 {
			t.Errorf("Unexpected track counts: %v", counts)
		}
	})

	t.Run("DeleteDraft", func(t *testing.T) {
		if err := db.DeleteDraft("d1"); err != nil {
			t.Fatalf("Failed to delete draft: %v", err)
		}
		if _, err := db.GetDraft("d1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
		files, err := db.TrackFiles("d1")
		if err != nil {
			t.Fatal(err)
		}
		if len(files) != 0 {
			t.Errorf("Expected tracks removed with draft, got %v", files)
		}
		if err := db.DeleteDraft("d1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := db.Ping(); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})
}
