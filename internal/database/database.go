package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mixtape/pkg/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a draft or track does not exist.
var ErrNotFound = errors.New("not found")

// Database wraps a *sql.DB providing higher-level helper methods for the
// draft store. It is safe for concurrent use because the underlying *sql.DB
// is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	getDraftStmt  *sql.Stmt
	getTracksStmt *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at the provided path and
// ensures all required tables and indices exist. Caller should Close() it
// when finished.
func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// foreign_keys is per connection, so it goes in the DSN rather than a PRAGMA.
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=memory;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// createTables is idempotent and safe to call multiple times.
func (db *Database) createTables() error {
	draftsTable := `
	CREATE TABLE IF NOT EXISTS drafts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT '',
		token_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	draftTracksTable := `
	CREATE TABLE IF NOT EXISTS draft_tracks (
		draft_id TEXT NOT NULL,
		track_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		length_seconds REAL NOT NULL DEFAULT 0,
		position INTEGER NOT NULL,
		file_path TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (draft_id) REFERENCES drafts(id) ON DELETE CASCADE,
		PRIMARY KEY (draft_id, track_id)
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_draft_tracks_position ON draft_tracks(draft_id, position);",
		"CREATE INDEX IF NOT EXISTS idx_drafts_updated ON drafts(updated_at);",
	}

	for _, stmt := range append([]string{draftsTable, draftTracksTable}, indices...) {
		if _, err := db.conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (db *Database) prepareStatements() error {
	var err error

	db.getDraftStmt, err = db.conn.Prepare(`
		SELECT id, name, description, image, created_at, updated_at
		FROM drafts WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get draft statement: %w", err)
	}

	db.getTracksStmt, err = db.conn.Prepare(`
		SELECT track_id, title, length_seconds
		FROM draft_tracks WHERE draft_id = ?
		ORDER BY position`)
	if err != nil {
		return fmt.Errorf("failed to prepare get tracks statement: %w", err)
	}

	return nil
}

// CreateDraft inserts a draft and its tracks.
func (db *Database) CreateDraft(draft *models.Draft, tokenHash string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO drafts (id, name, description, image, token_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		draft.ID, draft.Name, draft.Description, draft.Image, tokenHash, draft.CreatedAt, draft.UpdatedAt)
	if err != nil {
		db.logger.WithError(err).WithField("draft_id", draft.ID).Error("Failed to insert draft")
		return err
	}

	if err := upsertTracks(tx, draft.ID, draft.Tracks); err != nil {
		return err
	}
	return tx.Commit()
}

// GetDraft returns a draft with its tracks in order.
func (db *Database) GetDraft(id string) (*models.Draft, error) {
	var draft models.Draft
	err := db.getDraftStmt.QueryRow(id).Scan(
		&draft.ID, &draft.Name, &draft.Description, &draft.Image,
		&draft.CreatedAt, &draft.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("draft %s: %w", id, ErrNotFound)
		}
		db.logger.WithError(err).WithField("draft_id", id).Error("Failed to get draft")
		return nil, err
	}

	rows, err := db.getTracksStmt.Query(id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	draft.Tracks = []models.TrackMeta{}
	for rows.Next() {
		var t models.TrackMeta
		if err := rows.Scan(&t.ID, &t.Title, &t.LengthSeconds); err != nil {
			return nil, err
		}
		draft.Tracks = append(draft.Tracks, t)
	}
	return &draft, rows.Err()
}

// ListDrafts returns all drafts, most recently updated first.
func (db *Database) ListDrafts() ([]models.DraftSummary, error) {
	rows, err := db.conn.Query(`
		SELECT d.id, d.name, d.updated_at, COUNT(t.track_id) AS track_count
		FROM drafts d
		LEFT JOIN draft_tracks t ON t.draft_id = d.id
		GROUP BY d.id, d.name, d.updated_at
		ORDER BY d.updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []models.DraftSummary{}
	for rows.Next() {
		var s models.DraftSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.UpdatedAt, &s.TrackCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// GetTokenHash returns the stored edit token hash of a draft.
func (db *Database) GetTokenHash(id string) (string, error) {
	var hash string
	err := db.conn.QueryRow("SELECT token_hash FROM drafts WHERE id = ?", id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	return hash, err
}

// UpdateDraftDetails changes the display fields of a draft.
func (db *Database) UpdateDraftDetails(id, name, description, image string) error {
	res, err := db.conn.Exec(`
		UPDATE drafts SET name = ?, description = ?, image = ?, updated_at = ?
		WHERE id = ?`,
		name, description, image, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return expectRow(res, id)
}

// SaveTracks makes the stored track list of a draft equal to tracks:
// missing tracks are deleted and positions are rewritten in order.
func (db *Database) SaveTracks(draftID string, tracks []models.TrackMeta) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("UPDATE drafts SET updated_at = ? WHERE id = ?", time.Now().UTC(), draftID)
	if err != nil {
		return err
	}
	if err := expectRow(res, draftID); err != nil {
		return err
	}

	keep := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		keep[t.ID] = true
	}

	rows, err := tx.Query("SELECT track_id FROM draft_tracks WHERE draft_id = ?", draftID)
	if err != nil {
		return err
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if _, err := tx.Exec("DELETE FROM draft_tracks WHERE draft_id = ? AND track_id = ?", draftID, id); err != nil {
			return err
		}
	}

	if err := upsertTracks(tx, draftID, tracks); err != nil {
		db.logger.WithError(err).WithField("draft_id", draftID).Error("Failed to save draft tracks")
		return err
	}
	return tx.Commit()
}

func upsertTracks(tx *sql.Tx, draftID string, tracks []models.TrackMeta) error {
	stmt, err := tx.Prepare(`
		INSERT INTO draft_tracks (draft_id, track_id, title, length_seconds, position)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(draft_id, track_id) DO UPDATE SET
			title = excluded.title,
			length_seconds = excluded.length_seconds,
			position = excluded.position`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, t := range tracks {
		if _, err := stmt.Exec(draftID, t.ID, t.Title, t.LengthSeconds, i); err != nil {
			return fmt.Errorf("track %s: %w", t.ID, err)
		}
	}
	return nil
}

// SetTrackFile records where the uploaded audio of a track is stored.
func (db *Database) SetTrackFile(draftID, trackID, path string) error {
	res, err := db.conn.Exec(`
		UPDATE draft_tracks SET file_path = ?
		WHERE draft_id = ? AND track_id = ?`, path, draftID, trackID)
	if err != nil {
		return err
	}
	return expectRow(res, draftID+"/"+trackID)
}

// TrackFiles returns the stored audio paths of a draft keyed by track id.
func (db *Database) TrackFiles(draftID string) (map[string]string, error) {
	rows, err := db.conn.Query(`
		SELECT track_id, file_path FROM draft_tracks
		WHERE draft_id = ? AND file_path != ''`, draftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make(map[string]string)
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, err
		}
		files[id] = path
	}
	return files, rows.Err()
}

// DeleteDraft deletes the draft and its tracks.
func (db *Database) DeleteDraft(id string) error {
	res, err := db.conn.Exec("DELETE FROM drafts WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectRow(res, id)
}

// Ping checks database connectivity.
func (db *Database) Ping() error {
	return db.conn.Ping()
}

// Close closes prepared statements and the connection pool.
func (db *Database) Close() error {
	for _, stmt := range []*sql.Stmt{db.getDraftStmt, db.getTracksStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return db.conn.Close()
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
