package server

import (
	"encoding/json"
	"net/http"

	"mixtape/internal/editor"
	"mixtape/internal/page"
	"mixtape/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	editTokenHeader = "X-Edit-Token"
	maxJSONBody     = 1 << 20
)

type draftDetailsRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

type addTrackRequest struct {
	Title         string  `json:"title"`
	LengthSeconds float64 `json:"lengthSeconds"`
}

type renameTrackRequest struct {
	Title string `json:"title"`
}

type reorderRequest struct {
	ActiveID string `json:"activeId"`
	OverID   string `json:"overId"`
}

type createDraftResponse struct {
	Draft     *models.Draft `json:"draft"`
	EditToken string        `json:"editToken"`
}

type trackResponse struct {
	Draft *models.Draft    `json:"draft"`
	Track models.TrackMeta `json:"track"`
}

// decodeJSON reads a bounded JSON body, answering 400 itself on failure.
func (ms *MixtapeServer) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON body", err)
		return false
	}
	return true
}

func editToken(r *http.Request) string {
	return r.Header.Get(editTokenHeader)
}

func (ms *MixtapeServer) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := ms.drafts.List()
	if err != nil {
		ms.respondWithDraftError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, drafts)
}

func (ms *MixtapeServer) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req draftDetailsRequest
	if !ms.decodeJSON(w, r, &req) {
		return
	}
	req.Name = sanitizeInput(req.Name)
	req.Description = sanitizeInput(req.Description)
	req.Image = sanitizeInput(req.Image)

	if errs := collect(validateDraftName(req.Name), validateDescription(req.Description), validateImageURL(req.Image)); len(errs) > 0 {
		ms.respondWithValidationError(w, r, errs)
		return
	}

	d, token, err := ms.drafts.Create(req.Name, req.Description, req.Image)
	if err != nil {
		ms.respondWithDraftError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusCreated, createDraftResponse{Draft: d, EditToken: token})
}

func (ms *MixtapeServer) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := ms.drafts.Get(r.PathValue("id"))
	if err != nil {
		ms.respondWithDraftError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, d)
}

func (ms *MixtapeServer) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req draftDetailsRequest
	if !ms.decodeJSON(w, r, &req) {
		return
	}
	req.Name = sanitizeInput(req.Name)
	req.Description = sanitizeInput(req.Description)
	req.Image = sanitizeInput(req.Image)

	if errs := collect(validateDraftName(req.Name), validateDescription(req.Description), validateImageURL(req.Image)); len(errs) > 0 {
		ms.respondWithValidationError(w, r, errs)
		return
	}

	d, err := ms.drafts.UpdateDetails(r.PathValue("id"), editToken(r), req.Name, req.Description, req.Image)
	if err != nil {
		ms.respondWithDraftError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, d)
}

func (ms *MixtapeServer) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := ms.drafts.Delete(r.PathValue("id"), editToken(r)); err != nil {
		ms.respondWithDraftError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportDraft returns the off-chain JSON the draft would be minted with.
func (ms *MixtapeServer) handleExportDraft(w http.ResponseWriter, r *http.Request) {
	meta, err := ms.drafts.Export(r.PathValue("id"))
	if err != nil {
		ms.respondWithDraftError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, meta)
}

func (ms *MixtapeServer) handleAddTrack(w http.ResponseWriter, r *http.Request) {
	var req addTrackRequest
	if !ms.decodeJSON(w, r, &req) {
		return
	}
	req.Title = sanitizeInput(req.Title)
	if verr := validateTrackTitle(req.Title); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	d, track, err := ms.drafts.AddTrack(r.PathValue("id"), editToken(r), req.Title, req.LengthSeconds)
	if err != nil {
		ms.respondWithDraftError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusCreated, trackResponse{Draft: d, Track: track})
}

// handleUploadTrack stores a multipart "file" upload. The returned track is
// still loading; its title and length arrive once extraction finishes.
func (ms *MixtapeServer) handleUploadTrack(w http.ResponseWriter, r *http.Request) {
	maxSize := int64(ms.config.Server.MaxUploadMB) * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "Failed to parse upload form", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "No file provided", err)
		return
	}
	defer file.Close()

	d, track, err := ms.drafts.UploadTrack(r.PathValue("id"), editToken(r), header.Filename, file)
	if err != nil {
		ms.respondWithDraftError(w, r, err)
		return
	}

	ms.logger.WithFields(logrus.Fields{
		"draft_id": d.ID,
		"track_id": track.ID,
		"size":     formatBytes(int(header.Size)),
	}).Info("Upload accepted")
	ms.respondJSON(w, http.StatusAccepted, trackResponse{Draft: d, Track: track})
}

func (ms *MixtapeServer) handleRenameTrack(w http.ResponseWriter, r *http.Request) {
	var req renameTrackRequest
	if !ms.decodeJSON(w, r, &req) {
		return
	}
	req.Title = sanitizeInput(req.Title)
	if verr := validateTrackTitle(req.Title); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	d, err := ms.drafts.RenameTrack(r.PathValue("id"), editToken(r), r.PathValue("trackID"), req.Title)
	if err != nil {
		ms.respondWithDraftError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, d)
}

func (ms *MixtapeServer) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	d, err := ms.drafts.RemoveTrack(r.PathValue("id"), editToken(r), r.PathValue("trackID"))
	if err != nil {
		ms.respondWithDraftError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, d)
}

func (ms *MixtapeServer) handleReorderTracks(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !ms.decodeJSON(w, r, &req) {
		return
	}
	if errs := collect(requiredID("activeId", req.ActiveID), requiredID("overId", req.OverID)); len(errs) > 0 {
		ms.respondWithValidationError(w, r, errs)
		return
	}

	d, err := ms.drafts.MoveTrack(r.PathValue("id"), editToken(r), req.ActiveID, req.OverID)
	if err != nil {
		ms.respondWithDraftError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusOK, d)
}

// handleDraftPage renders the draft through the track list editor view.
func (ms *MixtapeServer) handleDraftPage(w http.ResponseWriter, r *http.Request) {
	d, err := ms.drafts.Get(r.PathValue("id"))
	if err != nil {
		ms.respondWithDraftError(w, r, err)
		return
	}

	e := editor.New(d.Tracks, editor.Callbacks{})
	view := page.DraftView{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Items:       e.Items(),
		Rows:        e.View(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ms.renderer.RenderDraft(w, view); err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to render draft", err)
	}
}

func requiredID(field, value string) *ValidationError {
	if value == "" {
		return &ValidationError{
			Field:   field,
			Message: field + " is required",
			Code:    "MISSING_ID",
		}
	}
	return nil
}
