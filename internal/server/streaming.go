package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

// handleStreamTrack serves the uploaded audio of a draft track so the editor
// can preview it. Range requests are answered by http.ServeContent.
func (ms *MixtapeServer) handleStreamTrack(w http.ResponseWriter, r *http.Request) {
	path, contentType, err := ms.drafts.TrackAudio(r.PathValue("id"), r.PathValue("trackID"))
	if err != nil {
		ms.respondWithDraftError(w, r, err)
		return
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			ms.respondWithError(w, r, http.StatusNotFound, "Audio file missing", err)
			return
		}
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error opening audio file", err)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error reading file info", err)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("ETag", fmt.Sprintf(`"%d-%d"`, stat.ModTime().Unix(), stat.Size()))
	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, filepath.Base(path), stat.ModTime(), file)
}
