package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"mixtape/internal/nft"
	"mixtape/pkg/models"

	"github.com/sirupsen/logrus"
)

// handleHome serves index.html from the static dir, or redirects to the
// public site when there is none.
func (ms *MixtapeServer) handleHome(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(ms.config.Server.StaticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.Redirect(w, r, ms.config.Site.PublicURL, http.StatusFound)
		return
	}
	http.ServeFile(w, r, index)
}

// handleMixtapePage renders the public page for a mixtape. It always
// answers 200; lookup failures show the default title and image.
func (ms *MixtapeServer) handleMixtapePage(w http.ResponseWriter, r *http.Request) {
	address := sanitizeInput(r.PathValue("address"))
	data := ms.loader.Load(r.Context(), address)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ms.renderer.RenderMixtape(w, data); err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to render page", err)
	}
}

// handleMixtapeData returns the same data the page renders, as JSON.
func (ms *MixtapeServer) handleMixtapeData(w http.ResponseWriter, r *http.Request) {
	address := sanitizeInput(r.PathValue("address"))
	if verr := validateAddress(address); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}
	ms.respondJSON(w, http.StatusOK, ms.loader.Load(r.Context(), address))
}

// handleReadMeta resolves a mint address to its asset record. An address
// with no asset answers {"asset": null}.
func (ms *MixtapeServer) handleReadMeta(w http.ResponseWriter, r *http.Request) {
	address := sanitizeInput(r.URL.Query().Get("address"))
	if verr := validateAddress(address); verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	asset, err := ms.assets.ReadAsset(r.Context(), address)
	switch {
	case errors.Is(err, nft.ErrNoMetadata):
		ms.respondJSON(w, http.StatusOK, models.ReadMetaResponse{})
		return
	case err != nil:
		ms.respondWithError(w, r, http.StatusBadGateway, "Failed to read asset", err)
		return
	}

	ms.logger.WithFields(logrus.Fields{
		"address":  address,
		"json_uri": asset.Content.JSONURI,
	}).Debug("Asset resolved")
	ms.respondJSON(w, http.StatusOK, models.ReadMetaResponse{Asset: asset})
}
