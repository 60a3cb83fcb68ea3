// Package server exposes mixtape pages, the read-meta endpoint and the
// draft editing API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"mixtape/internal/config"
	"mixtape/internal/database"
	"mixtape/internal/draft"
	"mixtape/internal/nft"
	"mixtape/internal/ngrok"
	"mixtape/internal/page"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Options carries the collaborators a MixtapeServer is built from.
type Options struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Database *database.Database
	Loader   *page.Loader
	Renderer *page.Renderer
	Drafts   *draft.Service
	// Assets answers /api/nft/read-meta.
	Assets nft.AssetReader
	Tunnel *ngrok.Service
}

// MixtapeServer represents the main mixtape web server
type MixtapeServer struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	loader   *page.Loader
	renderer *page.Renderer
	drafts   *draft.Service
	assets   nft.AssetReader
	tunnel   *ngrok.Service

	httpServer *http.Server
	handler    http.Handler

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewMixtapeServer creates a new server and registers its routes.
func NewMixtapeServer(opts Options) *MixtapeServer {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ms := &MixtapeServer{
		config:   opts.Config,
		logger:   logger,
		db:       opts.Database,
		loader:   opts.Loader,
		renderer: opts.Renderer,
		drafts:   opts.Drafts,
		assets:   opts.Assets,
		tunnel:   opts.Tunnel,
	}
	ms.handler = ms.setupRoutes()
	ms.httpServer = &http.Server{
		Addr:              ms.config.GetAddress(),
		Handler:           ms.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(ms.config.Server.ReadTimeout) * time.Second,
	}
	return ms
}

// Handler returns the routed handler wrapped in middleware.
func (ms *MixtapeServer) Handler() http.Handler {
	return ms.handler
}

func (ms *MixtapeServer) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", ms.handleHome)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(ms.config.Server.StaticDir))))
	mux.Handle("GET /images/", http.FileServer(http.Dir(ms.config.Server.StaticDir)))
	mux.HandleFunc("GET /health", ms.handleHealthCheck)

	// Mixtape pages
	mux.HandleFunc("GET /sol/{$}", ms.handleMixtapePage)
	mux.HandleFunc("GET /sol/{address}", ms.handleMixtapePage)
	mux.HandleFunc("GET /api/mixtapes/{address}", ms.handleMixtapeData)
	mux.HandleFunc("GET /api/nft/read-meta", ms.handleReadMeta)

	// Drafts
	mux.HandleFunc("GET /drafts/{id}", ms.handleDraftPage)
	mux.HandleFunc("GET /api/drafts", ms.handleListDrafts)
	mux.HandleFunc("POST /api/drafts", ms.handleCreateDraft)
	mux.HandleFunc("GET /api/drafts/{id}", ms.handleGetDraft)
	mux.HandleFunc("PUT /api/drafts/{id}", ms.handleUpdateDraft)
	mux.HandleFunc("DELETE /api/drafts/{id}", ms.handleDeleteDraft)
	mux.HandleFunc("GET /api/drafts/{id}/metadata", ms.handleExportDraft)
	mux.HandleFunc("POST /api/drafts/{id}/tracks", ms.handleAddTrack)
	mux.HandleFunc("POST /api/drafts/{id}/uploads", ms.handleUploadTrack)
	mux.HandleFunc("PUT /api/drafts/{id}/tracks/{trackID}", ms.handleRenameTrack)
	mux.HandleFunc("DELETE /api/drafts/{id}/tracks/{trackID}", ms.handleRemoveTrack)
	mux.HandleFunc("GET /api/drafts/{id}/tracks/{trackID}/audio", ms.handleStreamTrack)
	mux.HandleFunc("POST /api/drafts/{id}/reorder", ms.handleReorderTracks)

	var h http.Handler = mux
	h = ms.corsMiddleware(h)
	h = ms.requestLoggingMiddleware(h)
	h = ms.panicRecoveryMiddleware(h)
	return h
}

// Start serves until the listener fails or Shutdown is called. The template
// watcher and the ngrok tunnel are started alongside when configured.
func (ms *MixtapeServer) Start(ctx context.Context) error {
	if ms.config.Server.ReloadTemplate && ms.renderer.Dir() != "" {
		if err := ms.startTemplateWatcher(); err != nil {
			ms.logger.WithError(err).Warn("Could not start template watcher")
		}
	}

	localAddress := fmt.Sprintf("http://%s", ms.config.GetAddress())

	ms.logger.WithFields(logrus.Fields{
		"address":    localAddress,
		"public_url": ms.loader.PublicURL(),
	}).Info("Mixtape server starting")

	if ms.tunnel != nil {
		if err := ms.tunnel.StartTunnel(ctx, localAddress); err != nil {
			ms.logger.WithError(err).Warn("Could not start ngrok tunnel")
		} else if u := ms.tunnel.GetPublicURL(); u != "" {
			ms.loader.SetPublicURL(u)
		}
	}

	if err := ms.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, the watcher and the tunnel.
func (ms *MixtapeServer) Shutdown(ctx context.Context) error {
	ms.logger.Info("Shutting down mixtape server...")

	err := ms.httpServer.Shutdown(ctx)
	ms.stopTemplateWatcher()
	if stopErr := ms.tunnel.Stop(); stopErr != nil {
		ms.logger.WithError(stopErr).Warn("Failed to stop ngrok tunnel")
	}

	ms.logger.Info("Mixtape server shutdown complete")
	return err
}
