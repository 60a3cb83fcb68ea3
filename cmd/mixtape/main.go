package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mixtape/internal/audiometa"
	"mixtape/internal/cache"
	"mixtape/internal/config"
	"mixtape/internal/database"
	"mixtape/internal/draft"
	"mixtape/internal/nft"
	"mixtape/internal/ngrok"
	"mixtape/internal/page"
	"mixtape/internal/server"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "./config.toml"
	if p := os.Getenv("MIXTAPE_CONFIG"); p != "" {
		configPath = p
	}

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}

	logFile := configureLogger(logger, cfg.Logging)
	if logFile != nil {
		defer logFile.Close()
	}

	db, err := database.NewDatabase(cfg.Database.Path, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing database")
	}
	defer db.Close()

	httpClient := &http.Client{Timeout: time.Duration(cfg.NFT.FetchTimeoutSeconds) * time.Second}

	// read-meta is always answered from the RPC. Pages either go through the
	// configured read-meta URL or straight to the RPC.
	var assets nft.AssetReader = nft.NewRPCClient(cfg.NFT.RPCURL, httpClient)
	if cfg.NFT.CacheTTLSeconds > 0 {
		assetCache := cache.NewAssetCache(time.Duration(cfg.NFT.CacheTTLSeconds) * time.Second)
		defer assetCache.Close()
		assets = nft.NewCachedReader(assets, assetCache)
	}

	pageClient := nft.NewClient(cfg.NFT.ReadMetaURL, httpClient)
	pageAssets := assets
	if cfg.NFT.ReadMetaURL != "" {
		pageAssets = pageClient
	}

	loader := page.NewLoader(pageAssets, pageClient, page.Defaults{
		Image:       cfg.Site.DefaultImage,
		Title:       cfg.Site.DefaultTitle,
		Description: cfg.Site.DefaultDescription,
	}, cfg.Site.PublicURL, logger)

	renderer, err := page.NewRenderer(cfg.Server.TemplateDir)
	if err != nil {
		logger.WithError(err).Fatal("Error loading templates")
	}

	extractor := audiometa.NewExtractor(cfg.Audio.SupportedFormats, logger)
	pool := audiometa.NewPool(extractor, cfg.Audio.Workers, cfg.Audio.QueueSize, logger)
	defer pool.Stop()

	tunnel, err := ngrok.NewService(&cfg.Ngrok, logger)
	if err != nil {
		logger.WithError(err).Warn("Ngrok service not available")
		tunnel = nil
	}

	mixtapeServer := server.NewMixtapeServer(server.Options{
		Config:   cfg,
		Logger:   logger,
		Database: db,
		Loader:   loader,
		Renderer: renderer,
		Drafts:   draft.NewService(db, extractor, pool, cfg.Storage.UploadDir, logger),
		Assets:   assets,
		Tunnel:   tunnel,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- mixtapeServer.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server stopped")
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mixtapeServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Graceful shutdown failed")
	}
}

// configureLogger applies level, format and output from config. The
// returned file, if any, must be closed by the caller.
func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) *os.File {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.Level).Warn("Unknown log level, using info")
	}

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.File == "" {
		return nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger.WithError(err).WithField("file", cfg.File).Warn("Could not open log file, logging to stderr")
		return nil
	}
	logger.SetOutput(f)
	return f
}
