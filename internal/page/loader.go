// Package page builds the data behind a mixtape's public page.
package page

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"mixtape/internal/nft"
	"mixtape/pkg/models"

	"github.com/sirupsen/logrus"
)

// State describes how a page's data was obtained.
type State string

const (
	StateLoaded State = "loaded"
	// StateDefaulted is a page with no address to look up.
	StateDefaulted State = "defaulted"
	// StateErrorDefaulted is a page whose lookup failed.
	StateErrorDefaulted State = "error-defaulted"
)

// Defaults are the values shown when no metadata could be loaded.
type Defaults struct {
	Image       string
	Title       string
	Description string
}

// Data is everything the mixtape page renders.
type Data struct {
	Address     string             `json:"address"`
	Image       string             `json:"mixtapeImg"`
	Title       string             `json:"mixtapeTitle"`
	Description string             `json:"mixtapeDescription"`
	Tracks      []models.TrackMeta `json:"trackMeta"`
	URL         string             `json:"url"`
	State       State              `json:"state"`
}

// HasTracks reports whether a track list should be rendered at all. A
// loaded document without tracks still renders an (empty) list.
func (d *Data) HasTracks() bool {
	return d.Tracks != nil
}

// Loader resolves an address to page data with two sequential fetches.
type Loader struct {
	assets   nft.AssetReader
	metadata nft.MetadataFetcher
	defaults Defaults
	logger   *logrus.Logger

	mu        sync.RWMutex
	publicURL string
}

// NewLoader creates a loader. publicURL is the site origin used for og:url.
func NewLoader(assets nft.AssetReader, metadata nft.MetadataFetcher, defaults Defaults, publicURL string, logger *logrus.Logger) *Loader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Loader{
		assets:    assets,
		metadata:  metadata,
		defaults:  defaults,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
	}
}

// SetPublicURL changes the origin used for page URLs.
func (l *Loader) SetPublicURL(u string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.publicURL = strings.TrimRight(u, "/")
}

// PublicURL returns the origin used for page URLs.
func (l *Loader) PublicURL() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.publicURL
}

// Load never fails: any lookup error is logged and the defaults are kept.
func (l *Loader) Load(ctx context.Context, address string) *Data {
	data := &Data{
		Address:     address,
		Image:       l.defaults.Image,
		Title:       l.defaults.Title,
		Description: l.defaults.Description,
		URL:         fmt.Sprintf("%s/sol/%s", l.PublicURL(), address),
		State:       StateDefaulted,
	}

	if address == "" {
		return data
	}

	meta, err := l.fetch(ctx, address)
	if err != nil {
		l.logger.WithError(err).WithField("address", address).Error("Failed to fetch metadata")
		data.State = StateErrorDefaulted
		return data
	}

	if meta.Image != nil {
		data.Image = *meta.Image
	}
	if meta.Name != nil {
		data.Title = *meta.Name
	}
	if meta.Description != nil {
		data.Description = *meta.Description
	}
	data.Tracks = meta.Tracks
	if data.Tracks == nil {
		data.Tracks = []models.TrackMeta{}
	}
	data.State = StateLoaded

	l.logger.WithFields(logrus.Fields{
		"address": address,
		"tracks":  len(data.Tracks),
	}).Debug("Loaded mixtape metadata")

	return data
}

func (l *Loader) fetch(ctx context.Context, address string) (*models.ExtendedJSONMetadata, error) {
	asset, err := l.assets.ReadAsset(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	if asset == nil {
		return nil, nft.ErrNoMetadata
	}

	meta, err := l.metadata.FetchMetadata(ctx, asset.Content.JSONURI)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", asset.Content.JSONURI, err)
	}
	return meta, nil
}
