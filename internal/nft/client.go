// Package nft resolves mixtape assets and their off-chain metadata.
package nft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"mixtape/pkg/models"
)

// ErrNoMetadata is returned when an address resolves to no asset.
var ErrNoMetadata = errors.New("no metadata found")

// StatusError reports a non-2xx response from a metadata endpoint.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// AssetReader resolves a mint address to its on-chain asset record.
type AssetReader interface {
	ReadAsset(ctx context.Context, address string) (*models.Asset, error)
}

// MetadataFetcher loads the JSON document an asset points at.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, uri string) (*models.ExtendedJSONMetadata, error)
}

// Client talks to a read-meta endpoint and fetches json_uri documents.
type Client struct {
	readMetaURL string
	httpClient  *http.Client
}

// NewClient creates a client. readMetaURL is the full URL of the read-meta
// endpoint, for example http://localhost:8080/api/nft/read-meta; it may be
// empty when the client is used only for FetchMetadata.
func NewClient(readMetaURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{readMetaURL: readMetaURL, httpClient: httpClient}
}

// ReadAsset performs GET <read-meta>?address=<address>.
func (c *Client) ReadAsset(ctx context.Context, address string) (*models.Asset, error) {
	if c.readMetaURL == "" {
		return nil, fmt.Errorf("read-meta URL not configured")
	}

	u, err := url.Parse(c.readMetaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid read-meta URL: %w", err)
	}
	q := u.Query()
	q.Set("address", address)
	u.RawQuery = q.Encode()

	var resp models.ReadMetaResponse
	if err := c.getJSON(ctx, u.String(), &resp); err != nil {
		return nil, err
	}
	if resp.Asset == nil {
		return nil, ErrNoMetadata
	}
	return resp.Asset, nil
}

// FetchMetadata performs GET uri and decodes the metadata document.
func (c *Client) FetchMetadata(ctx context.Context, uri string) (*models.ExtendedJSONMetadata, error) {
	if uri == "" {
		return nil, fmt.Errorf("asset has no json_uri")
	}

	var meta models.ExtendedJSONMetadata
	if err := c.getJSON(ctx, uri, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		io.Copy(io.Discard, res.Body)
		return &StatusError{URL: rawURL, StatusCode: res.StatusCode}
	}

	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", rawURL, err)
	}
	return nil
}
