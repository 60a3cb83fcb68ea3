package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mixtape/internal/audiometa"
	"mixtape/internal/config"
	"mixtape/internal/database"
	"mixtape/internal/draft"
	"mixtape/internal/nft"
	"mixtape/internal/page"
	"mixtape/pkg/models"

	"github.com/sirupsen/logrus"
)

const testAddress = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

type fakeAssets struct {
	assets map[string]*models.Asset
	err    error
}

func (f *fakeAssets) ReadAsset(ctx context.Context, address string) (*models.Asset, error) {
	if f.err != nil {
		return nil, f.err
	}
	asset, ok := f.assets[address]
	if !ok {
		return nil, nft.ErrNoMetadata
	}
	return asset, nil
}

type fakeMetadata map[string]*models.ExtendedJSONMetadata

func (f fakeMetadata) FetchMetadata(ctx context.Context, uri string) (*models.ExtendedJSONMetadata, error) {
	meta, ok := f[uri]
	if !ok {
		return nil, errors.New("not found")
	}
	return meta, nil
}

func createTestMixtapeServer(t *testing.T) *MixtapeServer {
	t.Helper()
	dir := t.TempDir()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.DefaultConfig()
	cfg.Server.StaticDir = filepath.Join(dir, "static")
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	cfg.Logging.RequestLogging = false

	db, err := database.NewDatabase(filepath.Join(dir, "test.db"), logger)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	extractor := audiometa.NewExtractor(cfg.Audio.SupportedFormats, logger)
	pool := audiometa.NewPool(extractor, 1, 4, logger)
	t.Cleanup(pool.Stop)

	assets := &fakeAssets{assets: map[string]*models.Asset{
		testAddress: {ID: testAddress, Content: models.AssetContent{JSONURI: "https://arweave.net/tape.json"}},
	}}
	metadata := fakeMetadata{
		"https://arweave.net/tape.json": {
			Name:        models.StringPtr("Sunday Tape"),
			Description: models.StringPtr("slow songs"),
			Image:       models.StringPtr("https://arweave.net/cover.png"),
			Tracks: []models.TrackMeta{
				{ID: "1", Title: "Morning", LengthSeconds: 185},
				{ID: "2", Title: "Evening", LengthSeconds: 3725},
			},
		},
	}

	defaults := page.Defaults{
		Image:       cfg.Site.DefaultImage,
		Title:       cfg.Site.DefaultTitle,
		Description: cfg.Site.DefaultDescription,
	}
	renderer, err := page.NewRenderer("")
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	return NewMixtapeServer(Options{
		Config:   cfg,
		Logger:   logger,
		Database: db,
		Loader:   page.NewLoader(assets, metadata, defaults, cfg.Site.PublicURL, logger),
		Renderer: renderer,
		Drafts:   draft.NewService(db, extractor, pool, cfg.Storage.UploadDir, logger),
		Assets:   assets,
	})
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(editTokenHeader, token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestMixtapePage(t *testing.T) {
	ms := createTestMixtapeServer(t)
	h := ms.Handler()

	t.Run("Loaded", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/sol/"+testAddress, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		body := rec.Body.String()
		for _, want := range []string{
			`<meta property="og:title" content="Sunday Tape">`,
			`content="https://mixt-ape.com/sol/` + testAddress + `"`,
			"Morning", "3:05", "1:02:05",
		} {
			if !strings.Contains(body, want) {
				t.Errorf("page missing %q", want)
			}
		}
	})

	t.Run("UnknownAddressDefaults", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/sol/So11111111111111111111111111111111111111112", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		body := rec.Body.String()
		if !strings.Contains(body, "<title>Mixtape</title>") || !strings.Contains(body, "/images/mixtape-1024.png") {
			t.Error("expected default title and image")
		}
		if !strings.Contains(body, "No mixtape tracks loaded") {
			t.Error("expected empty track message")
		}
	})

	t.Run("MissingAddressDefaults", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/sol/", "", nil)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<title>Mixtape</title>") {
			t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
	})
}

func TestMixtapeData(t *testing.T) {
	ms := createTestMixtapeServer(t)
	h := ms.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/mixtapes/"+testAddress, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var data page.Data
	decode(t, rec, &data)
	if data.State != page.StateLoaded || len(data.Tracks) != 2 || data.Title != "Sunday Tape" {
		t.Errorf("unexpected data: %+v", data)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/mixtapes/bad", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid address status = %d, want 400", rec.Code)
	}
}

func TestReadMeta(t *testing.T) {
	ms := createTestMixtapeServer(t)
	h := ms.Handler()

	t.Run("Found", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/nft/read-meta?address="+testAddress, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp models.ReadMetaResponse
		decode(t, rec, &resp)
		if resp.Asset == nil || resp.Asset.Content.JSONURI != "https://arweave.net/tape.json" {
			t.Errorf("unexpected asset: %+v", resp.Asset)
		}
	})

	t.Run("NullAsset", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/nft/read-meta?address=So11111111111111111111111111111111111111112", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if strings.TrimSpace(rec.Body.String()) != `{"asset":null}` {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("MissingAddress", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/nft/read-meta", "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
		var result ValidationResult
		decode(t, rec, &result)
		if result.Valid || len(result.Errors) != 1 || result.Errors[0].Code != "MISSING_ADDRESS" {
			t.Errorf("unexpected validation result: %+v", result)
		}
	})

	t.Run("UpstreamFailure", func(t *testing.T) {
		ms.assets.(*fakeAssets).err = errors.New("rpc down")
		defer func() { ms.assets.(*fakeAssets).err = nil }()

		rec := doRequest(t, h, http.MethodGet, "/api/nft/read-meta?address="+testAddress, "", nil)
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
	})
}

func TestDraftWorkflow(t *testing.T) {
	ms := createTestMixtapeServer(t)
	h := ms.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/drafts", "", map[string]string{"name": "Road Trip"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created createDraftResponse
	decode(t, rec, &created)
	id, token := created.Draft.ID, created.EditToken
	base := "/api/drafts/" + id

	var trackIDs []string
	for _, title := range []string{"One", "Two", "Three"} {
		rec := doRequest(t, h, http.MethodPost, base+"/tracks", token, addTrackRequest{Title: title, LengthSeconds: 90})
		if rec.Code != http.StatusCreated {
			t.Fatalf("add track status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var resp trackResponse
		decode(t, rec, &resp)
		trackIDs = append(trackIDs, resp.Track.ID)
	}

	t.Run("WrongToken", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, base+"/tracks", "nope", addTrackRequest{Title: "x"})
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("Reorder", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, base+"/reorder", token, reorderRequest{ActiveID: trackIDs[2], OverID: trackIDs[0]})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var d models.Draft
		decode(t, rec, &d)
		if d.Tracks[0].Title != "Three" || d.Tracks[1].Title != "One" {
			t.Errorf("unexpected order: %+v", d.Tracks)
		}
	})

	t.Run("RenameEmptyRejected", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPut, base+"/tracks/"+trackIDs[0], token, renameTrackRequest{Title: "  "})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("Rename", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPut, base+"/tracks/"+trackIDs[0], token, renameTrackRequest{Title: "Uno"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("Remove", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodDelete, base+"/tracks/"+trackIDs[1], token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		rec = doRequest(t, h, http.MethodDelete, base+"/tracks/"+trackIDs[1], token, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("second remove status = %d, want 404", rec.Code)
		}
	})

	t.Run("Export", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, base+"/metadata", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var meta models.ExtendedJSONMetadata
		decode(t, rec, &meta)
		if meta.Name == nil || *meta.Name != "Road Trip" {
			t.Errorf("export name = %v", meta.Name)
		}
		if len(meta.Tracks) != 2 || meta.Tracks[0].Title != "Three" || meta.Tracks[1].Title != "Uno" {
			t.Errorf("export tracks = %+v", meta.Tracks)
		}
	})

	t.Run("DraftPage", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/drafts/"+id, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		body := rec.Body.String()
		if !strings.Contains(body, "Road Trip") || !strings.Contains(body, "data-items=\""+trackIDs[2]+","+trackIDs[0]+"\"") {
			t.Errorf("draft page missing items: %s", body)
		}
	})

	t.Run("List", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/drafts", "", nil)
		var list []models.DraftSummary
		decode(t, rec, &list)
		if len(list) != 1 || list[0].TrackCount != 2 {
			t.Errorf("unexpected list: %+v", list)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodDelete, base, token, nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
		rec = doRequest(t, h, http.MethodGet, base, "", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("get after delete status = %d, want 404", rec.Code)
		}
	})
}

func TestCreateDraftValidation(t *testing.T) {
	ms := createTestMixtapeServer(t)
	h := ms.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/drafts", "", map[string]string{"name": "", "image": "ftp://x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var result ValidationResult
	decode(t, rec, &result)
	if len(result.Errors) != 2 {
		t.Errorf("expected name and image errors, got %+v", result.Errors)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/drafts", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d", rec.Code)
	}
}

func TestUploadTrack(t *testing.T) {
	ms := createTestMixtapeServer(t)
	h := ms.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/drafts", "", map[string]string{"name": "Uploads"})
	var created createDraftResponse
	decode(t, rec, &created)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "Side A.mp3")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("not really mp3 data"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/drafts/"+created.Draft.ID+"/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(editTokenHeader, created.EditToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp trackResponse
	decode(t, rec, &resp)
	if !resp.Track.Loading() {
		t.Errorf("uploaded track should start loading, got %+v", resp.Track)
	}

	// Extraction runs on the pool; poll until the title lands.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		d, err := ms.drafts.Get(created.Draft.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(d.Tracks) == 1 && d.Tracks[0].Title == "Side A" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	d, err := ms.drafts.Get(created.Draft.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Tracks[0].Title != "Side A" {
		t.Fatalf("track title was never filled in: %+v", d.Tracks[0])
	}

	audioPath := "/api/drafts/" + created.Draft.ID + "/tracks/" + resp.Track.ID + "/audio"
	rec = doRequest(t, h, http.MethodGet, audioPath, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stream status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %s, want audio/mpeg", ct)
	}
	if rec.Body.String() != "not really mp3 data" {
		t.Errorf("stream body = %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, audioPath, nil)
	req.Header.Set("Range", "bytes=0-3")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusPartialContent || rec.Body.String() != "not " {
		t.Errorf("range status = %d, body = %q", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/drafts/"+created.Draft.ID+"/tracks/missing/audio", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing track stream status = %d, want 404", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	ms := createTestMixtapeServer(t)
	rec := doRequest(t, ms.Handler(), http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var health HealthStatus
	decode(t, rec, &health)
	if health.Status != "healthy" || health.PublicURL != "https://mixt-ape.com" {
		t.Errorf("unexpected health: %+v", health)
	}
}

func TestCORSPreflight(t *testing.T) {
	ms := createTestMixtapeServer(t)
	rec := doRequest(t, ms.Handler(), http.MethodOptions, "/api/drafts", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing allow origin header")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), editTokenHeader) {
		t.Error("edit token header not allowed")
	}
}

func TestPanicRecovery(t *testing.T) {
	ms := createTestMixtapeServer(t)
	h := ms.panicRecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHomeFallsBackToPublicSite(t *testing.T) {
	ms := createTestMixtapeServer(t)
	rec := doRequest(t, ms.Handler(), http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "https://mixt-ape.com" {
		t.Errorf("status = %d, location = %s", rec.Code, rec.Header().Get("Location"))
	}

	if err := os.MkdirAll(ms.config.Server.StaticDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ms.config.Server.StaticDir, "index.html"), []byte("<h1>home</h1>"), 0644); err != nil {
		t.Fatal(err)
	}
	rec = doRequest(t, ms.Handler(), http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "home") {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestTemplateWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"mixtape.html": "v1 {{.Title}}",
		"draft.html":   "{{.Name}}",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	ms := createTestMixtapeServer(t)
	renderer, err := page.NewRenderer(dir)
	if err != nil {
		t.Fatal(err)
	}
	ms.renderer = renderer
	if err := ms.startTemplateWatcher(); err != nil {
		t.Fatalf("startTemplateWatcher() error = %v", err)
	}
	defer ms.stopTemplateWatcher()

	if err := os.WriteFile(filepath.Join(dir, "mixtape.html"), []byte("v2 {{.Title}}"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var buf bytes.Buffer
		if err := ms.renderer.RenderMixtape(&buf, &page.Data{Title: "x"}); err == nil && buf.String() == "v2 x" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("templates were not reloaded after change")
}
