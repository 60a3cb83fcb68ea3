package server

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

// HealthStatus represents operational status for the /health endpoint.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Database  string                 `json:"database"`
	Storage   string                 `json:"storage"`
	Drafts    int                    `json:"draftCount"`
	PublicURL string                 `json:"publicUrl"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// handleHealthCheck returns basic liveness + dependency checks.
func (ms *MixtapeServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Database:  "ok",
		Storage:   "ok",
		PublicURL: ms.loader.PublicURL(),
		Details:   make(map[string]interface{}),
	}

	if err := ms.db.Ping(); err != nil {
		health.Status = "unhealthy"
		health.Database = "error"
		health.Details["database_error"] = err.Error()
	}

	if err := ms.checkStorageHealth(); err != nil {
		health.Status = "unhealthy"
		health.Storage = "error"
		health.Details["storage_error"] = err.Error()
	}

	drafts, err := ms.drafts.List()
	if err != nil {
		health.Details["draft_count_error"] = err.Error()
	} else {
		health.Drafts = len(drafts)
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	ms.respondJSON(w, status, health)
}

// checkStorageHealth verifies the upload directory exists or can be created.
func (ms *MixtapeServer) checkStorageHealth() error {
	dir := ms.config.Storage.UploadDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
