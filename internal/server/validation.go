package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"mixtape/internal/draft"
	"mixtape/internal/nft"

	"github.com/sirupsen/logrus"
)

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

const (
	maxNameLength        = 255
	maxDescriptionLength = 2000
	maxURLLength         = 2048
)

func (ms *MixtapeServer) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ms.logger.WithError(err).Warn("Failed to encode JSON response")
	}
}

// respondWithValidationError sends a structured validation error response
func (ms *MixtapeServer) respondWithValidationError(w http.ResponseWriter, r *http.Request, errs []ValidationError) {
	ms.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"errors": errs,
	}).Warn("Validation failed")

	ms.respondJSON(w, http.StatusBadRequest, ValidationResult{
		Valid:  false,
		Errors: errs,
	})
}

// respondWithError sends a structured error response
func (ms *MixtapeServer) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	logEntry := ms.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": statusCode,
		"message":     message,
	})
	if err != nil {
		logEntry = logEntry.WithError(err)
	}

	if statusCode >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Warn("Client error")
	}

	ms.respondJSON(w, statusCode, map[string]interface{}{
		"error":   message,
		"code":    statusCode,
		"success": false,
	})
}

// respondWithDraftError maps draft service errors onto HTTP responses.
func (ms *MixtapeServer) respondWithDraftError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, draft.ErrNotFound):
		ms.respondWithError(w, r, http.StatusNotFound, "Draft not found", err)
	case errors.Is(err, draft.ErrForbidden):
		ms.respondWithError(w, r, http.StatusForbidden, "Invalid edit token", nil)
	case errors.Is(err, draft.ErrTrackNotFound):
		ms.respondWithError(w, r, http.StatusNotFound, "Track not found", nil)
	case errors.Is(err, draft.ErrTrackLoading):
		ms.respondWithError(w, r, http.StatusConflict, "Track metadata is still loading", nil)
	case errors.Is(err, draft.ErrUnsupportedFormat):
		ms.respondWithError(w, r, http.StatusUnsupportedMediaType, "Unsupported audio format", err)
	case errors.Is(err, draft.ErrEmptyName):
		ms.respondWithValidationError(w, r, []ValidationError{{Field: "name", Message: err.Error(), Code: "MISSING_NAME"}})
	case errors.Is(err, draft.ErrEmptyTitle):
		ms.respondWithValidationError(w, r, []ValidationError{{Field: "title", Message: err.Error(), Code: "EMPTY_TITLE"}})
	case errors.Is(err, draft.ErrInvalidLength):
		ms.respondWithValidationError(w, r, []ValidationError{{Field: "lengthSeconds", Message: err.Error(), Code: "INVALID_LENGTH"}})
	default:
		ms.respondWithError(w, r, http.StatusInternalServerError, "Draft operation failed", err)
	}
}

// validateAddress checks a mint address from the query or path.
func validateAddress(address string) *ValidationError {
	if address == "" {
		return &ValidationError{
			Field:   "address",
			Message: "Address is required",
			Code:    "MISSING_ADDRESS",
		}
	}
	if !nft.ValidAddress(address) {
		return &ValidationError{
			Field:   "address",
			Message: "Address must be a base58 public key",
			Code:    "INVALID_ADDRESS",
		}
	}
	return nil
}

// validateDraftName validates draft name
func validateDraftName(name string) *ValidationError {
	if name == "" {
		return &ValidationError{
			Field:   "name",
			Message: "Draft name is required",
			Code:    "MISSING_NAME",
		}
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return &ValidationError{
			Field:   "name",
			Message: "Draft name too long (max 255 characters)",
			Code:    "NAME_TOO_LONG",
		}
	}
	if strings.ContainsAny(name, "\n\r") {
		return &ValidationError{
			Field:   "name",
			Message: "Draft name contains invalid characters",
			Code:    "INVALID_NAME_CHARACTERS",
		}
	}
	return nil
}

// validateTrackTitle validates a track title
func validateTrackTitle(title string) *ValidationError {
	if title == "" {
		return &ValidationError{
			Field:   "title",
			Message: "Track title cannot be empty",
			Code:    "EMPTY_TITLE",
		}
	}
	if utf8.RuneCountInString(title) > maxNameLength {
		return &ValidationError{
			Field:   "title",
			Message: "Track title too long (max 255 characters)",
			Code:    "TITLE_TOO_LONG",
		}
	}
	return nil
}

func validateDescription(description string) *ValidationError {
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return &ValidationError{
			Field:   "description",
			Message: "Description too long (max 2000 characters)",
			Code:    "DESCRIPTION_TOO_LONG",
		}
	}
	return nil
}

// validateImageURL accepts an empty value or an http(s) URL.
func validateImageURL(urlStr string) *ValidationError {
	if urlStr == "" {
		return nil
	}

	if len(urlStr) > maxURLLength {
		return &ValidationError{
			Field:   "image",
			Message: "URL too long (max 2048 characters)",
			Code:    "URL_TOO_LONG",
		}
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return &ValidationError{
			Field:   "image",
			Message: "Invalid URL format",
			Code:    "INVALID_URL_FORMAT",
		}
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{
			Field:   "image",
			Message: "URL must use HTTP or HTTPS protocol",
			Code:    "INVALID_URL_PROTOCOL",
		}
	}
	return nil
}

// collect drops nil results.
func collect(results ...*ValidationError) []ValidationError {
	var errs []ValidationError
	for _, r := range results {
		if r != nil {
			errs = append(errs, *r)
		}
	}
	return errs
}

// sanitizeInput sanitizes user input to prevent injection attacks
func sanitizeInput(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
