package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	scerrors "github.com/FocuswithJustin/JuniperScripture/core/errors"
	"github.com/FocuswithJustin/JuniperScripture/internal/complete"
	"github.com/FocuswithJustin/JuniperScripture/internal/ingest"
	"github.com/FocuswithJustin/JuniperScripture/internal/library"
	"github.com/FocuswithJustin/JuniperScripture/internal/logging"
	"github.com/FocuswithJustin/JuniperScripture/internal/reference"
	"github.com/FocuswithJustin/JuniperScripture/internal/slides"
	"github.com/FocuswithJustin/JuniperScripture/internal/store"
	"github.com/FocuswithJustin/JuniperScripture/internal/validation"
)

// Version is reported by /health and /.
var Version = "0.1.0"

const maxRequestBody = 64 << 10

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Versions int    `json:"versions"`
	Clients  int    `json:"websocket_clients"`
}

// ImportRequest starts a URL import.
type ImportRequest struct {
	URL string `json:"url"`
}

// PassageRequest names a passage by free-text reference.
type PassageRequest struct {
	Q string `json:"q"`
}

// ReferenceResult is the response of /reference.
type ReferenceResult struct {
	reference.Reference
	Canonical string `json:"canonical"`
	Valid     bool   `json:"valid"`
	Smart     string `json:"smart,omitempty"`
}

// SuggestResult is the response of /suggest.
type SuggestResult struct {
	State       string                `json:"state"`
	Suggestions []complete.Suggestion `json:"suggestions"`
	Completion  string                `json:"completion,omitempty"`
}

// LookupResult is the response of /lookup.
type LookupResult struct {
	Reference reference.Reference `json:"reference"`
	Version   *store.Version      `json:"version,omitempty"`
	Verses    []store.Verse       `json:"verses"`
}

// SlidesResult is the response of /slides.
type SlidesResult struct {
	Reference string   `json:"reference"`
	Mode      string   `json:"mode"`
	Slides    []string `json:"slides"`
}

// ServiceResult is the response of /service.
type ServiceResult struct {
	Reference string `json:"reference"`
	Text      string `json:"text"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"name":    "Juniper Scripture API",
		"version": Version,
		"endpoints": []string{
			"GET /health",
			"GET /versions",
			"DELETE /versions/{id}",
			"GET /books",
			"POST /imports",
			"GET /imports/active",
			"GET /reference?q=",
			"GET /suggest?q=&prev=",
			"GET /lookup?q=",
			"GET /slides?q=&mode=",
			"POST /output",
			"POST /service",
			"WS /ws",
		},
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	versions, err := s.lib.Versions(r.Context())
	if err != nil {
		logging.ErrorContext(r.Context(), "health_check_failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Verse store unavailable")
		return
	}
	respond(w, http.StatusOK, HealthInfo{
		Status:   "healthy",
		Version:  Version,
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Versions: len(versions),
		Clients:  s.hub.ClientCount(),
	})
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.lib.Versions(r.Context())
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	if versions == nil {
		versions = []store.Version{}
	}
	respondList(w, versions, len(versions))
}

func (s *Server) handleUninstall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.lib.Uninstall(r.Context(), id); err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.lib.Books(r.Context())
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	version := r.URL.Query().Get("version")
	out := make([]store.Book, 0, len(books))
	for _, b := range books {
		if version == "" || strings.EqualFold(b.Version, version) {
			out = append(out, b)
		}
	}
	respondList(w, out, len(out))
}

// handleImport accepts either a JSON {"url": ...} body or, when the
// filename query parameter is present, the raw file as the body. The import
// runs to completion even if the client goes away.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var src ingest.Source
	if raw := r.URL.Query().Get("filename"); raw != "" {
		name, err := validation.SanitizeFilename(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_FILENAME", err.Error())
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Upload exceeds the size limit")
				return
			}
			respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read upload")
			return
		}
		if len(body) == 0 {
			respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Upload is empty")
			return
		}
		if _, err := validation.DetectFileType(body[:min(len(body), 512)], name); err != nil {
			respondError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_TYPE", err.Error())
			return
		}
		src = ingest.FromBytes(body, name)
	} else {
		var req ImportRequest
		if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.URL) == "" {
			respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Body must be JSON with a url field, or pass ?filename= with the file as the body")
			return
		}
		u, err := url.Parse(strings.TrimSpace(req.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			respondError(w, http.StatusBadRequest, "INVALID_URL", "URL must be absolute http or https")
			return
		}
		src = ingest.FromURL(u.String())
	}

	res, err := s.lib.Import(context.WithoutCancel(r.Context()), src)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respond(w, http.StatusCreated, res)
}

func (s *Server) handleActiveImport(w http.ResponseWriter, r *http.Request) {
	status, ok := s.lib.ActiveImport()
	if !ok {
		respondError(w, http.StatusNotFound, "NO_ACTIVE_IMPORT", "No import is running")
		return
	}
	respond(w, http.StatusOK, status)
}

func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	ref, err := s.lib.Parse(r.Context(), q)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	res := ReferenceResult{Reference: ref, Canonical: ref.String(), Valid: ref.Valid()}
	if smart := reference.SmartTransform(q); smart != q {
		res.Smart = smart
	}
	respond(w, http.StatusOK, res)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	engine, err := s.lib.Completer(r.Context())
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	res := SuggestResult{
		State:       complete.Classify(q).State.String(),
		Suggestions: engine.Suggest(q),
	}
	if res.Suggestions == nil {
		res.Suggestions = []complete.Suggestion{}
	}
	if prev, ok := r.URL.Query()["prev"]; ok {
		if completed, ok := engine.InlineComplete(prev[0], q); ok {
			res.Completion = completed
		}
	}
	respond(w, http.StatusOK, res)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	ref, err := s.lib.Parse(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	verses, version, err := s.lib.Lookup(r.Context(), ref)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	if verses == nil {
		verses = []store.Verse{}
	}
	respond(w, http.StatusOK, LookupResult{Reference: ref, Version: version, Verses: verses})
}

func (s *Server) handleSlides(w http.ResponseWriter, r *http.Request) {
	var mode slides.Mode
	if m := r.URL.Query().Get("mode"); m != "" {
		var err error
		if mode, err = slides.ParseMode(m); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_MODE", err.Error())
			return
		}
	}
	ref, err := s.lib.Parse(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	out, err := s.lib.Slides(r.Context(), ref, mode)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respond(w, http.StatusOK, SlidesResult{Reference: ref.String(), Mode: string(mode), Slides: out})
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.passage(w, r)
	if !ok {
		return
	}
	n, err := s.lib.SendToOutput(r.Context(), ref)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"reference": ref.String(), "sent": n})
}

func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.passage(w, r)
	if !ok {
		return
	}
	verses, _, err := s.lib.Lookup(r.Context(), ref)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	entryRef, text, err := s.lib.AddToService(verses)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respond(w, http.StatusOK, ServiceResult{Reference: entryRef, Text: text})
}

// passage decodes a PassageRequest and parses it. It writes the error
// response itself and reports false when the request cannot proceed.
func (s *Server) passage(w http.ResponseWriter, r *http.Request) (reference.Reference, bool) {
	var req PassageRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Q) == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", `Body must be JSON with a "q" reference`)
		return reference.Reference{}, false
	}
	ref, err := s.lib.Parse(r.Context(), req.Q)
	if err != nil {
		s.respondFailure(w, r, err)
		return reference.Reference{}, false
	}
	if len(ref.Errors) > 0 {
		respondError(w, http.StatusBadRequest, "INVALID_REFERENCE", strings.Join(ref.Errors, " "))
		return reference.Reference{}, false
	}
	return ref, true
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// errorStatus maps engine errors to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, library.ErrImportActive):
		return http.StatusConflict, "IMPORT_ACTIVE"
	case errors.Is(err, library.ErrNoVerses):
		return http.StatusNotFound, "NO_VERSES"
	case errors.Is(err, scerrors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, scerrors.ErrDownload):
		return http.StatusBadGateway, "DOWNLOAD_FAILED"
	case errors.Is(err, scerrors.ErrUnzip):
		return http.StatusUnprocessableEntity, "UNZIP_FAILED"
	case errors.Is(err, scerrors.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "PARSE_FAILED"
	case errors.Is(err, scerrors.ErrImport):
		return http.StatusInternalServerError, "IMPORT_FAILED"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorContext(r.Context(), "request_failed", "path", r.URL.Path, "code", code, "error", err)
	}
	respondError(w, status, code, err.Error())
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondList(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Total: total, Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func writeJSON(w http.ResponseWriter, status int, v APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
