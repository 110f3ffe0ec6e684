package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
	"github.com/atvirokodosprendimai/swmanager/internal/core/usecase"
)

const (
	maxJSONBodySize = 1 << 20

	msgInvalidAPIKey        = "Invalid API Key"
	msgVersionConflict      = "Version Conflict"
	msgInvalidVersionFormat = "Invalid Version Format"
	msgAPIKeyNotFound       = "Api key doesn't exist"
	msgTooManyRequests      = "Too Many Requests"
	msgInternal             = "internal server error"
)

// Options carries the optional parts of the HTTP surface.
type Options struct {
	// AdminKey, when set, protects the key administration endpoints.
	AdminKey string
	// IssueLimiter throttles GET /create-api-key. Nil disables throttling.
	IssueLimiter *rate.Limiter
	Logger       *slog.Logger
}

type Handler struct {
	softwareService *usecase.SoftwareService
	authService     *usecase.AuthService

	adminKey     string
	issueLimiter *rate.Limiter
	logger       *slog.Logger
}

func NewHandler(softwareService *usecase.SoftwareService, authService *usecase.AuthService, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		softwareService: softwareService,
		authService:     authService,
		adminKey:        opts.AdminKey,
		issueLimiter:    opts.IssueLimiter,
		logger:          logger,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestID)
	r.Use(h.accessLog)
	r.Use(h.recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/create-api-key", h.issueKey)
	r.Group(func(ar chi.Router) {
		ar.Use(h.requireAdminKey)
		ar.Get("/get-all-api-keys", h.listKeys)
		ar.Patch("/change-api-key-status", h.changeKeyStatus)
		ar.Delete("/delete-api-key", h.deleteKey)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAPIKey)
		pr.Get("/software", h.listSoftware)
		pr.Post("/software", h.createSoftware)
		pr.Get("/software/{id}", h.getSoftware)
		pr.Delete("/software/{id}", h.deleteSoftware)
		pr.Patch("/software/{id}/activate", h.activateSoftware)
		pr.Patch("/software/{id}/download", h.downloadSoftware)
		pr.Patch("/software/{id}/version", h.updateVersion)
	})

	return r
}

type softwareResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

type createSoftwareRequest struct {
	Name string `json:"name"`
}

type updateVersionRequest struct {
	Version string `json:"version"`
}

func (h *Handler) listSoftware(w http.ResponseWriter, r *http.Request) {
	items, err := h.softwareService.List(r.Context())
	if err != nil {
		h.fail(w, r, err, "")
		return
	}

	result := make([]softwareResponse, 0, len(items))
	for _, sw := range items {
		result = append(result, toSoftwareResponse(sw))
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getSoftware(w http.ResponseWriter, r *http.Request) {
	id, ok := softwareID(w, r)
	if !ok {
		return
	}

	sw, err := h.softwareService.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, softwareNotFound(chi.URLParam(r, "id")))
		return
	}
	writeJSON(w, http.StatusOK, toSoftwareResponse(sw))
}

func (h *Handler) createSoftware(w http.ResponseWriter, r *http.Request) {
	var req createSoftwareRequest
	if !h.decode(w, r, createSoftwareSchema, &req) {
		return
	}

	sw, err := h.softwareService.Create(r.Context(), req.Name)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, toSoftwareResponse(sw))
}

func (h *Handler) deleteSoftware(w http.ResponseWriter, r *http.Request) {
	id, ok := softwareID(w, r)
	if !ok {
		return
	}

	sw, err := h.softwareService.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, softwareNotFound(chi.URLParam(r, "id")))
		return
	}
	writeJSON(w, http.StatusOK, toSoftwareResponse(sw))
}

func (h *Handler) activateSoftware(w http.ResponseWriter, r *http.Request) {
	id, ok := softwareID(w, r)
	if !ok {
		return
	}

	sw, err := h.softwareService.RequestActivate(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, softwareNotFound(chi.URLParam(r, "id")))
		return
	}
	writeJSON(w, http.StatusOK, toSoftwareResponse(sw))
}

func (h *Handler) downloadSoftware(w http.ResponseWriter, r *http.Request) {
	id, ok := softwareID(w, r)
	if !ok {
		return
	}

	sw, err := h.softwareService.RequestDownload(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, softwareNotFound(chi.URLParam(r, "id")))
		return
	}
	writeJSON(w, http.StatusOK, toSoftwareResponse(sw))
}

func (h *Handler) updateVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := softwareID(w, r)
	if !ok {
		return
	}

	var req updateVersionRequest
	if !h.decode(w, r, updateVersionSchema, &req) {
		return
	}

	sw, err := h.softwareService.UpdateVersion(r.Context(), id, req.Version)
	if err != nil {
		h.fail(w, r, err, softwareNotFound(chi.URLParam(r, "id")))
		return
	}
	writeJSON(w, http.StatusOK, toSoftwareResponse(sw))
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

// decode validates the request body against schema and unmarshals it into dst.
// It writes a 422 and returns false when the body is malformed or invalid.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, schema *requestSchema, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid json body")
		return false
	}
	if err := schema.validate(body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid json body")
		return false
	}
	return true
}

// fail maps err onto a status code. notFound is the body used for
// domain.ErrNotFound; an empty value falls back to the error text.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if notFound == "" {
			notFound = err.Error()
		}
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, domain.ErrVersionConflict):
		writeError(w, http.StatusConflict, msgVersionConflict)
	case errors.Is(err, domain.ErrInvalidVersionFormat):
		writeError(w, http.StatusUnprocessableEntity, msgInvalidVersionFormat)
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", domain.RequestIDFromContext(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

// softwareID parses the {id} path segment. A non-integer id cannot name a
// record, so it is reported as not found.
func softwareID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, softwareNotFound(raw))
		return 0, false
	}
	return id, true
}

func softwareNotFound(id string) string {
	return fmt.Sprintf("Software with id = %s doesn't exist", id)
}

func toSoftwareResponse(sw domain.Software) softwareResponse {
	return softwareResponse{
		ID:      sw.ID,
		Name:    sw.Name,
		Version: sw.Version,
		Status:  string(sw.Status),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("encode json response", "error", err)
		http.Error(w, msgInternal, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func openapiSpec() map[string]any {
	keyed := func(summary string) map[string]any {
		return map[string]any{
			"summary":  summary,
			"security": []map[string]any{{"apiKey": []string{}}},
		}
	}
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "swmanager",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"apiKey": map[string]any{"type": "apiKey", "in": "header", "name": "X-API-Key"},
			},
		},
		"paths": map[string]any{
			"/software": map[string]any{
				"get":  keyed("List software"),
				"post": keyed("Create software"),
			},
			"/software/{id}": map[string]any{
				"get":    keyed("Get software"),
				"delete": keyed("Delete software"),
			},
			"/software/{id}/activate": map[string]any{
				"patch": keyed("Schedule activation"),
			},
			"/software/{id}/download": map[string]any{
				"patch": keyed("Schedule download"),
			},
			"/software/{id}/version": map[string]any{
				"patch": keyed("Update version"),
			},
			"/create-api-key": map[string]any{
				"get": map[string]any{"summary": "Issue API key"},
			},
			"/get-all-api-keys": map[string]any{
				"get": map[string]any{"summary": "List API keys"},
			},
			"/change-api-key-status": map[string]any{
				"patch": map[string]any{"summary": "Activate or deactivate API key"},
			},
			"/delete-api-key": map[string]any{
				"delete": map[string]any{"summary": "Delete API key"},
			},
		},
	}
}
