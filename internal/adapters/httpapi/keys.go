package httpapi

import (
	"net/http"

	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
	"github.com/atvirokodosprendimai/swmanager/internal/metrics"
)

type apiKeyResponse struct {
	Key       string `json:"key"`
	Activated bool   `json:"activated"`
}

type issuedKeyResponse struct {
	Key string `json:"key"`
}

type changeKeyStatusRequest struct {
	Key       string `json:"key"`
	Activated bool   `json:"activated"`
}

type keyRefRequest struct {
	Key string `json:"key"`
}

func (h *Handler) issueKey(w http.ResponseWriter, r *http.Request) {
	if h.issueLimiter != nil && !h.issueLimiter.Allow() {
		writeError(w, http.StatusTooManyRequests, msgTooManyRequests)
		return
	}

	apiKey, err := h.authService.Issue(r.Context())
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	metrics.APIKeysIssued.Inc()
	writeJSON(w, http.StatusOK, issuedKeyResponse{Key: apiKey.Key})
}

func (h *Handler) listKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.authService.List(r.Context())
	if err != nil {
		h.fail(w, r, err, "")
		return
	}

	result := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		result = append(result, toAPIKeyResponse(k))
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) changeKeyStatus(w http.ResponseWriter, r *http.Request) {
	var req changeKeyStatusRequest
	if !h.decode(w, r, changeKeyStatusSchema, &req) {
		return
	}

	apiKey, err := h.authService.SetActivated(r.Context(), req.Key, req.Activated)
	if err != nil {
		h.fail(w, r, err, msgAPIKeyNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toAPIKeyResponse(apiKey))
}

func (h *Handler) deleteKey(w http.ResponseWriter, r *http.Request) {
	var req keyRefRequest
	if !h.decode(w, r, keyRefSchema, &req) {
		return
	}

	apiKey, err := h.authService.Delete(r.Context(), req.Key)
	if err != nil {
		h.fail(w, r, err, msgAPIKeyNotFound)
		return
	}
	writeJSON(w, http.StatusOK, issuedKeyResponse{Key: apiKey.Key})
}

func toAPIKeyResponse(k domain.APIKey) apiKeyResponse {
	return apiKeyResponse{Key: k.Key, Activated: k.Activated}
}
