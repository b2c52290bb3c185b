package handlers

import (
	"net/http"

	"github.com/getdatasurge/escalation-engine/internal/api"
)

// HTTPHandler handles the unauthenticated HTTP surface: health checks
// and alert webhooks.
type HTTPHandler struct {
	alertHandler *AlertHandler
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(alertHandler *AlertHandler) *HTTPHandler {
	return &HTTPHandler{
		alertHandler: alertHandler,
	}
}

// SetupRoutes configures all HTTP routes
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	// Alert webhooks: /webhook/alert/{instance_uuid}
	if h.alertHandler != nil {
		mux.HandleFunc("/webhook/alert/", h.alertHandler.HandleWebhook)
	}
}

// handleHealth returns a simple health check response
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": "1.0.0",
	})
}
