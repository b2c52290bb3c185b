package handlers

import (
	"log"
	"net/http"

	"github.com/getdatasurge/escalation-engine/internal/api"
)

// SourceRequest is the create/update body for an alert source instance.
type SourceRequest struct {
	Name          string `json:"name" validate:"required,max=128"`
	Description   string `json:"description"`
	WebhookSecret string `json:"webhook_secret"`
	Enabled       *bool  `json:"enabled"`
}

func (h *APIHandler) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.sources.List()
	if err != nil {
		log.Printf("APIHandler: failed to list alert sources: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list alert sources")
		return
	}
	api.RespondJSON(w, http.StatusOK, sources)
}

func (h *APIHandler) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req SourceRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	source, err := h.sources.Create(req.Name, req.Description, req.WebhookSecret)
	if err != nil {
		log.Printf("APIHandler: failed to create alert source: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to create alert source")
		return
	}
	api.RespondJSON(w, http.StatusCreated, source)
}

func (h *APIHandler) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid source ID")
		return
	}

	var req SourceRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	if err := h.sources.Update(id, req.Name, req.Description, req.WebhookSecret, enabled); err != nil {
		log.Printf("APIHandler: failed to update alert source %d: %v", id, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to update alert source")
		return
	}
	api.RespondNoContent(w)
}

func (h *APIHandler) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid source ID")
		return
	}
	if err := h.sources.Delete(id); err != nil {
		log.Printf("APIHandler: failed to delete alert source %d: %v", id, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to delete alert source")
		return
	}
	api.RespondNoContent(w)
}
