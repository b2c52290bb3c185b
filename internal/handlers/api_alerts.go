package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/getdatasurge/escalation-engine/internal/alerts"
	"github.com/getdatasurge/escalation-engine/internal/api"
	"github.com/getdatasurge/escalation-engine/internal/database"
	"github.com/getdatasurge/escalation-engine/internal/middleware"
)

func (h *APIHandler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	p := api.ParsePagination(r)
	status := database.AlertStatus(r.URL.Query().Get("status"))

	items, total, err := h.alerts.List(status, p.PerPage, p.Offset())
	if err != nil {
		log.Printf("APIHandler: failed to list alerts: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list alerts")
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts":      items,
		"total":       total,
		"page":        p.Page,
		"per_page":    p.PerPage,
		"total_pages": p.TotalPages(total),
	})
}

func (h *APIHandler) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Alert not found")
		return
	}
	api.RespondJSON(w, http.StatusOK, alert)
}

func (h *APIHandler) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Alert not found")
		return
	}

	updated, err := h.stateMachine.Acknowledge(alert.ID, actorFrom(r))
	if err != nil {
		h.respondTransitionError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, updated)
}

// ResolveRequest is the body for POST /api/alerts/{uuid}/resolve.
type ResolveRequest struct {
	Resolution string `json:"resolution" validate:"required"`
}

func (h *APIHandler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Alert not found")
		return
	}

	var req ResolveRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	updated, err := h.stateMachine.Resolve(alert.ID, actorFrom(r), req.Resolution)
	if err != nil {
		h.respondTransitionError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, updated)
}

func (h *APIHandler) handleSilenceAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Alert not found")
		return
	}

	updated, err := h.stateMachine.Silence(alert.ID, actorFrom(r))
	if err != nil {
		h.respondTransitionError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, updated)
}

func (h *APIHandler) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.GetByUUID(r.PathValue("uuid"))
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Alert not found")
		return
	}

	p := api.ParsePagination(r)
	items, total, err := h.deliveries.ListByAlert(alert.ID, p.PerPage, p.Offset())
	if err != nil {
		log.Printf("APIHandler: failed to list deliveries for alert %s: %v", alert.UUID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list deliveries")
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"deliveries":  items,
		"total":       total,
		"page":        p.Page,
		"per_page":    p.PerPage,
		"total_pages": p.TotalPages(total),
	})
}

func (h *APIHandler) respondTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alerts.ErrAlreadyAcknowledged):
		api.RespondErrorWithCode(w, http.StatusConflict, api.CodeAlreadyAcknowledged, err.Error())
	case errors.Is(err, alerts.ErrInvalidTransition):
		api.RespondErrorWithCode(w, http.StatusConflict, api.CodeInvalidTransition, err.Error())
	case errors.Is(err, alerts.ErrResolutionRequired):
		api.RespondErrorWithCode(w, http.StatusBadRequest, api.CodeResolutionRequired, err.Error())
	default:
		log.Printf("APIHandler: alert transition failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to update alert")
	}
}

// actorFrom names the authenticated user for audit fields.
func actorFrom(r *http.Request) string {
	if user := middleware.GetUserFromContext(r.Context()); user != "" {
		return user
	}
	return "unknown"
}
