package handlers

import (
	"log"
	"net/http"

	"github.com/getdatasurge/escalation-engine/internal/api"
	"github.com/getdatasurge/escalation-engine/internal/database"
)

// ========== Engine settings ==========

// EngineSettingsRequest is the body for PUT /api/settings/engine.
type EngineSettingsRequest struct {
	MaxSendAttempts            int  `json:"max_send_attempts" validate:"min=1,max=10"`
	RetryBackoffBaseSeconds    int  `json:"retry_backoff_base_seconds" validate:"min=1,max=300"`
	SendTimeoutSeconds         int  `json:"send_timeout_seconds" validate:"min=1,max=120"`
	RecoverySweepMinutes       int  `json:"recovery_sweep_minutes" validate:"min=1,max=1440"`
	CriticalBypassesQuietHours bool `json:"critical_bypasses_quiet_hours"`
}

func (h *APIHandler) handleGetEngineSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := database.GetEngineSettings(database.GetDB())
	if err != nil {
		log.Printf("APIHandler: failed to load engine settings: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load engine settings")
		return
	}
	api.RespondJSON(w, http.StatusOK, settings)
}

func (h *APIHandler) handleUpdateEngineSettings(w http.ResponseWriter, r *http.Request) {
	var req EngineSettingsRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	db := database.GetDB()
	settings, err := database.GetEngineSettings(db)
	if err != nil {
		log.Printf("APIHandler: failed to load engine settings: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load engine settings")
		return
	}

	settings.MaxSendAttempts = req.MaxSendAttempts
	settings.RetryBackoffBaseSeconds = req.RetryBackoffBaseSeconds
	settings.SendTimeoutSeconds = req.SendTimeoutSeconds
	settings.RecoverySweepMinutes = req.RecoverySweepMinutes
	settings.CriticalBypassesQuietHours = req.CriticalBypassesQuietHours

	if err := database.UpdateEngineSettings(db, settings); err != nil {
		log.Printf("APIHandler: failed to update engine settings: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to update engine settings")
		return
	}
	log.Printf("APIHandler: engine settings updated by %s", actorFrom(r))
	api.RespondJSON(w, http.StatusOK, settings)
}

// ========== Slack settings ==========

// SlackSettingsRequest is the body for PUT /api/settings/slack.
type SlackSettingsRequest struct {
	BotToken   string `json:"bot_token"`
	OpsChannel string `json:"ops_channel"`
	Enabled    bool   `json:"enabled"`
}

func (h *APIHandler) handleGetSlackSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := database.GetSlackSettings(database.GetDB())
	if err != nil {
		log.Printf("APIHandler: failed to load Slack settings: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load Slack settings")
		return
	}

	// Never echo the token back in full.
	masked := *settings
	if masked.BotToken != "" {
		masked.BotToken = "configured"
	}
	api.RespondJSON(w, http.StatusOK, masked)
}

func (h *APIHandler) handleUpdateSlackSettings(w http.ResponseWriter, r *http.Request) {
	var req SlackSettingsRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	db := database.GetDB()
	settings, err := database.GetSlackSettings(db)
	if err != nil {
		log.Printf("APIHandler: failed to load Slack settings: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load Slack settings")
		return
	}

	// An omitted or masked token keeps the stored one.
	if req.BotToken != "" && req.BotToken != "configured" {
		settings.BotToken = req.BotToken
	}
	settings.OpsChannel = req.OpsChannel
	settings.Enabled = req.Enabled

	if err := database.UpdateSlackSettings(db, settings); err != nil {
		log.Printf("APIHandler: failed to update Slack settings: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to update Slack settings")
		return
	}

	if h.notifier != nil {
		h.notifier.Reload()
	}
	api.RespondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
