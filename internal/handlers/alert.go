package handlers

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/getdatasurge/escalation-engine/internal/alerts"
	"github.com/getdatasurge/escalation-engine/internal/api"
	"github.com/getdatasurge/escalation-engine/internal/database"
	"github.com/getdatasurge/escalation-engine/internal/escalation"
	slackutil "github.com/getdatasurge/escalation-engine/internal/slack"
)

// WebhookAlert is the payload threshold evaluators post to
// /webhook/alert/{instance_uuid}. Status "firing" opens (or re-opens) an
// alert; "resolved" closes the matching open one.
type WebhookAlert struct {
	UnitID    uint   `json:"unit_id" validate:"required"`
	AlertType string `json:"alert_type" validate:"required,max=64"`
	Severity  string `json:"severity" validate:"required,oneof=info warning critical"`
	Status    string `json:"status" validate:"omitempty,oneof=firing resolved"`
	Message   string `json:"message"`
}

// AlertHandler ingests webhook alerts and hands new ones to the
// scheduler.
type AlertHandler struct {
	alerts       *database.AlertStore
	sources      *database.SourceStore
	contacts     *database.ContactStore
	stateMachine *alerts.StateMachine
	scheduler    *escalation.Scheduler
	notifier     *slackutil.Notifier
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alertStore *database.AlertStore, sources *database.SourceStore, contacts *database.ContactStore, sm *alerts.StateMachine, scheduler *escalation.Scheduler, notifier *slackutil.Notifier) *AlertHandler {
	return &AlertHandler{
		alerts:       alertStore,
		sources:      sources,
		contacts:     contacts,
		stateMachine: sm,
		scheduler:    scheduler,
		notifier:     notifier,
	}
}

// HandleWebhook processes incoming webhook requests
// Route: /webhook/alert/{instance_uuid}
func (h *AlertHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/webhook/alert/")
	instanceUUID := strings.TrimSuffix(path, "/")
	if instanceUUID == "" {
		api.RespondError(w, http.StatusBadRequest, "Missing instance UUID")
		return
	}

	instance, err := h.sources.GetByUUID(instanceUUID)
	if err != nil {
		log.Printf("AlertHandler: unknown source instance %s: %v", instanceUUID, err)
		api.RespondError(w, http.StatusNotFound, "Instance not found")
		return
	}
	if !instance.Enabled {
		log.Printf("AlertHandler: source instance disabled: %s", instance.Name)
		api.RespondError(w, http.StatusForbidden, "Instance disabled")
		return
	}

	secret := r.Header.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(instance.WebhookSecret)) != 1 {
		log.Printf("AlertHandler: webhook secret mismatch for %s", instance.Name)
		api.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload WebhookAlert
	if err := api.DecodeJSON(r, &payload); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if fieldErrors := api.Validate(payload); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	if payload.Status == "resolved" {
		h.handleResolved(w, instance, payload)
		return
	}
	h.handleFiring(w, instance, payload)
}

// handleFiring opens a new alert, or reconciles the payload against an
// existing open one: an active duplicate is ignored, an acknowledged
// alert re-violating goes back to active.
func (h *AlertHandler) handleFiring(w http.ResponseWriter, instance *database.AlertSourceInstance, payload WebhookAlert) {
	existing, err := h.alerts.FindOpen(payload.UnitID, payload.AlertType)
	if err != nil {
		log.Printf("AlertHandler: failed to check for open alert: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to process alert")
		return
	}

	if existing != nil {
		if existing.Status == database.AlertStatusAcknowledged {
			if _, err := h.stateMachine.Reactivate(existing.ID, "source:"+instance.Name); err != nil {
				log.Printf("AlertHandler: failed to reactivate alert %s: %v", existing.UUID, err)
				api.RespondError(w, http.StatusInternalServerError, "Failed to process alert")
				return
			}
			log.Printf("AlertHandler: alert %s re-triggered after acknowledgment", existing.UUID)
			api.RespondJSON(w, http.StatusOK, map[string]string{"status": "reactivated", "uuid": existing.UUID})
			return
		}
		// Already active, nothing new to schedule.
		api.RespondJSON(w, http.StatusOK, map[string]string{"status": "duplicate", "uuid": existing.UUID})
		return
	}

	alert := &database.Alert{
		UnitID:    payload.UnitID,
		AlertType: payload.AlertType,
		Severity:  database.AlertSeverity(payload.Severity),
		Message:   payload.Message,
	}
	if err := h.alerts.Create(alert); err != nil {
		log.Printf("AlertHandler: failed to create alert: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to create alert")
		return
	}
	log.Printf("AlertHandler: alert %s opened (%s/%s on unit %d, via %s)",
		alert.UUID, alert.AlertType, alert.Severity, alert.UnitID, instance.Name)

	if err := h.scheduler.OnAlertCreated(alert); err != nil {
		log.Printf("AlertHandler: failed to schedule alert %s: %v", alert.UUID, err)
	}
	h.mirrorOpened(alert)

	api.RespondJSON(w, http.StatusCreated, map[string]string{"status": "created", "uuid": alert.UUID})
}

// handleResolved auto-closes the matching open alert when the source
// reports the condition cleared.
func (h *AlertHandler) handleResolved(w http.ResponseWriter, instance *database.AlertSourceInstance, payload WebhookAlert) {
	existing, err := h.alerts.FindOpen(payload.UnitID, payload.AlertType)
	if err != nil {
		log.Printf("AlertHandler: failed to check for open alert: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to process alert")
		return
	}
	if existing == nil {
		api.RespondJSON(w, http.StatusOK, map[string]string{"status": "no_open_alert"})
		return
	}

	resolution := payload.Message
	if resolution == "" {
		resolution = "condition cleared at source"
	}
	if _, err := h.stateMachine.Resolve(existing.ID, "source:"+instance.Name, resolution); err != nil {
		log.Printf("AlertHandler: failed to resolve alert %s: %v", existing.UUID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to resolve alert")
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]string{"status": "resolved", "uuid": existing.UUID})
}

func (h *AlertHandler) mirrorOpened(alert *database.Alert) {
	if h.notifier == nil {
		return
	}
	unitName, siteName := "", ""
	if unit, err := h.contacts.GetUnit(alert.UnitID); err == nil {
		unitName = unit.Name
		var site database.Site
		if err := database.GetDB().First(&site, unit.SiteID).Error; err == nil {
			siteName = site.Name
		}
	}
	go h.notifier.AlertOpened(alert, unitName, siteName)
}
