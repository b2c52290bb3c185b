package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/getdatasurge/escalation-engine/internal/alerts"
	"github.com/getdatasurge/escalation-engine/internal/api"
	"github.com/getdatasurge/escalation-engine/internal/database"
	"github.com/getdatasurge/escalation-engine/internal/policy"
	slackutil "github.com/getdatasurge/escalation-engine/internal/slack"
)

// APIHandler handles API endpoints for the dashboard
type APIHandler struct {
	policies     *database.PolicyStore
	contacts     *database.ContactStore
	alerts       *database.AlertStore
	deliveries   *database.DeliveryStore
	sources      *database.SourceStore
	resolver     *policy.Resolver
	stateMachine *alerts.StateMachine
	notifier     *slackutil.Notifier
	eventHub     *EventHub
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(db *gorm.DB, resolver *policy.Resolver, sm *alerts.StateMachine, notifier *slackutil.Notifier, eventHub *EventHub) *APIHandler {
	return &APIHandler{
		policies:     database.NewPolicyStore(db),
		contacts:     database.NewContactStore(db),
		alerts:       database.NewAlertStore(db),
		deliveries:   database.NewDeliveryStore(db),
		sources:      database.NewSourceStore(db),
		resolver:     resolver,
		stateMachine: sm,
		notifier:     notifier,
		eventHub:     eventHub,
	}
}

// SetupRoutes sets up all API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	// Notification policies
	mux.HandleFunc("GET /api/policies", h.handleListPolicies)
	mux.HandleFunc("POST /api/policies", h.handleCreatePolicy)
	mux.HandleFunc("GET /api/policies/{id}", h.handleGetPolicy)
	mux.HandleFunc("PUT /api/policies/{id}", h.handleUpdatePolicy)
	mux.HandleFunc("DELETE /api/policies/{id}", h.handleDeletePolicy)

	// Effective-policy preview
	mux.HandleFunc("GET /api/units/{id}/effective-policy", h.handleEffectivePolicy)

	// Escalation contacts
	mux.HandleFunc("GET /api/contacts", h.handleListContacts)
	mux.HandleFunc("POST /api/contacts", h.handleCreateContact)
	mux.HandleFunc("PUT /api/contacts/{id}", h.handleUpdateContact)
	mux.HandleFunc("DELETE /api/contacts/{id}", h.handleDeleteContact)

	// Alerts
	mux.HandleFunc("GET /api/alerts", h.handleListAlerts)
	mux.HandleFunc("GET /api/alerts/{uuid}", h.handleGetAlert)
	mux.HandleFunc("POST /api/alerts/{uuid}/acknowledge", h.handleAcknowledgeAlert)
	mux.HandleFunc("POST /api/alerts/{uuid}/resolve", h.handleResolveAlert)
	mux.HandleFunc("POST /api/alerts/{uuid}/silence", h.handleSilenceAlert)
	mux.HandleFunc("GET /api/alerts/{uuid}/deliveries", h.handleListDeliveries)

	// Alert source instances
	mux.HandleFunc("GET /api/alert-sources", h.handleListSources)
	mux.HandleFunc("POST /api/alert-sources", h.handleCreateSource)
	mux.HandleFunc("PUT /api/alert-sources/{id}", h.handleUpdateSource)
	mux.HandleFunc("DELETE /api/alert-sources/{id}", h.handleDeleteSource)

	// Settings
	mux.HandleFunc("GET /api/settings/engine", h.handleGetEngineSettings)
	mux.HandleFunc("PUT /api/settings/engine", h.handleUpdateEngineSettings)
	mux.HandleFunc("GET /api/settings/slack", h.handleGetSlackSettings)
	mux.HandleFunc("PUT /api/settings/slack", h.handleUpdateSlackSettings)

	// Fleet structure
	mux.HandleFunc("GET /api/organizations", h.handleListOrganizations)
	mux.HandleFunc("POST /api/organizations", h.handleCreateOrganization)
	mux.HandleFunc("GET /api/sites", h.handleListSites)
	mux.HandleFunc("POST /api/sites", h.handleCreateSite)
	mux.HandleFunc("GET /api/units", h.handleListUnits)
	mux.HandleFunc("POST /api/units", h.handleCreateUnit)

	// Live event stream
	if h.eventHub != nil {
		mux.HandleFunc("GET /api/events/ws", h.eventHub.HandleWS)
	}
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	return uint(id), err
}

// ========== Notification policies ==========

func (h *APIHandler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.policies.List()
	if err != nil {
		log.Printf("APIHandler: failed to list policies: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list policies")
		return
	}
	api.RespondJSON(w, http.StatusOK, policies)
}

// PolicyRequest is the create/update body for a notification policy.
// Exactly one of organization_id, site_id, unit_id must be set.
type PolicyRequest struct {
	OrganizationID *uint  `json:"organization_id"`
	SiteID         *uint  `json:"site_id"`
	UnitID         *uint  `json:"unit_id"`
	AlertType      string `json:"alert_type" validate:"required,max=64"`

	InitialChannels           database.ChannelList      `json:"initial_channels" validate:"required,min=1"`
	RequiresAck               bool                      `json:"requires_ack"`
	AckDeadlineMinutes        *int                      `json:"ack_deadline_minutes" validate:"omitempty,min=1"`
	EscalationSteps           database.EscalationSteps  `json:"escalation_steps"`
	SendResolvedNotifications bool                      `json:"send_resolved_notifications"`
	RemindersEnabled          bool                      `json:"reminders_enabled"`
	ReminderIntervalMinutes   *int                      `json:"reminder_interval_minutes" validate:"omitempty,min=1"`
	QuietHours                database.QuietHours       `json:"quiet_hours"`
	SeverityThreshold         database.AlertSeverity    `json:"severity_threshold" validate:"omitempty,oneof=info warning critical"`
	AllowWarningNotifications *bool                     `json:"allow_warning_notifications"`
	NotifyRoles               database.StringList       `json:"notify_roles"`
	NotifySiteManagers        bool                      `json:"notify_site_managers"`
	NotifyAssignedUsers       bool                      `json:"notify_assigned_users"`
}

func (r *PolicyRequest) apply(p *database.NotificationPolicy) {
	p.OrganizationID = r.OrganizationID
	p.SiteID = r.SiteID
	p.UnitID = r.UnitID
	p.AlertType = r.AlertType
	p.InitialChannels = r.InitialChannels
	p.RequiresAck = r.RequiresAck
	p.AckDeadlineMinutes = r.AckDeadlineMinutes
	p.EscalationSteps = r.EscalationSteps
	p.SendResolvedNotifications = r.SendResolvedNotifications
	p.RemindersEnabled = r.RemindersEnabled
	p.ReminderIntervalMinutes = r.ReminderIntervalMinutes
	p.QuietHours = r.QuietHours
	p.SeverityThreshold = database.AlertSeverityInfo
	if r.SeverityThreshold != "" {
		p.SeverityThreshold = r.SeverityThreshold
	}
	p.AllowWarningNotifications = true
	if r.AllowWarningNotifications != nil {
		p.AllowWarningNotifications = *r.AllowWarningNotifications
	}
	p.NotifyRoles = r.NotifyRoles
	p.NotifySiteManagers = r.NotifySiteManagers
	p.NotifyAssignedUsers = r.NotifyAssignedUsers
}

func (h *APIHandler) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	var pol database.NotificationPolicy
	req.apply(&pol)
	if err := h.policies.Create(&pol); err != nil {
		h.respondPolicyError(w, err)
		return
	}
	h.resolver.Invalidate()
	api.RespondJSON(w, http.StatusCreated, pol)
}

func (h *APIHandler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid policy ID")
		return
	}
	pol, err := h.policies.Get(id)
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Policy not found")
		return
	}
	api.RespondJSON(w, http.StatusOK, pol)
}

func (h *APIHandler) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid policy ID")
		return
	}
	pol, err := h.policies.Get(id)
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Policy not found")
		return
	}

	var req PolicyRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	req.apply(pol)
	if err := h.policies.Update(pol); err != nil {
		h.respondPolicyError(w, err)
		return
	}
	h.resolver.Invalidate()
	api.RespondJSON(w, http.StatusOK, pol)
}

func (h *APIHandler) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid policy ID")
		return
	}
	if err := h.policies.Delete(id); err != nil {
		log.Printf("APIHandler: failed to delete policy %d: %v", id, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to delete policy")
		return
	}
	h.resolver.Invalidate()
	api.RespondNoContent(w)
}

func (h *APIHandler) respondPolicyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrPolicyScopeInvalid):
		api.RespondErrorWithCode(w, http.StatusBadRequest, api.CodePolicyScopeInvalid, err.Error())
	case errors.Is(err, database.ErrPolicyDuplicate):
		api.RespondErrorWithCode(w, http.StatusConflict, api.CodePolicyDuplicate, err.Error())
	default:
		log.Printf("APIHandler: policy write failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to save policy")
	}
}

func (h *APIHandler) handleEffectivePolicy(w http.ResponseWriter, r *http.Request) {
	unitID, err := pathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid unit ID")
		return
	}
	alertType := r.URL.Query().Get("alert_type")
	if alertType == "" {
		api.RespondError(w, http.StatusBadRequest, "alert_type query parameter is required")
		return
	}
	effective, err := h.resolver.Resolve(unitID, alertType)
	if err != nil {
		log.Printf("APIHandler: failed to resolve policy for unit %d: %v", unitID, err)
		api.RespondError(w, http.StatusNotFound, "Unit not found")
		return
	}
	api.RespondJSON(w, http.StatusOK, effective)
}

// ========== Escalation contacts ==========

// ContactRequest is the create/update body for an escalation contact.
type ContactRequest struct {
	OrganizationID uint   `json:"organization_id" validate:"required"`
	SiteID         *uint  `json:"site_id"`
	Name           string `json:"name" validate:"required,max=255"`
	Priority       int    `json:"priority" validate:"min=1"`
	Phone          string `json:"phone" validate:"omitempty,max=64"`
	Email          string `json:"email" validate:"omitempty,email"`
	Active         *bool  `json:"active"`
}

func (h *APIHandler) handleListContacts(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseUint(r.URL.Query().Get("organization_id"), 10, 32)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "organization_id query parameter is required")
		return
	}
	contacts, err := h.contacts.ListForOrganization(uint(orgID))
	if err != nil {
		log.Printf("APIHandler: failed to list contacts: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list contacts")
		return
	}
	api.RespondJSON(w, http.StatusOK, contacts)
}

func (h *APIHandler) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}
	if req.Email == "" && req.Phone == "" {
		api.RespondError(w, http.StatusBadRequest, "Contact needs an email or a phone number")
		return
	}

	contact := &database.EscalationContact{
		OrganizationID: req.OrganizationID,
		SiteID:         req.SiteID,
		Name:           req.Name,
		Priority:       req.Priority,
		Phone:          req.Phone,
		Email:          req.Email,
		Active:         true,
	}
	if req.Active != nil {
		contact.Active = *req.Active
	}
	if err := h.contacts.Create(contact); err != nil {
		log.Printf("APIHandler: failed to create contact: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to create contact")
		return
	}
	api.RespondJSON(w, http.StatusCreated, contact)
}

func (h *APIHandler) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid contact ID")
		return
	}
	contact, err := h.contacts.Get(id)
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Contact not found")
		return
	}

	var req ContactRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	contact.OrganizationID = req.OrganizationID
	contact.SiteID = req.SiteID
	contact.Name = req.Name
	contact.Priority = req.Priority
	contact.Phone = req.Phone
	contact.Email = req.Email
	if req.Active != nil {
		contact.Active = *req.Active
	}
	if err := h.contacts.Update(contact); err != nil {
		log.Printf("APIHandler: failed to update contact %d: %v", id, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to update contact")
		return
	}
	api.RespondJSON(w, http.StatusOK, contact)
}

func (h *APIHandler) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid contact ID")
		return
	}
	if err := h.contacts.Delete(id); err != nil {
		log.Printf("APIHandler: failed to delete contact %d: %v", id, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to delete contact")
		return
	}
	api.RespondNoContent(w)
}
