package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/getdatasurge/escalation-engine/internal/api"
	"github.com/getdatasurge/escalation-engine/internal/database"
)

// Fleet structure endpoints. Organizations, sites and units are usually
// provisioned by an upstream fleet system; these exist so the engine is
// usable standalone.

func (h *APIHandler) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	var orgs []database.Organization
	if err := database.GetDB().Order("name ASC").Find(&orgs).Error; err != nil {
		log.Printf("APIHandler: failed to list organizations: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list organizations")
		return
	}
	api.RespondJSON(w, http.StatusOK, orgs)
}

func (h *APIHandler) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name" validate:"required,max=255"`
		Timezone string `json:"timezone" validate:"omitempty,max=64"`
	}
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	org := database.Organization{Name: req.Name, Timezone: req.Timezone}
	if org.Timezone == "" {
		org.Timezone = "UTC"
	}
	if err := database.GetDB().Create(&org).Error; err != nil {
		log.Printf("APIHandler: failed to create organization: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to create organization")
		return
	}
	api.RespondJSON(w, http.StatusCreated, org)
}

func (h *APIHandler) handleListSites(w http.ResponseWriter, r *http.Request) {
	query := database.GetDB().Order("name ASC")
	if v := r.URL.Query().Get("organization_id"); v != "" {
		orgID, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			api.RespondError(w, http.StatusBadRequest, "Invalid organization_id")
			return
		}
		query = query.Where("organization_id = ?", uint(orgID))
	}

	var sites []database.Site
	if err := query.Find(&sites).Error; err != nil {
		log.Printf("APIHandler: failed to list sites: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list sites")
		return
	}
	api.RespondJSON(w, http.StatusOK, sites)
}

func (h *APIHandler) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrganizationID uint   `json:"organization_id" validate:"required"`
		Name           string `json:"name" validate:"required,max=255"`
	}
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	site := database.Site{OrganizationID: req.OrganizationID, Name: req.Name}
	if err := database.GetDB().Create(&site).Error; err != nil {
		log.Printf("APIHandler: failed to create site: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to create site")
		return
	}
	api.RespondJSON(w, http.StatusCreated, site)
}

func (h *APIHandler) handleListUnits(w http.ResponseWriter, r *http.Request) {
	query := database.GetDB().Order("name ASC")
	if v := r.URL.Query().Get("site_id"); v != "" {
		siteID, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			api.RespondError(w, http.StatusBadRequest, "Invalid site_id")
			return
		}
		query = query.Where("site_id = ?", uint(siteID))
	}

	var units []database.Unit
	if err := query.Find(&units).Error; err != nil {
		log.Printf("APIHandler: failed to list units: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list units")
		return
	}
	api.RespondJSON(w, http.StatusOK, units)
}

func (h *APIHandler) handleCreateUnit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SiteID uint   `json:"site_id" validate:"required"`
		Name   string `json:"name" validate:"required,max=255"`
	}
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	db := database.GetDB()
	var site database.Site
	if err := db.First(&site, req.SiteID).Error; err != nil {
		api.RespondError(w, http.StatusBadRequest, "Site not found")
		return
	}

	unit := database.Unit{
		SiteID:         site.ID,
		OrganizationID: site.OrganizationID,
		Name:           req.Name,
	}
	if err := db.Create(&unit).Error; err != nil {
		log.Printf("APIHandler: failed to create unit: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to create unit")
		return
	}
	api.RespondJSON(w, http.StatusCreated, unit)
}
