// Package policy resolves the effective notification policy for a unit and
// alert type by walking the unit → site → organization scope chain.
package policy

import (
	"fmt"
	"log"
	"sync"

	"github.com/getdatasurge/escalation-engine/internal/database"
)

// EffectivePolicy is the single resolved policy used at runtime. It is a
// complete value: every field is populated whether the winning row came
// from a stored policy or from the defaults.
type EffectivePolicy struct {
	AlertType string

	InitialChannels           database.ChannelList
	RequiresAck               bool
	AckDeadlineMinutes        *int
	EscalationSteps           database.EscalationSteps
	SendResolvedNotifications bool
	RemindersEnabled          bool
	ReminderIntervalMinutes   *int
	QuietHours                database.QuietHours
	Timezone                  string // organization-local IANA zone for quiet hours
	SeverityThreshold         database.AlertSeverity
	AllowWarningNotifications bool
	NotifyRoles               database.StringList
	NotifySiteManagers        bool
	NotifyAssignedUsers       bool

	// Observability: which scopes had a row for this lookup.
	SourceUnit bool
	SourceSite bool
	SourceOrg  bool
}

// Resolver computes effective policies with first-hit-wins scope
// precedence. Safe for concurrent use; results are cached per
// (unit, alertType) until invalidated by a policy write.
type Resolver struct {
	store *database.PolicyStore
	orgs  OrgLookup

	mu    sync.RWMutex
	cache map[cacheKey]*EffectivePolicy
}

// OrgLookup loads the organization owning a unit, for the quiet-hours
// timezone.
type OrgLookup interface {
	OrganizationForUnit(unitID uint) (*database.Organization, error)
}

type cacheKey struct {
	unitID    uint
	alertType string
}

// NewResolver creates a new Resolver
func NewResolver(store *database.PolicyStore, orgs OrgLookup) *Resolver {
	return &Resolver{
		store: store,
		orgs:  orgs,
		cache: make(map[cacheKey]*EffectivePolicy),
	}
}

// Resolve returns the effective policy for (unitID, alertType).
//
// Row selection is hierarchical: the first existing row in unit → site →
// org order wins wholesale. There is no sub-field merging across rows; a
// scope row's entire field set is authoritative once selected. When no row
// exists at any scope the documented defaults apply. Missing rows are a
// valid input, never an error.
func (r *Resolver) Resolve(unitID uint, alertType string) (*EffectivePolicy, error) {
	key := cacheKey{unitID: unitID, alertType: alertType}

	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	rows, err := r.store.RowsForUnit(unitID, alertType)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy rows: %w", err)
	}

	effective := fromRows(rows, alertType)

	effective.Timezone = "UTC"
	cacheable := true
	if r.orgs != nil {
		org, err := r.orgs.OrganizationForUnit(unitID)
		if err != nil {
			// Fall back to UTC for this resolution only. Caching the
			// fallback would pin the wrong timezone until the next
			// policy write.
			cacheable = false
			log.Printf("Resolver: could not load organization for unit %d, quiet hours fall back to UTC: %v", unitID, err)
		} else if org.Timezone != "" {
			effective.Timezone = org.Timezone
		}
	}

	if cacheable {
		r.mu.Lock()
		r.cache[key] = effective
		r.mu.Unlock()
	}

	return effective, nil
}

// Invalidate drops all cached resolutions. Called by policy writes; a
// policy row can influence every unit beneath its scope, so the whole
// cache goes rather than tracking scope fan-out.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[cacheKey]*EffectivePolicy)
	r.mu.Unlock()
}

// CacheSize reports the number of cached resolutions.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// fromRows selects the winning row and converts it to an effective policy.
func fromRows(rows *database.ScopeRows, alertType string) *EffectivePolicy {
	effective := &EffectivePolicy{
		AlertType:  alertType,
		SourceUnit: rows.Unit != nil,
		SourceSite: rows.Site != nil,
		SourceOrg:  rows.Org != nil,
	}

	winner := rows.Unit
	if winner == nil {
		winner = rows.Site
	}
	if winner == nil {
		winner = rows.Org
	}
	if winner == nil {
		applyDefaults(effective)
		return effective
	}

	effective.InitialChannels = winner.InitialChannels
	effective.RequiresAck = winner.RequiresAck
	effective.AckDeadlineMinutes = winner.AckDeadlineMinutes
	effective.EscalationSteps = winner.EscalationSteps
	effective.SendResolvedNotifications = winner.SendResolvedNotifications
	effective.RemindersEnabled = winner.RemindersEnabled
	effective.ReminderIntervalMinutes = winner.ReminderIntervalMinutes
	effective.QuietHours = winner.QuietHours
	effective.SeverityThreshold = winner.SeverityThreshold
	effective.AllowWarningNotifications = winner.AllowWarningNotifications
	effective.NotifyRoles = winner.NotifyRoles
	effective.NotifySiteManagers = winner.NotifySiteManagers
	effective.NotifyAssignedUsers = winner.NotifyAssignedUsers

	if effective.SeverityThreshold == "" {
		effective.SeverityThreshold = database.AlertSeverityInfo
	}
	return effective
}
