package dispatch

import (
	"fmt"

	"github.com/getdatasurge/escalation-engine/internal/database"
)

// Recipient is one resolved notification target. A recipient may be
// reachable on either or both channels.
type Recipient struct {
	Name  string
	Email string
	Phone string
}

// RecipientSpec selects which recipients an action targets, derived from
// the effective policy (and, for escalation steps, the step's contact
// priority filter).
type RecipientSpec struct {
	// ContactPriority keeps only escalation contacts at or below this
	// rank. Nil keeps all.
	ContactPriority *int

	// Role fan-out from the policy.
	NotifyRoles         []string
	NotifySiteManagers  bool
	NotifyAssignedUsers bool
}

// ResolveRecipients resolves the eligible recipients for one action on one
// alert: active escalation contacts ordered by priority, plus any
// role-based users the spec requests. Recipients are deduplicated by
// contact identity (email, then phone) within the action.
func (d *Dispatcher) ResolveRecipients(alert *database.Alert, spec RecipientSpec) ([]Recipient, error) {
	unit, err := d.contacts.GetUnit(alert.UnitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unit %d: %w", alert.UnitID, err)
	}

	var recipients []Recipient
	seen := make(map[string]bool)

	add := func(name, email, phone string) {
		key := email
		if key == "" {
			key = phone
		}
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		recipients = append(recipients, Recipient{Name: name, Email: email, Phone: phone})
	}

	contacts, err := d.contacts.ActiveForUnit(unit)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	for _, c := range contacts {
		if spec.ContactPriority != nil && c.Priority > *spec.ContactPriority {
			continue
		}
		add(c.Name, c.Email, c.Phone)
	}

	if len(spec.NotifyRoles) > 0 {
		users, err := d.contacts.ActiveUsersWithRoles(unit.OrganizationID, spec.NotifyRoles)
		if err != nil {
			return nil, fmt.Errorf("failed to load role users: %w", err)
		}
		for _, u := range users {
			add(u.Name, u.Email, u.Phone)
		}
	}

	if spec.NotifySiteManagers {
		managers, err := d.contacts.ActiveSiteManagers(unit.SiteID)
		if err != nil {
			return nil, fmt.Errorf("failed to load site managers: %w", err)
		}
		for _, u := range managers {
			add(u.Name, u.Email, u.Phone)
		}
	}

	if spec.NotifyAssignedUsers {
		assigned, err := d.contacts.ActiveAssignedUsers(unit.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load assigned users: %w", err)
		}
		for _, u := range assigned {
			add(u.Name, u.Email, u.Phone)
		}
	}

	return recipients, nil
}
