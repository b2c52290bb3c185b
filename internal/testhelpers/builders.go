package testhelpers

import (
	"time"

	"github.com/getdatasurge/escalation-engine/internal/database"
)

// ========================================
// Policy Builder
// ========================================

// PolicyBuilder builds NotificationPolicy instances for testing
type PolicyBuilder struct {
	policy database.NotificationPolicy
}

// NewPolicyBuilder creates a new policy builder with defaults: email-only
// initial notification for alert type "temp_high" at org scope 0 (unset).
func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{
		policy: database.NotificationPolicy{
			AlertType:                 "temp_high",
			InitialChannels:           database.ChannelList{database.ChannelEmail},
			SeverityThreshold:         database.AlertSeverityInfo,
			AllowWarningNotifications: true,
		},
	}
}

// ForOrganization scopes the policy to an organization
func (b *PolicyBuilder) ForOrganization(id uint) *PolicyBuilder {
	b.policy.OrganizationID = &id
	b.policy.SiteID = nil
	b.policy.UnitID = nil
	return b
}

// ForSite scopes the policy to a site
func (b *PolicyBuilder) ForSite(id uint) *PolicyBuilder {
	b.policy.OrganizationID = nil
	b.policy.SiteID = &id
	b.policy.UnitID = nil
	return b
}

// ForUnit scopes the policy to a unit
func (b *PolicyBuilder) ForUnit(id uint) *PolicyBuilder {
	b.policy.OrganizationID = nil
	b.policy.SiteID = nil
	b.policy.UnitID = &id
	return b
}

// WithAlertType sets the alert type
func (b *PolicyBuilder) WithAlertType(alertType string) *PolicyBuilder {
	b.policy.AlertType = alertType
	return b
}

// WithChannels sets the initial notification channels
func (b *PolicyBuilder) WithChannels(channels ...database.Channel) *PolicyBuilder {
	b.policy.InitialChannels = channels
	return b
}

// WithAckDeadline requires acknowledgment within the given minutes
func (b *PolicyBuilder) WithAckDeadline(minutes int) *PolicyBuilder {
	b.policy.RequiresAck = true
	b.policy.AckDeadlineMinutes = &minutes
	return b
}

// WithStep appends an escalation step
func (b *PolicyBuilder) WithStep(step database.EscalationStep) *PolicyBuilder {
	b.policy.EscalationSteps = append(b.policy.EscalationSteps, step)
	return b
}

// WithReminders enables reminders at the given interval
func (b *PolicyBuilder) WithReminders(intervalMinutes int) *PolicyBuilder {
	b.policy.RemindersEnabled = true
	b.policy.ReminderIntervalMinutes = &intervalMinutes
	return b
}

// WithQuietHours sets the quiet-hours window
func (b *PolicyBuilder) WithQuietHours(start, end string) *PolicyBuilder {
	b.policy.QuietHours = database.QuietHours{Enabled: true, StartLocal: start, EndLocal: end}
	return b
}

// WithSeverityThreshold sets the minimum severity
func (b *PolicyBuilder) WithSeverityThreshold(s database.AlertSeverity) *PolicyBuilder {
	b.policy.SeverityThreshold = s
	return b
}

// SuppressWarnings disables warning-severity notifications
func (b *PolicyBuilder) SuppressWarnings() *PolicyBuilder {
	b.policy.AllowWarningNotifications = false
	return b
}

// WithResolvedNotifications enables the closing notification
func (b *PolicyBuilder) WithResolvedNotifications() *PolicyBuilder {
	b.policy.SendResolvedNotifications = true
	return b
}

// WithRoles sets the role fan-out
func (b *PolicyBuilder) WithRoles(roles ...string) *PolicyBuilder {
	b.policy.NotifyRoles = roles
	return b
}

// Build returns the constructed policy
func (b *PolicyBuilder) Build() database.NotificationPolicy {
	return b.policy
}

// ========================================
// Alert Builder
// ========================================

// AlertBuilder builds Alert instances for testing
type AlertBuilder struct {
	alert database.Alert
}

// NewAlertBuilder creates a new alert builder with defaults
func NewAlertBuilder(unitID uint) *AlertBuilder {
	return &AlertBuilder{
		alert: database.Alert{
			UnitID:    unitID,
			AlertType: "temp_high",
			Severity:  database.AlertSeverityCritical,
			Status:    database.AlertStatusActive,
			Message:   "temperature above threshold",
		},
	}
}

// WithType sets the alert type
func (b *AlertBuilder) WithType(alertType string) *AlertBuilder {
	b.alert.AlertType = alertType
	return b
}

// WithSeverity sets the severity
func (b *AlertBuilder) WithSeverity(s database.AlertSeverity) *AlertBuilder {
	b.alert.Severity = s
	return b
}

// TriggeredAt sets the trigger time
func (b *AlertBuilder) TriggeredAt(t time.Time) *AlertBuilder {
	b.alert.TriggeredAt = t
	return b
}

// Build returns the constructed alert
func (b *AlertBuilder) Build() database.Alert {
	return b.alert
}

// ========================================
// Contact Builder
// ========================================

// ContactBuilder builds EscalationContact instances for testing
type ContactBuilder struct {
	contact database.EscalationContact
}

// NewContactBuilder creates a new contact builder with defaults
func NewContactBuilder(orgID uint) *ContactBuilder {
	return &ContactBuilder{
		contact: database.EscalationContact{
			OrganizationID: orgID,
			Name:           "Test Contact",
			Priority:       1,
			Email:          "contact@example.com",
			Phone:          "+15550100",
			Active:         true,
		},
	}
}

// WithName sets the contact name
func (b *ContactBuilder) WithName(name string) *ContactBuilder {
	b.contact.Name = name
	return b
}

// WithPriority sets the escalation priority rank
func (b *ContactBuilder) WithPriority(p int) *ContactBuilder {
	b.contact.Priority = p
	return b
}

// WithEmail sets the email address
func (b *ContactBuilder) WithEmail(email string) *ContactBuilder {
	b.contact.Email = email
	return b
}

// WithPhone sets the phone number
func (b *ContactBuilder) WithPhone(phone string) *ContactBuilder {
	b.contact.Phone = phone
	return b
}

// ForSite narrows the contact to one site
func (b *ContactBuilder) ForSite(siteID uint) *ContactBuilder {
	b.contact.SiteID = &siteID
	return b
}

// Inactive marks the contact inactive
func (b *ContactBuilder) Inactive() *ContactBuilder {
	b.contact.Active = false
	return b
}

// Build returns the constructed contact
func (b *ContactBuilder) Build() database.EscalationContact {
	return b.contact
}
