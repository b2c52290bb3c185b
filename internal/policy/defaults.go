package policy

import (
	"github.com/getdatasurge/escalation-engine/internal/database"
)

// Default policy applied when no row exists at any scope:
//
//   - initial notification by email only
//   - no acknowledgment requirement, no escalation steps, no reminders
//   - resolved notifications off, quiet hours off
//   - warning-severity notifications allowed, threshold info
//   - no role fan-out; escalation contacts only
//
// Conservative on purpose: a tenant that has configured nothing gets a
// single email and no paging.
func applyDefaults(effective *EffectivePolicy) {
	effective.InitialChannels = database.ChannelList{database.ChannelEmail}
	effective.RequiresAck = false
	effective.AckDeadlineMinutes = nil
	effective.EscalationSteps = nil
	effective.SendResolvedNotifications = false
	effective.RemindersEnabled = false
	effective.ReminderIntervalMinutes = nil
	effective.QuietHours = database.QuietHours{Enabled: false}
	effective.SeverityThreshold = database.AlertSeverityInfo
	effective.AllowWarningNotifications = true
	effective.NotifyRoles = nil
	effective.NotifySiteManagers = false
	effective.NotifyAssignedUsers = false
}
