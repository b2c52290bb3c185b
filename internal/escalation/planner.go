// Package escalation builds and executes per-alert notification timelines.
// The planner is a pure function from (alert, policy) to an ordered
// plan; the scheduler executes plans over time and reacts to alert
// transitions.
package escalation

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/getdatasurge/escalation-engine/internal/database"
	"github.com/getdatasurge/escalation-engine/internal/dispatch"
	"github.com/getdatasurge/escalation-engine/internal/policy"
)

// ActionKind identifies what a plan entry does when it fires.
type ActionKind string

const (
	ActionInitialNotify    ActionKind = "initial_notify"
	ActionEscalationFire   ActionKind = "escalation_fire"
	ActionReminder         ActionKind = "reminder"
	ActionAckDeadlineCheck ActionKind = "ack_deadline_check"
	ActionResolvedNotify   ActionKind = "resolved_notify"
)

// PlanEntry is one pending scheduled action for an alert.
type PlanEntry struct {
	Kind      ActionKind
	DueAt     time.Time
	StepIndex int // valid for ActionEscalationFire

	Channels        database.ChannelList
	ContactPriority *int

	// RepeatEvery re-enqueues the entry this long after it fires, until
	// the alert leaves an eligible state. Zero means fire once.
	RepeatEvery time.Duration
}

// ActionLabel returns the delivery-record label for this entry.
func (e PlanEntry) ActionLabel() string {
	if e.Kind == ActionEscalationFire {
		return fmt.Sprintf("escalation:%d", e.StepIndex)
	}
	switch e.Kind {
	case ActionInitialNotify:
		return "initial"
	case ActionReminder:
		return "reminder"
	case ActionResolvedNotify:
		return "resolved"
	default:
		return string(e.Kind)
	}
}

// Plan is the ordered set of pending actions for one alert, plus the
// deferred resolved-notification flag consumed on the resolve transition.
type Plan struct {
	AlertID uint
	Entries []PlanEntry

	// SendResolvedNotify marks that a ResolvedNotify should fire on the
	// resolve transition. It is event-triggered, not time-triggered, so
	// it is not an Entries member.
	SendResolvedNotify bool
	ResolvedChannels   database.ChannelList

	// Spec carries the policy's role fan-out, shared by every entry.
	// Per-step contact-priority filters live on the entries themselves.
	Spec dispatch.RecipientSpec

	// window re-applies quiet-hour deferral when a recurring entry is
	// re-enqueued after firing.
	window quietWindow
}

// Planner computes escalation plans. Stateless; safe for concurrent use.
type Planner struct {
	// CriticalBypassesQuietHours exempts the initial notification of
	// critical alerts from quiet-hour deferral. Default false: quiet
	// hours apply uniformly (the life-safety override is not confirmed
	// product behavior; the toggle records the ambiguity).
	CriticalBypassesQuietHours bool
}

// BuildPlan computes the timeline for one alert under its effective
// policy. Every due time derives from the alert's trigger time, so a
// rebuilt plan is identical to the original; pruning what already ran
// is the scheduler's job.
func (p *Planner) BuildPlan(alert *database.Alert, pol *policy.EffectivePolicy) *Plan {
	plan := &Plan{AlertID: alert.ID}

	// Severity gating: below-threshold alerts and suppressed warnings get
	// an empty plan, not a partial one.
	if !severityAdmitted(alert, pol) {
		return plan
	}

	window := newQuietWindow(pol.QuietHours, pol.Timezone)
	plan.window = window
	plan.Spec = dispatch.RecipientSpec{
		NotifyRoles:         []string(pol.NotifyRoles),
		NotifySiteManagers:  pol.NotifySiteManagers,
		NotifyAssignedUsers: pol.NotifyAssignedUsers,
	}

	// Initial notification, due immediately.
	initialDue := alert.TriggeredAt
	exempt := p.CriticalBypassesQuietHours && alert.Severity == database.AlertSeverityCritical
	if !exempt {
		initialDue = window.deferTime(initialDue)
	} else if window.contains(initialDue) {
		log.Printf("Planner: alert %s initial notification bypasses quiet hours (critical severity)", alert.UUID)
	}
	plan.Entries = append(plan.Entries, PlanEntry{
		Kind:     ActionInitialNotify,
		DueAt:    initialDue,
		Channels: pol.InitialChannels,
	})

	// Escalation steps.
	for i, step := range pol.EscalationSteps {
		due := alert.TriggeredAt.Add(time.Duration(step.DelayMinutes) * time.Minute)
		entry := PlanEntry{
			Kind:            ActionEscalationFire,
			DueAt:           window.deferTime(due),
			StepIndex:       i,
			Channels:        step.Channels,
			ContactPriority: step.ContactPriority,
		}
		if step.Repeat && step.DelayMinutes > 0 {
			entry.RepeatEvery = time.Duration(step.DelayMinutes) * time.Minute
		}
		plan.Entries = append(plan.Entries, entry)
	}

	// Acknowledgment deadline. When it fires unacknowledged, the
	// scheduler accelerates the next pending escalation step.
	if pol.RequiresAck && pol.AckDeadlineMinutes != nil && *pol.AckDeadlineMinutes > 0 {
		due := alert.TriggeredAt.Add(time.Duration(*pol.AckDeadlineMinutes) * time.Minute)
		plan.Entries = append(plan.Entries, PlanEntry{
			Kind:  ActionAckDeadlineCheck,
			DueAt: due, // deadline checks are not deferred; only their notifications are
		})
	}

	// Reminders, repeating until resolved.
	if pol.RemindersEnabled && pol.ReminderIntervalMinutes != nil && *pol.ReminderIntervalMinutes > 0 {
		interval := time.Duration(*pol.ReminderIntervalMinutes) * time.Minute
		due := alert.TriggeredAt.Add(interval)
		plan.Entries = append(plan.Entries, PlanEntry{
			Kind:        ActionReminder,
			DueAt:       window.deferTime(due),
			Channels:    pol.InitialChannels,
			RepeatEvery: interval,
		})
	}

	if pol.SendResolvedNotifications {
		plan.SendResolvedNotify = true
		plan.ResolvedChannels = pol.InitialChannels
	}

	sortEntries(plan.Entries)
	return plan
}

// severityAdmitted applies the policy's severity gates. An alert that
// fails them gets no notifications of any kind, the resolved notice
// included.
func severityAdmitted(alert *database.Alert, pol *policy.EffectivePolicy) bool {
	if database.SeverityRank(alert.Severity) < database.SeverityRank(pol.SeverityThreshold) {
		return false
	}
	if alert.Severity == database.AlertSeverityWarning && !pol.AllowWarningNotifications {
		return false
	}
	return true
}

// sortEntries orders entries by due time, with deterministic tie-breaking
// (initial before deadline checks before steps at the same instant).
func sortEntries(entries []PlanEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DueAt.Before(entries[j].DueAt)
	})
}
