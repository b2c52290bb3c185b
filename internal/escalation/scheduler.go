package escalation

import (
	"context"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/getdatasurge/escalation-engine/internal/alerts"
	"github.com/getdatasurge/escalation-engine/internal/clock"
	"github.com/getdatasurge/escalation-engine/internal/database"
	"github.com/getdatasurge/escalation-engine/internal/dispatch"
	"github.com/getdatasurge/escalation-engine/internal/policy"
)

// ActionDispatcher sends one scheduled action. Satisfied by
// dispatch.Dispatcher; tests substitute a recorder.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, alert *database.Alert, action string, channels database.ChannelList, spec dispatch.RecipientSpec) ([]database.NotificationDelivery, error)
}

// Scheduler executes escalation plans over time. It keeps at most one
// active plan per alert, each driven by its own goroutine; the persisted
// alert status is authoritative, so every fire re-checks it before
// sending. Dispatch always happens off the registry lock.
type Scheduler struct {
	db         *gorm.DB
	alerts     *database.AlertStore
	deliveries *database.DeliveryStore
	resolver   *policy.Resolver
	dispatcher ActionDispatcher
	clk        clock.Clock

	mu      sync.Mutex
	runners map[uint]*runner

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// runner is the scheduler's handle on one alert's in-flight plan.
type runner struct {
	alertID    uint
	cancel     chan struct{}
	cancelOnce sync.Once

	// ack strips pending deadline checks from the plan. Buffered so the
	// state machine's listener callback never blocks; a dropped signal is
	// harmless because deadline checks also no-op on status re-check.
	ack chan struct{}
}

func (r *runner) stop() {
	r.cancelOnce.Do(func() { close(r.cancel) })
}

// NewScheduler creates a new Scheduler
func NewScheduler(db *gorm.DB, resolver *policy.Resolver, dispatcher ActionDispatcher, clk clock.Clock) *Scheduler {
	return &Scheduler{
		db:         db,
		alerts:     database.NewAlertStore(db),
		deliveries: database.NewDeliveryStore(db),
		resolver:   resolver,
		dispatcher: dispatcher,
		clk:        clk,
		runners:    make(map[uint]*runner),
		stopCh:     make(chan struct{}),
	}
}

// OnAlertCreated resolves the alert's effective policy, builds its plan
// and starts executing it.
func (s *Scheduler) OnAlertCreated(alert *database.Alert) error {
	plan, err := s.buildPlan(alert)
	if err != nil {
		return err
	}
	s.Schedule(alert, plan)
	return nil
}

// Schedule starts executing a plan, replacing any plan already running
// for the same alert.
func (s *Scheduler) Schedule(alert *database.Alert, plan *Plan) {
	if len(plan.Entries) == 0 {
		log.Printf("Scheduler: alert %s has an empty plan, nothing to schedule", alert.UUID)
		return
	}

	r := &runner{
		alertID: alert.ID,
		cancel:  make(chan struct{}),
		ack:     make(chan struct{}, 1),
	}

	s.mu.Lock()
	if old, ok := s.runners[alert.ID]; ok {
		old.stop()
	}
	s.runners[alert.ID] = r
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(r, plan)
}

// Stop cancels all runners and waits for them to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// HandleTransition reacts to alert status changes. Registered with the
// state machine, so it runs on the transitioning caller's goroutine:
// anything that can block goes to a new goroutine.
func (s *Scheduler) HandleTransition(event alerts.TransitionEvent) {
	switch event.To {
	case database.AlertStatusAcknowledged:
		s.mu.Lock()
		r := s.runners[event.AlertID]
		s.mu.Unlock()
		if r != nil {
			select {
			case r.ack <- struct{}{}:
			default:
			}
		}
	case database.AlertStatusResolved:
		s.stopRunner(event.AlertID)
		go s.sendResolvedNotice(event.AlertID)
	case database.AlertStatusSilenced:
		s.stopRunner(event.AlertID)
	case database.AlertStatusActive:
		// Re-violation of an acknowledged alert restarts escalation from
		// the persisted record, same path as crash recovery.
		if event.From == database.AlertStatusAcknowledged {
			go func() {
				if err := s.replanAlert(event.AlertID); err != nil {
					log.Printf("Scheduler: failed to replan alert %d after re-violation: %v", event.AlertID, err)
				}
			}()
		}
	}
}

// RecoverPending re-derives plans for every open alert that has no
// runner. Called once at startup and periodically afterwards, so a crash
// or a missed event never silently drops an escalation.
func (s *Scheduler) RecoverPending() error {
	open, err := s.alerts.ListOpen()
	if err != nil {
		return err
	}
	recovered := 0
	for i := range open {
		alert := &open[i]
		s.mu.Lock()
		_, running := s.runners[alert.ID]
		s.mu.Unlock()
		if running {
			continue
		}
		if err := s.replanAlert(alert.ID); err != nil {
			log.Printf("Scheduler: failed to recover alert %s: %v", alert.UUID, err)
			continue
		}
		recovered++
	}
	if recovered > 0 {
		log.Printf("Scheduler: recovered %d pending escalation(s)", recovered)
	}
	return nil
}

// Start runs the recovery sweep loop until stop is closed. The first
// sweep happens immediately.
func (s *Scheduler) Start(stop <-chan struct{}) {
	log.Println("Starting escalation recovery sweep...")
	if err := s.RecoverPending(); err != nil {
		log.Printf("Scheduler: recovery sweep failed: %v", err)
	}
	for {
		interval := 5 * time.Minute
		if settings, err := database.GetEngineSettings(s.db); err == nil && settings.RecoverySweepMinutes > 0 {
			interval = time.Duration(settings.RecoverySweepMinutes) * time.Minute
		}
		select {
		case <-stop:
			log.Println("Stopping escalation recovery sweep...")
			return
		case <-s.stopCh:
			return
		case <-s.clk.After(interval):
			if err := s.RecoverPending(); err != nil {
				log.Printf("Scheduler: recovery sweep failed: %v", err)
			}
		}
	}
}

// ========== Plan execution ==========

func (s *Scheduler) run(r *runner, plan *Plan) {
	defer s.wg.Done()
	defer s.removeRunner(r)

	entries := append([]PlanEntry(nil), plan.Entries...)
	for len(entries) > 0 {
		sortEntries(entries)
		next := entries[0]

		if wait := next.DueAt.Sub(s.clk.Now()); wait > 0 {
			select {
			case <-s.clk.After(wait):
			case <-r.ack:
				entries = dropDeadlineChecks(entries)
				continue
			case <-r.cancel:
				return
			case <-s.stopCh:
				return
			}
		}

		// Cancellation can race the timer; check it once more before
		// firing.
		select {
		case <-r.cancel:
			return
		case <-s.stopCh:
			return
		default:
		}

		entries = entries[1:]
		entries = s.fire(plan, next, entries)
	}
}

// fire executes one due entry and returns the remaining entries, which
// it may extend (recurrence) or shrink (deadline acceleration).
func (s *Scheduler) fire(plan *Plan, entry PlanEntry, entries []PlanEntry) []PlanEntry {
	alert, err := s.alerts.Get(plan.AlertID)
	if err != nil {
		log.Printf("Scheduler: failed to load alert %d, dropping %s: %v", plan.AlertID, entry.ActionLabel(), err)
		return entries
	}
	if alert.Status.IsTerminal() {
		log.Printf("Scheduler: alert %s is %s, skipping %s", alert.UUID, alert.Status, entry.ActionLabel())
		return entries
	}

	if entry.Kind == ActionAckDeadlineCheck {
		return s.accelerate(plan, alert, entries)
	}

	s.dispatchEntry(alert, plan, entry)

	if entry.RepeatEvery > 0 && s.repeatEligible(entry, alert.Status) {
		next := entry
		next.DueAt = plan.window.deferTime(entry.DueAt.Add(entry.RepeatEvery))
		entries = append(entries, next)
	}
	return entries
}

// accelerate handles an expired acknowledgment deadline: if the alert is
// still unacknowledged, the next pending escalation step fires now
// instead of at its own delay.
func (s *Scheduler) accelerate(plan *Plan, alert *database.Alert, entries []PlanEntry) []PlanEntry {
	if alert.Status != database.AlertStatusActive {
		return entries
	}

	idx := -1
	for i, e := range entries {
		if e.Kind == ActionEscalationFire {
			if idx == -1 || e.DueAt.Before(entries[idx].DueAt) {
				idx = i
			}
		}
	}
	if idx == -1 {
		log.Printf("Scheduler: alert %s ack deadline passed with no pending escalation step", alert.UUID)
		return entries
	}

	step := entries[idx]
	entries = append(entries[:idx], entries[idx+1:]...)
	log.Printf("Scheduler: alert %s unacknowledged past deadline, accelerating step %d", alert.UUID, step.StepIndex)
	s.dispatchEntry(alert, plan, step)
	if step.RepeatEvery > 0 {
		step.DueAt = plan.window.deferTime(s.clk.Now().Add(step.RepeatEvery))
		entries = append(entries, step)
	}
	return entries
}

// repeatEligible reports whether a recurring entry should be re-enqueued
// given the alert's status after this fire. Reminders run until the
// alert closes; repeating escalation steps stop once someone
// acknowledges.
func (s *Scheduler) repeatEligible(entry PlanEntry, status database.AlertStatus) bool {
	switch entry.Kind {
	case ActionReminder:
		return status == database.AlertStatusActive || status == database.AlertStatusAcknowledged
	default:
		return status == database.AlertStatusActive
	}
}

func (s *Scheduler) dispatchEntry(alert *database.Alert, plan *Plan, entry PlanEntry) {
	spec := plan.Spec
	spec.ContactPriority = entry.ContactPriority
	if _, err := s.dispatcher.Dispatch(context.Background(), alert, entry.ActionLabel(), entry.Channels, spec); err != nil {
		log.Printf("Scheduler: dispatch %s for alert %s failed: %v", entry.ActionLabel(), alert.UUID, err)
	}
}

func dropDeadlineChecks(entries []PlanEntry) []PlanEntry {
	kept := entries[:0]
	for _, e := range entries {
		if e.Kind != ActionAckDeadlineCheck {
			kept = append(kept, e)
		}
	}
	return kept
}

// ========== Replanning and recovery ==========

func (s *Scheduler) buildPlan(alert *database.Alert) (*Plan, error) {
	pol, err := s.resolver.Resolve(alert.UnitID, alert.AlertType)
	if err != nil {
		return nil, err
	}
	planner := &Planner{}
	if settings, err := database.GetEngineSettings(s.db); err == nil {
		planner.CriticalBypassesQuietHours = settings.CriticalBypassesQuietHours
	}
	return planner.BuildPlan(alert, pol), nil
}

// replanAlert rebuilds the plan for an alert from its persisted record
// and schedules whatever is still outstanding.
func (s *Scheduler) replanAlert(alertID uint) error {
	alert, err := s.alerts.Get(alertID)
	if err != nil {
		return err
	}
	if alert.Status.IsTerminal() {
		return nil
	}
	plan, err := s.buildPlan(alert)
	if err != nil {
		return err
	}
	plan.Entries = s.pruneOutstanding(alert, plan)
	if len(plan.Entries) == 0 {
		log.Printf("Scheduler: alert %s has no outstanding actions", alert.UUID)
		return nil
	}
	s.Schedule(alert, plan)
	return nil
}

// pruneOutstanding drops plan entries that already ran, using the
// delivery log as the record of what was sent. Past-due recurrences are
// advanced to their next occurrence; a past-due deadline check is kept
// only while the alert is still unacknowledged, so it accelerates
// immediately on recovery.
func (s *Scheduler) pruneOutstanding(alert *database.Alert, plan *Plan) []PlanEntry {
	now := s.clk.Now()
	var kept []PlanEntry
	for _, e := range plan.Entries {
		if e.DueAt.After(now) {
			kept = append(kept, e)
			continue
		}
		switch {
		case e.RepeatEvery > 0:
			for !e.DueAt.After(now) {
				e.DueAt = e.DueAt.Add(e.RepeatEvery)
			}
			e.DueAt = plan.window.deferTime(e.DueAt)
			kept = append(kept, e)
		case e.Kind == ActionAckDeadlineCheck:
			if alert.Status == database.AlertStatusActive {
				kept = append(kept, e)
			}
		default:
			sent, err := s.deliveries.HasDeliveries(alert.ID, e.ActionLabel())
			if err != nil {
				log.Printf("Scheduler: failed to check deliveries for alert %s %s: %v", alert.UUID, e.ActionLabel(), err)
			}
			if !sent {
				kept = append(kept, e)
			}
		}
	}
	return kept
}

// sendResolvedNotice sends the closing notification for a resolved
// alert when its policy asks for one.
func (s *Scheduler) sendResolvedNotice(alertID uint) {
	alert, err := s.alerts.Get(alertID)
	if err != nil {
		log.Printf("Scheduler: failed to load resolved alert %d: %v", alertID, err)
		return
	}
	pol, err := s.resolver.Resolve(alert.UnitID, alert.AlertType)
	if err != nil {
		log.Printf("Scheduler: failed to resolve policy for alert %s: %v", alert.UUID, err)
		return
	}
	if !pol.SendResolvedNotifications {
		return
	}
	// The same gates that emptied the live plan suppress the closing
	// notice: an alert nobody was told about does not get a resolution.
	if !severityAdmitted(alert, pol) {
		return
	}
	spec := dispatch.RecipientSpec{
		NotifyRoles:         []string(pol.NotifyRoles),
		NotifySiteManagers:  pol.NotifySiteManagers,
		NotifyAssignedUsers: pol.NotifyAssignedUsers,
	}
	if _, err := s.dispatcher.Dispatch(context.Background(), alert, "resolved", pol.InitialChannels, spec); err != nil {
		log.Printf("Scheduler: resolved notification for alert %s failed: %v", alert.UUID, err)
	}
}

func (s *Scheduler) stopRunner(alertID uint) {
	s.mu.Lock()
	r := s.runners[alertID]
	s.mu.Unlock()
	if r != nil {
		r.stop()
	}
}

func (s *Scheduler) removeRunner(r *runner) {
	s.mu.Lock()
	if s.runners[r.alertID] == r {
		delete(s.runners, r.alertID)
	}
	s.mu.Unlock()
}
