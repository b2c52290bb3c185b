// Package alerts owns alert status and the transition events other
// components react to. Alerts are mutated only through the state machine;
// the escalation plan is derived from status, never the reverse.
package alerts

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/getdatasurge/escalation-engine/internal/database"
)

var (
	// ErrInvalidTransition is returned for transitions the state machine
	// does not allow (e.g. resolving a silenced alert).
	ErrInvalidTransition = errors.New("invalid alert transition")

	// ErrAlreadyAcknowledged is returned when acknowledging an alert whose
	// status is already acknowledged or later.
	ErrAlreadyAcknowledged = errors.New("alert is already acknowledged")

	// ErrResolutionRequired is returned when resolving without a
	// resolution string.
	ErrResolutionRequired = errors.New("resolution is required")
)

// TransitionEvent describes one status change, delivered to listeners
// after the new status has been persisted.
type TransitionEvent struct {
	AlertID uint
	UUID    string
	From    database.AlertStatus
	To      database.AlertStatus
	Actor   string
	At      time.Time
}

// TransitionListener receives transition events. Listeners run on the
// caller's goroutine; they must not block on external I/O.
type TransitionListener interface {
	HandleTransition(event TransitionEvent)
}

// StateMachine applies alert status transitions transactionally and fans
// the resulting events out to registered listeners.
type StateMachine struct {
	db        *gorm.DB
	listeners []TransitionListener
}

// NewStateMachine creates a new StateMachine
func NewStateMachine(db *gorm.DB) *StateMachine {
	return &StateMachine{db: db}
}

// Subscribe registers a transition listener. Not safe to call after the
// engine starts serving transitions.
func (m *StateMachine) Subscribe(listener TransitionListener) {
	m.listeners = append(m.listeners, listener)
}

// Acknowledge moves an active alert to acknowledged.
func (m *StateMachine) Acknowledge(alertID uint, actor string) (*database.Alert, error) {
	now := time.Now()
	return m.transition(alertID, actor, func(alert *database.Alert) error {
		switch alert.Status {
		case database.AlertStatusActive:
			alert.Status = database.AlertStatusAcknowledged
			alert.AcknowledgedAt = &now
			alert.AcknowledgedBy = actor
			return nil
		case database.AlertStatusAcknowledged, database.AlertStatusResolved, database.AlertStatusSilenced:
			return ErrAlreadyAcknowledged
		default:
			return ErrInvalidTransition
		}
	})
}

// Resolve moves an active or acknowledged alert to resolved. A non-empty
// resolution is required.
func (m *StateMachine) Resolve(alertID uint, actor, resolution string) (*database.Alert, error) {
	if resolution == "" {
		return nil, ErrResolutionRequired
	}
	now := time.Now()
	return m.transition(alertID, actor, func(alert *database.Alert) error {
		switch alert.Status {
		case database.AlertStatusActive, database.AlertStatusAcknowledged:
			alert.Status = database.AlertStatusResolved
			alert.ResolvedAt = &now
			alert.ResolvedBy = actor
			alert.Resolution = resolution
			return nil
		default:
			return ErrInvalidTransition
		}
	})
}

// Silence moves an active alert to silenced. Silenced is terminal and
// suppresses all remaining notifications, including resolved notices.
func (m *StateMachine) Silence(alertID uint, actor string) (*database.Alert, error) {
	return m.transition(alertID, actor, func(alert *database.Alert) error {
		if alert.Status != database.AlertStatusActive {
			return ErrInvalidTransition
		}
		alert.Status = database.AlertStatusSilenced
		return nil
	})
}

// Reactivate moves an acknowledged alert back to active on a re-violation
// (a new breach before the alert was resolved). The acknowledgment record
// is kept for audit.
func (m *StateMachine) Reactivate(alertID uint, actor string) (*database.Alert, error) {
	return m.transition(alertID, actor, func(alert *database.Alert) error {
		if alert.Status != database.AlertStatusAcknowledged {
			return ErrInvalidTransition
		}
		alert.Status = database.AlertStatusActive
		return nil
	})
}

// transition loads the alert, applies the mutation inside a transaction,
// and notifies listeners after commit. Listener notification happens
// outside the transaction: on a crash between commit and fan-out, scheduler
// recovery re-derives the plan from the persisted status.
func (m *StateMachine) transition(alertID uint, actor string, mutate func(*database.Alert) error) (*database.Alert, error) {
	var alert database.Alert
	var from database.AlertStatus

	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&alert, alertID).Error; err != nil {
			return fmt.Errorf("failed to load alert %d: %w", alertID, err)
		}
		from = alert.Status

		if err := mutate(&alert); err != nil {
			return err
		}
		return tx.Save(&alert).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Alert %s: %s -> %s (actor: %s)", alert.UUID, from, alert.Status, actor)

	event := TransitionEvent{
		AlertID: alert.ID,
		UUID:    alert.UUID,
		From:    from,
		To:      alert.Status,
		Actor:   actor,
		At:      time.Now(),
	}
	for _, l := range m.listeners {
		l.HandleTransition(event)
	}

	return &alert, nil
}
