// Package dispatch resolves recipients for a scheduled action, invokes the
// channel senders, and records one delivery row per attempt.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/getdatasurge/escalation-engine/internal/clock"
	"github.com/getdatasurge/escalation-engine/internal/database"
	"github.com/getdatasurge/escalation-engine/internal/notify"
)

// Dispatcher sends notifications and records their outcomes. Channel
// senders may be called concurrently across alerts; the dispatcher holds
// no lock while sending.
type Dispatcher struct {
	db         *gorm.DB
	contacts   *database.ContactStore
	deliveries *database.DeliveryStore
	email      notify.EmailSender
	sms        notify.SMSSender
	templates  *notify.TemplateStore
	clk        clock.Clock
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(db *gorm.DB, email notify.EmailSender, sms notify.SMSSender, templates *notify.TemplateStore, clk clock.Clock) *Dispatcher {
	return &Dispatcher{
		db:         db,
		contacts:   database.NewContactStore(db),
		deliveries: database.NewDeliveryStore(db),
		email:      email,
		sms:        sms,
		templates:  templates,
		clk:        clk,
	}
}

// Dispatch resolves recipients and sends on every requested channel,
// returning the delivery records written. Per-recipient failures are
// recorded and do not abort the rest of the action; the returned error is
// reserved for failures that prevented dispatch entirely.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *database.Alert, action string, channels database.ChannelList, spec RecipientSpec) ([]database.NotificationDelivery, error) {
	recipients, err := d.ResolveRecipients(alert, spec)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		log.Printf("Dispatcher: no eligible recipients for alert %s action %s", alert.UUID, action)
		return nil, nil
	}

	settings, err := database.GetEngineSettings(d.db)
	if err != nil {
		return nil, fmt.Errorf("failed to load engine settings: %w", err)
	}

	msgCtx, err := d.messageContext(alert, action)
	if err != nil {
		return nil, err
	}

	var results []database.NotificationDelivery
	for _, recipient := range recipients {
		for _, channel := range channels {
			delivery := d.sendWithRetries(ctx, alert, action, recipient, channel, msgCtx, settings)
			if delivery != nil {
				results = append(results, *delivery)
			}
		}
	}
	return results, nil
}

// sendWithRetries attempts one (recipient, channel) pair, retrying
// transient failures with exponential backoff. Each attempt gets its own
// delivery row; only the final row is returned.
func (d *Dispatcher) sendWithRetries(ctx context.Context, alert *database.Alert, action string, recipient Recipient, channel database.Channel, msgCtx notify.MessageContext, settings *database.EngineSettings) *database.NotificationDelivery {
	target := recipient.Email
	if channel == database.ChannelSMS {
		target = recipient.Phone
	}
	if target == "" {
		log.Printf("Dispatcher: skipping %s for %s on alert %s (no address)", channel, recipient.Name, alert.UUID)
		return nil
	}

	maxAttempts := settings.MaxSendAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sendTimeout := time.Duration(settings.SendTimeoutSeconds) * time.Second

	var last *database.NotificationDelivery
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		delivery, err := d.deliveries.CreateQueued(alert.ID, action, recipient.Name, target, channel, attempt, d.clk.Now())
		if err != nil {
			log.Printf("Dispatcher: failed to record delivery for alert %s: %v", alert.UUID, err)
			return last
		}
		last = delivery

		sendErr := d.sendOnce(ctx, channel, target, msgCtx, sendTimeout, delivery)

		switch {
		case sendErr == nil:
			return delivery

		case errors.Is(sendErr, notify.ErrNotConfigured):
			// A misconfigured channel fails fast and never retries.
			d.markOutcome(delivery, database.DeliveryStatusUnavailable, sendErr.Error())
			log.Printf("Dispatcher: %s channel unavailable for alert %s: %v", channel, alert.UUID, sendErr)
			return delivery

		case notify.IsTransient(sendErr):
			d.markOutcome(delivery, database.DeliveryStatusFailed, sendErr.Error())
			if attempt < maxAttempts {
				backoff := time.Duration(settings.RetryBackoffBaseSeconds) * time.Second << (attempt - 1)
				log.Printf("Dispatcher: transient %s failure for alert %s (attempt %d/%d), retrying in %s: %v",
					channel, alert.UUID, attempt, maxAttempts, backoff, sendErr)
				d.clk.Sleep(backoff)
				continue
			}
			log.Printf("Dispatcher: %s delivery to %s failed after %d attempts for alert %s: %v",
				channel, recipient.Name, maxAttempts, alert.UUID, sendErr)
			return delivery

		default:
			// Permanent failure: record and stop.
			d.markOutcome(delivery, database.DeliveryStatusFailed, sendErr.Error())
			log.Printf("Dispatcher: permanent %s failure for alert %s: %v", channel, alert.UUID, sendErr)
			return delivery
		}
	}
	return last
}

// sendOnce performs a single bounded send and records the outcome on the
// delivery row.
func (d *Dispatcher) sendOnce(ctx context.Context, channel database.Channel, target string, msgCtx notify.MessageContext, timeout time.Duration, delivery *database.NotificationDelivery) error {
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result *notify.SendResult
	var err error

	switch channel {
	case database.ChannelEmail:
		if d.email == nil {
			return notify.ErrNotConfigured
		}
		var subject, body string
		subject, body, err = d.templates.RenderEmail(msgCtx)
		if err == nil {
			result, err = d.email.SendEmail(sendCtx, target, subject, body)
		}
	case database.ChannelSMS:
		if d.sms == nil {
			return notify.ErrNotConfigured
		}
		var text string
		text, err = d.templates.RenderSMS(msgCtx)
		if err == nil {
			result, err = d.sms.SendSMS(sendCtx, target, text)
		}
	default:
		return fmt.Errorf("unknown channel %q", channel)
	}

	if err != nil {
		return err
	}

	status := database.DeliveryStatusSent
	if result != nil && result.Delivered {
		status = database.DeliveryStatusDelivered
	}
	d.markOutcome(delivery, status, "")
	return nil
}

// messageContext assembles the template context for an alert.
func (d *Dispatcher) messageContext(alert *database.Alert, action string) (notify.MessageContext, error) {
	msgCtx := notify.MessageContext{
		AlertType:   alert.AlertType,
		Severity:    string(alert.Severity),
		Message:     alert.Message,
		Action:      action,
		TriggeredAt: alert.TriggeredAt,
		Resolution:  alert.Resolution,
	}

	unit, err := d.contacts.GetUnit(alert.UnitID)
	if err != nil {
		return msgCtx, fmt.Errorf("failed to load unit %d: %w", alert.UnitID, err)
	}
	msgCtx.UnitName = unit.Name
	return msgCtx, nil
}

func (d *Dispatcher) markOutcome(delivery *database.NotificationDelivery, status database.DeliveryStatus, errText string) {
	if err := d.deliveries.MarkOutcome(delivery, status, errText); err != nil {
		log.Printf("Dispatcher: failed to update delivery %s: %v", delivery.UUID, err)
	}
}
