// Package slack mirrors alert activity into an operations channel. The
// mirror is strictly best-effort: a Slack outage never blocks or fails
// the escalation path.
package slack

import (
	"fmt"
	"log"
	"sync"

	"github.com/slack-go/slack"
	"gorm.io/gorm"

	"github.com/getdatasurge/escalation-engine/internal/alerts"
	"github.com/getdatasurge/escalation-engine/internal/database"
)

// Notifier posts alert lifecycle messages to the configured ops channel,
// with hot-reload when the settings change.
type Notifier struct {
	db *gorm.DB

	mu      sync.RWMutex
	client  *slack.Client
	channel string
}

// NewNotifier creates a new Notifier
func NewNotifier(db *gorm.DB) *Notifier {
	n := &Notifier{db: db}
	n.Reload()
	return n
}

// Reload re-reads Slack settings and rebuilds the client. Called at
// startup and whenever the settings are updated through the API.
func (n *Notifier) Reload() {
	settings, err := database.GetSlackSettings(n.db)
	if err != nil {
		log.Printf("SlackNotifier: could not load Slack settings: %v", err)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if !settings.IsActive() {
		if n.client != nil {
			log.Printf("SlackNotifier: Slack mirror disabled")
		}
		n.client = nil
		n.channel = ""
		return
	}

	n.client = slack.New(settings.BotToken)
	n.channel = settings.OpsChannel
	log.Printf("SlackNotifier: Slack mirror active on %s", n.channel)
}

// AlertOpened mirrors a newly created alert.
func (n *Notifier) AlertOpened(alert *database.Alert, unitName, siteName string) {
	text := fmt.Sprintf(":rotating_light: *%s* alert on *%s* (%s)\n%s",
		alert.Severity, unitName, siteName, alert.Message)
	n.post(text)
}

// HandleTransition mirrors status changes. Registered with the state
// machine; posting happens on a separate goroutine so listeners never
// block on Slack.
func (n *Notifier) HandleTransition(event alerts.TransitionEvent) {
	var text string
	switch event.To {
	case database.AlertStatusAcknowledged:
		text = fmt.Sprintf(":eyes: Alert `%s` acknowledged by %s", event.UUID, event.Actor)
	case database.AlertStatusResolved:
		text = fmt.Sprintf(":white_check_mark: Alert `%s` resolved by %s", event.UUID, event.Actor)
	case database.AlertStatusSilenced:
		text = fmt.Sprintf(":mute: Alert `%s` silenced by %s", event.UUID, event.Actor)
	case database.AlertStatusActive:
		if event.From == database.AlertStatusAcknowledged {
			text = fmt.Sprintf(":rotating_light: Alert `%s` re-triggered after acknowledgment", event.UUID)
		}
	}
	if text == "" {
		return
	}
	go n.post(text)
}

func (n *Notifier) post(text string) {
	n.mu.RLock()
	client, channel := n.client, n.channel
	n.mu.RUnlock()

	if client == nil || channel == "" {
		return
	}
	if _, _, err := client.PostMessage(channel, slack.MsgOptionText(text, false)); err != nil {
		log.Printf("SlackNotifier: failed to post to %s: %v", channel, err)
	}
}
