package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Channel identifies a notification delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ChannelList is a JSON-encoded list of channels stored in a text column.
type ChannelList []Channel

// Scan implements the sql.Scanner interface
func (c *ChannelList) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	return json.Unmarshal(bytes, c)
}

// Value implements the driver.Valuer interface
func (c ChannelList) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// Contains reports whether the list includes the given channel.
func (c ChannelList) Contains(ch Channel) bool {
	for _, v := range c {
		if v == ch {
			return true
		}
	}
	return false
}

// StringList is a JSON-encoded list of strings stored in a text column.
type StringList []string

// Scan implements the sql.Scanner interface
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if str, ok := value.(string); ok {
			bytes = []byte(str)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// EscalationStep is one rung of a policy's escalation timeline.
type EscalationStep struct {
	DelayMinutes    int         `json:"delay_minutes"`
	Channels        ChannelList `json:"channels"`
	ContactPriority *int        `json:"contact_priority,omitempty"` // notify contacts at/below this rank; nil = all
	Repeat          bool        `json:"repeat"`                     // re-fire every DelayMinutes until terminal
}

// EscalationSteps is the ordered step list stored as a JSON column.
type EscalationSteps []EscalationStep

// Scan implements the sql.Scanner interface
func (e *EscalationSteps) Scan(value interface{}) error {
	if value == nil {
		*e = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	return json.Unmarshal(bytes, e)
}

// Value implements the driver.Valuer interface
func (e EscalationSteps) Value() (driver.Value, error) {
	if e == nil {
		return nil, nil
	}
	return json.Marshal(e)
}

// AlertSeverity represents normalized severity levels
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// SeverityRank returns an ordering value for severity comparison.
// Unknown severities rank below info.
func SeverityRank(s AlertSeverity) int {
	switch s {
	case AlertSeverityCritical:
		return 3
	case AlertSeverityWarning:
		return 2
	case AlertSeverityInfo:
		return 1
	default:
		return 0
	}
}

// AlertStatus represents the lifecycle state of an alert
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusSilenced     AlertStatus = "silenced"
)

// IsTerminal reports whether the status allows no further transitions.
func (s AlertStatus) IsTerminal() bool {
	return s == AlertStatusResolved || s == AlertStatusSilenced
}

// ========== Tenancy Models ==========
//
// Organization/site/unit management is owned by the platform; the engine
// only reads these rows to walk the policy scope chain and resolve
// recipients.

// Organization is the top-level tenancy scope.
type Organization struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Timezone  string    `gorm:"size:64;default:'UTC'" json:"timezone"` // IANA name, used for quiet hours
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Site is a physical location within an organization.
type Site struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Unit is a monitored entity (a sensor-equipped asset) within a site.
type Unit struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SiteID         uint      `gorm:"not null;index" json:"site_id"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserRole identifies a user's role within an organization.
type UserRole string

const (
	UserRoleAdmin       UserRole = "admin"
	UserRoleSiteManager UserRole = "site_manager"
	UserRoleTechnician  UserRole = "technician"
	UserRoleViewer      UserRole = "viewer"
)

// User is a platform user eligible for role-based notification.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	SiteID         *uint     `gorm:"index" json:"site_id,omitempty"` // set for site-scoped roles
	Name           string    `gorm:"size:255" json:"name"`
	Email          string    `gorm:"size:255" json:"email"`
	Phone          string    `gorm:"size:64" json:"phone"`
	Role           UserRole  `gorm:"type:varchar(50);not null;index" json:"role"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UnitAssignment links a user to a unit they are responsible for.
type UnitAssignment struct {
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	UnitID    uint      `gorm:"primaryKey;index" json:"unit_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ========== Policy Models ==========

// QuietHours is an organization-local window during which non-exempt
// notifications are deferred, not dropped.
type QuietHours struct {
	Enabled    bool   `json:"enabled"`
	StartLocal string `json:"start_local"` // "HH:MM", may wrap midnight
	EndLocal   string `json:"end_local"`   // "HH:MM"
}

// Scan implements the sql.Scanner interface
func (q *QuietHours) Scan(value interface{}) error {
	if value == nil {
		*q = QuietHours{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	return json.Unmarshal(bytes, q)
}

// Value implements the driver.Valuer interface
func (q QuietHours) Value() (driver.Value, error) {
	return json.Marshal(q)
}

// NotificationPolicy configures how alerts of one type are escalated at one
// scope. Exactly one of OrganizationID/SiteID/UnitID is non-null; the pair
// (scope, alert_type) is unique.
type NotificationPolicy struct {
	ID uint `gorm:"primaryKey" json:"id"`

	OrganizationID *uint  `gorm:"index;uniqueIndex:idx_policy_scope_type" json:"organization_id,omitempty"`
	SiteID         *uint  `gorm:"index;uniqueIndex:idx_policy_scope_type" json:"site_id,omitempty"`
	UnitID         *uint  `gorm:"index;uniqueIndex:idx_policy_scope_type" json:"unit_id,omitempty"`
	AlertType      string `gorm:"size:64;not null;uniqueIndex:idx_policy_scope_type" json:"alert_type"`

	InitialChannels           ChannelList     `gorm:"type:text" json:"initial_channels"`
	RequiresAck               bool            `gorm:"default:false" json:"requires_ack"`
	AckDeadlineMinutes        *int            `json:"ack_deadline_minutes,omitempty"`
	EscalationSteps           EscalationSteps `gorm:"type:text" json:"escalation_steps"`
	SendResolvedNotifications bool            `gorm:"default:false" json:"send_resolved_notifications"`
	RemindersEnabled          bool            `gorm:"default:false" json:"reminders_enabled"`
	ReminderIntervalMinutes   *int            `json:"reminder_interval_minutes,omitempty"`
	QuietHours                QuietHours      `gorm:"type:text" json:"quiet_hours"`
	SeverityThreshold         AlertSeverity   `gorm:"type:varchar(20);default:'info'" json:"severity_threshold"`
	// No column default: a false value written by a caller must survive
	// the insert, so callers set the default explicitly.
	AllowWarningNotifications bool `json:"allow_warning_notifications"`
	NotifyRoles               StringList      `gorm:"type:text" json:"notify_roles"`
	NotifySiteManagers        bool            `gorm:"default:false" json:"notify_site_managers"`
	NotifyAssignedUsers       bool            `gorm:"default:false" json:"notify_assigned_users"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrPolicyScopeInvalid is returned when a policy does not target exactly
// one scope.
var ErrPolicyScopeInvalid = errors.New("policy must target exactly one of organization, site, or unit")

// ValidateScope checks the exactly-one-scope invariant.
func (p *NotificationPolicy) ValidateScope() error {
	set := 0
	if p.OrganizationID != nil {
		set++
	}
	if p.SiteID != nil {
		set++
	}
	if p.UnitID != nil {
		set++
	}
	if set != 1 {
		return ErrPolicyScopeInvalid
	}
	return nil
}

// BeforeCreate enforces the scope invariant at write time.
func (p *NotificationPolicy) BeforeCreate(tx *gorm.DB) error {
	return p.ValidateScope()
}

// BeforeUpdate enforces the scope invariant at write time.
func (p *NotificationPolicy) BeforeUpdate(tx *gorm.DB) error {
	return p.ValidateScope()
}

// EscalationContact is a person eligible to receive alert notifications,
// ranked by priority (lower = contacted first). Soft-deleted contacts are
// excluded from resolution but retained for audit.
type EscalationContact struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	OrganizationID uint           `gorm:"not null;index" json:"organization_id"`
	SiteID         *uint          `gorm:"index" json:"site_id,omitempty"` // narrows the contact to one site
	Name           string         `gorm:"size:255;not null" json:"name"`
	Priority       int            `gorm:"not null;default:1" json:"priority"`
	Phone          string         `gorm:"size:64" json:"phone"`
	Email          string         `gorm:"size:255" json:"email"`
	Active         bool           `json:"active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// ========== Alert Models ==========

// Alert is a triggered threshold violation. Alerts are created by the
// threshold evaluator, mutated only through the state machine, and never
// deleted.
type Alert struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	UUID           string        `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	UnitID         uint          `gorm:"not null;index" json:"unit_id"`
	AlertType      string        `gorm:"size:64;not null;index" json:"alert_type"`
	Severity       AlertSeverity `gorm:"type:varchar(20);not null" json:"severity"`
	Status         AlertStatus   `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	Message        string        `gorm:"type:text" json:"message"`
	TriggeredAt    time.Time     `gorm:"not null" json:"triggered_at"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string        `gorm:"size:255" json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy     string        `gorm:"size:255" json:"resolved_by,omitempty"`
	Resolution     string        `gorm:"type:text" json:"resolution,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// BeforeCreate defaults TriggeredAt to now.
func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.TriggeredAt.IsZero() {
		a.TriggeredAt = time.Now()
	}
	return nil
}

// DeliveryStatus represents the terminal state of one notification attempt.
type DeliveryStatus string

const (
	DeliveryStatusQueued      DeliveryStatus = "queued"
	DeliveryStatusSent        DeliveryStatus = "sent"
	DeliveryStatusDelivered   DeliveryStatus = "delivered"
	DeliveryStatusFailed      DeliveryStatus = "failed"
	DeliveryStatusUnavailable DeliveryStatus = "channel_unavailable"
)

// NotificationDelivery is one attempt to notify one recipient on one
// channel. Rows are append-only: a retry produces a new row with a higher
// attempt number, never a mutation of a terminal row.
type NotificationDelivery struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UUID          string         `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	AlertID       uint           `gorm:"not null;index" json:"alert_id"`
	Action        string         `gorm:"size:64;not null" json:"action"` // initial, escalation:N, reminder, resolved
	RecipientName string         `gorm:"size:255" json:"recipient_name"`
	Target        string         `gorm:"size:255;not null" json:"target"` // email address or phone number
	Channel       Channel        `gorm:"type:varchar(20);not null" json:"channel"`
	Attempt       int            `gorm:"not null;default:1" json:"attempt"`
	Status        DeliveryStatus `gorm:"type:varchar(30);not null;default:'queued'" json:"status"`
	Error         string         `gorm:"type:text" json:"error,omitempty"`
	AttemptedAt   time.Time      `json:"attempted_at"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ========== Alert Source Models ==========

// AlertSourceInstance is a named webhook endpoint through which a threshold
// evaluator feeds alerts into the engine. Each instance has its own secret.
type AlertSourceInstance struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UUID          string    `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	Name          string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Description   string    `gorm:"type:text" json:"description"`
	WebhookSecret string    `gorm:"type:text" json:"webhook_secret"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GetWebhookURL returns the webhook URL for this instance
func (a *AlertSourceInstance) GetWebhookURL(baseURL string) string {
	return baseURL + "/webhook/alert/" + a.UUID
}

// ========== Settings Models ==========

// EngineSettings is a singleton row of runtime tuning knobs for dispatch
// and scheduling.
type EngineSettings struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Dispatch
	MaxSendAttempts         int `gorm:"default:3" json:"max_send_attempts"`
	RetryBackoffBaseSeconds int `gorm:"default:2" json:"retry_backoff_base_seconds"`
	SendTimeoutSeconds      int `gorm:"default:10" json:"send_timeout_seconds"`

	// Scheduling
	RecoverySweepMinutes int `gorm:"default:5" json:"recovery_sweep_minutes"`

	// Quiet hours behavior for critical-severity initial notifications.
	// Off by default: quiet hours apply uniformly until product decides
	// otherwise.
	CriticalBypassesQuietHours bool `gorm:"default:false" json:"critical_bypasses_quiet_hours"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDefaultEngineSettings returns engine settings with default values.
func NewDefaultEngineSettings() *EngineSettings {
	return &EngineSettings{
		MaxSendAttempts:            3,
		RetryBackoffBaseSeconds:    2,
		SendTimeoutSeconds:         10,
		RecoverySweepMinutes:       5,
		CriticalBypassesQuietHours: false,
	}
}

// SlackSettings stores the optional ops mirror configuration.
type SlackSettings struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	BotToken    string    `gorm:"type:text" json:"bot_token"`
	OpsChannel  string    `gorm:"type:varchar(255)" json:"ops_channel"`
	Enabled     bool      `gorm:"default:false" json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsConfigured returns true if the bot token and channel are set
func (s *SlackSettings) IsConfigured() bool {
	return s.BotToken != "" && s.OpsChannel != ""
}

// IsActive returns true if the mirror is enabled and configured
func (s *SlackSettings) IsActive() bool {
	return s.Enabled && s.IsConfigured()
}

// TableName overrides for explicit table naming
func (Organization) TableName() string {
	return "organizations"
}

func (Site) TableName() string {
	return "sites"
}

func (Unit) TableName() string {
	return "units"
}

func (User) TableName() string {
	return "users"
}

func (UnitAssignment) TableName() string {
	return "unit_assignments"
}

func (NotificationPolicy) TableName() string {
	return "notification_policies"
}

func (EscalationContact) TableName() string {
	return "escalation_contacts"
}

func (Alert) TableName() string {
	return "alerts"
}

func (NotificationDelivery) TableName() string {
	return "notification_deliveries"
}

func (AlertSourceInstance) TableName() string {
	return "alert_source_instances"
}

func (EngineSettings) TableName() string {
	return "engine_settings"
}

func (SlackSettings) TableName() string {
	return "slack_settings"
}
