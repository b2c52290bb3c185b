package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryStore provides append-only access to notification delivery
// records. Terminal rows are never mutated; a retry produces a new row.
type DeliveryStore struct {
	db *gorm.DB
}

// NewDeliveryStore creates a new DeliveryStore
func NewDeliveryStore(db *gorm.DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

// CreateQueued records a new delivery attempt in the queued state and
// returns it.
func (s *DeliveryStore) CreateQueued(alertID uint, action, recipientName, target string, channel Channel, attempt int, attemptedAt time.Time) (*NotificationDelivery, error) {
	delivery := &NotificationDelivery{
		UUID:          uuid.New().String(),
		AlertID:       alertID,
		Action:        action,
		RecipientName: recipientName,
		Target:        target,
		Channel:       channel,
		Attempt:       attempt,
		Status:        DeliveryStatusQueued,
		AttemptedAt:   attemptedAt,
	}
	if err := s.db.Create(delivery).Error; err != nil {
		return nil, err
	}
	return delivery, nil
}

// MarkOutcome moves a queued delivery to its terminal status. This is the
// only permitted mutation of a delivery row.
func (s *DeliveryStore) MarkOutcome(delivery *NotificationDelivery, status DeliveryStatus, errText string) error {
	delivery.Status = status
	delivery.Error = errText
	return s.db.Model(delivery).Updates(map[string]interface{}{
		"status": status,
		"error":  errText,
	}).Error
}

// ListByAlert returns all delivery records for an alert, oldest first.
func (s *DeliveryStore) ListByAlert(alertID uint, limit, offset int) ([]NotificationDelivery, int64, error) {
	query := s.db.Model(&NotificationDelivery{}).Where("alert_id = ?", alertID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var deliveries []NotificationDelivery
	err := query.Order("attempted_at ASC, id ASC").Limit(limit).Offset(offset).Find(&deliveries).Error
	return deliveries, total, err
}

// HasDeliveries reports whether any delivery was recorded for the given
// alert and action. Scheduler recovery uses this to avoid re-sending
// actions that fired before a restart.
func (s *DeliveryStore) HasDeliveries(alertID uint, action string) (bool, error) {
	var count int64
	err := s.db.Model(&NotificationDelivery{}).
		Where("alert_id = ? AND action = ?", alertID, action).
		Count(&count).Error
	return count > 0, err
}

// CountByStatus returns per-status delivery counts for an alert. Exposed on
// the audit surface so a silent miss is always attributable.
func (s *DeliveryStore) CountByStatus(alertID uint) (map[DeliveryStatus]int64, error) {
	type row struct {
		Status DeliveryStatus
		Count  int64
	}
	var rows []row
	err := s.db.Model(&NotificationDelivery{}).
		Select("status, count(*) as count").
		Where("alert_id = ?", alertID).
		Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[DeliveryStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
