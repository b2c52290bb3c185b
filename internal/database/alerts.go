package database

import (
	"errors"

	"gorm.io/gorm"
)

// AlertStore provides persisted access to alerts. Status mutations go
// through the state machine, not through this store.
type AlertStore struct {
	db *gorm.DB
}

// NewAlertStore creates a new AlertStore
func NewAlertStore(db *gorm.DB) *AlertStore {
	return &AlertStore{db: db}
}

// Create persists a new alert.
func (s *AlertStore) Create(alert *Alert) error {
	return s.db.Create(alert).Error
}

// Get retrieves an alert by ID.
func (s *AlertStore) Get(id uint) (*Alert, error) {
	var alert Alert
	if err := s.db.First(&alert, id).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// GetByUUID retrieves an alert by UUID.
func (s *AlertStore) GetByUUID(uuid string) (*Alert, error) {
	var alert Alert
	if err := s.db.Where("uuid = ?", uuid).First(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// ListOpen returns all alerts still in a schedulable state
// (active or acknowledged), oldest first. Used by scheduler recovery.
func (s *AlertStore) ListOpen() ([]Alert, error) {
	var alerts []Alert
	err := s.db.Where("status IN ?", []AlertStatus{
		AlertStatusActive,
		AlertStatusAcknowledged,
	}).Order("triggered_at ASC").Find(&alerts).Error
	return alerts, err
}

// FindOpen returns the open (active or acknowledged) alert for a unit
// and alert type, or nil when there is none. Webhook ingestion uses this
// to dedupe repeated violations.
func (s *AlertStore) FindOpen(unitID uint, alertType string) (*Alert, error) {
	var alert Alert
	err := s.db.Where("unit_id = ? AND alert_type = ? AND status IN ?",
		unitID, alertType, []AlertStatus{AlertStatusActive, AlertStatusAcknowledged}).
		Order("triggered_at DESC").First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// List returns alerts filtered by optional status, newest first.
func (s *AlertStore) List(status AlertStatus, limit, offset int) ([]Alert, int64, error) {
	query := s.db.Model(&Alert{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var alerts []Alert
	err := query.Order("triggered_at DESC").Limit(limit).Offset(offset).Find(&alerts).Error
	return alerts, total, err
}
