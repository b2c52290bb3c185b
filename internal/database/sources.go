package database

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SourceStore provides access to alert source instances (webhook endpoints
// for threshold evaluators).
type SourceStore struct {
	db *gorm.DB
}

// NewSourceStore creates a new SourceStore
func NewSourceStore(db *gorm.DB) *SourceStore {
	return &SourceStore{db: db}
}

// List returns all alert source instances.
func (s *SourceStore) List() ([]AlertSourceInstance, error) {
	var instances []AlertSourceInstance
	err := s.db.Order("id ASC").Find(&instances).Error
	return instances, err
}

// GetByUUID retrieves an instance by its webhook UUID.
func (s *SourceStore) GetByUUID(instanceUUID string) (*AlertSourceInstance, error) {
	var instance AlertSourceInstance
	if err := s.db.Where("uuid = ?", instanceUUID).First(&instance).Error; err != nil {
		return nil, err
	}
	return &instance, nil
}

// Create persists a new instance with a fresh webhook UUID.
func (s *SourceStore) Create(name, description, webhookSecret string) (*AlertSourceInstance, error) {
	instance := &AlertSourceInstance{
		UUID:          uuid.New().String(),
		Name:          name,
		Description:   description,
		WebhookSecret: webhookSecret,
		Enabled:       true,
	}
	if err := s.db.Create(instance).Error; err != nil {
		return nil, err
	}
	return instance, nil
}

// Update updates mutable instance fields.
func (s *SourceStore) Update(id uint, name, description, webhookSecret string, enabled bool) error {
	return s.db.Model(&AlertSourceInstance{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":           name,
		"description":    description,
		"webhook_secret": webhookSecret,
		"enabled":        enabled,
	}).Error
}

// Delete removes an instance.
func (s *SourceStore) Delete(id uint) error {
	return s.db.Delete(&AlertSourceInstance{}, id).Error
}
