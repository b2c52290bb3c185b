package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrPolicyDuplicate is returned when a policy already exists for the
// same scope and alert type.
var ErrPolicyDuplicate = errors.New("policy already exists for this scope and alert type")

// PolicyStore provides persisted access to notification policies. It holds
// no resolution logic; scope precedence lives in the policy resolver.
type PolicyStore struct {
	db *gorm.DB
}

// NewPolicyStore creates a new PolicyStore
func NewPolicyStore(db *gorm.DB) *PolicyStore {
	return &PolicyStore{db: db}
}

// Create persists a new policy, enforcing the one-scope invariant and the
// (scope, alert_type) uniqueness constraint.
func (s *PolicyStore) Create(policy *NotificationPolicy) error {
	if err := policy.ValidateScope(); err != nil {
		return err
	}

	existing, err := s.findAtSameScope(policy)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("alert type %q: %w", policy.AlertType, ErrPolicyDuplicate)
	}

	return s.db.Create(policy).Error
}

// Update replaces the stored fields of an existing policy.
func (s *PolicyStore) Update(policy *NotificationPolicy) error {
	if err := policy.ValidateScope(); err != nil {
		return err
	}
	return s.db.Save(policy).Error
}

// Delete removes a policy row.
func (s *PolicyStore) Delete(id uint) error {
	return s.db.Delete(&NotificationPolicy{}, id).Error
}

// Get retrieves a policy by ID.
func (s *PolicyStore) Get(id uint) (*NotificationPolicy, error) {
	var policy NotificationPolicy
	if err := s.db.First(&policy, id).Error; err != nil {
		return nil, err
	}
	return &policy, nil
}

// List returns all policies, most specific scopes first.
func (s *PolicyStore) List() ([]NotificationPolicy, error) {
	var policies []NotificationPolicy
	err := s.db.Order("unit_id IS NULL, site_id IS NULL, alert_type ASC").Find(&policies).Error
	return policies, err
}

// ScopeRows holds the policy rows found at each scope for one
// (unit, alertType) lookup. Absent rows are nil; absence is a valid input
// for the resolver, never an error.
type ScopeRows struct {
	Unit *NotificationPolicy
	Site *NotificationPolicy
	Org  *NotificationPolicy
}

// RowsForUnit looks up the unit-, site-, and org-scoped policy rows for the
// given unit and alert type.
func (s *PolicyStore) RowsForUnit(unitID uint, alertType string) (*ScopeRows, error) {
	unit, err := s.getUnit(unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unit %d: %w", unitID, err)
	}

	rows := &ScopeRows{}

	rows.Unit, err = s.findOne("unit_id = ? AND alert_type = ?", unitID, alertType)
	if err != nil {
		return nil, err
	}
	rows.Site, err = s.findOne("site_id = ? AND alert_type = ?", unit.SiteID, alertType)
	if err != nil {
		return nil, err
	}
	rows.Org, err = s.findOne("organization_id = ? AND alert_type = ?", unit.OrganizationID, alertType)
	if err != nil {
		return nil, err
	}

	return rows, nil
}

// getUnit loads the unit row used to walk the scope chain.
func (s *PolicyStore) getUnit(unitID uint) (*Unit, error) {
	var unit Unit
	if err := s.db.First(&unit, unitID).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

// findOne returns a single policy matching the condition, or nil when no
// row exists.
func (s *PolicyStore) findOne(query string, args ...interface{}) (*NotificationPolicy, error) {
	var policy NotificationPolicy
	err := s.db.Where(query, args...).First(&policy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

// findAtSameScope returns an existing policy at the same scope and alert
// type, or nil.
func (s *PolicyStore) findAtSameScope(policy *NotificationPolicy) (*NotificationPolicy, error) {
	switch {
	case policy.UnitID != nil:
		return s.findOne("unit_id = ? AND alert_type = ?", *policy.UnitID, policy.AlertType)
	case policy.SiteID != nil:
		return s.findOne("site_id = ? AND alert_type = ?", *policy.SiteID, policy.AlertType)
	default:
		return s.findOne("organization_id = ? AND alert_type = ?", *policy.OrganizationID, policy.AlertType)
	}
}
