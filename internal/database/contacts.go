package database

import (
	"gorm.io/gorm"
)

// ContactStore provides persisted access to escalation contacts and to the
// user rows consulted for role-based notification.
type ContactStore struct {
	db *gorm.DB
}

// NewContactStore creates a new ContactStore
func NewContactStore(db *gorm.DB) *ContactStore {
	return &ContactStore{db: db}
}

// Create persists a new escalation contact.
func (s *ContactStore) Create(contact *EscalationContact) error {
	return s.db.Create(contact).Error
}

// Update replaces the stored fields of a contact.
func (s *ContactStore) Update(contact *EscalationContact) error {
	return s.db.Save(contact).Error
}

// Delete soft-deletes a contact. The row stays in the table for delivery
// audit; resolution queries exclude it.
func (s *ContactStore) Delete(id uint) error {
	return s.db.Delete(&EscalationContact{}, id).Error
}

// Get retrieves a contact by ID, including soft-deleted rows.
func (s *ContactStore) Get(id uint) (*EscalationContact, error) {
	var contact EscalationContact
	if err := s.db.Unscoped().First(&contact, id).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

// ListForOrganization returns all non-deleted contacts of an organization
// ordered by priority.
func (s *ContactStore) ListForOrganization(orgID uint) ([]EscalationContact, error) {
	var contacts []EscalationContact
	err := s.db.Where("organization_id = ?", orgID).
		Order("priority ASC, id ASC").Find(&contacts).Error
	return contacts, err
}

// ActiveForUnit returns the active contacts eligible for a unit's alerts,
// ordered by priority. Site-scoped contacts of other sites are excluded.
func (s *ContactStore) ActiveForUnit(unit *Unit) ([]EscalationContact, error) {
	var contacts []EscalationContact
	err := s.db.Where("organization_id = ? AND active = ? AND (site_id IS NULL OR site_id = ?)",
		unit.OrganizationID, true, unit.SiteID).
		Order("priority ASC, id ASC").Find(&contacts).Error
	return contacts, err
}

// GetUnit loads a unit row.
func (s *ContactStore) GetUnit(unitID uint) (*Unit, error) {
	var unit Unit
	if err := s.db.First(&unit, unitID).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

// OrganizationForUnit loads the organization owning a unit.
func (s *ContactStore) OrganizationForUnit(unitID uint) (*Organization, error) {
	unit, err := s.GetUnit(unitID)
	if err != nil {
		return nil, err
	}
	var org Organization
	if err := s.db.First(&org, unit.OrganizationID).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

// ActiveUsersWithRoles returns active users of the organization holding any
// of the given roles.
func (s *ContactStore) ActiveUsersWithRoles(orgID uint, roles []string) ([]User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	var users []User
	err := s.db.Where("organization_id = ? AND active = ? AND role IN ?", orgID, true, roles).
		Order("id ASC").Find(&users).Error
	return users, err
}

// ActiveSiteManagers returns active site-manager users of the given site.
func (s *ContactStore) ActiveSiteManagers(siteID uint) ([]User, error) {
	var users []User
	err := s.db.Where("site_id = ? AND role = ? AND active = ?", siteID, UserRoleSiteManager, true).
		Order("id ASC").Find(&users).Error
	return users, err
}

// ActiveAssignedUsers returns active users assigned to the given unit.
func (s *ContactStore) ActiveAssignedUsers(unitID uint) ([]User, error) {
	var users []User
	err := s.db.Joins("JOIN unit_assignments ON unit_assignments.user_id = users.id").
		Where("unit_assignments.unit_id = ? AND users.active = ?", unitID, true).
		Order("users.id ASC").Find(&users).Error
	return users, err
}
