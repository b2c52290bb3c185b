package database

import (
	"testing"
)

func TestContactStoreActiveForUnit(t *testing.T) {
	db := setupTestDB(t)
	org, site, unit := seedHierarchy(t, db)

	otherSite := Site{OrganizationID: org.ID, Name: "Plant 2"}
	if err := db.Create(&otherSite).Error; err != nil {
		t.Fatalf("failed to create site: %v", err)
	}

	store := NewContactStore(db)
	contacts := []EscalationContact{
		{OrganizationID: org.ID, Name: "Org-wide P2", Priority: 2, Email: "p2@example.com", Active: true},
		{OrganizationID: org.ID, Name: "Org-wide P1", Priority: 1, Email: "p1@example.com", Active: true},
		{OrganizationID: org.ID, SiteID: &site.ID, Name: "Same site", Priority: 3, Email: "site@example.com", Active: true},
		{OrganizationID: org.ID, SiteID: &otherSite.ID, Name: "Other site", Priority: 1, Email: "other@example.com", Active: true},
		{OrganizationID: org.ID, Name: "Inactive", Priority: 1, Email: "off@example.com", Active: false},
	}
	for i := range contacts {
		if err := store.Create(&contacts[i]); err != nil {
			t.Fatalf("failed to create contact: %v", err)
		}
	}

	eligible, err := store.ActiveForUnit(&unit)
	if err != nil {
		t.Fatalf("ActiveForUnit failed: %v", err)
	}
	if len(eligible) != 3 {
		t.Fatalf("expected 3 eligible contacts, got %d", len(eligible))
	}
	if eligible[0].Name != "Org-wide P1" || eligible[1].Name != "Org-wide P2" || eligible[2].Name != "Same site" {
		t.Errorf("unexpected priority order: %s, %s, %s", eligible[0].Name, eligible[1].Name, eligible[2].Name)
	}
}

func TestContactStoreSoftDelete(t *testing.T) {
	db := setupTestDB(t)
	org, _, unit := seedHierarchy(t, db)
	store := NewContactStore(db)

	contact := EscalationContact{OrganizationID: org.ID, Name: "Gone", Priority: 1, Email: "gone@example.com", Active: true}
	if err := store.Create(&contact); err != nil {
		t.Fatalf("failed to create contact: %v", err)
	}
	if err := store.Delete(contact.ID); err != nil {
		t.Fatalf("failed to delete contact: %v", err)
	}

	eligible, err := store.ActiveForUnit(&unit)
	if err != nil {
		t.Fatalf("ActiveForUnit failed: %v", err)
	}
	if len(eligible) != 0 {
		t.Errorf("soft-deleted contact still eligible: %d", len(eligible))
	}

	// Still readable for delivery audit.
	got, err := store.Get(contact.ID)
	if err != nil {
		t.Fatalf("expected soft-deleted contact to remain readable: %v", err)
	}
	if got.Name != "Gone" {
		t.Errorf("unexpected contact: %s", got.Name)
	}
}

func TestContactStoreRoleLookups(t *testing.T) {
	db := setupTestDB(t)
	org, site, unit := seedHierarchy(t, db)
	store := NewContactStore(db)

	users := []User{
		{OrganizationID: org.ID, Name: "Tech", Email: "tech@example.com", Role: UserRoleTechnician, Active: true},
		{OrganizationID: org.ID, Name: "Admin", Email: "admin@example.com", Role: UserRoleAdmin, Active: true},
		{OrganizationID: org.ID, SiteID: &site.ID, Name: "Manager", Email: "mgr@example.com", Role: UserRoleSiteManager, Active: true},
		{OrganizationID: org.ID, Name: "Retired", Email: "old@example.com", Role: UserRoleTechnician, Active: false},
	}
	for i := range users {
		if err := db.Create(&users[i]).Error; err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
	}
	if err := db.Create(&UnitAssignment{UserID: users[0].ID, UnitID: unit.ID}).Error; err != nil {
		t.Fatalf("failed to create assignment: %v", err)
	}

	byRole, err := store.ActiveUsersWithRoles(org.ID, []string{string(UserRoleTechnician)})
	if err != nil {
		t.Fatalf("ActiveUsersWithRoles failed: %v", err)
	}
	if len(byRole) != 1 || byRole[0].Name != "Tech" {
		t.Errorf("unexpected role lookup result: %+v", byRole)
	}

	managers, err := store.ActiveSiteManagers(site.ID)
	if err != nil {
		t.Fatalf("ActiveSiteManagers failed: %v", err)
	}
	if len(managers) != 1 || managers[0].Name != "Manager" {
		t.Errorf("unexpected site managers: %+v", managers)
	}

	assigned, err := store.ActiveAssignedUsers(unit.ID)
	if err != nil {
		t.Fatalf("ActiveAssignedUsers failed: %v", err)
	}
	if len(assigned) != 1 || assigned[0].Name != "Tech" {
		t.Errorf("unexpected assigned users: %+v", assigned)
	}
}

func TestContactStorePersistsInactive(t *testing.T) {
	db := setupTestDB(t)
	org, _, _ := seedHierarchy(t, db)
	store := NewContactStore(db)

	contact := EscalationContact{
		OrganizationID: org.ID,
		Name:           "Off rotation",
		Priority:       1,
		Email:          "off@example.com",
		Active:         false,
	}
	if err := store.Create(&contact); err != nil {
		t.Fatalf("failed to create contact: %v", err)
	}

	got, err := store.Get(contact.ID)
	if err != nil {
		t.Fatalf("failed to reload contact: %v", err)
	}
	if got.Active {
		t.Error("Active=false did not survive the insert")
	}
}
