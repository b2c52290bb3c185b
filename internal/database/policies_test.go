package database

import (
	"errors"
	"testing"
)

func TestPolicyStoreCreateDuplicate(t *testing.T) {
	db := setupTestDB(t)
	org, _, _ := seedHierarchy(t, db)
	store := NewPolicyStore(db)

	first := NotificationPolicy{
		OrganizationID:  &org.ID,
		AlertType:       "temp_high",
		InitialChannels: ChannelList{ChannelEmail},
	}
	if err := store.Create(&first); err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}

	dup := NotificationPolicy{
		OrganizationID:  &org.ID,
		AlertType:       "temp_high",
		InitialChannels: ChannelList{ChannelSMS},
	}
	if err := store.Create(&dup); !errors.Is(err, ErrPolicyDuplicate) {
		t.Errorf("expected ErrPolicyDuplicate, got %v", err)
	}

	// Same alert type at a different scope is fine.
	other := NotificationPolicy{
		OrganizationID:  &org.ID,
		AlertType:       "door_open",
		InitialChannels: ChannelList{ChannelEmail},
	}
	if err := store.Create(&other); err != nil {
		t.Errorf("different alert type should not conflict: %v", err)
	}
}

func TestPolicyStoreRowsForUnit(t *testing.T) {
	db := setupTestDB(t)
	org, site, unit := seedHierarchy(t, db)
	store := NewPolicyStore(db)

	orgPol := NotificationPolicy{OrganizationID: &org.ID, AlertType: "temp_high", InitialChannels: ChannelList{ChannelEmail}}
	sitePol := NotificationPolicy{SiteID: &site.ID, AlertType: "temp_high", InitialChannels: ChannelList{ChannelSMS}}
	unitPol := NotificationPolicy{UnitID: &unit.ID, AlertType: "temp_high", InitialChannels: ChannelList{ChannelEmail, ChannelSMS}}
	for _, p := range []*NotificationPolicy{&orgPol, &sitePol, &unitPol} {
		if err := store.Create(p); err != nil {
			t.Fatalf("failed to create policy: %v", err)
		}
	}

	rows, err := store.RowsForUnit(unit.ID, "temp_high")
	if err != nil {
		t.Fatalf("RowsForUnit failed: %v", err)
	}
	if rows.Unit == nil || rows.Unit.ID != unitPol.ID {
		t.Error("expected the unit row")
	}
	if rows.Site == nil || rows.Site.ID != sitePol.ID {
		t.Error("expected the site row")
	}
	if rows.Org == nil || rows.Org.ID != orgPol.ID {
		t.Error("expected the org row")
	}

	// Unknown alert type matches no rows.
	rows, err = store.RowsForUnit(unit.ID, "humidity_low")
	if err != nil {
		t.Fatalf("RowsForUnit failed: %v", err)
	}
	if rows.Unit != nil || rows.Site != nil || rows.Org != nil {
		t.Error("expected no rows for unmatched alert type")
	}
}

func TestPolicyStoreRowsForUnitUnknownUnit(t *testing.T) {
	db := setupTestDB(t)
	store := NewPolicyStore(db)

	if _, err := store.RowsForUnit(999, "temp_high"); err == nil {
		t.Error("expected an error for an unknown unit")
	}
}

func TestPolicyStoreDelete(t *testing.T) {
	db := setupTestDB(t)
	org, _, _ := seedHierarchy(t, db)
	store := NewPolicyStore(db)

	pol := NotificationPolicy{OrganizationID: &org.ID, AlertType: "temp_high", InitialChannels: ChannelList{ChannelEmail}}
	if err := store.Create(&pol); err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}
	if err := store.Delete(pol.ID); err != nil {
		t.Fatalf("failed to delete policy: %v", err)
	}
	if _, err := store.Get(pol.ID); err == nil {
		t.Error("expected deleted policy to be gone")
	}

	// The scope slot is free again.
	again := NotificationPolicy{OrganizationID: &org.ID, AlertType: "temp_high", InitialChannels: ChannelList{ChannelSMS}}
	if err := store.Create(&again); err != nil {
		t.Errorf("expected recreate after delete to succeed: %v", err)
	}
}

func TestPolicyStorePersistsDisabledToggles(t *testing.T) {
	db := setupTestDB(t)
	org, _, _ := seedHierarchy(t, db)
	store := NewPolicyStore(db)

	pol := NotificationPolicy{
		OrganizationID:            &org.ID,
		AlertType:                 "temp_high",
		InitialChannels:           ChannelList{ChannelEmail},
		AllowWarningNotifications: false,
	}
	if err := store.Create(&pol); err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}

	got, err := store.Get(pol.ID)
	if err != nil {
		t.Fatalf("failed to reload policy: %v", err)
	}
	if got.AllowWarningNotifications {
		t.Error("AllowWarningNotifications=false did not survive the insert")
	}
}
