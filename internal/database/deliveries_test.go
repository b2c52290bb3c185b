package database

import (
	"testing"
	"time"
)

func TestDeliveryStoreLifecycle(t *testing.T) {
	db := setupTestDB(t)
	_, _, unit := seedHierarchy(t, db)

	alert := Alert{UnitID: unit.ID, AlertType: "temp_high", Severity: AlertSeverityCritical}
	if err := db.Create(&alert).Error; err != nil {
		t.Fatalf("failed to create alert: %v", err)
	}

	store := NewDeliveryStore(db)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	delivery, err := store.CreateQueued(alert.ID, "initial", "Ops Contact", "ops@example.com", ChannelEmail, 1, now)
	if err != nil {
		t.Fatalf("CreateQueued failed: %v", err)
	}
	if delivery.UUID == "" {
		t.Error("expected delivery UUID")
	}
	if delivery.Status != DeliveryStatusQueued {
		t.Errorf("expected queued, got %s", delivery.Status)
	}

	if err := store.MarkOutcome(delivery, DeliveryStatusSent, ""); err != nil {
		t.Fatalf("MarkOutcome failed: %v", err)
	}

	items, total, err := store.ListByAlert(alert.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListByAlert failed: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected 1 delivery, got total=%d len=%d", total, len(items))
	}
	if items[0].Status != DeliveryStatusSent {
		t.Errorf("expected sent, got %s", items[0].Status)
	}
	if items[0].Action != "initial" || items[0].Target != "ops@example.com" {
		t.Errorf("unexpected delivery row: %+v", items[0])
	}
}

func TestDeliveryStoreHasDeliveries(t *testing.T) {
	db := setupTestDB(t)
	_, _, unit := seedHierarchy(t, db)

	alert := Alert{UnitID: unit.ID, AlertType: "temp_high", Severity: AlertSeverityCritical}
	if err := db.Create(&alert).Error; err != nil {
		t.Fatalf("failed to create alert: %v", err)
	}

	store := NewDeliveryStore(db)
	now := time.Now()

	has, err := store.HasDeliveries(alert.ID, "initial")
	if err != nil {
		t.Fatalf("HasDeliveries failed: %v", err)
	}
	if has {
		t.Error("expected no deliveries yet")
	}

	if _, err := store.CreateQueued(alert.ID, "escalation:0", "C", "c@example.com", ChannelEmail, 1, now); err != nil {
		t.Fatalf("CreateQueued failed: %v", err)
	}

	has, err = store.HasDeliveries(alert.ID, "escalation:0")
	if err != nil {
		t.Fatalf("HasDeliveries failed: %v", err)
	}
	if !has {
		t.Error("expected deliveries for escalation:0")
	}
	if has, _ := store.HasDeliveries(alert.ID, "initial"); has {
		t.Error("action labels must not cross-match")
	}
}

func TestDeliveryStoreCountByStatus(t *testing.T) {
	db := setupTestDB(t)
	_, _, unit := seedHierarchy(t, db)

	alert := Alert{UnitID: unit.ID, AlertType: "temp_high", Severity: AlertSeverityCritical}
	if err := db.Create(&alert).Error; err != nil {
		t.Fatalf("failed to create alert: %v", err)
	}

	store := NewDeliveryStore(db)
	now := time.Now()

	d1, _ := store.CreateQueued(alert.ID, "initial", "A", "a@example.com", ChannelEmail, 1, now)
	d2, _ := store.CreateQueued(alert.ID, "initial", "B", "b@example.com", ChannelEmail, 1, now)
	store.MarkOutcome(d1, DeliveryStatusSent, "")
	store.MarkOutcome(d2, DeliveryStatusFailed, "connection refused")

	counts, err := store.CountByStatus(alert.ID)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if counts[DeliveryStatusSent] != 1 || counts[DeliveryStatusFailed] != 1 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}
