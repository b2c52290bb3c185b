package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/getdatasurge/escalation-engine/internal/clock"
	"github.com/getdatasurge/escalation-engine/internal/database"
	"github.com/getdatasurge/escalation-engine/internal/notify"
	"github.com/getdatasurge/escalation-engine/internal/testhelpers"
)

type dispatchFixture struct {
	db    *gorm.DB
	fleet testhelpers.Fleet
	email *testhelpers.MockEmailSender
	sms   *testhelpers.MockSMSSender
	disp  *Dispatcher
	alert *database.Alert
}

// newDispatchFixture sets up a dispatcher with mock senders, one active
// contact, and one open alert. Retry backoff is zeroed so retry paths run
// instantly under the mock clock.
func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	db := testhelpers.NewTestDB(t)
	fleet := testhelpers.SeedFleet(t, db)

	settings := database.NewDefaultEngineSettings()
	settings.RetryBackoffBaseSeconds = 0
	if err := db.Create(settings).Error; err != nil {
		t.Fatalf("failed to seed engine settings: %v", err)
	}

	contacts := database.NewContactStore(db)
	contact := testhelpers.NewContactBuilder(fleet.Org.ID).Build()
	if err := contacts.Create(&contact); err != nil {
		t.Fatalf("failed to create contact: %v", err)
	}

	alerts := database.NewAlertStore(db)
	alert := testhelpers.NewAlertBuilder(fleet.Unit.ID).Build()
	if err := alerts.Create(&alert); err != nil {
		t.Fatalf("failed to create alert: %v", err)
	}

	email := &testhelpers.MockEmailSender{}
	sms := &testhelpers.MockSMSSender{}
	clk := clock.NewMock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	disp := NewDispatcher(db, email, sms, notify.NewTemplateStore(), clk)

	return &dispatchFixture{db: db, fleet: fleet, email: email, sms: sms, disp: disp, alert: &alert}
}

func (f *dispatchFixture) deliveryRows(t *testing.T) []database.NotificationDelivery {
	t.Helper()
	rows, _, err := database.NewDeliveryStore(f.db).ListByAlert(f.alert.ID, 100, 0)
	if err != nil {
		t.Fatalf("failed to list deliveries: %v", err)
	}
	return rows
}

func TestDispatchRecordsDelivery(t *testing.T) {
	fx := newDispatchFixture(t)

	results, err := fx.disp.Dispatch(context.Background(), fx.alert, "initial",
		database.ChannelList{database.ChannelEmail}, RecipientSpec{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(results))
	}
	if results[0].Status != database.DeliveryStatusDelivered {
		t.Errorf("status %s, want delivered", results[0].Status)
	}
	if results[0].Action != "initial" {
		t.Errorf("action %s, want initial", results[0].Action)
	}
	if fx.email.SentCount() != 1 {
		t.Errorf("sent %d emails, want 1", fx.email.SentCount())
	}
	if got := fx.email.Sent[0].To; got != "contact@example.com" {
		t.Errorf("sent to %s", got)
	}
}

func TestDispatchBothChannels(t *testing.T) {
	fx := newDispatchFixture(t)

	results, err := fx.disp.Dispatch(context.Background(), fx.alert, "escalation:0",
		database.ChannelList{database.ChannelEmail, database.ChannelSMS}, RecipientSpec{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(results))
	}
	if fx.email.SentCount() != 1 || fx.sms.SentCount() != 1 {
		t.Errorf("email=%d sms=%d, want one each", fx.email.SentCount(), fx.sms.SentCount())
	}
	if fx.sms.Sent[0].To != "+15550100" {
		t.Errorf("sms sent to %s", fx.sms.Sent[0].To)
	}
}

func TestDispatchRetriesTransientFailure(t *testing.T) {
	fx := newDispatchFixture(t)
	fx.email.Script = []error{notify.Transient(errors.New("connection reset"))}

	results, err := fx.disp.Dispatch(context.Background(), fx.alert, "initial",
		database.ChannelList{database.ChannelEmail}, RecipientSpec{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(results) != 1 || results[0].Status != database.DeliveryStatusDelivered {
		t.Fatalf("expected the retry to succeed, got %+v", results)
	}

	// Both attempts left a row: the failed first try and the delivered
	// second.
	rows := fx.deliveryRows(t)
	if len(rows) != 2 {
		t.Fatalf("expected 2 delivery rows, got %d", len(rows))
	}
	if rows[0].Status != database.DeliveryStatusFailed || rows[0].Attempt != 1 {
		t.Errorf("first row %s attempt %d", rows[0].Status, rows[0].Attempt)
	}
	if rows[1].Status != database.DeliveryStatusDelivered || rows[1].Attempt != 2 {
		t.Errorf("second row %s attempt %d", rows[1].Status, rows[1].Attempt)
	}
}

func TestDispatchExhaustsRetries(t *testing.T) {
	fx := newDispatchFixture(t)
	boom := notify.Transient(errors.New("provider 503"))
	fx.email.Script = []error{boom, boom, boom}

	results, err := fx.disp.Dispatch(context.Background(), fx.alert, "initial",
		database.ChannelList{database.ChannelEmail}, RecipientSpec{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(results) != 1 || results[0].Status != database.DeliveryStatusFailed {
		t.Fatalf("expected a failed final delivery, got %+v", results)
	}

	rows := fx.deliveryRows(t)
	if len(rows) != 3 {
		t.Fatalf("expected 3 attempt rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.Status != database.DeliveryStatusFailed {
			t.Errorf("row %d status %s, want failed", i, row.Status)
		}
	}
	if fx.email.SentCount() != 0 {
		t.Errorf("no email should have gone out, sent %d", fx.email.SentCount())
	}
}

func TestDispatchPermanentFailureDoesNotRetry(t *testing.T) {
	fx := newDispatchFixture(t)
	fx.email.Script = []error{errors.New("550 mailbox does not exist")}

	results, err := fx.disp.Dispatch(context.Background(), fx.alert, "initial",
		database.ChannelList{database.ChannelEmail}, RecipientSpec{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(results) != 1 || results[0].Status != database.DeliveryStatusFailed {
		t.Fatalf("expected one failed delivery, got %+v", results)
	}
	if rows := fx.deliveryRows(t); len(rows) != 1 {
		t.Errorf("permanent failure must not retry, got %d rows", len(rows))
	}
}

func TestDispatchChannelUnavailable(t *testing.T) {
	fx := newDispatchFixture(t)
	// No SMS sender configured for this deployment.
	fx.disp.sms = nil

	results, err := fx.disp.Dispatch(context.Background(), fx.alert, "initial",
		database.ChannelList{database.ChannelSMS}, RecipientSpec{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(results) != 1 || results[0].Status != database.DeliveryStatusUnavailable {
		t.Fatalf("expected one unavailable delivery, got %+v", results)
	}
	if rows := fx.deliveryRows(t); len(rows) != 1 {
		t.Errorf("unavailable channel must fail fast, got %d rows", len(rows))
	}
}

func TestDispatchSkipsRecipientsWithoutAddress(t *testing.T) {
	fx := newDispatchFixture(t)
	contacts := database.NewContactStore(fx.db)
	smsOnly := testhelpers.NewContactBuilder(fx.fleet.Org.ID).
		WithName("SMS Only").WithEmail("").WithPhone("+15550199").Build()
	if err := contacts.Create(&smsOnly); err != nil {
		t.Fatalf("failed to create contact: %v", err)
	}

	results, err := fx.disp.Dispatch(context.Background(), fx.alert, "initial",
		database.ChannelList{database.ChannelEmail}, RecipientSpec{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	// Only the contact with an email address produced a delivery.
	if len(results) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(results))
	}
	if results[0].Target != "contact@example.com" {
		t.Errorf("delivered to %s", results[0].Target)
	}
}

func TestDispatchPriorityFilter(t *testing.T) {
	fx := newDispatchFixture(t)
	contacts := database.NewContactStore(fx.db)
	backup := testhelpers.NewContactBuilder(fx.fleet.Org.ID).
		WithName("Backup").WithPriority(2).WithEmail("backup@example.com").Build()
	if err := contacts.Create(&backup); err != nil {
		t.Fatalf("failed to create contact: %v", err)
	}

	p1 := 1
	results, err := fx.disp.Dispatch(context.Background(), fx.alert, "escalation:0",
		database.ChannelList{database.ChannelEmail}, RecipientSpec{ContactPriority: &p1})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected only the P1 contact, got %d deliveries", len(results))
	}
	if results[0].Target != "contact@example.com" {
		t.Errorf("delivered to %s, want the P1 contact", results[0].Target)
	}
}

func TestResolveRecipientsDeduplicates(t *testing.T) {
	fx := newDispatchFixture(t)
	contacts := database.NewContactStore(fx.db)
	// Same person listed twice, once org-wide and once for the site.
	dup := testhelpers.NewContactBuilder(fx.fleet.Org.ID).
		WithName("Duplicate").ForSite(fx.fleet.Site.ID).Build()
	if err := contacts.Create(&dup); err != nil {
		t.Fatalf("failed to create contact: %v", err)
	}

	recipients, err := fx.disp.ResolveRecipients(fx.alert, RecipientSpec{})
	if err != nil {
		t.Fatalf("ResolveRecipients failed: %v", err)
	}
	if len(recipients) != 1 {
		t.Errorf("expected 1 deduplicated recipient, got %d", len(recipients))
	}
}

func TestDispatchNoRecipients(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	fleet := testhelpers.SeedFleet(t, db)
	settings := database.NewDefaultEngineSettings()
	if err := db.Create(settings).Error; err != nil {
		t.Fatalf("failed to seed engine settings: %v", err)
	}

	alerts := database.NewAlertStore(db)
	alert := testhelpers.NewAlertBuilder(fleet.Unit.ID).Build()
	if err := alerts.Create(&alert); err != nil {
		t.Fatalf("failed to create alert: %v", err)
	}

	email := &testhelpers.MockEmailSender{}
	disp := NewDispatcher(db, email, &testhelpers.MockSMSSender{}, notify.NewTemplateStore(),
		clock.NewMock(time.Now()))

	results, err := disp.Dispatch(context.Background(), &alert, "initial",
		database.ChannelList{database.ChannelEmail}, RecipientSpec{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if results != nil {
		t.Errorf("expected no deliveries, got %d", len(results))
	}
	if email.SentCount() != 0 {
		t.Errorf("no email should have gone out")
	}
}
