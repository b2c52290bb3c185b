package handlers

import (
	"context"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/getdatasurge/escalation-engine/internal/alerts"
	"github.com/getdatasurge/escalation-engine/internal/clock"
	"github.com/getdatasurge/escalation-engine/internal/database"
	"github.com/getdatasurge/escalation-engine/internal/dispatch"
	"github.com/getdatasurge/escalation-engine/internal/escalation"
	"github.com/getdatasurge/escalation-engine/internal/policy"
	"github.com/getdatasurge/escalation-engine/internal/testhelpers"
)

// nopDispatcher satisfies the scheduler without sending anything.
type nopDispatcher struct {
	mu    sync.Mutex
	count int
}

func (d *nopDispatcher) Dispatch(ctx context.Context, alert *database.Alert, action string, channels database.ChannelList, spec dispatch.RecipientSpec) ([]database.NotificationDelivery, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
	return nil, nil
}

type webhookFixture struct {
	db       *gorm.DB
	fleet    testhelpers.Fleet
	handler  *AlertHandler
	instance *database.AlertSourceInstance
	alerts   *database.AlertStore
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	db := testhelpers.NewTestDB(t)
	fleet := testhelpers.SeedFleet(t, db)

	policies := database.NewPolicyStore(db)
	pol := testhelpers.NewPolicyBuilder().ForOrganization(fleet.Org.ID).Build()
	if err := policies.Create(&pol); err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}

	sources := database.NewSourceStore(db)
	instance, err := sources.Create("sensor-feed", "threshold evaluator", "s3cret")
	if err != nil {
		t.Fatalf("failed to create source instance: %v", err)
	}

	resolver := policy.NewResolver(policies, database.NewContactStore(db))
	sched := escalation.NewScheduler(db, resolver, &nopDispatcher{}, clock.New())
	t.Cleanup(sched.Stop)

	sm := alerts.NewStateMachine(db)
	sm.Subscribe(sched)

	handler := NewAlertHandler(database.NewAlertStore(db), sources,
		database.NewContactStore(db), sm, sched, nil)

	return &webhookFixture{
		db:       db,
		fleet:    fleet,
		handler:  handler,
		instance: instance,
		alerts:   database.NewAlertStore(db),
	}
}

func (f *webhookFixture) post(t *testing.T, payload interface{}, secret string) *testhelpers.HTTPTestContext {
	t.Helper()
	return testhelpers.NewHTTPTestContext(t, "POST", "/webhook/alert/"+f.instance.UUID, nil).
		WithJSONBody(payload).
		WithHeader("X-Webhook-Secret", secret).
		ExecuteFunc(f.handler.HandleWebhook)
}

func firingPayload(unitID uint) WebhookAlert {
	return WebhookAlert{
		UnitID:    unitID,
		AlertType: "temp_high",
		Severity:  "critical",
		Status:    "firing",
		Message:   "temperature above threshold",
	}
}

func TestWebhookCreatesAlert(t *testing.T) {
	fx := newWebhookFixture(t)

	ctx := fx.post(t, firingPayload(fx.fleet.Unit.ID), "s3cret")
	ctx.AssertStatus(201).AssertBodyContains(`"status":"created"`)

	var resp map[string]string
	ctx.DecodeJSON(&resp)
	alert, err := fx.alerts.GetByUUID(resp["uuid"])
	if err != nil {
		t.Fatalf("created alert not found: %v", err)
	}
	if alert.Status != database.AlertStatusActive {
		t.Errorf("status %s, want active", alert.Status)
	}
	if alert.UnitID != fx.fleet.Unit.ID || alert.AlertType != "temp_high" {
		t.Errorf("alert %+v", alert)
	}
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	fx := newWebhookFixture(t)

	fx.post(t, firingPayload(fx.fleet.Unit.ID), "wrong").AssertStatus(401)

	open, err := fx.alerts.ListOpen()
	if err != nil {
		t.Fatalf("ListOpen failed: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("rejected webhook still created %d alert(s)", len(open))
	}
}

func TestWebhookUnknownInstance(t *testing.T) {
	fx := newWebhookFixture(t)

	testhelpers.NewHTTPTestContext(t, "POST", "/webhook/alert/no-such-uuid", nil).
		WithJSONBody(firingPayload(fx.fleet.Unit.ID)).
		WithHeader("X-Webhook-Secret", "s3cret").
		ExecuteFunc(fx.handler.HandleWebhook).
		AssertStatus(404)
}

func TestWebhookDisabledInstance(t *testing.T) {
	fx := newWebhookFixture(t)
	sources := database.NewSourceStore(fx.db)
	if err := sources.Update(fx.instance.ID, fx.instance.Name, "", fx.instance.WebhookSecret, false); err != nil {
		t.Fatalf("failed to disable instance: %v", err)
	}

	fx.post(t, firingPayload(fx.fleet.Unit.ID), "s3cret").AssertStatus(403)
}

func TestWebhookValidation(t *testing.T) {
	fx := newWebhookFixture(t)

	payload := firingPayload(fx.fleet.Unit.ID)
	payload.Severity = "catastrophic"
	fx.post(t, payload, "s3cret").AssertStatus(400)
}

func TestWebhookDuplicateFiring(t *testing.T) {
	fx := newWebhookFixture(t)

	fx.post(t, firingPayload(fx.fleet.Unit.ID), "s3cret").AssertStatus(201)
	fx.post(t, firingPayload(fx.fleet.Unit.ID), "s3cret").
		AssertStatus(200).AssertBodyContains(`"status":"duplicate"`)

	open, err := fx.alerts.ListOpen()
	if err != nil {
		t.Fatalf("ListOpen failed: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("duplicate firing opened %d alerts", len(open))
	}
}

func TestWebhookReactivatesAcknowledged(t *testing.T) {
	fx := newWebhookFixture(t)

	ctx := fx.post(t, firingPayload(fx.fleet.Unit.ID), "s3cret")
	ctx.AssertStatus(201)
	var resp map[string]string
	ctx.DecodeJSON(&resp)

	alert, err := fx.alerts.GetByUUID(resp["uuid"])
	if err != nil {
		t.Fatalf("alert not found: %v", err)
	}
	if _, err := fx.handler.stateMachine.Acknowledge(alert.ID, "operator"); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}

	fx.post(t, firingPayload(fx.fleet.Unit.ID), "s3cret").
		AssertStatus(200).AssertBodyContains(`"status":"reactivated"`)

	reloaded, err := fx.alerts.Get(alert.ID)
	if err != nil {
		t.Fatalf("failed to reload alert: %v", err)
	}
	if reloaded.Status != database.AlertStatusActive {
		t.Errorf("status %s, want active after re-violation", reloaded.Status)
	}
}

func TestWebhookResolves(t *testing.T) {
	fx := newWebhookFixture(t)

	fx.post(t, firingPayload(fx.fleet.Unit.ID), "s3cret").AssertStatus(201)

	resolve := firingPayload(fx.fleet.Unit.ID)
	resolve.Status = "resolved"
	resolve.Message = "back in range"
	fx.post(t, resolve, "s3cret").
		AssertStatus(200).AssertBodyContains(`"status":"resolved"`)

	open, err := fx.alerts.ListOpen()
	if err != nil {
		t.Fatalf("ListOpen failed: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("alert still open after source resolve")
	}

	// The resolution records the source as actor.
	var resolved database.Alert
	if err := fx.db.Where("status = ?", database.AlertStatusResolved).First(&resolved).Error; err != nil {
		t.Fatalf("resolved alert not found: %v", err)
	}
	if resolved.ResolvedBy != "source:sensor-feed" {
		t.Errorf("resolved by %q", resolved.ResolvedBy)
	}
	if resolved.Resolution != "back in range" {
		t.Errorf("resolution %q", resolved.Resolution)
	}
}

func TestWebhookResolveWithoutOpenAlert(t *testing.T) {
	fx := newWebhookFixture(t)

	resolve := firingPayload(fx.fleet.Unit.ID)
	resolve.Status = "resolved"
	fx.post(t, resolve, "s3cret").
		AssertStatus(200).AssertBodyContains(`"status":"no_open_alert"`)
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	fx := newWebhookFixture(t)

	testhelpers.NewHTTPTestContext(t, "GET", "/webhook/alert/"+fx.instance.UUID, nil).
		ExecuteFunc(fx.handler.HandleWebhook).
		AssertStatus(405)
}
