package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/gitwallet/market/internal/charge/domain"
	chargerepository "github.com/gitwallet/market/internal/charge/repository"
	chargeservice "github.com/gitwallet/market/internal/charge/service"
	"github.com/gitwallet/market/internal/clock"
	"github.com/gitwallet/market/internal/config"
	orgdomain "github.com/gitwallet/market/internal/organization/domain"
	orgrepository "github.com/gitwallet/market/internal/organization/repository"
	orgservice "github.com/gitwallet/market/internal/organization/service"
	stripeadapter "github.com/gitwallet/market/internal/payment/adapters/stripe"
	paymentdomain "github.com/gitwallet/market/internal/payment/domain"
	"github.com/gitwallet/market/internal/payment/repository"
	"github.com/gitwallet/market/internal/ratelimit"
	subscriptiondomain "github.com/gitwallet/market/internal/subscription/domain"
	subscriptionrepository "github.com/gitwallet/market/internal/subscription/repository"
	subscriptionservice "github.com/gitwallet/market/internal/subscription/service"
	tierdomain "github.com/gitwallet/market/internal/tier/domain"
	tierrepository "github.com/gitwallet/market/internal/tier/repository"
	"github.com/glebarez/sqlite"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const (
	connectSecret  = "whsec_connect"
	platformSecret = "whsec_platform"
)

type env struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	node    *snowflake.Node
	orgs    orgdomain.Service
	subs    subscriptiondomain.Service
	charges chargedomain.Service
	org     *orgdomain.Organization
	buyer   *orgdomain.User
	version *tierdomain.TierVersion
	params  Params
	svc     paymentdomain.WebhookService
}

func setupEnv(t *testing.T) *env {
	t.Helper()

	dsn := fmt.Sprintf("file:webhook_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&orgdomain.User{},
		&orgdomain.Member{},
		&orgdomain.Billing{},
		&tierdomain.Tier{},
		&tierdomain.TierVersion{},
		&subscriptiondomain.Subscription{},
		&chargedomain.Charge{},
		&paymentdomain.StripeEvent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)
	ctx := context.Background()

	orgs := orgservice.NewService(orgservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:   orgrepository.Provide(),
		Config: config.Config{RootDomain: "market.dev"},
	})
	owner := &orgdomain.User{Email: "owner@example.com"}
	require.NoError(t, orgs.CreateUser(ctx, owner))
	buyer := &orgdomain.User{Email: "buyer@example.com"}
	require.NoError(t, orgs.CreateUser(ctx, buyer))
	org, err := orgs.Create(ctx, orgdomain.CreateRequest{Name: "Acme", OwnerUserID: owner.ID})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`UPDATE organizations SET stripe_account_id = ? WHERE id = ?`, "acct_1", org.ID).Error)

	version := &tierdomain.TierVersion{
		ID:        node.Generate(),
		OrgID:     org.ID,
		TierID:    node.Generate(),
		Revision:  1,
		Price:     decimal.NewFromInt(15),
		Currency:  "usd",
		Cadence:   tierdomain.CadenceMonth,
		CreatedAt: clk.Now(),
	}
	require.NoError(t, db.Create(version).Error)

	subs := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:  subscriptionrepository.Provide(),
		Tiers: tierrepository.Provide(),
		Orgs:  orgs,
	})
	charges := chargeservice.NewService(chargeservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:  chargerepository.Provide(),
		Tiers: tierrepository.Provide(),
	})

	params := Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo: repository.Provide(),
		Verifier: stripeadapter.NewVerifierWithSecrets(map[string]string{
			paymentdomain.SourceConnect:  connectSecret,
			paymentdomain.SourcePlatform: platformSecret,
		}),
		Subscriptions: subs,
		Charges:       charges,
		Orgs:          orgs,
	}

	return &env{
		db: db, clock: clk, node: node,
		orgs: orgs, subs: subs, charges: charges,
		org: org, buyer: buyer, version: version,
		params: params,
		svc:    NewService(params),
	}
}

type delivery struct {
	source  string
	id      string
	kind    string
	account string
	created int64
	object  map[string]any
}

func (e *env) payload(t *testing.T, d delivery) []byte {
	t.Helper()
	event := map[string]any{
		"id":      d.id,
		"object":  "event",
		"type":    d.kind,
		"created": d.created,
		"data":    map[string]any{"object": d.object},
	}
	if d.account != "" {
		event["account"] = d.account
	}
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return raw
}

func (e *env) deliver(t *testing.T, d delivery) (*paymentdomain.Result, error) {
	t.Helper()
	if d.source == "" {
		d.source = paymentdomain.SourceConnect
	}
	if d.created == 0 {
		d.created = e.clock.Now().Unix()
	}
	secret := connectSecret
	if d.source == paymentdomain.SourcePlatform {
		secret = platformSecret
	}
	raw := e.payload(t, d)
	return e.svc.Ingest(context.Background(), d.source, raw, sign(secret, raw))
}

func sign(secret string, payload []byte) string {
	timestamp := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", timestamp, string(payload))))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func (e *env) subscriptionObject(stripeID, status string, extra map[string]any) map[string]any {
	object := map[string]any{
		"id":       stripeID,
		"object":   "subscription",
		"status":   status,
		"customer": "cus_buyer",
		"metadata": map[string]any{
			"tier_version_id": e.version.ID.String(),
			"buyer_user_id":   e.buyer.ID.String(),
			"org_id":          e.org.ID.String(),
		},
		"items": map[string]any{
			"object": "list",
			"data": []map[string]any{{
				"id":                 "si_1",
				"object":             "subscription_item",
				"current_period_end": time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC).Unix(),
			}},
		},
	}
	for k, v := range extra {
		object[k] = v
	}
	return object
}

func (e *env) storedEvent(t *testing.T, stripeEventID string) paymentdomain.StripeEvent {
	t.Helper()
	var record paymentdomain.StripeEvent
	require.NoError(t, e.db.Where("stripe_event_id = ?", stripeEventID).First(&record).Error)
	return record
}

func (e *env) subscription(t *testing.T, stripeID string) subscriptiondomain.Subscription {
	t.Helper()
	var sub subscriptiondomain.Subscription
	require.NoError(t, e.db.Where("stripe_subscription_id = ?", stripeID).First(&sub).Error)
	return sub
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestSubscriptionDeletedIsAppliedOnce(t *testing.T) {
	e := setupEnv(t)

	res, err := e.deliver(t, delivery{id: "evt_create", kind: "customer.subscription.created", account: "acct_1",
		object: e.subscriptionObject("sub_1", "active", nil)})
	require.NoError(t, err)
	require.Equal(t, paymentdomain.OutcomeProcessed, res.Outcome)

	sub := e.subscription(t, "sub_1")
	require.Equal(t, subscriptiondomain.StateRenewing, sub.State)
	require.Equal(t, e.version.ID, sub.TierVersionID)
	require.Equal(t, e.buyer.ID, sub.BuyerUserID)

	endedAt := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	deleted := delivery{id: "evt_delete", kind: "customer.subscription.deleted", account: "acct_1",
		object: e.subscriptionObject("sub_1", "canceled", map[string]any{"ended_at": endedAt.Unix()})}

	res, err = e.deliver(t, deleted)
	require.NoError(t, err)
	require.Equal(t, paymentdomain.OutcomeProcessed, res.Outcome)

	first := e.subscription(t, "sub_1")
	require.Equal(t, subscriptiondomain.StateCancelled, first.State)
	require.NotNil(t, first.ActiveUntil)
	require.True(t, first.ActiveUntil.Equal(endedAt))

	e.clock.Advance(time.Hour)
	res, err = e.deliver(t, deleted)
	require.NoError(t, err)
	require.Equal(t, paymentdomain.OutcomeDuplicate, res.Outcome)

	second := e.subscription(t, "sub_1")
	require.Equal(t, first.State, second.State)
	require.True(t, first.UpdatedAt.Equal(second.UpdatedAt))

	record := e.storedEvent(t, "evt_delete")
	require.True(t, record.Processed)
	require.Equal(t, 1, record.Attempts)
	require.Equal(t, int64(2), count(t, e.db, &paymentdomain.StripeEvent{}))
	require.Equal(t, int64(1), count(t, e.db, &subscriptiondomain.Subscription{}))
}

func TestInvalidSignatureMutatesNothing(t *testing.T) {
	e := setupEnv(t)
	raw := e.payload(t, delivery{id: "evt_bad", kind: "customer.subscription.created", account: "acct_1",
		created: e.clock.Now().Unix(), object: e.subscriptionObject("sub_bad", "active", nil)})

	_, err := e.svc.Ingest(context.Background(), paymentdomain.SourceConnect, raw, sign("whsec_wrong", raw))
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	_, err = e.svc.Ingest(context.Background(), paymentdomain.SourceConnect, raw, "")
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	_, err = e.svc.Ingest(context.Background(), paymentdomain.SourcePlatform, raw, sign(connectSecret, raw))
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	require.Equal(t, int64(0), count(t, e.db, &paymentdomain.StripeEvent{}))
	require.Equal(t, int64(0), count(t, e.db, &subscriptiondomain.Subscription{}))
}

func TestCheckoutCompletedRecordsOneChargeAndRefund(t *testing.T) {
	e := setupEnv(t)
	session := map[string]any{
		"id":             "cs_1",
		"object":         "checkout.session",
		"mode":           "payment",
		"payment_status": "paid",
		"payment_intent": "pi_1",
		"amount_total":   1500,
		"currency":       "usd",
		"metadata": map[string]any{
			"tier_version_id": e.version.ID.String(),
			"buyer_user_id":   e.buyer.ID.String(),
			"org_id":          e.org.ID.String(),
		},
	}

	_, err := e.deliver(t, delivery{id: "evt_checkout_1", kind: "checkout.session.completed", account: "acct_1", object: session})
	require.NoError(t, err)
	_, err = e.deliver(t, delivery{id: "evt_checkout_2", kind: "checkout.session.completed", account: "acct_1", object: session})
	require.NoError(t, err)
	require.Equal(t, int64(1), count(t, e.db, &chargedomain.Charge{}))

	var charge chargedomain.Charge
	require.NoError(t, e.db.First(&charge).Error)
	require.True(t, decimal.RequireFromString("15").Equal(charge.Amount))
	require.Equal(t, e.version.ID, charge.TierVersionID)
	require.Nil(t, charge.RefundedAt)

	refundedAt := time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC)
	refund := map[string]any{"id": "ch_1", "object": "charge", "refunded": true, "payment_intent": "pi_1"}
	res, err := e.deliver(t, delivery{id: "evt_refund_1", kind: "charge.refunded", account: "acct_1", created: refundedAt.Unix(), object: refund})
	require.NoError(t, err)
	require.Equal(t, paymentdomain.OutcomeProcessed, res.Outcome)

	_, err = e.deliver(t, delivery{id: "evt_refund_2", kind: "charge.refunded", account: "acct_1", created: refundedAt.Add(time.Hour).Unix(), object: refund})
	require.NoError(t, err)

	require.NoError(t, e.db.First(&charge, "id = ?", charge.ID).Error)
	require.NotNil(t, charge.RefundedAt)
	require.True(t, charge.RefundedAt.Equal(refundedAt))
	require.NotNil(t, charge.StripeChargeID)
	require.Equal(t, "ch_1", *charge.StripeChargeID)
}

func TestSubscriptionCheckoutIsLeftToSubscriptionEvents(t *testing.T) {
	e := setupEnv(t)
	res, err := e.deliver(t, delivery{id: "evt_sub_checkout", kind: "checkout.session.completed", account: "acct_1",
		object: map[string]any{"id": "cs_2", "object": "checkout.session", "mode": "subscription", "payment_status": "paid"}})
	require.NoError(t, err)
	require.Equal(t, paymentdomain.OutcomeProcessed, res.Outcome)
	require.Equal(t, int64(0), count(t, e.db, &chargedomain.Charge{}))
}

func TestUnknownEventIsRecordedAndIgnored(t *testing.T) {
	e := setupEnv(t)
	res, err := e.deliver(t, delivery{id: "evt_invoice", kind: "invoice.paid", account: "acct_1",
		object: map[string]any{"id": "in_1", "object": "invoice"}})
	require.NoError(t, err)
	require.Equal(t, paymentdomain.OutcomeIgnored, res.Outcome)

	record := e.storedEvent(t, "evt_invoice")
	require.True(t, record.Processed)
	require.NotNil(t, record.AccountID)
	require.Equal(t, "acct_1", *record.AccountID)
}

func TestMissingRecordIsDeferredForReplay(t *testing.T) {
	e := setupEnv(t)

	res, err := e.deliver(t, delivery{id: "evt_early", kind: "customer.subscription.deleted", account: "acct_1",
		object: e.subscriptionObject("sub_late", "canceled", map[string]any{"metadata": map[string]any{}})})
	require.NoError(t, err)
	require.Equal(t, paymentdomain.OutcomeDeferred, res.Outcome)

	record := e.storedEvent(t, "evt_early")
	require.False(t, record.Processed)
	require.NotNil(t, record.LastError)
	require.Contains(t, *record.LastError, subscriptiondomain.ErrNotFound.Error())

	_, _, err = e.subs.CreateFromStripe(context.Background(), nil, subscriptiondomain.CreateFromStripeRequest{
		OrgID:                e.org.ID,
		BuyerUserID:          e.buyer.ID,
		TierVersionID:        e.version.ID,
		StripeSubscriptionID: "sub_late",
		Snapshot:             subscriptiondomain.VendorSnapshot{Status: "active"},
	})
	require.NoError(t, err)

	res, err = e.svc.Process(context.Background(), record.ID)
	require.NoError(t, err)
	require.Equal(t, paymentdomain.OutcomeProcessed, res.Outcome)
	require.Equal(t, subscriptiondomain.StateCancelled, e.subscription(t, "sub_late").State)

	res, err = e.svc.Process(context.Background(), record.ID)
	require.NoError(t, err)
	require.Equal(t, paymentdomain.OutcomeDuplicate, res.Outcome)

	_, err = e.svc.Process(context.Background(), e.node.Generate())
	require.ErrorIs(t, err, paymentdomain.ErrEventNotFound)
}

func TestUpdateBeforeCreateCreatesSubscription(t *testing.T) {
	e := setupEnv(t)
	_, err := e.deliver(t, delivery{id: "evt_update_first", kind: "customer.subscription.updated", account: "acct_1",
		object: e.subscriptionObject("sub_2", "active", map[string]any{"cancel_at_period_end": true})})
	require.NoError(t, err)

	sub := e.subscription(t, "sub_2")
	require.Equal(t, subscriptiondomain.StateCancelled, sub.State)
	require.NotNil(t, sub.ActiveUntil)
	require.True(t, sub.IsActive(e.clock.Now()))
}

func TestLateCreatedDoesNotUndoCancellation(t *testing.T) {
	e := setupEnv(t)
	_, err := e.deliver(t, delivery{id: "evt_cancel", kind: "customer.subscription.updated", account: "acct_1",
		object: e.subscriptionObject("sub_3", "active", map[string]any{"cancel_at_period_end": true})})
	require.NoError(t, err)

	res, err := e.deliver(t, delivery{id: "evt_late_create", kind: "customer.subscription.created", account: "acct_1",
		object: e.subscriptionObject("sub_3", "active", nil)})
	require.NoError(t, err)
	require.Equal(t, paymentdomain.OutcomeProcessed, res.Outcome)

	sub := e.subscription(t, "sub_3")
	require.Equal(t, subscriptiondomain.StateCancelled, sub.State)
	require.NotNil(t, sub.ActiveUntil)
	require.True(t, sub.ActiveUntil.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)))
}

func TestStaleUpdateAfterDeleteKeepsSubscriptionEnded(t *testing.T) {
	e := setupEnv(t)
	_, err := e.deliver(t, delivery{id: "evt_create", kind: "customer.subscription.created", account: "acct_1",
		object: e.subscriptionObject("sub_4", "active", nil)})
	require.NoError(t, err)

	endedAt := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	_, err = e.deliver(t, delivery{id: "evt_delete", kind: "customer.subscription.deleted", account: "acct_1",
		object: e.subscriptionObject("sub_4", "canceled", map[string]any{"ended_at": endedAt.Unix()})})
	require.NoError(t, err)
	deleted := e.subscription(t, "sub_4")

	e.clock.Advance(time.Minute)
	res, err := e.deliver(t, delivery{id: "evt_stale_update", kind: "customer.subscription.updated", account: "acct_1",
		created: endedAt.Add(-time.Hour).Unix(),
		object:  e.subscriptionObject("sub_4", "active", nil)})
	require.NoError(t, err)
	require.Equal(t, paymentdomain.OutcomeProcessed, res.Outcome)

	sub := e.subscription(t, "sub_4")
	require.Equal(t, subscriptiondomain.StateCancelled, sub.State)
	require.NotNil(t, sub.EndedAt)
	require.True(t, sub.EndedAt.Equal(endedAt))
	require.False(t, sub.IsActive(e.clock.Now()))
	require.True(t, deleted.UpdatedAt.Equal(sub.UpdatedAt))
}

func TestAccountEvents(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	_, err := e.deliver(t, delivery{id: "evt_account", kind: "account.updated", account: "acct_1",
		object: map[string]any{"id": "acct_1", "object": "account", "charges_enabled": true, "payouts_enabled": true, "details_submitted": true}})
	require.NoError(t, err)
	org, err := e.orgs.GetByID(ctx, e.org.ID)
	require.NoError(t, err)
	require.True(t, org.CanAcceptPayments())

	_, err = e.deliver(t, delivery{id: "evt_deauth", kind: "account.application.deauthorized", account: "acct_1",
		object: map[string]any{"id": "ca_1", "object": "application"}})
	require.NoError(t, err)
	org, err = e.orgs.GetByID(ctx, e.org.ID)
	require.NoError(t, err)
	require.False(t, org.CanAcceptPayments())
	require.NotNil(t, org.AccountDeauthorizedAt)

	res, err := e.deliver(t, delivery{id: "evt_other_account", kind: "account.updated", account: "acct_unknown",
		object: map[string]any{"id": "acct_unknown", "object": "account"}})
	require.NoError(t, err)
	require.Equal(t, paymentdomain.OutcomeDeferred, res.Outcome)
}

func TestPlatformSubscriptionUpdatesBillingStatus(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	_, err := e.orgs.SyncBilling(ctx, nil, orgdomain.BillingSync{
		OrgID:                e.org.ID,
		StripeCustomerID:     "cus_platform",
		StripeSubscriptionID: "sub_platform",
		PlanType:             "pro",
		Status:               orgdomain.BillingStatusActive,
	})
	require.NoError(t, err)

	object := map[string]any{"id": "sub_platform", "object": "subscription", "status": "past_due", "customer": "cus_platform"}
	_, err = e.deliver(t, delivery{source: paymentdomain.SourcePlatform, id: "evt_platform_1", kind: "customer.subscription.updated", object: object})
	require.NoError(t, err)
	billing, err := e.orgs.FindBillingByOrg(ctx, e.org.ID)
	require.NoError(t, err)
	require.Equal(t, orgdomain.BillingStatusPastDue, billing.Status)

	_, err = e.deliver(t, delivery{source: paymentdomain.SourcePlatform, id: "evt_platform_2", kind: "customer.subscription.deleted", object: object})
	require.NoError(t, err)
	billing, err = e.orgs.FindBillingByOrg(ctx, e.org.ID)
	require.NoError(t, err)
	require.Equal(t, orgdomain.BillingStatusCancelled, billing.Status)

	// Connect handlers do not apply to platform deliveries.
	res, err := e.deliver(t, delivery{source: paymentdomain.SourcePlatform, id: "evt_platform_3", kind: "charge.refunded",
		object: map[string]any{"id": "ch_x", "object": "charge", "refunded": true}})
	require.NoError(t, err)
	require.Equal(t, paymentdomain.OutcomeIgnored, res.Outcome)
}

func TestInFlightEventIsRejected(t *testing.T) {
	e := setupEnv(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	params := e.params
	params.EventLock = ratelimit.NewEventLock(client)
	svc := NewService(params)

	require.NoError(t, mr.Set("stripe_event:evt_busy", "other-worker"))
	raw := e.payload(t, delivery{id: "evt_busy", kind: "invoice.paid", created: e.clock.Now().Unix(),
		object: map[string]any{"id": "in_1", "object": "invoice"}})

	_, err := svc.Ingest(context.Background(), paymentdomain.SourceConnect, raw, sign(connectSecret, raw))
	require.ErrorIs(t, err, paymentdomain.ErrEventInFlight)
	require.False(t, e.storedEvent(t, "evt_busy").Processed)

	mr.Del("stripe_event:evt_busy")
	res, err := svc.Ingest(context.Background(), paymentdomain.SourceConnect, raw, sign(connectSecret, raw))
	require.NoError(t, err)
	require.Equal(t, paymentdomain.OutcomeIgnored, res.Outcome)
	require.False(t, mr.Exists("stripe_event:evt_busy"))
}

func TestListEvents(t *testing.T) {
	e := setupEnv(t)
	for i := 0; i < 3; i++ {
		_, err := e.deliver(t, delivery{id: fmt.Sprintf("evt_list_%d", i), kind: "invoice.paid",
			object: map[string]any{"id": "in_1", "object": "invoice"}})
		require.NoError(t, err)
	}

	req := paymentdomain.ListRequest{}
	req.PageSize = 2
	page, err := e.svc.List(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	require.True(t, page.HasMore)

	req.PageToken = page.NextPageToken
	page, err = e.svc.List(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.False(t, page.HasMore)
	require.Equal(t, "evt_list_0", page.Events[0].StripeEventID)
}
