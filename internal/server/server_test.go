package server

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gitwallet/market/internal/config"
	githubappdomain "github.com/gitwallet/market/internal/githubapp/domain"
	orgdomain "github.com/gitwallet/market/internal/organization/domain"
	paymentdomain "github.com/gitwallet/market/internal/payment/domain"
	"github.com/gitwallet/market/internal/ratelimit"
	subscriptiondomain "github.com/gitwallet/market/internal/subscription/domain"
	tierdomain "github.com/gitwallet/market/internal/tier/domain"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(request{method: http.MethodGet, path: "/health"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode(t, rec)["status"])
}

func TestVerifyToken(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(request{method: http.MethodGet, path: "/api/auth/verify", user: e.owner})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	require.Equal(t, true, body["success"])
	user := body["user"].(map[string]any)
	require.Equal(t, e.owner.ID.String(), user["id"])
	require.Equal(t, "owner@example.com", user["email"])
	require.Equal(t, e.org.ID.String(), user["org_id"])
	require.Equal(t, e.org.Slug, user["org_slug"])

	rec = e.do(request{method: http.MethodGet, path: "/api/auth/verify"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body = decode(t, rec)
	require.Equal(t, false, body["success"])
	require.Equal(t, "missing_session", body["error"])

	rec = e.do(request{
		method:  http.MethodGet,
		path:    "/api/auth/verify",
		headers: map[string]string{"Authorization": "Bearer not-a-jwt"},
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_session", decode(t, rec)["error"])
}

func TestVerifySessionCookie(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(request{
		method:  http.MethodGet,
		path:    "/api/auth/verify-session",
		cookies: []*http.Cookie{{Name: "market_session", Value: e.token(e.member)}},
		headers: map[string]string{"Origin": testRailsOrigin},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, testRailsOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	user := decode(t, rec)["user"].(map[string]any)
	require.Equal(t, e.member.ID.String(), user["id"])

	// A bearer header is not a cookie.
	rec = e.do(request{method: http.MethodGet, path: "/api/auth/verify-session", user: e.member})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyCORS(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(request{
		method: http.MethodOptions,
		path:   "/api/auth/verify",
		headers: map[string]string{
			"Origin":                        testRailsOrigin,
			"Access-Control-Request-Method": "GET",
		},
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, testRailsOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	rec = e.do(request{
		method:  http.MethodOptions,
		path:    "/api/auth/verify",
		headers: map[string]string{"Origin": "https://evil.example"},
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = e.do(request{
		method:  http.MethodGet,
		path:    "/api/auth/verify",
		user:    e.owner,
		headers: map[string]string{"Origin": "https://evil.example"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestVerifyRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := ratelimit.NewVerifyLimiter(client, config.Config{
		Redis: config.RedisConfig{VerifyRate: 0.001, VerifyBurst: 2},
	})
	require.NotNil(t, limiter)
	e := newTestEnv(t, withVerifyLimiter(limiter))

	for i := 0; i < 2; i++ {
		rec := e.do(request{method: http.MethodGet, path: "/api/auth/verify", user: e.owner})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := e.do(request{method: http.MethodGet, path: "/api/auth/verify", user: e.owner})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decode(t, rec)
	require.Equal(t, false, body["success"])
	require.Equal(t, "rate_limited", body["error"])
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestTierRoutesEnforceRoles(t *testing.T) {
	e := newTestEnv(t)
	tier, _ := e.createTier("Pro", "15.00")

	rec := e.do(request{method: http.MethodGet, path: e.orgPath("/tiers")})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/tiers"), user: e.outsider})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/tiers"), user: e.member})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, decode(t, rec)["data"], 1)

	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/tiers/%s", tier.ID), user: e.member})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(request{
		method: http.MethodPost,
		path:   e.orgPath("/tiers"),
		user:   e.member,
		raw:    []byte(`{"name":"Team","price":"30","currency":"usd","cadence":"month"}`),
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(request{method: http.MethodPost, path: e.orgPath("/tiers/%s/archive", tier.ID), user: e.member})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(request{method: http.MethodGet, path: "/api/orgs/abc/tiers", user: e.owner})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTierValidation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(request{
		method: http.MethodPost,
		path:   e.orgPath("/tiers"),
		user:   e.owner,
		raw:    []byte(`{"name":"Pro","price":"15","currency":"usd","cadence":"fortnight"}`),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decode(t, rec)["error"].(map[string]any)
	require.Equal(t, "validation_error", errBody["type"])
	first := errBody["errors"].([]any)[0].(map[string]any)
	require.Equal(t, "invalid_cadence", first["code"])
	require.Equal(t, "cadence", first["field"])

	rec = e.do(request{method: http.MethodPost, path: e.orgPath("/tiers"), user: e.owner, raw: []byte(`{`)})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/tiers/%d", 12345), user: e.owner})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateSoldTierForksVersion(t *testing.T) {
	e := newTestEnv(t)
	tier, version := e.createTier("Pro", "15.00")
	e.insertSubscription(version, "sub_sold", subscriptiondomain.StateRenewing)

	rec := e.do(request{
		method: http.MethodPatch,
		path:   e.orgPath("/tiers/%s", tier.ID),
		user:   e.owner,
		raw:    []byte(`{"price":"20.00"}`),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	require.Equal(t, true, data["forked"])

	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/tiers/%s/versions", tier.ID), user: e.member})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode(t, rec)["data"], 2)

	var sub subscriptiondomain.Subscription
	require.NoError(t, e.db.Where("stripe_subscription_id = ?", "sub_sold").First(&sub).Error)
	require.Equal(t, version.ID, sub.TierVersionID)
}

func TestArchivedTierRejectsEdits(t *testing.T) {
	e := newTestEnv(t)
	tier, _ := e.createTier("Pro", "15.00")

	rec := e.do(request{method: http.MethodPost, path: e.orgPath("/tiers/%s/archive", tier.ID), user: e.owner})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = e.do(request{
		method: http.MethodPatch,
		path:   e.orgPath("/tiers/%s", tier.ID),
		user:   e.owner,
		raw:    []byte(`{"name":"Pro 2"}`),
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/tiers"), user: e.owner})
	require.Len(t, decode(t, rec)["data"], 0)

	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/tiers?include_archived=true"), user: e.owner})
	require.Len(t, decode(t, rec)["data"], 1)
}

func (e *testEnv) insertSubscription(version tierdomain.TierVersion, stripeID string, state subscriptiondomain.State) subscriptiondomain.Subscription {
	e.t.Helper()
	now := e.clock.Now()
	sub := subscriptiondomain.Subscription{
		ID:                   e.node.Generate(),
		OrgID:                version.OrgID,
		BuyerUserID:          e.outsider.ID,
		TierID:               version.TierID,
		TierVersionID:        version.ID,
		StripeSubscriptionID: stripeID,
		State:                state,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	require.NoError(e.t, e.db.Create(&sub).Error)
	return sub
}

func TestStripeWebhookSubscriptionLifecycle(t *testing.T) {
	e := newTestEnv(t)
	_, version := e.createTier("Pro", "15.00")

	object := func(status string, extra map[string]any) map[string]any {
		obj := map[string]any{
			"id":       "sub_e2e",
			"object":   "subscription",
			"status":   status,
			"customer": "cus_buyer",
			"metadata": map[string]any{
				"tier_version_id": version.ID.String(),
				"buyer_user_id":   e.outsider.ID.String(),
				"org_id":          e.org.ID.String(),
			},
		}
		for k, v := range extra {
			obj[k] = v
		}
		return obj
	}

	created := stripeEvent(t, "evt_created", "customer.subscription.created", "acct_acme", object("active", nil))
	rec := e.postStripe("/api/webhook/stripe", testConnectSecret, created)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, decode(t, rec)["received"])

	var sub subscriptiondomain.Subscription
	require.NoError(t, e.db.Where("stripe_subscription_id = ?", "sub_e2e").First(&sub).Error)
	require.Equal(t, subscriptiondomain.StateRenewing, sub.State)
	require.Equal(t, version.ID, sub.TierVersionID)

	endedAt := e.clock.Now().Add(-time.Hour).Unix()
	deleted := stripeEvent(t, "evt_deleted", "customer.subscription.deleted", "acct_acme",
		object("canceled", map[string]any{"ended_at": endedAt}))

	for i := 0; i < 2; i++ {
		rec = e.postStripe("/api/webhook/stripe", testConnectSecret, deleted)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, true, decode(t, rec)["received"])
	}

	require.NoError(t, e.db.Where("stripe_subscription_id = ?", "sub_e2e").First(&sub).Error)
	require.Equal(t, subscriptiondomain.StateCancelled, sub.State)
	require.False(t, sub.IsActive(e.clock.Now()))

	var stored paymentdomain.StripeEvent
	require.NoError(t, e.db.Where("stripe_event_id = ?", "evt_deleted").First(&stored).Error)
	require.True(t, stored.Processed)

	var events int64
	require.NoError(t, e.db.Model(&paymentdomain.StripeEvent{}).Count(&events).Error)
	require.Equal(t, int64(2), events)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	e := newTestEnv(t)
	payload := stripeEvent(t, "evt_forged", "customer.subscription.deleted", "acct_acme", map[string]any{"id": "sub_x"})

	rec := e.postStripe("/api/webhook/stripe", "whsec_wrong", payload)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_signature", decode(t, rec)["error"])

	// Platform deliveries use their own secret.
	rec = e.postStripe("/api/platform/stripe/webhook", testConnectSecret, payload)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var events int64
	require.NoError(t, e.db.Model(&paymentdomain.StripeEvent{}).Count(&events).Error)
	require.Zero(t, events)
}

func TestStripeWebhookHidesInternalErrors(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.db.Migrator().DropTable(&paymentdomain.StripeEvent{}))

	payload := stripeEvent(t, "evt_lost", "customer.subscription.deleted", "acct_acme", map[string]any{"id": "sub_x"})
	rec := e.postStripe("/api/webhook/stripe", testConnectSecret, payload)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal_error"}`, rec.Body.String())
	require.NotContains(t, rec.Body.String(), "stripe_events")
}

func TestCancelAndReactivateSubscription(t *testing.T) {
	e := newTestEnv(t)
	_, version := e.createTier("Pro", "15.00")
	sub := e.insertSubscription(version, "sub_cancel", subscriptiondomain.StateRenewing)

	rec := e.do(request{method: http.MethodPost, path: e.orgPath("/subscriptions/%s/cancel", sub.ID), user: e.member})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(request{method: http.MethodPost, path: e.orgPath("/subscriptions/%s/cancel", sub.ID), user: e.owner})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	require.Equal(t, "cancelled", data["state"])
	require.NotNil(t, data["active_until"])

	rec = e.do(request{method: http.MethodPost, path: e.orgPath("/subscriptions/%s/cancel", sub.ID), user: e.owner})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(request{method: http.MethodPost, path: e.orgPath("/subscriptions/%s/reactivate", sub.ID), user: e.owner})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "renewing", decode(t, rec)["data"].(map[string]any)["state"])

	require.Equal(t, []string{"cancel:acct_acme:sub_cancel", "resume:acct_acme:sub_cancel"}, e.subsGW.calls)
}

func TestListSubscriptionsAndCharges(t *testing.T) {
	e := newTestEnv(t)
	_, version := e.createTier("Pro", "15.00")
	e.insertSubscription(version, "sub_a", subscriptiondomain.StateRenewing)
	e.insertSubscription(version, "sub_b", subscriptiondomain.StateCancelled)

	rec := e.do(request{method: http.MethodGet, path: e.orgPath("/subscriptions"), user: e.member})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, decode(t, rec)["data"], 2)

	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/subscriptions?state=cancelled"), user: e.member})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode(t, rec)["data"], 1)

	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/subscriptions?page_size=1"), user: e.member})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Len(t, body["data"], 1)
	pageInfo := body["page_info"].(map[string]any)
	require.Equal(t, true, pageInfo["has_more"])

	next := url.QueryEscape(pageInfo["next_page_token"].(string))
	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/subscriptions?page_size=1&page_token=%s", next), user: e.member})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode(t, rec)["data"], 1)

	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/subscriptions?state=paused"), user: e.member})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/subscriptions?page_token=garbage"), user: e.member})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/charges"), user: e.member})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, []any{}, decode(t, rec)["data"])
	require.Contains(t, rec.Body.String(), `"data":[]`)

	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/charges"), user: e.outsider})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEmptyListsEncodeAsArrays(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/subscriptions", "/subscriptions?state=cancelled", "/charges"} {
		rec := e.do(request{method: http.MethodGet, path: e.orgPath("%s", path), user: e.member})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Contains(t, rec.Body.String(), `"data":[]`, path)
	}
}

func TestCheckoutReturnRedirects(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(request{method: http.MethodGet, path: "/api/platform/stripe/checkout?status=cancelled"})
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "cancelled", location.Query().Get("status"))

	rec = e.do(request{method: http.MethodGet, path: "/api/platform/stripe/checkout?status=success"})
	require.Equal(t, http.StatusFound, rec.Code)
	location, err = url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "error", location.Query().Get("status"))
	require.Equal(t, "missing_session", location.Query().Get("error"))

	e.checkout.session = &paymentdomain.CheckoutSession{
		ClientReferenceID:  e.owner.ID.String() + ":" + e.org.ID.String(),
		CustomerID:         "cus_acme",
		SubscriptionID:     "sub_platform",
		SubscriptionStatus: "active",
		ProductIDs:         []string{"prod_pro"},
	}
	rec = e.do(request{method: http.MethodGet, path: "/api/platform/stripe/checkout?status=success&session_id=cs_done"})
	require.Equal(t, http.StatusFound, rec.Code)
	location, err = url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "success", location.Query().Get("status"))
	require.Empty(t, location.Query().Get("error"))

	billing, err := e.orgs.FindBillingByOrg(t.Context(), e.org.ID)
	require.NoError(t, err)
	require.Equal(t, "pro", billing.PlanType)
	require.Equal(t, orgdomain.BillingStatusActive, billing.Status)

	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/billing"), user: e.owner})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "pro", decode(t, rec)["data"].(map[string]any)["plan_type"])

	rec = e.do(request{method: http.MethodGet, path: e.orgPath("/billing"), user: e.member})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCheckoutReturnKeepsBillingOnUnknownPlan(t *testing.T) {
	e := newTestEnv(t)
	e.checkout.session = &paymentdomain.CheckoutSession{
		ClientReferenceID:  e.org.ID.String(),
		CustomerID:         "cus_acme",
		SubscriptionID:     "sub_platform",
		SubscriptionStatus: "active",
		ProductIDs:         []string{"prod_unknown"},
	}

	rec := e.do(request{method: http.MethodGet, path: "/api/platform/stripe/checkout?session_id=cs_1"})
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "unknown_plan", location.Query().Get("error"))

	billing, err := e.orgs.FindBillingByOrg(t.Context(), e.org.ID)
	require.NoError(t, err)
	require.Equal(t, orgdomain.BillingStatusInactive, billing.Status)
}

func TestStartCheckout(t *testing.T) {
	e := newTestEnv(t)
	tier, version := e.createTier("Pro", "15.00")

	rec := e.do(request{method: http.MethodPost, path: "/api/tiers/" + tier.ID.String() + "/checkout"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(request{method: http.MethodPost, path: "/api/tiers/" + tier.ID.String() + "/checkout", user: e.outsider})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	require.Equal(t, "cs_test_1", data["session_id"])
	require.Equal(t, "https://checkout.stripe.com/c/cs_test_1", data["url"])

	require.Len(t, e.checkout.created, 1)
	req := e.checkout.created[0]
	require.Equal(t, "acct_acme", req.AccountID)
	require.Equal(t, version.ID.String(), req.Metadata["tier_version_id"])
	require.Equal(t, e.outsider.ID.String(), req.Metadata["buyer_user_id"])

	rec = e.do(request{method: http.MethodPost, path: "/api/tiers/42/checkout", user: e.outsider})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSiteTiers(t *testing.T) {
	e := newTestEnv(t)
	e.createTier("Pro", "15.00")

	rec := e.do(request{method: http.MethodGet, path: "/api/site/tiers", host: e.org.Slug + ".market.dev"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	require.Equal(t, e.org.Slug, data["organization"].(map[string]any)["slug"])
	tiers := data["tiers"].([]any)
	require.Len(t, tiers, 1)
	require.Equal(t, "Pro", tiers[0].(map[string]any)["name"])

	rec = e.do(request{method: http.MethodGet, path: "/api/site/tiers", host: "nobody.market.dev"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminStripeEvents(t *testing.T) {
	e := newTestEnv(t)
	payload := stripeEvent(t, "evt_orphan", "customer.subscription.updated", "acct_acme", map[string]any{
		"id":     "sub_missing",
		"object": "subscription",
		"status": "active",
	})
	rec := e.postStripe("/api/webhook/stripe", testConnectSecret, payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(request{method: http.MethodGet, path: "/api/admin/stripe-events", user: e.owner})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(request{method: http.MethodGet, path: "/api/admin/stripe-events?processed=false", user: e.operator})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	events := decode(t, rec)["data"].([]any)
	require.Len(t, events, 1)
	stored := events[0].(map[string]any)
	require.Equal(t, "evt_orphan", stored["stripe_event_id"])
	require.NotEmpty(t, stored["last_error"])

	id := stored["id"].(string)
	rec = e.do(request{method: http.MethodGet, path: "/api/admin/stripe-events/" + id, user: e.operator})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(request{method: http.MethodPost, path: "/api/admin/stripe-events/" + id + "/process", user: e.operator})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, paymentdomain.OutcomeDeferred, decode(t, rec)["data"].(map[string]any)["outcome"])

	rec = e.do(request{method: http.MethodPost, path: "/api/admin/stripe-events/777/process", user: e.operator})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(request{method: http.MethodGet, path: "/api/admin/stripe-events?source=paypal", user: e.operator})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGitHubAppWebhook(t *testing.T) {
	e := newTestEnv(t)
	payload := []byte(`{"action":"created","installation":{"id":101,"account":{"id":7,"login":"acme","type":"Organization"}},"sender":{"id":9,"login":"octocat"}}`)

	rec := e.do(request{
		method:  http.MethodPost,
		path:    "/api/auth/githubapp",
		raw:     payload,
		headers: map[string]string{"X-Hub-Signature-256": signGitHub(testGitHubSecret, payload)},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, string(githubappdomain.OutcomeInstalled), decode(t, rec)["status"])

	var installation githubappdomain.Installation
	require.NoError(t, e.db.Where("installation_id = ?", 101).First(&installation).Error)
	require.Equal(t, "acme", installation.AccountLogin)

	rec = e.do(request{
		method:  http.MethodPost,
		path:    "/api/auth/githubapp",
		raw:     payload,
		headers: map[string]string{"X-Hub-Signature-256": signGitHub("wrong", payload)},
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(request{
		method:  http.MethodPost,
		path:    "/api/auth/githubapp",
		raw:     []byte(`not json`),
		headers: map[string]string{"X-Hub-Signature-256": signGitHub(testGitHubSecret, []byte(`not json`))},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
