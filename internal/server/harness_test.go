package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/gitwallet/market/internal/auth/domain"
	authservice "github.com/gitwallet/market/internal/auth/service"
	"github.com/gitwallet/market/internal/auth/session"
	"github.com/gitwallet/market/internal/authorization"
	chargedomain "github.com/gitwallet/market/internal/charge/domain"
	chargerepository "github.com/gitwallet/market/internal/charge/repository"
	chargeservice "github.com/gitwallet/market/internal/charge/service"
	"github.com/gitwallet/market/internal/clock"
	"github.com/gitwallet/market/internal/config"
	githubappdomain "github.com/gitwallet/market/internal/githubapp/domain"
	githubapprepository "github.com/gitwallet/market/internal/githubapp/repository"
	githubappservice "github.com/gitwallet/market/internal/githubapp/service"
	"github.com/gitwallet/market/internal/observability"
	orgdomain "github.com/gitwallet/market/internal/organization/domain"
	orgrepository "github.com/gitwallet/market/internal/organization/repository"
	orgservice "github.com/gitwallet/market/internal/organization/service"
	stripeadapter "github.com/gitwallet/market/internal/payment/adapters/stripe"
	"github.com/gitwallet/market/internal/payment/checkout"
	paymentdomain "github.com/gitwallet/market/internal/payment/domain"
	paymentrepository "github.com/gitwallet/market/internal/payment/repository"
	"github.com/gitwallet/market/internal/payment/webhook"
	"github.com/gitwallet/market/internal/ratelimit"
	subscriptiondomain "github.com/gitwallet/market/internal/subscription/domain"
	subscriptionrepository "github.com/gitwallet/market/internal/subscription/repository"
	subscriptionservice "github.com/gitwallet/market/internal/subscription/service"
	tierdomain "github.com/gitwallet/market/internal/tier/domain"
	tierrepository "github.com/gitwallet/market/internal/tier/repository"
	tierservice "github.com/gitwallet/market/internal/tier/service"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const (
	testJWTSecret      = "test-session-secret"
	testRailsOrigin    = "https://app.gitwallet.dev"
	testConnectSecret  = "whsec_connect"
	testPlatformSecret = "whsec_platform"
	testGitHubSecret   = "github-secret"
	testBillingPage    = "https://market.dev/settings/billing"
)

type fakeSubscriptionGateway struct {
	periodEnd time.Time
	calls     []string
}

func (g *fakeSubscriptionGateway) CancelAtPeriodEnd(_ context.Context, accountID, subscriptionID string) (subscriptiondomain.VendorSnapshot, error) {
	g.calls = append(g.calls, "cancel:"+accountID+":"+subscriptionID)
	end := g.periodEnd
	return subscriptiondomain.VendorSnapshot{Status: "active", CancelAtPeriodEnd: true, CurrentPeriodEnd: &end}, nil
}

func (g *fakeSubscriptionGateway) Resume(_ context.Context, accountID, subscriptionID string) (subscriptiondomain.VendorSnapshot, error) {
	g.calls = append(g.calls, "resume:"+accountID+":"+subscriptionID)
	end := g.periodEnd
	return subscriptiondomain.VendorSnapshot{Status: "active", CurrentPeriodEnd: &end}, nil
}

type fakeCheckoutGateway struct {
	session *paymentdomain.CheckoutSession
	created []paymentdomain.CheckoutRequest
}

func (g *fakeCheckoutGateway) GetCheckoutSession(_ context.Context, sessionID string) (*paymentdomain.CheckoutSession, error) {
	if g.session == nil {
		return nil, fmt.Errorf("no such checkout session: %s", sessionID)
	}
	copied := *g.session
	copied.ID = sessionID
	return &copied, nil
}

func (g *fakeCheckoutGateway) CreateCheckoutSession(_ context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	g.created = append(g.created, req)
	return &paymentdomain.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
}

type testEnv struct {
	t        *testing.T
	engine   *gin.Engine
	db       *gorm.DB
	clock    *clock.FakeClock
	node     *snowflake.Node
	orgs     orgdomain.Service
	auth     authdomain.Service
	subsGW   *fakeSubscriptionGateway
	checkout *fakeCheckoutGateway

	org      *orgdomain.Organization
	owner    *orgdomain.User
	member   *orgdomain.User
	outsider *orgdomain.User
	operator *orgdomain.User
}

type envOption func(*config.Config, *ServerParams)

func withVerifyLimiter(limiter *ratelimit.VerifyLimiter) envOption {
	return func(_ *config.Config, p *ServerParams) {
		p.VerifyLimiter = limiter
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
		&githubappdomain.Installation{},
	))

	cfg := config.Config{
		Environment: "test",
		RootDomain:  "market.dev",
		Session: config.SessionConfig{
			JWTSecret:   testJWTSecret,
			RailsOrigin: testRailsOrigin,
		},
		GitHubApp: config.GitHubAppConfig{WebhookSecret: testGitHubSecret},
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Now().UTC().Truncate(time.Second))
	log := zaptest.NewLogger(t)

	orgs := orgservice.NewService(orgservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:   orgrepository.Provide(),
		Config: cfg,
	})
	tiers := tierservice.NewService(tierservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo: tierrepository.Provide(),
		Subs: subscriptionrepository.Provide(),
		Orgs: orgs,
	})
	subsGW := &fakeSubscriptionGateway{periodEnd: clk.Now().Add(20 * 24 * time.Hour)}
	subs := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:    subscriptionrepository.Provide(),
		Tiers:   tierrepository.Provide(),
		Orgs:    orgs,
		Gateway: subsGW,
	})
	charges := chargeservice.NewService(chargeservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:  chargerepository.Provide(),
		Tiers: tierrepository.Provide(),
	})
	webhooks := webhook.NewService(webhook.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo: paymentrepository.Provide(),
		Verifier: stripeadapter.NewVerifierWithSecrets(map[string]string{
			paymentdomain.SourceConnect:  testConnectSecret,
			paymentdomain.SourcePlatform: testPlatformSecret,
		}),
		Subscriptions: subs,
		Charges:       charges,
		Orgs:          orgs,
	})
	platform := config.DefaultPlatformConfig()
	platform.BillingPageURL = testBillingPage
	platform.SiteURL = "https://market.dev"
	platform.Plans = []config.PlanRule{{ProductID: "prod_pro", PlanType: "pro"}}
	checkoutGW := &fakeCheckoutGateway{}
	checkouts := checkout.NewService(checkout.Params{
		DB: db, Log: log, Config: cfg,
		Platform: config.NewStaticPlatformConfigHolder(platform),
		Orgs:     orgs,
		Tiers:    tiers,
		Gateway:  checkoutGW,
	})
	authsvc := authservice.New(authservice.Params{Log: log, Clock: clk, Config: cfg, Orgs: orgs})
	githubApps := githubappservice.NewService(githubappservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Config: cfg,
		Repo: githubapprepository.Provide(),
		Orgs: orgs,
	})
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer, Orgs: orgs})

	params := ServerParams{
		Gin:             NewEngine(observability.Config{}, nil),
		Authsvc:         authsvc,
		Sessions:        session.NewManager(cfg),
		AuthzSvc:        authz,
		OrganizationSvc: orgs,
		TierSvc:         tiers,
		SubscriptionSvc: subs,
		ChargeSvc:       charges,
		WebhookSvc:      webhooks,
		CheckoutSvc:     checkouts,
		GitHubAppSvc:    githubApps,
	}
	for _, opt := range opts {
		opt(&cfg, &params)
	}
	params.Cfg = cfg
	srv := NewServer(params)

	env := &testEnv{
		t:        t,
		engine:   srv.Engine(),
		db:       db,
		clock:    clk,
		node:     node,
		orgs:     orgs,
		auth:     authsvc,
		subsGW:   subsGW,
		checkout: checkoutGW,
	}
	ctx := context.Background()
	env.owner = env.createUser("owner@example.com", false)
	env.member = env.createUser("member@example.com", false)
	env.outsider = env.createUser("outsider@example.com", false)
	env.operator = env.createUser("ops@market.dev", true)

	env.org, err = orgs.Create(ctx, orgdomain.CreateRequest{Name: "Acme", OwnerUserID: env.owner.ID})
	require.NoError(t, err)
	require.NoError(t, db.Create(&orgdomain.Member{
		ID:        node.Generate(),
		OrgID:     env.org.ID,
		UserID:    env.member.ID,
		Role:      orgdomain.RoleMember,
		CreatedAt: clk.Now(),
	}).Error)
	require.NoError(t, db.Exec(
		`UPDATE organizations SET stripe_account_id = ?, charges_enabled = ? WHERE id = ?`,
		"acct_acme", true, env.org.ID,
	).Error)

	return env
}

func (e *testEnv) createUser(email string, admin bool) *orgdomain.User {
	e.t.Helper()
	user := &orgdomain.User{Email: email, Name: email, IsAdmin: admin}
	require.NoError(e.t, e.orgs.CreateUser(context.Background(), user))
	return user
}

func (e *testEnv) token(user *orgdomain.User) string {
	e.t.Helper()
	issued, err := e.auth.Issue(context.Background(), authdomain.IssueRequest{UserID: user.ID, OrgID: e.org.ID})
	require.NoError(e.t, err)
	return issued.Token
}

type request struct {
	method  string
	path    string
	host    string
	body    any
	raw     []byte
	user    *orgdomain.User
	headers map[string]string
	cookies []*http.Cookie
}

func (e *testEnv) do(r request) *httptest.ResponseRecorder {
	e.t.Helper()

	var body io.Reader
	switch {
	case r.raw != nil:
		body = bytes.NewReader(r.raw)
	case r.body != nil:
		raw, err := json.Marshal(r.body)
		require.NoError(e.t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(r.method, r.path, body)
	if r.host != "" {
		req.Host = r.host
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.user != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(r.user))
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) orgPath(format string, args ...any) string {
	return "/api/orgs/" + e.org.ID.String() + fmt.Sprintf(format, args...)
}

// createTier goes through the API and returns the tier with its first version.
func (e *testEnv) createTier(name string, price string) (tierdomain.Tier, tierdomain.TierVersion) {
	e.t.Helper()
	rec := e.do(request{
		method: http.MethodPost,
		path:   e.orgPath("/tiers"),
		user:   e.owner,
		raw:    []byte(fmt.Sprintf(`{"name":%q,"price":%q,"currency":"usd","cadence":"month","features":["support"]}`, name, price)),
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data tierdomain.Tier `json:"data"`
	}
	require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &created))

	var version tierdomain.TierVersion
	require.NoError(e.t, e.db.Where("tier_id = ?", created.Data.ID).First(&version).Error)
	return created.Data, version
}

func signStripe(secret string, payload []byte) string {
	timestamp := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", timestamp, string(payload))))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func signGitHub(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func stripeEvent(t *testing.T, id, kind, account string, object map[string]any) []byte {
	t.Helper()
	event := map[string]any{
		"id":      id,
		"object":  "event",
		"type":    kind,
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": object},
	}
	if account != "" {
		event["account"] = account
	}
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return raw
}

func (e *testEnv) postStripe(path, secret string, payload []byte) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(request{
		method:  http.MethodPost,
		path:    path,
		raw:     payload,
		headers: map[string]string{"Stripe-Signature": signStripe(secret, payload)},
	})
}
