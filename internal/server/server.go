package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gitwallet/market/internal/auth"
	authdomain "github.com/gitwallet/market/internal/auth/domain"
	"github.com/gitwallet/market/internal/auth/session"
	"github.com/gitwallet/market/internal/authorization"
	"github.com/gitwallet/market/internal/charge"
	chargedomain "github.com/gitwallet/market/internal/charge/domain"
	"github.com/gitwallet/market/internal/config"
	"github.com/gitwallet/market/internal/githubapp"
	githubappdomain "github.com/gitwallet/market/internal/githubapp/domain"
	"github.com/gitwallet/market/internal/observability"
	obsmiddleware "github.com/gitwallet/market/internal/observability/logger"
	obsmetrics "github.com/gitwallet/market/internal/observability/metrics"
	obstracing "github.com/gitwallet/market/internal/observability/tracing"
	"github.com/gitwallet/market/internal/organization"
	orgdomain "github.com/gitwallet/market/internal/organization/domain"
	"github.com/gitwallet/market/internal/payment"
	paymentdomain "github.com/gitwallet/market/internal/payment/domain"
	"github.com/gitwallet/market/internal/ratelimit"
	"github.com/gitwallet/market/internal/subscription"
	subscriptiondomain "github.com/gitwallet/market/internal/subscription/domain"
	"github.com/gitwallet/market/internal/tier"
	tierdomain "github.com/gitwallet/market/internal/tier/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	organization.Module,
	tier.Module,
	subscription.Module,
	charge.Module,
	payment.Module,
	auth.Module,
	githubapp.Module,
	authorization.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	authsvc         authdomain.Service
	sessions        *session.Manager
	authzSvc        authorization.Service
	organizationSvc orgdomain.Service
	tierSvc         tierdomain.Service
	subscriptionSvc subscriptiondomain.Service
	chargeSvc       chargedomain.Service
	webhookSvc      paymentdomain.WebhookService
	checkoutSvc     paymentdomain.CheckoutService
	githubAppSvc    githubappdomain.Service
	verifyLimiter   *ratelimit.VerifyLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Authsvc         authdomain.Service
	Sessions        *session.Manager
	AuthzSvc        authorization.Service
	OrganizationSvc orgdomain.Service
	TierSvc         tierdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	ChargeSvc       chargedomain.Service
	WebhookSvc      paymentdomain.WebhookService
	CheckoutSvc     paymentdomain.CheckoutService
	GitHubAppSvc    githubappdomain.Service
	VerifyLimiter   *ratelimit.VerifyLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		authsvc:         p.Authsvc,
		sessions:        p.Sessions,
		authzSvc:        p.AuthzSvc,
		organizationSvc: p.OrganizationSvc,
		tierSvc:         p.TierSvc,
		subscriptionSvc: p.SubscriptionSvc,
		chargeSvc:       p.ChargeSvc,
		webhookSvc:      p.WebhookSvc,
		checkoutSvc:     p.CheckoutSvc,
		githubAppSvc:    p.GitHubAppSvc,
		verifyLimiter:   p.VerifyLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerWebhookRoutes()
	svc.registerOrgRoutes()
	svc.registerBuyerRoutes()
	svc.registerSiteRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/api/auth")

	verify := auth.Group("", s.RailsCORS(), s.VerifyRateLimit())
	{
		verify.OPTIONS("/verify", noContent)
		verify.GET("/verify", s.VerifyToken)
		verify.POST("/verify", s.VerifyToken)
		verify.OPTIONS("/verify-session", noContent)
		verify.GET("/verify-session", s.VerifySession)
		verify.POST("/verify-session", s.VerifySession)
	}

	auth.POST("/githubapp", s.HandleGitHubAppWebhook)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/api/webhook/stripe", s.HandleConnectWebhook)

	platform := s.engine.Group("/api/platform/stripe")
	platform.POST("/webhook", s.HandlePlatformWebhook)
	platform.GET("/checkout", s.CheckoutReturn)
}

func (s *Server) registerOrgRoutes() {
	org := s.engine.Group("/api/orgs/:orgId", s.SessionRequired())

	// -------- Tiers --------
	org.GET("/tiers", s.authorizeOrgAction(authorization.ObjectTier, authorization.ActionTierView), s.ListTiers)
	org.POST("/tiers", s.authorizeOrgAction(authorization.ObjectTier, authorization.ActionTierCreate), s.CreateTier)
	org.GET("/tiers/:id", s.authorizeOrgAction(authorization.ObjectTier, authorization.ActionTierView), s.GetTier)
	org.PATCH("/tiers/:id", s.authorizeOrgAction(authorization.ObjectTier, authorization.ActionTierUpdate), s.UpdateTier)
	org.GET("/tiers/:id/versions", s.authorizeOrgAction(authorization.ObjectTier, authorization.ActionTierView), s.ListTierVersions)
	org.POST("/tiers/:id/archive", s.authorizeOrgAction(authorization.ObjectTier, authorization.ActionTierArchive), s.ArchiveTier)

	// -------- Subscriptions --------
	org.GET("/subscriptions", s.authorizeOrgAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.ListSubscriptions)
	org.GET("/subscriptions/:id", s.authorizeOrgAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscription)
	org.POST("/subscriptions/:id/cancel", s.authorizeOrgAction(authorization.ObjectSubscription, authorization.ActionSubscriptionCancel), s.CancelSubscription)
	org.POST("/subscriptions/:id/reactivate", s.authorizeOrgAction(authorization.ObjectSubscription, authorization.ActionSubscriptionReactivate), s.ReactivateSubscription)

	// -------- Charges --------
	org.GET("/charges", s.authorizeOrgAction(authorization.ObjectCharge, authorization.ActionChargeView), s.ListCharges)

	// -------- Billing --------
	org.GET("/billing", s.authorizeOrgAction(authorization.ObjectBilling, authorization.ActionBillingView), s.GetBilling)
}

func (s *Server) registerBuyerRoutes() {
	s.engine.POST("/api/tiers/:id/checkout", s.SessionRequired(), s.StartCheckout)
}

func (s *Server) registerSiteRoutes() {
	s.engine.GET("/api/site/tiers", s.ListSiteTiers)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.SessionRequired(), s.RequirePlatformAdmin())

	admin.GET("/stripe-events", s.ListStripeEvents)
	admin.GET("/stripe-events/:id", s.GetStripeEvent)
	admin.POST("/stripe-events/:id/process", s.ProcessStripeEvent)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
