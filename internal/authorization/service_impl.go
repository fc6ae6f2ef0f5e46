package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	orgdomain "github.com/gitwallet/market/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	roleSystem  = "role:system"
	actorSystem = "system"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Orgs     orgdomain.Service
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	orgs     orgdomain.Service
}

// NewEnforcer persists policies through the casbin_rule table.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	return prepare(enforcer)
}

// NewMemoryEnforcer keeps policies in memory only.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	return prepare(enforcer)
}

func prepare(enforcer *casbin.SyncedEnforcer) (*casbin.SyncedEnforcer, error) {
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		orgs:     p.Orgs,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID snowflake.ID, object, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	if orgID == 0 {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, err := s.resolveRole(ctx, actor, orgID)
	if err != nil {
		s.log.Info("authorization denied",
			zap.String("actor", actor),
			zap.String("org_id", orgID.String()),
			zap.String("action", action),
			zap.Error(err),
		)
		return err
	}

	domain := fmt.Sprintf("org:%s", orgID.String())
	if err := s.ensureGrouping(actor, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("actor", actor),
			zap.String("org_id", orgID.String()),
			zap.String("role", roleName),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) resolveRole(ctx context.Context, actor string, orgID snowflake.ID) (string, error) {
	if actor == actorSystem {
		return roleSystem, nil
	}
	if !strings.HasPrefix(actor, "user:") {
		return "", ErrInvalidActor
	}
	userID, err := snowflake.ParseString(strings.TrimPrefix(actor, "user:"))
	if err != nil || userID == 0 {
		return "", ErrInvalidActor
	}

	role, err := s.orgs.MemberRole(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, orgdomain.ErrNotMember) {
			return "", ErrForbidden
		}
		return "", err
	}
	return fmt.Sprintf("role:%s", strings.ToLower(strings.TrimSpace(role))), nil
}

// ensureGrouping keeps exactly one role link per subject and org, so role
// changes in organization_members take effect on the next check.
func (s *ServiceImpl) ensureGrouping(subject, roleName, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) AuthorizePlatform(ctx context.Context, userID snowflake.ID) error {
	if userID == 0 {
		return ErrInvalidActor
	}
	user, err := s.orgs.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, orgdomain.ErrUserNotFound) {
			return ErrForbidden
		}
		return err
	}
	if !user.IsAdmin {
		return ErrForbidden
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Member permissions (read-only)
		{"role:member", ObjectTier, ActionTierView},
		{"role:member", ObjectSubscription, ActionSubscriptionView},
		{"role:member", ObjectCharge, ActionChargeView},

		// Admin permissions
		{"role:admin", ObjectTier, ActionTierView},
		{"role:admin", ObjectTier, ActionTierCreate},
		{"role:admin", ObjectTier, ActionTierUpdate},
		{"role:admin", ObjectSubscription, ActionSubscriptionView},
		{"role:admin", ObjectSubscription, ActionSubscriptionCancel},
		{"role:admin", ObjectSubscription, ActionSubscriptionReactivate},
		{"role:admin", ObjectCharge, ActionChargeView},
		{"role:admin", ObjectBilling, ActionBillingView},

		// Owner permissions
		{"role:owner", ObjectTier, ActionTierView},
		{"role:owner", ObjectTier, ActionTierCreate},
		{"role:owner", ObjectTier, ActionTierUpdate},
		{"role:owner", ObjectTier, ActionTierArchive},
		{"role:owner", ObjectSubscription, ActionSubscriptionView},
		{"role:owner", ObjectSubscription, ActionSubscriptionCancel},
		{"role:owner", ObjectSubscription, ActionSubscriptionReactivate},
		{"role:owner", ObjectCharge, ActionChargeView},
		{"role:owner", ObjectBilling, ActionBillingView},
		{"role:owner", ObjectBilling, ActionBillingManage},

		// System permissions (webhook reconciliation)
		{roleSystem, ObjectSubscription, ActionSubscriptionView},
		{roleSystem, ObjectCharge, ActionChargeView},
		{roleSystem, ObjectBilling, ActionBillingManage},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
