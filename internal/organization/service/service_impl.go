package service

import (
	"context"
	"net"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gitwallet/market/internal/clock"
	"github.com/gitwallet/market/internal/config"
	"github.com/gitwallet/market/internal/organization/domain"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Subdomains of the root domain that never belong to a tenant.
var reservedSubdomains = map[string]struct{}{
	"www": {},
	"app": {},
	"api": {},
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	rootDomain string
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Config config.Config
}

func NewService(p Params) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("organization.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		rootDomain: strings.ToLower(strings.TrimSpace(p.Config.RootDomain)),
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Organization, error) {
	if req.OwnerUserID == 0 {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	base := slug.Make(name)
	if name == "" || base == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	org := domain.Organization{
		ID:        s.genID.Generate(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner, err := s.repo.FindUserByID(ctx, tx, req.OwnerUserID)
		if err != nil {
			return err
		}
		if owner == nil {
			return domain.ErrUserNotFound
		}

		org.Slug, err = s.uniqueSlug(ctx, tx, base, org.ID)
		if err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, &org); err != nil {
			return err
		}

		member := domain.Member{
			ID:        s.genID.Generate(),
			OrgID:     org.ID,
			UserID:    owner.ID,
			Role:      domain.RoleOwner,
			CreatedAt: now,
		}
		if err := s.repo.InsertMember(ctx, tx, &member); err != nil {
			return err
		}

		billing := domain.Billing{
			ID:        s.genID.Generate(),
			OrgID:     org.ID,
			PlanType:  domain.PlanTypeFree,
			Status:    domain.BillingStatusInactive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.repo.InsertBilling(ctx, tx, &billing)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
	)
	return &org, nil
}

func (s *service) uniqueSlug(ctx context.Context, tx *gorm.DB, base string, id snowflake.ID) (string, error) {
	if _, reserved := reservedSubdomains[base]; !reserved {
		exists, err := s.repo.SlugExists(ctx, tx, base)
		if err != nil {
			return "", err
		}
		if !exists {
			return base, nil
		}
	}
	return base + "-" + id.Base36(), nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	org, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func (s *service) GetBySlug(ctx context.Context, value string) (*domain.Organization, error) {
	org, err := s.repo.FindBySlug(ctx, s.db, value)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

// ResolveHost maps a request Host header to its tenant. Custom domains win
// over platform subdomains; the bare root domain has no tenant.
func (s *service) ResolveHost(ctx context.Context, host string) (*domain.Organization, error) {
	host = normalizeHost(host)
	if host == "" {
		return nil, domain.ErrInvalidHost
	}

	if s.rootDomain != "" {
		if host == s.rootDomain || host == "www."+s.rootDomain {
			return nil, domain.ErrNotFound
		}
		if label, ok := strings.CutSuffix(host, "."+s.rootDomain); ok {
			if strings.Contains(label, ".") {
				return nil, domain.ErrNotFound
			}
			if _, reserved := reservedSubdomains[label]; reserved {
				return nil, domain.ErrNotFound
			}
			return s.GetBySlug(ctx, label)
		}
	}

	org, err := s.repo.FindByCustomDomain(ctx, s.db, host)
	if err != nil {
		return nil, err
	}
	if org == nil {
		if bare, ok := strings.CutPrefix(host, "www."); ok {
			org, err = s.repo.FindByCustomDomain(ctx, s.db, bare)
			if err != nil {
				return nil, err
			}
		}
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

func (s *service) CreateUser(ctx context.Context, user *domain.User) error {
	if user == nil || strings.TrimSpace(user.Email) == "" {
		return domain.ErrInvalidUser
	}
	now := s.clock.Now()
	if user.ID == 0 {
		user.ID = s.genID.Generate()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now
	return s.repo.InsertUser(ctx, s.db, user)
}

func (s *service) GetUser(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	user, err := s.repo.FindUserByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *service) GetUserByGitHubID(ctx context.Context, githubID int64) (*domain.User, error) {
	if githubID == 0 {
		return nil, domain.ErrUserNotFound
	}
	user, err := s.repo.FindUserByGitHubID(ctx, s.db, githubID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *service) MemberRole(ctx context.Context, orgID, userID snowflake.ID) (string, error) {
	role, err := s.repo.FindMemberRole(ctx, s.db, orgID, userID)
	if err != nil {
		return "", err
	}
	if role == "" {
		return "", domain.ErrNotMember
	}
	return role, nil
}

func (s *service) UpdateAccountStatus(ctx context.Context, tx *gorm.DB, accountID string, status domain.AccountStatus) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.ErrAccountNotFound
	}
	rows, err := s.repo.UpdateAccountStatus(ctx, s.conn(tx), accountID, status, s.clock.Now())
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (s *service) MarkAccountDeauthorized(ctx context.Context, tx *gorm.DB, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.ErrAccountNotFound
	}
	rows, err := s.repo.MarkAccountDeauthorized(ctx, s.conn(tx), accountID, s.clock.Now())
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (s *service) FindBillingByOrg(ctx context.Context, orgID snowflake.ID) (*domain.Billing, error) {
	billing, err := s.repo.FindBillingByOrg(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if billing == nil {
		return nil, domain.ErrBillingNotFound
	}
	return billing, nil
}

// SyncBilling writes the reconciled plan onto the organization's existing
// billing record. The record is created with the organization, so a missing
// row is an error rather than an insert.
func (s *service) SyncBilling(ctx context.Context, tx *gorm.DB, req domain.BillingSync) (*domain.Billing, error) {
	customerID := strings.TrimSpace(req.StripeCustomerID)
	if customerID == "" {
		return nil, domain.ErrInvalidBillingID
	}

	db := s.conn(tx)
	billing, err := s.repo.FindBillingByOrg(ctx, db, req.OrgID)
	if err != nil {
		return nil, err
	}
	if billing == nil {
		return nil, domain.ErrBillingNotFound
	}

	billing.StripeCustomerID = &customerID
	if subID := strings.TrimSpace(req.StripeSubscriptionID); subID != "" {
		billing.StripeSubscriptionID = &subID
	}
	if req.PlanType != "" {
		billing.PlanType = req.PlanType
	}
	if req.Status != "" {
		billing.Status = req.Status
	}
	billing.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateBilling(ctx, db, billing); err != nil {
		return nil, err
	}
	return billing, nil
}

func (s *service) UpdateBillingStatusByCustomer(ctx context.Context, tx *gorm.DB, customerID, status string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.ErrInvalidBillingID
	}
	rows, err := s.repo.UpdateBillingStatusByCustomer(ctx, s.conn(tx), customerID, status, s.clock.Now())
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrBillingNotFound
	}
	return nil
}

func (s *service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
