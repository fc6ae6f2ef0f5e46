package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gitwallet/market/internal/auth/domain"
	"github.com/gitwallet/market/internal/clock"
	"github.com/gitwallet/market/internal/config"
	orgdomain "github.com/gitwallet/market/internal/organization/domain"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultSessionTTL = 30 * 24 * time.Hour

type Service struct {
	log    *zap.Logger
	clock  clock.Clock
	orgs   orgdomain.Service
	secret []byte
	ttl    time.Duration
}

type Params struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	Config config.Config
	Orgs   orgdomain.Service
}

func New(p Params) domain.Service {
	ttl := time.Duration(p.Config.Session.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Service{
		log:    p.Log.Named("auth.service"),
		clock:  p.Clock,
		orgs:   p.Orgs,
		secret: []byte(p.Config.Session.JWTSecret),
		ttl:    ttl,
	}
}

func (s *Service) Issue(ctx context.Context, req domain.IssueRequest) (*domain.IssuedSession, error) {
	if len(s.secret) == 0 {
		return nil, domain.ErrSecretNotConfigured
	}
	user, err := s.orgs.GetUser(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, orgdomain.ErrUserNotFound) {
			return nil, domain.ErrUnknownUser
		}
		return nil, err
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)
	claims := domain.SessionClaims{
		UserID: user.ID,
		OrgID:  req.OrgID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    domain.Issuer,
			Subject:   strconv.FormatInt(user.ID.Int64(), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &domain.IssuedSession{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) Verify(ctx context.Context, token string) (*domain.SessionClaims, error) {
	if len(s.secret) == 0 {
		return nil, domain.ErrSecretNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrMissingToken
	}

	claims := &domain.SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(domain.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		s.log.Debug("session token rejected", zap.Error(err))
		return nil, domain.ErrInvalidToken
	}
	if !parsed.Valid || claims.UserID == 0 {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// Resolve verifies the token and loads the user it names. An org claim
// that no longer resolves is dropped rather than failing the session.
func (s *Service) Resolve(ctx context.Context, token string) (*domain.Identity, error) {
	claims, err := s.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.orgs.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, orgdomain.ErrUserNotFound) {
			return nil, domain.ErrUnknownUser
		}
		return nil, err
	}

	identity := &domain.Identity{
		UserID:  user.ID,
		Email:   user.Email,
		Name:    user.Name,
		IsAdmin: user.IsAdmin,
	}
	if claims.OrgID == 0 {
		return identity, nil
	}

	org, err := s.orgs.GetByID(ctx, claims.OrgID)
	switch {
	case err == nil:
		identity.OrgID = org.ID
		identity.OrgSlug = org.Slug
	case errors.Is(err, orgdomain.ErrNotFound):
		s.log.Info("session org no longer exists", zap.String("org_id", claims.OrgID.String()))
	default:
		return nil, err
	}
	return identity, nil
}
