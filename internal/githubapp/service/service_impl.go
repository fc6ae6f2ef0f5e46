package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gitwallet/market/internal/clock"
	"github.com/gitwallet/market/internal/config"
	"github.com/gitwallet/market/internal/githubapp/domain"
	orgdomain "github.com/gitwallet/market/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const signaturePrefix = "sha256="

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	orgs   orgdomain.Service
	secret []byte
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config
	Repo   domain.Repository
	Orgs   orgdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("githubapp.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		orgs:   p.Orgs,
		secret: []byte(p.Config.GitHubApp.WebhookSecret),
	}
}

func (s *Service) Handle(ctx context.Context, payload []byte, signature string) (domain.Outcome, error) {
	if len(s.secret) > 0 && !s.verify(payload, signature) {
		return "", domain.ErrInvalidSignature
	}

	var event domain.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", domain.ErrInvalidPayload
	}

	log := s.log.With(
		zap.String("action", event.Action),
		zap.Int64("installation_id", event.Installation.ID),
	)

	switch event.Action {
	case domain.ActionCreated:
		if event.Installation.ID == 0 {
			return "", domain.ErrInvalidPayload
		}
		if err := s.install(ctx, event); err != nil {
			return "", err
		}
		log.Info("github app installed", zap.String("account", event.Installation.Account.Login))
		return domain.OutcomeInstalled, nil
	case domain.ActionDeleted:
		if event.Installation.ID == 0 {
			return "", domain.ErrInvalidPayload
		}
		removed, err := s.repo.DeleteByInstallationID(ctx, s.db, event.Installation.ID)
		if err != nil {
			return "", err
		}
		log.Info("github app uninstalled", zap.Int64("rows", removed))
		return domain.OutcomeUninstalled, nil
	default:
		log.Debug("github app action ignored")
		return domain.OutcomeIgnored, nil
	}
}

func (s *Service) install(ctx context.Context, event domain.Event) error {
	now := s.clock.Now()
	installation := domain.Installation{
		ID:             s.genID.Generate(),
		InstallationID: event.Installation.ID,
		AccountID:      event.Installation.Account.ID,
		AccountLogin:   strings.TrimSpace(event.Installation.Account.Login),
		AccountType:    event.Installation.Account.Type,
		SenderID:       event.Sender.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	user, err := s.orgs.GetUserByGitHubID(ctx, event.Sender.ID)
	switch {
	case err == nil:
		installation.UserID = &user.ID
	case errors.Is(err, orgdomain.ErrUserNotFound):
	default:
		return err
	}

	return s.repo.Upsert(ctx, s.db, &installation)
}

func (s *Service) verify(payload []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

func (s *Service) Get(ctx context.Context, installationID int64) (*domain.Installation, error) {
	return s.repo.FindByInstallationID(ctx, s.db, installationID)
}
