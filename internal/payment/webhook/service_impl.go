package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/gitwallet/market/internal/charge/domain"
	"github.com/gitwallet/market/internal/clock"
	"github.com/gitwallet/market/internal/observability/logger"
	"github.com/gitwallet/market/internal/observability/metrics"
	orgdomain "github.com/gitwallet/market/internal/organization/domain"
	paymentdomain "github.com/gitwallet/market/internal/payment/domain"
	"github.com/gitwallet/market/internal/ratelimit"
	subscriptiondomain "github.com/gitwallet/market/internal/subscription/domain"
	"github.com/gitwallet/market/pkg/db/pagination"
	"github.com/gitwallet/market/pkg/telemetry/correlation"
	stripego "github.com/stripe/stripe-go/v82"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Repo           paymentdomain.Repository
	Verifier       paymentdomain.EventVerifier
	Subscriptions  subscriptiondomain.Service
	Charges        chargedomain.Service
	Orgs           orgdomain.Service
	EventLock      *ratelimit.EventLock    `optional:"true"`
	Metrics        *metrics.Metrics        `optional:"true"`
	WebhookMetrics *metrics.WebhookMetrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           paymentdomain.Repository
	verifier       paymentdomain.EventVerifier
	subscriptions  subscriptiondomain.Service
	charges        chargedomain.Service
	orgs           orgdomain.Service
	eventLock      *ratelimit.EventLock
	metrics        *metrics.Metrics
	webhookMetrics *metrics.WebhookMetrics

	handlers map[string]map[string]handlerFunc
}

func NewService(p Params) paymentdomain.WebhookService {
	s := &Service{
		db:             p.DB,
		log:            p.Log.Named("payment.webhook"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		verifier:       p.Verifier,
		subscriptions:  p.Subscriptions,
		charges:        p.Charges,
		orgs:           p.Orgs,
		eventLock:      p.EventLock,
		metrics:        p.Metrics,
		webhookMetrics: p.WebhookMetrics,
	}
	s.handlers = map[string]map[string]handlerFunc{
		paymentdomain.SourceConnect:  s.connectHandlers(),
		paymentdomain.SourcePlatform: s.platformHandlers(),
	}
	return s
}

func (s *Service) Ingest(ctx context.Context, source string, payload []byte, signature string) (*paymentdomain.Result, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	event, err := s.verifier.Verify(source, payload, signature)
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, source, "unverified", "rejected")
		s.log.Warn("stripe webhook rejected", zap.String("stripe_source", source), zap.Error(err))
		return nil, err
	}

	record, err := s.store(ctx, source, event, payload)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, record, event)
}

// Process replays a stored event through the same path as a live delivery.
func (s *Service) Process(ctx context.Context, id snowflake.ID) (*paymentdomain.Result, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var event stripego.Event
	if err := json.Unmarshal(record.Payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	return s.run(ctx, record, event)
}

func (s *Service) store(ctx context.Context, source string, event stripego.Event, payload []byte) (*paymentdomain.StripeEvent, error) {
	record := &paymentdomain.StripeEvent{
		ID:            s.genID.Generate(),
		StripeEventID: event.ID,
		Source:        source,
		Type:          string(event.Type),
		Payload:       datatypes.JSON(payload),
		ReceivedAt:    s.clock.Now(),
	}
	if account := strings.TrimSpace(event.Account); account != "" {
		record.AccountID = &account
	}

	inserted, err := s.repo.InsertIfAbsent(ctx, s.db, record)
	if err != nil {
		return nil, err
	}
	if inserted {
		return record, nil
	}

	existing, err := s.repo.FindByStripeID(ctx, s.db, event.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, paymentdomain.ErrEventNotFound
	}
	return existing, nil
}

func (s *Service) run(ctx context.Context, record *paymentdomain.StripeEvent, event stripego.Event) (*paymentdomain.Result, error) {
	started := time.Now()
	ctx, _ = correlation.Ensure(ctx)
	log := logger.WithStripeEvent(logger.WithContext(ctx, s.log), record.Source, record.StripeEventID, record.Type)

	result := &paymentdomain.Result{EventID: record.StripeEventID, Type: record.Type}
	finish := func(outcome string) {
		result.Outcome = outcome
		s.metrics.RecordWebhookEvent(ctx, record.Source, record.Type, outcome)
		s.webhookMetrics.ObserveDuration(record.Source, outcome, time.Since(started))
	}

	if record.Processed {
		finish(paymentdomain.OutcomeDuplicate)
		log.Info("stripe event already processed")
		return result, nil
	}

	unlock, held, err := s.eventLock.Acquire(ctx, record.StripeEventID)
	switch {
	case err != nil:
		log.Warn("in-flight lock unavailable", zap.Error(err))
	case !held:
		log.Warn("stripe event is already in flight")
		return nil, paymentdomain.ErrEventInFlight
	default:
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				log.Warn("in-flight lock release failed", zap.Error(err))
			}
		}()
	}

	handler := s.handlers[record.Source][record.Type]
	outcome := paymentdomain.OutcomeProcessed
	if handler == nil {
		outcome = paymentdomain.OutcomeIgnored
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.repo.Claim(ctx, tx, record.ID, s.clock.Now())
		if err != nil {
			return err
		}
		if !won {
			outcome = paymentdomain.OutcomeDuplicate
			return nil
		}
		if handler == nil {
			return nil
		}
		return handler(ctx, tx, event)
	})
	if err != nil {
		if recordErr := s.repo.RecordError(ctx, s.db, record.ID, err.Error()); recordErr != nil {
			log.Error("failed to record stripe event error", zap.Error(recordErr))
		}
		s.webhookMetrics.IncFailure(record.Source, record.Type)

		if deferrable(err) {
			finish(paymentdomain.OutcomeDeferred)
			log.Warn("stripe event deferred", zap.Error(err))
			return result, nil
		}
		finish(paymentdomain.OutcomeFailed)
		log.Error("stripe event processing failed", zap.Error(err))
		return result, err
	}

	finish(outcome)
	log.Info("stripe event handled", zap.String("outcome", outcome), logger.Elapsed(started))
	return result, nil
}

// deferrable reports errors a redelivery cannot fix, such as records that
// do not exist yet or malformed objects. The event stays unprocessed for
// replay while the vendor stops retrying.
func deferrable(err error) bool {
	for _, target := range []error{
		subscriptiondomain.ErrNotFound,
		subscriptiondomain.ErrTierVersionNotFound,
		chargedomain.ErrNotFound,
		chargedomain.ErrTierVersionNotFound,
		orgdomain.ErrAccountNotFound,
		orgdomain.ErrBillingNotFound,
		paymentdomain.ErrInvalidPayload,
		paymentdomain.ErrMissingCustomer,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*paymentdomain.StripeEvent, error) {
	record, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, paymentdomain.ErrEventNotFound
	}
	return record, nil
}

func (s *Service) List(ctx context.Context, req paymentdomain.ListRequest) (paymentdomain.ListResponse, error) {
	filter := paymentdomain.ListFilter{
		Source:    strings.TrimSpace(req.Source),
		Type:      strings.TrimSpace(req.Type),
		Processed: req.Processed,
		Limit:     req.Limit() + 1,
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return paymentdomain.ListResponse{}, err
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return paymentdomain.ListResponse{}, pagination.ErrInvalidPageToken
		}
		filter.AfterID = afterID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return paymentdomain.ListResponse{}, err
	}
	items, pageInfo, err := pagination.Trim(items, req.Limit(), func(event paymentdomain.StripeEvent) pagination.Cursor {
		return pagination.Cursor{ID: strconv.FormatInt(event.ID.Int64(), 10)}
	})
	if err != nil {
		return paymentdomain.ListResponse{}, err
	}
	return paymentdomain.ListResponse{PageInfo: pageInfo, Events: items}, nil
}
