package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	accountdomain "github.com/smallbiznis/paygo/internal/account/domain"
	"github.com/smallbiznis/paygo/internal/clock"
	"github.com/smallbiznis/paygo/internal/config"
	obsmetrics "github.com/smallbiznis/paygo/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/paygo/internal/payment/domain"
	"github.com/smallbiznis/paygo/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Billing     *config.BillingConfigHolder
	AccountRepo accountdomain.Repository
	Repo        paymentdomain.Repository
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	billing     *config.BillingConfigHolder
	accountRepo accountdomain.Repository
	repo        paymentdomain.Repository
	metrics     *obsmetrics.Metrics
}

func New(p Params) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		billing:     p.Billing,
		accountRepo: p.AccountRepo,
		repo:        p.Repo,
		metrics:     p.Metrics,
	}
}

func (s *Service) CreateTopup(ctx context.Context, req paymentdomain.TopupRequest) (*paymentdomain.Payment, error) {
	accountID, err := parseID(req.AccountID)
	if err != nil {
		return nil, accountdomain.ErrInvalidID
	}

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		return nil, paymentdomain.ErrInvalidProvider
	}
	if !req.Amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}
	cfg := s.billing.Get()
	if req.Amount.LessThan(cfg.MinTopup()) {
		return nil, paymentdomain.ErrBelowMinimumTopup
	}

	account, err := s.accountRepo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, accountdomain.ErrNotFound
	}
	if account.Status == accountdomain.AccountStatusClosed {
		return nil, paymentdomain.ErrAccountClosed
	}

	now := s.clock.Now()
	payment := &paymentdomain.Payment{
		ID:          s.genID.Generate(),
		AccountID:   accountID,
		Amount:      req.Amount.Round(4),
		Currency:    account.Currency,
		Status:      paymentdomain.PaymentStatusPending,
		Type:        paymentdomain.PaymentTypeTopup,
		Provider:    provider,
		ExternalRef: uuid.NewString(),
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.InsertPayment(ctx, s.db, payment); err != nil {
		return nil, err
	}

	s.log.Info("topup created",
		zap.String("payment_id", payment.ID.String()),
		zap.String("account_id", accountID.String()),
		zap.String("amount", payment.Amount.String()),
		zap.String("provider", provider),
	)
	return payment, nil
}

func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.GatewayEvent) (*paymentdomain.ProcessResult, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	var result *paymentdomain.ProcessResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindPaymentByExternalRef(ctx, tx, event.ExternalRef)
		if err != nil {
			return err
		}
		if payment == nil {
			return paymentdomain.ErrNotFound
		}

		now := s.clock.Now()
		record := &paymentdomain.EventRecord{
			ID:              s.genID.Generate(),
			Provider:        event.Provider,
			ProviderEventID: event.ProviderEventID,
			EventType:       event.Type,
			PaymentID:       payment.ID,
			Payload:         datatypes.JSON(event.RawPayload),
			ReceivedAt:      now,
		}

		inserted, err := s.repo.InsertEvent(ctx, tx, record)
		if err != nil {
			return err
		}
		if !inserted {
			stored, err := s.repo.FindEvent(ctx, tx, event.Provider, event.ProviderEventID)
			if err != nil {
				return err
			}
			if stored == nil {
				return paymentdomain.ErrInvalidEvent
			}
			// A fully processed journal entry means the delivery is a
			// pure retry. An unprocessed one means we crashed between
			// journaling and settling, so run the settlement again.
			if stored.ProcessedAt != nil {
				result = &paymentdomain.ProcessResult{Payment: payment, Duplicate: true}
				return nil
			}
			record = stored
		}

		result, err = s.settle(ctx, tx, payment, event, now)
		if err != nil {
			return err
		}

		return s.repo.MarkEventProcessed(ctx, tx, record.ID, now)
	})
	if err != nil {
		return nil, err
	}

	if result.Applied {
		s.metrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}
	s.log.Info("payment event processed",
		zap.String("provider", event.Provider),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("event_type", event.Type),
		zap.Bool("applied", result.Applied),
		zap.Bool("duplicate", result.Duplicate),
	)
	return result, nil
}

// settle applies the event to the payment state machine. The completed
// transition and the balance credit commit together; a transition that
// finds the payment already terminal credits nothing.
func (s *Service) settle(
	ctx context.Context,
	tx *gorm.DB,
	payment *paymentdomain.Payment,
	event *paymentdomain.GatewayEvent,
	now time.Time,
) (*paymentdomain.ProcessResult, error) {
	switch event.Type {
	case paymentdomain.EventTypePaymentProcessing:
		ok, err := s.repo.TransitionStatus(ctx, tx, payment.ID,
			[]paymentdomain.PaymentStatus{paymentdomain.PaymentStatusPending},
			paymentdomain.PaymentStatusProcessing, nil, now)
		if err != nil {
			return nil, err
		}
		if ok {
			payment.Status = paymentdomain.PaymentStatusProcessing
		}
		return &paymentdomain.ProcessResult{Payment: payment, Applied: ok, AlreadySettled: !ok && payment.Status.Terminal()}, nil

	case paymentdomain.EventTypePaymentSucceeded:
		if !event.Amount.IsZero() && !event.Amount.Equal(payment.Amount) {
			return nil, paymentdomain.ErrAmountMismatch
		}
		ok, err := s.repo.TransitionStatus(ctx, tx, payment.ID,
			[]paymentdomain.PaymentStatus{paymentdomain.PaymentStatusPending, paymentdomain.PaymentStatusProcessing},
			paymentdomain.PaymentStatusCompleted, nil, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &paymentdomain.ProcessResult{Payment: payment, AlreadySettled: true}, nil
		}
		// A completed refund pulls the amount back out of the balance.
		delta := payment.Amount
		if payment.Type == paymentdomain.PaymentTypeRefund {
			delta = delta.Neg()
		}
		if _, err := s.accountRepo.CreditBalance(ctx, tx, payment.AccountID, delta, now); err != nil {
			return nil, err
		}
		if payment.Type != paymentdomain.PaymentTypeRefund {
			if _, err := s.accountRepo.ReactivateIfSolvent(ctx, tx, payment.AccountID, now); err != nil {
				return nil, err
			}
		}
		payment.Status = paymentdomain.PaymentStatusCompleted
		payment.CompletedAt = &now
		return &paymentdomain.ProcessResult{Payment: payment, Applied: true}, nil

	case paymentdomain.EventTypePaymentFailed, paymentdomain.EventTypePaymentCancelled:
		target := paymentdomain.PaymentStatusFailed
		if event.Type == paymentdomain.EventTypePaymentCancelled {
			target = paymentdomain.PaymentStatusCancelled
		}
		var reason *string
		if r := strings.TrimSpace(event.Reason); r != "" {
			reason = &r
		}
		ok, err := s.repo.TransitionStatus(ctx, tx, payment.ID,
			[]paymentdomain.PaymentStatus{paymentdomain.PaymentStatusPending, paymentdomain.PaymentStatusProcessing},
			target, reason, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &paymentdomain.ProcessResult{Payment: payment, AlreadySettled: true}, nil
		}
		payment.Status = target
		payment.FailureReason = reason
		return &paymentdomain.ProcessResult{Payment: payment, Applied: true}, nil

	default:
		return nil, paymentdomain.ErrUnknownEventType
	}
}

func (s *Service) Get(ctx context.Context, rawID string) (*paymentdomain.Payment, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, paymentdomain.ErrInvalidID
	}
	payment, err := s.repo.FindPaymentByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrNotFound
	}
	return payment, nil
}

func (s *Service) History(ctx context.Context, req paymentdomain.HistoryRequest) (*paymentdomain.HistoryResponse, error) {
	accountID, err := parseID(req.AccountID)
	if err != nil {
		return nil, accountdomain.ErrInvalidID
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 20
	}

	var afterID *snowflake.ID
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, err
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, err
		}
		afterID = &id
	}

	payments, err := s.repo.ListPayments(ctx, s.db, accountID, afterID, limit)
	if err != nil {
		return nil, err
	}

	payments, pageInfo := pagination.BuildCursorPageInfo(payments, limit, func(p paymentdomain.Payment) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: p.ID.String()})
		return token
	})

	return &paymentdomain.HistoryResponse{Payments: payments, PageInfo: pageInfo}, nil
}

func validateEvent(event *paymentdomain.GatewayEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.ExternalRef = strings.TrimSpace(event.ExternalRef)
	if event.ExternalRef == "" {
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
