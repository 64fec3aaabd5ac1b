package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/paygo/internal/account/domain"
	"github.com/smallbiznis/paygo/internal/clock"
	"github.com/smallbiznis/paygo/internal/config"
	"github.com/smallbiznis/paygo/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
	Repo    accountdomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	billing *config.BillingConfigHolder
	repo    accountdomain.Repository
}

func New(p Params) accountdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("account.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		billing: p.Billing,
		repo:    p.Repo,
	}
}

func (s *Service) GetOrCreateForUser(ctx context.Context, userID string) (*accountdomain.ServiceAccount, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, accountdomain.ErrInvalidUser
	}

	account, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}

	now := s.clock.Now()
	account = &accountdomain.ServiceAccount{
		ID:          s.genID.Generate(),
		UserID:      userID,
		Status:      accountdomain.AccountStatusActive,
		Balance:     decimal.Zero,
		CreditLimit: decimal.Zero,
		Currency:    s.billing.Get().DefaultCurrency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, account); err != nil {
		// Two first touches can race; the unique user index picks the
		// winner and we read their row back.
		if db.IsDuplicateKeyErr(err) {
			return s.repo.FindByUserID(ctx, s.db, userID)
		}
		return nil, err
	}

	s.log.Info("service account created",
		zap.String("account_id", account.ID.String()),
		zap.String("user_id", userID),
	)
	return account, nil
}

func (s *Service) Get(ctx context.Context, rawID string) (*accountdomain.ServiceAccount, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, accountdomain.ErrInvalidID
	}
	account, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, accountdomain.ErrNotFound
	}
	return account, nil
}

func (s *Service) GetBalance(ctx context.Context, rawID string) (*accountdomain.BalanceView, error) {
	account, err := s.Get(ctx, rawID)
	if err != nil {
		return nil, err
	}
	return toBalanceView(account), nil
}

func (s *Service) Adjust(ctx context.Context, req accountdomain.AdjustRequest) (*accountdomain.BalanceView, error) {
	id, err := parseID(req.AccountID)
	if err != nil {
		return nil, accountdomain.ErrInvalidID
	}
	if req.Amount.IsZero() {
		return nil, accountdomain.ErrInvalidAmount
	}
	amount := req.Amount.Round(4)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if account == nil {
			return accountdomain.ErrNotFound
		}
		now := s.clock.Now()
		if _, err := s.repo.CreditBalance(ctx, tx, id, amount, now); err != nil {
			return err
		}
		if amount.IsPositive() {
			if _, err := s.repo.ReactivateIfSolvent(ctx, tx, id, now); err != nil {
				return err
			}
		}
		return s.repo.InsertAdjustmentPayment(ctx, tx,
			s.genID.Generate(), id, amount, account.Currency,
			uuid.NewString(), strings.TrimSpace(req.Reason), now)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("balance adjusted",
		zap.String("account_id", id.String()),
		zap.String("amount", amount.String()),
		zap.String("reason", req.Reason),
	)

	account, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return toBalanceView(account), nil
}

func (s *Service) ChangeStatus(ctx context.Context, rawID string, status accountdomain.AccountStatus) (*accountdomain.ServiceAccount, error) {
	account, err := s.Get(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if !account.Status.CanTransition(status) {
		return nil, accountdomain.ErrInvalidStatusTransition
	}

	now := s.clock.Now()
	if err := s.repo.UpdateStatus(ctx, s.db, account.ID, status, now); err != nil {
		return nil, err
	}

	s.log.Info("account status changed",
		zap.String("account_id", account.ID.String()),
		zap.String("from", string(account.Status)),
		zap.String("to", string(status)),
	)

	account.Status = status
	account.UpdatedAt = now
	return account, nil
}

func (s *Service) SetCreditLimit(ctx context.Context, rawID string, limit decimal.Decimal) (*accountdomain.ServiceAccount, error) {
	if limit.IsNegative() {
		return nil, accountdomain.ErrInvalidCreditLimit
	}
	account, err := s.Get(ctx, rawID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.repo.UpdateCreditLimit(ctx, s.db, account.ID, limit.Round(4), now); err != nil {
		return nil, err
	}

	account.CreditLimit = limit.Round(4)
	account.UpdatedAt = now
	return account, nil
}

func toBalanceView(a *accountdomain.ServiceAccount) *accountdomain.BalanceView {
	return &accountdomain.BalanceView{
		AccountID:   a.ID.String(),
		UserID:      a.UserID,
		Status:      a.Status,
		Balance:     a.Balance,
		CreditLimit: a.CreditLimit,
		Available:   a.Available(),
		Currency:    a.Currency,
		UpdatedAt:   a.UpdatedAt,
	}
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
