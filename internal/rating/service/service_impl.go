package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paygo/internal/clock"
	pricingdomain "github.com/smallbiznis/paygo/internal/pricing/domain"
	tierdomain "github.com/smallbiznis/paygo/internal/pricingtier/domain"
	ratingdomain "github.com/smallbiznis/paygo/internal/rating/domain"
	"github.com/smallbiznis/paygo/internal/servicetype"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Pricing  pricingdomain.Service
	TierRepo tierdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	pricing  pricingdomain.Service
	tierRepo tierdomain.Repository
}

func New(p Params) ratingdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("rating.service"),
		clock:    p.Clock,
		pricing:  p.Pricing,
		tierRepo: p.TierRepo,
	}
}

type accountRow struct {
	ID          snowflake.ID
	Balance     decimal.Decimal
	CreditLimit decimal.Decimal
}

func (s *Service) Estimate(ctx context.Context, req ratingdomain.EstimateRequest) (*ratingdomain.EstimateResponse, error) {
	st, err := servicetype.Parse(req.ServiceType)
	if err != nil {
		return nil, ratingdomain.ErrInvalidServiceType
	}
	if req.Tokens <= 0 {
		return nil, ratingdomain.ErrInvalidTokens
	}

	pricing, err := s.pricing.Resolve(ctx, st, s.clock.Now())
	if err != nil {
		return nil, err
	}

	var (
		account    *accountRow
		cumulative int64
	)
	if strings.TrimSpace(req.AccountID) != "" {
		accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
		if err != nil {
			return nil, ratingdomain.ErrInvalidAccount
		}
		account, err = s.loadAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, ratingdomain.ErrAccountNotFound
		}
		cumulative, err = s.cumulativeTokens(ctx, accountID, st)
		if err != nil {
			return nil, err
		}
	}

	tier, err := s.tierRepo.TierForUsage(ctx, s.db, st, cumulative)
	if err != nil {
		return nil, err
	}

	calc := ratingdomain.Calculate(req.Tokens, pricing, tier)

	resp := &ratingdomain.EstimateResponse{
		Calculation:      calc,
		CumulativeTokens: cumulative,
	}
	if account != nil {
		available := account.Balance.Add(account.CreditLimit)
		affordable := available.GreaterThanOrEqual(calc.TotalCost)
		resp.Affordable = &affordable
		resp.AvailableBalance = &available
	}
	return resp, nil
}

func (s *Service) loadAccount(ctx context.Context, id snowflake.ID) (*accountRow, error) {
	var row accountRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, balance, credit_limit
		 FROM service_accounts
		 WHERE id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (s *Service) cumulativeTokens(ctx context.Context, accountID snowflake.ID, st servicetype.ServiceType) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(total_tokens, 0)
		 FROM usage_totals
		 WHERE account_id = ? AND service_type = ?`,
		accountID,
		st,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
