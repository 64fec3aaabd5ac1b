package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/paygo/internal/account/domain"
	"github.com/smallbiznis/paygo/internal/clock"
	"github.com/smallbiznis/paygo/internal/config"
	obsmetrics "github.com/smallbiznis/paygo/internal/observability/metrics"
	pricingdomain "github.com/smallbiznis/paygo/internal/pricing/domain"
	tierdomain "github.com/smallbiznis/paygo/internal/pricingtier/domain"
	ratingdomain "github.com/smallbiznis/paygo/internal/rating/domain"
	"github.com/smallbiznis/paygo/internal/servicetype"
	usagedomain "github.com/smallbiznis/paygo/internal/usage/domain"
	"github.com/smallbiznis/paygo/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errVersionRace signals that another writer advanced the account
// between our read and write. The whole transaction replays.
var errVersionRace = errors.New("version_race")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Billing     *config.BillingConfigHolder
	AccountSvc  accountdomain.Service
	AccountRepo accountdomain.Repository
	Pricing     pricingdomain.Service
	TierRepo    tierdomain.Repository
	Repo        usagedomain.Repository
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	billing     *config.BillingConfigHolder
	accountSvc  accountdomain.Service
	accountRepo accountdomain.Repository
	pricing     pricingdomain.Service
	tierRepo    tierdomain.Repository
	repo        usagedomain.Repository
	metrics     *obsmetrics.Metrics
}

func New(p Params) usagedomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("usage.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		billing:     p.Billing,
		accountSvc:  p.AccountSvc,
		accountRepo: p.AccountRepo,
		pricing:     p.Pricing,
		tierRepo:    p.TierRepo,
		repo:        p.Repo,
		metrics:     p.Metrics,
	}
}

func (s *Service) Record(ctx context.Context, req usagedomain.RecordRequest) (*usagedomain.RecordResponse, error) {
	st, err := servicetype.Parse(req.ServiceType)
	if err != nil {
		return nil, usagedomain.ErrInvalidServiceType
	}
	if req.Tokens <= 0 {
		return nil, usagedomain.ErrInvalidTokens
	}

	account, err := s.accountSvc.GetOrCreateForUser(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, accountdomain.ErrInvalidUser) {
			return nil, usagedomain.ErrInvalidAccount
		}
		return nil, err
	}

	recordedAt := s.clock.Now()
	if req.RecordedAt != nil {
		recordedAt = req.RecordedAt.UTC()
	}

	// The catalog is append-only, so the price can resolve outside the
	// recording transaction.
	pricing, err := s.pricing.Resolve(ctx, st, recordedAt)
	if err != nil {
		return nil, err
	}

	cfg := s.billing.Get()
	attempts := cfg.MaxRecordRetry
	if attempts < 1 {
		attempts = 1
	}

	var resp *usagedomain.RecordResponse
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err = s.tryRecord(ctx, account.ID, st, req, pricing, recordedAt, cfg.OverdraftPolicy)
		if errors.Is(err, errVersionRace) {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}
	if errors.Is(err, errVersionRace) {
		s.log.Warn("usage recording lost version race repeatedly",
			zap.String("account_id", account.ID.String()),
			zap.Int("attempts", attempts),
		)
		return nil, usagedomain.ErrConcurrencyExhausted
	}

	s.metrics.RecordUsage(ctx, st.String(), req.Tokens)
	if resp.AccountStatus == string(accountdomain.AccountStatusSuspended) {
		s.metrics.RecordSuspension(ctx)
	}

	s.log.Info("usage recorded",
		zap.String("record_id", resp.RecordID),
		zap.String("account_id", resp.AccountID),
		zap.String("service_type", st.String()),
		zap.Int64("tokens", req.Tokens),
		zap.String("cost", resp.TotalCost.String()),
		zap.String("balance_after", resp.BalanceAfter.String()),
	)

	return resp, nil
}

// tryRecord performs one attempt of the recording transaction. Either
// the ledger line, the balance debit, the counter bump and any
// suspension all commit, or none of them do.
func (s *Service) tryRecord(
	ctx context.Context,
	accountID snowflake.ID,
	st servicetype.ServiceType,
	req usagedomain.RecordRequest,
	pricing *pricingdomain.Pricing,
	recordedAt time.Time,
	policy config.OverdraftPolicy,
) (*usagedomain.RecordResponse, error) {
	var resp *usagedomain.RecordResponse

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.FindByID(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return usagedomain.ErrAccountNotFound
		}
		if account.Status != accountdomain.AccountStatusActive {
			return accountdomain.ErrAccountInactive
		}

		var cumulative int64
		if total, err := s.repo.GetTotal(ctx, tx, accountID, st); err != nil {
			return err
		} else if total != nil {
			cumulative = total.TotalTokens
		}

		tier, err := s.tierRepo.TierForUsage(ctx, tx, st, cumulative)
		if err != nil {
			return err
		}

		calc := ratingdomain.Calculate(req.Tokens, pricing, tier)

		if policy == config.OverdraftStrict && account.Available().LessThan(calc.TotalCost) {
			return accountdomain.ErrInsufficientBalance
		}

		now := s.clock.Now()
		newBalance := account.Balance.Sub(calc.TotalCost)
		newStatus := account.Status
		if newBalance.IsNegative() && account.CreditLimit.IsZero() {
			newStatus = accountdomain.AccountStatusSuspended
		}

		ok, err := s.accountRepo.ApplyBalanceChange(ctx, tx, accountID, account.Version, newBalance, newStatus, now)
		if err != nil {
			return err
		}
		if !ok {
			return errVersionRace
		}

		record := &usagedomain.UsageRecord{
			ID:               s.genID.Generate(),
			AccountID:        accountID,
			ServiceType:      st,
			Tokens:           calc.TokensRequested,
			BillableTokens:   calc.BillableTokens,
			ActionType:       strings.TrimSpace(req.ActionType),
			BasePrice:        calc.BasePrice,
			EffectivePrice:   calc.EffectivePrice,
			DiscountPercent:  calc.DiscountPercent,
			Cost:             calc.TotalCost,
			Currency:         calc.Currency,
			BalanceAfter:     newBalance,
			CumulativeBefore: cumulative,
			Metadata:         datatypes.JSONMap(req.Metadata),
			RecordedAt:       recordedAt,
			CreatedAt:        now,
		}
		if err := s.repo.InsertRecord(ctx, tx, record); err != nil {
			return err
		}

		if err := s.repo.IncrementTotal(ctx, tx, accountID, st, calc.TokensRequested, calc.TotalCost, now); err != nil {
			return err
		}

		resp = &usagedomain.RecordResponse{
			RecordID:         record.ID.String(),
			AccountID:        accountID.String(),
			Calculation:      calc,
			BalanceAfter:     newBalance,
			AccountStatus:    string(newStatus),
			CumulativeTokens: cumulative + calc.TokensRequested,
			RecordedAt:       recordedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) History(ctx context.Context, req usagedomain.HistoryRequest) (*usagedomain.HistoryResponse, error) {
	accountID, err := parseID(req.AccountID)
	if err != nil {
		return nil, usagedomain.ErrInvalidAccount
	}

	filter := usagedomain.RecordFilter{From: req.From, To: req.To}
	if strings.TrimSpace(req.ServiceType) != "" {
		st, err := servicetype.Parse(req.ServiceType)
		if err != nil {
			return nil, usagedomain.ErrInvalidServiceType
		}
		filter.ServiceType = &st
	}
	if action := strings.TrimSpace(req.ActionType); action != "" {
		filter.ActionType = &action
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

	records, err := s.repo.ListRecords(ctx, s.db, accountID, filter, afterID, limit)
	if err != nil {
		return nil, err
	}

	totalTokens, totalCost, err := s.repo.SumFiltered(ctx, s.db, accountID, filter)
	if err != nil {
		return nil, err
	}

	records, pageInfo := pagination.BuildCursorPageInfo(records, limit, func(r usagedomain.UsageRecord) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: r.ID.String()})
		return token
	})

	return &usagedomain.HistoryResponse{
		Records:     records,
		TotalTokens: totalTokens,
		TotalCost:   totalCost,
		PageInfo:    pageInfo,
	}, nil
}

func (s *Service) Summary(ctx context.Context, rawAccountID string) (*usagedomain.SummaryResponse, error) {
	accountID, err := parseID(rawAccountID)
	if err != nil {
		return nil, usagedomain.ErrInvalidAccount
	}

	totals, err := s.repo.ListTotals(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}

	services := make([]usagedomain.ServiceSummary, 0, len(totals))
	for i := range totals {
		t := &totals[i]
		services = append(services, usagedomain.ServiceSummary{
			ServiceType: t.ServiceType.String(),
			Label:       t.ServiceType.Label(),
			TotalTokens: t.TotalTokens,
			TotalCost:   t.TotalCost,
			RecordCount: t.RecordCount,
		})
	}

	return &usagedomain.SummaryResponse{
		AccountID: accountID.String(),
		Services:  services,
	}, nil
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
