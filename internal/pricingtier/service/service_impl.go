package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paygo/internal/clock"
	tierdomain "github.com/smallbiznis/paygo/internal/pricingtier/domain"
	"github.com/smallbiznis/paygo/internal/servicetype"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  tierdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  tierdomain.Repository
}

func New(p Params) tierdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("pricingtier.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) CreateOrUpdate(ctx context.Context, req tierdomain.UpsertRequest) (*tierdomain.Response, error) {
	st, err := servicetype.Parse(req.ServiceType)
	if err != nil {
		return nil, tierdomain.ErrInvalidServiceType
	}
	if req.MinTokens <= 0 {
		return nil, tierdomain.ErrInvalidMinTokens
	}
	// A tier carries exactly one rule: either a percent discount on the
	// base price or an absolute override price.
	if req.DiscountPercent == nil && req.PricePer1KTokens == nil {
		return nil, tierdomain.ErrMissingPriceRule
	}
	if req.DiscountPercent != nil && req.PricePer1KTokens != nil {
		return nil, tierdomain.ErrMissingPriceRule
	}
	if req.DiscountPercent != nil {
		if req.DiscountPercent.IsNegative() || req.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
			return nil, tierdomain.ErrInvalidDiscount
		}
	}
	if req.PricePer1KTokens != nil && req.PricePer1KTokens.IsNegative() {
		return nil, tierdomain.ErrInvalidOverride
	}

	now := s.clock.Now()
	entity := &tierdomain.PricingTier{
		ID:               s.genID.Generate(),
		ServiceType:      st,
		MinTokens:        req.MinTokens,
		DiscountPercent:  req.DiscountPercent,
		PricePer1KTokens: req.PricePer1KTokens,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Upsert(ctx, s.db, entity); err != nil {
		return nil, err
	}

	s.log.Info("pricing tier upserted",
		zap.String("service_type", st.String()),
		zap.Int64("min_tokens", req.MinTokens),
	)

	return toResponse(entity), nil
}

func (s *Service) List(ctx context.Context, serviceType servicetype.ServiceType) ([]tierdomain.Response, error) {
	items, err := s.repo.ListForService(ctx, s.db, serviceType)
	if err != nil {
		return nil, err
	}

	resp := make([]tierdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Delete(ctx context.Context, rawID string) error {
	id, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil {
		return tierdomain.ErrInvalidID
	}

	entity, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if entity == nil {
		return tierdomain.ErrNotFound
	}

	return s.repo.Delete(ctx, s.db, id)
}

func (s *Service) TierForUsage(
	ctx context.Context,
	serviceType servicetype.ServiceType,
	cumulativeTokens int64,
) (*tierdomain.PricingTier, error) {
	return s.repo.TierForUsage(ctx, s.db, serviceType, cumulativeTokens)
}

func toResponse(t *tierdomain.PricingTier) *tierdomain.Response {
	return &tierdomain.Response{
		ID:               t.ID.String(),
		ServiceType:      t.ServiceType.String(),
		MinTokens:        t.MinTokens,
		DiscountPercent:  t.DiscountPercent,
		PricePer1KTokens: t.PricePer1KTokens,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}
