package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paygo/internal/clock"
	pricingdomain "github.com/smallbiznis/paygo/internal/pricing/domain"
	tierdomain "github.com/smallbiznis/paygo/internal/pricingtier/domain"
	"github.com/smallbiznis/paygo/internal/servicetype"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     pricingdomain.Repository
	TierRepo tierdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     pricingdomain.Repository
	tierRepo tierdomain.Repository
}

func New(p Params) pricingdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("pricing.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		tierRepo: p.TierRepo,
	}
}

func (s *Service) Create(ctx context.Context, req pricingdomain.CreateRequest) (*pricingdomain.Response, error) {
	st, err := servicetype.Parse(req.ServiceType)
	if err != nil {
		return nil, pricingdomain.ErrInvalidServiceType
	}
	if req.PricePer1KTokens.IsNegative() {
		return nil, pricingdomain.ErrInvalidPrice
	}
	if req.MinTokens < 0 {
		return nil, pricingdomain.ErrInvalidMinTokens
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, pricingdomain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	effectiveFrom := now
	if req.EffectiveFrom != nil {
		effectiveFrom = req.EffectiveFrom.UTC()
	}

	entity := &pricingdomain.Pricing{
		ID:               s.genID.Generate(),
		ServiceType:      st,
		PricePer1KTokens: req.PricePer1KTokens.Round(4),
		MinTokens:        req.MinTokens,
		Currency:         currency,
		EffectiveFrom:    effectiveFrom,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// Closing the open record and inserting the replacement must land
	// together, otherwise a window with zero or two open records exists.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.CloseOpen(ctx, tx, st, effectiveFrom); err != nil {
			return err
		}
		return s.repo.Insert(ctx, tx, entity)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("pricing created",
		zap.String("service_type", st.String()),
		zap.String("price_per_1k", entity.PricePer1KTokens.String()),
		zap.Time("effective_from", effectiveFrom),
	)

	return toResponse(entity), nil
}

func (s *Service) Update(ctx context.Context, req pricingdomain.UpdateRequest) (*pricingdomain.Response, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return nil, pricingdomain.ErrInvalidID
	}

	entity, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, pricingdomain.ErrNotFound
	}

	if req.PricePer1KTokens != nil {
		if req.PricePer1KTokens.IsNegative() {
			return nil, pricingdomain.ErrInvalidPrice
		}
		entity.PricePer1KTokens = req.PricePer1KTokens.Round(4)
	}
	if req.MinTokens != nil {
		if *req.MinTokens < 0 {
			return nil, pricingdomain.ErrInvalidMinTokens
		}
		entity.MinTokens = *req.MinTokens
	}
	if req.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*req.Currency))
		if currency == "" {
			return nil, pricingdomain.ErrInvalidCurrency
		}
		entity.Currency = currency
	}
	entity.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, entity); err != nil {
		return nil, err
	}

	return toResponse(entity), nil
}

func (s *Service) Delete(ctx context.Context, rawID string) error {
	id, err := parseID(rawID)
	if err != nil {
		return pricingdomain.ErrInvalidID
	}

	entity, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if entity == nil {
		return pricingdomain.ErrNotFound
	}

	// Usage records copy the cost at billing time, but the record itself
	// stays referenced for audit as long as usage fell inside its window.
	used, err := s.repo.CountUsageInWindow(ctx, s.db, entity.ServiceType, entity.EffectiveFrom, entity.EffectiveUntil)
	if err != nil {
		return err
	}
	if used > 0 {
		return pricingdomain.ErrPricingInUse
	}

	return s.repo.Delete(ctx, s.db, id)
}

func (s *Service) Resolve(
	ctx context.Context,
	serviceType servicetype.ServiceType,
	at time.Time,
) (*pricingdomain.Pricing, error) {
	pricing, err := s.repo.FindEffective(ctx, s.db, serviceType, at)
	if err != nil {
		return nil, err
	}
	if pricing == nil {
		return nil, pricingdomain.ErrNoPricingConfigured
	}
	return pricing, nil
}

func (s *Service) Current(
	ctx context.Context,
	serviceType *servicetype.ServiceType,
) ([]pricingdomain.CurrentPricing, error) {
	now := s.clock.Now()
	active, err := s.repo.ListEffective(ctx, s.db, now)
	if err != nil {
		return nil, err
	}

	out := make([]pricingdomain.CurrentPricing, 0, len(active))
	for i := range active {
		p := &active[i]
		if serviceType != nil && p.ServiceType != *serviceType {
			continue
		}

		tiers, err := s.tierRepo.ListForService(ctx, s.db, p.ServiceType)
		if err != nil {
			return nil, err
		}

		schedule := make([]pricingdomain.TierSchedule, 0, len(tiers))
		monotonic := true
		prev := p.PricePer1KTokens
		for j := range tiers {
			t := &tiers[j]
			effective := t.EffectivePrice(p.PricePer1KTokens)
			if effective.GreaterThan(prev) {
				monotonic = false
			}
			prev = effective
			schedule = append(schedule, pricingdomain.TierSchedule{
				MinTokens:        t.MinTokens,
				DiscountPercent:  t.DiscountPercent,
				PricePer1KTokens: t.PricePer1KTokens,
				EffectivePrice:   effective,
			})
		}

		out = append(out, pricingdomain.CurrentPricing{
			ServiceType:      p.ServiceType.String(),
			Label:            p.ServiceType.Label(),
			PricePer1KTokens: p.PricePer1KTokens,
			MinTokens:        p.MinTokens,
			Currency:         p.Currency,
			EffectiveFrom:    p.EffectiveFrom,
			Tiers:            schedule,
			Monotonic:        monotonic,
		})
	}

	return out, nil
}

func (s *Service) List(
	ctx context.Context,
	serviceType *servicetype.ServiceType,
) ([]pricingdomain.Response, error) {
	items, err := s.repo.List(ctx, s.db, serviceType)
	if err != nil {
		return nil, err
	}

	resp := make([]pricingdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

func toResponse(p *pricingdomain.Pricing) *pricingdomain.Response {
	return &pricingdomain.Response{
		ID:               p.ID.String(),
		ServiceType:      p.ServiceType.String(),
		PricePer1KTokens: p.PricePer1KTokens,
		MinTokens:        p.MinTokens,
		Currency:         p.Currency,
		EffectiveFrom:    p.EffectiveFrom,
		EffectiveUntil:   p.EffectiveUntil,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
