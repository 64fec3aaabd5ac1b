package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/paygo/internal/account"
	accountdomain "github.com/smallbiznis/paygo/internal/account/domain"
	"github.com/smallbiznis/paygo/internal/config"
	"github.com/smallbiznis/paygo/internal/observability"
	obsmiddleware "github.com/smallbiznis/paygo/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paygo/internal/observability/metrics"
	obstracing "github.com/smallbiznis/paygo/internal/observability/tracing"
	"github.com/smallbiznis/paygo/internal/payment"
	paymentdomain "github.com/smallbiznis/paygo/internal/payment/domain"
	"github.com/smallbiznis/paygo/internal/pricing"
	pricingdomain "github.com/smallbiznis/paygo/internal/pricing/domain"
	"github.com/smallbiznis/paygo/internal/pricingtier"
	tierdomain "github.com/smallbiznis/paygo/internal/pricingtier/domain"
	"github.com/smallbiznis/paygo/internal/ratelimit"
	"github.com/smallbiznis/paygo/internal/rating"
	ratingdomain "github.com/smallbiznis/paygo/internal/rating/domain"
	"github.com/smallbiznis/paygo/internal/usage"
	usagedomain "github.com/smallbiznis/paygo/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	account.Module,
	pricing.Module,
	pricingtier.Module,
	rating.Module,
	ratelimit.Module,
	usage.Module,
	payment.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	genID        *snowflake.Node
	accountSvc   accountdomain.Service
	pricingSvc   pricingdomain.Service
	tierSvc      tierdomain.Service
	ratingSvc    ratingdomain.Service
	usageSvc     usagedomain.Service
	paymentSvc   paymentdomain.Service
	obsMetrics   *obsmetrics.Metrics
	usageLimiter *ratelimit.UsageLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	GenID        *snowflake.Node
	AccountSvc   accountdomain.Service
	PricingSvc   pricingdomain.Service
	TierSvc      tierdomain.Service
	RatingSvc    ratingdomain.Service
	UsageSvc     usagedomain.Service
	PaymentSvc   paymentdomain.Service
	ObsMetrics   *obsmetrics.Metrics     `optional:"true"`
	UsageLimiter *ratelimit.UsageLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		genID:        p.GenID,
		accountSvc:   p.AccountSvc,
		pricingSvc:   p.PricingSvc,
		tierSvc:      p.TierSvc,
		ratingSvc:    p.RatingSvc,
		usageSvc:     p.UsageSvc,
		paymentSvc:   p.PaymentSvc,
		obsMetrics:   p.ObsMetrics,
		usageLimiter: p.UsageLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/usage", s.UsageRateLimit(), s.RecordUsage)
	v1.GET("/pricing", s.ListCurrentPricing)
	v1.POST("/rating/estimate", s.EstimateUsage)

	accounts := v1.Group("/accounts/:id")
	{
		accounts.GET("/balance", s.GetBalance)
		accounts.GET("/usage", s.ListUsage)
		accounts.GET("/usage/summary", s.GetUsageSummary)
		accounts.GET("/payments", s.ListPayments)
		accounts.POST("/topup", s.CreateTopup)
	}

	v1.GET("/payments/:id", s.GetPayment)
	v1.POST("/payments/webhook/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/v1/admin")

	pricing := admin.Group("/pricing")
	{
		pricing.GET("", s.ListPricing)
		pricing.POST("", s.CreatePricing)
		pricing.PATCH("/:id", s.UpdatePricing)
		pricing.DELETE("/:id", s.DeletePricing)

		pricing.GET("/tiers", s.ListPricingTiers)
		pricing.POST("/tiers", s.UpsertPricingTier)
		pricing.DELETE("/tiers/:id", s.DeletePricingTier)
	}

	accounts := admin.Group("/accounts/:id")
	{
		accounts.PATCH("/status", s.ChangeAccountStatus)
		accounts.PATCH("/credit-limit", s.SetCreditLimit)
		accounts.POST("/adjust", s.AdjustBalance)
	}
}
