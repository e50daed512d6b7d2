package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	auditdomain "github.com/smallbiznis/botquota/internal/audit/domain"
	botdomain "github.com/smallbiznis/botquota/internal/botregistry/domain"
	"github.com/smallbiznis/botquota/internal/config"
	ledgerdomain "github.com/smallbiznis/botquota/internal/ledger/domain"
	lifecycledomain "github.com/smallbiznis/botquota/internal/lifecycle/domain"
	"github.com/smallbiznis/botquota/internal/observability"
	obslogger "github.com/smallbiznis/botquota/internal/observability/logger"
	obstracing "github.com/smallbiznis/botquota/internal/observability/tracing"
	retentiondomain "github.com/smallbiznis/botquota/internal/retention/domain"
	"github.com/smallbiznis/botquota/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http.server.failed", zap.String("addr", addr), zap.Error(err))
				}
			}()
			log.Info("http.server.started", zap.String("addr", addr))
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
	db           *gorm.DB
	log          *zap.Logger
	accountSvc   accountdomain.Service
	ledgerSvc    ledgerdomain.Service
	auditSvc     auditdomain.Service
	botSvc       botdomain.Service
	lifecycleSvc lifecycledomain.Service
	retentionSvc retentiondomain.Service
	scheduler    *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	DB           *gorm.DB
	Log          *zap.Logger
	AccountSvc   accountdomain.Service
	LedgerSvc    ledgerdomain.Service
	AuditSvc     auditdomain.Service
	BotSvc       botdomain.Service
	LifecycleSvc lifecycledomain.Service
	RetentionSvc retentiondomain.Service
	Scheduler    *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		db:           p.DB,
		log:          p.Log.Named("http.server"),
		accountSvc:   p.AccountSvc,
		ledgerSvc:    p.LedgerSvc,
		auditSvc:     p.AuditSvc,
		botSvc:       p.BotSvc,
		lifecycleSvc: p.LifecycleSvc,
		retentionSvc: p.RetentionSvc,
		scheduler:    p.Scheduler,
	}

	svc.RegisterHealthRoutes()
	svc.RegisterAccountRoutes()
	svc.RegisterJobRoutes()

	return svc
}

func (s *Server) RegisterHealthRoutes() {
	s.engine.GET("/healthz", s.Health)
}

func (s *Server) RegisterAccountRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/accounts", s.EnsureAccount)
	v1.GET("/accounts/:id", s.GetAccount)
	v1.DELETE("/accounts/:id", s.DeleteAccount)
	v1.GET("/accounts/:id/status", s.CheckStatus)
	v1.GET("/accounts/:id/referrals", s.ListReferrals)
	v1.POST("/accounts/:id/grants", s.ApplyGrant)
	v1.GET("/accounts/:id/ledger", s.ListLedgerEntries)
	v1.GET("/accounts/:id/reconcile", s.Reconcile)
	v1.GET("/accounts/:id/audit", s.ListAuditLogs)
	v1.GET("/accounts/:id/bots", s.ListBots)
	v1.POST("/accounts/:id/bots", s.RegisterBot)
}

func (s *Server) RegisterJobRoutes() {
	s.engine.POST("/v1/jobs/:job/trigger", s.TriggerJob)
}

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		s.log.Warn("http.health.db_unreachable", zap.Error(err))
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
