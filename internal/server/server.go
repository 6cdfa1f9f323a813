package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/haulboard/gatehouse/internal/audit"
	auditdomain "github.com/haulboard/gatehouse/internal/audit/domain"
	"github.com/haulboard/gatehouse/internal/authorization"
	"github.com/haulboard/gatehouse/internal/config"
	"github.com/haulboard/gatehouse/internal/identity"
	identitydomain "github.com/haulboard/gatehouse/internal/identity/domain"
	"github.com/haulboard/gatehouse/internal/impersonation"
	impersonationdomain "github.com/haulboard/gatehouse/internal/impersonation/domain"
	"github.com/haulboard/gatehouse/internal/observability"
	obslogger "github.com/haulboard/gatehouse/internal/observability/logger"
	obsmetrics "github.com/haulboard/gatehouse/internal/observability/metrics"
	obstracing "github.com/haulboard/gatehouse/internal/observability/tracing"
	"github.com/haulboard/gatehouse/internal/platformmetrics"
	"github.com/haulboard/gatehouse/internal/ratelimit"
	"github.com/haulboard/gatehouse/internal/rollout"
	rolloutdomain "github.com/haulboard/gatehouse/internal/rollout/domain"
	"github.com/haulboard/gatehouse/internal/tenant"
	tenantdomain "github.com/haulboard/gatehouse/internal/tenant/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	platformmetrics.Module,
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	identity.Module,
	tenant.Module,
	rollout.Module,
	impersonation.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
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

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
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
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	identitySvc      identitydomain.Service
	tenantSvc        tenantdomain.Service
	rolloutSvc       rolloutdomain.Service
	impersonationSvc impersonationdomain.Service
	auditSvc         auditdomain.Service
	authzSvc         authorization.Service
	mutationLimiter  *ratelimit.MutationLimiter
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Cfg              config.Config
	DB               *gorm.DB
	GenID            *snowflake.Node
	IdentitySvc      identitydomain.Service
	TenantSvc        tenantdomain.Service
	RolloutSvc       rolloutdomain.Service
	ImpersonationSvc impersonationdomain.Service
	AuditSvc         auditdomain.Service
	AuthzSvc         authorization.Service
	MutationLimiter  *ratelimit.MutationLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:           p.Gin,
		cfg:              p.Cfg,
		db:               p.DB,
		genID:            p.GenID,
		identitySvc:      p.IdentitySvc,
		tenantSvc:        p.TenantSvc,
		rolloutSvc:       p.RolloutSvc,
		impersonationSvc: p.ImpersonationSvc,
		auditSvc:         p.AuditSvc,
		authzSvc:         p.AuthzSvc,
		mutationLimiter:  p.MutationLimiter,
	}

	svc.registerRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	auth := v1.Group("/auth")
	{
		auth.POST("/login", s.Login)
		auth.POST("/logout", s.Logout)
		auth.GET("/me", s.RequirePrincipal(), s.Me)
	}

	tenants := v1.Group("/tenants", s.RequirePrincipal())
	{
		tenants.GET("", s.RequirePlatformAdmin(), s.ListTenants)
		tenants.POST("", s.RequirePlatformAdmin(), s.CreateTenant)
		tenants.GET("/:id", s.GetTenant)
		tenants.PUT("/:id/channel", s.RequirePlatformAdmin(), s.MutationRateLimit(), s.SetTenantChannel)
		tenants.GET("/:id/members", s.ListTenantMembers)
		tenants.POST("/:id/members", s.RequirePlatformAdmin(), s.AddTenantMember)
		tenants.GET("/:id/capabilities", s.GetTenantCapabilities)
	}

	flags := v1.Group("/rollout", s.RequirePrincipal())
	{
		flags.GET("/flags", s.ListFlags)
		flags.PUT("/channel-defaults", s.RequirePlatformAdmin(), s.MutationRateLimit(), s.SetChannelDefault)
		flags.PUT("/tenant-overrides", s.RequirePlatformAdmin(), s.MutationRateLimit(), s.SetTenantOverride)
		flags.DELETE("/tenant-overrides", s.RequirePlatformAdmin(), s.MutationRateLimit(), s.RemoveTenantOverride)
	}

	sessions := v1.Group("/impersonation/sessions", s.RequirePrincipal(), s.RequirePlatformAdmin())
	{
		sessions.POST("", s.MutationRateLimit(), s.StartImpersonation)
		sessions.GET("", s.ListImpersonationSessions)
		sessions.GET("/:id", s.ValidateImpersonation)
		sessions.DELETE("/:id", s.MutationRateLimit(), s.RevokeImpersonation)
	}

	trail := v1.Group("/audit", s.RequirePrincipal(), s.RequirePlatformAdmin())
	{
		trail.GET("/entries", s.ListAuditEntries)
	}
}
