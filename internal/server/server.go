package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	applydomain "github.com/smallbiznis/switchboard/internal/apply/domain"
	auditdomain "github.com/smallbiznis/switchboard/internal/audit/domain"
	"github.com/smallbiznis/switchboard/internal/config"
	"github.com/smallbiznis/switchboard/internal/observability"
	obslogger "github.com/smallbiznis/switchboard/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/switchboard/internal/observability/metrics"
	obstracing "github.com/smallbiznis/switchboard/internal/observability/tracing"
	resourcedomain "github.com/smallbiznis/switchboard/internal/resource/domain"
	tenantdomain "github.com/smallbiznis/switchboard/internal/tenant/domain"
	userdomain "github.com/smallbiznis/switchboard/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	ObsCfg  observability.Config
	DB      *gorm.DB
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           p.ObsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(p.Metrics.GinMiddleware())
	r.Use(ActorContext())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", healthHandler(p.DB))
	r.GET("/metrics", obsmetrics.Handler())

	return r
}

func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
				err = sqlDB.PingContext(ctx)
				cancel()
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, _ *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http.server.start", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http.server.failed", zap.Error(err))
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
	engine      *gin.Engine
	tenantSvc   tenantdomain.Service
	userSvc     userdomain.Service
	resourceSvc resourcedomain.Service
	applySvc    applydomain.Service
	auditSvc    auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	TenantSvc   tenantdomain.Service
	UserSvc     userdomain.Service
	ResourceSvc resourcedomain.Service
	ApplySvc    applydomain.Service
	AuditSvc    auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		tenantSvc:   p.TenantSvc,
		userSvc:     p.UserSvc,
		resourceSvc: p.ResourceSvc,
		applySvc:    p.ApplySvc,
		auditSvc:    p.AuditSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Tenants --------
	api.GET("/tenants", s.ListTenants)
	api.POST("/tenants", s.CreateTenant)
	tenant := api.Group("/tenants/:tenantId", TenantContext())
	{
		tenant.GET("", s.GetTenant)
		tenant.PUT("/range", s.UpdateTenantRange)
		tenant.PUT("/policy", s.UpdateTenantPolicy)
		tenant.DELETE("", s.DeleteTenant)

		tenant.GET("/users", s.ListUsers)
		tenant.POST("/users", s.CreateUser)

		tenant.GET("/extensions", s.ListExtensions)
		tenant.POST("/extensions", s.ReserveExtension)
	}

	// -------- Users --------
	api.GET("/users/:userId", s.GetUser)
	api.PATCH("/users/:userId", s.UpdateUser)
	api.DELETE("/users/:userId", s.DeleteUser)

	// -------- Extensions --------
	api.DELETE("/extensions/:extensionId", s.FreeExtension)

	// -------- External numbers --------
	api.GET("/numbers", s.ListPhoneNumbers)
	api.POST("/numbers/import", s.ImportPhoneNumbers)
	api.POST("/numbers/allocate", s.AllocatePhoneNumber)
	api.GET("/numbers/:numberId", s.GetPhoneNumber)
	api.DELETE("/numbers/:numberId", s.DeletePhoneNumber)
	api.POST("/numbers/:numberId/deallocate", s.DeallocatePhoneNumber)
	api.GET("/numbers/:numberId/binding", s.GetBinding)
	api.PUT("/numbers/:numberId/binding", s.Bind)
	api.DELETE("/numbers/:numberId/binding", s.Unbind)

	api.GET("/bindings", s.ListBindings)

	// -------- Apply --------
	api.POST("/apply", s.Apply)
	api.GET("/apply/jobs", s.ListApplyJobs)
	api.GET("/apply/jobs/:jobId", s.GetApplyJob)

	// -------- Audit --------
	api.GET("/audit-logs", s.ListAuditLogs)
}
