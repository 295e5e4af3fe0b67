package container

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"promo-engine/internal/config"
	"promo-engine/internal/domains/audit"
	auditrepo "promo-engine/internal/domains/audit/repository"
	promohandler "promo-engine/internal/domains/promotion/handler"
	promorepo "promo-engine/internal/domains/promotion/repository"
	"promo-engine/internal/domains/promotion/service"
	infracache "promo-engine/internal/infrastructure/cache"
	"promo-engine/internal/infrastructure/database"
	"promo-engine/pkg/cache"
	"promo-engine/pkg/jwt"
	"promo-engine/pkg/logger"
)

// Container wires every service explicitly at startup. No package-level
// singletons: tests construct the same services with fakes.
type Container struct {
	Config     *config.Config
	DB         *database.PostgresDB
	Cache      cache.Cache
	JWTManager *jwt.Manager

	AsynqClient *asynq.Client

	PromotionRepo promorepo.PromotionRepository
	AuditRepo     auditrepo.AuditRepository
	AuditSink     audit.Sink

	Validator *service.SecurityValidator
	Engine    *service.PromotionEngine
	Scheduler *service.LifecycleScheduler
	Monitor   *service.HealthMonitor
	Admin     *service.AdminService

	PublicHandler *promohandler.PublicHandler
	AdminHandler  *promohandler.AdminHandler
}

// NewContainer builds the full dependency graph.
func NewContainer() (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger.Init(cfg.App.Environment)

	c := &Container{Config: cfg}

	if err := c.initInfrastructure(); err != nil {
		return nil, err
	}
	c.initRepositories()
	c.initServices()
	c.initHandlers()

	return c, nil
}

func (c *Container) initInfrastructure() error {
	cfg := c.Config

	db := database.NewPostgresDB(&database.DBConfig{
		Host:              cfg.Database.Host,
		Port:              cfg.Database.Port,
		Username:          cfg.Database.User,
		Password:          cfg.Database.Password,
		DBName:            cfg.Database.Database,
		SSLMode:           cfg.Database.SSLMode,
		MaxConns:          int32(cfg.Database.MaxConns),
		MinConns:          int32(cfg.Database.MinConns),
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
	})
	if err := db.Connect(context.Background()); err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	c.DB = db

	redisCache := infracache.NewRedisCache(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB)
	if err := redisCache.Connect(context.Background()); err != nil {
		// Redis is non-critical: the engine degrades to uncached evaluation.
		log.Printf("[Container] Redis connection failed (non-critical): %v", err)
		c.Cache = cache.NewMemoryCache()
	} else {
		c.Cache = redisCache
	}

	c.JWTManager = jwt.NewManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	c.AsynqClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Host,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	return nil
}

func (c *Container) initRepositories() {
	c.PromotionRepo = promorepo.NewPostgresRepository(c.DB.Pool)
	c.AuditRepo = auditrepo.NewPostgresRepository(c.DB.Pool)
	c.AuditSink = audit.NewQueueSink(c.AsynqClient)
}

func (c *Container) initServices() {
	cfg := c.Config

	c.Validator = service.NewSecurityValidator(c.PromotionRepo, c.Cache, c.AuditSink, cfg.Security)
	c.Engine = service.NewPromotionEngine(c.PromotionRepo, c.Cache, c.Validator, c.AuditSink, cfg.Engine.CacheTTL)
	c.Scheduler = service.NewLifecycleScheduler(c.PromotionRepo, c.AuditSink, cfg.Engine.SchedulerInterval)
	c.Monitor = service.NewHealthMonitor(c.PromotionRepo, c.AuditSink, cfg.Engine.MonitorInterval, cfg.Engine.ConflictCacheTTL)
	c.Admin = service.NewAdminService(c.PromotionRepo, c.AuditSink)
}

func (c *Container) initHandlers() {
	c.PublicHandler = promohandler.NewPublicHandler(c.Engine)
	c.AdminHandler = promohandler.NewAdminHandler(c.Admin, c.Scheduler, c.Monitor)
}

// Cleanup releases every resource the container holds. Safe to call once at
// shutdown.
func (c *Container) Cleanup() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.Monitor != nil {
		c.Monitor.Stop()
	}
	if c.AsynqClient != nil {
		if err := c.AsynqClient.Close(); err != nil {
			log.Printf("[Container] Failed to close asynq client: %v", err)
		}
	}
	if rc, ok := c.Cache.(*infracache.RedisCache); ok {
		if err := rc.Close(); err != nil {
			log.Printf("[Container] Failed to close Redis: %v", err)
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
