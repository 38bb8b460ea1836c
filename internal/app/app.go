package app

import (
	"context"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/controller"
	"exam_prep_backend/internal/repository"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/pkg/configwatcher"
	"exam_prep_backend/pkg/database"
	"exam_prep_backend/pkg/eventbus"
	"exam_prep_backend/pkg/logger"
	"exam_prep_backend/pkg/monitoring"
	"exam_prep_backend/pkg/security"
	"exam_prep_backend/pkg/tracing"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const configFile = "configs/config.yaml"

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client
	Bus    eventbus.Bus

	services        *services
	tracer          *sdktrace.TracerProvider
	cancel          context.CancelFunc
	cfgMu           sync.RWMutex
	configCallbacks []func(*config.Config)
}

type repositories struct {
	progress *repository.ProgressRepository
	taxonomy *repository.TaxonomyRepository
}

type services struct {
	queryCache *service.QueryCache
	aggregator *service.Aggregator
	progress   *service.ProgressService
	taxonomy   *service.TaxonomyService
}

type controllers struct {
	progress *controller.ProgressController
	taxonomy *controller.TaxonomyController
	health   *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	a.cfgMu.Lock()
	a.Config = cfg
	a.cfgMu.Unlock()
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		progress: repository.NewProgressRepository(db),
		taxonomy: repository.NewTaxonomyRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, bus eventbus.Bus) *services {
	s := &services{}

	s.queryCache = service.NewQueryCache(cfg.Cache.QueryTTL(), cfg.Cache.MaxEntries())
	s.queryCache.AttachBus(bus)
	a.RegisterConfigCallback(func(c *config.Config) {
		s.queryCache.Configure(c.Cache.QueryTTL(), c.Cache.MaxEntries())
		logger.Log.Info("query cache reconfigured",
			zap.Duration("ttl", c.Cache.QueryTTL()),
			zap.Int("maxEntries", c.Cache.MaxEntries()),
		)
	})

	s.aggregator = service.NewAggregator(repos.taxonomy, repos.progress, bus)
	calculator := service.NewProgressCalculator(service.NewItemCounter(repos.taxonomy))
	s.progress = service.NewProgressService(repos.progress, calculator, s.aggregator)
	s.taxonomy = service.NewTaxonomyService(repos.taxonomy, s.queryCache)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		progress: controller.NewProgressController(s.progress),
		taxonomy: controller.NewTaxonomyController(s.taxonomy),
		health:   controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// initBus 启用 Redis 时跨实例广播进度事件与缓存失效，否则使用进程内总线
func (a *App) initBus(ctx context.Context, rdb *redis.Client, cfg *config.Config) eventbus.Bus {
	if rdb == nil {
		return eventbus.NewLocalBus()
	}
	bus, err := eventbus.NewRedisBus(rdb, cfg.Redis.Channel)
	if err == nil {
		err = bus.Start(ctx)
	}
	if err != nil {
		logger.Log.Error("Redis event bus unavailable, falling back to local bus", zap.Error(err))
		return eventbus.NewLocalBus()
	}
	return bus
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		cancel: cancel,
	}
	if cfg.MigrateOnly {
		return app
	}

	app.Bus = app.initBus(ctx, rdb, cfg)
	repos := app.initRepositories(db)
	app.services = app.initServices(repos, cfg, app.Bus)
	controllers := app.initControllers(app.services, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	go func() {
		if err := configwatcher.WatchConfig(ctx, configFile, app.applyConfig); err != nil {
			logger.Log.Warn("Config watcher disabled", zap.Error(err))
		}
	}()

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	a.Close(ctx)

	logger.Log.Info("Server exiting")
}

// Close 释放后台资源：配置监听、事件总线、缓存、追踪与数据库连接
func (a *App) Close(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	if a.services != nil {
		a.services.aggregator.Close()
		a.services.queryCache.Close()
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
