package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"turn-coordinator/internal/engine"
	"turn-coordinator/internal/engine/rotation"
	"turn-coordinator/internal/eventbus"
	httpHandler "turn-coordinator/internal/handler/http"
	wsHandler "turn-coordinator/internal/handler/websocket"
	"turn-coordinator/internal/hub"
	gormpersistence "turn-coordinator/internal/infra/persistence/gorm"
	"turn-coordinator/internal/infra/setup"
	redisstate "turn-coordinator/internal/infra/state/redis"
	"turn-coordinator/internal/lock"
	"turn-coordinator/internal/mail"
	"turn-coordinator/internal/metrics"
	"turn-coordinator/internal/middleware"
	"turn-coordinator/internal/service"
	"turn-coordinator/internal/worker"
)

// App holds every long lived component of the server.
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	Bus         eventbus.Bus
	Hub         *hub.Hub
	HttpServer  *http.Server

	cancel context.CancelFunc
}

// NewApp loads the configuration and wires the application.
func NewApp() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := NewLogger(cfg)
	log.WithFields(logrus.Fields{"env": cfg.AppEnv, "db": cfg.DBDriver, "lock": cfg.LockBackend, "bus": cfg.EventBus}).
		Info("Configuration loaded")

	// Infrastructure.
	db, err := setup.InitDB(setup.DBOptions{
		Driver:   cfg.DBDriver,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
		Debug:    !cfg.Production() && cfg.LogLevel == "debug",
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db, log); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}

	ctx := context.Background()
	redisClient, err := setup.InitRedis(ctx, setup.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Repositories.
	userRepo := gormpersistence.NewGormUserRepository(db)
	sessionRepo := gormpersistence.NewGormSessionRepository(db)
	gameRepo := gormpersistence.NewGormGameRepository(db)
	actionRepo := gormpersistence.NewGormActionRepository(db)
	tx := gormpersistence.NewTransactor(db)

	locks, err := newLocks(cfg, db, redisClient, log)
	if err != nil {
		return nil, err
	}
	bus := newBus(cfg, redisClient, log)

	engines := engine.NewRegistry()
	rotation.Register(engines)

	// Services.
	authService, err := service.NewAuthService(userRepo, sessionRepo, cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	dispatcher := service.NewDispatcher(bus, m, log)
	gameService := service.NewGameService(gameRepo, actionRepo, tx, locks, engines, dispatcher, m, log)
	actionService := service.NewActionService(gameRepo, actionRepo, tx, locks, engines, dispatcher, m, log)

	var sender mail.Sender = mail.NewLogSender(log)
	if cfg.SMTPHost != "" {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	}
	notifier := service.NewTurnNotifier(userRepo, sessionRepo, gameRepo, actionRepo, locks, sender, service.TurnNotifierConfig{
		AppName:        cfg.AppName,
		PresenceWindow: cfg.PresenceWindow,
		ThrottleWindow: cfg.NotifyThrottle,
	}, m, log)
	if err := notifier.Subscribe(bus); err != nil {
		return nil, fmt.Errorf("failed to subscribe turn notifier: %w", err)
	}

	hubInstance := hub.NewHub(log)
	if err := hubInstance.Subscribe(bus); err != nil {
		return nil, fmt.Errorf("failed to subscribe hub: %w", err)
	}

	// HTTP.
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORS(cfg.CORSAllowedOrigin))

	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	limited := router.Group("", middleware.RateLimit(redisstate.NewRateLimiter(redisClient, cfg.KeyPrefix), cfg.RateLimitMax, cfg.RateLimitWindow))
	auth := middleware.Auth(cfg.JWTSecret, authService, true)
	optionalAuth := middleware.Auth(cfg.JWTSecret, authService, false)
	httpHandler.Register(limited,
		httpHandler.NewAuthHandler(authService),
		httpHandler.NewGameHandler(gameService, actionService),
		auth, optionalAuth)

	ws := wsHandler.NewWebSocketHandler(hubInstance, gameService, cfg.CORSAllowedOrigin)
	wsRoutes := limited.Group("/ws", optionalAuth)
	wsRoutes.GET("/games", ws.HandleGames)
	wsRoutes.GET("/game/:id", ws.HandleGame)

	return &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		Bus:         bus,
		Hub:         hubInstance,
		HttpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func newLocks(cfg *Config, db *gorm.DB, client *redis.Client, log *logrus.Logger) (lock.Coordinator, error) {
	switch cfg.LockBackend {
	case LockRedis:
		return redisstate.NewRedisLocker(client, cfg.KeyPrefix, cfg.LockTTL, log), nil
	case LockLocal:
		log.Warn("Using in-process game locks, run a single instance only")
		return lock.NewLocal(), nil
	}
	locker, err := gormpersistence.NewAdvisoryLocker(db, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create advisory locker: %w", err)
	}
	return locker, nil
}

// newBus routes realtime channels over redis pub/sub and the turn channel
// over the asynq queue, or keeps everything in process.
func newBus(cfg *Config, client *redis.Client, log *logrus.Logger) eventbus.Bus {
	if cfg.EventBus == BusMemory {
		return eventbus.NewMemoryBus(log)
	}
	queue := worker.NewQueueBus(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, worker.Options{Concurrency: cfg.QueueConcurrency}, log)
	return eventbus.NewRouter(redisstate.NewRedisBus(client, cfg.KeyPrefix, log)).
		Route(eventbus.TurnChannel, queue)
}

// Start runs the bus, the hub and the HTTP server in the background.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.Bus.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	go a.Hub.Run(ctx)

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening")
	}()
	return nil
}

// Shutdown stops accepting requests, drains the bus and closes connections.
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	}

	if err := a.Bus.Stop(); err != nil {
		a.Log.Errorf("Error stopping event bus: %v", err)
	}
	if a.cancel != nil {
		a.cancel()
	}

	if err := a.RedisClient.Close(); err != nil {
		a.Log.Errorf("Error closing Redis connection: %v", err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.Log.Errorf("Error closing database connection: %v", err)
		}
	}
	a.Log.Info("Application shutdown complete")
}
