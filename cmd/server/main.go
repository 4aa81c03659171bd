package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/code-100-precent/calltrack/cmd/bootstrap"
	handlers "github.com/code-100-precent/calltrack/internal/handler"
	"github.com/code-100-precent/calltrack/internal/task"
	"github.com/code-100-precent/calltrack/pkg/cache"
	"github.com/code-100-precent/calltrack/pkg/config"
	"github.com/code-100-precent/calltrack/pkg/events"
	"github.com/code-100-precent/calltrack/pkg/logger"
	"github.com/code-100-precent/calltrack/pkg/metrics"
	"github.com/code-100-precent/calltrack/pkg/middleware"
	"github.com/code-100-precent/calltrack/pkg/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 1. Parse Command Line Parameters
	mode := flag.String("mode", "", "running environment (development, test, production)")
	initSQL := flag.String("init-sql", "", "path to database init .sql script (optional)")
	migrate := flag.Bool("migrate", true, "auto-migrate tables on start")
	flag.Parse()

	if *mode != "" {
		os.Setenv("APP_ENV", *mode)
	}

	// 2. Load Global Configuration
	if err := config.Load(); err != nil {
		panic("config load failed: " + err.Error())
	}
	cfg := config.GlobalConfig

	// 3. Load Log Configuration
	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()
	bootstrap.LogConfigInfo()

	if cfg.ProviderAuthToken == "" {
		logger.Warn("PROVIDER_AUTH_TOKEN is empty, every webhook will be rejected")
	}

	// 4. Load Data Source
	db, err := bootstrap.SetupDatabase(os.Stdout, &bootstrap.Options{
		InitSQLPath: *initSQL,
		AutoMigrate: *migrate,
		SeedNonProd: os.Getenv("APP_ENV") != "production",
	})
	if err != nil {
		logger.Error("database setup failed", zap.Error(err))
		return
	}

	// 5. Load Global Cache
	if err := cache.InitGlobalCache(cfg.Cache); err != nil {
		logger.Error("failed to initialize cache", zap.Error(err))
		logger.Info("falling back to default local cache")
	}
	defer cache.CloseGlobalCache()

	// 6. Event bus subscribers: live feed (attached by the handlers) and kafka export
	bus := events.GetEventBus()
	hub := websocket.NewHub(websocket.LoadConfigFromEnv())
	defer hub.Close()

	if len(cfg.KafkaBrokers) > 0 {
		writer, err := events.NewKafkaWriter(events.KafkaConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			Username: cfg.KafkaUsername,
			Password: cfg.KafkaPassword,
		})
		if err != nil {
			logger.Error("kafka export disabled", zap.Error(err))
		} else {
			sink := events.NewKafkaSink(writer)
			sink.Attach(bus)
			defer sink.Close()
			logger.Info("kafka export enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		}
	}
	// runs before the sink and hub close so queued events still go out
	defer bus.Close()

	// 7. Handlers
	m := metrics.NewMetrics()
	app := handlers.NewHandlers(db, cfg, handlers.Deps{
		Cache:   cache.GetGlobalCache(),
		Bus:     bus,
		Hub:     hub,
		Metrics: m,
	})

	// 8. Start Timed task
	if cfg.MetricsDigestSchedule != "" {
		digest, err := task.StartMetricsDigest(app.Analytics(), cache.GetGlobalCache(), cfg.MetricsDigestSchedule)
		if err != nil {
			logger.Error("metrics digest disabled", zap.Error(err))
		} else {
			defer digest.Stop()
		}
	}

	// 9. Initialize Gin Routing
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(metrics.MonitorMiddleware(m))
	r.Use(middleware.LoggerMiddleware(zap.L()))
	app.Register(r)

	// 10. Start HTTP Server
	httpServer := &http.Server{
		Addr:           cfg.Addr,
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server run failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
