package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/cache"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/calendar"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/circuitbreaker"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/config"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/geoip"
	httphandler "github.com/minjaeyoo/wardrobe-weather-service/internal/http"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/kma"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/lifecycle"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/observability"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/prompt"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/region"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/scheduler"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/service"
)

func main() {
	// .env is a local-dev convenience; absence is not an error.
	_ = godotenv.Load()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	clock := clockwork.NewRealClock()

	directory := region.Load(cfg.RegionDirectoryPath, logger)

	kmaClient := kma.NewClient(cfg.ForecastURL, cfg.AdvisoryURL, cfg.KMAAuthKey, cfg.UpstreamTimeout, clock)

	resolver := geoip.NewResolver(cfg.GeoIPURL, cfg.GeoIPTimeout, logger)
	resolver.SetCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{
		Component: "geoip",
	}))

	var store cache.Store
	var memcacheCloser *cache.MemcachedStore
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached store", zap.Error(err))
		}
		memcacheCloser = mc
		store = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		store = cache.NewInMemoryStore()
		logger.Info("cache backend: in_memory")
	}
	forecasts := cache.NewForecastCache(store, kmaClient, directory, cfg.CacheTTL, clock, logger)

	weatherService := service.NewWeatherService(directory, forecasts, kmaClient, resolver, logger)

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL required (set env, secrets.yaml database_url, or database.url in config)")
	}
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := calendar.Connect(connectCtx, cfg.DatabaseURL)
	connectCancel()
	if err != nil {
		logger.Fatal("calendar database", zap.Error(err))
	}
	defer pool.Close()
	calendarStore := calendar.NewStore(pool, logger)
	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := calendarStore.EnsureSchema(schemaCtx); err != nil {
		logger.Fatal("calendar schema", zap.Error(err))
	}
	schemaCancel()

	contextBuilder := prompt.NewBuilder(calendarStore, clock)

	warmZones := cfg.WarmZones
	if len(warmZones) == 0 {
		warmZones = []string{directory.DefaultZone()}
	}
	warmSched := scheduler.New(cache.NewWarmer(forecasts, logger), warmZones, cfg.WarmInterval, logger)
	if err := warmSched.Start(); err != nil {
		logger.Warn("forecast warming disabled", zap.Error(err))
	}
	defer warmSched.Stop()

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		StartTime:        time.Now(),
		DBPing:           pool.Ping,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(weatherService, calendarStore, contextBuilder, healthConfig, logger, cfg.ContextMaxDays)

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.NewRoute().Subrouter()
	api.Use(httphandler.RateLimitMiddleware(limiter))
	api.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/weather", handler.GetWeather).Methods("GET")
	api.HandleFunc("/calendar", handler.GetCalendar).Methods("GET")
	api.HandleFunc("/calendar", handler.PutCalendar).Methods("PUT")
	api.HandleFunc("/context", handler.PostContext).Methods("POST")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	observability.FlushTelemetry(logger)

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
