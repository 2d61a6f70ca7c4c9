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

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/LucasAro/JuscashCase/api"
	"github.com/LucasAro/JuscashCase/config"
	"github.com/LucasAro/JuscashCase/storage"
)

func newLogger(cfg *config.Config) *log.Logger {
	logger := log.New()
	logger.SetOutput(os.Stdout)
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	if cfg.Debug || cfg.Env == "local" {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := newLogger(cfg)
	logger.WithFields(log.Fields{"env": cfg.Env}).Info("starting publications-api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.DB.URL, logger)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer store.Close()

	redisOpts, err := config.RedisOptions(cfg.Redis.ConnectionString)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}

	var (
		records api.RecordStore = store
		users   api.UserStore   = store
		revoker api.Revoker
	)
	if redisOpts != nil {
		rc := redis.NewClient(redisOpts)
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Warnf("redis ping failed, continuing: %v", err)
		}
		cache := storage.NewCache(store, rc, cfg.Redis.CacheTTL)
		records, users = cache, cache
		revoker = api.NewRedisRevoker(rc)
	} else {
		logger.Warn("REDIS_CONNECTION_STRING not set, using in-memory revocation and no cache")
		revoker = api.NewMemoryRevoker()
	}

	authOpts := api.AuthOptions{
		Secret:   cfg.Auth.JWTSecret,
		Audience: cfg.Auth.Audience,
		Issuer:   cfg.Auth.Issuer,
		TokenTTL: cfg.Auth.TokenTTL,
		Revoker:  revoker,
	}
	if cfg.Auth.JWKSURL != "" {
		jwks, err := keyfunc.Get(cfg.Auth.JWKSURL, keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				logger.Warnf("jwks refresh: %v", err)
			},
		})
		if err != nil {
			logger.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
		authOpts.JWKS = jwks
		authOpts.Secret = ""
	}
	auth, err := api.NewAuth(authOpts)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	var (
		sinks   []api.EventSink
		history api.HistoryReader
	)
	if cfg.Azure.Enabled() {
		h, err := storage.NewHistory(cfg.Azure.ConnectionString, cfg.Azure.HistoryTable)
		if err != nil {
			logger.Fatalf("history table: %v", err)
		}
		q, err := storage.NewEventQueue(cfg.Azure.ConnectionString, cfg.Azure.EventQueue)
		if err != nil {
			logger.Fatalf("event queue: %v", err)
		}
		sinks = append(sinks, h, q)
		history = h
	} else {
		logger.Info("STORAGE_CONNECTION_STRING not set, status history disabled")
	}
	events := api.NewEventDispatcher(api.DispatcherConfig{
		Workers: cfg.Events.Workers,
		Buffer:  cfg.Events.Buffer,
		Timeout: cfg.Events.Timeout,
		Handoff: cfg.Events.Handoff,
	}, logger, sinks...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.HTTP.AllowOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "publications_api",
		Registerer: reg,
	}))
	e.Use(api.RequestLogger(logger))
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg}))

	api.Register(e, api.Deps{
		Records:     records,
		Users:       users,
		Auth:        auth,
		Tokens:      auth,
		Revoker:     revoker,
		History:     history,
		Events:      events,
		Logger:      logger,
		PageSize:    cfg.Board.PageSize,
		MaxPageSize: cfg.Board.MaxPageSize,
	})

	addr := cfg.HTTP.Addr()
	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			logger.Errorf("http server: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown incomplete: %v", err)
	}
	events.Close()
	logger.Info("publications-api stopped")
}
