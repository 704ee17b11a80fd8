package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-sync/internal/api"
	"chat-sync/internal/config"
	"chat-sync/internal/engine"
	"chat-sync/internal/handlers"
	"chat-sync/internal/history"
	"chat-sync/internal/obs"
	"chat-sync/internal/receipts"
	"chat-sync/internal/registry"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.NewLogger("dev").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := obs.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.InitTracing(ctx, "chat-sync")
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	publisher := telemetry.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	emitter := telemetry.NewEmitter(publisher, "chat-sync", cfg.Env, cfg.ActorID, log)

	apiClient := api.NewHTTPClient(cfg.APIBaseURL, cfg.AuthToken, cfg.DialTimeout)
	reg := registry.New()
	loader := history.New(apiClient, log)
	tracker := receipts.New(apiClient, reg, cfg.ActorID, log)
	channels := ws.NewManager(ws.Config{
		BaseURL:          cfg.WSBaseURL,
		Token:            cfg.AuthToken,
		DialTimeout:      cfg.DialTimeout,
		BackoffInitial:   cfg.BackoffInitial,
		BackoffMax:       cfg.BackoffMax,
		StableResetAfter: cfg.StableResetAfter,
	}, log, emitter)

	eng := engine.New(cfg, apiClient, reg, loader, tracker, channels, log)
	eng.Start()
	defer eng.Stop()

	if err := eng.RefreshDirectory(ctx); err != nil {
		log.Warn("initial directory load failed", "error", err)
	}

	if cfg.Env != "dev" && cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chat-sync"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"connection": eng.ConnectionState(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, eng, cfg.Env == "dev" || cfg.Env == "local")

	server := &http.Server{Addr: cfg.DebugAddr, Handler: router}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("debug server error", "error", err)
			stop()
		}
	}()
	log.Info("chat-sync running", "debug_addr", cfg.DebugAddr, "actor_role", cfg.ActorRole)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
