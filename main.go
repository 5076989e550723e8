package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-client/internal/api"
	"chat-client/internal/config"
	"chat-client/internal/controller"
	"chat-client/internal/db"
	"chat-client/internal/handlers"
	"chat-client/internal/observability"
	"chat-client/internal/rabbitmq"
	"chat-client/internal/repositories"
	"chat-client/internal/session"
	"chat-client/internal/telemetry"
	"chat-client/internal/tracing"
	"chat-client/internal/web"
	"chat-client/internal/ws"
)

func main() {
	cfg := config.Load()

	shutdownTracing, err := tracing.Setup(context.Background(), cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}

	database, err := db.Connect(cfg.SessionDBDSN)
	if err != nil {
		log.Fatalf("failed to open session db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange)
	defer publisher.Close()
	log.Printf("events publisher=%s", rabbitmq.Describe(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment)

	apiClient := api.NewClient(cfg.APIBaseURL, &http.Client{Timeout: cfg.HTTPTimeout})
	store := session.NewStore(apiClient, repositories.NewStateRepo(database))
	hub := ws.NewHub()

	ctrl := controller.New(apiClient, store, hub, audit, controller.Options{
		PollInterval:    cfg.PollInterval,
		MessageLimit:    cfg.MessageLimit,
		InviteLimit:     cfg.InviteLimit,
		ErrorClearDelay: cfg.ErrorClearDelay,
	})

	restoreCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	switch err := ctrl.Restore(restoreCtx); {
	case err == nil:
		log.Printf("session restored user=%s", store.Session().Username)
	case errors.Is(err, session.ErrNoSession):
		log.Printf("no persisted session, showing login")
	default:
		log.Printf("session restore failed, showing login: %v", err)
	}
	cancel()

	router := gin.Default()

	// middlewares
	router.Use(observability.RequestIDMiddleware())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	web.Register(router)
	handlers.NewClientHandler(ctrl).Register(router)
	router.GET("/ws", ws.NewPageHandler(hub, ctrl).Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, cfg.Environment != "production")

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Printf("chat client listening on :%s api=%s", cfg.Port, cfg.APIBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("shutting down")

	ctx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	ctrl.Close()
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}
