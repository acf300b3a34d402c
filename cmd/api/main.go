package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/wa-commerce-bridge/cmd/mainconfig"
	"github.com/wolfman30/wa-commerce-bridge/internal/api/router"
	"github.com/wolfman30/wa-commerce-bridge/internal/app/bootstrap"
	"github.com/wolfman30/wa-commerce-bridge/internal/bridge"
	"github.com/wolfman30/wa-commerce-bridge/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/wa-commerce-bridge/internal/config"
	"github.com/wolfman30/wa-commerce-bridge/internal/conversation"
	"github.com/wolfman30/wa-commerce-bridge/internal/observability/metrics"
	"github.com/wolfman30/wa-commerce-bridge/pkg/logging"
)

func main() {
	// Optional .env for local runs; real environment wins.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting wa-commerce-bridge",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)
	if err := cfg.Validate(); err != nil {
		logger.Warn("configuration incomplete", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsHandler, bridgeMetrics := setupMetrics()

	app, err := buildApp(ctx, cfg, bridgeMetrics, metricsHandler, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		app.store.RunJanitor(ctx, cfg.ConversationSweepInterval, func(removed, remaining int) {
			bridgeMetrics.SetActiveConversations(remaining)
			if removed > 0 {
				logger.Info("evicted idle conversations", "removed", removed, "remaining", remaining)
			}
		})
	}()

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		stop()
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	<-janitorDone

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type application struct {
	handler http.Handler
	store   *conversation.MemoryStore
	redis   *redis.Client
	llm     *bootstrap.LLMClient
}

func (a *application) close(logger *logging.Logger) {
	if a.llm != nil && a.llm.Close != nil {
		if err := a.llm.Close(); err != nil {
			logger.Warn("failed to close completion client", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("failed to close redis client", "error", err)
		}
	}
}

func setupMetrics() (http.Handler, *metrics.BridgeMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), metrics.NewBridgeMetrics(registry)
}

// buildApp wires the store, completion, catalog, delivery and webhook layers
// into an HTTP handler.
func buildApp(ctx context.Context, cfg *appconfig.Config, m *metrics.BridgeMetrics, metricsHandler http.Handler, logger *logging.Logger) (*application, error) {
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	llm, err := bootstrap.BuildLLMClient(ctx, cfg, mainconfig.LoadAWSConfig, logger)
	if err != nil {
		closeRedis(redisClient)
		return nil, err
	}

	store := bootstrap.BuildConversationStore(cfg)
	replies, err := bootstrap.BuildConversationService(cfg, store, llm, m, logger)
	if err != nil {
		closeRedis(redisClient)
		return nil, err
	}

	finder, err := bootstrap.BuildCatalogFinder(cfg, redisClient, logger)
	if err != nil {
		closeRedis(redisClient)
		return nil, err
	}

	waClient := whatsapp.NewClient(cfg.WhatsAppToken, cfg.WhatsAppPhoneID)
	waClient.SetGraphAPIBase(cfg.WhatsAppGraphBase)

	dispatcher := bridge.NewDispatcher(bridge.DispatcherConfig{
		Catalog:   finder,
		Replies:   replies,
		Deliverer: waClient,
		Dedup:     bootstrap.BuildDeduper(cfg, redisClient),
		Logger:    logger,
		Metrics:   m,
	})

	onMessage := func(ctx context.Context, msg whatsapp.InboundMessage) {
		dispatcher.HandleMessage(ctx, msg)
		m.SetActiveConversations(store.Len())
	}
	webhook := whatsapp.NewWebhookHandler(cfg.VerifyToken, cfg.WhatsAppAppSecret, onMessage, logger, m)

	handler := router.New(&router.Config{
		Logger:         logger,
		Webhook:        webhook,
		MetricsHandler: metricsHandler,
	})

	return &application{handler: handler, store: store, redis: redisClient, llm: llm}, nil
}

func closeRedis(c *redis.Client) {
	if c != nil {
		_ = c.Close()
	}
}
