package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"henry/internal/cart"
	"henry/internal/chat"
	"henry/internal/commerce"
	"henry/internal/db"
	"henry/internal/kafka"
	"henry/internal/mcp"
	"henry/internal/merchants"
	"henry/internal/rpc"
	"henry/internal/session"
	"henry/internal/snapshots"
	"henry/internal/storefront"
	"henry/internal/sweeper"
	"henry/pkg/config"
	"henry/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	if err := config.Load(); err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.Get()

	// Initialize logger
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := commerce.NewClient(cfg.APIBaseURL, cfg.APIKey, commerce.WithRateLimit(cfg.APIRateLimit, cfg.APIBurst))

	deps := session.Deps{
		Catalog:     client,
		CartFor:     func(id string) cart.Service { return client.CartFor(id) },
		Merchants:   merchants.NewChecker(client, merchantCache(ctx, cfg), cfg.MerchantTTL),
		AddedFlash:  cfg.AddedFlash,
		SearchLimit: session.DefaultSearchLimit,
	}

	// Storage and the event pipeline are optional; the storefront runs without them.
	var store *db.Store
	if conn, err := db.Setup(cfg); err != nil {
		logrus.WithError(err).Warn("Database unavailable, cart snapshots disabled")
	} else {
		store = db.NewStore(conn)
		deps.Snapshots = store
	}

	if producer, err := kafka.SetupProducer(cfg.KafkaBrokers); err != nil {
		logrus.WithError(err).Warn("Kafka producer unavailable, cart events disabled")
	} else {
		publisher := kafka.NewPublisher(producer, cfg.KafkaCartTopic)
		defer publisher.Close()
		deps.Publisher = publisher
	}

	if store != nil {
		if consumer, err := kafka.SetupConsumer(cfg.KafkaBrokers); err != nil {
			logrus.WithError(err).Warn("Kafka consumer unavailable, snapshots will not be written")
		} else {
			defer consumer.Close()
			go func() {
				if err := kafka.Consume(ctx, consumer, cfg.KafkaCartTopic, snapshots.Handler(store)); err != nil {
					logrus.WithError(err).Error("Cart event consumer stopped")
				}
			}()
		}
	}

	registry := session.NewRegistry(deps)

	var expirer sweeper.Expirer
	if store != nil {
		expirer = store
	}
	scheduler, err := sweeper.Start(cfg.SweepSchedule, sweeper.New(registry, expirer, cfg.SessionIdleTTL))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to schedule session sweeper")
	}
	defer scheduler.Stop()

	var assistant storefront.Replier
	if a, closeFn := setupAssistant(ctx, cfg); a != nil {
		defer closeFn()
		assistant = a
	}

	// Start HTTP server
	httpServer := storefront.NewServer(registry, assistant)
	httpLis, err := listen(cfg.HTTPPort, "Storefront HTTP")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to bind HTTP port")
	}
	go func() {
		if err := httpServer.Serve(httpLis); err != nil {
			logrus.WithError(err).Error("Storefront HTTP server failed")
			stop()
		}
	}()

	// Start gRPC server
	grpcServer := rpc.NewGRPCServer(rpc.NewServer(registry))
	grpcLis, err := listen(cfg.GRPCPort, "Storefront gRPC")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to bind gRPC port")
	}
	go func() {
		logrus.WithField("addr", grpcLis.Addr().String()).Info("Starting storefront gRPC server")
		if err := grpcServer.Serve(grpcLis); err != nil {
			logrus.WithError(err).Error("Storefront gRPC server failed")
			stop()
		}
	}()

	logrus.Info("Application started")
	<-ctx.Done()

	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown incomplete")
	}
	grpcServer.GracefulStop()
}

// merchantCache prefers Redis and falls back to process memory when it cannot be reached.
func merchantCache(ctx context.Context, cfg config.Settings) merchants.Cache {
	if cfg.RedisAddr == "" {
		return merchants.NewMemoryCache()
	}
	client, err := merchants.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logrus.WithError(err).WithField("addr", cfg.RedisAddr).Warn("Redis unavailable, using in-memory merchant cache")
		return merchants.NewMemoryCache()
	}
	return merchants.NewRedisCache(client)
}

// setupAssistant returns nil when no model is configured. The MCP server is optional: without
// it the model answers without tools.
func setupAssistant(ctx context.Context, cfg config.Settings) (*chat.Assistant, func()) {
	if cfg.GeminiAPIKey == "" {
		logrus.Info("GEMINI_API_KEY not set, chat disabled")
		return nil, nil
	}
	model, err := chat.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		logrus.WithError(err).Warn("Gemini client unavailable, chat disabled")
		return nil, nil
	}

	var tools mcp.ToolCaller
	var mcpClient *mcp.StdioClient
	if cfg.MCPCommand != "" {
		mcpClient = mcp.NewStdioClient(mcp.StdioConfig{
			Command:       cfg.MCPCommand,
			Args:          cfg.MCPArgs,
			ClientName:    "henry-storefront",
			ClientVersion: "1.0.0",
		})
		if err := mcpClient.Open(ctx); err != nil {
			logrus.WithError(err).Warn("MCP server unavailable, chat runs without tools")
			mcpClient = nil
		} else {
			tools = mcpClient
		}
	}

	closeFn := func() {
		if mcpClient != nil {
			if err := mcpClient.Close(); err != nil {
				logrus.WithError(err).Warn("MCP client close failed")
			}
		}
		if err := model.Close(); err != nil {
			logrus.WithError(err).Warn("Gemini client close failed")
		}
	}
	return chat.NewAssistant(model, tools, cfg.MaxToolSteps), closeFn
}
