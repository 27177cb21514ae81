package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"program-chat-service/internal/auth"
	"program-chat-service/internal/blob"
	"program-chat-service/internal/config"
	"program-chat-service/internal/db"
	"program-chat-service/internal/entitlements"
	"program-chat-service/internal/handlers"
	"program-chat-service/internal/middleware"
	"program-chat-service/internal/observability"
	"program-chat-service/internal/preview"
	"program-chat-service/internal/rabbitmq"
	"program-chat-service/internal/repositories"
	"program-chat-service/internal/retry"
	"program-chat-service/internal/share"
	"program-chat-service/internal/signedurl"
	"program-chat-service/internal/telemetry"
	"program-chat-service/internal/ws"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	shutdownTracing, err := telemetry.InitTracing(ctx, "program-chat-service", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		_ = shutdownTracing(context.Background())
	}()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	uploader, err := blob.NewMinioUploader(ctx, cfg.StorageEndpoint, cfg.StorageAccessKey, cfg.StorageSecretKey, cfg.StorageBucket, cfg.StorageUseSSL)
	if err != nil {
		log.Fatalf("failed to connect to object store: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", "program-chat-service", cfg.Env)

	verifier := auth.NewClient(cfg.AuthURL)
	gate := entitlements.NewClient(cfg.EntitlementsURL)

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	signer := signedurl.NewClient(cfg.SignerURL)
	resolvePolicy := retry.DefaultPolicy
	resolvePolicy.MaxAttempts = uint64(cfg.ResolveRetries)
	resolver := signedurl.NewResolver(signer, uploader, resolvePolicy, cfg.SignedURLTTL)

	previews := preview.NewFetcher()
	hub := ws.NewHub()

	chatHandler := handlers.NewChatHandler(chatRepo, messageRepo, gate, hub, resolver, previews, audit, handlers.Options{
		LiveTailLimit: cfg.LiveTailLimit,
		PageSize:      cfg.PageSize,
	})
	mediaHandler := handlers.NewMediaHandler(chatRepo, chatHandler, uploader, resolver)

	ingestor := share.NewIngestor(share.AppendFunc(chatHandler.Send), uploader, share.NewLocalOpener(cfg.ShareRoot))
	shareHandler := handlers.NewShareHandler(chatHandler, ingestor, &share.PendingShare{}, audit)

	healthHandler := handlers.NewHealthHandler(database)
	chatWS := ws.NewChatWebSocketHandler(hub, chatRepo, messageRepo, verifier, gate, cfg.LiveTailLimit)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(otelgin.Middleware("program-chat-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.POST("/chats", authMiddleware, chatHandler.CreateChat)
	router.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.GetChatMessages)
	router.GET("/chats/:chat_id/feed", authMiddleware, chatHandler.GetChatFeed)
	router.POST("/chats/:chat_id/messages", authMiddleware, chatHandler.PostChatMessage)
	router.POST("/chats/:chat_id/media", authMiddleware, mediaHandler.UploadMedia)
	router.POST("/chats/:chat_id/share", authMiddleware, shareHandler.ShareToChat)
	router.POST("/shares/pending", authMiddleware, shareHandler.BufferShare)
	router.POST("/media/url", authMiddleware, mediaHandler.ResolveMediaURL)

	router.GET("/ws/chats/:chat_id", chatWS.Handle)

	router.GET("/healthz", healthHandler.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
