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

	"github.com/gin-gonic/gin"

	"github.com/collabhub/collab-chat/internal/auth"
	"github.com/collabhub/collab-chat/internal/cache"
	"github.com/collabhub/collab-chat/internal/config"
	"github.com/collabhub/collab-chat/internal/domain"
	"github.com/collabhub/collab-chat/internal/handler"
	"github.com/collabhub/collab-chat/internal/hub"
	"github.com/collabhub/collab-chat/internal/kafka"
	"github.com/collabhub/collab-chat/internal/repository"
	"github.com/collabhub/collab-chat/internal/service"
	"github.com/collabhub/collab-chat/internal/store"
	"github.com/collabhub/collab-chat/pkg/database"
	"github.com/collabhub/collab-chat/pkg/jwt"
	pkglog "github.com/collabhub/collab-chat/pkg/log"
	"github.com/collabhub/collab-chat/pkg/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "collab-chat",
	})
	logger := pkglog.L()

	// Token verification
	jwtManager, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL,
		jwt.WithIssuer(cfg.Auth.Issuer),
		jwt.WithLeeway(cfg.Auth.Leeway),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create jwt manager")
	}
	verifier := auth.NewTokenVerifier(jwtManager)

	// Persistence
	repo, err := newRepository(cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to initialize repository")
	}

	var roomCache cache.RoomCache = cache.NoopRoomCache{}
	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedisRoomCache(cfg.Redis, cfg.Cache.Prefix)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		roomCache = redisCache
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis room cache connected")
	}
	chatStore := store.New(repo, roomCache, cfg.Cache.TTL)

	// Message event stream
	var producer kafka.MessageProducer = kafka.NoopProducer{}
	if cfg.Kafka.Enabled {
		confluent, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create kafka producer")
		}
		producer = confluent
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka producer ready")
	}

	// Chat runtime
	h := hub.NewHub(chatStore)
	chatService := service.NewChatService(h, chatStore, producer, cfg.Chat)

	wsHandler := handler.NewWSHandler(h, chatService, verifier, cfg.WebSocket)
	httpHandler := handler.NewHandler(chatStore, h, chatService, middleware.NewAuthMiddleware(verifier.VerifyBearer))

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	wsHandler.RegisterRoutes(r)
	httpHandler.RegisterRoutes(r)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("driver", cfg.Database.Driver).
			Bool("cache", cfg.Cache.Enabled).
			Bool("kafka", cfg.Kafka.Enabled).
			Msg("collab-chat starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down collab-chat")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Hijacked websocket connections are not tracked by Shutdown.
	if err := chatService.Stop(); err != nil {
		logger.Error().Err(err).Msg("failed to stop chat service")
	}
	if err := chatStore.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close store")
	}

	logger.Info().Msg("collab-chat stopped")
}

func newRepository(cfg config.DatabaseConfig) (repository.ChatRepository, error) {
	if cfg.Driver == "memory" {
		return repository.NewMemoryChatRepository(), nil
	}

	if cfg.Driver == "sqlite" && cfg.FilePath != "" {
		if err := ensureDir(cfg.FilePath); err != nil {
			return nil, err
		}
	}

	db, err := database.New(&database.Config{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		DBName:          cfg.DBName,
		SSLMode:         cfg.SSLMode,
		FilePath:        cfg.FilePath,
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		LogLevel:        cfg.LogLevel,
	})
	if err != nil {
		return nil, err
	}

	if err := database.AutoMigrate(db, &domain.RoomModel{}, &domain.MessageModel{}); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}
	l := pkglog.L()
	l.Info().Msg("database migration completed")

	return repository.NewGormChatRepository(db), nil
}
