package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"lips-server/internal/ai"
	"lips-server/internal/config"
	"lips-server/internal/database"
	"lips-server/internal/handler"
	"lips-server/internal/logger"
	"lips-server/internal/messaging"
	"lips-server/internal/middleware"
	"lips-server/internal/realtime"
	"lips-server/internal/repository"
	"lips-server/internal/service"
	"lips-server/internal/story"
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск Lips Server...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	ctx := context.Background()

	// PostgreSQL + миграции
	if err := database.ApplyMigrations(cfg.GetDSN()); err != nil {
		zapLogger.Fatal("Не удалось применить миграции", zap.Error(err))
	}
	zapLogger.Info("Database migrations applied")

	dbPool, err := database.NewPool(ctx, cfg.GetDSN(), zapLogger)
	if err != nil {
		zapLogger.Fatal("Не удалось подключиться к БД", zap.Error(err))
	}
	defer database.ClosePool(dbPool, zapLogger)

	// RabbitMQ: без URL устанавливаются noop-реализации, игра работает
	// без realtime-доставки и наград.
	broadcaster := messaging.NewNoopEventBroadcaster(zapLogger)
	rewards := messaging.NewNoopRewardPublisher(zapLogger)
	if cfg.RabbitMQURL != "" {
		rabbitConn, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
		}
		defer rabbitConn.Close()
		zapLogger.Info("Успешное подключение к RabbitMQ")

		broadcaster, err = messaging.NewRabbitEventBroadcaster(rabbitConn, cfg.ClientUpdatesQueueName, zapLogger)
		if err != nil {
			zapLogger.Fatal("Не удалось создать EventBroadcaster", zap.Error(err))
		}
		rewards, err = messaging.NewRabbitRewardPublisher(rabbitConn, cfg.RewardsQueueName, zapLogger)
		if err != nil {
			zapLogger.Fatal("Не удалось создать RewardPublisher", zap.Error(err))
		}
	} else {
		zapLogger.Warn("RABBITMQ_URL не задан, realtime-доставка и награды отключены")
	}

	// Redis для учета выданных realtime-токенов (опционально)
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			zapLogger.Fatal("Не удалось подключиться к Redis", zap.Error(err))
		}
		defer redisClient.Close()
		zapLogger.Info("Успешное подключение к Redis")
	} else {
		zapLogger.Warn("REDIS_ADDR не задан, jti realtime-токенов не фиксируются")
	}

	aiClient, err := ai.NewClient(ai.Config{
		ClientType: cfg.AIClientType,
		APIKey:     cfg.AIAPIKey,
		BaseURL:    cfg.AIBaseURL,
		Model:      cfg.AIModel,
		Timeout:    cfg.AITimeout,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("Не удалось создать AI клиент", zap.Error(err))
	}

	// Сборка зависимостей
	sessionRepo := repository.NewPgSessionRepository(zapLogger)
	txManager := repository.NewTxManager(dbPool, zapLogger)
	assembler := story.NewAssembler()
	sessionService := service.NewSessionService(sessionRepo, txManager, assembler, broadcaster, rewards, aiClient, zapLogger)
	tokenIssuer := realtime.NewTokenIssuer(cfg.JWTSecret, cfg.RealtimeTokenTTL, redisClient, zapLogger)
	sessionHandler := handler.NewSessionHandler(sessionService, tokenIssuer, zapLogger)

	// Настройка Gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.ZapLoggingMiddlewareForGin(zapLogger))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-User-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	sessionHandler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		zapLogger.Info("HTTP server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Ошибка запуска HTTP сервера", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Получен сигнал завершения, начинаем graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Ошибка при graceful shutdown HTTP сервера", zap.Error(err))
	}

	log.Println("Lips Server успешно остановлен")
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками.
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("Не удалось подключиться к RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}
