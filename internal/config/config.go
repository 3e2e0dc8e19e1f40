package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"

	"lips-server/internal/utils"
)

// Config содержит конфигурацию для Lips Server.
type Config struct {
	// Настройки сервера
	Port     string `envconfig:"LIPS_SERVER_PORT" default:"8084"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Настройки PostgreSQL
	DBHost    string `envconfig:"DB_HOST" required:"true"`
	DBPort    string `envconfig:"DB_PORT" default:"5432"`
	DBUser    string `envconfig:"DB_USER" required:"true"`
	DBName    string `envconfig:"DB_NAME" required:"true"`
	DBSSLMode string `envconfig:"DB_SSL_MODE" default:"disable"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string

	// Настройки RabbitMQ. Пустой URL отключает realtime-доставку и
	// награды (устанавливаются noop-реализации).
	RabbitMQURL            string `envconfig:"RABBITMQ_URL"`
	ClientUpdatesQueueName string `envconfig:"CLIENT_UPDATES_QUEUE_NAME" default:"client_updates"`
	RewardsQueueName       string `envconfig:"REWARDS_QUEUE_NAME" default:"lips_rewards"`

	// Настройки Redis (учет выданных realtime-токенов). Пустой адрес
	// отключает фиксацию jti.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Realtime-токены
	RealtimeTokenTTL time.Duration `envconfig:"REALTIME_TOKEN_TTL" default:"1h"`
	// Секретное поле БЕЗ envconfig тега
	JWTSecret string

	// Настройки AI
	AIClientType string        `envconfig:"AI_CLIENT_TYPE" default:"openai"`
	AIBaseURL    string        `envconfig:"AI_BASE_URL" default:"https://openrouter.ai/api/v1"`
	AIModel      string        `envconfig:"AI_MODEL" default:"deepseek/deepseek-chat-v3-0324"`
	AITimeout    time.Duration `envconfig:"AI_TIMEOUT" default:"2m"`
	// Секретное поле БЕЗ envconfig тега
	AIAPIKey string
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов.
func LoadConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации lips-server: %w", err)
	}

	// Обязательные секреты
	var loadErr error
	cfg.DBPassword, loadErr = utils.ReadSecret("db_password")
	if loadErr != nil {
		return nil, loadErr
	}
	cfg.JWTSecret, loadErr = utils.ReadSecret("jwt_secret")
	if loadErr != nil {
		return nil, loadErr
	}

	// Ключ AI обязателен только для openai-типа клиента; локальному
	// Ollama он не нужен.
	if cfg.AIClientType == "openai" {
		cfg.AIAPIKey, loadErr = utils.ReadSecret("ai_api_key")
		if loadErr != nil {
			return nil, loadErr
		}
	}

	log.Printf("Конфигурация Lips Server загружена (секреты из файлов):")
	log.Printf("  Port: %s", cfg.Port)
	log.Printf("  LogLevel: %s", cfg.LogLevel)
	log.Printf("  DB DSN: postgres://%s:***@%s:%s/%s?sslmode=%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)
	log.Printf("  RabbitMQ URL: %s", cfg.RabbitMQURL)
	log.Printf("  Client Updates Queue: %s", cfg.ClientUpdatesQueueName)
	log.Printf("  Rewards Queue: %s", cfg.RewardsQueueName)
	log.Printf("  Redis Addr: %s", cfg.RedisAddr)
	log.Printf("  AI Client Type: %s", cfg.AIClientType)
	log.Printf("  AI Model: %s", cfg.AIModel)
	log.Println("  JWT Secret: [ЗАГРУЖЕН]")

	return &cfg, nil
}
