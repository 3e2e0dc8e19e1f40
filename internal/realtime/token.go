// Package realtime выдает краткоживущие токены доступа к каналам
// websocket-шлюза. Токен подписывается HS256, jti фиксируется в Redis,
// чтобы шлюз мог отзывать и учитывать выданные подписки.
package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"lips-server/internal/messaging"
)

// DefaultTokenTTL - срок жизни realtime-токена по умолчанию.
const DefaultTokenTTL = time.Hour

// ChannelClaims - полезная нагрузка realtime-токена: клиент, канал и
// разрешенные операции.
type ChannelClaims struct {
	ClientID             string   `json:"client_id"`
	Channel              string   `json:"channel"`
	Capabilities         []string `json:"capabilities"`
	jwt.RegisteredClaims          // Issuer, Subject, ExpiresAt, IssuedAt, ID (JTI)
}

// ChannelToken - выданный токен вместе с метаданными для клиента.
type ChannelToken struct {
	Token     string    `json:"token"`
	Channel   string    `json:"channel"`
	ClientID  string    `json:"clientId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenIssuer выдает токены подписки на канал сессии.
type TokenIssuer interface {
	IssueSessionToken(ctx context.Context, sessionID uuid.UUID, userID string) (*ChannelToken, error)
}

type jwtTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	redis  *redis.Client // может быть nil, тогда jti не фиксируется
	logger *zap.Logger
}

// NewTokenIssuer создает издателя токенов. Redis-клиент опционален:
// без него токены остаются валидными, но не отзываемыми.
func NewTokenIssuer(secret string, ttl time.Duration, redisClient *redis.Client, logger *zap.Logger) TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &jwtTokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		redis:  redisClient,
		logger: logger.Named("RealtimeTokens"),
	}
}

// IssueSessionToken выдает токен подписки на канал сессии.
func (i *jwtTokenIssuer) IssueSessionToken(ctx context.Context, sessionID uuid.UUID, userID string) (*ChannelToken, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(i.ttl)
	jti := uuid.NewString()
	channel := messaging.ChannelName(sessionID)

	claims := ChannelClaims{
		ClientID:     userID,
		Channel:      channel,
		Capabilities: []string{"subscribe"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "lips-server",
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("не удалось подписать realtime-токен: %w", err)
	}

	if i.redis != nil {
		key := fmt.Sprintf("realtime_jti:%s", jti)
		if err := i.redis.Set(ctx, key, userID, i.ttl).Err(); err != nil {
			// Токен уже подписан и рабочий, фиксация jti - best effort.
			i.logger.Warn("Failed to record realtime token jti in Redis",
				zap.String("jti", jti),
				zap.Error(err))
		}
	}

	i.logger.Debug("Realtime token issued",
		zap.String("channel", channel),
		zap.String("clientID", userID),
		zap.Time("expiresAt", expiresAt))

	return &ChannelToken{
		Token:     signed,
		Channel:   channel,
		ClientID:  userID,
		ExpiresAt: expiresAt,
	}, nil
}
