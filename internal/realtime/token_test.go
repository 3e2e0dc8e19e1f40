package realtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lips-server/internal/messaging"
	"lips-server/internal/realtime"
)

const testSecret = "test-realtime-secret"

func TestIssueSessionToken(t *testing.T) {
	ctx := context.Background()
	sessionID := uuid.New()
	userID := "user-42"

	issuer := realtime.NewTokenIssuer(testSecret, 30*time.Minute, nil, zap.NewNop())

	token, err := issuer.IssueSessionToken(ctx, sessionID, userID)
	require.NoError(t, err)
	require.NotNil(t, token)

	assert.Equal(t, messaging.ChannelName(sessionID), token.Channel)
	assert.Equal(t, userID, token.ClientID)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), token.ExpiresAt, 5*time.Second)

	// Токен должен проходить верификацию тем же секретом
	claims := &realtime.ChannelClaims{}
	parsed, err := jwt.ParseWithClaims(token.Token, claims, func(t *jwt.Token) (any, error) {
		return []byte(testSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	assert.Equal(t, "lips-server", claims.Issuer)
	assert.Equal(t, userID, claims.Subject)
	assert.Equal(t, userID, claims.ClientID)
	assert.Equal(t, messaging.ChannelName(sessionID), claims.Channel)
	assert.Equal(t, []string{"subscribe"}, claims.Capabilities)
	assert.NotEmpty(t, claims.ID, "jti должен быть проставлен")
}

func TestIssueSessionToken_DefaultTTL(t *testing.T) {
	issuer := realtime.NewTokenIssuer(testSecret, 0, nil, zap.NewNop())

	token, err := issuer.IssueSessionToken(context.Background(), uuid.New(), "user-42")
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(realtime.DefaultTokenTTL), token.ExpiresAt, 5*time.Second)
}

func TestIssueSessionToken_WrongSecretFailsVerification(t *testing.T) {
	issuer := realtime.NewTokenIssuer(testSecret, time.Minute, nil, zap.NewNop())

	token, err := issuer.IssueSessionToken(context.Background(), uuid.New(), "user-42")
	require.NoError(t, err)

	_, err = jwt.ParseWithClaims(token.Token, &realtime.ChannelClaims{}, func(t *jwt.Token) (any, error) {
		return []byte("another-secret"), nil
	})
	assert.Error(t, err)
}

func TestUniqueJTIPerToken(t *testing.T) {
	issuer := realtime.NewTokenIssuer(testSecret, time.Minute, nil, zap.NewNop())
	sessionID := uuid.New()

	first, err := issuer.IssueSessionToken(context.Background(), sessionID, "user-42")
	require.NoError(t, err)
	second, err := issuer.IssueSessionToken(context.Background(), sessionID, "user-42")
	require.NoError(t, err)

	parse := func(raw string) *realtime.ChannelClaims {
		claims := &realtime.ChannelClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		})
		require.NoError(t, err)
		return claims
	}

	assert.NotEqual(t, parse(first.Token).ID, parse(second.Token).ID)
}
