package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"lips-server/internal/ai"
	"lips-server/internal/messaging"
	"lips-server/internal/models"
	"lips-server/internal/repository"
)

// TxManager - тестовая реализация TransactionManager: выполняет fn без
// реальной транзакции, передавая ей сконфигурированный DBTX (обычно nil,
// мок репозитория его не использует).
type TxManager struct {
	DB repository.DBTX
}

func (m *TxManager) Pool() repository.DBTX {
	return m.DB
}

func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.DBTX) error) error {
	return fn(ctx, m.DB)
}

// Mock EventBroadcaster
type EventBroadcaster struct {
	mock.Mock
}

func (m *EventBroadcaster) PublishSessionEvent(ctx context.Context, sessionID uuid.UUID, event models.EventType, data any) error {
	args := m.Called(ctx, sessionID, event, data)
	return args.Error(0)
}

// Mock RewardPublisher
type RewardPublisher struct {
	mock.Mock
}

func (m *RewardPublisher) PublishReward(ctx context.Context, payload messaging.RewardPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// Mock AIClient
type AIClient struct {
	mock.Mock
}

func (m *AIClient) GenerateText(ctx context.Context, userID, systemPrompt, userInput string, params ai.Params) (string, ai.UsageInfo, error) {
	args := m.Called(ctx, userID, systemPrompt, userInput, params)
	var usage ai.UsageInfo
	if args.Get(1) != nil {
		usage = args.Get(1).(ai.UsageInfo)
	}
	return args.String(0), usage, args.Error(2)
}
