package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RewardsQueue - очередь начисления наград за игровые действия.
const RewardsQueue = "lips_rewards"

// RewardPayload - задача начисления награды пользователю.
type RewardPayload struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
	Amount    int    `json:"amount"`
}

// RewardPublisher публикует задачи начисления наград. Начисление
// асинхронное, провал публикации не откатывает игровое действие.
type RewardPublisher interface {
	PublishReward(ctx context.Context, payload RewardPayload) error
}

type rabbitRewardPublisher struct {
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitRewardPublisher открывает канал и объявляет durable-очередь наград.
func NewRabbitRewardPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (RewardPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("reward publisher: не удалось открыть канал: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("reward publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}
	logger.Info("Reward publisher initialized", zap.String("queue", queueName))
	return &rabbitRewardPublisher{
		channel:   ch,
		queueName: queueName,
		logger:    logger.Named("RewardPublisher"),
	}, nil
}

// PublishReward публикует задачу начисления награды.
func (p *rabbitRewardPublisher) PublishReward(ctx context.Context, payload RewardPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации награды для UserID %s: %w", payload.UserID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			AppId:        "lips-server",
		},
	)
	if err != nil {
		return fmt.Errorf("ошибка публикации награды в очередь %s: %w", p.queueName, err)
	}
	p.logger.Debug("Reward published",
		zap.String("userID", payload.UserID),
		zap.String("reason", payload.Reason),
		zap.Int("amount", payload.Amount))
	return nil
}

// noopRewardPublisher используется без сконфигурированного брокера.
type noopRewardPublisher struct {
	logger *zap.Logger
}

// NewNoopRewardPublisher возвращает заглушку начисления наград.
func NewNoopRewardPublisher(logger *zap.Logger) RewardPublisher {
	return &noopRewardPublisher{logger: logger.Named("NoopRewardPublisher")}
}

func (p *noopRewardPublisher) PublishReward(_ context.Context, payload RewardPayload) error {
	p.logger.Debug("Reward skipped (no broker configured)",
		zap.String("userID", payload.UserID),
		zap.String("reason", payload.Reason))
	return nil
}
