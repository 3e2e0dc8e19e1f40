// Package messaging публикует события игры во внешние очереди RabbitMQ.
// Доставка realtime-событий - best effort: игра никогда не ломается
// из-за недоступного брокера.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"lips-server/internal/models"
)

// ClientUpdatesQueue - очередь, из которой websocket-шлюз раздает
// события подписчикам каналов.
const ClientUpdatesQueue = "client_updates"

// ChannelName возвращает имя realtime-канала сессии.
func ChannelName(sessionID uuid.UUID) string {
	return "lips:session:" + sessionID.String()
}

// EventEnvelope - сообщение для websocket-шлюза: канал, имя события и
// произвольная полезная нагрузка.
type EventEnvelope struct {
	Channel     string           `json:"channel"`
	Event       models.EventType `json:"event"`
	Data        json.RawMessage  `json:"data"`
	PublishedAt time.Time        `json:"publishedAt"`
}

// EventBroadcaster публикует события сессии в realtime-канал.
type EventBroadcaster interface {
	PublishSessionEvent(ctx context.Context, sessionID uuid.UUID, event models.EventType, data any) error
}

// rabbitEventBroadcaster реализует EventBroadcaster поверх RabbitMQ.
type rabbitEventBroadcaster struct {
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitEventBroadcaster открывает канал и объявляет очередь обновлений.
func NewRabbitEventBroadcaster(conn *amqp.Connection, queueName string, logger *zap.Logger) (EventBroadcaster, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("event broadcaster: не удалось открыть канал: %w", err)
	}
	// Параметры должны совпадать с консьюмером websocket-шлюза.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("event broadcaster: не удалось объявить очередь '%s': %w", queueName, err)
	}
	logger.Info("Event broadcaster initialized", zap.String("queue", queueName))
	return &rabbitEventBroadcaster{
		channel:   ch,
		queueName: queueName,
		logger:    logger.Named("EventBroadcaster"),
	}, nil
}

// PublishSessionEvent отправляет событие в канал сессии.
func (b *rabbitEventBroadcaster) PublishSessionEvent(ctx context.Context, sessionID uuid.UUID, event models.EventType, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события %s: %w", event, err)
	}
	envelope := EventEnvelope{
		Channel:     ChannelName(sessionID),
		Event:       event,
		Data:        raw,
		PublishedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("ошибка сериализации конверта события %s: %w", event, err)
	}
	return b.publishMessage(ctx, body)
}

// publishMessage публикует сообщение в очередь с retry.
func (b *rabbitEventBroadcaster) publishMessage(ctx context.Context, body []byte) error {
	if b.channel == nil {
		return errors.New("канал RabbitMQ не инициализирован")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		err = b.channel.PublishWithContext(ctx,
			"",          // exchange (default)
			b.queueName, // routing key = имя очереди
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        "lips-server",
			},
		)
		if err == nil {
			return nil
		}
		b.logger.Warn("Failed to publish event, retrying",
			zap.Int("attempt", attempt),
			zap.String("queue", b.queueName),
			zap.Error(err))
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return fmt.Errorf("ошибка публикации в очередь %s после retries: %w", b.queueName, err)
}

// noopEventBroadcaster используется, когда брокер не сконфигурирован.
type noopEventBroadcaster struct {
	logger *zap.Logger
}

// NewNoopEventBroadcaster возвращает заглушку, которая только логирует
// события. Сервис работает без realtime-доставки.
func NewNoopEventBroadcaster(logger *zap.Logger) EventBroadcaster {
	return &noopEventBroadcaster{logger: logger.Named("NoopBroadcaster")}
}

func (b *noopEventBroadcaster) PublishSessionEvent(_ context.Context, sessionID uuid.UUID, event models.EventType, _ any) error {
	b.logger.Debug("Realtime broadcast skipped (no broker configured)",
		zap.String("channel", ChannelName(sessionID)),
		zap.String("event", string(event)))
	return nil
}
