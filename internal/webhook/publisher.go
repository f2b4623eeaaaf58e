package webhook

//go:generate mockgen -source=publisher.go -destination=mocks/mock_publisher.go -package=mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	notificationQueueKey = "notification_events"
)

// Event - структура для данных уведомления
type Event struct {
	ID          uuid.UUID                    `json:"id"`
	Kind        models.NotificationEvent     `json:"kind"`
	IncidentID  uuid.UUID                    `json:"incident_id"`
	Recipient   models.NotificationRecipient `json:"recipient"`
	RecipientID string                       `json:"recipient_id"`
	Status      models.IncidentStatus        `json:"status"`
	Timestamp   time.Time                    `json:"timestamp"`
}

// EventFromNotification преобразует сохраненное уведомление в событие для доставки
func EventFromNotification(n *models.Notification) Event {
	return Event{
		ID:          n.ID,
		Kind:        n.Event,
		IncidentID:  n.IncidentID,
		Recipient:   n.Recipient,
		RecipientID: n.RecipientID,
		Status:      n.Status,
		Timestamp:   n.CreatedAt,
	}
}

// Publisher - интерфейс для публикации уведомлений
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// RedisPublisher - реализация Publisher, использующая Redis
type RedisPublisher struct {
	redisClient *redis.Client
}

// NewRedisPublisher создает новый RedisPublisher
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{
		redisClient: client,
	}
}

// Publish публикует событие в очередь Redis
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	// LPUSH добавляет событие в левую часть списка, воркер забирает справа
	if err := p.redisClient.LPush(ctx, notificationQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification event to Redis: %w", err)
	}
	return nil
}

// FanoutPublisher публикует событие во все приемники и объединяет ошибки
type FanoutPublisher struct {
	publishers []Publisher
}

func NewFanoutPublisher(publishers ...Publisher) *FanoutPublisher {
	return &FanoutPublisher{publishers: publishers}
}

func (f *FanoutPublisher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
