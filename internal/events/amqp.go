package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/storelens/storelens/internal/reliability/retry"
)

// Exchange is the topic exchange events are published to, routed by event type
const Exchange = "storelens.events"

// AMQPPublisher publishes events to RabbitMQ
type AMQPPublisher struct {
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
}

// DialAMQP connects to the broker and declares the exchange
func DialAMQP(ctx context.Context, url string, logger *slog.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := retry.Do(ctx, retry.DefaultConfig(), logger, "rabbitmq dial", func(ctx context.Context) (*amqp.Connection, error) {
		return amqp.Dial(url)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	logger.Info("rabbitmq connected", slog.String("exchange", Exchange))
	return &AMQPPublisher{conn: conn, ch: ch, logger: logger}, nil
}

// Publish sends e as a persistent JSON message
func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, Exchange, e.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    e.ID,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{"tenant_id": e.TenantID},
	})
	if err != nil {
		p.logger.Warn("failed to publish event",
			slog.String("type", e.Type),
			slog.String("tenant_id", e.TenantID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Close closes the channel and connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
