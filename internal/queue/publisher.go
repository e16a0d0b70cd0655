// Package queue publishes dose status changes to RabbitMQ for downstream
// consumers such as family sharing and analytics.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/hray3182/DoseLine/internal/models"
)

const DoseStatusQueue = "dose.status"

// dialTimeout bounds connection setup.
const dialTimeout = 3 * time.Second

// Publisher dials the broker for every message.
type Publisher struct {
	url    string
	queue  string
	logger *zap.Logger
}

func NewPublisher(url string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{url: url, queue: DoseStatusQueue, logger: logger}
}

// PublishDoseStatus sends event to the durable dose.status queue as a
// persistent JSON message.
func (p *Publisher) PublishDoseStatus(ctx context.Context, event models.DoseStatusEvent) error {
	msg, err := newPublishing(event)
	if err != nil {
		return err
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", p.queue, err)
	}

	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		msg,
	); err != nil {
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}

	p.logger.Debug("Published dose status",
		zap.String("event_id", event.EventID),
		zap.String("status", string(event.Status)))
	return nil
}

func newPublishing(event models.DoseStatusEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal dose status: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Type:         string(event.Status),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}
