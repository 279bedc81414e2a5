package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, v interface{}) error
}

type rabbitMQPublisher struct {
	channel  *amqp.Channel
	exchange string
	logger   zerolog.Logger
}

func NewRabbitMQPublisher(channel *amqp.Channel, exchange string, logger zerolog.Logger) Publisher {
	return &rabbitMQPublisher{
		channel:  channel,
		exchange: exchange,
		logger:   logger,
	}
}

func (p *rabbitMQPublisher) PublishJSON(ctx context.Context, routingKey string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.channel.PublishWithContext(
		publishCtx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

// NopPublisher drops every message. Used when RabbitMQ is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishJSON(context.Context, string, interface{}) error { return nil }
