// Package events publishes sync results to an AMQP exchange.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/jask/ledgersync/internal/config"
	"github.com/jask/ledgersync/internal/logger"
)

const publishTimeout = 5 * time.Second

// Publisher sends one event.
type Publisher interface {
	Publish(ctx context.Context, kind string, payload any) error
	Close() error
}

// New returns an AMQP publisher, or a no-op one when no broker URL is configured.
func New(cfg config.EventsConfig) (Publisher, error) {
	if cfg.AMQPURL == "" {
		return Nop{}, nil
	}
	return NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange, cfg.RoutingKey)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

func (Nop) Close() error { return nil }

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPPublisher publishes persistent JSON messages to a durable direct exchange.
type AMQPPublisher struct {
	conn       *amqp091.Connection
	channel    channel
	exchange   string
	routingKey string
}

func NewAMQPPublisher(url, exchange, routingKey string) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange, routingKey: routingKey}, nil
}

// Publish wraps payload in an Envelope and sends it with the configured routing key.
func (p *AMQPPublisher) Publish(ctx context.Context, kind string, payload any) error {
	env, err := NewEnvelope(kind, payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	body, err := env.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    env.ID,
			Type:         kind,
			Timestamp:    env.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("kind", kind).
		Str("message_id", env.ID).
		Str("exchange", p.exchange).
		Msg("event published")
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
