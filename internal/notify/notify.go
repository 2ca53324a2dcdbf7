package notify

import (
	"context"
	"encoding/json"

	"github.com/streadway/amqp"
)

// SentEvent announces a delivered message so downstream consumers
// (lead tracking, the approval UI) can react.
type SentEvent struct {
	MessageID         int64  `json:"message_id"`
	LeadID            int64  `json:"lead_id"`
	ProviderMessageID string `json:"provider_message_id"`
}

// Publisher emits sent events. Publishing is best effort from the
// dispatcher's point of view: a broker outage never blocks delivery
// bookkeeping.
type Publisher interface {
	PublishSent(ctx context.Context, event SentEvent) error
	Close() error
}

const sentQueue = "outreach_sent"

// AMQPPublisher publishes sent events to a durable RabbitMQ queue.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	_, err = ch.QueueDeclare(
		sentQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPPublisher{conn: conn, channel: ch}, nil
}

func (p *AMQPPublisher) PublishSent(ctx context.Context, event SentEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.channel.Publish(
		"",        // default exchange
		sentQueue, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishSent(ctx context.Context, event SentEvent) error { return nil }
func (NopPublisher) Close() error                                           { return nil }
