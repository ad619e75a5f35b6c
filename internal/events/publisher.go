// internal/events/publisher.go
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/streadway/amqp"
)

// JobEvent is published on every terminal job transition for downstream
// consumers (reporting, webhooks).
type JobEvent struct {
	JobID             int       `json:"job_id"`
	TenantID          int       `json:"tenant_id"`
	Channel           string    `json:"channel"`
	Status            string    `json:"status"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	Error             string    `json:"error,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev JobEvent) error
}

// AMQPPublisher publishes job events to a durable RabbitMQ queue.
type AMQPPublisher struct {
	ch    *amqp.Channel
	queue string
}

func NewAMQPPublisher(conn *amqp.Connection, queue string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, err
	}

	return &AMQPPublisher{ch: ch, queue: queue}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev JobEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.ch.Publish(
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

func (p *AMQPPublisher) Close() error { return p.ch.Close() }

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, ev JobEvent) error { return nil }

var (
	_ Publisher = (*AMQPPublisher)(nil)
	_ Publisher = NopPublisher{}
)
