// Package notify announces accepted submissions to downstream consumers
// such as the store that fulfils tool requests.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/phillip-england/toolform/internal/intake"
)

type Submission struct {
	SessionID string                 `json:"sessionId"`
	Records   []intake.RequestRecord `json:"records"`
}

type Publisher interface {
	Publish(ctx context.Context, sub Submission) error
	Close() error
}

type Nop struct{}

func (Nop) Publish(context.Context, Submission) error { return nil }
func (Nop) Close() error                              { return nil }

type AMQPPublisher struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	timeout time.Duration
}

func DialAMQP(dsn, queue string, timeout time.Duration) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(dsn)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AMQPPublisher{conn: conn, ch: ch, queue: queue, timeout: timeout}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, sub Submission) error {
	body, err := encode(sub)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.ch.PublishWithContext(
		ctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	chErr := p.ch.Close()
	connErr := p.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}

func encode(sub Submission) ([]byte, error) {
	if len(sub.Records) == 0 {
		return nil, fmt.Errorf("submission has no records")
	}
	return json.Marshal(sub)
}
