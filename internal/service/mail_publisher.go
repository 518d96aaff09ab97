// Package service provides functions to publish account mail to RabbitMQ.
// Errors are logged and returned so callers can ignore failures without
// interrupting the main request flow.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/campus-marketplace/internal/queue"
)

// defaultDialTimeout bounds connecting and the AMQP handshake. Mail is best
// effort, so an unreachable broker must not hold a signup for long.
const defaultDialTimeout = 3 * time.Second

// MailPublisher publishes MailEvents to the durable auth.mail queue.
type MailPublisher struct {
	URL         string
	DialTimeout time.Duration
}

// NewMailPublisher resolves the broker URL the same way the consumer does.
func NewMailPublisher() *MailPublisher {
	return &MailPublisher{URL: queue.BrokerURL(), DialTimeout: defaultDialTimeout}
}

// dial connects within DialTimeout, or sooner when ctx has an earlier
// deadline.
func (p *MailPublisher) dial(ctx context.Context) (*amqp.Connection, error) {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	if dl, ok := ctx.Deadline(); ok {
		left := time.Until(dl)
		if left <= 0 {
			return nil, context.DeadlineExceeded
		}
		if left < timeout {
			timeout = left
		}
	}
	return amqp.DialConfig(p.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// Publish dials the broker, declares the queue and sends ev as a persistent
// JSON message. A connection is opened per message; mail volume is a handful
// of messages per signup or recovery.
func (p *MailPublisher) Publish(ctx context.Context, ev queue.MailEvent) error {
	conn, err := p.dial(ctx)
	if err != nil {
		slog.Warn("rabbitmq: dial failed", "err", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		slog.Warn("rabbitmq: channel open failed", "err", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queue.MailQueueName, // name
		true,                // durable
		false,               // autoDelete
		false,               // exclusive
		false,               // noWait
		nil,                 // args
	); err != nil {
		slog.Warn("rabbitmq: queue declare failed", "err", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue.MailQueueName, false, false, pub); err != nil {
		slog.Warn("rabbitmq: publish failed", "err", err, "kind", ev.Kind)
		return err
	}
	return nil
}
