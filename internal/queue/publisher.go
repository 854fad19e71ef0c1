package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Publisher sends JSON messages to durable queues on the default exchange.
// Each publish opens its own connection; failures are logged and returned
// so callers on a request path can ignore them.
type Publisher struct {
	url string
}

func NewPublisher(url string) *Publisher { return &Publisher{url: url} }

// Publish declares queueName and publishes v as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, queueName string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", queueName, err)
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Warn().Err(err).Str("queue", queueName).Msg("rabbitmq dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn().Err(err).Str("queue", queueName).Msg("rabbitmq channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.Warn().Err(err).Str("queue", queueName).Msg("rabbitmq queue declare failed")
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		log.Warn().Err(err).Str("queue", queueName).Msg("rabbitmq publish failed")
		return err
	}
	return nil
}

func (p *Publisher) PublishConsentState(ctx context.Context, ev ConsentStateChange) error {
	return p.Publish(ctx, ConsentStateQueue, ev)
}

func (p *Publisher) PublishAuthorisationMetric(ctx context.Context, m AuthorisationMetric) error {
	return p.Publish(ctx, AuthorisationMetricQueue, m)
}

func (p *Publisher) PublishInvocationError(ctx context.Context, e InvocationError) error {
	return p.Publish(ctx, InvocationErrorQueue, e)
}
