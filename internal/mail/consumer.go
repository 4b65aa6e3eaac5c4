package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Consumer drains the verification queue into a Sender, reconnecting with
// exponential backoff until ctx is cancelled.
type Consumer struct {
	url    string
	sender Sender
	log    zerolog.Logger
}

func NewConsumer(url string, sender Sender, log zerolog.Logger) *Consumer {
	return &Consumer{url: url, sender: sender, log: log}
}

func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn().Err(err).Dur("retryIn", backoff).Msg("Failed to dial broker")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Msg("Consume loop ended, reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("Set QoS failed")
	}
	if _, err := ch.QueueDeclare(VerificationQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(VerificationQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	c.log.Info().Str("queue", VerificationQueue).Msg("Consuming verification emails")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(ctx, d.Body); err != nil {
				c.log.Error().Err(err).Msg("Failed to deliver verification email")
				// Reject without requeue to avoid a hot loop on a poisoned message.
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one queued message and sends it.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var email VerificationEmail
	if err := json.Unmarshal(body, &email); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if email.To == "" || email.Link == "" {
		return errors.New("verification email without recipient or link")
	}
	if err := c.sender.Send(ctx, email.To, email.Subject(), email.Body()); err != nil {
		return err
	}
	c.log.Info().Str("to", email.To).Msg("Verification email sent")
	return nil
}
