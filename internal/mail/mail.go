// Package mail queues account verification emails on RabbitMQ and delivers
// them from a separate consumer process.
package mail

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

const VerificationQueue = "email.verification"

// VerificationEmail is the queued message body.
type VerificationEmail struct {
	To        string `json:"to"`
	FirstName string `json:"firstName"`
	Link      string `json:"link"`
}

func (e VerificationEmail) Subject() string {
	return "Verify your email address"
}

func (e VerificationEmail) Body() string {
	name := e.FirstName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s,\r\n\r\nPlease confirm your email address by opening the link below:\r\n\r\n%s\r\n\r\nIf you did not create an account you can ignore this message.\r\n", name, e.Link)
}

type Publisher interface {
	PublishVerification(ctx context.Context, email VerificationEmail) error
}

// LogPublisher only logs the message. Used when no broker is configured.
type LogPublisher struct {
	Logger zerolog.Logger
}

func (p LogPublisher) PublishVerification(ctx context.Context, email VerificationEmail) error {
	p.Logger.Info().
		Str("to", email.To).
		Str("link", email.Link).
		Msg("Verification email not queued, no broker configured")
	return nil
}
