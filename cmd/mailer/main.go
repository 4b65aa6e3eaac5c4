package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"mathtutor_go_backend/internal/mail"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// logSender prints messages instead of sending them, for local runs without SMTP.
type logSender struct {
	log zerolog.Logger
}

func (s logSender) Send(ctx context.Context, to, subject, body string) error {
	s.log.Info().Str("to", to).Str("subject", subject).Msg(body)
	return nil
}

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "mailer").Logger()
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found")
	}

	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		log.Fatal().Msg("RABBITMQ_URL is not set in the environment")
	}

	var sender mail.Sender
	if host := os.Getenv("SMTP_HOST"); host != "" {
		port := os.Getenv("SMTP_PORT")
		if port == "" {
			port = "587"
		}
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     host,
			Port:     port,
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		})
	} else {
		log.Warn().Msg("SMTP_HOST not set, emails are only logged")
		sender = logSender{log: log}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", mail.VerificationQueue).Msg("Mailer starting")
	if err := mail.NewConsumer(url, sender, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Mailer stopped")
	}
	log.Info().Msg("Mailer stopped")
}
