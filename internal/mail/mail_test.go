package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

func TestConsumerHandle(t *testing.T) {
	sender := new(MockSender)
	consumer := NewConsumer("amqp://unused", sender, zerolog.Nop())
	ctx := context.Background()

	t.Run("Delivers queued email", func(t *testing.T) {
		body, err := json.Marshal(VerificationEmail{To: "ada@example.com", FirstName: "Ada", Link: "https://tutor.example.com/verify?token=abc"})
		require.NoError(t, err)
		sender.On("Send", mock.Anything, "ada@example.com", "Verify your email address",
			mock.MatchedBy(func(b string) bool {
				return strings.Contains(b, "Hi Ada") && strings.Contains(b, "verify?token=abc")
			})).Return(nil).Once()

		assert.NoError(t, consumer.Handle(ctx, body))
		sender.AssertExpectations(t)
	})

	t.Run("Rejects malformed body", func(t *testing.T) {
		assert.Error(t, consumer.Handle(ctx, []byte("{")))
		assert.Error(t, consumer.Handle(ctx, []byte(`{"to":"a@example.com"}`)))
	})

	t.Run("Surfaces sender failure", func(t *testing.T) {
		sender.ExpectedCalls = nil
		sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()

		err := consumer.Handle(ctx, []byte(`{"to":"a@example.com","link":"https://x/verify?token=t"}`))
		assert.EqualError(t, err, "smtp down")
	})
}

func TestSMTPSender(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	sender := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: "587", Username: "u", Password: "p", From: "noreply@example.com"})
	sender.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	require.NoError(t, sender.Send(context.Background(), "ada@example.com", "Subject line", "hello"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"ada@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Subject line\r\n")
	assert.True(t, strings.HasSuffix(string(gotMsg), "\r\n\r\nhello"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sender.Send(ctx, "ada@example.com", "s", "b"), context.Canceled)
}

func TestVerificationEmailBody(t *testing.T) {
	assert.Contains(t, VerificationEmail{Link: "L"}.Body(), "Hi there")
	assert.NoError(t, LogPublisher{Logger: zerolog.Nop()}.PublishVerification(context.Background(), VerificationEmail{To: "a@example.com"}))
}
