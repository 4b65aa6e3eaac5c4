package services_test

import (
	"context"

	"mathtutor_go_backend/internal/models"
	"mathtutor_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req services.GenerationRequest) (*services.Generation, error) {
	args := m.Called(ctx, req)
	if gen := args.Get(0); gen != nil {
		return gen.(*services.Generation), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockCreditLedger struct {
	mock.Mock
}

func (m *MockCreditLedger) Read(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCreditLedger) Debit(ctx context.Context, userID uuid.UUID, charge services.Charge) (int64, error) {
	args := m.Called(ctx, userID, charge)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCreditLedger) Credit(ctx context.Context, userID uuid.UUID, amount int64, state services.BillingState, eventID string) (int64, bool, error) {
	args := m.Called(ctx, userID, amount, state, eventID)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockCreditLedger) ClearSubscription(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockChatServiceDB struct {
	mock.Mock
}

func (m *MockChatServiceDB) EnsureSession(ctx context.Context, ownerID uuid.UUID) (*models.Chat, error) {
	args := m.Called(ctx, ownerID)
	if chat := args.Get(0); chat != nil {
		return chat.(*models.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChatServiceDB) CreateChat(ctx context.Context, ownerID uuid.UUID, name, description string) (*models.Chat, error) {
	args := m.Called(ctx, ownerID, name, description)
	if chat := args.Get(0); chat != nil {
		return chat.(*models.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChatServiceDB) ListChats(ctx context.Context, ownerID uuid.UUID) ([]models.Chat, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]models.Chat), args.Error(1)
}

func (m *MockChatServiceDB) GetChat(ctx context.Context, ownerID, chatID uuid.UUID) (*models.Chat, error) {
	args := m.Called(ctx, ownerID, chatID)
	if chat := args.Get(0); chat != nil {
		return chat.(*models.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChatServiceDB) SaveMessage(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockChatServiceDB) CountMessages(ctx context.Context, chatID uuid.UUID, sender string) (int64, error) {
	args := m.Called(ctx, chatID, sender)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChatServiceDB) ListMessages(ctx context.Context, ownerID, chatID uuid.UUID) ([]models.Message, error) {
	args := m.Called(ctx, ownerID, chatID)
	return args.Get(0).([]models.Message), args.Error(1)
}

type MockBillingProvider struct {
	mock.Mock
}

func (m *MockBillingProvider) GetSubscription(id string) (*services.ProviderSubscription, error) {
	args := m.Called(id)
	if sub := args.Get(0); sub != nil {
		return sub.(*services.ProviderSubscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBillingProvider) UpdateSubscriptionPrice(sub *services.ProviderSubscription, priceID string) (*services.ProviderSubscription, error) {
	args := m.Called(sub, priceID)
	if out := args.Get(0); out != nil {
		return out.(*services.ProviderSubscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBillingProvider) CancelSubscription(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockBillingProvider) CreateSubscriptionCheckout(customerID, email, priceID, clientReference string) (string, error) {
	args := m.Called(customerID, email, priceID, clientReference)
	return args.String(0), args.Error(1)
}

func (m *MockBillingProvider) CreatePaymentCheckout(amountUSD int64) (string, error) {
	args := m.Called(amountUSD)
	return args.String(0), args.Error(1)
}

func (m *MockBillingProvider) ConstructEvent(payload []byte, signatureHeader string) (*services.BillingEvent, error) {
	args := m.Called(payload, signatureHeader)
	if ev := args.Get(0); ev != nil {
		return ev.(*services.BillingEvent), args.Error(1)
	}
	return nil, args.Error(1)
}
