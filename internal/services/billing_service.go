package services

import (
	"context"
	"errors"

	"mathtutor_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultTopUp int64 = 20

var tierTopUps = map[string]int64{
	models.PlanBasic:   50,
	models.PlanGold:    120,
	models.PlanPremium: 300,
}

// PriceTable maps plan tiers to provider price identifiers.
type PriceTable struct {
	Basic   string
	Gold    string
	Premium string
}

// TierFor returns the plan of a price identifier, or PlanNone when unknown.
func (p PriceTable) TierFor(priceID string) string {
	switch {
	case priceID == "":
		return models.PlanNone
	case priceID == p.Basic:
		return models.PlanBasic
	case priceID == p.Gold:
		return models.PlanGold
	case priceID == p.Premium:
		return models.PlanPremium
	}
	return models.PlanNone
}

func (p PriceTable) PriceFor(plan string) (string, bool) {
	var id string
	switch plan {
	case models.PlanBasic:
		id = p.Basic
	case models.PlanGold:
		id = p.Gold
	case models.PlanPremium:
		id = p.Premium
	}
	return id, id != ""
}

// TopUpFor returns the credits granted per payment of a tier.
func TopUpFor(tier string) int64 {
	if n, ok := tierTopUps[tier]; ok {
		return n
	}
	return DefaultTopUp
}

type CheckoutResult struct {
	SessionURL     string `json:"sessionUrl,omitempty"`
	Message        string `json:"message,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
}

type BillingService struct {
	provider BillingProvider
	ledger   CreditLedger
	users    UserService
	prices   PriceTable
}

func NewBillingService(provider BillingProvider, ledger CreditLedger, users UserService, prices PriceTable) *BillingService {
	return &BillingService{
		provider: provider,
		ledger:   ledger,
		users:    users,
		prices:   prices,
	}
}

// Checkout moves an active subscription to the plan's price in place, or
// opens a new hosted checkout when there is none.
func (s *BillingService) Checkout(ctx context.Context, userID uuid.UUID, planID string) (*CheckoutResult, error) {
	priceID, ok := s.prices.PriceFor(planID)
	if !ok {
		return nil, NewValidationError("unknown plan %q", planID)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	logger := zerolog.Ctx(ctx).With().Str("userID", userID.String()).Str("plan", planID).Logger()

	if user.CustomerID != "" && user.SubscriptionID != "" {
		current, err := s.provider.GetSubscription(user.SubscriptionID)
		if err != nil {
			return nil, err
		}
		if current.Active() {
			updated, err := s.provider.UpdateSubscriptionPrice(current, priceID)
			if err != nil {
				return nil, err
			}
			logger.Info().Str("subscriptionID", updated.ID).Msg("Subscription updated in place")
			return &CheckoutResult{Message: "Subscription Updated", SubscriptionID: updated.ID}, nil
		}
	}

	url, err := s.provider.CreateSubscriptionCheckout(user.CustomerID, user.Email, priceID, user.ID.String())
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("Checkout session created")
	return &CheckoutResult{SessionURL: url}, nil
}

// Cancel cancels the active subscription and clears the local plan. Without
// an active subscription nothing changes and ErrNoActiveSubscription is returned.
func (s *BillingService) Cancel(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.SubscriptionID == "" {
		return ErrNoActiveSubscription
	}
	current, err := s.provider.GetSubscription(user.SubscriptionID)
	if err != nil {
		return err
	}
	if !current.Active() {
		return ErrNoActiveSubscription
	}
	if err := s.provider.CancelSubscription(current.ID); err != nil {
		return err
	}
	if err := s.ledger.ClearSubscription(ctx, userID); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("userID", userID.String()).Str("subscriptionID", current.ID).Msg("Subscription canceled")
	return nil
}

func (s *BillingService) Donate(ctx context.Context, amount int64) (string, error) {
	if amount <= 0 {
		return "", NewValidationError("amount must be a positive number of dollars")
	}
	return s.provider.CreatePaymentCheckout(amount)
}

// HandleEvent verifies and applies a provider callback. Events that cannot
// be applied to any user are logged and acknowledged so they are not redelivered.
func (s *BillingService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := s.provider.ConstructEvent(payload, signature)
	if err != nil {
		return err
	}
	logger := zerolog.Ctx(ctx).With().Str("eventID", event.ID).Str("eventType", event.Type).Logger()

	switch event.Type {
	case EventPaymentSucceeded:
		return s.applyPayment(ctx, logger, event)
	case EventSubscriptionDeleted:
		return s.applySubscriptionDeleted(ctx, logger, event)
	default:
		logger.Debug().Msg("Ignoring webhook event")
		return nil
	}
}

func (s *BillingService) applyPayment(ctx context.Context, logger zerolog.Logger, event *BillingEvent) error {
	p := event.Payment
	if p == nil || p.CustomerEmail == "" {
		logger.Warn().Msg("Payment event without customer email dropped")
		return nil
	}
	user, err := s.users.GetByEmail(ctx, p.CustomerEmail)
	if errors.Is(err, ErrUserNotFound) {
		logger.Warn().Str("email", p.CustomerEmail).Msg("Payment for unknown user dropped")
		return nil
	}
	if err != nil {
		return err
	}

	tier := s.prices.TierFor(p.PriceID)
	topUp := TopUpFor(tier)
	balance, applied, err := s.ledger.Credit(ctx, user.ID, topUp, BillingState{
		Plan:           tier,
		CustomerID:     p.CustomerID,
		SubscriptionID: p.SubscriptionID,
	}, event.ID)
	if err != nil {
		return err
	}
	if !applied {
		logger.Info().Str("userID", user.ID.String()).Msg("Duplicate payment event ignored")
		return nil
	}
	logger.Info().
		Str("userID", user.ID.String()).
		Str("plan", tier).
		Int64("topUp", topUp).
		Int64("balance", balance).
		Msg("Credits topped up")
	return nil
}

func (s *BillingService) applySubscriptionDeleted(ctx context.Context, logger zerolog.Logger, event *BillingEvent) error {
	if event.DeletedSubscriptionID == "" {
		return nil
	}
	user, err := s.users.GetBySubscriptionID(ctx, event.DeletedSubscriptionID)
	if errors.Is(err, ErrUserNotFound) {
		logger.Debug().Str("subscriptionID", event.DeletedSubscriptionID).Msg("No user holds deleted subscription")
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.ledger.ClearSubscription(ctx, user.ID); err != nil {
		return err
	}
	logger.Info().Str("userID", user.ID.String()).Msg("Subscription cleared after provider deletion")
	return nil
}
