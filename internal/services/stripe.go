package services

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// ProviderSubscription is the part of a provider subscription billing cares about.
type ProviderSubscription struct {
	ID      string
	Status  string
	ItemID  string
	PriceID string
}

func (s *ProviderSubscription) Active() bool {
	return s.Status == string(stripe.SubscriptionStatusActive)
}

type PaymentSucceeded struct {
	CustomerEmail  string
	CustomerID     string
	PriceID        string
	SubscriptionID string
}

// BillingEvent is a verified provider callback. Only one of the payload
// fields is set, depending on Type.
type BillingEvent struct {
	ID                    string
	Type                  string
	Payment               *PaymentSucceeded
	DeletedSubscriptionID string
}

type BillingProvider interface {
	GetSubscription(id string) (*ProviderSubscription, error)
	UpdateSubscriptionPrice(sub *ProviderSubscription, priceID string) (*ProviderSubscription, error)
	CancelSubscription(id string) error
	CreateSubscriptionCheckout(customerID, email, priceID, clientReference string) (string, error)
	CreatePaymentCheckout(amountUSD int64) (string, error)
	ConstructEvent(payload []byte, signatureHeader string) (*BillingEvent, error)
}

type StripeService struct {
	webhookSecret string
	siteURL       string
}

func NewStripeService(secretKey, webhookSecret, siteURL string) *StripeService {
	stripe.Key = secretKey
	return &StripeService{
		webhookSecret: webhookSecret,
		siteURL:       siteURL,
	}
}

func toProviderSubscription(sub *stripe.Subscription) *ProviderSubscription {
	out := &ProviderSubscription{ID: sub.ID, Status: string(sub.Status)}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.ItemID = item.ID
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
	}
	return out
}

func (s *StripeService) GetSubscription(id string) (*ProviderSubscription, error) {
	sub, err := subscription.Get(id, nil)
	if err != nil {
		return nil, upstream("stripe", err)
	}
	return toProviderSubscription(sub), nil
}

func (s *StripeService) UpdateSubscriptionPrice(current *ProviderSubscription, priceID string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
		ProrationBehavior: stripe.String("create_prorations"),
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(current.ItemID),
				Price: stripe.String(priceID),
			},
		},
	}
	sub, err := subscription.Update(current.ID, params)
	if err != nil {
		return nil, upstream("stripe", err)
	}
	return toProviderSubscription(sub), nil
}

func (s *StripeService) CancelSubscription(id string) error {
	if _, err := subscription.Cancel(id, nil); err != nil {
		return upstream("stripe", err)
	}
	return nil
}

// CreateSubscriptionCheckout opens a hosted checkout for a plan price. An
// existing customer is reused, otherwise the email is prefilled.
func (s *StripeService) CreateSubscriptionCheckout(customerID, email, priceID, clientReference string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(s.siteURL + "/dashboard/payment?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.siteURL + "/dashboard/payment"),
		ClientReferenceID: stripe.String(clientReference),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	} else {
		params.CustomerEmail = stripe.String(email)
	}

	sess, err := session.New(params)
	if err != nil {
		return "", upstream("stripe", err)
	}
	return sess.URL, nil
}

func (s *StripeService) CreatePaymentCheckout(amountUSD int64) (string, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("usd"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Custom Payment"),
					},
					UnitAmount: stripe.Int64(amountUSD * 100),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.siteURL + "/success"),
		CancelURL:  stripe.String(s.siteURL + "/failed"),
	}

	sess, err := session.New(params)
	if err != nil {
		return "", upstream("stripe", err)
	}
	return sess.URL, nil
}

// ConstructEvent verifies the signature header and decodes the event types
// billing acts on. Other types come back with only ID and Type set.
func (s *StripeService) ConstructEvent(payload []byte, signatureHeader string) (*BillingEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	out := &BillingEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case EventPaymentSucceeded:
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, NewValidationError("malformed invoice payload")
		}
		out.Payment = paymentFromInvoice(&invoice)
	case EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, NewValidationError("malformed subscription payload")
		}
		out.DeletedSubscriptionID = sub.ID
	}
	return out, nil
}

func paymentFromInvoice(invoice *stripe.Invoice) *PaymentSucceeded {
	p := &PaymentSucceeded{CustomerEmail: invoice.CustomerEmail}
	if invoice.Customer != nil {
		p.CustomerID = invoice.Customer.ID
		if p.CustomerEmail == "" {
			p.CustomerEmail = invoice.Customer.Email
		}
	}
	if invoice.Subscription != nil {
		p.SubscriptionID = invoice.Subscription.ID
	}
	if invoice.Lines != nil && len(invoice.Lines.Data) > 0 {
		line := invoice.Lines.Data[0]
		if line.Price != nil {
			p.PriceID = line.Price.ID
		}
		if p.SubscriptionID == "" && line.Subscription != nil {
			p.SubscriptionID = line.Subscription.ID
		}
	}
	return p
}
