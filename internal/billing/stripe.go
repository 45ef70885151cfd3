// Package billing wraps the payment provider: customers, hosted checkout,
// the billing portal and webhook verification.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// ErrNotConfigured is returned by the disabled provider.
var ErrNotConfigured = errors.New("billing is not configured")

// CheckoutSession is a hosted checkout page.
type CheckoutSession struct {
	ID  string
	URL string
}

// SubscriptionEvent is the part of a webhook the backend acts on. Ignored
// events come back with Relevant=false.
type SubscriptionEvent struct {
	Type       string
	CustomerID string
	Subscribed bool
	Relevant   bool
}

// Provider is the payment provider surface used by the billing service.
type Provider interface {
	CreateCustomer(ctx context.Context, email, userID string) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID, userID string) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
	ParseWebhook(payload []byte, signature string) (*SubscriptionEvent, error)
}

// StripeConfig configures StripeProvider.
type StripeConfig struct {
	SecretKey     string
	PriceID       string
	WebhookSecret string
	AppBaseURL    string
}

// StripeProvider implements Provider with a dedicated Stripe API client.
type StripeProvider struct {
	api    *client.API
	cfg    StripeConfig
	logger *zap.Logger
}

// NewStripeProvider builds a provider with its own client instance.
func NewStripeProvider(cfg StripeConfig, logger *zap.Logger) *StripeProvider {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &StripeProvider{api: api, cfg: cfg, logger: logger.Named("stripe")}
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	params.AddMetadata("user_id", userID)

	cust, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	p.logger.Info("stripe customer created", zap.String("customer_id", cust.ID), zap.String("user_id", userID))
	return cust.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, customerID, userID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(userID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.cfg.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(p.cfg.AppBaseURL + "/chat?checkout=success"),
		CancelURL:  stripe.String(p.cfg.AppBaseURL + "/pricing?checkout=cancelled"),
	}
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(p.cfg.AppBaseURL + "/chat"),
	}
	params.Context = ctx

	sess, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}

// ParseWebhook verifies the signature and extracts subscription changes.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*SubscriptionEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("verify webhook: %w", err)
	}
	return subscriptionEventFrom(string(event.Type), event.Data.Raw)
}

func subscriptionEventFrom(eventType string, raw json.RawMessage) (*SubscriptionEvent, error) {
	out := &SubscriptionEvent{Type: eventType}
	switch eventType {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		if sess.Customer == nil {
			return nil, errors.New("checkout session without customer")
		}
		out.CustomerID, out.Subscribed, out.Relevant = sess.Customer.ID, true, true
	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		if sub.Customer == nil {
			return nil, errors.New("subscription without customer")
		}
		active := sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing
		out.CustomerID, out.Subscribed, out.Relevant = sub.Customer.ID, active && eventType != "customer.subscription.deleted", true
	}
	return out, nil
}

// Disabled is the Provider used when no payment keys are configured.
type Disabled struct{}

func (Disabled) CreateCustomer(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) CreateCheckoutSession(context.Context, string, string) (*CheckoutSession, error) {
	return nil, ErrNotConfigured
}

func (Disabled) CreatePortalSession(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) ParseWebhook([]byte, string) (*SubscriptionEvent, error) {
	return nil, ErrNotConfigured
}
