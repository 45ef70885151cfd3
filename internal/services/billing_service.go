package services

import (
	"context"
	"errors"
	"fmt"

	"softspace/internal/billing"
	"softspace/internal/models"
	"softspace/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrWebhookSignature is returned for webhook payloads that fail verification.
var ErrWebhookSignature = errors.New("invalid webhook signature")

// BillingService connects accounts to the payment provider.
type BillingService struct {
	store    store.Store
	provider billing.Provider
	logger   *zap.Logger
}

func NewBillingService(s store.Store, provider billing.Provider, logger *zap.Logger) *BillingService {
	return &BillingService{store: s, provider: provider, logger: logger.Named("billing")}
}

// customerFor returns the account's payment customer, creating and storing
// one on first use.
func (s *BillingService) customerFor(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load account: %w", err)
	}
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	customerID, err := s.provider.CreateCustomer(ctx, user.Email, user.ID.String())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBilling, err)
	}
	if err := s.store.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
		return "", fmt.Errorf("store customer id: %w", err)
	}
	return customerID, nil
}

// Checkout opens a subscription checkout session for the account.
func (s *BillingService) Checkout(ctx context.Context, userID uuid.UUID) (*models.CheckoutResponse, error) {
	customerID, err := s.customerFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	sess, err := s.provider.CreateCheckoutSession(ctx, customerID, userID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBilling, err)
	}
	s.logger.Info("checkout session created", zap.Stringer("user_id", userID), zap.String("session_id", sess.ID))
	return &models.CheckoutResponse{SessionID: sess.ID, URL: sess.URL}, nil
}

// Portal opens the self-service billing portal for the account.
func (s *BillingService) Portal(ctx context.Context, userID uuid.UUID) (*models.PortalResponse, error) {
	customerID, err := s.customerFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	url, err := s.provider.CreatePortalSession(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBilling, err)
	}
	return &models.PortalResponse{URL: url}, nil
}

// HandleWebhook verifies a provider event and applies subscription changes.
// Events for unknown customers are acknowledged and ignored.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, billing.ErrNotConfigured) {
			return fmt.Errorf("%w: %v", ErrBilling, err)
		}
		s.logger.Warn("rejected webhook", zap.Error(err))
		return ErrWebhookSignature
	}
	if !ev.Relevant {
		s.logger.Debug("ignoring webhook event", zap.String("type", ev.Type))
		return nil
	}

	err = s.store.SetSubscriptionByCustomer(ctx, ev.CustomerID, ev.Subscribed)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("webhook for unknown customer", zap.String("customer_id", ev.CustomerID), zap.String("type", ev.Type))
		return nil
	}
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	s.logger.Info("subscription updated",
		zap.String("customer_id", ev.CustomerID),
		zap.Bool("subscribed", ev.Subscribed),
		zap.String("type", ev.Type))
	return nil
}
