package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"softspace/internal/auth"
	api_models "softspace/internal/models"
	"softspace/internal/services"
	"softspace/pkg/httputil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BillingService connects accounts to the payment provider.
type BillingService interface {
	Checkout(ctx context.Context, userID uuid.UUID) (*api_models.CheckoutResponse, error)
	Portal(ctx context.Context, userID uuid.UUID) (*api_models.PortalResponse, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// UsageService reports subscription and usage.
type UsageService interface {
	Subscription(ctx context.Context, userID uuid.UUID) (*api_models.SubscriptionResponse, error)
	Usage(ctx context.Context, caller auth.Identity) (*api_models.UsageResponse, error)
}

type BillingHandlers struct {
	billing BillingService
	usage   UsageService
	logger  *zap.Logger
}

func NewBillingHandlers(billing BillingService, usage UsageService, logger *zap.Logger) *BillingHandlers {
	return &BillingHandlers{billing: billing, usage: usage, logger: logger.Named("billing_handler")}
}

// HandleCreateCheckout handles POST /functions/v1/create-checkout.
func (h *BillingHandlers) HandleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	resp, err := h.billing.Checkout(r.Context(), userID)
	if err != nil {
		h.logger.Error("checkout failed", zap.Stringer("user_id", userID), zap.Error(err))
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to create checkout session")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleCustomerPortal handles POST /functions/v1/customer-portal.
func (h *BillingHandlers) HandleCustomerPortal(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	resp, err := h.billing.Portal(r.Context(), userID)
	if err != nil {
		h.logger.Error("portal failed", zap.Stringer("user_id", userID), zap.Error(err))
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to create portal session")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleStripeWebhook handles POST /functions/v1/stripe-webhook.
func (h *BillingHandlers) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Failed to read payload")
		return
	}

	err = h.billing.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		httputil.RespondJSON(w, http.StatusOK, api_models.SuccessResponse{Success: true})
	case errors.Is(err, services.ErrWebhookSignature):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("webhook failed", zap.Error(err))
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to process webhook")
	}
}

// HandleGetSubscription handles GET /v1/subscription.
func (h *BillingHandlers) HandleGetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	resp, err := h.usage.Subscription(r.Context(), userID)
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to load subscription")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleGetUsage handles GET /v1/usage for accounts and guests.
func (h *BillingHandlers) HandleGetUsage(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFromContext(r.Context())
	if !caller.IsAccount() && !caller.IsGuest() {
		httputil.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	resp, err := h.usage.Usage(r.Context(), caller)
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to load usage")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}
