package api

import (
	"fmt"

	"softspace/internal/billing"
	"softspace/internal/config"
	"softspace/internal/crypto"
	"softspace/internal/handlers"
	"softspace/internal/llm"
	"softspace/internal/prompts"
	"softspace/internal/services"
	"softspace/internal/store"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Backends are the outside systems the HTTP surface talks to.
type Backends struct {
	Store   store.Store
	LLM     llm.Provider
	Billing billing.Provider
	Prompts *prompts.Set
}

// NewHandler builds services and handlers on top of b and returns the
// configured router.
func NewHandler(cfg *config.Config, b Backends, logger *zap.Logger) (*chi.Mux, error) {
	cipher, err := crypto.NewMessageCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("message cipher: %w", err)
	}
	if b.Prompts == nil {
		b.Prompts = prompts.Default()
	}
	if b.Billing == nil {
		b.Billing = billing.Disabled{}
	}

	authService := services.NewAuthService(b.Store, cfg, logger)
	completionService := services.NewCompletionService(b.Store, cipher, b.Prompts, b.LLM, cfg.FreeMessageLimit, logger)
	conversationService := services.NewConversationService(b.Store, cipher, logger)
	guestService := services.NewGuestService(b.Store, cfg, logger)
	usageService := services.NewUsageService(b.Store, cfg)
	billingService := services.NewBillingService(b.Store, b.Billing, logger)

	return NewRouter(RouterDependencies{
		AuthHandler:          handlers.NewAuthHandler(authService, logger),
		CompletionHandler:    handlers.NewCompletionHandler(completionService, logger),
		GuestHandlers:        handlers.NewGuestHandlers(guestService, conversationService, logger),
		BillingHandlers:      handlers.NewBillingHandlers(billingService, usageService, logger),
		ConversationHandlers: handlers.NewConversationHandlers(conversationService, logger),
		Config:               cfg,
		Logger:               logger,
	}), nil
}
