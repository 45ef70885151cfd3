package api

import (
	"net/http"
	"time"

	"softspace/internal/config"
	"softspace/internal/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	AuthHandler          *handlers.AuthHandler
	CompletionHandler    *handlers.CompletionHandler
	GuestHandlers        *handlers.GuestHandlers
	BillingHandlers      *handlers.BillingHandlers
	ConversationHandlers *handlers.ConversationHandlers
	Config               *config.Config
	Logger               *zap.Logger
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	if deps.AuthHandler == nil || deps.CompletionHandler == nil || deps.GuestHandlers == nil ||
		deps.BillingHandlers == nil || deps.ConversationHandlers == nil {
		panic("handler dependency is nil in router setup")
	}
	logger := deps.Logger.Named("http")
	secret := deps.Config.JWTSecret

	r := chi.NewRouter()

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// --- CORS Configuration ---
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Client-Info", "apikey", "Stripe-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(answerOptions)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/signup", deps.AuthHandler.HandleSignup)
		r.Post("/login", deps.AuthHandler.HandleLogin)
		r.With(JwtAuthMiddleware(secret, logger)).Get("/session", deps.AuthHandler.HandleSession)
	})

	// --- Functions ---
	r.Route("/functions/v1", func(r chi.Router) {
		// The payment provider signs its own requests.
		r.Post("/stripe-webhook", deps.BillingHandlers.HandleStripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(OptionalIdentity(secret, logger))
			r.Post("/completion", deps.CompletionHandler.HandleCompletion)
			r.Post("/guest-auth", deps.GuestHandlers.HandleGuestAuth)
			r.Post("/set-guest-claims", deps.GuestHandlers.HandleSetGuestClaims)
			r.Post("/send-conversation", deps.GuestHandlers.HandleSendConversation)
		})

		r.Group(func(r chi.Router) {
			r.Use(JwtAuthMiddleware(secret, logger))
			r.Post("/create-checkout", deps.BillingHandlers.HandleCreateCheckout)
			r.Post("/customer-portal", deps.BillingHandlers.HandleCustomerPortal)
			r.Post("/migrate-guest-data", deps.GuestHandlers.HandleMigrateGuestData)
		})
	})

	// --- Data API ---
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(JwtAuthMiddleware(secret, logger))
			r.Post("/conversations", deps.ConversationHandlers.HandleCreateConversation)
			r.Get("/subscription", deps.BillingHandlers.HandleGetSubscription)
		})

		r.Group(func(r chi.Router) {
			r.Use(OptionalIdentity(secret, logger))
			r.Get("/conversations", deps.ConversationHandlers.HandleListConversations)
			r.Get("/conversations/{conversationID}", deps.ConversationHandlers.HandleGetConversation)
			r.Patch("/conversations/{conversationID}/mode", deps.ConversationHandlers.HandleUpdateMode)
			r.Get("/usage", deps.BillingHandlers.HandleGetUsage)
		})
	})

	return r
}
