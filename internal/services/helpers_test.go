package services

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"softspace/internal/billing"
	"softspace/internal/config"
	"softspace/internal/crypto"
	"softspace/internal/models"
	"softspace/internal/prompts"
	"softspace/internal/store/memory"

	"go.uber.org/zap"
)

type fakeLLM struct {
	mu    sync.Mutex
	reply string
	err   error
	calls [][]models.ChatMessage
}

func (f *fakeLLM) Complete(_ context.Context, turns []models.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, turns)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) lastCall() []models.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

type fakeBilling struct {
	customers int
	event     *billing.SubscriptionEvent
	err       error
}

func (f *fakeBilling) CreateCustomer(context.Context, string, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.customers++
	return "cus_test", nil
}

func (f *fakeBilling) CreateCheckoutSession(_ context.Context, customerID, _ string) (*billing.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &billing.CheckoutSession{ID: "cs_" + customerID, URL: "https://pay.example/cs"}, nil
}

func (f *fakeBilling) CreatePortalSession(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://pay.example/portal", nil
}

func (f *fakeBilling) ParseWebhook([]byte, string) (*billing.SubscriptionEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.event, nil
}

type testEnv struct {
	store   *memory.Store
	cfg     *config.Config
	cipher  *crypto.MessageCipher
	llm     *fakeLLM
	billing *fakeBilling

	auth          *AuthService
	completion    *CompletionService
	conversations *ConversationService
	guests        *GuestService
	usage         *UsageService
	payments      *BillingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cipher, err := crypto.NewMessageCipher(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	cfg := &config.Config{
		JWTSecret:            "test-secret",
		TokenExpiration:      time.Hour,
		GuestTokenExpiration: time.Hour,
		FreeMessageLimit:     3,
	}
	st := memory.New()
	llm := &fakeLLM{reply: "I'm here with you."}
	pay := &fakeBilling{}
	logger := zap.NewNop()

	return &testEnv{
		store:         st,
		cfg:           cfg,
		cipher:        cipher,
		llm:           llm,
		billing:       pay,
		auth:          NewAuthService(st, cfg, logger),
		completion:    NewCompletionService(st, cipher, prompts.Default(), llm, cfg.FreeMessageLimit, logger),
		conversations: NewConversationService(st, cipher, logger),
		guests:        NewGuestService(st, cfg, logger),
		usage:         NewUsageService(st, cfg),
		payments:      NewBillingService(st, pay, logger),
	}
}

func (e *testEnv) signup(t *testing.T, email string) *models.User {
	t.Helper()
	u, err := e.auth.Signup(context.Background(), email, "correct horse")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	return u
}
