package client_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"softspace/internal/api"
	"softspace/internal/client"
	"softspace/internal/client/localstate"
	"softspace/internal/config"
	"softspace/internal/models"
	"softspace/internal/prompts"
	"softspace/internal/store/memory"

	"go.uber.org/zap"
)

// echoLLM replies to the last turn and records the system prompts it saw.
type echoLLM struct {
	mu      sync.Mutex
	systems []string
}

func (e *echoLLM) Complete(_ context.Context, turns []models.ChatMessage) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(turns) > 0 && turns[0].Role == models.RoleSystem {
		e.systems = append(e.systems, turns[0].Content)
	}
	return "reply to " + turns[len(turns)-1].Content, nil
}

func (e *echoLLM) lastSystem() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.systems) == 0 {
		return ""
	}
	return e.systems[len(e.systems)-1]
}

type harness struct {
	llm     *echoLLM
	backend *client.HTTPBackend
	state   *localstate.MemoryStore
	nav     *client.MemoryNavigator
	app     *client.App
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:            "client-e2e-secret",
		TokenExpiration:      time.Hour,
		GuestTokenExpiration: time.Hour,
		FreeMessageLimit:     5,
		EncryptionKey:        bytes.Repeat([]byte{7}, 32),
		AllowedOrigins:       []string{"*"},
	}
	h := &harness{llm: &echoLLM{}}
	router, err := api.NewHandler(cfg, api.Backends{Store: memory.New(), LLM: h.llm}, zap.NewNop())
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	h.backend = client.NewHTTPBackend(srv.URL, srv.Client(), zap.NewNop())
	h.state = localstate.NewMemoryStore()
	h.nav = client.NewMemoryNavigator(client.RouteChat, client.RouteAccount, client.RoutePricing)
	h.app = h.newApp()
	return h
}

// newApp starts another client on the same local state, like a page reload.
func (h *harness) newApp() *client.App {
	return client.NewApp(client.Deps{
		Backend:   h.backend,
		State:     h.state,
		Navigator: h.nav,
		Logger:    zap.NewNop(),
	})
}

func (h *harness) send(t *testing.T, text string) *models.ChatMessage {
	t.Helper()
	res := h.app.Dispatch(context.Background(), client.SendMessage{Text: text})
	if !res.OK() {
		t.Fatalf("send %q: %v", text, res.Err)
	}
	return res.Reply
}

func (h *harness) guestToken(t *testing.T) string {
	t.Helper()
	token, err := h.state.Get(context.Background(), localstate.KeyGuestToken)
	if err != nil {
		t.Fatalf("guest token: %v", err)
	}
	return token
}

func TestGuestExchangeEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	reply := h.send(t, "I'm stressed")
	if reply == nil || reply.Role != models.RoleAssistant || reply.Content != "reply to I'm stressed" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	convID := h.app.Conversations.ID()
	if convID == "" {
		t.Fatal("no active conversation")
	}

	usage, err := h.backend.Usage(ctx, h.guestToken(t))
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.MessagesUsed != 1 {
		t.Fatalf("expected 1 message used, got %+v", usage)
	}

	// a reload restores the conversation from the server
	reloaded := h.newApp()
	if res := reloaded.Start(ctx, ""); !res.OK() {
		t.Fatalf("start: %v", res.Err)
	}
	msgs := reloaded.Conversations.Messages()
	if reloaded.Conversations.ID() != convID || len(msgs) != 2 {
		t.Fatalf("unexpected reload %q %+v", reloaded.Conversations.ID(), msgs)
	}
	if msgs[0].Role != models.RoleUser || msgs[0].Content != "I'm stressed" || msgs[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected order %+v", msgs)
	}
}

func TestNewChatExchangeInEachMode(t *testing.T) {
	for _, mode := range models.Modes {
		mode := mode
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)

			if res := h.app.Dispatch(ctx, client.SwitchMode{Mode: mode}); !res.OK() {
				t.Fatalf("switch mode: %v", res.Err)
			}
			if res := h.app.Dispatch(ctx, client.StartNewChat{Initial: true}); !res.OK() {
				t.Fatalf("start new chat: %v", res.Err)
			}
			h.send(t, "hello")

			detail, err := h.backend.GetConversation(ctx, h.guestToken(t), h.app.Conversations.ID())
			if err != nil {
				t.Fatalf("get conversation: %v", err)
			}
			if detail.Conversation.Mode != mode {
				t.Fatalf("expected mode %q, got %q", mode, detail.Conversation.Mode)
			}
			if len(detail.Messages) != 2 ||
				detail.Messages[0].Role != models.RoleUser || detail.Messages[0].Content != "hello" ||
				detail.Messages[1].Role != models.RoleAssistant {
				t.Fatalf("expected one user and one assistant message, got %+v", detail.Messages)
			}
			if got, want := h.llm.lastSystem(), prompts.Default().For(mode); got != want {
				t.Fatalf("system prompt = %q, want %q", got, want)
			}
		})
	}
}

func TestSignupMigratesGuestEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.send(t, "before signing up")
	convID := h.app.Conversations.ID()

	res := h.app.Dispatch(ctx, client.Signup{Email: "friend@example.com", Password: "long enough"})
	if !res.OK() {
		t.Fatalf("signup: %v", res.Err)
	}
	if _, err := h.state.Get(ctx, localstate.KeyGuestToken); err == nil {
		t.Fatal("guest token should be gone after migration")
	}
	if _, ok := h.app.Guest.Get(ctx); ok {
		t.Fatal("guest id should be gone after migration")
	}

	snap := h.app.Usage.Snapshot()
	if !snap.Known || snap.MessagesUsed != 1 || snap.MessagesLimit != 5 {
		t.Fatalf("usage not attributed to the account: %+v", snap)
	}

	h.send(t, "after signing up")
	session := h.app.Session.Current()
	detail, err := h.backend.GetConversation(ctx, session.Token, convID)
	if err != nil {
		t.Fatalf("account cannot read migrated conversation: %v", err)
	}
	if len(detail.Messages) != 4 || detail.Conversation.UserID == nil {
		t.Fatalf("unexpected migrated conversation %+v", detail)
	}
	usage, err := h.backend.Usage(ctx, session.Token)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.MessagesUsed != 2 {
		t.Fatalf("expected 2 messages on the account, got %+v", usage)
	}
}

func TestModeSwitchKeepsHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.send(t, "first thought")
	before := h.app.Conversations.Messages()

	if res := h.app.Dispatch(ctx, client.SwitchMode{Mode: models.ModeVent}); !res.OK() {
		t.Fatalf("switch mode: %v", res.Err)
	}
	after := h.app.Conversations.Messages()
	if len(after) != len(before) {
		t.Fatalf("history changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Content != after[i].Content || before[i].Role != after[i].Role {
			t.Fatalf("message %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}

	h.send(t, "now venting")
	if got, want := h.llm.lastSystem(), prompts.Default().For(models.ModeVent); got != want {
		t.Fatalf("system prompt = %q, want %q", got, want)
	}
	detail, err := h.backend.GetConversation(ctx, h.guestToken(t), h.app.Conversations.ID())
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if detail.Conversation.Mode != models.ModeVent || len(detail.Messages) != 4 {
		t.Fatalf("unexpected conversation %+v", detail)
	}
	if detail.Messages[0].Content != "first thought" || detail.Messages[1].Content != "reply to first thought" {
		t.Fatalf("past messages changed on the server: %+v", detail.Messages[:2])
	}
}
