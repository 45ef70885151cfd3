package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"softspace/internal/auth"
	"softspace/internal/billing"
	"softspace/internal/models"
)

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.signup(t, "  Someone@Example.com ")
	if user.Email != "someone@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.MessagesLimit != env.cfg.FreeMessageLimit {
		t.Fatalf("expected free limit %d, got %d", env.cfg.FreeMessageLimit, user.MessagesLimit)
	}

	if _, err := env.auth.Signup(ctx, "someone@example.com", "another pass"); !errors.Is(err, ErrUserAlreadyExists) {
		t.Fatalf("expected ErrUserAlreadyExists, got %v", err)
	}
	if _, err := env.auth.Signup(ctx, "short@example.com", "abc"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for short password, got %v", err)
	}
	if _, err := env.auth.Signup(ctx, "not-an-email", "long enough pass"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad email, got %v", err)
	}

	token, got, err := env.auth.Login(ctx, "someone@example.com", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("login returned a different user")
	}
	claims, err := auth.ParseToken(token, env.cfg.JWTSecret)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("token subject mismatch")
	}

	if _, _, err := env.auth.Login(ctx, "someone@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := env.auth.Login(ctx, "nobody@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestConversationCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guest := models.Owner{GuestID: "g1"}

	if _, err := env.conversations.Create(ctx, CreateParams{Owner: guest, Mode: "loud"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad mode, got %v", err)
	}
	if _, err := env.conversations.Create(ctx, CreateParams{Owner: models.Owner{}, Mode: models.ModeSlow}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation without owner, got %v", err)
	}
	if _, err := env.conversations.Create(ctx, CreateParams{Owner: models.Owner{GuestID: "bad id!"}, Mode: models.ModeSlow}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad guest id, got %v", err)
	}

	conv, err := env.conversations.Create(ctx, CreateParams{Owner: guest, Mode: models.ModeVent})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.ID == "" || conv.Title != defaultTitle || conv.Mode != models.ModeVent {
		t.Fatalf("unexpected conversation %+v", conv)
	}
	if _, err := env.conversations.Create(ctx, CreateParams{ID: conv.ID, Owner: guest, Mode: models.ModeSlow}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for duplicate id, got %v", err)
	}
}

func TestConversationTitleKeepsRunesWhole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	long := "a" + strings.Repeat("é", 150)
	conv, err := env.conversations.Create(ctx, CreateParams{Owner: models.Owner{GuestID: "g1"}, Mode: models.ModeSlow, Title: long})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !utf8.ValidString(conv.Title) || len(conv.Title) > maxTitleLength {
		t.Fatalf("bad title: len=%d valid=%v", len(conv.Title), utf8.ValidString(conv.Title))
	}
	if want := long[:maxTitleLength-1]; conv.Title != want {
		t.Fatalf("title = %q, want %q", conv.Title, want)
	}

	short := "ça va"
	if got := truncateTitle(short); got != short {
		t.Fatalf("short title changed: %q", got)
	}
}

func TestConversationOwnershipHidesForeignRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := auth.Identity{GuestID: "g1"}
	other := auth.Identity{GuestID: "g2"}
	if _, err := env.conversations.Create(ctx, CreateParams{ID: "c1", Owner: owner.Owner(), Mode: models.ModeSlow}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := env.conversations.Get(ctx, other, "c1"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if _, err := env.conversations.UpdateMode(ctx, other, "c1", models.ModeVent); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	list, err := env.conversations.List(ctx, other)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("foreign caller should see nothing, got %d", len(list))
	}

	updated, err := env.conversations.UpdateMode(ctx, owner, "c1", models.ModeVent)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Mode != models.ModeVent {
		t.Fatalf("mode not updated: %s", updated.Mode)
	}
	if _, err := env.conversations.UpdateMode(ctx, owner, "c1", "loud"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestGuestRegisterIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := env.guests.Register(ctx, "g1"); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	u, err := env.store.GetUsage(ctx, models.Owner{GuestID: "g1"})
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if u.MessagesUsed != 0 || u.MessagesLimit != env.cfg.FreeMessageLimit {
		t.Fatalf("unexpected usage %+v", u)
	}
	if err := env.guests.Register(ctx, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestGuestTokenIdentifiesGuest(t *testing.T) {
	env := newTestEnv(t)
	token, err := env.guests.IssueToken("g1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := auth.ParseToken(token, env.cfg.JWTSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id := claims.Identity(); !id.IsGuest() || id.GuestID != "g1" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestMigrateGuestData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guest := auth.Identity{GuestID: "g1"}

	if err := env.guests.Register(ctx, "g1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.conversations.Create(ctx, CreateParams{ID: "c1", Owner: guest.Owner(), Mode: models.ModeSlow}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.completion.Complete(ctx, guest, models.CompletionRequest{ConversationID: "c1", Messages: userTurn("hi")}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	user := env.signup(t, "moved@example.com")
	account := auth.Identity{UserID: user.ID}
	if err := env.guests.Migrate(ctx, user.ID, "g1"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	detail, err := env.conversations.Get(ctx, account, "c1")
	if err != nil {
		t.Fatalf("account should own c1 after migration: %v", err)
	}
	if len(detail.Messages) != 2 {
		t.Fatalf("messages lost in migration: %d", len(detail.Messages))
	}
	if _, err := env.conversations.Get(ctx, guest, "c1"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("guest should no longer see c1, got %v", err)
	}

	usage, err := env.usage.Usage(ctx, account)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.MessagesUsed != 1 {
		t.Fatalf("expected merged messages_used=1, got %d", usage.MessagesUsed)
	}

	if err := env.guests.Migrate(ctx, user.ID, "g1"); err != nil {
		t.Fatalf("second migrate should be a no-op: %v", err)
	}
	if err := env.guests.Migrate(ctx, user.ID, "never-seen"); err != nil {
		t.Fatalf("unknown guest should migrate to nothing: %v", err)
	}
}

func TestSubscriptionAndUsage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.signup(t, "plan@example.com")

	sub, err := env.usage.Subscription(ctx, user.ID)
	if err != nil {
		t.Fatalf("subscription: %v", err)
	}
	if sub.IsSubscribed || sub.MessagesLimit != env.cfg.FreeMessageLimit {
		t.Fatalf("unexpected subscription %+v", sub)
	}
	usage, err := env.usage.Usage(ctx, auth.Identity{UserID: user.ID})
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.MessagesUsed != 0 || usage.MessagesLimit != env.cfg.FreeMessageLimit {
		t.Fatalf("unexpected usage %+v", usage)
	}
	if _, err := env.usage.Usage(ctx, auth.Identity{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for anonymous caller, got %v", err)
	}
}

func TestCheckoutReusesCustomer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.signup(t, "buyer@example.com")

	first, err := env.payments.Checkout(ctx, user.ID)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if first.SessionID != "cs_cus_test" || first.URL == "" {
		t.Fatalf("unexpected checkout %+v", first)
	}
	if _, err := env.payments.Portal(ctx, user.ID); err != nil {
		t.Fatalf("portal: %v", err)
	}
	if env.billing.customers != 1 {
		t.Fatalf("expected one customer, created %d", env.billing.customers)
	}
}

func TestCheckoutProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	user := env.signup(t, "buyer@example.com")
	env.billing.err = billing.ErrNotConfigured

	if _, err := env.payments.Checkout(context.Background(), user.ID); !errors.Is(err, ErrBilling) {
		t.Fatalf("expected ErrBilling, got %v", err)
	}
}

func TestWebhookFlipsSubscription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.signup(t, "buyer@example.com")
	if _, err := env.payments.Checkout(ctx, user.ID); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	env.billing.event = &billing.SubscriptionEvent{Type: "checkout.session.completed", CustomerID: "cus_test", Subscribed: true, Relevant: true}
	if err := env.payments.HandleWebhook(ctx, []byte("{}"), "sig"); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	sub, _ := env.usage.Subscription(ctx, user.ID)
	if !sub.IsSubscribed {
		t.Fatal("expected subscription after checkout completion")
	}

	env.billing.event = &billing.SubscriptionEvent{Type: "customer.subscription.deleted", CustomerID: "cus_test", Relevant: true}
	if err := env.payments.HandleWebhook(ctx, []byte("{}"), "sig"); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	sub, _ = env.usage.Subscription(ctx, user.ID)
	if sub.IsSubscribed {
		t.Fatal("expected subscription to be cleared")
	}

	env.billing.event = &billing.SubscriptionEvent{Type: "checkout.session.completed", CustomerID: "cus_unknown", Subscribed: true, Relevant: true}
	if err := env.payments.HandleWebhook(ctx, []byte("{}"), "sig"); err != nil {
		t.Fatalf("unknown customers are acknowledged: %v", err)
	}

	env.billing.err = errors.New("bad signature")
	if err := env.payments.HandleWebhook(ctx, []byte("{}"), "sig"); !errors.Is(err, ErrWebhookSignature) {
		t.Fatalf("expected ErrWebhookSignature, got %v", err)
	}
}
