// Package storetest holds behaviour every store.Store implementation must
// share. Implementations call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	db_models "softspace/internal/models"
	"softspace/internal/store"

	"github.com/google/uuid"
)

// Run exercises s. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Conversations", func(t *testing.T) { testConversations(t, newStore(t)) })
	t.Run("RecordExchange", func(t *testing.T) { testRecordExchange(t, newStore(t)) })
	t.Run("LimitReached", func(t *testing.T) { testLimitReached(t, newStore(t)) })
	t.Run("MigrateGuestData", func(t *testing.T) { testMigrate(t, newStore(t)) })
}

func createUser(t *testing.T, s store.Store, email string) *db_models.User {
	t.Helper()
	u := &db_models.User{ID: uuid.New(), Email: email, HashedPassword: "x", MessagesLimit: 10}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "user-"+uuid.NewString()+"@example.com")

	dup := &db_models.User{ID: uuid.New(), Email: u.Email, HashedPassword: "y"}
	if err := s.CreateUser(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate email: expected ErrConflict, got %v", err)
	}

	got, err := s.GetUserByEmail(ctx, u.Email)
	if err != nil || got.ID != u.ID || got.MessagesLimit != 10 || got.IsSubscribed {
		t.Fatalf("get by email: %+v, %v", got, err)
	}
	if _, err := s.GetUserByID(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing user: expected ErrNotFound, got %v", err)
	}

	customer := "cus_" + uuid.NewString()
	if err := s.SetStripeCustomerID(ctx, u.ID, customer); err != nil {
		t.Fatalf("set customer: %v", err)
	}
	if err := s.SetSubscriptionByCustomer(ctx, customer, true); err != nil {
		t.Fatalf("set subscription: %v", err)
	}
	got, _ = s.GetUserByID(ctx, u.ID)
	if !got.IsSubscribed || got.StripeCustomerID == nil || *got.StripeCustomerID != customer {
		t.Fatalf("subscription not stored: %+v", got)
	}
	if err := s.SetSubscriptionByCustomer(ctx, "cus_unknown_"+uuid.NewString(), true); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown customer: expected ErrNotFound, got %v", err)
	}
}

func testConversations(t *testing.T, s store.Store) {
	ctx := context.Background()
	guest := db_models.Owner{GuestID: "g-" + uuid.NewString()}
	id := uuid.NewString()

	c, err := s.CreateConversation(ctx, store.CreateConversationParams{ID: id, Owner: guest, Mode: db_models.ModeSlow, Title: "t"})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if c.Owner() != guest || c.Mode != db_models.ModeSlow {
		t.Fatalf("unexpected conversation %+v", c)
	}
	if _, err := s.CreateConversation(ctx, store.CreateConversationParams{ID: id, Owner: guest, Mode: db_models.ModeSlow}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate id: expected ErrConflict, got %v", err)
	}
	if _, err := s.GetConversationByID(ctx, "missing-"+id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing conversation: expected ErrNotFound, got %v", err)
	}

	updated, err := s.UpdateConversationMode(ctx, id, db_models.ModeVent)
	if err != nil || updated.Mode != db_models.ModeVent {
		t.Fatalf("update mode: %+v, %v", updated, err)
	}
	if _, err := s.UpdateConversationMode(ctx, "missing-"+id, db_models.ModeVent); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update missing: expected ErrNotFound, got %v", err)
	}

	list, err := s.ListConversationsByOwner(ctx, guest, 10)
	if err != nil || len(list) != 1 || list[0].ID != id {
		t.Fatalf("list: %+v, %v", list, err)
	}
	other, _ := s.ListConversationsByOwner(ctx, db_models.Owner{GuestID: "g-other-" + id}, 10)
	if len(other) != 0 {
		t.Fatalf("foreign owner sees %d conversations", len(other))
	}
}

func testRecordExchange(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := db_models.Owner{GuestID: "g-" + uuid.NewString()}
	id := uuid.NewString()
	if _, err := s.CreateConversation(ctx, store.CreateConversationParams{ID: id, Owner: owner, Mode: db_models.ModeSlow}); err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Microsecond)
	err := s.RecordExchange(ctx, store.RecordExchangeParams{
		ConversationID: id,
		Owner:          owner,
		Messages: []store.NewMessageParams{
			{Role: db_models.RoleUser, Content: []byte("u1"), CreatedAt: at},
			{Role: db_models.RoleAssistant, Content: []byte("a1"), CreatedAt: at.Add(time.Microsecond)},
		},
		CountUsage:   true,
		DefaultLimit: 3,
	})
	if err != nil {
		t.Fatalf("record exchange: %v", err)
	}
	// an opening turn is stored without counting
	err = s.RecordExchange(ctx, store.RecordExchangeParams{
		ConversationID: id,
		Owner:          owner,
		Messages:       []store.NewMessageParams{{Role: db_models.RoleAssistant, Content: []byte("a2"), CreatedAt: at.Add(time.Second)}},
		DefaultLimit:   3,
	})
	if err != nil {
		t.Fatalf("record opening: %v", err)
	}

	msgs, err := s.ListMessages(ctx, id)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	want := []string{"u1", "a1", "a2"}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, m := range msgs {
		if string(m.Content) != want[i] {
			t.Fatalf("message %d = %q, want %q", i, m.Content, want[i])
		}
	}

	u, err := s.GetUsage(ctx, owner)
	if err != nil || u.MessagesUsed != 1 || u.MessagesLimit != 3 {
		t.Fatalf("usage: %+v, %v", u, err)
	}
	again, err := s.EnsureUsage(ctx, owner, 99)
	if err != nil || again.MessagesLimit != 3 || again.MessagesUsed != 1 {
		t.Fatalf("ensure must not reset usage: %+v, %v", again, err)
	}
}

func testLimitReached(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := db_models.Owner{GuestID: "g-" + uuid.NewString()}
	id := uuid.NewString()
	if _, err := s.CreateConversation(ctx, store.CreateConversationParams{ID: id, Owner: owner, Mode: db_models.ModeSlow}); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	exchange := func(content string) error {
		return s.RecordExchange(ctx, store.RecordExchangeParams{
			ConversationID: id,
			Owner:          owner,
			Messages:       []store.NewMessageParams{{Role: db_models.RoleUser, Content: []byte(content), CreatedAt: time.Now().UTC()}},
			CountUsage:     true,
			DefaultLimit:   1,
			Limit:          1,
		})
	}

	if err := exchange("first"); err != nil {
		t.Fatalf("first exchange: %v", err)
	}
	if err := exchange("second"); !errors.Is(err, store.ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}
	msgs, err := s.ListMessages(ctx, id)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("refused exchange stored messages: %d, %v", len(msgs), err)
	}
	u, err := s.GetUsage(ctx, owner)
	if err != nil || u.MessagesUsed != 1 {
		t.Fatalf("usage: %+v, %v", u, err)
	}
}

func testMigrate(t *testing.T, s store.Store) {
	ctx := context.Background()
	user := createUser(t, s, "migrate-"+uuid.NewString()+"@example.com")
	guest := db_models.Owner{GuestID: "g-" + uuid.NewString()}
	id := uuid.NewString()
	if _, err := s.CreateConversation(ctx, store.CreateConversationParams{ID: id, Owner: guest, Mode: db_models.ModeVent}); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	err := s.RecordExchange(ctx, store.RecordExchangeParams{
		ConversationID: id,
		Owner:          guest,
		Messages:       []store.NewMessageParams{{Role: db_models.RoleUser, Content: []byte("hi"), CreatedAt: time.Now().UTC()}},
		CountUsage:     true,
		DefaultLimit:   3,
	})
	if err != nil {
		t.Fatalf("record exchange: %v", err)
	}

	if err := s.MigrateGuestData(ctx, guest.GuestID, user.ID); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	c, err := s.GetConversationByID(ctx, id)
	if err != nil || c.UserID == nil || *c.UserID != user.ID || c.GuestID != nil {
		t.Fatalf("conversation not moved: %+v, %v", c, err)
	}
	u, err := s.GetUsage(ctx, db_models.Owner{UserID: user.ID})
	if err != nil || u.MessagesUsed != 1 || u.MessagesLimit != user.MessagesLimit {
		t.Fatalf("usage not moved: %+v, %v", u, err)
	}
	if _, err := s.GetUsage(ctx, guest); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("guest usage left behind: %v", err)
	}

	// a second run has nothing left to move
	if err := s.MigrateGuestData(ctx, guest.GuestID, user.ID); err != nil {
		t.Fatalf("repeat migrate: %v", err)
	}
}
