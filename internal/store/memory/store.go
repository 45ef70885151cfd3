// Package memory is an in-process implementation of store.Store. It backs
// the server when DATABASE_URL is "memory://" and is used throughout the
// tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	db_models "softspace/internal/models"
	"softspace/internal/store"

	"github.com/google/uuid"
)

var _ store.Store = (*Store)(nil)

type storedMessage struct {
	db_models.Message
	seq int64
}

type Store struct {
	mu            sync.RWMutex
	users         map[uuid.UUID]*db_models.User
	conversations map[string]*db_models.Conversation
	messages      map[string][]storedMessage
	usage         map[string]*db_models.Usage // keyed by Owner.String()
	seq           int64
	now           func() time.Time
}

func New() *Store {
	return &Store{
		users:         make(map[uuid.UUID]*db_models.User),
		conversations: make(map[string]*db_models.Conversation),
		messages:      make(map[string][]storedMessage),
		usage:         make(map[string]*db_models.Usage),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*db_models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*db_models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) CreateUser(_ context.Context, user *db_models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return store.ErrConflict
		}
	}
	if _, exists := s.users[user.ID]; exists {
		return store.ErrConflict
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *Store) SetStripeCustomerID(_ context.Context, userID uuid.UUID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.StripeCustomerID = &customerID
	u.UpdatedAt = s.now()
	return nil
}

func (s *Store) SetSubscriptionByCustomer(_ context.Context, customerID string, subscribed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			u.IsSubscribed = subscribed
			u.UpdatedAt = s.now()
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) CreateConversation(_ context.Context, arg store.CreateConversationParams) (*db_models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[arg.ID]; exists {
		return nil, store.ErrConflict
	}
	now := s.now()
	c := &db_models.Conversation{
		ID:        arg.ID,
		Mode:      arg.Mode,
		Title:     arg.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	setOwner(c, arg.Owner)
	s.conversations[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *Store) GetConversationByID(_ context.Context, id string) (*db_models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListConversationsByOwner(_ context.Context, owner db_models.Owner, limit int) ([]db_models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []db_models.Conversation
	for _, c := range s.conversations {
		if c.Owner() == owner {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateConversationMode(_ context.Context, id string, mode db_models.Mode) (*db_models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c.Mode = mode
	c.UpdatedAt = s.now()
	cp := *c
	return &cp, nil
}

func (s *Store) ListMessages(_ context.Context, conversationID string) ([]db_models.Message, error) {
	s.mu.RLock()
	stored := append([]storedMessage(nil), s.messages[conversationID]...)
	s.mu.RUnlock()

	sort.SliceStable(stored, func(i, j int) bool {
		if !stored[i].CreatedAt.Equal(stored[j].CreatedAt) {
			return stored[i].CreatedAt.Before(stored[j].CreatedAt)
		}
		return stored[i].seq < stored[j].seq
	})
	out := make([]db_models.Message, len(stored))
	for i, m := range stored {
		out[i] = m.Message
	}
	return out, nil
}

func (s *Store) RecordExchange(_ context.Context, arg store.RecordExchangeParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[arg.ConversationID]
	if !ok {
		return store.ErrNotFound
	}
	var u *db_models.Usage
	if arg.CountUsage {
		u = s.ensureUsageLocked(arg.Owner, arg.DefaultLimit)
		if arg.Limit > 0 && u.MessagesUsed >= arg.Limit {
			return store.ErrLimitReached
		}
	}
	for _, m := range arg.Messages {
		s.seq++
		s.messages[arg.ConversationID] = append(s.messages[arg.ConversationID], storedMessage{
			Message: db_models.Message{
				ID:             uuid.New(),
				ConversationID: arg.ConversationID,
				Role:           m.Role,
				Content:        append([]byte(nil), m.Content...),
				CreatedAt:      m.CreatedAt,
			},
			seq: s.seq,
		})
	}
	if u != nil {
		u.MessagesUsed++
		u.UpdatedAt = s.now()
	}
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) EnsureUsage(_ context.Context, owner db_models.Owner, defaultLimit int) (*db_models.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.ensureUsageLocked(owner, defaultLimit)
	return &cp, nil
}

func (s *Store) GetUsage(_ context.Context, owner db_models.Owner) (*db_models.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usage[owner.String()]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) MigrateGuestData(_ context.Context, guestID string, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.GuestID != nil && *c.GuestID == guestID {
			setOwner(c, db_models.Owner{UserID: userID})
			c.UpdatedAt = s.now()
		}
	}

	guestKey := db_models.Owner{GuestID: guestID}.String()
	guest, ok := s.usage[guestKey]
	if !ok {
		return nil
	}
	limit := guest.MessagesLimit
	if u, exists := s.users[userID]; exists {
		limit = u.MessagesLimit
	}
	account := s.ensureUsageLocked(db_models.Owner{UserID: userID}, limit)
	account.MessagesUsed += guest.MessagesUsed
	account.UpdatedAt = s.now()
	delete(s.usage, guestKey)
	return nil
}

func (s *Store) ensureUsageLocked(owner db_models.Owner, defaultLimit int) *db_models.Usage {
	key := owner.String()
	if u, ok := s.usage[key]; ok {
		return u
	}
	u := &db_models.Usage{
		ID:            uuid.New(),
		MessagesLimit: defaultLimit,
		UpdatedAt:     s.now(),
	}
	if owner.IsAccount() {
		id := owner.UserID
		u.UserID = &id
	} else {
		g := owner.GuestID
		u.GuestID = &g
	}
	s.usage[key] = u
	return u
}

func setOwner(c *db_models.Conversation, owner db_models.Owner) {
	c.UserID, c.GuestID = nil, nil
	if owner.IsAccount() {
		id := owner.UserID
		c.UserID = &id
		return
	}
	g := owner.GuestID
	c.GuestID = &g
}
