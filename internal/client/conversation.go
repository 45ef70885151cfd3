package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"softspace/internal/client/localstate"
	"softspace/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConversationState is the lifecycle of the active conversation.
type ConversationState int

const (
	StateUnloaded ConversationState = iota
	StateLoading
	StateReady
)

func (s ConversationState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	}
	return "unloaded"
}

// ConversationManager owns the active conversation: its id, mode and the
// messages shown for it.
type ConversationManager struct {
	mu       sync.Mutex
	state    ConversationState
	id       string
	mode     models.Mode
	messages []models.ChatMessage

	ids     *identities
	backend Backend
	store   localstate.Store
	nav     Navigator
	logger  *zap.Logger

	// opener generates the assistant's first message; set by the app.
	opener func(ctx context.Context) error
}

func newConversationManager(ids *identities, backend Backend, store localstate.Store, nav Navigator, logger *zap.Logger) *ConversationManager {
	m := &ConversationManager{
		state:   StateReady,
		mode:    models.DefaultMode,
		ids:     ids,
		backend: backend,
		store:   store,
		nav:     nav,
		logger:  logger.Named("conversations"),
	}
	if saved, err := store.Get(context.Background(), localstate.KeyMode); err == nil {
		if mode, err := models.ParseMode(saved); err == nil {
			m.mode = mode
		}
	}
	return m
}

// State returns the lifecycle state.
func (m *ConversationManager) State() ConversationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ID returns the active conversation id, empty when none.
func (m *ConversationManager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Mode returns the current mode.
func (m *ConversationManager) Mode() models.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Messages returns a copy of the displayed messages in order.
func (m *ConversationManager) Messages() []models.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ChatMessage(nil), m.messages...)
}

// Open loads a conversation. urlID wins over the locally saved id; with
// neither the manager stays ready with no conversation. Failures unload the
// manager and send the surface back to the chat route.
func (m *ConversationManager) Open(ctx context.Context, urlID string) error {
	id := urlID
	if id == "" {
		saved, err := m.store.Get(ctx, localstate.KeyConversationID)
		if err != nil && !errors.Is(err, localstate.ErrNotFound) {
			m.logger.Warn("saved conversation unreadable", zap.Error(err))
		}
		id = saved
	}
	if id == "" {
		m.mu.Lock()
		m.state = StateReady
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	m.state = StateLoading
	m.mu.Unlock()

	detail, err := m.load(ctx, id)
	if err != nil {
		m.logger.Info("conversation not opened", zap.String("conversation_id", id), zap.Error(err))
		m.mu.Lock()
		m.state, m.id, m.messages = StateUnloaded, "", nil
		m.mu.Unlock()
		_ = m.store.Delete(ctx, localstate.KeyConversationID)
		m.nav.Navigate(RouteChat, "")
		return err
	}

	m.mu.Lock()
	m.state = StateReady
	m.id = detail.Conversation.ID
	m.mode = detail.Conversation.Mode
	m.messages = models.StripSystem(detail.Messages)
	m.mu.Unlock()
	m.remember(ctx, detail.Conversation.ID)
	return nil
}

func (m *ConversationManager) load(ctx context.Context, id string) (*models.ConversationDetailResponse, error) {
	creds, err := m.ids.resolve(ctx)
	if err != nil {
		return nil, err
	}
	detail, err := m.backend.GetConversation(ctx, creds.token, id)
	if fresh, ok := m.ids.renew(ctx, creds, err); ok {
		creds = fresh
		detail, err = m.backend.GetConversation(ctx, creds.token, id)
	}
	if err != nil {
		return nil, guestRefused(creds, err)
	}
	return detail, nil
}

// StartNewChat creates a conversation in the current mode for the account
// or, without a session, for the guest. Unless initial is set the assistant
// opens the conversation.
func (m *ConversationManager) StartNewChat(ctx context.Context, initial bool) (string, error) {
	creds, err := m.ids.resolve(ctx)
	if err != nil {
		return "", err
	}
	mode := m.Mode()
	newID := uuid.NewString()

	id, err := m.create(ctx, creds, newID, mode)
	if fresh, ok := m.ids.renew(ctx, creds, err); ok {
		creds = fresh
		id, err = m.create(ctx, creds, newID, mode)
	}
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", guestRefused(creds, err))
	}

	m.mu.Lock()
	m.state, m.id, m.messages = StateReady, id, nil
	m.mu.Unlock()
	m.remember(ctx, id)
	m.logger.Info("conversation started", zap.String("conversation_id", id), zap.String("mode", string(mode)))

	if !initial && m.opener != nil {
		if err := m.opener(ctx); err != nil {
			return id, err
		}
	}
	return id, nil
}

func (m *ConversationManager) create(ctx context.Context, creds credentials, id string, mode models.Mode) (string, error) {
	if creds.isGuest() {
		return m.backend.CreateGuestConversation(ctx, creds.token, models.SendConversationRequest{
			ID:      id,
			GuestID: creds.guestID,
			Mode:    mode,
		})
	}
	conv, err := m.backend.CreateAccountConversation(ctx, creds.token, models.CreateConversationRequest{ID: id, Mode: mode})
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}

// UpdateConversationMode switches the mode at once and persists it for the
// active conversation. A failed save restores the previous mode.
func (m *ConversationManager) UpdateConversationMode(ctx context.Context, mode models.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", mode)
	}

	m.mu.Lock()
	prev, id := m.mode, m.id
	m.mode = mode
	m.mu.Unlock()

	if id != "" {
		err := m.saveMode(ctx, id, mode)
		if err != nil {
			m.mu.Lock()
			if m.mode == mode && m.id == id {
				m.mode = prev
			}
			m.mu.Unlock()
			m.logger.Warn("mode change rolled back", zap.String("conversation_id", id), zap.Error(err))
			return err
		}
	}
	if err := m.store.Set(ctx, localstate.KeyMode, string(mode)); err != nil {
		m.logger.Warn("preferred mode not stored", zap.Error(err))
	}
	return nil
}

func (m *ConversationManager) saveMode(ctx context.Context, id string, mode models.Mode) error {
	creds, err := m.ids.resolve(ctx)
	if err != nil {
		return err
	}
	_, err = m.backend.UpdateConversationMode(ctx, creds.token, id, mode)
	if fresh, ok := m.ids.renew(ctx, creds, err); ok {
		creds = fresh
		_, err = m.backend.UpdateConversationMode(ctx, creds.token, id, mode)
	}
	if err != nil {
		return fmt.Errorf("save mode: %w", guestRefused(creds, err))
	}
	return nil
}

// Reset forgets the active conversation.
func (m *ConversationManager) Reset(ctx context.Context) {
	m.mu.Lock()
	m.state, m.id, m.messages = StateReady, "", nil
	m.mu.Unlock()
	_ = m.store.Delete(ctx, localstate.KeyConversationID)
}

func (m *ConversationManager) remember(ctx context.Context, id string) {
	if err := m.store.Set(ctx, localstate.KeyConversationID, id); err != nil {
		m.logger.Warn("active conversation not stored", zap.Error(err))
	}
}

// appendMessage adds a message to the display if id is still active.
func (m *ConversationManager) appendMessage(id string, msg models.ChatMessage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id != id {
		return false
	}
	m.messages = append(m.messages, msg)
	return true
}
