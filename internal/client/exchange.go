package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"softspace/internal/models"
	"softspace/internal/prompts"

	"go.uber.org/zap"
)

// MessageExchange sends user turns and appends the assistant's replies.
type MessageExchange struct {
	mu       sync.Mutex
	inFlight map[string]bool

	conversations *ConversationManager
	usage         *UsageTracker
	ids           *identities
	backend       Backend
	prompts       *prompts.Set
	logger        *zap.Logger
	now           func() time.Time
}

func newMessageExchange(conv *ConversationManager, usage *UsageTracker, ids *identities, backend Backend, p *prompts.Set, logger *zap.Logger) *MessageExchange {
	return &MessageExchange{
		inFlight:      make(map[string]bool),
		conversations: conv,
		usage:         usage,
		ids:           ids,
		backend:       backend,
		prompts:       p,
		logger:        logger.Named("exchange"),
		now:           time.Now,
	}
}

// creatingConversation holds the send slot while a send creates the
// conversation it goes to. Conversation ids are never empty.
const creatingConversation = ""

func (x *MessageExchange) acquire(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.inFlight[id] || x.inFlight[creatingConversation] {
		return false
	}
	x.inFlight[id] = true
	return true
}

// claim marks the active conversation as sending, creating it first when none
// is active.
func (x *MessageExchange) claim(ctx context.Context) (string, error) {
	if id := x.conversations.ID(); id != "" {
		if !x.acquire(id) {
			return "", ErrSendInFlight
		}
		return id, nil
	}
	if !x.acquire(creatingConversation) {
		return "", ErrSendInFlight
	}
	id, err := x.conversations.StartNewChat(ctx, true)
	if err != nil {
		x.release(creatingConversation)
		return "", err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.inFlight, creatingConversation)
	x.inFlight[id] = true
	return id, nil
}

func (x *MessageExchange) release(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.inFlight, id)
}

// Sending reports whether a send is pending for conversation id.
func (x *MessageExchange) Sending(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.inFlight[id]
}

// Send delivers text and returns the assistant's reply. Blank text is
// ignored. An exhausted quota stops the send before any network call. The
// user's message stays displayed even when the call fails.
func (x *MessageExchange) Send(ctx context.Context, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if x.usage.Blocked() {
		return nil, ErrQuotaExceeded
	}

	creds, err := x.ids.resolve(ctx)
	if err != nil {
		return nil, err
	}

	id, err := x.claim(ctx)
	if err != nil {
		return nil, err
	}
	defer x.release(id)

	history := x.conversations.Messages()
	at := x.now()
	userMsg := models.ChatMessage{Role: models.RoleUser, Content: text, CreatedAt: &at}
	x.conversations.appendMessage(id, userMsg)

	mode := x.conversations.Mode()
	reply, err := x.complete(ctx, creds, models.CompletionRequest{
		Messages:       x.prompts.Build(mode, append(history, userMsg)),
		ConversationID: id,
		Mode:           mode,
	})
	if err != nil {
		return nil, err
	}
	x.conversations.appendMessage(id, *reply)

	if err := x.usage.Refresh(ctx); err != nil {
		x.logger.Warn("usage refresh after send failed", zap.Error(err))
	}
	return reply, nil
}

// Opening asks the assistant to open the active conversation. It does not
// count against the quota.
func (x *MessageExchange) Opening(ctx context.Context) error {
	id := x.conversations.ID()
	if id == "" {
		return nil
	}
	creds, err := x.ids.resolve(ctx)
	if err != nil {
		return err
	}
	if !x.acquire(id) {
		return ErrSendInFlight
	}
	defer x.release(id)

	reply, err := x.complete(ctx, creds, models.CompletionRequest{
		ConversationID: id,
		Mode:           x.conversations.Mode(),
		IsInitial:      true,
	})
	if err != nil {
		return err
	}
	x.conversations.appendMessage(id, *reply)
	return nil
}

func (x *MessageExchange) complete(ctx context.Context, creds credentials, req models.CompletionRequest) (*models.ChatMessage, error) {
	req.GuestID = creds.guestID
	resp, err := x.backend.Complete(ctx, creds.token, req)
	if fresh, ok := x.ids.renew(ctx, creds, err); ok {
		// Retry once with the new guest token
		x.logger.Info("guest token renewed", zap.String("conversation_id", req.ConversationID))
		creds, req.GuestID = fresh, fresh.guestID
		resp, err = x.backend.Complete(ctx, creds.token, req)
	}
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			x.usage.markExhausted()
		}
		x.logger.Warn("completion failed", zap.String("conversation_id", req.ConversationID), zap.Error(err))
		return nil, guestRefused(creds, err)
	}
	at := x.now()
	return &models.ChatMessage{Role: models.RoleAssistant, Content: resp.Message, CreatedAt: &at}, nil
}
