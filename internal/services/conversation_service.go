package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"softspace/internal/auth"
	"softspace/internal/crypto"
	"softspace/internal/models"
	"softspace/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultTitle       = "New conversation"
	maxTitleLength     = 200
	listConversationsN = 50
)

var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ConversationService manages conversations for accounts and guests.
type ConversationService struct {
	store  store.Store
	cipher *crypto.MessageCipher
	logger *zap.Logger
}

func NewConversationService(s store.Store, cipher *crypto.MessageCipher, logger *zap.Logger) *ConversationService {
	return &ConversationService{store: s, cipher: cipher, logger: logger.Named("conversations")}
}

// CreateParams describes a new conversation. An empty ID is generated.
type CreateParams struct {
	ID    string
	Owner models.Owner
	Mode  models.Mode
	Title string
}

// Create inserts a conversation owned by params.Owner.
func (s *ConversationService) Create(ctx context.Context, params CreateParams) (*models.Conversation, error) {
	if !params.Owner.Valid() {
		return nil, fmt.Errorf("%w: conversation needs exactly one owner", ErrValidation)
	}
	if params.Owner.IsGuest() {
		if err := ValidateGuestID(params.Owner.GuestID); err != nil {
			return nil, err
		}
	}
	if err := validateMode(params.Mode); err != nil {
		return nil, err
	}

	id := strings.TrimSpace(params.ID)
	if id == "" {
		id = uuid.NewString()
	} else if !conversationIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: invalid conversation id", ErrValidation)
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		title = defaultTitle
	}
	title = truncateTitle(title)

	conv, err := s.store.CreateConversation(ctx, store.CreateConversationParams{
		ID:    id,
		Owner: params.Owner,
		Mode:  params.Mode,
		Title: title,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: conversation id already in use", ErrValidation)
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.Stringer("owner", params.Owner),
		zap.String("mode", string(conv.Mode)))
	return conv, nil
}

// owned loads a conversation and hides it from anyone but its owner.
func (s *ConversationService) owned(ctx context.Context, caller auth.Identity, id string) (*models.Conversation, error) {
	conv, err := s.store.GetConversationByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !canAccess(caller, conv) {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// Get returns a conversation and its decrypted messages in order.
func (s *ConversationService) Get(ctx context.Context, caller auth.Identity, id string) (*models.ConversationDetailResponse, error) {
	conv, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := make([]models.ChatMessage, 0, len(rows))
	for _, m := range rows {
		content, err := s.cipher.Open(conv.ID, m.Content)
		if err != nil {
			s.logger.Error("decrypt message", zap.Stringer("message_id", m.ID), zap.Error(err))
			return nil, fmt.Errorf("decrypt message %s: %w", m.ID, err)
		}
		createdAt := m.CreatedAt
		msgs = append(msgs, models.ChatMessage{
			ID:        m.ID.String(),
			Role:      m.Role,
			Content:   content,
			CreatedAt: &createdAt,
		})
	}

	return &models.ConversationDetailResponse{
		Conversation: ToConversationResponse(conv),
		Messages:     msgs,
	}, nil
}

// List returns the caller's most recently updated conversations.
func (s *ConversationService) List(ctx context.Context, caller auth.Identity) ([]models.Conversation, error) {
	owner := caller.Owner()
	if !owner.Valid() {
		return nil, ErrForbidden
	}
	return s.store.ListConversationsByOwner(ctx, owner, listConversationsN)
}

// UpdateMode persists a mode change made by the conversation's owner.
func (s *ConversationService) UpdateMode(ctx context.Context, caller auth.Identity, id string, mode models.Mode) (*models.Conversation, error) {
	if err := validateMode(mode); err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, caller, id); err != nil {
		return nil, err
	}
	conv, err := s.store.UpdateConversationMode(ctx, id, mode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("update mode: %w", err)
	}
	return conv, nil
}

func ToConversationResponse(c *models.Conversation) models.ConversationResponse {
	return models.ConversationResponse{
		ID:        c.ID,
		UserID:    c.UserID,
		GuestID:   c.GuestID,
		Mode:      c.Mode,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// truncateTitle caps title at maxTitleLength bytes without splitting a rune.
func truncateTitle(title string) string {
	if len(title) <= maxTitleLength {
		return title
	}
	cut := 0
	for cut < len(title) {
		_, size := utf8.DecodeRuneInString(title[cut:])
		if cut+size > maxTitleLength {
			break
		}
		cut += size
	}
	return title[:cut]
}
