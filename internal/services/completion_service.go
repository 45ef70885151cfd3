package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"softspace/internal/auth"
	"softspace/internal/crypto"
	"softspace/internal/llm"
	"softspace/internal/models"
	"softspace/internal/prompts"
	"softspace/internal/store"

	"go.uber.org/zap"
)

// maxHistoryTurns bounds how much of the conversation is forwarded to the
// provider on each call.
const maxHistoryTurns = 40

// CompletionService produces assistant replies and records each exchange.
type CompletionService struct {
	store     store.Store
	cipher    *crypto.MessageCipher
	prompts   *prompts.Set
	provider  llm.Provider
	freeLimit int
	logger    *zap.Logger
	now       func() time.Time
}

func NewCompletionService(s store.Store, cipher *crypto.MessageCipher, p *prompts.Set, provider llm.Provider, freeLimit int, logger *zap.Logger) *CompletionService {
	return &CompletionService{
		store:     s,
		cipher:    cipher,
		prompts:   p,
		provider:  provider,
		freeLimit: freeLimit,
		logger:    logger.Named("completion"),
		now:       time.Now,
	}
}

// quota is the allowance that applies to a conversation owner.
type quota struct {
	limit      int
	subscribed bool
}

func (s *CompletionService) quotaFor(ctx context.Context, owner models.Owner) (quota, error) {
	if !owner.IsAccount() {
		return quota{limit: s.freeLimit}, nil
	}
	user, err := s.store.GetUserByID(ctx, owner.UserID)
	if err != nil {
		return quota{}, fmt.Errorf("load account: %w", err)
	}
	return quota{limit: user.MessagesLimit, subscribed: user.IsSubscribed}, nil
}

// Complete answers the conversation on behalf of caller. The last user turn
// and the reply are stored together with the usage increment; an opening
// message stores only the reply and is free.
func (s *CompletionService) Complete(ctx context.Context, caller auth.Identity, req models.CompletionRequest) (*models.CompletionResponse, error) {
	if strings.TrimSpace(req.ConversationID) == "" {
		return nil, fmt.Errorf("%w: conversation_id is required", ErrValidation)
	}
	if req.Mode != "" {
		if err := validateMode(req.Mode); err != nil {
			return nil, err
		}
	}

	conv, err := s.store.GetConversationByID(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !canAccess(caller, conv) {
		s.logger.Warn("completion for foreign conversation",
			zap.String("conversation_id", conv.ID), zap.Stringer("caller", caller.Owner()))
		return nil, ErrForbidden
	}

	mode := conv.Mode
	if req.Mode != "" {
		mode = req.Mode
	}

	turns := models.StripSystem(req.Messages)
	var userTurn *models.ChatMessage
	if !req.IsInitial {
		if len(turns) == 0 || turns[len(turns)-1].Role != models.RoleUser || strings.TrimSpace(turns[len(turns)-1].Content) == "" {
			return nil, fmt.Errorf("%w: the last message must be a non-empty user turn", ErrValidation)
		}
		userTurn = &turns[len(turns)-1]
	}

	owner := conv.Owner()
	q, err := s.quotaFor(ctx, owner)
	if err != nil {
		return nil, err
	}
	usage, err := s.store.EnsureUsage(ctx, owner, q.limit)
	if err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}
	if !q.subscribed && usage.MessagesUsed >= q.limit {
		return nil, ErrQuotaExceeded
	}

	if len(turns) > maxHistoryTurns {
		turns = turns[len(turns)-maxHistoryTurns:]
	}
	reply, err := s.provider.Complete(ctx, s.prompts.Build(mode, turns))
	if err != nil {
		s.logger.Error("provider call failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	at := s.now().UTC()
	var msgs []store.NewMessageParams
	if userTurn != nil {
		sealed, err := s.cipher.Seal(conv.ID, userTurn.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		msgs = append(msgs, store.NewMessageParams{Role: models.RoleUser, Content: sealed, CreatedAt: at})
		at = at.Add(time.Microsecond)
	}
	sealed, err := s.cipher.Seal(conv.ID, reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	msgs = append(msgs, store.NewMessageParams{Role: models.RoleAssistant, Content: sealed, CreatedAt: at})

	// The store re-checks the limit while counting since a concurrent call
	// may have spent the last message after EnsureUsage.
	limit := q.limit
	if q.subscribed {
		limit = 0
	}
	err = s.store.RecordExchange(ctx, store.RecordExchangeParams{
		ConversationID: conv.ID,
		Owner:          owner,
		Messages:       msgs,
		CountUsage:     !req.IsInitial,
		DefaultLimit:   q.limit,
		Limit:          limit,
	})
	if errors.Is(err, store.ErrLimitReached) {
		s.logger.Info("quota spent by a concurrent completion", zap.String("conversation_id", conv.ID))
		return nil, ErrQuotaExceeded
	}
	if err != nil {
		s.logger.Error("record exchange", zap.String("conversation_id", conv.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	resp := &models.CompletionResponse{Message: reply, ConversationID: conv.ID}
	if conv.GuestID != nil {
		resp.GuestID = *conv.GuestID
	}
	s.logger.Debug("completion recorded",
		zap.String("conversation_id", conv.ID),
		zap.String("mode", string(mode)),
		zap.Bool("initial", req.IsInitial))
	return resp, nil
}
