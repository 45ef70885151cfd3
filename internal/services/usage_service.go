package services

import (
	"context"
	"fmt"

	"softspace/internal/auth"
	"softspace/internal/config"
	"softspace/internal/models"
	"softspace/internal/store"

	"github.com/google/uuid"
)

// UsageService reports subscription profiles and message counters.
type UsageService struct {
	store store.Store
	cfg   *config.Config
}

func NewUsageService(s store.Store, cfg *config.Config) *UsageService {
	return &UsageService{store: s, cfg: cfg}
}

// Subscription returns the account's subscription flag and ceiling.
func (s *UsageService) Subscription(ctx context.Context, userID uuid.UUID) (*models.SubscriptionResponse, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.SubscriptionResponse{IsSubscribed: user.IsSubscribed, MessagesLimit: user.MessagesLimit}, nil
}

// Usage returns the caller's counter, creating it on first access.
func (s *UsageService) Usage(ctx context.Context, caller auth.Identity) (*models.UsageResponse, error) {
	owner := caller.Owner()
	if !owner.Valid() {
		return nil, ErrForbidden
	}
	limit := s.cfg.FreeMessageLimit
	if owner.IsAccount() {
		user, err := s.store.GetUserByID(ctx, owner.UserID)
		if err != nil {
			return nil, err
		}
		limit = user.MessagesLimit
	}
	u, err := s.store.EnsureUsage(ctx, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}
	return &models.UsageResponse{MessagesUsed: u.MessagesUsed, MessagesLimit: u.MessagesLimit}, nil
}
