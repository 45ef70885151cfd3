package services

import (
	"context"
	"fmt"

	"softspace/internal/auth"
	"softspace/internal/config"
	"softspace/internal/models"
	"softspace/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GuestService registers anonymous visitors and hands their data over to
// an account after signup.
type GuestService struct {
	store  store.Store
	cfg    *config.Config
	logger *zap.Logger
}

func NewGuestService(s store.Store, cfg *config.Config, logger *zap.Logger) *GuestService {
	return &GuestService{store: s, cfg: cfg, logger: logger.Named("guests")}
}

// Register makes sure the guest has a usage row with the free-tier limit.
// Calling it again is harmless.
func (s *GuestService) Register(ctx context.Context, guestID string) error {
	if err := ValidateGuestID(guestID); err != nil {
		return err
	}
	if _, err := s.store.EnsureUsage(ctx, models.Owner{GuestID: guestID}, s.cfg.FreeMessageLimit); err != nil {
		return fmt.Errorf("ensure guest usage: %w", err)
	}
	return nil
}

// IssueToken mints the token the API accepts as the guest's identity.
func (s *GuestService) IssueToken(guestID string) (string, error) {
	if err := ValidateGuestID(guestID); err != nil {
		return "", err
	}
	token, err := auth.NewGuestToken(guestID, s.cfg.JWTSecret, s.cfg.GuestTokenExpiration)
	if err != nil {
		s.logger.Error("create guest token", zap.Error(err))
		return "", ErrCreatingToken
	}
	return token, nil
}

// Migrate moves the guest's conversations and usage onto the account.
// Unknown guests migrate to nothing.
func (s *GuestService) Migrate(ctx context.Context, userID uuid.UUID, guestID string) error {
	if err := ValidateGuestID(guestID); err != nil {
		return err
	}
	if err := s.store.MigrateGuestData(ctx, guestID, userID); err != nil {
		s.logger.Error("migrate guest data",
			zap.String("guest_id", guestID), zap.Stringer("user_id", userID), zap.Error(err))
		return fmt.Errorf("migrate guest data: %w", err)
	}
	return nil
}
