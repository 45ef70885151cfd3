package services

import (
	"errors"
	"fmt"
	"regexp"

	"softspace/internal/auth"
	"softspace/internal/models"
)

// Errors shared by the services. Handlers map them onto HTTP statuses.
var (
	ErrValidation           = errors.New("input validation failed")
	ErrForbidden            = errors.New("not allowed to access this resource")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrQuotaExceeded        = errors.New("message limit reached")
	ErrProvider             = errors.New("completion provider failed")
	ErrPersistence          = errors.New("failed to persist messages")
	ErrBilling              = errors.New("billing provider failed")
)

var guestIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateGuestID checks the shape of a locally generated guest token.
func ValidateGuestID(guestID string) error {
	if !guestIDPattern.MatchString(guestID) {
		return fmt.Errorf("%w: guest_id must be 1-128 characters of [A-Za-z0-9_-]", ErrValidation)
	}
	return nil
}

func validateMode(mode models.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: mode must be %q or %q", ErrValidation, models.ModeSlow, models.ModeVent)
	}
	return nil
}

// canAccess reports whether identity owns the conversation.
func canAccess(id auth.Identity, c *models.Conversation) bool {
	switch {
	case id.IsAccount():
		return c.UserID != nil && *c.UserID == id.UserID
	case id.IsGuest():
		return c.GuestID != nil && *c.GuestID == id.GuestID
	}
	return false
}
