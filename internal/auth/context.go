package auth

import (
	"context"

	"softspace/internal/models"

	"github.com/google/uuid"
)

// contextKey is a custom type used for context keys to avoid collisions.
type contextKey string

const identityKey contextKey = "identity"

// Identity is who a request acts as: an account, a guest, or nobody.
type Identity struct {
	UserID  uuid.UUID
	GuestID string
}

// IsAccount reports whether the identity is an authenticated account.
func (i Identity) IsAccount() bool { return i.UserID != uuid.Nil }

// IsGuest reports whether the identity is a verified guest.
func (i Identity) IsGuest() bool { return !i.IsAccount() && i.GuestID != "" }

// Owner converts the identity to a data owner.
func (i Identity) Owner() models.Owner {
	if i.IsAccount() {
		return models.Owner{UserID: i.UserID}
	}
	return models.Owner{GuestID: i.GuestID}
}

// WithIdentity stores the verified identity in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity and whether one was stored.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// GetUserIDFromContext retrieves the account UserID from the request context.
// Returns the ID and true if found, otherwise uuid.Nil and false.
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok || !id.IsAccount() {
		return uuid.Nil, false
	}
	return id.UserID, true
}
