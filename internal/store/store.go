package store

import (
	"context"
	"errors"
	"time"

	db_models "softspace/internal/models"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when an insert collides with an existing row.
var ErrConflict = errors.New("record already exists")

// ErrLimitReached is returned when a counted exchange would go past the
// owner's message limit.
var ErrLimitReached = errors.New("message limit reached")

// CreateConversationParams contains parameters for creating a conversation.
// Exactly one of Owner.UserID / Owner.GuestID must be set.
type CreateConversationParams struct {
	ID    string
	Owner db_models.Owner
	Mode  db_models.Mode
	Title string
}

// NewMessageParams is one message to persist. Content is already encrypted.
type NewMessageParams struct {
	Role      db_models.Role
	Content   []byte
	CreatedAt time.Time
}

// RecordExchangeParams persists the outcome of one completion call.
type RecordExchangeParams struct {
	ConversationID string
	Owner          db_models.Owner
	Messages       []NewMessageParams // persisted in order
	CountUsage     bool               // increment messages_used by one
	DefaultLimit   int                // limit for a usage row created on the fly
	Limit          int                // refuse a counted exchange once messages_used reaches it; 0 means unlimited
}

// Store defines the interface for database operations.
// This allows for mocking in tests and potential DB backend switching.
type Store interface {
	// Account operations
	GetUserByEmail(ctx context.Context, email string) (*db_models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*db_models.User, error)
	CreateUser(ctx context.Context, user *db_models.User) error
	SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error
	SetSubscriptionByCustomer(ctx context.Context, customerID string, subscribed bool) error

	// Conversation operations
	CreateConversation(ctx context.Context, arg CreateConversationParams) (*db_models.Conversation, error)
	GetConversationByID(ctx context.Context, id string) (*db_models.Conversation, error)
	ListConversationsByOwner(ctx context.Context, owner db_models.Owner, limit int) ([]db_models.Conversation, error)
	UpdateConversationMode(ctx context.Context, id string, mode db_models.Mode) (*db_models.Conversation, error)

	// Message operations
	ListMessages(ctx context.Context, conversationID string) ([]db_models.Message, error)
	RecordExchange(ctx context.Context, arg RecordExchangeParams) error

	// Usage operations
	EnsureUsage(ctx context.Context, owner db_models.Owner, defaultLimit int) (*db_models.Usage, error)
	GetUsage(ctx context.Context, owner db_models.Owner) (*db_models.Usage, error)

	// MigrateGuestData moves every conversation and the usage of guestID to
	// userID in one transaction.
	MigrateGuestData(ctx context.Context, guestID string, userID uuid.UUID) error
}
