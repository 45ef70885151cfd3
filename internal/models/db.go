package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account in the database. It also carries the
// subscription profile (flag, quota ceiling, payment customer).
type User struct {
	ID               uuid.UUID `db:"id"`
	Email            string    `db:"email"`
	HashedPassword   string    `db:"hashed_password"`
	IsSubscribed     bool      `db:"is_subscribed"`
	MessagesLimit    int       `db:"messages_limit"`
	StripeCustomerID *string   `db:"stripe_customer_id"` // NULL until the first checkout
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// Conversation is owned by exactly one of UserID or GuestID.
type Conversation struct {
	ID        string     `db:"id"`
	UserID    *uuid.UUID `db:"user_id"`
	GuestID   *string    `db:"guest_id"`
	Mode      Mode       `db:"mode"`
	Title     string     `db:"title"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

// Owner returns the owner of the conversation.
func (c *Conversation) Owner() Owner {
	o := Owner{}
	if c.UserID != nil {
		o.UserID = *c.UserID
	}
	if c.GuestID != nil {
		o.GuestID = *c.GuestID
	}
	return o
}

// Message is a persisted chat turn. Content holds the encrypted bytes as
// stored; services decrypt before it leaves the backend.
type Message struct {
	ID             uuid.UUID `db:"id"`
	ConversationID string    `db:"conversation_id"`
	Role           Role      `db:"role"`
	Content        []byte    `db:"content"`
	CreatedAt      time.Time `db:"created_at"`
}

// Usage is the message counter and ceiling of one account or guest.
type Usage struct {
	ID            uuid.UUID  `db:"id"`
	UserID        *uuid.UUID `db:"user_id"`
	GuestID       *string    `db:"guest_id"`
	MessagesUsed  int        `db:"messages_used"`
	MessagesLimit int        `db:"messages_limit"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// Owner identifies who a conversation or usage row belongs to. Exactly one
// field is set on a valid owner.
type Owner struct {
	UserID  uuid.UUID
	GuestID string
}

// IsAccount reports whether the owner is an authenticated account.
func (o Owner) IsAccount() bool { return o.UserID != uuid.Nil }

// IsGuest reports whether the owner is a guest identifier.
func (o Owner) IsGuest() bool { return o.UserID == uuid.Nil && o.GuestID != "" }

// Valid reports whether exactly one owner field is set.
func (o Owner) Valid() bool {
	return (o.UserID != uuid.Nil) != (o.GuestID != "")
}

// String is used in logs.
func (o Owner) String() string {
	if o.IsAccount() {
		return "user:" + o.UserID.String()
	}
	return "guest:" + o.GuestID
}
