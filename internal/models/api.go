package models

import (
	"time"

	"github.com/google/uuid"
)

// --- Request Structs ---

// SignupRequest defines the expected body for the signup endpoint.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest defines the expected body for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// --- Response Structs ---

// UserResponse defines the account information returned by the API.
type UserResponse struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	IsSubscribed bool      `json:"is_subscribed"`
}

// AuthResponse defines the response body for successful authentication.
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// --- Function DTOs ---

// CompletionRequest is the body of the completion function.
type CompletionRequest struct {
	Messages       []ChatMessage `json:"messages"`
	ConversationID string        `json:"conversation_id"`
	UserID         string        `json:"user_id,omitempty"` // informational; the token decides
	GuestID        string        `json:"guest_id,omitempty"`
	Mode           Mode          `json:"mode,omitempty"`
	IsInitial      bool          `json:"isInitial,omitempty"`
}

// CompletionResponse is returned by the completion function.
type CompletionResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	GuestID        string `json:"guest_id,omitempty"`
}

// CheckoutResponse is returned by create-checkout.
type CheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// PortalResponse is returned by customer-portal.
type PortalResponse struct {
	URL string `json:"url"`
}

// GuestRequest carries a guest identifier (guest-auth, set-guest-claims,
// migrate-guest-data).
type GuestRequest struct {
	GuestID string `json:"guest_id"`
}

// GuestAuthResponse is returned by guest-auth.
type GuestAuthResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	GuestID string `json:"guest_id"`
}

// GuestClaimsResponse is returned by set-guest-claims.
type GuestClaimsResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

// SuccessResponse is the minimal acknowledgement body.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// SendConversationRequest is the body of send-conversation.
type SendConversationRequest struct {
	ID      string `json:"id,omitempty"`
	GuestID string `json:"guest_id"`
	Title   string `json:"title,omitempty"`
	Mode    Mode   `json:"mode"`
}

// SendConversationResponse is returned by send-conversation.
type SendConversationResponse struct {
	Success        bool   `json:"success"`
	ConversationID string `json:"conversationId"`
}

// --- Conversation DTOs ---

// CreateConversationRequest creates an account-owned conversation.
type CreateConversationRequest struct {
	ID    string `json:"id,omitempty"` // caller-generated; optional
	Title string `json:"title,omitempty"`
	Mode  Mode   `json:"mode"`
}

// UpdateConversationModeRequest changes the mode of a conversation.
type UpdateConversationModeRequest struct {
	Mode Mode `json:"mode"`
}

// ConversationResponse is the API form of a conversation row.
type ConversationResponse struct {
	ID        string     `json:"id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	GuestID   *string    `json:"guest_id,omitempty"`
	Mode      Mode       `json:"mode"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ConversationDetailResponse is a conversation with its ordered messages.
type ConversationDetailResponse struct {
	Conversation ConversationResponse `json:"conversation"`
	Messages     []ChatMessage        `json:"messages"`
}

// ListConversationsResponse lists the caller's conversations.
type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// --- Usage DTOs ---

// SubscriptionResponse carries the account's subscription profile.
type SubscriptionResponse struct {
	IsSubscribed  bool `json:"is_subscribed"`
	MessagesLimit int  `json:"messages_limit"`
}

// UsageResponse carries the consumption counter.
type UsageResponse struct {
	MessagesUsed  int `json:"messages_used"`
	MessagesLimit int `json:"messages_limit"`
}
