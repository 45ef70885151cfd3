package handlers

import (
	"context"
	"net/http"
	"strings"

	"softspace/internal/auth"
	api_models "softspace/internal/models"
	db_models "softspace/internal/models"
	"softspace/internal/services"
	"softspace/pkg/httputil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GuestService registers guests and migrates their data.
type GuestService interface {
	Register(ctx context.Context, guestID string) error
	IssueToken(guestID string) (string, error)
	Migrate(ctx context.Context, userID uuid.UUID, guestID string) error
}

// ConversationCreator inserts conversations.
type ConversationCreator interface {
	Create(ctx context.Context, params services.CreateParams) (*db_models.Conversation, error)
}

// GuestHandlers serves the guest-facing functions.
type GuestHandlers struct {
	guests        GuestService
	conversations ConversationCreator
	logger        *zap.Logger
}

func NewGuestHandlers(guests GuestService, conversations ConversationCreator, logger *zap.Logger) *GuestHandlers {
	return &GuestHandlers{guests: guests, conversations: conversations, logger: logger.Named("guest_handler")}
}

func (h *GuestHandlers) decodeGuest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req api_models.GuestRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return "", false
	}
	guestID := strings.TrimSpace(req.GuestID)
	if err := services.ValidateGuestID(guestID); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return guestID, true
}

// HandleGuestAuth handles POST /functions/v1/guest-auth.
func (h *GuestHandlers) HandleGuestAuth(w http.ResponseWriter, r *http.Request) {
	guestID, ok := h.decodeGuest(w, r)
	if !ok {
		return
	}
	if err := h.guests.Register(r.Context(), guestID); err != nil {
		respondServiceError(w, h.logger, err, "Failed to register guest")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, api_models.GuestAuthResponse{
		Success: true,
		Message: "Guest session ready",
		GuestID: guestID,
	})
}

// HandleSetGuestClaims handles POST /functions/v1/set-guest-claims.
func (h *GuestHandlers) HandleSetGuestClaims(w http.ResponseWriter, r *http.Request) {
	guestID, ok := h.decodeGuest(w, r)
	if !ok {
		return
	}
	token, err := h.guests.IssueToken(guestID)
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to issue guest token")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, api_models.GuestClaimsResponse{Success: true, Token: token})
}

// HandleMigrateGuestData handles POST /functions/v1/migrate-guest-data. It
// requires an account token.
func (h *GuestHandlers) HandleMigrateGuestData(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	guestID, ok := h.decodeGuest(w, r)
	if !ok {
		return
	}
	if err := h.guests.Migrate(r.Context(), userID, guestID); err != nil {
		respondServiceError(w, h.logger, err, "Failed to migrate guest data")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, api_models.SuccessResponse{Success: true})
}

// HandleSendConversation handles POST /functions/v1/send-conversation and
// creates a guest-owned conversation.
func (h *GuestHandlers) HandleSendConversation(w http.ResponseWriter, r *http.Request) {
	var req api_models.SendConversationRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	caller, ok := callerFor(r.Context(), req.GuestID)
	if !ok || !caller.IsGuest() {
		httputil.RespondError(w, http.StatusBadRequest, "guest_id is required")
		return
	}

	conv, err := h.conversations.Create(r.Context(), services.CreateParams{
		ID:    req.ID,
		Owner: caller.Owner(),
		Mode:  req.Mode,
		Title: req.Title,
	})
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to create conversation")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, api_models.SendConversationResponse{Success: true, ConversationID: conv.ID})
}
