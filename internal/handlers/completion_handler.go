package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"softspace/internal/auth"
	api_models "softspace/internal/models"
	"softspace/internal/services"
	"softspace/pkg/httputil"

	"go.uber.org/zap"
)

// CompletionService produces assistant replies.
type CompletionService interface {
	Complete(ctx context.Context, caller auth.Identity, req api_models.CompletionRequest) (*api_models.CompletionResponse, error)
}

type CompletionHandler struct {
	service CompletionService
	logger  *zap.Logger
}

func NewCompletionHandler(svc CompletionService, logger *zap.Logger) *CompletionHandler {
	return &CompletionHandler{service: svc, logger: logger.Named("completion_handler")}
}

// callerFor resolves who the request acts as. A verified token wins; without
// one the guest_id in the body is taken as the guest identity.
func callerFor(ctx context.Context, bodyGuestID string) (auth.Identity, bool) {
	id, _ := auth.IdentityFromContext(ctx)
	bodyGuestID = strings.TrimSpace(bodyGuestID)
	switch {
	case id.IsAccount():
		return id, true
	case id.IsGuest():
		return id, bodyGuestID == "" || bodyGuestID == id.GuestID
	case bodyGuestID != "":
		return auth.Identity{GuestID: bodyGuestID}, true
	}
	return auth.Identity{}, true
}

// HandleCompletion handles POST /functions/v1/completion.
func (h *CompletionHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	var req api_models.CompletionRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		httputil.RespondError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	caller, ok := callerFor(r.Context(), req.GuestID)
	if !ok {
		httputil.RespondError(w, http.StatusForbidden, "guest_id does not match token")
		return
	}

	resp, err := h.service.Complete(r.Context(), caller, req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrConversationNotFound):
			// lookup failures are server errors for this function
			httputil.RespondError(w, http.StatusInternalServerError, "Conversation not found")
		case errors.Is(err, services.ErrProvider):
			h.logger.Error("completion provider error", zap.String("conversation_id", req.ConversationID), zap.Error(err))
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to generate a reply")
		default:
			respondServiceError(w, h.logger, err, "Failed to complete conversation")
		}
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}
