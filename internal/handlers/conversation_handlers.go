package handlers

import (
	"context"
	"net/http"

	"softspace/internal/auth"
	api_models "softspace/internal/models"
	db_models "softspace/internal/models"
	"softspace/internal/services"
	"softspace/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ConversationService is the conversation surface used by the handlers.
type ConversationService interface {
	ConversationCreator
	Get(ctx context.Context, caller auth.Identity, id string) (*api_models.ConversationDetailResponse, error)
	List(ctx context.Context, caller auth.Identity) ([]db_models.Conversation, error)
	UpdateMode(ctx context.Context, caller auth.Identity, id string, mode db_models.Mode) (*db_models.Conversation, error)
}

// ConversationHandlers handles HTTP requests related to conversations.
type ConversationHandlers struct {
	service ConversationService
	logger  *zap.Logger
}

func NewConversationHandlers(svc ConversationService, logger *zap.Logger) *ConversationHandlers {
	return &ConversationHandlers{service: svc, logger: logger.Named("conversation_handler")}
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, _ := auth.IdentityFromContext(r.Context())
	if !id.IsAccount() && !id.IsGuest() {
		httputil.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return auth.Identity{}, false
	}
	return id, true
}

// HandleCreateConversation handles POST /v1/conversations for accounts.
func (h *ConversationHandlers) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req api_models.CreateConversationRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	conv, err := h.service.Create(r.Context(), services.CreateParams{
		ID:    req.ID,
		Owner: db_models.Owner{UserID: userID},
		Mode:  req.Mode,
		Title: req.Title,
	})
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to create conversation")
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, services.ToConversationResponse(conv))
}

// HandleListConversations handles GET /v1/conversations.
func (h *ConversationHandlers) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	convs, err := h.service.List(r.Context(), caller)
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to list conversations")
		return
	}

	resp := api_models.ListConversationsResponse{Conversations: make([]api_models.ConversationResponse, 0, len(convs))}
	for i := range convs {
		resp.Conversations = append(resp.Conversations, services.ToConversationResponse(&convs[i]))
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleGetConversation handles GET /v1/conversations/{conversationID}.
func (h *ConversationHandlers) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Get(r.Context(), caller, chi.URLParam(r, "conversationID"))
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to load conversation")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, detail)
}

// HandleUpdateMode handles PATCH /v1/conversations/{conversationID}/mode.
func (h *ConversationHandlers) HandleUpdateMode(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req api_models.UpdateConversationModeRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	conv, err := h.service.UpdateMode(r.Context(), caller, chi.URLParam(r, "conversationID"), req.Mode)
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to update conversation mode")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, services.ToConversationResponse(conv))
}
