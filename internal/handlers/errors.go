package handlers

import (
	"errors"
	"net/http"

	"softspace/internal/services"
	"softspace/internal/store"
	"softspace/pkg/httputil"

	"go.uber.org/zap"
)

// respondServiceError maps service errors onto status codes. Unknown errors
// are logged and reported as 500 with the fallback message.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrConversationNotFound), errors.Is(err, store.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrQuotaExceeded):
		httputil.RespondError(w, http.StatusPaymentRequired, err.Error())
	default:
		logger.Error(fallback, zap.Error(err))
		httputil.RespondError(w, http.StatusInternalServerError, fallback)
	}
}
