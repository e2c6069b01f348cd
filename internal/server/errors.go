package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/plantrip/internal/apperr"
)

type errorPayload struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Causes are logged, never sent.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal("http", "unexpected_error", err)
	}
	status := statusForKind(appErr.Kind())
	fields := []zap.Field{
		zap.String("code", appErr.Code()),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Debug("request rejected", fields...)
	}

	payload := errorPayload{Error: appErr.Reason(), Code: appErr.Code(), Message: appErr.Message()}
	if appErr.Kind() == apperr.KindInternal {
		payload.Message = "internal error"
	}
	c.AbortWithStatusJSON(status, payload)
}

func (h *httpHandler) respondInvalidRequest(c *gin.Context, err error) {
	h.logger.Debug("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorPayload{
		Error:   "invalid_request",
		Code:    "http.invalid_request",
		Message: describeBindingError(err),
	})
}
