package handler

import (
	"github.com/gin-gonic/gin"

	apperrors "strangerchat/backend/internal/errors"
	"strangerchat/backend/internal/logger"
)

// respondError writes {"error", "message", "retryable"}; message is in the
// caller's language.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := apperrors.HTTPStatus(kind)
	if kind == apperrors.KindInternal || kind == apperrors.KindTransient {
		logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "kind", kind, "err", err)
	}

	message := err.Error()
	if h.Localizer != nil {
		lang := h.Localizer.Negotiate(c.GetHeader("Accept-Language"))
		message = h.Localizer.ErrorMessage(lang, string(kind))
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":     kind,
		"message":   message,
		"retryable": apperrors.IsRetryable(err),
	})
}

// bindError reports a malformed request body.
func (h *Handler) bindError(c *gin.Context, err error) {
	h.respondError(c, apperrors.Wrap(apperrors.KindInvalidArgument, "malformed request", err))
}
