package handler

import (
	"errors"
	"net/http"

	"queryforum/backend/internal/apperrors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// respondError maps err onto a status code and a localized message.
func (h *Handler) respondError(c *gin.Context, err error) {
	lang := h.Localizer.Match(c.GetHeader("Accept-Language"))

	var ve *apperrors.ValidationError
	var status int
	body := ErrorResponse{}

	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		body.Code = "validation"
		body.Field = ve.Field
		body.Message = h.Localizer.Format(lang, "error.validation", ve.Field, ve.Message)
	// ErrForbidden wraps ErrUnauthorized, so it must be checked first.
	case errors.Is(err, apperrors.ErrForbidden):
		status = http.StatusForbidden
		body.Code = "forbidden"
		body.Message = h.Localizer.GetString(lang, "error.forbidden")
	case errors.Is(err, apperrors.ErrUnauthorized):
		status = http.StatusUnauthorized
		body.Code = "unauthorized"
		body.Message = h.Localizer.GetString(lang, "error.unauthorized")
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
		body.Code = "not_found"
		body.Message = h.Localizer.GetString(lang, "error.not_found")
	case errors.Is(err, apperrors.ErrConflict):
		status = http.StatusConflict
		body.Code = "conflict"
		body.Message = h.Localizer.GetString(lang, "error.conflict")
	case errors.Is(err, apperrors.ErrTransient):
		status = http.StatusServiceUnavailable
		body.Code = "transient"
		body.Message = h.Localizer.GetString(lang, "error.transient")
	default:
		status = http.StatusInternalServerError
		body.Code = "internal"
		body.Message = h.Localizer.GetString(lang, "error.internal")
	}

	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}
