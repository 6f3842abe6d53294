package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"storefront-checkout/internal/domain"
)

func errorBody(status int, code, message string) gin.H {
	return gin.H{
		"statusCode": status,
		"message":    message,
		"errors":     []gin.H{{"code": code, "message": message}},
	}
}

// writeError maps domain outcomes onto HTTP responses. Retryable failures carry "retry": true.
func writeError(c *gin.Context, err error) {
	var (
		ve *domain.ValidationError
		cf *domain.CheckoutFailed
		te *domain.TransientStorageError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity, errorBody(http.StatusUnprocessableEntity, string(ve.Code), ve.Reason))
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody(http.StatusNotFound, "ResourceNotFound", "resource not found"))
	case errors.Is(err, domain.ErrConflict):
		body := errorBody(http.StatusConflict, "ConcurrentModification", "another checkout for this shopper is in progress")
		body["retry"] = true
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, domain.ErrAlreadyExists):
		c.JSON(http.StatusConflict, errorBody(http.StatusConflict, "DuplicateValue", "resource already exists"))
	case errors.As(err, &cf):
		body := errorBody(http.StatusServiceUnavailable, "CheckoutFailed", "checkout could not be completed, please try again")
		body["retry"] = true
		c.JSON(http.StatusServiceUnavailable, body)
	case errors.As(err, &te):
		body := errorBody(http.StatusServiceUnavailable, "ServiceUnavailable", "storage temporarily unavailable")
		body["retry"] = true
		c.JSON(http.StatusServiceUnavailable, body)
	default:
		c.JSON(http.StatusInternalServerError, errorBody(http.StatusInternalServerError, "General", "internal error"))
	}
}
