package validation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate binds the JSON body into out and validates it.
// On failure it writes a 400 (malformed body) or 422 (invalid fields) response and returns the error so the handler can stop.
func BindAndValidate(c *gin.Context, out any, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"statusCode": http.StatusBadRequest,
			"message":    "invalid request body",
			"errors":     []gin.H{{"code": "InvalidJsonInput", "message": err.Error()}},
		})
		return err
	}
	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"statusCode": http.StatusUnprocessableEntity,
			"message":    "validation failed",
			"errors":     fieldErrors(err),
		})
		return err
	}
	return nil
}

func fieldErrors(err error) []gin.H {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return []gin.H{{"code": "InvalidInput", "message": err.Error()}}
	}
	out := make([]gin.H, 0, len(ve))
	for _, fe := range ve {
		out = append(out, gin.H{
			"code":    "InvalidField",
			"field":   fe.Namespace(),
			"message": fe.Error(),
		})
	}
	return out
}
