package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mealbridge/dispatch-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// httpStatus maps application error codes onto HTTP statuses.
func httpStatus(code errors.Code) int {
	switch code {
	case errors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case errors.CodePermissionDenied:
		return http.StatusForbidden
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeInvalidArgument:
		return http.StatusBadRequest
	case errors.CodeFailedPrecondition, errors.CodeInvalidStateTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithError sends an error response
func RespondWithError(c *gin.Context, err error) {
	code := errors.CodeOf(err)
	message := "internal error"
	if appErr, ok := err.(*errors.AppError); ok {
		message = appErr.Message
	}

	c.JSON(httpStatus(code), Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}
