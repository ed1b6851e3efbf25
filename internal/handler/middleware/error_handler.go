package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/handler/dto"
	"github.com/signet-auth/signet-api/internal/ierr"
)

func ErrorHandlerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("ErrorHandler")
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))

		status := http.StatusInternalServerError
		errResponse := dto.APIErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "An unexpected error occurred.",
		}

		var ve validator.ValidationErrors
		var rle *ierr.RateLimitError

		switch {
		case errors.As(err, &ve):
			status = http.StatusBadRequest
			errResponse.Code = "VALIDATION_ERROR"
			errResponse.Message = "Input validation failed."
			errResponse.Details = buildValidationErrors(ve)

		case errors.As(err, &rle):
			status = http.StatusTooManyRequests
			errResponse.Code = "RATE_LIMITED"
			errResponse.Message = "Rate limit exceeded."
			c.Header("Retry-After", strconv.Itoa(int(rle.RetryAfter/time.Second)+1))

		// Authentication failures share one response body so callers
		// cannot probe which prefix exists or which check tripped.
		case errors.Is(err, ierr.ErrInvalidKey),
			errors.Is(err, ierr.ErrRevokedKey),
			errors.Is(err, ierr.ErrExpiredKey),
			errors.Is(err, ierr.ErrIdentityUnverifiable),
			errors.Is(err, ierr.ErrUnauthorized),
			errors.Is(err, ierr.ErrInvalidCredentials),
			errors.Is(err, ierr.ErrInvalidToken):
			status = http.StatusUnauthorized
			errResponse.Code = "UNAUTHENTICATED"
			errResponse.Message = "Authentication required or failed."

		case errors.Is(err, ierr.ErrInsufficientScope):
			status = http.StatusForbidden
			errResponse.Code = "INSUFFICIENT_SCOPE"
			errResponse.Message = "The authenticated key does not carry the required scope."

		case errors.Is(err, ierr.ErrForbidden):
			status = http.StatusForbidden
			errResponse.Code = "FORBIDDEN"
			errResponse.Message = "Access denied."

		case errors.Is(err, ierr.ErrScopeExpansionRejected):
			status = http.StatusUnprocessableEntity
			errResponse.Code = "SCOPE_EXPANSION_REJECTED"
			errResponse.Message = err.Error()

		case errors.Is(err, ierr.ErrAlreadyRevoked):
			status = http.StatusConflict
			errResponse.Code = "ALREADY_REVOKED"
			errResponse.Message = err.Error()

		case errors.Is(err, ierr.ErrDuplicateSlug), errors.Is(err, ierr.ErrDuplicateID), errors.Is(err, ierr.ErrConflict):
			status = http.StatusConflict
			errResponse.Code = "CONFLICT"
			errResponse.Message = err.Error()

		case errors.Is(err, ierr.ErrValidation):
			status = http.StatusBadRequest
			errResponse.Code = "VALIDATION_ERROR"
			errResponse.Message = err.Error()

		case errors.Is(err, ierr.ErrNotFound), errors.Is(err, ierr.ErrUserNotFound):
			status = http.StatusNotFound
			errResponse.Code = "NOT_FOUND"
			errResponse.Message = "The requested resource was not found."

		case errors.Is(err, ierr.ErrEntropyUnavailable):
			status = http.StatusServiceUnavailable
			errResponse.Code = "ENTROPY_UNAVAILABLE"
			errResponse.Message = "Key generation is temporarily unavailable."
		}

		c.AbortWithStatusJSON(status, errResponse)
	}
}

func buildValidationErrors(ve validator.ValidationErrors) []dto.FieldError {
	details := make([]dto.FieldError, len(ve))
	for i, fe := range ve {
		details[i] = dto.FieldError{
			Field:   fe.Field(),
			Message: getValidationErrorMsg(fe),
		}
	}
	return details
}

func getValidationErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("Field '%s' must be one of [%s]", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("Field '%s' must have at least %s elements", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("Field '%s' exceeds the maximum length of %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("Field '%s' failed validation on the '%s' tag", fe.Field(), fe.Tag())
	}
}
