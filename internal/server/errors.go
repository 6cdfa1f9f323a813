package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/haulboard/gatehouse/internal/authorization"
	identitydomain "github.com/haulboard/gatehouse/internal/identity/domain"
	impersonationdomain "github.com/haulboard/gatehouse/internal/impersonation/domain"
	rolloutdomain "github.com/haulboard/gatehouse/internal/rollout/domain"
	tenantdomain "github.com/haulboard/gatehouse/internal/tenant/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not_found")
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrTooManyRequests = errors.New("too_many_requests")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: code,
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isAuthenticationError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "authentication_error",
			Message: "unauthorized",
		}
	case isAuthorizationError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "authorization_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case errors.Is(err, impersonationdomain.ErrActiveSessionExists):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isAuthenticationError(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, identitydomain.ErrInvalidCredentials),
		errors.Is(err, identitydomain.ErrInvalidToken),
		errors.Is(err, identitydomain.ErrTokenExpired),
		errors.Is(err, identitydomain.ErrTokenRevoked),
		errors.Is(err, identitydomain.ErrTokenNotFound),
		errors.Is(err, identitydomain.ErrUserInactive):
		return true
	default:
		return false
	}
}

func isAuthorizationError(err error) bool {
	switch {
	case errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrPlatformAdminRequired),
		errors.Is(err, authorization.ErrInvalidPrincipal),
		errors.Is(err, impersonationdomain.ErrNotSessionOwner):
		return true
	default:
		return false
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, tenantdomain.ErrInvalidName),
		errors.Is(err, tenantdomain.ErrInvalidTenant),
		errors.Is(err, tenantdomain.ErrInvalidUser),
		errors.Is(err, tenantdomain.ErrInvalidRole),
		errors.Is(err, tenantdomain.ErrInvalidReleaseChannel),
		errors.Is(err, tenantdomain.ErrInvalidPageToken),
		errors.Is(err, rolloutdomain.ErrInvalidFlag),
		errors.Is(err, rolloutdomain.ErrInvalidKey),
		errors.Is(err, rolloutdomain.ErrInvalidName),
		errors.Is(err, impersonationdomain.ErrInvalidTenant),
		errors.Is(err, impersonationdomain.ErrReasonTooShort):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, tenantdomain.ErrTenantNotFound),
		errors.Is(err, tenantdomain.ErrMembershipNotFound),
		errors.Is(err, rolloutdomain.ErrFlagNotFound),
		errors.Is(err, rolloutdomain.ErrOverrideNotFound),
		errors.Is(err, impersonationdomain.ErrSessionNotFound),
		errors.Is(err, identitydomain.ErrUserNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "reason_too_short":
		return "reason must be at least 10 characters"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog tags request logs with the error taxonomy type and the
// stable sentinel code.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Message
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
