package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	auditdomain "github.com/smallbiznis/botquota/internal/audit/domain"
	botdomain "github.com/smallbiznis/botquota/internal/botregistry/domain"
	ledgerdomain "github.com/smallbiznis/botquota/internal/ledger/domain"
	retentiondomain "github.com/smallbiznis/botquota/internal/retention/domain"
	"github.com/smallbiznis/botquota/internal/scheduler"
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
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// errorClass maps a group of sentinel errors to one HTTP status.
type errorClass struct {
	status int
	kind   string
	errs   []error
}

var errorClasses = []errorClass{
	{http.StatusBadRequest, "validation_error", []error{
		ErrInvalidRequest,
		accountdomain.ErrInvalidAccountID,
		accountdomain.ErrInvalidPool,
		accountdomain.ErrInvalidStatus,
		ledgerdomain.ErrInvalidAmount,
		ledgerdomain.ErrInvalidSource,
		botdomain.ErrInvalidOwner,
		botdomain.ErrInvalidToken,
		auditdomain.ErrInvalidEvent,
		auditdomain.ErrInvalidAccount,
	}},
	{http.StatusNotFound, "not_found", []error{
		ErrNotFound,
		accountdomain.ErrAccountNotFound,
		botdomain.ErrOwnerNotFound,
		scheduler.ErrUnknownJob,
		gorm.ErrRecordNotFound,
	}},
	{http.StatusConflict, "conflict", []error{
		ErrConflict,
		accountdomain.ErrAccountDeleted,
		botdomain.ErrOwnerDeleted,
		ledgerdomain.ErrInsufficientBalance,
		retentiondomain.ErrNotEligible,
		retentiondomain.ErrCascadeFailed,
		scheduler.ErrBusy,
	}},
	{http.StatusServiceUnavailable, "service_unavailable", []error{
		ErrServiceUnavailable,
	}},
}

// payload renders the client-facing body for known. Conflicts carry the
// sentinel text so callers can tell a deleted account from a busy scheduler.
func (c errorClass) payload(known error) errorPayload {
	switch c.status {
	case http.StatusBadRequest:
		code := known.Error()
		return errorPayload{
			Type:    c.kind,
			Message: "validation error",
			Errors:  []ValidationError{{Field: fieldForCode(code), Code: code, Message: "invalid value"}},
		}
	case http.StatusConflict:
		return errorPayload{Type: c.kind, Message: known.Error()}
	default:
		return errorPayload{Type: c.kind, Message: strings.ReplaceAll(c.kind, "_", " ")}
	}
}

var internalError = errorPayload{Type: "internal_error", Message: "internal server error"}

// ErrorHandlingMiddleware renders the last handler error as the JSON error
// envelope, unless the handler already wrote a body.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		status, payload := mapError(last.Err)
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
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalError
	}

	var verrs *ValidationErrors
	if errors.As(err, &verrs) && verrs != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  verrs.Errors,
		}
	}

	for _, class := range errorClasses {
		for _, known := range class.errs {
			if errors.Is(err, known) {
				return class.status, class.payload(known)
			}
		}
	}
	return http.StatusInternalServerError, internalError
}

// classifyErrorForLog returns the error type and code logged with a failed request.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case len(payload.Errors) > 0:
		return payload.Type, payload.Errors[0].Code
	case status == http.StatusConflict:
		return payload.Type, payload.Message
	default:
		return payload.Type, payload.Type
	}
}

func fieldForCode(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	return strings.TrimPrefix(code, "invalid_")
}
