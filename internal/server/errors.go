package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/switchboard/internal/allocator"
	applydomain "github.com/smallbiznis/switchboard/internal/apply/domain"
	auditdomain "github.com/smallbiznis/switchboard/internal/audit/domain"
	resourcedomain "github.com/smallbiznis/switchboard/internal/resource/domain"
	tenantdomain "github.com/smallbiznis/switchboard/internal/tenant/domain"
	userdomain "github.com/smallbiznis/switchboard/internal/user/domain"
	"github.com/smallbiznis/switchboard/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	applyRetryAfterSeconds      = 5
	contentionRetryAfterSeconds = 1
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
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
	// Job is the terminal apply job when the failure happened after the
	// job record was created.
	Job *applydomain.Job `json:"job,omitempty"`
}

// httpError is the resolved response for an error: status, payload and the
// Retry-After hint in seconds, zero when the request should not be retried.
type httpError struct {
	status     int
	payload    errorPayload
	retryAfter int
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
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

		mapped := mapError(lastErr.Err)
		if mapped.retryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(mapped.retryAfter))
		}
		resp := errorResponse{Error: mapped.payload}
		var failure *applydomain.Failure
		if errors.As(lastErr.Err, &failure) {
			job := failure.Job
			resp.Job = &job
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(mapped.status, resp)
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

// classifyErrorForLog reports the response type and code for request logs.
func classifyErrorForLog(err error) (string, string) {
	mapped := mapError(err)
	return mapped.payload.Type, mapped.payload.Code
}

// mapError resolves err to its response. Apply failures are checked before
// anything else because a *Failure also unwraps to its underlying cause.
func mapError(err error) httpError {
	if err == nil {
		return internalError()
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return httpError{status: http.StatusBadRequest, payload: errorPayload{
			Type:    "validation_error",
			Code:    "invalid_request",
			Message: "validation error",
			Errors:  vErr.Errors,
		}}
	}

	switch {
	case errors.Is(err, applydomain.ErrApplyInProgress):
		return httpError{
			status:     http.StatusConflict,
			payload:    errorPayload{Type: "apply_in_progress", Code: applydomain.ErrApplyInProgress.Error(), Message: "another apply is in progress"},
			retryAfter: applyRetryAfterSeconds,
		}
	case errors.Is(err, applydomain.ErrRollbackFailure):
		return httpError{status: http.StatusInternalServerError, payload: errorPayload{
			Type:    "rollback_failure",
			Code:    applydomain.ErrRollbackFailure.Error(),
			Message: "rollback failed; operator intervention required",
		}}
	case errors.Is(err, applydomain.ErrValidationFailed):
		return httpError{status: http.StatusBadRequest, payload: errorPayload{
			Type:    "validation_error",
			Code:    applydomain.ErrValidationFailed.Error(),
			Message: "configuration validation failed",
		}}
	case errors.Is(err, applydomain.ErrWriteFailure):
		return httpError{status: http.StatusBadGateway, payload: errorPayload{
			Type:    "write_failure",
			Code:    applydomain.ErrWriteFailure.Error(),
			Message: "writing configuration failed; previous configuration restored",
		}}
	case errors.Is(err, applydomain.ErrReloadFailure):
		return httpError{status: http.StatusBadGateway, payload: errorPayload{
			Type:    "reload_failure",
			Code:    applydomain.ErrReloadFailure.Error(),
			Message: "telephony reload failed; previous configuration restored",
		}}
	case errors.Is(err, applydomain.ErrGenerateFailure):
		return internalError()
	}

	switch {
	case errors.Is(err, resourcedomain.ErrAlreadyBound):
		return httpError{status: http.StatusConflict, payload: errorPayload{
			Type:    "already_bound",
			Code:    resourcedomain.ErrAlreadyBound.Error(),
			Message: "resource is already bound",
		}}
	case errors.Is(err, allocator.ErrPoolExhausted):
		return httpError{status: http.StatusUnprocessableEntity, payload: errorPayload{
			Type:    "pool_exhausted",
			Code:    allocator.ErrPoolExhausted.Error(),
			Message: "no free value left in the pool",
		}}
	case errors.Is(err, allocator.ErrResourceContention):
		return httpError{
			status:     http.StatusServiceUnavailable,
			payload:    errorPayload{Type: "resource_contention", Code: allocator.ErrResourceContention.Error(), Message: "allocation contention, retry later"},
			retryAfter: contentionRetryAfterSeconds,
		}
	}

	if code, ok := validationCode(err); ok {
		return httpError{status: http.StatusBadRequest, payload: errorPayload{
			Type:    "validation_error",
			Code:    code,
			Message: "validation error",
			Errors: []ValidationError{
				{Field: validationErrorField(code), Code: code, Message: "invalid value"},
			},
		}}
	}
	if code, ok := conflictCode(err); ok {
		return httpError{status: http.StatusConflict, payload: errorPayload{
			Type:    "conflict",
			Code:    code,
			Message: strings.ReplaceAll(code, "_", " "),
		}}
	}
	if code, ok := notFoundCode(err); ok {
		return httpError{status: http.StatusNotFound, payload: errorPayload{
			Type:    "not_found",
			Code:    code,
			Message: "not found",
		}}
	}
	return internalError()
}

func internalError() httpError {
	return httpError{status: http.StatusInternalServerError, payload: errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrors = []error{
	ErrInvalidRequest,
	pagination.ErrInvalidPageToken,
	tenantdomain.ErrInvalidName,
	tenantdomain.ErrInvalidRange,
	tenantdomain.ErrRangeExcludesResources,
	userdomain.ErrInvalidName,
	userdomain.ErrInvalidEmail,
	userdomain.ErrInvalidForward,
	resourcedomain.ErrInvalidNumber,
	resourcedomain.ErrInvalidStatus,
	resourcedomain.ErrStatusScopeMismatch,
	resourcedomain.ErrInvalidDestination,
	resourcedomain.ErrUnsupportedDestination,
	resourcedomain.ErrDestinationNotFound,
	resourcedomain.ErrDestinationScope,
	resourcedomain.ErrEmptyImport,
	applydomain.ErrInvalidStatus,
	auditdomain.ErrInvalidAction,
	auditdomain.ErrInvalidEntityType,
	auditdomain.ErrInvalidTimeRange,
}

var conflictErrors = []error{
	tenantdomain.ErrSlugTaken,
	tenantdomain.ErrHasResources,
	userdomain.ErrEmailTaken,
	resourcedomain.ErrExtensionAssigned,
	resourcedomain.ErrInvalidState,
	resourcedomain.ErrHasBinding,
	resourcedomain.ErrUserRouted,
}

var notFoundErrors = []error{
	ErrNotFound,
	tenantdomain.ErrNotFound,
	userdomain.ErrNotFound,
	resourcedomain.ErrTenantNotFound,
	resourcedomain.ErrExtensionNotFound,
	resourcedomain.ErrPhoneNumberNotFound,
	resourcedomain.ErrBindingNotFound,
	applydomain.ErrJobNotFound,
}

func validationCode(err error) (string, bool) {
	return matchCode(err, validationErrors)
}

func conflictCode(err error) (string, bool) {
	return matchCode(err, conflictErrors)
}

func notFoundCode(err error) (string, bool) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "not_found", true
	}
	return matchCode(err, notFoundErrors)
}

func matchCode(err error, candidates []error) (string, bool) {
	for _, candidate := range candidates {
		if errors.Is(err, candidate) {
			return candidate.Error(), true
		}
	}
	return "", false
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
