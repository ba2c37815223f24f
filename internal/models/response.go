// Package models - API request and response types.
// This file defines the JSON bodies of the admin API and the error format
// shared by every endpoint, including the rate limit gate.
package models

import (
	"time"
)

// RegisterEntityRequest is the body of PUT /api/v1/entities/{key}.
// Window uses Go duration syntax ("30s", "1m").
type RegisterEntityRequest struct {
	Capacity *uint  `json:"capacity"`
	Window   string `json:"window"`
}

// FieldError reports a request field that failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Message
}

// Details returns the error in the shape of ErrorResponse.Details.
func (e *FieldError) Details() map[string]string {
	return map[string]string{e.Field: e.Message}
}

// Validate checks the request and returns the parsed window. Failures are
// reported as *FieldError.
func (r *RegisterEntityRequest) Validate() (time.Duration, error) {
	if r.Capacity == nil {
		return 0, &FieldError{Field: "capacity", Message: "capacity is required"}
	}
	if r.Window == "" {
		return 0, &FieldError{Field: "window", Message: "window is required"}
	}
	window, err := time.ParseDuration(r.Window)
	if err != nil {
		return 0, &FieldError{Field: "window", Message: "window must be a duration such as 30s or 1m"}
	}
	if window <= 0 {
		return 0, &FieldError{Field: "window", Message: "window must be positive"}
	}
	return window, nil
}

// EntityResponse describes one registered entity.
type EntityResponse struct {
	Key         string    `json:"key"`
	Remaining   uint      `json:"remaining"`
	Capacity    uint      `json:"capacity"`
	Window      string    `json:"window"`
	WindowStart time.Time `json:"window_start"`
	ResetAt     time.Time `json:"reset_at"`
}

// ConsumeResponse is returned by POST /api/v1/entities/{key}/consume.
type ConsumeResponse struct {
	Key       string `json:"key"`
	Decision  string `json:"decision"`
	Remaining uint   `json:"remaining"`
}

// ErrorResponse provides structured error information.
type ErrorResponse struct {
	Error     string            `json:"error"`             // Error type (always "error")
	Message   string            `json:"message"`           // Human-readable error description
	Code      string            `json:"code,omitempty"`    // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"` // Field-specific error details
	Timestamp time.Time         `json:"timestamp"`         // Error occurrence time
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// StatusHealthy is reported while the limiter is serving.
const StatusHealthy = "healthy"

// Standard HTTP Error Codes
const (
	ErrorCodeNotFound          = "NOT_FOUND"           // 404: Resource doesn't exist
	ErrorCodeEntityNotFound    = "ENTITY_NOT_FOUND"    // 404: Entity is not registered
	ErrorCodeBadRequest        = "BAD_REQUEST"         // 400: Invalid request format
	ErrorCodeInvalidRequest    = "INVALID_REQUEST"     // 405: Method not allowed on the route
	ErrorCodeValidation        = "VALIDATION_ERROR"    // 400: Input validation failed
	ErrorCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED" // 429: Quota exhausted
	ErrorCodeInternalError     = "INTERNAL_ERROR"      // 500: Server-side error
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// WithDetails attaches field-level details to the error.
func (e *ErrorResponse) WithDetails(details map[string]string) *ErrorResponse {
	e.Details = details
	return e
}
