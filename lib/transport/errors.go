// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError represents an error response from the Helio API.
type APIError struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int
	// Message is the error message extracted from the response body,
	// or the HTTP status text when the body carried none.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("helio API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// parseAPIError builds an *APIError from a non-2xx response body. The
// API reports errors as {"error": "..."} or {"message": "..."}; plain
// text bodies are used verbatim, and empty bodies fall back to the
// status text.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiError := &APIError{StatusCode: statusCode}

	var structured struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &structured); err == nil {
		switch {
		case structured.Error != "":
			apiError.Message = structured.Error
		case structured.Message != "":
			apiError.Message = structured.Message
		}
	}
	if apiError.Message == "" && len(body) > 0 {
		const maxMessage = 512
		message := string(body)
		if len(message) > maxMessage {
			message = message[:maxMessage]
		}
		apiError.Message = message
	}
	if apiError.Message == "" {
		apiError.Message = http.StatusText(statusCode)
	}
	return apiError
}

// Retryable reports whether a delivery attempt that failed with err is
// worth repeating. Server errors (5xx) and transport-level failures,
// timeouts included, are transient; client errors (4xx) mean the
// request itself is defective and will fail identically on every
// retry. Context cancellation is terminal because the caller has
// already given up.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiError *APIError
	if errors.As(err, &apiError) {
		return apiError.StatusCode >= 500
	}
	return true
}

// IsRejection reports whether err is a 4xx API response, meaning the
// server examined the request and refused it.
func IsRejection(err error) bool {
	var apiError *APIError
	if errors.As(err, &apiError) {
		return apiError.StatusCode >= 400 && apiError.StatusCode < 500
	}
	return false
}

// IsNotFound reports whether err is an HTTP 404 API error.
func IsNotFound(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is an HTTP 401 or 403 API error,
// indicating a missing, revoked, or insufficient credential.
func IsUnauthorized(err error) bool {
	var apiError *APIError
	if errors.As(err, &apiError) {
		return apiError.StatusCode == http.StatusUnauthorized ||
			apiError.StatusCode == http.StatusForbidden
	}
	return false
}
