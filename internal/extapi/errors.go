package extapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from an external provider API.
type APIError struct {
	// Service names the provider, e.g. "moyasar" or "oto".
	Service string

	StatusCode int

	// Message is the best human-readable detail extracted from the body.
	Message string

	Body []byte
}

func (err *APIError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", err.Service, err.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", err.Service, err.StatusCode, err.Message)
}

// IsUnauthorized reports whether err is a 401 or 403 provider response.
func IsUnauthorized(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) &&
		(apiError.StatusCode == http.StatusUnauthorized || apiError.StatusCode == http.StatusForbidden)
}

// IsNotFound reports whether err is a 404 provider response.
func IsNotFound(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == http.StatusNotFound
}

// IsClientError reports whether err is a 4xx provider response.
func IsClientError(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode >= 400 && apiError.StatusCode < 500
}

func parseAPIError(service string, statusCode int, body []byte) *APIError {
	return &APIError{
		Service:    service,
		StatusCode: statusCode,
		Message:    extractMessage(body),
		Body:       body,
	}
}

// extractMessage understands the error envelopes used by the providers we
// talk to: {"message"}, {"error": "..."}, {"error": {"message"}} and
// {"errors": {field: [..]}}.
func extractMessage(body []byte) string {
	var envelope struct {
		Message string          `json:"message"`
		Msg     string          `json:"msg"`
		Error   json.RawMessage `json:"error"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return strings.TrimSpace(string(body))
	}

	var parts []string
	switch {
	case envelope.Message != "":
		parts = append(parts, envelope.Message)
	case envelope.Msg != "":
		parts = append(parts, envelope.Msg)
	}

	if len(envelope.Error) > 0 {
		var text string
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &text) == nil && text != "" {
			parts = append(parts, text)
		} else if json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
			parts = append(parts, nested.Message)
		}
	}

	if len(envelope.Errors) > 0 {
		var fields map[string][]string
		if json.Unmarshal(envelope.Errors, &fields) == nil {
			for field, messages := range fields {
				parts = append(parts, field+": "+strings.Join(messages, ", "))
			}
		}
	}

	return strings.Join(parts, "; ")
}
