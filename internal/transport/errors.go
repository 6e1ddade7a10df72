package transport

import (
	"encoding/json"
	"fmt"
	"strings"
)

const maxErrorBodyInMessage = 256

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s returned status %d", e.Method, e.Path, e.StatusCode)
	body := strings.TrimSpace(string(e.Body))
	if body == "" {
		return msg
	}
	if len(body) > maxErrorBodyInMessage {
		body = body[:maxErrorBodyInMessage] + "..."
	}
	return msg + ": " + body
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// DecodeBody unmarshals the response body into v.
func (e *StatusError) DecodeBody(v any) error {
	if len(e.Body) == 0 {
		return fmt.Errorf("empty response body for status %d", e.StatusCode)
	}
	return json.Unmarshal(e.Body, v)
}
