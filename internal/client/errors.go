package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 64 << 10

type APIError struct {
	StatusCode int
	Message    string
	// Reason is the human-readable detail the backend supplied, if any.
	Reason string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Detail() string {
	if e == nil {
		return ""
	}
	return e.Reason
}

func asAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	apiErr := asAPIError(err)
	return apiErr != nil && apiErr.StatusCode == http.StatusNotFound
}

func IsUnauthorized(err error) bool {
	apiErr := asAPIError(err)
	return apiErr != nil && apiErr.StatusCode == http.StatusUnauthorized
}

func decodeAPIError(resp *http.Response) error {
	type errorPayload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload errorPayload
	_ = json.Unmarshal(data, &payload)

	reason := detailText(payload.Detail)
	if reason == "" {
		reason = strings.TrimSpace(payload.Error)
	}
	if reason != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: reason, Reason: reason}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
}

// detailText flattens FastAPI's detail field: a plain string for
// HTTPException, or a list of validation items with a msg each.
func detailText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var items []struct {
		Msg string `json:"msg"`
		Loc []any  `json:"loc"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			msg := strings.TrimSpace(item.Msg)
			if msg == "" {
				continue
			}
			if field := locField(item.Loc); field != "" {
				msg = field + ": " + msg
			}
			msgs = append(msgs, msg)
		}
		return strings.Join(msgs, "; ")
	}
	return strings.TrimSpace(string(raw))
}

func locField(loc []any) string {
	if len(loc) == 0 {
		return ""
	}
	if last, ok := loc[len(loc)-1].(string); ok && last != "body" && last != "query" {
		return last
	}
	return ""
}
