package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthorized matches an *Error carrying HTTP 401.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a non-2xx response from the API.
type Error struct {
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Op, e.Status, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// NetworkError means no response was received at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: could not reach chat API", e.Op)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// UserMessage returns the text to show for err.
func UserMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return "Could not reach the chat server, please try again"
	}
	return err.Error()
}

var fallbackMessages = map[string]string{
	opAuthenticate:  "Login failed",
	opCreateAccount: "Sign up failed",
	opCurrentUser:   "Failed to load current user",
	opListChats:     "Failed to load chats",
	opCreateChat:    "Failed to create chat",
	opListMessages:  "Failed to load messages",
	opSendMessage:   "Failed to send message",
	opListInvites:   "Failed to load invites",
	opSendInvite:    "Failed to send invite",
	opAcceptInvite:  "Failed to accept invite",
	opDeclineInvite: "Failed to decline invite",
}

func fallbackMessage(op string) string {
	if msg, ok := fallbackMessages[op]; ok {
		return msg
	}
	return "Request failed"
}

// extractMessage pulls a human readable message out of an error body.
// FastAPI style {"detail": "..."} and {"detail": [{"msg": "..."}]} are
// recognised along with {"error"} and {"message"}.
func extractMessage(op string, body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := detailMessage(payload.Detail); msg != "" {
			return msg
		}
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}

	text := strings.TrimSpace(string(body))
	if text == "" || strings.HasPrefix(text, "{") || strings.HasPrefix(text, "<") {
		return fallbackMessage(op)
	}
	return text
}

func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
