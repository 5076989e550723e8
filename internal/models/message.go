package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// MessageID accepts both numeric and string ids from the API.
type MessageID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = MessageID(n.String())
	return nil
}

// Message is a single chat message. Pending marks a locally synthesized
// message that the API has not confirmed yet.
type Message struct {
	ID             MessageID `json:"id"`
	ChatID         int       `json:"chat_id"`
	AuthorID       int       `json:"account_id,omitempty"`
	AuthorUsername string    `json:"author_username,omitempty"`
	Text           string    `json:"text"`
	CreatedAt      Timestamp `json:"created_at"`
	Pending        bool      `json:"pending,omitempty"`
}

// Author returns the display name, falling back to the author id.
func (m Message) Author() string {
	if m.AuthorUsername != "" {
		return m.AuthorUsername
	}
	return strconv.Itoa(m.AuthorID)
}
