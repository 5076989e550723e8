package models

// Snapshot is a copy of the client state handed to the page.
type Snapshot struct {
	Session      Session   `json:"session"`
	LoggedIn     bool      `json:"logged_in"`
	Chats        []Chat    `json:"chats"`
	ActiveChatID *int      `json:"active_chat_id"`
	Messages     []Message `json:"messages"`
	Invites      []Invite  `json:"invites"`
	Error        string    `json:"error,omitempty"`
}

// Event types pushed to the page.
const (
	EventState    = "state"
	EventMessages = "messages"
	EventError    = "error"
)

// Event is broadcast over the websocket.
type Event struct {
	Type     string    `json:"type"`
	ChatID   int       `json:"chat_id,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	State    *Snapshot `json:"state,omitempty"`
	Error    string    `json:"error,omitempty"`
}
