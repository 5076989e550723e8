package models

// Chat is a named conversation the current user belongs to.
type Chat struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedBy int       `json:"created_by,omitempty"`
	CreatedAt Timestamp `json:"created_at"`
}
