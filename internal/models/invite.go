package models

// Invite statuses.
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusDeclined = "declined"
)

// Invite asks ReceiverID to join ChatID.
type Invite struct {
	ID         int       `json:"id"`
	SenderID   int       `json:"sender_id"`
	ReceiverID int       `json:"receiver_id"`
	ChatID     int       `json:"chat_id"`
	Text       string    `json:"text"`
	Status     string    `json:"status"`
	CreatedAt  Timestamp `json:"created_at"`
}

// IsPending reports whether the invite can still be accepted or declined.
func (i Invite) IsPending() bool {
	return i.Status == InviteStatusPending
}
