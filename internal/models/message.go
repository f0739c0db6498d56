package models

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is a single message within an exchange's history.
// Turns are immutable once created; only the first user turn of an
// exchange may carry an image reference.
type ConversationTurn struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}
