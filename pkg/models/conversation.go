package models

import "time"

// UserType distinguishes the two sides of a marketplace conversation,
// plus operators reviewing vendor applications.
type UserType string

const (
	UserTypeVendor   UserType = "vendor"
	UserTypeCustomer UserType = "customer"
	UserTypeAdmin    UserType = "admin"
)

// Valid reports whether the user type is one of the known values.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeVendor, UserTypeCustomer, UserTypeAdmin:
		return true
	}
	return false
}

// User represents an authenticated marketplace user.
type User struct {
	ID        string    `json:"id"`
	Type      UserType  `json:"type"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Conversation is a logical message thread between a vendor and a customer,
// identified by an opaque id. Participants are user ids.
type Conversation struct {
	ID            string         `json:"id"`
	VendorID      string         `json:"vendor_id"`
	CustomerID    string         `json:"customer_id"`
	Subject       string         `json:"subject,omitempty"`
	LastMessageAt time.Time      `json:"last_message_at,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Participants returns the user ids taking part in the conversation.
func (c *Conversation) Participants() []string {
	out := make([]string, 0, 2)
	if c.VendorID != "" {
		out = append(out, c.VendorID)
	}
	if c.CustomerID != "" {
		out = append(out, c.CustomerID)
	}
	return out
}

// HasParticipant reports whether the given user id belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (userID == c.VendorID || userID == c.CustomerID)
}

// Message is a single entry in a conversation thread.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	SenderType     UserType       `json:"sender_type"`
	Content        string         `json:"content"`
	Flagged        bool           `json:"flagged,omitempty"`
	FlagReason     string         `json:"flag_reason,omitempty"`
	ReadAt         time.Time      `json:"read_at,omitzero"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
