package domain

import (
	"time"
)

// Message is an inbound SMS to be extracted.
type Message struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Sender is the SMS header, e.g. "VM-HDFCBK".
	Sender string `json:"sender,omitempty"`
	Text   string `json:"text"`

	// ReceivedAt is the reference instant for relative dates.
	ReceivedAt time.Time `json:"receivedAt"`
	CreatedAt  time.Time `json:"createdAt"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// MessageRequest is the API request payload for extraction.
type MessageRequest struct {
	Sender     string                 `json:"sender,omitempty"`
	Text       string                 `json:"text"`
	ReceivedAt *time.Time             `json:"receivedAt,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ToMessage converts a request to a Message. The receive time keeps the
// caller's offset; a missing one means now in loc.
func (r *MessageRequest) ToMessage(tenantID string, loc *time.Location) *Message {
	now := time.Now()
	received := now.In(loc)
	if r.ReceivedAt != nil && !r.ReceivedAt.IsZero() {
		received = *r.ReceivedAt
	}
	return &Message{
		TenantID:   tenantID,
		Sender:     r.Sender,
		Text:       r.Text,
		ReceivedAt: received,
		CreatedAt:  now.UTC(),
		Metadata:   r.Metadata,
	}
}
