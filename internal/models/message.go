package models

import "time"

// DeliveryState reflects how far a message has made it to the server.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

// Message represents one chat utterance.
//
// ID is the server id once confirmed. Optimistically sent messages carry a
// locally generated provisional id until the server echo replaces it.
type Message struct {
	ID            string        `json:"message_id"`
	RoomID        string        `json:"room_id"`
	SenderID      string        `json:"sender_id"`
	SenderRole    SenderRole    `json:"sender_role,omitempty"`
	Body          string        `json:"body"`
	CreatedAt     time.Time     `json:"created_at"`
	DeliveryState DeliveryState `json:"delivery_state"`
	SeenBy        []string      `json:"seen_by,omitempty"`

	// Provisional is set while ID is a locally generated placeholder.
	Provisional bool `json:"-"`
}

// SeenByParticipant reports whether the participant is in the seen set.
func (m Message) SeenByParticipant(participantID string) bool {
	for _, id := range m.SeenBy {
		if id == participantID {
			return true
		}
	}
	return false
}
