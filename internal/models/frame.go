package models

import "time"

// Frame types carried on the push channel.
const (
	FrameMessage = "message"
	FrameTyping  = "typing"
)

// Frame is one event delivered on a room's push channel.
//
// The channel is a delivery mechanism for new events only; it never carries
// backlog, and message frames never carry a server id.
type Frame struct {
	Type      string    `json:"type"`
	Body      string    `json:"body,omitempty"`
	SenderID  string    `json:"sender_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// AsMessage converts a message frame into a confirmed Message for the room.
func (f Frame) AsMessage(roomID string) Message {
	return Message{
		RoomID:        roomID,
		SenderID:      f.SenderID,
		Body:          f.Body,
		CreatedAt:     f.CreatedAt,
		DeliveryState: DeliveryConfirmed,
	}
}
