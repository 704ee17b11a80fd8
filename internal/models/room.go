package models

import "time"

// SenderRole identifies which dashboard variant a participant belongs to.
type SenderRole string

const (
	RoleTraveler   SenderRole = "traveler"
	RoleProvider   SenderRole = "provider"
	RoleInstructor SenderRole = "instructor"
)

// Room is the conversation scoped to one booking.
type Room struct {
	ID                 string    `json:"room_id"`
	BookingID          string    `json:"booking_id"`
	CounterpartyName   string    `json:"counterparty_name"`
	CounterpartyAvatar string    `json:"counterparty_avatar_ref,omitempty"`
	LastMessagePreview string    `json:"last_message_preview,omitempty"`
	LastMessageAt      time.Time `json:"last_message_at,omitempty"`
	UnreadCount        int       `json:"unread_count"`
}

// ConnectionState tracks the push channel lifecycle for the active room.
type ConnectionState string

const (
	StateClosed       ConnectionState = "closed"
	StateConnecting   ConnectionState = "connecting"
	StateOpen         ConnectionState = "open"
	StateReconnecting ConnectionState = "reconnecting"
)
