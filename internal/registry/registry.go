package registry

import (
	"sort"
	"sync"
	"time"

	"chat-sync/internal/models"
)

// Registry tracks the conversation rooms visible to the current actor.
//
// It is the only writer of unread counts and last-message previews. Rooms are
// never deleted during a session; they are a stable projection of bookings.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*models.Room
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{rooms: make(map[string]*models.Room)}
}

// Upsert adds a room or refreshes its directory-sourced fields.
func (r *Registry) Upsert(room models.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rooms[room.ID]
	if !ok {
		copied := room
		r.rooms[room.ID] = &copied
		return
	}
	existing.BookingID = room.BookingID
	existing.CounterpartyName = room.CounterpartyName
	existing.CounterpartyAvatar = room.CounterpartyAvatar
	if room.LastMessageAt.After(existing.LastMessageAt) {
		existing.LastMessagePreview = room.LastMessagePreview
		existing.LastMessageAt = room.LastMessageAt
	}
	existing.UnreadCount = room.UnreadCount
}

// Get returns a room by id.
func (r *Registry) Get(roomID string) (models.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return models.Room{}, false
	}
	return *room, true
}

// GetByBooking returns the room attached to a booking.
func (r *Registry) GetByBooking(bookingID string) (models.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, room := range r.rooms {
		if room.BookingID == bookingID {
			return *room, true
		}
	}
	return models.Room{}, false
}

// ListRooms returns all rooms, most recently active first.
func (r *Registry) ListRooms() []models.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, *room)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

// MarkRoomRead zeroes the room's unread count. Callers only invoke this after
// the seen-acknowledgement succeeded, so the count never drops on an
// unconfirmed ack.
func (r *Registry) MarkRoomRead(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		room.UnreadCount = 0
	}
}

// ApplyInboundPreview updates the room's preview fields for an inbound
// message and bumps the unread count when the message came from the
// counterparty while the room was not active.
func (r *Registry) ApplyInboundPreview(roomID, preview string, at time.Time, fromLocalActor, roomActive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	room.LastMessagePreview = preview
	room.LastMessageAt = at
	if !fromLocalActor && !roomActive {
		room.UnreadCount++
	}
}

// TotalUnread recomputes the aggregate navigation badge by summation. The sum
// is always re-derived rather than incrementally trusted, so partial
// seen-acknowledgement failures cannot make it drift.
func (r *Registry) TotalUnread() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, room := range r.rooms {
		total += room.UnreadCount
	}
	return total
}
