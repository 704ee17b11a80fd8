package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/models"
)

func TestListRoomsMostRecentFirst(t *testing.T) {
	r := New()
	base := time.Now()

	r.Upsert(models.Room{ID: "r1", BookingID: "b1", LastMessageAt: base.Add(-time.Hour)})
	r.Upsert(models.Room{ID: "r2", BookingID: "b2", LastMessageAt: base})
	r.Upsert(models.Room{ID: "r3", BookingID: "b3", LastMessageAt: base.Add(-time.Minute)})

	rooms := r.ListRooms()
	require.Len(t, rooms, 3)
	assert.Equal(t, "r2", rooms[0].ID)
	assert.Equal(t, "r3", rooms[1].ID)
	assert.Equal(t, "r1", rooms[2].ID)
}

func TestApplyInboundPreviewIncrementsUnreadOnlyForInactiveCounterparty(t *testing.T) {
	r := New()
	r.Upsert(models.Room{ID: "r1", BookingID: "b1"})
	at := time.Now()

	r.ApplyInboundPreview("r1", "from counterparty, room closed", at, false, false)
	r.ApplyInboundPreview("r1", "from counterparty, room open", at, false, true)
	r.ApplyInboundPreview("r1", "own message", at, true, false)

	room, ok := r.Get("r1")
	require.True(t, ok)
	assert.Equal(t, 1, room.UnreadCount)
	assert.Equal(t, "own message", room.LastMessagePreview)
	assert.Equal(t, at, room.LastMessageAt)
}

func TestApplyInboundPreviewUnknownRoomIsNoop(t *testing.T) {
	r := New()
	r.ApplyInboundPreview("ghost", "hi", time.Now(), false, false)
	assert.Equal(t, 0, r.TotalUnread())
}

func TestMarkRoomReadZeroesAndBadgeRecomputes(t *testing.T) {
	r := New()
	r.Upsert(models.Room{ID: "r1", BookingID: "b1", UnreadCount: 3})
	r.Upsert(models.Room{ID: "r2", BookingID: "b2", UnreadCount: 2})

	require.Equal(t, 5, r.TotalUnread())

	r.MarkRoomRead("r1")

	room, ok := r.Get("r1")
	require.True(t, ok)
	assert.Equal(t, 0, room.UnreadCount)
	assert.Equal(t, 2, r.TotalUnread())
}

func TestUpsertRefreshesDirectoryFields(t *testing.T) {
	r := New()
	base := time.Now()

	r.Upsert(models.Room{ID: "r1", BookingID: "b1", CounterpartyName: "Ana", LastMessagePreview: "old", LastMessageAt: base})
	r.Upsert(models.Room{ID: "r1", BookingID: "b1", CounterpartyName: "Ana M.", LastMessagePreview: "new", LastMessageAt: base.Add(time.Minute), UnreadCount: 4})

	room, ok := r.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "Ana M.", room.CounterpartyName)
	assert.Equal(t, "new", room.LastMessagePreview)
	assert.Equal(t, 4, room.UnreadCount)
}

func TestUpsertDoesNotRegressPreview(t *testing.T) {
	r := New()
	base := time.Now()

	r.Upsert(models.Room{ID: "r1", BookingID: "b1", LastMessagePreview: "fresh", LastMessageAt: base})
	// A stale directory response must not roll the preview back.
	r.Upsert(models.Room{ID: "r1", BookingID: "b1", LastMessagePreview: "stale", LastMessageAt: base.Add(-time.Hour)})

	room, ok := r.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "fresh", room.LastMessagePreview)
}

func TestGetByBooking(t *testing.T) {
	r := New()
	r.Upsert(models.Room{ID: "r1", BookingID: "b1"})

	room, ok := r.GetByBooking("b1")
	require.True(t, ok)
	assert.Equal(t, "r1", room.ID)

	_, ok = r.GetByBooking("b2")
	assert.False(t, ok)
}
