package receipts

import (
	"context"
	"fmt"
	"log/slog"

	"chat-sync/internal/obs"
	"chat-sync/internal/registry"
)

// SeenAcker is the slice of the backend contract the tracker needs.
type SeenAcker interface {
	MarkSeen(ctx context.Context, bookingID string) error
}

// MessageLog is the slice of the active store the tracker patches.
type MessageLog interface {
	MarkAllSeenBy(participantID string)
}

// Tracker reconciles server-confirmed seen state back into unread counters.
//
// Over-calling is safe because the acknowledgement is idempotent;
// under-calling leaves stale unread counts, so the engine fires it on every
// room activation and on every burst of inbound messages.
type Tracker struct {
	api      SeenAcker
	registry *registry.Registry
	actorID  string
	log      *slog.Logger
}

// New constructs a Tracker.
func New(api SeenAcker, reg *registry.Registry, actorID string, log *slog.Logger) *Tracker {
	return &Tracker{api: api, registry: reg, actorID: actorID, log: log}
}

// Ack issues the seen-acknowledgement call for the room. On failure the
// unread count stays untouched; the next activation retries.
func (t *Tracker) Ack(ctx context.Context, roomID, bookingID string) error {
	if err := t.api.MarkSeen(ctx, bookingID); err != nil {
		t.log.Warn("seen acknowledgement failed, unread count left as-is",
			"room_id", roomID, "error", err)
		obs.IncSeenAck("error")
		return fmt.Errorf("mark seen for room %s: %w", roomID, err)
	}
	obs.IncSeenAck("ok")
	return nil
}

// Commit applies a server-confirmed acknowledgement: the store's seen sets
// are patched and the room's unread count is zeroed. msgs may be nil when the
// room's log was already discarded; the zeroing still stands.
func (t *Tracker) Commit(roomID string, msgs MessageLog) {
	if msgs != nil {
		msgs.MarkAllSeenBy(t.actorID)
	}
	t.registry.MarkRoomRead(roomID)
}

// MarkSeen acknowledges and commits in one call.
func (t *Tracker) MarkSeen(ctx context.Context, roomID, bookingID string, msgs MessageLog) error {
	if err := t.Ack(ctx, roomID, bookingID); err != nil {
		return err
	}
	t.Commit(roomID, msgs)
	return nil
}
