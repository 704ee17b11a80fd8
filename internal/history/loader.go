package history

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"

	"chat-sync/internal/models"
)

// BacklogLister is the slice of the backend contract the loader needs.
type BacklogLister interface {
	ListMessages(ctx context.Context, bookingID string) ([]models.Message, error)
}

// Loader fetches the ordered message backlog for a room.
//
// It is stateless and idempotent: a pure function of remote state with no
// caching beyond the active room's store.
type Loader struct {
	api BacklogLister
	log *slog.Logger
}

// New constructs a Loader.
func New(api BacklogLister, log *slog.Logger) *Loader {
	return &Loader{api: api, log: log}
}

// LoadHistory returns the room's backlog, oldest first. A failed load wraps
// api.ErrHistoryUnavailable; callers show an empty state with a retry
// affordance, never "room has no messages".
func (l *Loader) LoadHistory(ctx context.Context, bookingID string) ([]models.Message, error) {
	ctx, span := otel.Tracer("chat-sync/history").Start(ctx, "history.load")
	defer span.End()

	msgs, err := l.api.ListMessages(ctx, bookingID)
	if err != nil {
		l.log.Warn("history load failed", "booking_id", bookingID, "error", err)
		return nil, err
	}

	// The contract is oldest-first; re-sorting keeps the seeding order stable
	// even if the backend pages out of order.
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}
