package store

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New("room-1", 10*time.Second, log)
}

func confirmed(id, sender, body string, at time.Time) models.Message {
	return models.Message{
		ID:            id,
		SenderID:      sender,
		Body:          body,
		CreatedAt:     at,
		DeliveryState: models.DeliveryConfirmed,
	}
}

func TestIngestHistoryRequiresEmptyStore(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()

	require.NoError(t, s.IngestHistory([]models.Message{confirmed("m1", "u2", "hi", base)}))
	require.ErrorIs(t, s.IngestHistory([]models.Message{confirmed("m2", "u2", "again", base)}), ErrNotEmpty)
	assert.Equal(t, 1, s.Len())
}

func TestIngestRemoteDedupByServerID(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()
	msg := confirmed("m1", "u2", "hello", base)

	require.True(t, s.IngestRemote(msg))
	for i := 0; i < 5; i++ {
		require.False(t, s.IngestRemote(msg))
	}
	assert.Equal(t, 1, s.Len())
}

func TestIngestRemoteDedupOfIDLessRedelivery(t *testing.T) {
	s := newTestStore(t)
	at := time.Now()
	frame := models.Message{SenderID: "u2", Body: "hello", CreatedAt: at}

	require.True(t, s.IngestRemote(frame))
	require.False(t, s.IngestRemote(frame))
	assert.Equal(t, 1, s.Len())
}

func TestOptimisticCollapseViaChannelEcho(t *testing.T) {
	s := newTestStore(t)

	sent := s.SendOptimistic("hi", "u1", models.RoleTraveler)
	require.Equal(t, models.DeliveryPending, sent.DeliveryState)

	echo := models.Message{SenderID: "u1", Body: "hi", CreatedAt: time.Now().Add(2 * time.Second)}
	require.False(t, s.IngestRemote(echo))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.DeliveryConfirmed, msgs[0].DeliveryState)
}

func TestOptimisticCollapseViaSendConfirmation(t *testing.T) {
	s := newTestStore(t)

	sent := s.SendOptimistic("hi", "u1", models.RoleTraveler)
	server := confirmed("srv-9", "u1", "hi", time.Now().Add(time.Second))
	require.NoError(t, s.ConfirmSend(sent.ID, server))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-9", msgs[0].ID)
	assert.Equal(t, models.DeliveryConfirmed, msgs[0].DeliveryState)
	assert.Equal(t, server.CreatedAt, msgs[0].CreatedAt)
}

func TestEchoBeforeConfirmationStillOneEntry(t *testing.T) {
	s := newTestStore(t)

	sent := s.SendOptimistic("hi", "u1", models.RoleTraveler)
	echo := models.Message{SenderID: "u1", Body: "hi", CreatedAt: time.Now()}
	require.False(t, s.IngestRemote(echo))

	server := confirmed("srv-1", "u1", "hi", time.Now())
	require.NoError(t, s.ConfirmSend(sent.ID, server))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-1", msgs[0].ID)
}

func TestEchoAfterConfirmationCollapses(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	sent := s.SendOptimistic("hi", "u1", models.RoleTraveler)
	require.NoError(t, s.ConfirmSend(sent.ID, confirmed("srv-1", "u1", "hi", now)))

	// The channel echo carries no server id and lands after the POST reply.
	echo := models.Message{SenderID: "u1", Body: "hi", CreatedAt: now.Add(time.Second)}
	require.False(t, s.IngestRemote(echo))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-1", msgs[0].ID)
	assert.Equal(t, models.DeliveryConfirmed, msgs[0].DeliveryState)
}

func TestHistoryOverlapFrameCollapses(t *testing.T) {
	s := newTestStore(t)
	at := time.Now()

	require.NoError(t, s.IngestHistory([]models.Message{confirmed("srv-9", "u2", "hello", at)}))

	// A message already in the backlog redelivered as an id-less frame at
	// the fetch/open boundary.
	frame := models.Message{SenderID: "u2", Body: "hello", CreatedAt: at}
	require.False(t, s.IngestRemote(frame))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "srv-9", s.Messages()[0].ID)
}

func TestFailSendAfterEchoKeepsConfirmed(t *testing.T) {
	s := newTestStore(t)

	sent := s.SendOptimistic("hi", "u1", models.RoleTraveler)
	echo := models.Message{SenderID: "u1", Body: "hi", CreatedAt: time.Now()}
	require.False(t, s.IngestRemote(echo))

	// The POST response was lost after the server had already echoed.
	require.NoError(t, s.FailSend(sent.ID))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.DeliveryConfirmed, msgs[0].DeliveryState)

	_, err := s.RetrySend(sent.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEchoOutsideWindowAppends(t *testing.T) {
	s := newTestStore(t)

	s.SendOptimistic("hi", "u1", models.RoleTraveler)
	late := models.Message{SenderID: "u1", Body: "hi", CreatedAt: time.Now().Add(time.Minute)}
	require.True(t, s.IngestRemote(late))
	assert.Equal(t, 2, s.Len())
}

func TestEchoNeverMatchesFailedEntry(t *testing.T) {
	s := newTestStore(t)

	sent := s.SendOptimistic("hi", "u1", models.RoleTraveler)
	require.NoError(t, s.FailSend(sent.ID))

	echo := models.Message{SenderID: "u1", Body: "hi", CreatedAt: time.Now()}
	require.True(t, s.IngestRemote(echo))
	assert.Equal(t, 2, s.Len())
}

func TestOrderInvariant(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()

	require.NoError(t, s.IngestHistory([]models.Message{
		confirmed("m1", "u2", "first", base),
		confirmed("m2", "u2", "third", base.Add(2*time.Second)),
	}))
	// Arrives late with an earlier server timestamp.
	require.True(t, s.IngestRemote(confirmed("m3", "u2", "second", base.Add(time.Second))))

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Body)
	assert.Equal(t, "second", msgs[1].Body)
	assert.Equal(t, "third", msgs[2].Body)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
}

func TestOrderTiesKeepInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	at := time.Now()

	require.True(t, s.IngestRemote(confirmed("m1", "u2", "a", at)))
	require.True(t, s.IngestRemote(confirmed("m2", "u2", "b", at)))
	require.True(t, s.IngestRemote(confirmed("m3", "u2", "c", at)))

	msgs := s.Messages()
	assert.Equal(t, []string{"a", "b", "c"}, []string{msgs[0].Body, msgs[1].Body, msgs[2].Body})
}

func TestFailedSendRetainedAndRetryable(t *testing.T) {
	s := newTestStore(t)

	sent := s.SendOptimistic("hi", "u1", models.RoleTraveler)
	require.NoError(t, s.FailSend(sent.ID))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.DeliveryFailed, msgs[0].DeliveryState)

	retried, err := s.RetrySend(sent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryPending, retried.DeliveryState)
	assert.Equal(t, "hi", retried.Body)
}

func TestDiscardRemovesOnlyFailedEntries(t *testing.T) {
	s := newTestStore(t)

	pending := s.SendOptimistic("keep", "u1", models.RoleTraveler)
	require.ErrorIs(t, s.DiscardSend(pending.ID), ErrNotFound)

	failed := s.SendOptimistic("drop", "u1", models.RoleTraveler)
	require.NoError(t, s.FailSend(failed.ID))
	require.NoError(t, s.DiscardSend(failed.ID))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "keep", msgs[0].Body)
}

func TestMarkAllSeenBySkipsUnconfirmed(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()

	require.NoError(t, s.IngestHistory([]models.Message{confirmed("m1", "u2", "hi", base)}))
	s.SendOptimistic("pending", "u1", models.RoleTraveler)

	s.MarkAllSeenBy("u1")

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].SeenByParticipant("u1"))
	assert.False(t, msgs[1].SeenByParticipant("u1"))
}
