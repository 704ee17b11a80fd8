package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"chat-sync/internal/api"
	"chat-sync/internal/config"
	"chat-sync/internal/history"
	"chat-sync/internal/models"
	"chat-sync/internal/obs"
	"chat-sync/internal/receipts"
	"chat-sync/internal/registry"
	"chat-sync/internal/store"
	"chat-sync/internal/ws"
)

// ErrNoActiveRoom is returned by operations that need an activated room.
var ErrNoActiveRoom = errors.New("no active room")

// Channels is the push channel lifecycle the engine drives.
type Channels interface {
	Open(roomID, bookingID string) int
	Close()
	Send(frame models.Frame)
	State() models.ConnectionState
	SetFrameHandler(h ws.FrameHandler)
	CurrentSnapshot() ws.Snapshot
}

// TypingHandler observes best-effort typing signals. They sit outside the
// consistency guarantees and may be dropped or stale.
type TypingHandler func(roomID, senderID string)

// Engine is the conversation synchronization core.
//
// All room and store mutations run on one task loop, so there is exactly one
// logical writer sequence: UI-driven calls and channel callbacks are
// serialized onto the same queue. Network calls that may outlive a task
// (sends, seen-acks) run in goroutines and post completion tasks back.
type Engine struct {
	cfg      config.Config
	api      api.Client
	log      *slog.Logger
	registry *registry.Registry
	loader   *history.Loader
	receipts *receipts.Tracker
	channels Channels

	tasks    chan func()
	quit     chan struct{}
	stopOnce sync.Once

	onTyping TypingHandler

	// Loop-owned state. Only tasks touch these.
	activeRoomID    string
	activeBookingID string
	activeEpoch     int
	store           *store.Store
}

// New wires an Engine. Call Start before using it.
func New(cfg config.Config, apiClient api.Client, reg *registry.Registry, loader *history.Loader, tracker *receipts.Tracker, channels Channels, log *slog.Logger) *Engine {
	e := &Engine{
		cfg:         cfg,
		api:         apiClient,
		log:         log,
		registry:    reg,
		loader:      loader,
		receipts:    tracker,
		channels:    channels,
		tasks:       make(chan func(), 256),
		quit:        make(chan struct{}),
		activeEpoch: -1,
	}
	channels.SetFrameHandler(e.handleFrame)
	return e
}

// SetTypingHandler registers the ephemeral typing callback. Set before Start.
func (e *Engine) SetTypingHandler(h TypingHandler) {
	e.onTyping = h
}

// Start launches the task loop.
func (e *Engine) Start() {
	go e.loop()
}

// Stop ends the task loop and tears down any open channel.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.channels.Close()
		close(e.quit)
	})
}

func (e *Engine) loop() {
	for {
		select {
		case fn := <-e.tasks:
			fn()
		case <-e.quit:
			return
		}
	}
}

// do runs fn on the task loop and waits for it.
func (e *Engine) do(fn func()) {
	done := make(chan struct{})
	select {
	case e.tasks <- func() { fn(); close(done) }:
	case <-e.quit:
		return
	}
	select {
	case <-done:
	case <-e.quit:
	}
}

// enqueue posts fn to the task loop without waiting.
func (e *Engine) enqueue(fn func()) {
	select {
	case e.tasks <- fn:
	case <-e.quit:
	}
}

// RefreshDirectory reloads the sidebar room list into the registry.
func (e *Engine) RefreshDirectory(ctx context.Context) error {
	rooms, err := e.api.ListDirectory(ctx, e.cfg.ActorRole)
	if err != nil {
		return err
	}
	for _, room := range rooms {
		e.registry.Upsert(room)
	}
	return nil
}

// ActivateRoom makes the booking's room active: history seeds a fresh store,
// then the push channel opens, then the backlog is acknowledged as seen.
// A previously active room is torn down first; its in-memory log is
// discarded, not retained.
func (e *Engine) ActivateRoom(ctx context.Context, bookingID string) error {
	var err error
	e.do(func() { err = e.activate(ctx, bookingID) })
	return err
}

func (e *Engine) activate(ctx context.Context, bookingID string) error {
	e.channels.Close()
	e.activeRoomID = ""
	e.activeBookingID = ""
	e.activeEpoch = -1
	e.store = nil

	room, ok := e.registry.GetByBooking(bookingID)
	if !ok {
		fetched, err := e.api.GetRoom(ctx, bookingID)
		if err != nil {
			return err
		}
		e.registry.Upsert(fetched)
		room = fetched
	}

	// History must be seeded before the channel opens; no inbound push is
	// ever processed against an unseeded store.
	msgs, err := e.loader.LoadHistory(ctx, bookingID)
	if err != nil {
		return err
	}

	st := store.New(room.ID, e.cfg.EchoMatchWindow, e.log)
	if err := st.IngestHistory(msgs); err != nil {
		return err
	}

	e.activeRoomID = room.ID
	e.activeBookingID = bookingID
	e.store = st
	e.activeEpoch = e.channels.Open(room.ID, bookingID)

	e.ackSeen(ctx)
	return nil
}

// DeactivateRoom closes the active room's channel and discards its log.
func (e *Engine) DeactivateRoom() {
	e.do(func() {
		e.channels.Close()
		e.activeRoomID = ""
		e.activeBookingID = ""
		e.activeEpoch = -1
		e.store = nil
	})
}

// Send appends an optimistic pending message and posts it asynchronously.
// The returned message carries the provisional id used by RetrySend and
// DiscardSend.
func (e *Engine) Send(ctx context.Context, body string) (models.Message, error) {
	if body == "" {
		return models.Message{}, errors.New("empty message body")
	}
	var (
		msg models.Message
		err error
	)
	e.do(func() {
		if e.store == nil {
			err = ErrNoActiveRoom
			return
		}
		msg = e.store.SendOptimistic(body, e.cfg.ActorID, e.cfg.ActorRole)
		e.registry.ApplyInboundPreview(e.activeRoomID, body, msg.CreatedAt, true, true)
		go e.postSend(ctx, e.activeBookingID, msg)
	})
	return msg, err
}

// RetrySend re-posts a failed optimistic message.
func (e *Engine) RetrySend(ctx context.Context, provisionalID string) error {
	var err error
	e.do(func() {
		if e.store == nil {
			err = ErrNoActiveRoom
			return
		}
		var msg models.Message
		msg, err = e.store.RetrySend(provisionalID)
		if err != nil {
			return
		}
		go e.postSend(ctx, e.activeBookingID, msg)
	})
	return err
}

// DiscardSend drops a failed optimistic message from the log.
func (e *Engine) DiscardSend(provisionalID string) error {
	var err error
	e.do(func() {
		if e.store == nil {
			err = ErrNoActiveRoom
			return
		}
		err = e.store.DiscardSend(provisionalID)
	})
	return err
}

func (e *Engine) postSend(ctx context.Context, bookingID string, msg models.Message) {
	server, sendErr := e.api.SendMessage(ctx, bookingID, msg.Body)
	e.enqueue(func() {
		if e.store == nil || e.activeBookingID != bookingID {
			// Room switched while the send was in flight; the old store is
			// gone and the server copy will come back via history next time.
			return
		}
		if sendErr != nil {
			e.log.Warn("send failed, message retained as failed",
				"room_id", e.activeRoomID, "error", sendErr)
			obs.IncSend("error")
			if err := e.store.FailSend(msg.ID); err != nil {
				e.log.Warn("failed send not found in store", "error", err)
			}
			return
		}
		obs.IncSend("ok")
		if err := e.store.ConfirmSend(msg.ID, server); err != nil {
			e.log.Warn("send confirmation merge failed", "error", err)
		}
	})
}

// handleFrame is the channel callback; it serializes frames onto the loop.
func (e *Engine) handleFrame(epoch int, roomID string, frame models.Frame) {
	e.enqueue(func() {
		if epoch != e.activeEpoch || e.store == nil || e.activeRoomID != roomID {
			// Stale channel generation; the room was deactivated.
			obs.IncFrameDropped()
			return
		}
		switch frame.Type {
		case models.FrameTyping:
			if e.onTyping != nil {
				e.onTyping(roomID, frame.SenderID)
			}
		case models.FrameMessage:
			e.store.IngestRemote(frame.AsMessage(roomID))
			fromLocal := frame.SenderID == e.cfg.ActorID
			e.registry.ApplyInboundPreview(roomID, frame.Body, frame.CreatedAt, fromLocal, true)
			if !fromLocal {
				e.ackSeen(context.Background())
			}
		default:
			e.log.Warn("dropping frame of unknown type", "type", frame.Type)
			obs.IncFrameDropped()
		}
	})
}

// ackSeen fires the seen-acknowledgement for the active room. The call runs
// off the loop and the commit comes back as a task, so a slow ack never
// stalls frame ingestion. Failures are logged by the tracker and retried on
// the next activation or inbound burst.
func (e *Engine) ackSeen(ctx context.Context) {
	if e.store == nil {
		return
	}
	roomID := e.activeRoomID
	bookingID := e.activeBookingID
	epoch := e.activeEpoch
	st := e.store
	go func() {
		if err := e.receipts.Ack(ctx, roomID, bookingID); err != nil {
			return
		}
		e.enqueue(func() {
			if e.activeEpoch != epoch || e.store != st {
				// The room switched while the ack was in flight. The server
				// confirmed it regardless, so the unread zeroing stands; the
				// discarded log has nothing left to patch.
				e.receipts.Commit(roomID, nil)
				return
			}
			e.receipts.Commit(roomID, st)
		})
	}()
}

// ActiveRoomID returns the id of the active room, or "".
func (e *Engine) ActiveRoomID() string {
	var id string
	e.do(func() { id = e.activeRoomID })
	return id
}

// ActiveMessages returns the rendered log of the active room.
func (e *Engine) ActiveMessages() []models.Message {
	var msgs []models.Message
	e.do(func() {
		if e.store != nil {
			msgs = e.store.Messages()
		}
	})
	return msgs
}

// Rooms returns the sidebar room list, most recently active first.
func (e *Engine) Rooms() []models.Room {
	return e.registry.ListRooms()
}

// TotalUnread returns the aggregate navigation badge.
func (e *Engine) TotalUnread() int {
	return e.registry.TotalUnread()
}

// ConnectionState reports the push channel state.
func (e *Engine) ConnectionState() models.ConnectionState {
	return e.channels.State()
}

// ChannelSnapshot reports channel details for debug surfaces.
func (e *Engine) ChannelSnapshot() ws.Snapshot {
	return e.channels.CurrentSnapshot()
}

// SendTyping emits a best-effort typing signal on the open channel.
func (e *Engine) SendTyping() {
	e.channels.Send(models.Frame{Type: models.FrameTyping, SenderID: e.cfg.ActorID})
}
