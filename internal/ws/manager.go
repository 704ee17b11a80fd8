package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-sync/internal/models"
	"chat-sync/internal/obs"
	"chat-sync/internal/telemetry"
)

// FrameHandler receives decoded inbound frames. The epoch identifies the
// channel generation that produced the frame; consumers drop stale epochs.
type FrameHandler func(epoch int, roomID string, frame models.Frame)

// StateHandler observes connection state transitions.
type StateHandler func(roomID string, state models.ConnectionState)

// Config tunes the channel lifecycle.
type Config struct {
	BaseURL string
	Token   string

	DialTimeout      time.Duration
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	StableResetAfter time.Duration
}

// Snapshot is a point-in-time view of the channel for debug surfaces.
type Snapshot struct {
	State     models.ConnectionState `json:"state"`
	RoomID    string                 `json:"room_id,omitempty"`
	BookingID string                 `json:"booking_id,omitempty"`
	ConnID    string                 `json:"conn_id,omitempty"`
	Epoch     int                    `json:"epoch"`
	Queued    int                    `json:"queued_outbound"`
}

// Manager owns the lifecycle of exactly one push channel, scoped to the
// currently active room.
//
// States: closed -> connecting -> open -> reconnecting -> ... -> closed.
// Reconnection uses bounded exponential backoff with no retry-count ceiling;
// only deactivating the room ends it. Close is unconditional and synchronous:
// the epoch is invalidated before it returns, so a frame from a torn-down
// channel can never reach a consumer.
type Manager struct {
	cfg     Config
	log     *slog.Logger
	emitter *telemetry.Emitter
	dialer  *websocket.Dialer

	onFrame FrameHandler
	onState StateHandler

	mu        sync.Mutex
	state     models.ConnectionState
	roomID    string
	bookingID string
	connID    string
	epoch     int
	cancel    context.CancelFunc
	conn      *websocket.Conn
	outbound  []models.Frame
}

// NewManager constructs a Manager in the closed state.
func NewManager(cfg Config, log *slog.Logger, emitter *telemetry.Emitter) *Manager {
	return &Manager{
		cfg:     cfg,
		log:     log,
		emitter: emitter,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		state:   models.StateClosed,
	}
}

// SetFrameHandler registers the inbound frame consumer.
func (m *Manager) SetFrameHandler(h FrameHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFrame = h
}

// SetStateHandler registers the state transition observer.
func (m *Manager) SetStateHandler(h StateHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onState = h
}

// Open starts the channel for a room and returns the channel epoch. Any
// previously open channel is torn down first, so at most one channel exists
// across the whole registry.
func (m *Manager) Open(roomID, bookingID string) int {
	m.mu.Lock()
	m.closeLocked("superseded")
	m.epoch++
	epoch := m.epoch
	m.roomID = roomID
	m.bookingID = bookingID
	m.connID = uuid.NewString()
	m.setStateLocked(models.StateConnecting)
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(ctx, epoch, roomID, bookingID)
	return epoch
}

// Close tears the channel down. It never retries and returns with the state
// already closed; in-flight frames for the old epoch are discarded.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked("deactivated")
}

// Send transmits a frame on the channel, queueing it while the channel is
// connecting or reconnecting. Queued frames flush on the next open.
func (m *Manager) Send(frame models.Frame) {
	m.mu.Lock()
	if m.state != models.StateOpen || m.conn == nil {
		if m.state != models.StateClosed {
			m.outbound = append(m.outbound, frame)
		}
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.mu.Unlock()

	if err := conn.WriteJSON(frame); err != nil {
		m.log.Warn("channel write failed", "error", err)
	}
}

// State returns the current connection state.
func (m *Manager) State() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentSnapshot reports the channel state for debug endpoints.
func (m *Manager) CurrentSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:     m.state,
		RoomID:    m.roomID,
		BookingID: m.bookingID,
		ConnID:    m.connID,
		Epoch:     m.epoch,
		Queued:    len(m.outbound),
	}
}

func (m *Manager) run(ctx context.Context, epoch int, roomID, bookingID string) {
	backoff := m.cfg.BackoffInitial
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}
		if attempt > 0 {
			if !m.transition(epoch, models.StateReconnecting) {
				return
			}
			obs.IncReconnect()
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > m.cfg.BackoffMax {
				backoff = m.cfg.BackoffMax
			}
		}
		attempt++

		conn, err := m.dial(ctx, bookingID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Warn("channel dial failed", "room_id", roomID, "error", err)
			obs.IncChannelEvent("dial_error")
			continue
		}

		if !m.attach(epoch, conn) {
			_ = conn.Close()
			return
		}
		openedAt := time.Now()
		obs.SetChannelActive(true)
		obs.IncChannelEvent("connect")
		m.emit(ctx, "connect", roomID, bookingID, 0, "")

		reason := m.readLoop(ctx, epoch, roomID, conn)

		obs.SetChannelActive(false)
		obs.IncChannelEvent("disconnect")
		m.emit(ctx, "disconnect", roomID, bookingID, time.Since(openedAt).Milliseconds(), reason)

		// A connection that held for a while earns a fresh backoff.
		if time.Since(openedAt) > m.cfg.StableResetAfter {
			backoff = m.cfg.BackoffInitial
		}
	}
}

func (m *Manager) dial(ctx context.Context, bookingID string) (*websocket.Conn, error) {
	ctx, span := otel.Tracer("chat-sync/ws").Start(ctx, "ws.handshake")
	defer span.End()

	endpoint := m.cfg.BaseURL + "/ws/bookings/" + url.PathEscape(bookingID)
	header := http.Header{}
	if m.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+m.cfg.Token)
	}

	conn, resp, err := m.dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// attach publishes the live connection and flushes the outbound queue.
func (m *Manager) attach(epoch int, conn *websocket.Conn) bool {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return false
	}
	m.conn = conn
	queued := m.outbound
	m.outbound = nil
	m.setStateLocked(models.StateOpen)
	m.mu.Unlock()

	for _, frame := range queued {
		if err := conn.WriteJSON(frame); err != nil {
			m.log.Warn("flush of queued frame failed", "error", err)
			break
		}
	}
	return true
}

func (m *Manager) readLoop(ctx context.Context, epoch int, roomID string, conn *websocket.Conn) string {
	defer func() {
		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "closed"
			}
			return err.Error()
		}

		var frame models.Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
			// Malformed frames are dropped with a diagnostic; they never
			// crash the state machine or corrupt the store.
			m.log.Warn("dropping malformed frame", "room_id", roomID, "error", err)
			obs.IncFrameDropped()
			obs.IncChannelEvent("malformed_frame")
			continue
		}
		m.deliver(epoch, roomID, frame)
	}
}

func (m *Manager) deliver(epoch int, roomID string, frame models.Frame) {
	m.mu.Lock()
	stale := epoch != m.epoch || m.state == models.StateClosed
	handler := m.onFrame
	m.mu.Unlock()

	if stale || handler == nil {
		obs.IncFrameDropped()
		return
	}
	handler(epoch, roomID, frame)
}

// transition moves to the target state if the epoch is still current.
func (m *Manager) transition(epoch int, state models.ConnectionState) bool {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return false
	}
	m.setStateLocked(state)
	m.mu.Unlock()
	return true
}

func (m *Manager) setStateLocked(state models.ConnectionState) {
	if m.state == state {
		return
	}
	m.state = state
	if m.onState != nil {
		go m.onState(m.roomID, state)
	}
}

func (m *Manager) closeLocked(reason string) {
	if m.state == models.StateClosed && m.cancel == nil {
		return
	}
	m.epoch++
	m.setStateLocked(models.StateClosed)
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		// Fire-and-forget close; the epoch bump already fences frames.
		_ = m.conn.Close()
		m.conn = nil
	}
	m.outbound = nil
	obs.SetChannelActive(false)
	obs.IncChannelEvent("close")
	m.log.Info("channel closed", "room_id", m.roomID, "reason", reason)
	m.roomID = ""
	m.bookingID = ""
}

func (m *Manager) emit(_ context.Context, event, roomID, bookingID string, durationMS int64, reason string) {
	if m.emitter == nil {
		return
	}
	m.mu.Lock()
	connID := m.connID
	m.mu.Unlock()
	// The run context dies with the room; telemetry outlives it.
	m.emitter.EmitChannel(context.Background(), telemetry.ChannelEvent{
		Event:      event,
		RoomID:     roomID,
		BookingID:  bookingID,
		ConnID:     connID,
		DurationMS: durationMS,
		Reason:     reason,
	})
}
