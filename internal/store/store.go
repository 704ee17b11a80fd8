package store

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"chat-sync/internal/models"
	"chat-sync/internal/obs"
)

var (
	ErrNotEmpty = errors.New("store already seeded")
	ErrNotFound = errors.New("message not found")
)

// Store is the ordered, deduplicated message log for the active room.
//
// Every mutation goes through one of the three insertion paths: IngestHistory,
// IngestRemote, or SendOptimistic plus its confirm/fail continuations. A keyed
// index by logical identity backs the ordered log, so dedup does not depend on
// array position. The rendered order is re-derived after every mutation:
// ascending CreatedAt, ties broken by insertion order.
type Store struct {
	roomID      string
	matchWindow time.Duration
	log         *slog.Logger

	entries       []*entry
	byServerID    map[string]*entry
	byProvisional map[string]*entry
	nextSeq       int
}

type entry struct {
	msg models.Message
	seq int
}

// New creates an empty store for one room.
func New(roomID string, matchWindow time.Duration, log *slog.Logger) *Store {
	return &Store{
		roomID:        roomID,
		matchWindow:   matchWindow,
		log:           log,
		byServerID:    make(map[string]*entry),
		byProvisional: make(map[string]*entry),
	}
}

// RoomID returns the room this store belongs to.
func (s *Store) RoomID() string { return s.roomID }

// Len returns the number of messages in the log.
func (s *Store) Len() int { return len(s.entries) }

// Messages returns the rendered sequence, sorted ascending by CreatedAt.
func (s *Store) Messages() []models.Message {
	out := make([]models.Message, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.msg)
	}
	return out
}

// IngestHistory bulk-seeds the store when a room activates.
//
// The store must be empty: history load completes before the push channel
// opens, so no other insertion path can have run yet.
func (s *Store) IngestHistory(msgs []models.Message) error {
	if len(s.entries) != 0 {
		return ErrNotEmpty
	}
	for _, m := range msgs {
		m.RoomID = s.roomID
		m.DeliveryState = models.DeliveryConfirmed
		s.append(m)
		obs.IncMessageIngested("history")
	}
	s.resort()
	return nil
}

// IngestRemote admits one inbound message, collapsing duplicates in place.
//
// Identity is the server id when both sides carry one. Against an optimistic
// entry the server echo is matched heuristically on (sender, body, time
// window), since the provisional id is never known to the server. Returns
// true when a new entry was appended rather than merged.
func (s *Store) IngestRemote(m models.Message) bool {
	m.RoomID = s.roomID
	m.DeliveryState = models.DeliveryConfirmed

	if m.ID != "" {
		if e, ok := s.byServerID[m.ID]; ok {
			s.merge(e, m)
			obs.IncDuplicateCollapsed()
			return false
		}
	}
	if e := s.matchEcho(m); e != nil {
		s.log.Debug("collapsed inbound message into existing entry",
			"room_id", s.roomID, "sender_id", m.SenderID)
		s.merge(e, m)
		obs.IncDuplicateCollapsed()
		return false
	}

	s.append(m)
	s.resort()
	obs.IncMessageIngested("remote")
	return true
}

// SendOptimistic appends a pending message with a provisional id and a
// client-estimated timestamp, returning the entry for the caller to post.
func (s *Store) SendOptimistic(body, senderID string, role models.SenderRole) models.Message {
	m := models.Message{
		ID:            uuid.NewString(),
		RoomID:        s.roomID,
		SenderID:      senderID,
		SenderRole:    role,
		Body:          body,
		CreatedAt:     time.Now(),
		DeliveryState: models.DeliveryPending,
		Provisional:   true,
	}
	e := s.append(m)
	s.byProvisional[m.ID] = e
	s.resort()
	obs.IncMessageIngested("local")
	return m
}

// ConfirmSend merges the server record returned by the send call into the
// optimistic entry, collapsing the two to one confirmed row.
func (s *Store) ConfirmSend(provisionalID string, server models.Message) error {
	e, ok := s.byProvisional[provisionalID]
	if !ok {
		// The channel echo may have already collapsed the entry; admitting
		// the server record goes through the normal dedup path.
		s.IngestRemote(server)
		return nil
	}
	server.RoomID = s.roomID
	server.DeliveryState = models.DeliveryConfirmed
	delete(s.byProvisional, provisionalID)
	s.merge(e, server)
	return nil
}

// FailSend flips a pending entry to failed. The entry is retained so the
// user can retry or discard it. An entry the channel echo already confirmed
// is left confirmed.
func (s *Store) FailSend(provisionalID string) error {
	e, ok := s.byProvisional[provisionalID]
	if !ok {
		return ErrNotFound
	}
	if e.msg.DeliveryState == models.DeliveryConfirmed {
		// The channel echo confirmed the utterance before the send call
		// errored; a lost response must not regress it to failed.
		delete(s.byProvisional, provisionalID)
		return nil
	}
	e.msg.DeliveryState = models.DeliveryFailed
	return nil
}

// RetrySend flips a failed entry back to pending and returns it for re-post.
func (s *Store) RetrySend(provisionalID string) (models.Message, error) {
	e, ok := s.byProvisional[provisionalID]
	if !ok || e.msg.DeliveryState != models.DeliveryFailed {
		return models.Message{}, ErrNotFound
	}
	e.msg.DeliveryState = models.DeliveryPending
	return e.msg, nil
}

// DiscardSend removes a failed entry from the log.
func (s *Store) DiscardSend(provisionalID string) error {
	e, ok := s.byProvisional[provisionalID]
	if !ok || e.msg.DeliveryState != models.DeliveryFailed {
		return ErrNotFound
	}
	delete(s.byProvisional, provisionalID)
	for i, other := range s.entries {
		if other == e {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	return nil
}

// MarkAllSeenBy adds the participant to every confirmed message's seen set.
func (s *Store) MarkAllSeenBy(participantID string) {
	for _, e := range s.entries {
		if e.msg.DeliveryState != models.DeliveryConfirmed {
			continue
		}
		if !e.msg.SeenByParticipant(participantID) {
			e.msg.SeenBy = append(e.msg.SeenBy, participantID)
		}
	}
}

func (s *Store) append(m models.Message) *entry {
	e := &entry{msg: m, seq: s.nextSeq}
	s.nextSeq++
	s.entries = append(s.entries, e)
	if m.ID != "" && !m.Provisional {
		s.byServerID[m.ID] = e
	}
	return e
}

// merge applies server-authoritative fields onto an existing entry.
func (s *Store) merge(e *entry, server models.Message) {
	if server.ID != "" {
		if e.msg.ID != server.ID {
			delete(s.byServerID, e.msg.ID)
		}
		e.msg.ID = server.ID
		s.byServerID[server.ID] = e
	}
	if !server.CreatedAt.IsZero() {
		e.msg.CreatedAt = server.CreatedAt
	}
	if server.SenderRole != "" {
		e.msg.SenderRole = server.SenderRole
	}
	if len(server.SeenBy) > 0 {
		e.msg.SeenBy = server.SeenBy
	}
	e.msg.DeliveryState = models.DeliveryConfirmed
	e.msg.Provisional = false
	s.resort()
}

// matchEcho finds the oldest entry the inbound message plausibly re-delivers:
// an unconfirmed local entry, or any confirmed entry when either side lacks a
// server id.
func (s *Store) matchEcho(m models.Message) *entry {
	for _, e := range s.entries {
		if e.msg.SenderID != m.SenderID || e.msg.Body != m.Body {
			continue
		}
		if e.msg.DeliveryState == models.DeliveryFailed {
			continue
		}
		if e.msg.DeliveryState == models.DeliveryConfirmed && e.msg.ID != "" && m.ID != "" {
			// Both bound to distinct server ids; not the same utterance.
			// An id-less inbound record (push frames never carry one) can
			// still re-deliver a confirmed entry, so it stays a candidate.
			continue
		}
		if delta := absDuration(m.CreatedAt.Sub(e.msg.CreatedAt)); delta > s.matchWindow {
			continue
		}
		return e
	}
	return nil
}

func (s *Store) resort() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		a, b := s.entries[i], s.entries[j]
		if a.msg.CreatedAt.Equal(b.msg.CreatedAt) {
			return a.seq < b.seq
		}
		return a.msg.CreatedAt.Before(b.msg.CreatedAt)
	})
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
