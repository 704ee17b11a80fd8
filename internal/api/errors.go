package api

import "errors"

// Engine error taxonomy. All are recoverable; none is fatal to the host.
var (
	// ErrHistoryUnavailable means the backlog fetch failed. Callers must show
	// an empty state with a retry affordance, never "room has no messages".
	ErrHistoryUnavailable = errors.New("history unavailable")

	// ErrSendFailed means a message post did not reach the server. The
	// optimistic entry flips to failed and stays visible.
	ErrSendFailed = errors.New("send failed")

	// ErrSeenAckFailed means the seen-acknowledgement was not confirmed.
	// Unread counts stay untouched until a later attempt succeeds.
	ErrSeenAckFailed = errors.New("seen acknowledgement failed")

	// ErrRoomUnavailable means room discovery for a booking failed.
	ErrRoomUnavailable = errors.New("room unavailable")
)
