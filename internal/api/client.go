package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"chat-sync/internal/models"
)

// Client is the backend chat contract consumed by the sync engine.
type Client interface {
	GetRoom(ctx context.Context, bookingID string) (models.Room, error)
	ListMessages(ctx context.Context, bookingID string) ([]models.Message, error)
	SendMessage(ctx context.Context, bookingID, body string) (models.Message, error)
	MarkSeen(ctx context.Context, bookingID string) error
	ListDirectory(ctx context.Context, role models.SenderRole) ([]models.Room, error)
}

// HTTPClient talks to the marketplace backend over its REST contract.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTPClient constructs an HTTPClient.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// GetRoom discovers (or lazily creates) the room for a booking.
func (c *HTTPClient) GetRoom(ctx context.Context, bookingID string) (models.Room, error) {
	var out struct {
		Room models.Room `json:"room"`
	}
	if err := c.do(ctx, http.MethodGet, "/bookings/"+url.PathEscape(bookingID)+"/room", nil, &out); err != nil {
		return models.Room{}, fmt.Errorf("%w: %v", ErrRoomUnavailable, err)
	}
	return out.Room, nil
}

// ListMessages returns the room's message backlog, oldest first.
func (c *HTTPClient) ListMessages(ctx context.Context, bookingID string) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/bookings/"+url.PathEscape(bookingID)+"/messages", nil, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	return out.Messages, nil
}

// SendMessage posts a message and returns the server-confirmed record.
func (c *HTTPClient) SendMessage(ctx context.Context, bookingID, body string) (models.Message, error) {
	req := map[string]string{"body": body}
	var out struct {
		Message models.Message `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/bookings/"+url.PathEscape(bookingID)+"/messages", req, &out); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return out.Message, nil
}

// MarkSeen marks all messages in the booking's room seen by the local actor.
func (c *HTTPClient) MarkSeen(ctx context.Context, bookingID string) error {
	if err := c.do(ctx, http.MethodPatch, "/bookings/"+url.PathEscape(bookingID)+"/seen", nil, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrSeenAckFailed, err)
	}
	return nil
}

// ListDirectory returns the rooms visible to the actor for the sidebar.
func (c *HTTPClient) ListDirectory(ctx context.Context, role models.SenderRole) ([]models.Room, error) {
	var out struct {
		Rooms []models.Room `json:"rooms"`
	}
	path := "/directory?role=" + url.QueryEscape(string(role))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list directory: %w", err)
	}
	return out.Rooms, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
