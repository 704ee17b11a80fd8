package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/models"
)

type APIClientMock struct {
	mock.Mock
}

func (m *APIClientMock) GetRoom(ctx context.Context, bookingID string) (models.Room, error) {
	args := m.Called(ctx, bookingID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *APIClientMock) ListMessages(ctx context.Context, bookingID string) ([]models.Message, error) {
	args := m.Called(ctx, bookingID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *APIClientMock) SendMessage(ctx context.Context, bookingID, body string) (models.Message, error) {
	args := m.Called(ctx, bookingID, body)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *APIClientMock) MarkSeen(ctx context.Context, bookingID string) error {
	args := m.Called(ctx, bookingID)
	return args.Error(0)
}

func (m *APIClientMock) ListDirectory(ctx context.Context, role models.SenderRole) ([]models.Room, error) {
	args := m.Called(ctx, role)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}
