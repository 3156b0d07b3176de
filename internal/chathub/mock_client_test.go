package chathub_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"strangerchat/backend/internal/models"
)

type MockClient struct {
	participant models.Participant
	RecvChannel chan models.Event

	closeOnce sync.Once
	closed    chan struct{}
}

func newMockClient(p models.Participant) *MockClient {
	return &MockClient{
		participant: p,
		RecvChannel: make(chan models.Event, 10),
		closed:      make(chan struct{}),
	}
}

func (c *MockClient) GetParticipant() models.Participant { return c.participant }

func (c *MockClient) GetSendChannel() chan<- models.Event { return c.RecvChannel }

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// MockSender stands in for the message channel.
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, roomID string, sender models.Participant, content string, replyTo *uint, dedupeKey string) (*models.Message, error) {
	args := m.Called(ctx, roomID, sender, content, replyTo, dedupeKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

// MockRooms answers session restore lookups.
type MockRooms struct {
	mock.Mock
}

func (m *MockRooms) GetActiveRoomsFor(ctx context.Context, p models.Participant) ([]models.ChatRoom, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatRoom), args.Error(1)
}
