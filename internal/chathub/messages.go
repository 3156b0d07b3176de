package chathub

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"strangerchat/backend/internal/config"
	apperrors "strangerchat/backend/internal/errors"
	"strangerchat/backend/internal/logger"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
)

// MessageStore is what the message channel needs from storage.
type MessageStore interface {
	storage.MessageStore
	GetRoomByID(ctx context.Context, roomID string) (*models.ChatRoom, error)
	HasBlockBetween(ctx context.Context, a, b models.Participant) (bool, error)
}

// MessageService is the message channel. Whether a send lands is decided by
// the storage insert itself, never by a state read beforehand.
type MessageService struct {
	Store  MessageStore
	Events Publisher
	log    *slog.Logger
}

func NewMessageService(s MessageStore, events Publisher) *MessageService {
	return &MessageService{Store: s, Events: events, log: logger.With("svc", "messages")}
}

// Send appends a message to an open room. dedupeKey identifies a client-side
// message: sending it again returns the stored message.
func (m *MessageService) Send(ctx context.Context, roomID string, sender models.Participant, content string, replyTo *uint, dedupeKey string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.InvalidArgument("message is empty")
	}
	if utf8.RuneCountInString(content) > config.MaxMessageLength {
		return nil, apperrors.Newf(apperrors.KindInvalidArgument, "message is longer than %d characters", config.MaxMessageLength)
	}

	uid := uuid.New().String()
	if dedupeKey = strings.TrimSpace(dedupeKey); dedupeKey != "" {
		uid = sender.Key() + "/" + dedupeKey
	}
	msg := &models.Message{
		UID:       uid,
		RoomID:    roomID,
		Sender:    sender,
		Content:   content,
		ReplyToID: replyTo,
	}
	created, err := m.Store.AppendMessage(ctx, msg)
	if err != nil {
		return nil, apperrors.Classify(fmt.Errorf("send to room %s: %w", roomID, err))
	}
	if !created {
		return msg, nil
	}

	ev := models.Event{Type: models.EventMessageNew, RoomID: roomID, Message: msg}
	room, err := m.Store.GetRoomByID(ctx, roomID)
	if err == nil {
		if err := m.Events.PublishTo(ctx, ev, room.Occupants()...); err != nil {
			m.log.Warn("failed to push message", "room", roomID, "err", err)
		}
	}
	if err := m.Events.PublishRoom(ctx, ev); err != nil {
		m.log.Warn("failed to publish message to room channel", "room", roomID, "err", err)
	}
	return msg, nil
}

// History returns messages after afterID in commit order. Occupants may read
// in every room state, but not while a block stands between them.
func (m *MessageService) History(ctx context.Context, roomID string, actor models.Participant, afterID uint, limit int) ([]models.Message, error) {
	room, err := m.Store.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	if !room.HasOccupant(actor) {
		return nil, apperrors.Unauthorized("not an occupant of this room")
	}
	blocked, err := m.Store.HasBlockBetween(ctx, room.Slot1, room.Slot2)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	if blocked {
		return nil, apperrors.Unauthorized("history is hidden after a block")
	}
	if limit <= 0 || limit > config.MaxHistoryPage {
		limit = config.MaxHistoryPage
	}
	messages, err := m.Store.GetChatHistory(ctx, roomID, afterID, limit)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	return messages, nil
}

// SubscribeNewMessages streams messages committed to roomID from now on.
// Cancel ctx to stop; the channel is closed afterwards.
func SubscribeNewMessages(ctx context.Context, bus EventBus, roomID string) (<-chan models.Message, error) {
	sub, err := bus.Subscribe(ctx, RoomChannel(roomID))
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	out := make(chan models.Message)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-sub.Deliveries():
				if !ok {
					return
				}
				if d.Event.Type != models.EventMessageNew || d.Event.Message == nil {
					continue
				}
				select {
				case out <- *d.Event.Message:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
