package chathub

import (
	"context"
	"log/slog"

	apperrors "strangerchat/backend/internal/errors"
	"strangerchat/backend/internal/logger"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
)

// RoomStore is what the room manager needs from storage. Seating a pairing
// also clears any queue entry either side still holds.
type RoomStore interface {
	storage.RoomStore
	RemoveQueueEntry(ctx context.Context, p models.Participant) (bool, error)
}

// RoomService owns room creation and the OPEN / TEMP_CLOSED / CLOSED machine.
// Storage performs each transition as one conditional update; this layer
// tells both occupants what happened.
type RoomService struct {
	Store  RoomStore
	Events Publisher
	log    *slog.Logger
}

func NewRoomService(s RoomStore, events Publisher) *RoomService {
	return &RoomService{Store: s, Events: events, log: logger.With("svc", "rooms")}
}

// CreateForPairing materialises the room of a pairing. Both matched
// participants may call it; they all get the same room.
func (r *RoomService) CreateForPairing(ctx context.Context, pairingID string, actor models.Participant) (*models.ChatRoom, error) {
	room, created, err := r.Store.CreateRoomForPairing(ctx, pairingID, actor)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	if room.State == models.RoomOpen {
		for _, p := range room.Occupants() {
			if removed, err := r.Store.RemoveQueueEntry(ctx, p); err != nil {
				r.log.Warn("failed to clear queue entry of seated participant", "participant", p.Key(), "err", err)
			} else if removed {
				r.log.Info("cleared queue entry of seated participant", "participant", p.Key(), "room", room.ID)
			}
		}
	}
	if created {
		r.log.Info("room created", "room", room.ID, "pairing", pairingID)
		r.notify(ctx, models.EventRoomCreated, room)
	}
	return room, nil
}

// Create opens a room between two participants directly.
func (r *RoomService) Create(ctx context.Context, a, b models.Participant, roomType models.RoomType) (*models.ChatRoom, error) {
	room, err := r.Store.CreateRoom(ctx, a, b, roomType)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	r.notify(ctx, models.EventRoomCreated, room)
	return room, nil
}

// Close ends a room for good, or parks a friend room when temporary is set.
// Closing an already closed room is a successful no-op.
func (r *RoomService) Close(ctx context.Context, roomID string, actor models.Participant, temporary bool) (*models.ChatRoom, error) {
	room, changed, err := r.Store.CloseRoom(ctx, roomID, actor, temporary)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	if changed {
		evType := models.EventRoomClosed
		if room.State == models.RoomTempClosed {
			evType = models.EventRoomTempClosed
		}
		r.log.Info("room closed", "room", room.ID, "by", actor.Key(), "state", room.State)
		r.notify(ctx, evType, room)
	}
	return room, nil
}

// Reopen brings a TEMP_CLOSED friend room back while the two are friends.
func (r *RoomService) Reopen(ctx context.Context, roomID string, actor models.Participant) (*models.ChatRoom, error) {
	before, err := r.Get(ctx, roomID, actor)
	if err != nil {
		return nil, err
	}
	room, err := r.Store.ReopenRoom(ctx, roomID, actor)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	if before.State != models.RoomOpen {
		r.notify(ctx, models.EventRoomReopened, room)
	}
	return room, nil
}

// Get returns the room if actor occupies it.
func (r *RoomService) Get(ctx context.Context, roomID string, actor models.Participant) (*models.ChatRoom, error) {
	room, err := r.Store.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	if !room.HasOccupant(actor) {
		return nil, apperrors.Unauthorized("not an occupant of this room")
	}
	return room, nil
}

func (r *RoomService) State(ctx context.Context, roomID string, actor models.Participant) (models.RoomState, error) {
	room, err := r.Get(ctx, roomID, actor)
	if err != nil {
		return "", err
	}
	return room.State, nil
}

// ForceClose ends a room without an occupant asking, e.g. from the admin CLI.
func (r *RoomService) ForceClose(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	room, changed, err := r.Store.ForceCloseRoom(ctx, roomID)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	if changed {
		r.log.Info("room closed by operator", "room", room.ID)
		r.notify(ctx, models.EventRoomClosed, room)
	}
	return room, nil
}

// Active lists the open rooms of p.
func (r *RoomService) Active(ctx context.Context, p models.Participant) ([]models.ChatRoom, error) {
	rooms, err := r.Store.GetActiveRoomsFor(ctx, p)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	return rooms, nil
}

func (r *RoomService) notify(ctx context.Context, t models.EventType, room *models.ChatRoom) {
	ev := models.Event{Type: t, RoomID: room.ID, Room: room}
	if err := r.Events.PublishTo(ctx, ev, room.Occupants()...); err != nil {
		r.log.Warn("failed to publish room event", "room", room.ID, "type", t, "err", err)
	}
}
