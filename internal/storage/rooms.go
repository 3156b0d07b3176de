package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "strangerchat/backend/internal/errors"
	"strangerchat/backend/internal/models"
)

// CreatePairing records a match. It refuses pairs with a block between them,
// checked under the pair lock in the same transaction as the insert.
func (s *Service) CreatePairing(ctx context.Context, a, b models.Participant) (*models.Pairing, error) {
	if a == b {
		return nil, apperrors.New(apperrors.KindInvalidPair, "cannot pair a participant with itself")
	}
	pairing := &models.Pairing{
		ID:           uuid.New().String(),
		ParticipantA: a,
		ParticipantB: b,
		CreatedAt:    s.Now(),
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPair(tx, a, b); err != nil {
			return err
		}
		blocked, err := hasBlockBetween(tx, a, b)
		if err != nil {
			return err
		}
		if blocked {
			return apperrors.Unauthorized("participants have blocked each other")
		}
		return tx.Create(pairing).Error
	})
	if err != nil {
		return nil, err
	}
	return pairing, nil
}

func (s *Service) GetPairing(ctx context.Context, id string) (*models.Pairing, error) {
	var pairing models.Pairing
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&pairing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("pairing not found")
	}
	if err != nil {
		return nil, err
	}
	return &pairing, nil
}

// CreateRoomForPairing creates the random room for a pairing, or returns the
// one that already exists. Either matched participant may call it; the
// unique pairing_id on rooms decides the race and room_id is back-filled once.
// A block between the two, before or after the match, refuses the room.
func (s *Service) CreateRoomForPairing(ctx context.Context, pairingID string, actor models.Participant) (*models.ChatRoom, bool, error) {
	var (
		room    models.ChatRoom
		created bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pairing models.Pairing
		if err := tx.Where("id = ?", pairingID).First(&pairing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("pairing not found")
			}
			return err
		}
		if !pairing.Involves(actor) {
			return apperrors.Unauthorized("not a participant of this pairing")
		}

		if pairing.RoomID != nil {
			return tx.Where("id = ?", *pairing.RoomID).First(&room).Error
		}
		if pairing.VoidedAt != nil {
			return apperrors.Unauthorized("the match was cancelled by a block")
		}
		if err := lockPair(tx, pairing.ParticipantA, pairing.ParticipantB); err != nil {
			return err
		}
		blocked, err := hasBlockBetween(tx, pairing.ParticipantA, pairing.ParticipantB)
		if err != nil {
			return err
		}
		if blocked {
			return apperrors.Unauthorized("participants have blocked each other")
		}

		for _, p := range []models.Participant{pairing.ParticipantA, pairing.ParticipantB} {
			busy, err := activeRandomRoom(tx.Where("pairing_id IS NULL OR pairing_id <> ?", pairing.ID), p)
			if err != nil {
				return err
			}
			if busy != nil {
				return apperrors.Newf(apperrors.KindAlreadyInRoom, "%s is already in room %s", p, busy.ID)
			}
		}

		candidate := newRoom(pairing.ParticipantA, pairing.ParticipantB, models.RoomRandom, s.Now())
		candidate.PairingID = &pairing.ID
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pairing_id"}},
			DoNothing: true,
		}).Create(candidate)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			room = *candidate
			created = true
		} else if err := tx.Where("pairing_id = ?", pairing.ID).First(&room).Error; err != nil {
			return err
		}

		return tx.Model(&models.Pairing{}).
			Where("id = ? AND room_id IS NULL", pairing.ID).
			Update("room_id", room.ID).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &room, created, nil
}

// CreateRoom opens a room outside of matching (friend rooms).
func (s *Service) CreateRoom(ctx context.Context, a, b models.Participant, roomType models.RoomType) (*models.ChatRoom, error) {
	if a == b {
		return nil, apperrors.New(apperrors.KindInvalidPair, "a room needs two different participants")
	}
	room := newRoom(a, b, roomType, s.Now())
	if err := s.DB.WithContext(ctx).Create(room).Error; err != nil {
		return nil, err
	}
	return room, nil
}

func newRoom(a, b models.Participant, roomType models.RoomType, now time.Time) *models.ChatRoom {
	return &models.ChatRoom{
		ID:        uuid.New().String(),
		Slot1:     a,
		Slot2:     b,
		Type:      roomType,
		State:     models.RoomOpen,
		IsActive:  true,
		CreatedAt: now,
	}
}

func (s *Service) GetRoomByID(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.DB.WithContext(ctx).Where("id = ?", roomID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("chat room not found")
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// CloseRoom moves an open room to CLOSED, or to TEMP_CLOSED when temporary.
// The update is conditional on the room still being open, so the first
// closer wins and later calls are no-ops reporting changed=false.
func (s *Service) CloseRoom(ctx context.Context, roomID string, actor models.Participant, temporary bool) (*models.ChatRoom, bool, error) {
	target := models.RoomClosed
	if temporary {
		target = models.RoomTempClosed
	}
	occupant, args := occupantOf(actor)
	q := s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("id = ? AND state = ?", roomID, models.RoomOpen).
		Where(occupant, args...)
	if temporary {
		q = q.Where("type = ?", models.RoomFriend)
	}
	res := q.Updates(closeColumns(target, actor, s.Now()))
	if res.Error != nil {
		return nil, false, res.Error
	}

	room, err := s.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	if res.RowsAffected == 1 {
		return room, true, nil
	}
	if !room.HasOccupant(actor) {
		return nil, false, apperrors.Unauthorized("not an occupant of this room")
	}
	if temporary && room.Type != models.RoomFriend {
		return nil, false, apperrors.New(apperrors.KindInvalidTransition, "only friend rooms can be closed temporarily")
	}
	return room, false, nil
}

// ForceCloseRoom closes a room for good on an operator's behalf, from OPEN
// or TEMP_CLOSED. ClosedBy stays empty.
func (s *Service) ForceCloseRoom(ctx context.Context, roomID string) (*models.ChatRoom, bool, error) {
	changed, err := forceCloseRoomTx(s.DB.WithContext(ctx), roomID, models.Participant{}, s.Now())
	if err != nil {
		return nil, false, err
	}
	room, err := s.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	return room, changed, nil
}

// ReopenRoom takes a TEMP_CLOSED friend room back to OPEN. It requires an
// active friendship between the occupants, checked in the same transaction.
func (s *Service) ReopenRoom(ctx context.Context, roomID string, actor models.Participant) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", roomID).First(&room).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("chat room not found")
			}
			return err
		}
		if !room.HasOccupant(actor) {
			return apperrors.Unauthorized("not an occupant of this room")
		}
		if room.State == models.RoomOpen {
			return nil
		}
		if room.State != models.RoomTempClosed {
			return apperrors.New(apperrors.KindInvalidTransition, "room is closed permanently")
		}
		var friends int64
		if err := tx.Model(&models.Friendship{}).
			Where("pair_key = ? AND status = ?", models.PairKey(room.Slot1, room.Slot2), models.FriendshipActive).
			Count(&friends).Error; err != nil {
			return err
		}
		if friends == 0 {
			return apperrors.New(apperrors.KindNotFriends, "reopening needs an active friendship")
		}
		if _, err := reopenRoomTx(tx, room.ID); err != nil {
			return err
		}
		// a fresh value: scanning NULL closed_at leaves an old pointer in place
		var reopened models.ChatRoom
		if err := tx.Where("id = ?", roomID).First(&reopened).Error; err != nil {
			return err
		}
		room = reopened
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetActiveRandomRoomFor returns nil when p has no open random room.
func (s *Service) GetActiveRandomRoomFor(ctx context.Context, p models.Participant) (*models.ChatRoom, error) {
	return activeRandomRoom(s.DB.WithContext(ctx), p)
}

// GetActiveRoomsFor lists every open room p occupies, newest first.
func (s *Service) GetActiveRoomsFor(ctx context.Context, p models.Participant) ([]models.ChatRoom, error) {
	occupant, args := occupantOf(p)
	var rooms []models.ChatRoom
	err := s.DB.WithContext(ctx).
		Where("state = ?", models.RoomOpen).
		Where(occupant, args...).
		Order("created_at desc").
		Find(&rooms).Error
	return rooms, err
}

func (s *Service) GetProfile(ctx context.Context, p models.Participant) (*models.Profile, error) {
	var profile models.Profile
	err := s.DB.WithContext(ctx).Where("participant_key = ?", p.Key()).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *Service) SaveProfile(ctx context.Context, profile *models.Profile) error {
	profile.Key = profile.Participant.Key()
	return s.DB.WithContext(ctx).Save(profile).Error
}

func activeRandomRoom(db *gorm.DB, p models.Participant) (*models.ChatRoom, error) {
	occupant, args := occupantOf(p)
	var room models.ChatRoom
	err := db.Where("state = ? AND type = ?", models.RoomOpen, models.RoomRandom).
		Where(occupant, args...).
		First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func closeColumns(state models.RoomState, actor models.Participant, at time.Time) map[string]any {
	return map[string]any{
		"state":          state,
		"is_active":      false,
		"closed_at":      at,
		"closed_by_kind": string(actor.Kind),
		"closed_by_id":   actor.ID,
	}
}

// tempCloseRoomTx moves an open friend room to TEMP_CLOSED.
func tempCloseRoomTx(tx *gorm.DB, roomID string, actor models.Participant, at time.Time) (bool, error) {
	res := tx.Model(&models.ChatRoom{}).
		Where("id = ? AND state = ? AND type = ?", roomID, models.RoomOpen, models.RoomFriend).
		Updates(closeColumns(models.RoomTempClosed, actor, at))
	return res.RowsAffected == 1, res.Error
}

// forceCloseRoomTx closes a room permanently from OPEN or TEMP_CLOSED.
func forceCloseRoomTx(tx *gorm.DB, roomID string, actor models.Participant, at time.Time) (bool, error) {
	res := tx.Model(&models.ChatRoom{}).
		Where("id = ? AND state IN ?", roomID, []models.RoomState{models.RoomOpen, models.RoomTempClosed}).
		Updates(closeColumns(models.RoomClosed, actor, at))
	return res.RowsAffected == 1, res.Error
}

// reopenRoomTx clears the closure of a TEMP_CLOSED room.
func reopenRoomTx(tx *gorm.DB, roomID string) (bool, error) {
	res := tx.Model(&models.ChatRoom{}).
		Where("id = ? AND state = ?", roomID, models.RoomTempClosed).
		Updates(map[string]any{
			"state":          models.RoomOpen,
			"is_active":      true,
			"closed_at":      nil,
			"closed_by_kind": "",
			"closed_by_id":   "",
		})
	return res.RowsAffected == 1, res.Error
}
