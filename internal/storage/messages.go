package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "strangerchat/backend/internal/errors"
	"strangerchat/backend/internal/models"
)

// AppendMessage stores msg if and only if its room is open and the sender
// occupies it at the moment of the insert. The room row stays locked until
// the insert commits, so a concurrent close lands either before the check
// or after the message. A repeated UID is a duplicate send and returns the
// stored message with created=false.
func (s *Service) AppendMessage(ctx context.Context, msg *models.Message) (bool, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.Now()
	}

	if msg.ReplyToID != nil {
		parent, err := s.GetMessage(ctx, *msg.ReplyToID)
		if err != nil {
			return false, err
		}
		if parent.RoomID != msg.RoomID {
			return false, apperrors.InvalidArgument("reply_to must reference a message in the same room")
		}
	}

	created := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.ChatRoom
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", msg.RoomID).First(&room).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("chat room not found")
		}
		if err != nil {
			return err
		}
		if !room.HasOccupant(msg.Sender) {
			return apperrors.Unauthorized("not an occupant of this room")
		}

		var stored models.Message
		err = tx.Where("uid = ?", msg.UID).First(&stored).Error
		if err == nil {
			if stored.RoomID != msg.RoomID {
				return apperrors.InvalidArgument("client message id already used in another room")
			}
			*msg = stored
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if room.State != models.RoomOpen {
			return apperrors.Newf(apperrors.KindRoomClosed, "room %s is %s", room.ID, room.State)
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uid"}},
			DoNothing: true,
		}).Create(msg)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return tx.Where("uid = ?", msg.UID).First(msg).Error
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// GetChatHistory returns up to limit messages with ID > afterID in commit order.
func (s *Service) GetChatHistory(ctx context.Context, roomID string, afterID uint, limit int) ([]models.Message, error) {
	var messages []models.Message
	q := s.DB.WithContext(ctx).Where("room_id = ?", roomID)
	if afterID > 0 {
		q = q.Where("id > ?", afterID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Order("id asc").Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *Service) GetMessage(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("message not found")
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
