package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "strangerchat/backend/internal/errors"
	"strangerchat/backend/internal/models"
)

// FriendRequestOutcome is what answering a request changed.
type FriendRequestOutcome struct {
	Request    *models.FriendRequest
	Friendship *models.Friendship
	Room       *models.ChatRoom
	// RoomCreated is set when a new friend room replaced a missing or
	// permanently closed one; RoomReopened when a TEMP_CLOSED room came back.
	RoomCreated  bool
	RoomReopened bool
}

// BlockOutcome lists the cascade a block applied.
type BlockOutcome struct {
	Block      *models.Block
	Created    bool
	Unfriended *models.Friendship
	Closed     []models.ChatRoom
	Rejected   []models.FriendRequest
	// Voided are the pairings of the two that had no room yet.
	Voided []models.Pairing
}

func hasBlockBetween(db *gorm.DB, a, b models.Participant) (bool, error) {
	var n int64
	err := db.Model(&models.Block{}).Where("pair_key = ?", models.PairKey(a, b)).Count(&n).Error
	return n > 0, err
}

func (s *Service) HasBlockBetween(ctx context.Context, a, b models.Participant) (bool, error) {
	return hasBlockBetween(s.DB.WithContext(ctx), a, b)
}

// BlockedWith returns the keys of every participant p blocked or was blocked by.
func (s *Service) BlockedWith(ctx context.Context, p models.Participant) (map[string]bool, error) {
	var blocks []models.Block
	err := s.DB.WithContext(ctx).
		Where("(blocker_kind = ? AND blocker_id = ?) OR (blocked_kind = ? AND blocked_id = ?)",
			string(p.Kind), p.ID, string(p.Kind), p.ID).
		Find(&blocks).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(blocks))
	for _, b := range blocks {
		if b.Blocker == p {
			out[b.Blocked.Key()] = true
		} else {
			out[b.Blocker.Key()] = true
		}
	}
	return out, nil
}

// CreateFriendRequest stores a pending request. Blocks, an active friendship
// and an already pending request in either direction are checked in the same
// transaction; the partial unique index on pending pair keys settles races.
func (s *Service) CreateFriendRequest(ctx context.Context, req *models.FriendRequest) error {
	if req.From == req.To {
		return apperrors.Unauthorized("cannot send a friend request to yourself")
	}
	req.PairKey = models.PairKey(req.From, req.To)
	req.Status = models.RequestPending
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.Now()
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		blocked, err := hasBlockBetween(tx, req.From, req.To)
		if err != nil {
			return err
		}
		if blocked {
			return apperrors.Unauthorized("participants have blocked each other")
		}

		if req.RoomID != nil {
			var room models.ChatRoom
			if err := tx.Where("id = ?", *req.RoomID).First(&room).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperrors.NotFound("chat room not found")
				}
				return err
			}
			if !room.HasOccupant(req.From) || !room.HasOccupant(req.To) {
				return apperrors.Unauthorized("both participants must share the room")
			}
		}

		var n int64
		if err := tx.Model(&models.Friendship{}).
			Where("pair_key = ? AND status = ?", req.PairKey, models.FriendshipActive).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperrors.ErrAlreadyFriends
		}

		if err := tx.Model(&models.FriendRequest{}).
			Where("pair_key = ? AND status = ?", req.PairKey, models.RequestPending).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperrors.ErrRequestPending
		}

		if err := tx.Create(req).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.ErrRequestPending
			}
			return err
		}
		return nil
	})
}

// AnswerFriendRequest settles a pending request. Accepting creates or
// reactivates the friendship together with its friend room.
func (s *Service) AnswerFriendRequest(ctx context.Context, requestID string, responder models.Participant, accept bool) (*FriendRequestOutcome, error) {
	out := &FriendRequestOutcome{}
	now := s.Now()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.FriendRequest
		if err := tx.Where("id = ?", requestID).First(&req).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("friend request not found")
			}
			return err
		}
		if req.To != responder {
			return apperrors.Unauthorized("only the addressee can answer a friend request")
		}

		status := models.RequestRejected
		if accept {
			status = models.RequestAccepted
		}
		res := tx.Model(&models.FriendRequest{}).
			Where("id = ? AND status = ?", req.ID, models.RequestPending).
			Updates(map[string]any{"status": status, "responded_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.NotFound("friend request was already answered")
		}
		req.Status = status
		req.RespondedAt = &now
		out.Request = &req
		if !accept {
			return nil
		}

		var friendship models.Friendship
		err := tx.Where("pair_key = ?", req.PairKey).First(&friendship).Error
		exists := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		room, created, reopened, err := s.friendRoomTx(tx, friendship.ChatRoomID, req.From, req.To)
		if err != nil {
			return err
		}
		out.Room, out.RoomCreated, out.RoomReopened = room, created, reopened

		if exists {
			if err := tx.Model(&models.Friendship{}).
				Where("id = ?", friendship.ID).
				Updates(map[string]any{
					"status":       models.FriendshipActive,
					"chat_room_id": room.ID,
					"updated_at":   now,
				}).Error; err != nil {
				return err
			}
			friendship.Status = models.FriendshipActive
			friendship.ChatRoomID = &room.ID
			friendship.UpdatedAt = now
		} else {
			friendship = models.Friendship{
				ID:           uuid.New().String(),
				ParticipantA: req.From,
				ParticipantB: req.To,
				PairKey:      req.PairKey,
				Status:       models.FriendshipActive,
				ChatRoomID:   &room.ID,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.Create(&friendship).Error; err != nil {
				return err
			}
		}
		out.Friendship = &friendship
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// friendRoomTx returns a usable friend room for the pair: the existing one
// reopened from TEMP_CLOSED, or a fresh one when it is missing or CLOSED.
func (s *Service) friendRoomTx(tx *gorm.DB, roomID *string, a, b models.Participant) (*models.ChatRoom, bool, bool, error) {
	if roomID != nil {
		var room models.ChatRoom
		err := tx.Where("id = ?", *roomID).First(&room).Error
		switch {
		case err == nil && room.State == models.RoomOpen:
			return &room, false, false, nil
		case err == nil && room.State == models.RoomTempClosed:
			if _, err := reopenRoomTx(tx, room.ID); err != nil {
				return nil, false, false, err
			}
			var reopened models.ChatRoom
			if err := tx.Where("id = ?", room.ID).First(&reopened).Error; err != nil {
				return nil, false, false, err
			}
			return &reopened, false, true, nil
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, false, false, err
		}
	}
	room := newRoom(a, b, models.RoomFriend, s.Now())
	if err := tx.Create(room).Error; err != nil {
		return nil, false, false, err
	}
	return room, true, false, nil
}

// Unfriend ends an active friendship and parks its room in TEMP_CLOSED.
func (s *Service) Unfriend(ctx context.Context, friendshipID string, actor models.Participant) (*models.Friendship, *models.ChatRoom, error) {
	var (
		friendship models.Friendship
		room       *models.ChatRoom
	)
	now := s.Now()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", friendshipID).First(&friendship).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("friendship not found")
			}
			return err
		}
		if !friendship.Involves(actor) {
			return apperrors.Unauthorized("not part of this friendship")
		}
		res := tx.Model(&models.Friendship{}).
			Where("id = ? AND status = ?", friendship.ID, models.FriendshipActive).
			Updates(map[string]any{"status": models.FriendshipUnfriended, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.New(apperrors.KindNotFriends, "friendship is not active")
		}
		friendship.Status = models.FriendshipUnfriended
		friendship.UpdatedAt = now

		if friendship.ChatRoomID == nil {
			return nil
		}
		if _, err := tempCloseRoomTx(tx, *friendship.ChatRoomID, actor, now); err != nil {
			return err
		}
		var r models.ChatRoom
		if err := tx.Where("id = ?", *friendship.ChatRoomID).First(&r).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		room = &r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &friendship, room, nil
}

// BlockPair records blocker -> blocked and applies the cascade: the
// friendship ends, every room the two share closes for good, a match still
// waiting for its room is voided and pending requests between them are
// rejected. Re-blocking re-applies the cascade
// and reports Created=false.
func (s *Service) BlockPair(ctx context.Context, block *models.Block) (*BlockOutcome, error) {
	if block.Blocker == block.Blocked {
		return nil, apperrors.New(apperrors.KindInvalidPair, "cannot block yourself")
	}
	now := s.Now()
	if block.ID == "" {
		block.ID = uuid.New().String()
	}
	if block.CreatedAt.IsZero() {
		block.CreatedAt = now
	}
	block.DirectedKey = models.DirectedKey(block.Blocker, block.Blocked)
	block.PairKey = models.PairKey(block.Blocker, block.Blocked)
	out := &BlockOutcome{}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPair(tx, block.Blocker, block.Blocked); err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "directed_key"}},
			DoNothing: true,
		}).Create(block)
		if res.Error != nil {
			return res.Error
		}
		out.Created = res.RowsAffected == 1
		var stored models.Block
		if err := tx.Where("directed_key = ?", block.DirectedKey).First(&stored).Error; err != nil {
			return err
		}
		out.Block = &stored

		var friendship models.Friendship
		err := tx.Where("pair_key = ? AND status = ?", block.PairKey, models.FriendshipActive).First(&friendship).Error
		switch {
		case err == nil:
			if err := tx.Model(&models.Friendship{}).
				Where("id = ? AND status = ?", friendship.ID, models.FriendshipActive).
				Updates(map[string]any{"status": models.FriendshipUnfriended, "updated_at": now}).Error; err != nil {
				return err
			}
			friendship.Status = models.FriendshipUnfriended
			out.Unfriended = &friendship
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		occA, argsA := occupantOf(block.Blocker)
		occB, argsB := occupantOf(block.Blocked)
		var shared []models.ChatRoom
		if err := tx.Where("state IN ?", []models.RoomState{models.RoomOpen, models.RoomTempClosed}).
			Where(occA, argsA...).
			Where(occB, argsB...).
			Find(&shared).Error; err != nil {
			return err
		}
		for _, r := range shared {
			changed, err := forceCloseRoomTx(tx, r.ID, block.Blocker, now)
			if err != nil {
				return err
			}
			if !changed {
				continue
			}
			var closed models.ChatRoom
			if err := tx.Where("id = ?", r.ID).First(&closed).Error; err != nil {
				return err
			}
			out.Closed = append(out.Closed, closed)
		}

		pairA, pargsA := pairOf(block.Blocker)
		pairB, pargsB := pairOf(block.Blocked)
		roomless := func(db *gorm.DB) *gorm.DB {
			return db.Where("room_id IS NULL AND voided_at IS NULL").
				Where(pairA, pargsA...).
				Where(pairB, pargsB...)
		}
		if err := roomless(tx).Find(&out.Voided).Error; err != nil {
			return err
		}
		if len(out.Voided) > 0 {
			if err := roomless(tx.Model(&models.Pairing{})).Update("voided_at", now).Error; err != nil {
				return err
			}
			for i := range out.Voided {
				out.Voided[i].VoidedAt = &now
			}
		}

		if err := tx.Where("pair_key = ? AND status = ?", block.PairKey, models.RequestPending).
			Find(&out.Rejected).Error; err != nil {
			return err
		}
		if len(out.Rejected) > 0 {
			if err := tx.Model(&models.FriendRequest{}).
				Where("pair_key = ? AND status = ?", block.PairKey, models.RequestPending).
				Updates(map[string]any{"status": models.RequestRejected, "responded_at": now}).Error; err != nil {
				return err
			}
			for i := range out.Rejected {
				out.Rejected[i].Status = models.RequestRejected
				out.Rejected[i].RespondedAt = &now
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteBlock lifts blocker -> blocked. Nothing the block closed is restored.
func (s *Service) DeleteBlock(ctx context.Context, blocker, blocked models.Participant) (bool, error) {
	res := s.DB.WithContext(ctx).
		Where("directed_key = ?", models.DirectedKey(blocker, blocked)).
		Delete(&models.Block{})
	return res.RowsAffected > 0, res.Error
}

func (s *Service) SaveReport(ctx context.Context, report *models.Report) error {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = s.Now()
	}
	if report.Status == "" {
		report.Status = "new"
	}
	return s.DB.WithContext(ctx).Create(report).Error
}

// ListReports returns the newest reports first, highest severity breaking ties.
func (s *Service) ListReports(ctx context.Context, limit int) ([]models.Report, error) {
	var reports []models.Report
	q := s.DB.WithContext(ctx).Order("created_at desc").Order("severity desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&reports).Error
	return reports, err
}

func (s *Service) ListFriendships(ctx context.Context, p models.Participant) ([]models.Friendship, error) {
	pair, args := pairOf(p)
	var out []models.Friendship
	err := s.DB.WithContext(ctx).
		Where("status = ?", models.FriendshipActive).
		Where(pair, args...).
		Order("updated_at desc").
		Find(&out).Error
	return out, err
}

// ListPendingRequests returns pending requests sent to or by p.
func (s *Service) ListPendingRequests(ctx context.Context, p models.Participant) ([]models.FriendRequest, error) {
	var out []models.FriendRequest
	err := s.DB.WithContext(ctx).
		Where("status = ?", models.RequestPending).
		Where("((to_kind = ? AND to_id = ?) OR (from_kind = ? AND from_id = ?))",
			string(p.Kind), p.ID, string(p.Kind), p.ID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
