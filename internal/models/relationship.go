package models

import "time"

type FriendRequestStatus string

const (
	RequestPending  FriendRequestStatus = "pending"
	RequestAccepted FriendRequestStatus = "accepted"
	RequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest is one participant asking another to become friends,
// usually from inside a random room.
type FriendRequest struct {
	ID          string              `gorm:"primaryKey;type:varchar(36)" json:"id"`
	From        Participant         `gorm:"embedded;embeddedPrefix:from_" json:"from"`
	To          Participant         `gorm:"embedded;embeddedPrefix:to_" json:"to"`
	PairKey     string              `gorm:"type:varchar(200);not null;index;uniqueIndex:ux_friend_request_pending,where:status = 'pending'" json:"-"`
	RoomID      *string             `gorm:"type:varchar(36)" json:"room_id,omitempty"`
	Message     string              `gorm:"type:text" json:"message,omitempty"`
	Status      FriendRequestStatus `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	RespondedAt *time.Time          `json:"responded_at,omitempty"`
}

type FriendshipStatus string

const (
	FriendshipPending    FriendshipStatus = "pending"
	FriendshipActive     FriendshipStatus = "active"
	FriendshipUnfriended FriendshipStatus = "unfriended"
)

// Friendship is the persistent relationship between an unordered pair.
// ChatRoomID points at the friend room that survives across sessions.
type Friendship struct {
	ID           string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ParticipantA Participant      `gorm:"embedded;embeddedPrefix:a_" json:"participant_a"`
	ParticipantB Participant      `gorm:"embedded;embeddedPrefix:b_" json:"participant_b"`
	PairKey      string           `gorm:"type:varchar(200);not null;uniqueIndex" json:"-"`
	Status       FriendshipStatus `gorm:"type:varchar(16);not null" json:"status"`
	ChatRoomID   *string          `gorm:"type:varchar(36)" json:"chat_room_id,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (f *Friendship) Involves(p Participant) bool {
	return f.ParticipantA == p || f.ParticipantB == p
}

func (f *Friendship) Friend(p Participant) Participant {
	if f.ParticipantA == p {
		return f.ParticipantB
	}
	return f.ParticipantA
}

// Block is one-directional, but it stops matching and closes rooms for both sides.
type Block struct {
	ID          string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Blocker     Participant `gorm:"embedded;embeddedPrefix:blocker_" json:"blocker"`
	Blocked     Participant `gorm:"embedded;embeddedPrefix:blocked_" json:"blocked"`
	DirectedKey string      `gorm:"type:varchar(200);not null;uniqueIndex" json:"-"`
	PairKey     string      `gorm:"type:varchar(200);not null;index" json:"-"`
	Reason      string      `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// DirectedKey identifies blocker -> blocked.
func DirectedKey(blocker, blocked Participant) string {
	return blocker.Key() + ">" + blocked.Key()
}

// Report is a complaint one participant files about another.
type Report struct {
	ID        uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	Reporter  Participant `gorm:"embedded;embeddedPrefix:reporter_" json:"reporter"`
	Reported  Participant `gorm:"embedded;embeddedPrefix:reported_" json:"reported"`
	Category  string      `gorm:"type:varchar(32);not null" json:"category"`
	Reason    string      `gorm:"type:text" json:"reason"`
	RoomID    *string     `gorm:"type:varchar(36)" json:"room_id,omitempty"`
	Severity  int         `json:"severity"`
	Status    string      `gorm:"type:varchar(16);not null;default:new" json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}
