package models

import "time"

type RoomType string

const (
	RoomRandom RoomType = "random"
	RoomFriend RoomType = "friend"
)

// RoomState is the lifecycle position of a room.
type RoomState string

const (
	RoomOpen       RoomState = "open"
	RoomTempClosed RoomState = "temp_closed"
	RoomClosed     RoomState = "closed"
)

// Pairing links two participants the resolver matched, before and after
// their room exists. RoomID is back-filled exactly once.
type Pairing struct {
	ID           string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ParticipantA Participant `gorm:"embedded;embeddedPrefix:a_" json:"participant_a"`
	ParticipantB Participant `gorm:"embedded;embeddedPrefix:b_" json:"participant_b"`
	RoomID       *string     `gorm:"type:varchar(36)" json:"room_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	// VoidedAt is set when a block lands before the room exists. A voided
	// pairing never gets a room.
	VoidedAt *time.Time `json:"voided_at,omitempty"`
}

// Involves reports whether p is one of the two matched participants.
func (m *Pairing) Involves(p Participant) bool {
	return m.ParticipantA == p || m.ParticipantB == p
}

// Partner returns the other side of the pairing.
func (m *Pairing) Partner(p Participant) Participant {
	if m.ParticipantA == p {
		return m.ParticipantB
	}
	return m.ParticipantA
}

// ChatRoom is a 1-on-1 conversation with exactly two occupied slots.
// IsActive mirrors State == RoomOpen; ClosedAt is set iff the room is not open.
type ChatRoom struct {
	ID        string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PairingID *string     `gorm:"type:varchar(36);uniqueIndex" json:"pairing_id,omitempty"`
	Slot1     Participant `gorm:"embedded;embeddedPrefix:slot1_" json:"slot_1"`
	Slot2     Participant `gorm:"embedded;embeddedPrefix:slot2_" json:"slot_2"`
	Type      RoomType    `gorm:"type:varchar(16);not null" json:"room_type"`
	State     RoomState   `gorm:"type:varchar(16);not null;index" json:"state"`
	IsActive  bool        `gorm:"not null" json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	ClosedAt  *time.Time  `json:"closed_at,omitempty"`
	// ClosedBy is the zero Participant while the room is open.
	ClosedBy Participant `gorm:"embedded;embeddedPrefix:closed_by_" json:"closed_by"`
}

func (ChatRoom) TableName() string { return "rooms" }

// HasOccupant reports whether p holds one of the two slots.
func (r *ChatRoom) HasOccupant(p Participant) bool {
	return r.Slot1 == p || r.Slot2 == p
}

// Partner returns the occupant that is not p.
func (r *ChatRoom) Partner(p Participant) Participant {
	if r.Slot1 == p {
		return r.Slot2
	}
	return r.Slot1
}

func (r *ChatRoom) Occupants() []Participant {
	return []Participant{r.Slot1, r.Slot2}
}
