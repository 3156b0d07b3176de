package models

import "time"

// Message is an append-only chat line. The autoincrement ID gives the
// commit order both occupants observe.
type Message struct {
	ID        uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	UID       string      `gorm:"type:varchar(200);not null;uniqueIndex" json:"uid"`
	RoomID    string      `gorm:"type:varchar(36);not null;index:idx_room_msg" json:"room_id"`
	Sender    Participant `gorm:"embedded;embeddedPrefix:sender_" json:"sender"`
	Content   string      `gorm:"type:text;not null" json:"content"`
	ReplyToID *uint       `gorm:"index" json:"reply_to_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
