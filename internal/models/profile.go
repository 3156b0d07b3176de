package models

import (
	"time"

	"github.com/lib/pq"
)

// Profile is the slice of the participant registry the matcher reads:
// the traits other people's filters are checked against.
type Profile struct {
	Key         string      `gorm:"primaryKey;column:participant_key;type:varchar(96)"`
	Participant Participant `gorm:"embedded;embeddedPrefix:participant_"`

	Gender    string `gorm:"type:varchar(16)"`
	Age       int
	Country   string         `gorm:"type:varchar(2)"`
	Interests pq.StringArray `gorm:"type:text"`
	UpdatedAt time.Time
}

// Traits snapshots the profile for a queue entry.
func (p *Profile) Traits() Traits {
	if p == nil {
		return Traits{}
	}
	return Traits{
		Gender:    p.Gender,
		Age:       p.Age,
		Country:   p.Country,
		Interests: append([]string(nil), p.Interests...),
	}
}
