package models

import (
	"fmt"
	"strings"
)

// ParticipantKind tells guests and account holders apart.
type ParticipantKind string

const (
	KindGuest         ParticipantKind = "guest"
	KindAuthenticated ParticipantKind = "authenticated"
)

// Participant is an opaque reference to a guest or authenticated identity.
// It is stored as two columns wherever it is embedded (kind + id).
type Participant struct {
	Kind ParticipantKind `gorm:"type:varchar(16)" json:"kind"`
	ID   string          `gorm:"type:varchar(64)" json:"id"`
}

// Guest and Account are shorthands used by handlers and tests.
func Guest(id string) Participant   { return Participant{Kind: KindGuest, ID: id} }
func Account(id string) Participant { return Participant{Kind: KindAuthenticated, ID: id} }

// Key is the canonical string form, e.g. "guest:4f1c...".
func (p Participant) Key() string { return string(p.Kind) + ":" + p.ID }

func (p Participant) String() string { return p.Key() }

func (p Participant) IsZero() bool { return p.Kind == "" && p.ID == "" }

// Validate rejects unknown kinds and empty ids.
func (p Participant) Validate() error {
	if p.Kind != KindGuest && p.Kind != KindAuthenticated {
		return fmt.Errorf("unknown participant kind %q", p.Kind)
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("participant id is empty")
	}
	return nil
}

// ParseParticipant is the inverse of Key.
func ParseParticipant(key string) (Participant, error) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok {
		return Participant{}, fmt.Errorf("malformed participant key %q", key)
	}
	p := Participant{Kind: ParticipantKind(kind), ID: id}
	if err := p.Validate(); err != nil {
		return Participant{}, err
	}
	return p, nil
}

// PairKey identifies an unordered pair of participants.
func PairKey(a, b Participant) string {
	ka, kb := a.Key(), b.Key()
	if kb < ka {
		ka, kb = kb, ka
	}
	return ka + "|" + kb
}
