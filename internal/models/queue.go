package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Filters are the optional constraints a participant puts on a partner.
// A zero value accepts anyone.
type Filters struct {
	Gender    string   `json:"gender,omitempty"`
	AgeMin    int      `json:"age_min,omitempty"`
	AgeMax    int      `json:"age_max,omitempty"`
	Country   string   `json:"country,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

// Traits are what a participant's partner filters are evaluated against.
type Traits struct {
	Gender    string   `json:"gender,omitempty"`
	Age       int      `json:"age,omitempty"`
	Country   string   `json:"country,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

func (f Filters) IsEmpty() bool {
	return f.Gender == "" && f.AgeMin == 0 && f.AgeMax == 0 && f.Country == "" && len(f.Interests) == 0
}

// Normalize lower-cases string constraints and drops blank or duplicate tags.
func (f Filters) Normalize() Filters {
	out := Filters{
		Gender:  strings.ToLower(strings.TrimSpace(f.Gender)),
		AgeMin:  f.AgeMin,
		AgeMax:  f.AgeMax,
		Country: strings.ToUpper(strings.TrimSpace(f.Country)),
	}
	for _, tag := range f.Interests {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" && !slices.Contains(out.Interests, tag) {
			out.Interests = append(out.Interests, tag)
		}
	}
	return out
}

// Validate checks the shape of the filters; maxTags bounds the interest list.
func (f Filters) Validate(maxTags int) error {
	if len(f.Interests) > maxTags {
		return fmt.Errorf("at most %d interest tags are allowed", maxTags)
	}
	if f.AgeMin < 0 || f.AgeMax < 0 {
		return fmt.Errorf("age bounds must not be negative")
	}
	if f.AgeMin > 0 && f.AgeMax > 0 && f.AgeMin > f.AgeMax {
		return fmt.Errorf("age_min %d is greater than age_max %d", f.AgeMin, f.AgeMax)
	}
	return nil
}

// Accepts reports whether a partner with traits t satisfies f.
// Unknown traits never satisfy a constraint on them.
func (f Filters) Accepts(t Traits) bool {
	if f.Gender != "" && !strings.EqualFold(f.Gender, t.Gender) {
		return false
	}
	if f.AgeMin > 0 && (t.Age == 0 || t.Age < f.AgeMin) {
		return false
	}
	if f.AgeMax > 0 && (t.Age == 0 || t.Age > f.AgeMax) {
		return false
	}
	if f.Country != "" && !strings.EqualFold(f.Country, t.Country) {
		return false
	}
	if len(f.Interests) > 0 {
		shared := false
		for _, tag := range t.Interests {
			if slices.Contains(f.Interests, strings.ToLower(tag)) {
				shared = true
				break
			}
		}
		if !shared {
			return false
		}
	}
	return true
}

// QueueEntry is a participant's registration of intent to match.
// Entries live in Redis; the struct is their JSON form.
type QueueEntry struct {
	ID             string      `json:"id"`
	Participant    Participant `json:"participant"`
	Filters        Filters     `json:"filters"`
	Traits         Traits      `json:"traits"`
	EnqueuedAt     time.Time   `json:"enqueued_at"`
	LastSeen       time.Time   `json:"last_seen"`
	ConnectionHint string      `json:"connection_hint,omitempty"`
}

// EffectiveFilters returns the filters in force at now. Once the entry has
// waited fallbackAfter its own filters are dropped; zero disables that.
func (e QueueEntry) EffectiveFilters(now time.Time, fallbackAfter time.Duration) Filters {
	if fallbackAfter > 0 && now.Sub(e.EnqueuedAt) >= fallbackAfter {
		return Filters{}
	}
	return e.Filters
}

// IsStale reports whether the entry missed its heartbeat window.
func (e QueueEntry) IsStale(now time.Time, staleAfter time.Duration) bool {
	return staleAfter > 0 && now.Sub(e.LastSeen) > staleAfter
}

// Compatible is the symmetric check: each side's effective filters must
// accept the other's traits.
func Compatible(a, b QueueEntry, now time.Time, fallbackAfter time.Duration) bool {
	return a.EffectiveFilters(now, fallbackAfter).Accepts(b.Traits) &&
		b.EffectiveFilters(now, fallbackAfter).Accepts(a.Traits)
}

// QueuePosition is the read-only view used by UI polling.
type QueuePosition struct {
	EntryID    string    `json:"entry_id"`
	Position   int64     `json:"position"`
	QueueSize  int64     `json:"queue_size"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
