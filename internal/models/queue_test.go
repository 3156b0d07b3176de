package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"strangerchat/backend/internal/models"
)

func entry(f models.Filters, t models.Traits) models.QueueEntry {
	return models.QueueEntry{Filters: f, Traits: t, EnqueuedAt: time.Now()}
}

func TestFiltersAccepts(t *testing.T) {
	traits := models.Traits{Gender: "female", Age: 25, Country: "UA", Interests: []string{"music", "chess"}}

	cases := []struct {
		name   string
		filter models.Filters
		want   bool
	}{
		{"empty", models.Filters{}, true},
		{"gender match ignores case", models.Filters{Gender: "Female"}, true},
		{"gender mismatch", models.Filters{Gender: "male"}, false},
		{"age inside", models.Filters{AgeMin: 18, AgeMax: 30}, true},
		{"age below", models.Filters{AgeMin: 26}, false},
		{"age above", models.Filters{AgeMax: 24}, false},
		{"country", models.Filters{Country: "ua"}, true},
		{"shared interest", models.Filters{Interests: []string{"chess", "go"}}, true},
		{"no shared interest", models.Filters{Interests: []string{"go"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter.Accepts(traits))
		})
	}
}

func TestFiltersAccepts_UnknownTraitsFailConstraints(t *testing.T) {
	assert.False(t, models.Filters{Gender: "female"}.Accepts(models.Traits{}))
	assert.False(t, models.Filters{AgeMin: 18}.Accepts(models.Traits{}))
}

func TestCompatible_IsSymmetric(t *testing.T) {
	x := entry(models.Filters{Gender: "female"}, models.Traits{Gender: "male"})
	yFemaleNoFilter := entry(models.Filters{}, models.Traits{Gender: "female"})
	yFemaleWantsFemale := entry(models.Filters{Gender: "female"}, models.Traits{Gender: "female"})
	yMale := entry(models.Filters{}, models.Traits{Gender: "male"})
	now := time.Now()

	assert.True(t, models.Compatible(x, yFemaleNoFilter, now, 0))
	assert.True(t, models.Compatible(yFemaleNoFilter, x, now, 0))
	assert.False(t, models.Compatible(x, yFemaleWantsFemale, now, 0), "y's filter rejects x")
	assert.False(t, models.Compatible(x, yMale, now, 0), "x's filter rejects y")
}

func TestEffectiveFilters_FallbackAfterWaiting(t *testing.T) {
	e := models.QueueEntry{Filters: models.Filters{Gender: "female"}, EnqueuedAt: time.Now().Add(-time.Minute)}

	assert.True(t, e.EffectiveFilters(time.Now(), 30*time.Second).IsEmpty())
	assert.False(t, e.EffectiveFilters(time.Now(), 2*time.Minute).IsEmpty())
	assert.False(t, e.EffectiveFilters(time.Now(), 0).IsEmpty(), "zero disables the fallback")
}

func TestFiltersValidate(t *testing.T) {
	tags := make([]string, 11)
	for i := range tags {
		tags[i] = string(rune('a' + i))
	}

	assert.Error(t, models.Filters{Interests: tags}.Validate(10))
	assert.Error(t, models.Filters{AgeMin: 40, AgeMax: 20}.Validate(10))
	assert.Error(t, models.Filters{AgeMin: -1}.Validate(10))
	assert.NoError(t, models.Filters{AgeMin: 20, AgeMax: 40, Interests: tags[:10]}.Validate(10))
}

func TestFiltersNormalize(t *testing.T) {
	f := models.Filters{Gender: " Female ", Country: "ua", Interests: []string{"Music", "music", " ", "Go"}}.Normalize()

	assert.Equal(t, "female", f.Gender)
	assert.Equal(t, "UA", f.Country)
	assert.Equal(t, []string{"music", "go"}, f.Interests)
}

func TestQueueEntryIsStale(t *testing.T) {
	now := time.Now()
	e := models.QueueEntry{LastSeen: now.Add(-20 * time.Second)}

	assert.True(t, e.IsStale(now, 15*time.Second))
	assert.False(t, e.IsStale(now, time.Minute))
}
