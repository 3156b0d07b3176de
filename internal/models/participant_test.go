package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strangerchat/backend/internal/models"
)

func TestParticipantKeyRoundTrip(t *testing.T) {
	p := models.Account("42")

	parsed, err := models.ParseParticipant(p.Key())

	require.NoError(t, err)
	assert.Equal(t, p, parsed)
	assert.Equal(t, "authenticated:42", p.Key())
}

func TestParseParticipant_Rejects(t *testing.T) {
	for _, key := range []string{"", "guest", "robot:1", "guest:", "guest:   "} {
		_, err := models.ParseParticipant(key)
		assert.Error(t, err, key)
	}
}

func TestPairKeyIsUnordered(t *testing.T) {
	a, b := models.Guest("a"), models.Account("b")

	assert.Equal(t, models.PairKey(a, b), models.PairKey(b, a))
	assert.NotEqual(t, models.PairKey(a, b), models.PairKey(a, models.Guest("b")))
}

func TestDirectedKeyIsOrdered(t *testing.T) {
	a, b := models.Guest("a"), models.Guest("b")

	assert.NotEqual(t, models.DirectedKey(a, b), models.DirectedKey(b, a))
}

func TestChatRoomOccupants(t *testing.T) {
	room := &models.ChatRoom{Slot1: models.Guest("a"), Slot2: models.Account("b")}

	assert.True(t, room.HasOccupant(models.Guest("a")))
	assert.False(t, room.HasOccupant(models.Account("a")), "same id with a different kind is someone else")
	assert.Equal(t, models.Account("b"), room.Partner(models.Guest("a")))
}
