package chathub_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "strangerchat/backend/internal/errors"
	"strangerchat/backend/internal/models"
)

func TestMatch_TwoStrangersShareOnePairingAndRoom(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, b := models.Guest("a"), models.Account("b")
	feedA := h.subscribe(t, a)

	h.enter(t, a, models.Filters{})
	none, err := h.matcher.AttemptMatch(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, none, "nobody else is waiting")

	h.clock.Advance(time.Second)
	h.enter(t, b, models.Filters{})

	pairing, err := h.matcher.AttemptMatch(ctx, b)
	require.NoError(t, err)
	require.NotNil(t, pairing)
	assert.True(t, pairing.Involves(a))
	assert.True(t, pairing.Involves(b))

	again, err := h.matcher.AttemptMatch(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, again, "the consumed side looks its pairing up")
	assert.Equal(t, pairing.ID, again.ID)

	ev := nextEvent(t, feedA, models.EventMatchFound)
	assert.Equal(t, pairing.ID, ev.Pairing.ID)

	roomA, err := h.rooms.CreateForPairing(ctx, pairing.ID, a)
	require.NoError(t, err)
	roomB, err := h.rooms.CreateForPairing(ctx, pairing.ID, b)
	require.NoError(t, err)
	assert.Equal(t, roomA.ID, roomB.ID)

	created := nextEvent(t, feedA, models.EventRoomCreated)
	assert.Equal(t, roomA.ID, created.RoomID)
}

func TestMatch_FiltersAreSymmetric(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, b := models.Account("a"), models.Account("b")
	h.profile(t, a, "male", 25)
	h.profile(t, b, "female", 31)

	// a accepts b, but b only wants people over 30
	h.enter(t, a, models.Filters{Gender: "female"})
	h.enter(t, b, models.Filters{AgeMin: 30})

	pairing, err := h.matcher.AttemptMatch(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, pairing)
	pairing, err = h.matcher.AttemptMatch(ctx, b)
	require.NoError(t, err)
	assert.Nil(t, pairing)
}

func TestMatch_FallbackRelaxesFiltersAfterWaiting(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, b := models.Account("a"), models.Account("b")
	h.profile(t, a, "male", 25, "chess")
	h.profile(t, b, "male", 25, "football")

	h.enter(t, a, models.Filters{Interests: []string{"jazz"}})
	h.enter(t, b, models.Filters{})

	pairing, err := h.matcher.AttemptMatch(ctx, b)
	require.NoError(t, err)
	assert.Nil(t, pairing)

	h.clock.Advance(testPolicy().FallbackAfter)
	_, err = h.queue.Heartbeat(ctx, a)
	require.NoError(t, err)
	pairing, err = h.matcher.AttemptMatch(ctx, b)
	require.NoError(t, err)
	require.NotNil(t, pairing)
}

func TestMatch_FallbackDisabled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.matcher.Policy.FallbackAfter = 0
	a, b := models.Account("a"), models.Account("b")
	h.profile(t, b, "male", 25)

	h.enter(t, a, models.Filters{Gender: "female"})
	h.enter(t, b, models.Filters{})

	h.clock.Advance(10 * time.Minute)
	_, err := h.queue.Heartbeat(ctx, a)
	require.NoError(t, err)
	pairing, err := h.matcher.AttemptMatch(ctx, b)
	require.NoError(t, err)
	assert.Nil(t, pairing)
}

func TestMatch_BlockedPairsAreNeverCandidates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, b, c := models.Guest("a"), models.Guest("b"), models.Guest("c")

	_, err := h.store.BlockPair(ctx, &models.Block{Blocker: a, Blocked: b})
	require.NoError(t, err)

	h.enter(t, a, models.Filters{})
	h.enter(t, b, models.Filters{})
	pairing, err := h.matcher.AttemptMatch(ctx, b)
	require.NoError(t, err)
	assert.Nil(t, pairing)

	h.enter(t, c, models.Filters{})
	pairing, err = h.matcher.AttemptMatch(ctx, b)
	require.NoError(t, err)
	require.NotNil(t, pairing)
	assert.True(t, pairing.Involves(c))
}

func TestMatch_FIFOAmongCompatibleCandidates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first, second, seeker := models.Guest("first"), models.Guest("second"), models.Guest("seeker")

	h.enter(t, first, models.Filters{})
	h.clock.Advance(time.Second)
	h.enter(t, second, models.Filters{})
	h.clock.Advance(time.Second)
	h.enter(t, seeker, models.Filters{})

	pairing, err := h.matcher.AttemptMatch(ctx, seeker)
	require.NoError(t, err)
	require.NotNil(t, pairing)
	assert.True(t, pairing.Involves(first))
}

func TestMatch_GhostEntriesAreSkippedAndEvicted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ghost, live := models.Guest("ghost"), models.Guest("live")

	h.enter(t, ghost, models.Filters{})
	h.clock.Advance(20 * time.Second)
	h.enter(t, live, models.Filters{})

	pairing, err := h.matcher.AttemptMatch(ctx, live)
	require.NoError(t, err)
	assert.Nil(t, pairing)

	pos, err := h.queue.Position(ctx, ghost)
	require.NoError(t, err)
	assert.Nil(t, pos, "the ghost was evicted")
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.enter(t, models.Guest("a"), models.Filters{})
	h.enter(t, models.Guest("b"), models.Filters{Gender: "nobody"})
	h.clock.Advance(time.Minute)
	h.enter(t, models.Guest("c"), models.Filters{})

	n, err := h.matcher.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := h.store.ListQueue(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.Guest("c"), list[0].Participant)
}

func TestMatchPending_MatchesWithoutClientPolling(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, b, c := models.Guest("a"), models.Guest("b"), models.Guest("c")
	h.enter(t, a, models.Filters{})
	h.enter(t, b, models.Filters{})
	h.enter(t, c, models.Filters{})

	n, err := h.matcher.MatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := h.store.ListQueue(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1, "one participant is left waiting")
}

func TestMatch_ConcurrentAttemptsNeverDoublePair(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var people []models.Participant
	for i := 0; i < 10; i++ {
		p := models.Guest(fmt.Sprintf("p%02d", i))
		people = append(people, p)
		h.enter(t, p, models.Filters{})
	}

	var wg sync.WaitGroup
	for round := 0; round < 3; round++ {
		for _, p := range people {
			wg.Add(1)
			go func(p models.Participant) {
				defer wg.Done()
				_, err := h.matcher.AttemptMatch(ctx, p)
				assert.NoError(t, err)
			}(p)
		}
	}
	wg.Wait()

	var pairings []models.Pairing
	require.NoError(t, h.store.DB.Find(&pairings).Error)
	seen := map[models.Participant]string{}
	for _, pr := range pairings {
		for _, p := range []models.Participant{pr.ParticipantA, pr.ParticipantB} {
			prev, dup := seen[p]
			assert.False(t, dup, "%s is in pairings %s and %s", p, prev, pr.ID)
			seen[p] = pr.ID
		}
	}
	assert.Len(t, pairings, len(people)/2)
}

func TestMatch_SeatingClearsLeftoverQueueEntries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, b, c := models.Guest("a"), models.Guest("b"), models.Guest("c")

	h.enter(t, a, models.Filters{})
	h.enter(t, b, models.Filters{})
	pairing, err := h.matcher.AttemptMatch(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, pairing)

	// an entry written by an enter that raced the match
	now := h.clock.Now()
	require.NoError(t, h.store.UpsertQueueEntry(ctx, models.QueueEntry{
		ID: "left-over", Participant: a, EnqueuedAt: now, LastSeen: now,
	}))

	_, err = h.rooms.CreateForPairing(ctx, pairing.ID, b)
	require.NoError(t, err)
	pos, err := h.queue.Position(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, pos, "seating removes the entry")

	h.enter(t, c, models.Filters{})
	none, err := h.matcher.AttemptMatch(ctx, c)
	require.NoError(t, err)
	assert.Nil(t, none)
	pos, err = h.queue.Position(ctx, c)
	require.NoError(t, err)
	assert.NotNil(t, pos, "c keeps waiting")
}

func TestMatch_SeatedSelfIsRefused(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, b := models.Guest("a"), models.Guest("b")
	h.matched(t, a, b)

	now := h.clock.Now()
	require.NoError(t, h.store.UpsertQueueEntry(ctx, models.QueueEntry{
		ID: "stale-a", Participant: a, EnqueuedAt: now, LastSeen: now,
	}))

	_, err := h.matcher.AttemptMatch(ctx, a)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyInRoom)
	pos, err := h.queue.Position(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestMatch_SeatedCandidateIsSkipped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a, b, c, d := models.Guest("a"), models.Guest("b"), models.Guest("c"), models.Guest("d")
	h.matched(t, a, b)

	now := h.clock.Now()
	require.NoError(t, h.store.UpsertQueueEntry(ctx, models.QueueEntry{
		ID: "stale-a", Participant: a, EnqueuedAt: now, LastSeen: now,
	}))
	h.clock.Advance(time.Second)
	h.enter(t, c, models.Filters{})

	none, err := h.matcher.AttemptMatch(ctx, c)
	require.NoError(t, err)
	assert.Nil(t, none)
	pos, err := h.queue.Position(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, pos, "the seated entry stays consumed")
	pos, err = h.queue.Position(ctx, c)
	require.NoError(t, err)
	assert.NotNil(t, pos)

	h.enter(t, d, models.Filters{})
	pairing, err := h.matcher.AttemptMatch(ctx, d)
	require.NoError(t, err)
	require.NotNil(t, pairing)
	assert.True(t, pairing.Involves(c))
}
