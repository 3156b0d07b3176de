package chathub_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strangerchat/backend/internal/chathub"
	apperrors "strangerchat/backend/internal/errors"
	"strangerchat/backend/internal/models"
)

func TestObserver_WaitSeesMatchMadeByPartner(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h := newHarness(t)
	a, b := models.Guest("a"), models.Guest("b")
	h.enter(t, a, models.Filters{})

	observer := chathub.NewMatchObserver(h.matcher, h.bus)
	type result struct {
		pairing *models.Pairing
		err     error
	}
	done := make(chan result, 1)
	go func() {
		p, err := observer.Wait(ctx, a)
		done <- result{p, err}
	}()

	time.Sleep(50 * time.Millisecond)
	h.enter(t, b, models.Filters{})
	pairing, err := h.matcher.AttemptMatch(ctx, b)
	require.NoError(t, err)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		// either A's own poll or B's attempt made the pairing; both see the same one
		if pairing != nil {
			assert.Equal(t, pairing.ID, r.pairing.ID)
		}
		assert.True(t, r.pairing.Involves(a))
		assert.True(t, r.pairing.Involves(b))
	case <-ctx.Done():
		t.Fatal("wait never returned")
	}
}

func TestObserver_NotQueued(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h := newHarness(t)

	_, err := chathub.NewMatchObserver(h.matcher, h.bus).Wait(ctx, models.Guest("nobody"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestObserver_StopsWithContext(t *testing.T) {
	h := newHarness(t)
	a := models.Guest("a")
	h.enter(t, a, models.Filters{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := chathub.NewMatchObserver(h.matcher, h.bus).Wait(ctx, a)
	assert.Error(t, err)
}

func TestSubscribeMatchNotification(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t)
	a, b := models.Guest("a"), models.Guest("b")

	pushed, err := chathub.SubscribeMatchNotification(ctx, h.bus, a)
	require.NoError(t, err)

	h.enter(t, a, models.Filters{})
	h.enter(t, b, models.Filters{})
	pairing, err := h.matcher.AttemptMatch(ctx, b)
	require.NoError(t, err)
	require.NotNil(t, pairing)

	select {
	case got := <-pushed:
		assert.Equal(t, pairing.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no match notification")
	}
}
