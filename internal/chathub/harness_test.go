package chathub_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
	"strangerchat/backend/internal/storage/storagetest"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store    *storage.Service
	bus      *chathub.RedisBus
	clock    *clock
	queue    *chathub.QueueService
	matcher  *chathub.MatcherService
	rooms    *chathub.RoomService
	messages *chathub.MessageService
}

func testPolicy() config.MatchPolicy {
	return config.MatchPolicy{
		FallbackAfter: 30 * time.Second,
		StaleAfter:    15 * time.Second,
		PollInterval:  20 * time.Millisecond,
		LookupTTL:     time.Minute,
		SweepInterval: time.Second,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, _ := storagetest.New(t)
	bus := chathub.NewRedisBus(store.Redis)
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	h := &harness{
		store:    store,
		bus:      bus,
		clock:    clk,
		queue:    chathub.NewQueueService(store),
		matcher:  chathub.NewMatcherService(store, bus, testPolicy()),
		rooms:    chathub.NewRoomService(store, bus),
		messages: chathub.NewMessageService(store, bus),
	}
	h.queue.Now = clk.Now
	h.matcher.Now = clk.Now
	return h
}

func (h *harness) enter(t *testing.T, p models.Participant, f models.Filters) {
	t.Helper()
	_, err := h.queue.Enter(context.Background(), p, f, "")
	require.NoError(t, err)
}

func (h *harness) profile(t *testing.T, p models.Participant, gender string, age int, interests ...string) {
	t.Helper()
	require.NoError(t, h.queue.SaveProfile(context.Background(), &models.Profile{
		Participant: p,
		Gender:      gender,
		Age:         age,
		Interests:   interests,
	}))
}

// subscribe returns a feed of p's events.
func (h *harness) subscribe(t *testing.T, p models.Participant) <-chan chathub.Delivery {
	t.Helper()
	sub, err := h.bus.Subscribe(context.Background(), chathub.ParticipantChannel(p))
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	return sub.Deliveries()
}

func nextEvent(t *testing.T, ch <-chan chathub.Delivery, want models.EventType) models.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case d := <-ch:
			if d.Event.Type == want {
				return d.Event
			}
		case <-timeout:
			t.Fatalf("no %s event received", want)
			return models.Event{}
		}
	}
}
