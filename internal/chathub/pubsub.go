package chathub

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"strangerchat/backend/internal/logger"
	"strangerchat/backend/internal/models"
)

const (
	participantChannelPrefix = "participant:"
	roomChannelPrefix        = "room:"
)

// ParticipantChannel carries every event addressed to p.
func ParticipantChannel(p models.Participant) string { return participantChannelPrefix + p.Key() }

// RoomChannel carries the new messages of one room.
func RoomChannel(roomID string) string { return roomChannelPrefix + roomID }

// Delivery is one event as received from a channel.
type Delivery struct {
	Channel string
	Event   models.Event
}

// Recipient decodes the participant a participant-channel delivery is for.
func (d Delivery) Recipient() (models.Participant, bool) {
	key, ok := strings.CutPrefix(d.Channel, participantChannelPrefix)
	if !ok {
		return models.Participant{}, false
	}
	p, err := models.ParseParticipant(key)
	return p, err == nil
}

// Publisher pushes events to participants and rooms.
type Publisher interface {
	PublishTo(ctx context.Context, ev models.Event, recipients ...models.Participant) error
	PublishRoom(ctx context.Context, ev models.Event) error
}

// Subscription is a live feed of decoded events.
type Subscription interface {
	Deliveries() <-chan Delivery
	Close() error
}

// EventBus is Publisher plus the subscribe side.
type EventBus interface {
	Publisher
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
	PSubscribe(ctx context.Context, patterns ...string) (Subscription, error)
}

// RedisBus fans events out over Redis pub/sub so every server instance
// sees them.
type RedisBus struct {
	Redis *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus { return &RedisBus{Redis: rdb} }

func (b *RedisBus) PublishTo(ctx context.Context, ev models.Event, recipients ...models.Participant) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = b.Redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range recipients {
			pipe.Publish(ctx, ParticipantChannel(p), payload)
		}
		return nil
	})
	return err
}

func (b *RedisBus) PublishRoom(ctx context.Context, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.Redis.Publish(ctx, RoomChannel(ev.RoomID), payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	return b.listen(ctx, b.Redis.Subscribe(ctx, channels...))
}

func (b *RedisBus) PSubscribe(ctx context.Context, patterns ...string) (Subscription, error) {
	return b.listen(ctx, b.Redis.PSubscribe(ctx, patterns...))
}

// listen waits for the subscription to be confirmed, so nothing published
// after Subscribe returns is missed, then decodes messages in a goroutine.
func (b *RedisBus) listen(ctx context.Context, ps *redis.PubSub) (Subscription, error) {
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}
	sub := &redisSubscription{ps: ps, out: make(chan Delivery, 64), done: make(chan struct{})}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan Delivery
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) Deliveries() <-chan Delivery { return s.out }

func (s *redisSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.ps.Close()
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		var ev models.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Warn("dropping undecodable event", "channel", msg.Channel, "err", err)
			continue
		}
		select {
		case s.out <- Delivery{Channel: msg.Channel, Event: ev}:
		case <-s.done:
			return
		}
	}
}
