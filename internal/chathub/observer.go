package chathub

import (
	"context"
	"time"

	"strangerchat/backend/internal/config"
	apperrors "strangerchat/backend/internal/errors"
	"strangerchat/backend/internal/models"
)

// MatchObserver turns the push notification and the polling fallback into
// a single "match observed" result per wait.
type MatchObserver struct {
	Matcher *MatcherService
	Bus     EventBus
	// PollInterval defaults to the matcher policy's interval.
	PollInterval time.Duration
	// misses is how many consecutive polls may find p neither queued nor
	// matched before giving up; covers the gap between a claim and its lookup.
	misses int
}

func NewMatchObserver(m *MatcherService, bus EventBus) *MatchObserver {
	return &MatchObserver{
		Matcher:      m,
		Bus:          bus,
		PollInterval: positive(m.Policy.PollInterval, config.DefaultPollInterval),
		misses:       3,
	}
}

// SubscribeMatchNotification delivers the pairings pushed to p until ctx ends.
func SubscribeMatchNotification(ctx context.Context, bus EventBus, p models.Participant) (<-chan *models.Pairing, error) {
	sub, err := bus.Subscribe(ctx, ParticipantChannel(p))
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	out := make(chan *models.Pairing, 1)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-sub.Deliveries():
				if !ok {
					return
				}
				if d.Event.Type != models.EventMatchFound || d.Event.Pairing == nil {
					continue
				}
				select {
				case out <- d.Event.Pairing:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Wait blocks until p is matched and returns the pairing exactly once,
// whichever of push and poll sees it first. It fails with NotFound when p
// is not waiting in the queue.
func (o *MatchObserver) Wait(ctx context.Context, p models.Participant) (*models.Pairing, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pushed, err := SubscribeMatchNotification(ctx, o.Bus, p)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(o.PollInterval)
	defer ticker.Stop()

	missed := 0
	for {
		pairing, queued, err := o.Matcher.attempt(ctx, p, true)
		if err != nil && !apperrors.IsRetryable(err) {
			return nil, err
		}
		if pairing != nil {
			return pairing, nil
		}
		if err == nil && !queued {
			missed++
			if missed >= o.misses {
				return nil, apperrors.NotFound("not waiting in the queue")
			}
		} else {
			missed = 0
		}

		select {
		case <-ctx.Done():
			return nil, apperrors.Classify(ctx.Err())
		case pairing, ok := <-pushed:
			if ok {
				return pairing, nil
			}
			pushed = nil
		case <-ticker.C:
		}
	}
}
