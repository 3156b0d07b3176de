package chathub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"strangerchat/backend/internal/config"
	apperrors "strangerchat/backend/internal/errors"
	"strangerchat/backend/internal/logger"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
)

// MatchStore is what the resolver needs from storage.
type MatchStore interface {
	storage.QueueStore
	CreatePairing(ctx context.Context, a, b models.Participant) (*models.Pairing, error)
	GetPairing(ctx context.Context, id string) (*models.Pairing, error)
	GetActiveRandomRoomFor(ctx context.Context, p models.Participant) (*models.ChatRoom, error)
	BlockedWith(ctx context.Context, p models.Participant) (map[string]bool, error)
}

// MatcherService pairs waiting participants. Any number of instances may run
// against the same Redis; the claim script makes each entry usable once.
type MatcherService struct {
	Store  MatchStore
	Events Publisher
	Policy config.MatchPolicy
	Now    func() time.Time
	log    *slog.Logger
}

func NewMatcherService(s MatchStore, events Publisher, policy config.MatchPolicy) *MatcherService {
	return &MatcherService{
		Store:  s,
		Events: events,
		Policy: policy,
		Now:    func() time.Time { return time.Now().UTC() },
		log:    logger.With("svc", "matcher"),
	}
}

// AttemptMatch looks for a partner for p. It returns nil when there is no
// compatible partner yet. If p's entry was already consumed by another
// resolver, the pairing that consumed it is returned instead.
func (m *MatcherService) AttemptMatch(ctx context.Context, p models.Participant) (*models.Pairing, error) {
	pairing, _, err := m.attempt(ctx, p, true)
	return pairing, err
}

// attempt reports queued=false when p has neither an entry nor a recent pairing.
func (m *MatcherService) attempt(ctx context.Context, p models.Participant, heartbeat bool) (*models.Pairing, bool, error) {
	now := m.Now()

	self, err := m.Store.GetQueueEntry(ctx, p)
	if err != nil {
		return nil, false, apperrors.Classify(err)
	}
	if self == nil {
		pairing, err := m.lookup(ctx, p)
		return pairing, pairing != nil, err
	}
	if heartbeat {
		alive, err := m.Store.TouchQueueEntry(ctx, p, now)
		if err != nil {
			return nil, true, apperrors.Classify(err)
		}
		if !alive {
			pairing, err := m.lookup(ctx, p)
			return pairing, pairing != nil, err
		}
		self.LastSeen = now
	} else if self.IsStale(now, m.Policy.StaleAfter) {
		m.evict(ctx, p, now)
		return nil, false, nil
	}

	if room, err := m.seated(ctx, p); err != nil {
		return nil, true, err
	} else if room != nil {
		m.drop(ctx, p)
		return nil, false, apperrors.Newf(apperrors.KindAlreadyInRoom, "already chatting in room %s", room.ID)
	}

	blocked, err := m.Store.BlockedWith(ctx, p)
	if err != nil {
		return nil, true, apperrors.Classify(err)
	}
	candidates, err := m.Store.ListQueue(ctx)
	if err != nil {
		return nil, true, apperrors.Classify(err)
	}

	for _, cand := range candidates {
		if cand.Participant == p || blocked[cand.Participant.Key()] {
			continue
		}
		if cand.IsStale(now, m.Policy.StaleAfter) {
			m.evict(ctx, cand.Participant, now)
			continue
		}
		if !models.Compatible(*self, cand, now, m.Policy.FallbackAfter) {
			continue
		}

		res, err := m.Store.ClaimPair(ctx, *self, cand)
		if err != nil {
			return nil, true, apperrors.Classify(err)
		}
		switch res {
		case storage.ClaimCandidateGone:
			continue
		case storage.ClaimSelfGone:
			pairing, err := m.lookup(ctx, p)
			return pairing, pairing != nil, err
		}

		// an entry left behind by someone who got seated stays consumed
		busy, err := m.seated(ctx, cand.Participant)
		if err != nil || busy != nil {
			restore := []models.QueueEntry{*self}
			if err != nil {
				restore = append(restore, cand)
			}
			if rerr := m.Store.RestoreQueueEntries(ctx, restore...); rerr != nil {
				m.log.Error("failed to restore claimed entries", "a", p.Key(), "b", cand.Participant.Key(), "err", rerr)
			}
			if err != nil {
				return nil, true, err
			}
			m.log.Info("dropped queue entry of seated participant", "participant", cand.Participant.Key(), "room", busy.ID)
			continue
		}

		pairing, err := m.Store.CreatePairing(ctx, p, cand.Participant)
		if err != nil {
			if rerr := m.Store.RestoreQueueEntries(ctx, *self, cand); rerr != nil {
				m.log.Error("failed to restore claimed entries", "a", p.Key(), "b", cand.Participant.Key(), "err", rerr)
			}
			if errors.Is(err, apperrors.ErrUnauthorized) {
				// blocked since the block list was read
				continue
			}
			return nil, true, apperrors.Classify(fmt.Errorf("create pairing: %w", err))
		}
		m.announce(ctx, pairing)
		return pairing, true, nil
	}
	return nil, true, nil
}

// announce records the lookup for both sides and pushes match_found.
func (m *MatcherService) announce(ctx context.Context, pairing *models.Pairing) {
	for _, who := range []models.Participant{pairing.ParticipantA, pairing.ParticipantB} {
		if err := m.Store.SetMatchLookup(ctx, who, pairing.ID, m.Policy.LookupTTL); err != nil {
			m.log.Warn("failed to record match lookup", "participant", who.Key(), "err", err)
		}
	}
	ev := models.Event{Type: models.EventMatchFound, Pairing: pairing}
	if err := m.Events.PublishTo(ctx, ev, pairing.ParticipantA, pairing.ParticipantB); err != nil {
		// polling still finds the pairing through the lookup
		m.log.Warn("failed to publish match", "pairing", pairing.ID, "err", err)
	}
	m.log.Info("match found", "pairing", pairing.ID,
		"a", pairing.ParticipantA.Key(), "b", pairing.ParticipantB.Key())
}

func (m *MatcherService) lookup(ctx context.Context, p models.Participant) (*models.Pairing, error) {
	id, err := m.Store.GetMatchLookup(ctx, p)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	if id == "" {
		return nil, nil
	}
	pairing, err := m.Store.GetPairing(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	return pairing, nil
}

// seated returns p's open random room, if any.
func (m *MatcherService) seated(ctx context.Context, p models.Participant) (*models.ChatRoom, error) {
	room, err := m.Store.GetActiveRandomRoomFor(ctx, p)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	return room, nil
}

func (m *MatcherService) drop(ctx context.Context, p models.Participant) {
	if _, err := m.Store.RemoveQueueEntry(ctx, p); err != nil {
		m.log.Warn("failed to drop queue entry", "participant", p.Key(), "err", err)
	}
}

func (m *MatcherService) evict(ctx context.Context, p models.Participant, now time.Time) bool {
	evicted, err := m.Store.EvictIfStale(ctx, p, now.Add(-m.Policy.StaleAfter))
	if err != nil {
		m.log.Warn("failed to evict ghost entry", "participant", p.Key(), "err", err)
		return false
	}
	if evicted {
		m.log.Info("evicted ghost entry", "participant", p.Key())
	}
	return evicted
}

// Sweep evicts every entry that missed its heartbeat window.
func (m *MatcherService) Sweep(ctx context.Context) (int, error) {
	if m.Policy.StaleAfter <= 0 {
		return 0, nil
	}
	now := m.Now()
	stale, err := m.Store.StaleQueueMembers(ctx, now.Add(-m.Policy.StaleAfter))
	if err != nil {
		return 0, apperrors.Classify(err)
	}
	n := 0
	for _, p := range stale {
		if m.evict(ctx, p, now) {
			n++
		}
	}
	return n, nil
}

// MatchPending runs one resolver pass over the whole queue, oldest first,
// so participants who only listen for push notifications still get matched.
// It does not count as a heartbeat for anyone.
func (m *MatcherService) MatchPending(ctx context.Context) (int, error) {
	entries, err := m.Store.ListQueue(ctx)
	if err != nil {
		return 0, apperrors.Classify(err)
	}
	matched := make(map[string]bool)
	n := 0
	for _, e := range entries {
		if matched[e.Participant.Key()] {
			continue
		}
		pairing, _, err := m.attempt(ctx, e.Participant, false)
		if errors.Is(err, apperrors.ErrAlreadyInRoom) {
			continue
		}
		if err != nil {
			m.log.Warn("match pass failed", "participant", e.Participant.Key(), "err", err)
			continue
		}
		if pairing != nil {
			matched[pairing.ParticipantA.Key()] = true
			matched[pairing.ParticipantB.Key()] = true
			n++
		}
	}
	return n, nil
}

// Run drives the background resolver pass and the ghost sweeper until ctx ends.
func (m *MatcherService) Run(ctx context.Context) error {
	m.log.Info("matcher service started",
		"poll", m.Policy.PollInterval, "sweep", m.Policy.SweepInterval,
		"stale_after", m.Policy.StaleAfter, "fallback_after", m.Policy.FallbackAfter)

	poll := time.NewTicker(positive(m.Policy.PollInterval, config.DefaultPollInterval))
	defer poll.Stop()
	sweep := time.NewTicker(positive(m.Policy.SweepInterval, config.DefaultQueueSweepPeriod))
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sweep.C:
			if n, err := m.Sweep(ctx); err != nil {
				m.log.Warn("queue sweep failed", "err", err)
			} else if n > 0 {
				m.log.Info("queue sweep evicted ghosts", "count", n)
			}
		case <-poll.C:
			if _, err := m.MatchPending(ctx); err != nil {
				m.log.Warn("match pass failed", "err", err)
			}
		}
	}
}

func positive(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
