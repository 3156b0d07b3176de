package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"strangerchat/backend/internal/models"
)

const (
	keyQueueOrder   = "queue:order"   // ZSET participant -> enqueued_at (ms)
	keyQueueSeen    = "queue:seen"    // ZSET participant -> last heartbeat (ms)
	keyQueueEntries = "queue:entries" // HASH participant -> entry JSON
	keyQueueIDs     = "queue:ids"     // HASH participant -> entry id
	keyMatchLookup  = "match:last:"   // STRING per participant -> pairing id
)

// ClaimResult says which side, if any, was gone when a pair was claimed.
type ClaimResult int

const (
	ClaimOK ClaimResult = iota
	ClaimSelfGone
	ClaimCandidateGone
)

// claimScript removes both entries only if both are still the exact entries
// the resolver evaluated. KEYS: order, seen, entries, ids.
// ARGV: selfKey, selfEntryID, candidateKey, candidateEntryID.
var claimScript = redis.NewScript(`
if redis.call('HGET', KEYS[4], ARGV[1]) ~= ARGV[2] then return 1 end
if redis.call('HGET', KEYS[4], ARGV[3]) ~= ARGV[4] then return 2 end
for _, k in ipairs({ARGV[1], ARGV[3]}) do
  redis.call('ZREM', KEYS[1], k)
  redis.call('ZREM', KEYS[2], k)
  redis.call('HDEL', KEYS[3], k)
  redis.call('HDEL', KEYS[4], k)
end
return 0
`)

// touchScript refreshes the heartbeat of an entry that still exists.
// KEYS: seen, ids. ARGV: key, ms.
var touchScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 0 then return 0 end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
return 1
`)

// evictScript drops an entry whose heartbeat is at or before the threshold.
// KEYS: order, seen, entries, ids. ARGV: key, thresholdMs.
var evictScript = redis.NewScript(`
local s = redis.call('ZSCORE', KEYS[2], ARGV[1])
if not s or tonumber(s) > tonumber(ARGV[2]) then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
return 1
`)

var queueKeys = []string{keyQueueOrder, keyQueueSeen, keyQueueEntries, keyQueueIDs}

func ms(t time.Time) float64 { return float64(t.UnixMilli()) }

// UpsertQueueEntry replaces whatever entry the participant had and forgets
// their previous match lookup.
func (s *Service) UpsertQueueEntry(ctx context.Context, e models.QueueEntry) error {
	key := e.Participant.Key()
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, keyQueueEntries, key, payload)
		pipe.HSet(ctx, keyQueueIDs, key, e.ID)
		pipe.ZAdd(ctx, keyQueueOrder, redis.Z{Score: ms(e.EnqueuedAt), Member: key})
		pipe.ZAdd(ctx, keyQueueSeen, redis.Z{Score: ms(e.LastSeen), Member: key})
		pipe.Del(ctx, keyMatchLookup+key)
		return nil
	})
	return err
}

// RemoveQueueEntry deletes the entry; it reports whether one existed.
func (s *Service) RemoveQueueEntry(ctx context.Context, p models.Participant) (bool, error) {
	key := p.Key()
	var removed *redis.IntCmd
	_, err := s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, keyQueueOrder, key)
		pipe.ZRem(ctx, keyQueueSeen, key)
		pipe.HDel(ctx, keyQueueEntries, key)
		pipe.HDel(ctx, keyQueueIDs, key)
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed.Val() > 0, nil
}

// GetQueueEntry returns nil when the participant is not queued.
func (s *Service) GetQueueEntry(ctx context.Context, p models.Participant) (*models.QueueEntry, error) {
	key := p.Key()
	raw, err := s.Redis.HGet(ctx, keyQueueEntries, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e models.QueueEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("decode queue entry %s: %w", key, err)
	}
	if seen, err := s.Redis.ZScore(ctx, keyQueueSeen, key).Result(); err == nil {
		e.LastSeen = time.UnixMilli(int64(seen)).UTC()
	}
	return &e, nil
}

// QueuePosition is read-only; nil means not queued.
func (s *Service) QueuePosition(ctx context.Context, p models.Participant) (*models.QueuePosition, error) {
	key := p.Key()
	var (
		rank  *redis.IntCmd
		size  *redis.IntCmd
		entry *redis.StringCmd
	)
	_, err := s.Redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		rank = pipe.ZRank(ctx, keyQueueOrder, key)
		size = pipe.ZCard(ctx, keyQueueOrder)
		entry = pipe.HGet(ctx, keyQueueEntries, key)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e models.QueueEntry
	if err := json.Unmarshal([]byte(entry.Val()), &e); err != nil {
		return nil, fmt.Errorf("decode queue entry %s: %w", key, err)
	}
	return &models.QueuePosition{
		EntryID:    e.ID,
		Position:   rank.Val() + 1,
		QueueSize:  size.Val(),
		EnqueuedAt: e.EnqueuedAt,
	}, nil
}

// ListQueue returns every waiting entry, earliest enqueued first.
func (s *Service) ListQueue(ctx context.Context) ([]models.QueueEntry, error) {
	keys, err := s.Redis.ZRange(ctx, keyQueueOrder, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	var (
		raws  *redis.SliceCmd
		seens = make([]*redis.FloatCmd, len(keys))
	)
	_, err = s.Redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		raws = pipe.HMGet(ctx, keyQueueEntries, keys...)
		for i, k := range keys {
			seens[i] = pipe.ZScore(ctx, keyQueueSeen, k)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	entries := make([]models.QueueEntry, 0, len(keys))
	for i, v := range raws.Val() {
		raw, ok := v.(string)
		if !ok {
			// removed between ZRANGE and HMGET
			continue
		}
		var e models.QueueEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode queue entry %s: %w", keys[i], err)
		}
		if seen, err := seens[i].Result(); err == nil {
			e.LastSeen = time.UnixMilli(int64(seen)).UTC()
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// TouchQueueEntry records a heartbeat; false means the entry is gone.
func (s *Service) TouchQueueEntry(ctx context.Context, p models.Participant, at time.Time) (bool, error) {
	n, err := touchScript.Run(ctx, s.Redis, []string{keyQueueSeen, keyQueueIDs}, p.Key(), at.UnixMilli()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimPair atomically removes both entries, or neither.
func (s *Service) ClaimPair(ctx context.Context, self, candidate models.QueueEntry) (ClaimResult, error) {
	n, err := claimScript.Run(ctx, s.Redis, queueKeys,
		self.Participant.Key(), self.ID, candidate.Participant.Key(), candidate.ID).Int()
	if err != nil {
		return ClaimSelfGone, err
	}
	return ClaimResult(n), nil
}

// RestoreQueueEntries puts claimed entries back without clobbering newer ones.
func (s *Service) RestoreQueueEntries(ctx context.Context, entries ...models.QueueEntry) error {
	_, err := s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			payload, err := json.Marshal(e)
			if err != nil {
				return err
			}
			key := e.Participant.Key()
			pipe.HSetNX(ctx, keyQueueEntries, key, payload)
			pipe.HSetNX(ctx, keyQueueIDs, key, e.ID)
			pipe.ZAddNX(ctx, keyQueueOrder, redis.Z{Score: ms(e.EnqueuedAt), Member: key})
			pipe.ZAddNX(ctx, keyQueueSeen, redis.Z{Score: ms(e.LastSeen), Member: key})
		}
		return nil
	})
	return err
}

// EvictIfStale removes the entry only if its heartbeat is still old.
func (s *Service) EvictIfStale(ctx context.Context, p models.Participant, threshold time.Time) (bool, error) {
	n, err := evictScript.Run(ctx, s.Redis, queueKeys, p.Key(), threshold.UnixMilli()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// StaleQueueMembers lists participants whose heartbeat is at or before threshold.
func (s *Service) StaleQueueMembers(ctx context.Context, threshold time.Time) ([]models.Participant, error) {
	keys, err := s.Redis.ZRangeByScore(ctx, keyQueueSeen, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(threshold.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Participant, 0, len(keys))
	for _, k := range keys {
		p, err := models.ParseParticipant(k)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// SetMatchLookup remembers the pairing that consumed p's entry.
func (s *Service) SetMatchLookup(ctx context.Context, p models.Participant, pairingID string, ttl time.Duration) error {
	return s.Redis.Set(ctx, keyMatchLookup+p.Key(), pairingID, ttl).Err()
}

// GetMatchLookup returns "" when there is no recent pairing.
func (s *Service) GetMatchLookup(ctx context.Context, p models.Participant) (string, error) {
	id, err := s.Redis.Get(ctx, keyMatchLookup+p.Key()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}
