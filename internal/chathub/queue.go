package chathub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"strangerchat/backend/internal/config"
	apperrors "strangerchat/backend/internal/errors"
	"strangerchat/backend/internal/logger"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
)

// QueueStore is what the queue needs from storage.
type QueueStore interface {
	storage.QueueStore
	GetActiveRandomRoomFor(ctx context.Context, p models.Participant) (*models.ChatRoom, error)
	GetPairing(ctx context.Context, id string) (*models.Pairing, error)
	GetProfile(ctx context.Context, p models.Participant) (*models.Profile, error)
	SaveProfile(ctx context.Context, profile *models.Profile) error
}

// QueueService registers participants' intent to be matched.
type QueueService struct {
	Store QueueStore
	Now   func() time.Time
	log   *slog.Logger
}

func NewQueueService(s QueueStore) *QueueService {
	return &QueueService{
		Store: s,
		Now:   func() time.Time { return time.Now().UTC() },
		log:   logger.With("svc", "queue"),
	}
}

// Enter upserts p's queue entry and returns its id. Traits are read from
// the participant's profile; a missing profile means no known traits.
// A participant in an open random room, or matched and still waiting for
// the room, cannot enter.
func (q *QueueService) Enter(ctx context.Context, p models.Participant, filters models.Filters, connectionHint string) (string, error) {
	if err := p.Validate(); err != nil {
		return "", apperrors.InvalidArgument(err.Error())
	}
	filters = filters.Normalize()
	if err := filters.Validate(config.MaxInterestTags); err != nil {
		return "", apperrors.InvalidArgument(err.Error())
	}

	room, err := q.Store.GetActiveRandomRoomFor(ctx, p)
	if err != nil {
		return "", apperrors.Classify(err)
	}
	if room != nil {
		return "", apperrors.Newf(apperrors.KindAlreadyInRoom, "already chatting in room %s", room.ID)
	}
	if err := q.checkPendingMatch(ctx, p); err != nil {
		return "", err
	}

	profile, err := q.Store.GetProfile(ctx, p)
	if err != nil {
		return "", apperrors.Classify(err)
	}

	now := q.Now()
	entry := models.QueueEntry{
		ID:             uuid.New().String(),
		Participant:    p,
		Filters:        filters,
		Traits:         profile.Traits(),
		EnqueuedAt:     now,
		LastSeen:       now,
		ConnectionHint: connectionHint,
	}
	if err := q.Store.UpsertQueueEntry(ctx, entry); err != nil {
		return "", apperrors.Classify(fmt.Errorf("enqueue %s: %w", p, err))
	}
	q.log.Debug("participant entered queue", "participant", p.Key(), "entry", entry.ID)
	return entry.ID, nil
}

// checkPendingMatch refuses p while its latest pairing is live and roomless.
// The match lookup expires, so an abandoned pairing stops blocking p after
// the lookup TTL.
func (q *QueueService) checkPendingMatch(ctx context.Context, p models.Participant) error {
	id, err := q.Store.GetMatchLookup(ctx, p)
	if err != nil {
		return apperrors.Classify(err)
	}
	if id == "" {
		return nil
	}
	pairing, err := q.Store.GetPairing(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.Classify(err)
	}
	if pairing.RoomID == nil && pairing.VoidedAt == nil {
		return apperrors.Newf(apperrors.KindAlreadyInRoom, "matched in pairing %s, waiting for its room", pairing.ID)
	}
	return nil
}

// Leave removes p's entry. Leaving when not queued is not an error.
func (q *QueueService) Leave(ctx context.Context, p models.Participant) error {
	removed, err := q.Store.RemoveQueueEntry(ctx, p)
	if err != nil {
		return apperrors.Classify(err)
	}
	if removed {
		q.log.Debug("participant left queue", "participant", p.Key())
	}
	return nil
}

// Position is a read-only lookup; nil means p is not queued.
func (q *QueueService) Position(ctx context.Context, p models.Participant) (*models.QueuePosition, error) {
	pos, err := q.Store.QueuePosition(ctx, p)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	return pos, nil
}

// Heartbeat keeps p's entry from being treated as a ghost. It reports
// whether p is still queued.
func (q *QueueService) Heartbeat(ctx context.Context, p models.Participant) (bool, error) {
	ok, err := q.Store.TouchQueueEntry(ctx, p, q.Now())
	if err != nil {
		return false, apperrors.Classify(err)
	}
	return ok, nil
}

// SaveProfile stores the traits other participants' filters are checked
// against. It affects entries created after the call.
func (q *QueueService) SaveProfile(ctx context.Context, profile *models.Profile) error {
	if err := profile.Participant.Validate(); err != nil {
		return apperrors.InvalidArgument(err.Error())
	}
	normalized := models.Filters{Gender: profile.Gender, Country: profile.Country, Interests: profile.Interests}.Normalize()
	if err := normalized.Validate(config.MaxInterestTags); err != nil {
		return apperrors.InvalidArgument(err.Error())
	}
	if profile.Age < 0 {
		return apperrors.InvalidArgument("age must not be negative")
	}
	profile.Gender, profile.Country, profile.Interests = normalized.Gender, normalized.Country, normalized.Interests
	profile.UpdatedAt = q.Now()
	return apperrors.Classify(q.Store.SaveProfile(ctx, profile))
}
