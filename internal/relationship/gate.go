// Package relationship holds the social rules between two participants:
// friend requests, friendships, blocks and reports. Every change that moves a
// room is pushed to both occupants.
package relationship

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/config"
	apperrors "strangerchat/backend/internal/errors"
	"strangerchat/backend/internal/logger"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
)

// Service is the relationship gate.
type Service struct {
	Store  storage.RelationshipStore
	Events chathub.Publisher
	log    *slog.Logger
}

// NewService creates a new relationship gate.
func NewService(s storage.RelationshipStore, events chathub.Publisher) *Service {
	return &Service{Store: s, Events: events, log: logger.With("svc", "relationship")}
}

// SendFriendRequest asks to befriend the partner of a shared room. roomID may
// be empty for requests made outside a room.
func (s *Service) SendFriendRequest(ctx context.Context, from, to models.Participant, roomID, message string) (*models.FriendRequest, error) {
	if err := to.Validate(); err != nil {
		return nil, apperrors.InvalidArgument(err.Error())
	}
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) > config.MaxFriendRequestMessage {
		return nil, apperrors.Newf(apperrors.KindInvalidArgument, "message exceeds %d characters", config.MaxFriendRequestMessage)
	}

	req := &models.FriendRequest{From: from, To: to, Message: message}
	if roomID != "" {
		req.RoomID = &roomID
	}
	if err := s.Store.CreateFriendRequest(ctx, req); err != nil {
		return nil, apperrors.Classify(err)
	}
	s.log.Info("friend request sent", "request", req.ID, "from", from.Key(), "to", to.Key())
	s.publish(ctx, models.Event{Type: models.EventFriendRequest, RoomID: roomID, Request: req}, to)
	return req, nil
}

// RespondToRequest accepts or rejects a pending request addressed to responder.
func (s *Service) RespondToRequest(ctx context.Context, requestID string, responder models.Participant, accept bool) (*storage.FriendRequestOutcome, error) {
	out, err := s.Store.AnswerFriendRequest(ctx, requestID, responder, accept)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	req := out.Request
	s.log.Info("friend request answered", "request", req.ID, "status", req.Status)
	s.publish(ctx, models.Event{Type: models.EventFriendRequestDone, Request: req, Friendship: out.Friendship}, req.From, req.To)

	switch {
	case out.RoomCreated:
		s.publishRoom(ctx, models.EventRoomCreated, out.Room)
	case out.RoomReopened:
		s.publishRoom(ctx, models.EventRoomReopened, out.Room)
	}
	return out, nil
}

// Unfriend ends a friendship; its room waits in TEMP_CLOSED for a refriend.
func (s *Service) Unfriend(ctx context.Context, friendshipID string, actor models.Participant) (*models.Friendship, error) {
	friendship, room, err := s.Store.Unfriend(ctx, friendshipID, actor)
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	s.log.Info("unfriended", "friendship", friendship.ID, "actor", actor.Key())
	s.publish(ctx, models.Event{Type: models.EventUnfriended, Friendship: friendship},
		friendship.ParticipantA, friendship.ParticipantB)
	if room != nil && room.State == models.RoomTempClosed {
		s.publishRoom(ctx, models.EventRoomTempClosed, room)
	}
	return friendship, nil
}

// Block stops blocked from ever meeting blocker again and tears down whatever
// the two share.
func (s *Service) Block(ctx context.Context, blocker, blocked models.Participant, reason string) (*storage.BlockOutcome, error) {
	if err := blocked.Validate(); err != nil {
		return nil, apperrors.InvalidArgument(err.Error())
	}
	out, err := s.Store.BlockPair(ctx, &models.Block{Blocker: blocker, Blocked: blocked, Reason: strings.TrimSpace(reason)})
	if err != nil {
		return nil, apperrors.Classify(err)
	}
	s.log.Info("participant blocked", "blocker", blocker.Key(), "blocked", blocked.Key(),
		"created", out.Created, "rooms_closed", len(out.Closed))

	if out.Unfriended != nil {
		s.publish(ctx, models.Event{Type: models.EventUnfriended, Friendship: out.Unfriended}, blocker, blocked)
	}
	for i := range out.Closed {
		s.publishRoom(ctx, models.EventRoomClosed, &out.Closed[i])
	}
	for i := range out.Voided {
		p := &out.Voided[i]
		s.publish(ctx, models.Event{Type: models.EventMatchCancelled, Pairing: p}, p.ParticipantA, p.ParticipantB)
	}
	for i := range out.Rejected {
		s.publish(ctx, models.Event{Type: models.EventFriendRequestDone, Request: &out.Rejected[i]}, blocker, blocked)
	}
	return out, nil
}

// Report files a complaint. It never changes any room.
func (s *Service) Report(ctx context.Context, reporter, reported models.Participant, category, reason, roomID string) (*models.Report, error) {
	if err := reported.Validate(); err != nil {
		return nil, apperrors.InvalidArgument(err.Error())
	}
	if reporter == reported {
		return nil, apperrors.InvalidArgument("cannot report yourself")
	}
	severity, ok := Severity(category)
	if !ok {
		return nil, apperrors.Newf(apperrors.KindInvalidArgument, "unknown report category %q", category)
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > config.MaxReportReason {
		return nil, apperrors.Newf(apperrors.KindInvalidArgument, "reason exceeds %d characters", config.MaxReportReason)
	}

	report := &models.Report{
		Reporter: reporter,
		Reported: reported,
		Category: strings.ToLower(category),
		Reason:   reason,
		Severity: severity,
	}
	if roomID != "" {
		report.RoomID = &roomID
	}
	if err := s.Store.SaveReport(ctx, report); err != nil {
		return nil, apperrors.Classify(fmt.Errorf("save report: %w", err))
	}
	s.log.Info("report filed", "report", report.ID, "category", report.Category, "severity", severity)
	return report, nil
}

func (s *Service) ListFriends(ctx context.Context, actor models.Participant) ([]models.Friendship, error) {
	out, err := s.Store.ListFriendships(ctx, actor)
	return out, apperrors.Classify(err)
}

func (s *Service) ListPendingRequests(ctx context.Context, actor models.Participant) ([]models.FriendRequest, error) {
	out, err := s.Store.ListPendingRequests(ctx, actor)
	return out, apperrors.Classify(err)
}

// Severity returns the weight stored with a report of the given category.
func Severity(category string) (int, bool) {
	w, ok := config.ReportCategories[strings.ToLower(category)]
	return w, ok
}

func (s *Service) publishRoom(ctx context.Context, t models.EventType, room *models.ChatRoom) {
	if room == nil {
		return
	}
	s.publish(ctx, models.Event{Type: t, RoomID: room.ID, Room: room}, room.Occupants()...)
}

// publish is best effort: the state change already committed.
func (s *Service) publish(ctx context.Context, ev models.Event, to ...models.Participant) {
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishTo(ctx, ev, to...); err != nil {
		s.log.Warn("failed to publish event", "type", ev.Type, "err", err)
	}
}
