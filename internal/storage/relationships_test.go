package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "strangerchat/backend/internal/errors"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
	"strangerchat/backend/internal/storage/storagetest"
)

func befriend(t *testing.T, svc *storage.Service, a, b models.Participant, roomID *string) *storage.FriendRequestOutcome {
	t.Helper()
	ctx := context.Background()
	req := &models.FriendRequest{From: a, To: b, RoomID: roomID}
	require.NoError(t, svc.CreateFriendRequest(ctx, req))
	out, err := svc.AnswerFriendRequest(ctx, req.ID, b, true)
	require.NoError(t, err)
	return out
}

func TestFriendRequest_Rules(t *testing.T) {
	ctx := context.Background()
	svc, _ := storagetest.New(t)
	a, b := models.Guest("a"), models.Guest("b")
	room := matchedRoom(t, svc, a, b)

	err := svc.CreateFriendRequest(ctx, &models.FriendRequest{From: a, To: a})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	err = svc.CreateFriendRequest(ctx, &models.FriendRequest{From: a, To: models.Guest("c"), RoomID: &room.ID})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized, "the addressee must share the room")

	req := &models.FriendRequest{From: a, To: b, RoomID: &room.ID, Message: "hey"}
	require.NoError(t, svc.CreateFriendRequest(ctx, req))

	err = svc.CreateFriendRequest(ctx, &models.FriendRequest{From: b, To: a})
	assert.ErrorIs(t, err, apperrors.ErrRequestPending, "pending in either direction")

	_, err = svc.AnswerFriendRequest(ctx, req.ID, a, true)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized, "only the addressee answers")

	out, err := svc.AnswerFriendRequest(ctx, req.ID, b, true)
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipActive, out.Friendship.Status)
	require.NotNil(t, out.Room)
	assert.True(t, out.RoomCreated)
	assert.Equal(t, models.RoomFriend, out.Room.Type)

	_, err = svc.AnswerFriendRequest(ctx, req.ID, b, true)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "already answered")

	err = svc.CreateFriendRequest(ctx, &models.FriendRequest{From: b, To: a})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyFriends)

	friends, err := svc.ListFriendships(ctx, a)
	require.NoError(t, err)
	assert.Len(t, friends, 1)
}

func TestFriendRequest_Reject(t *testing.T) {
	ctx := context.Background()
	svc, _ := storagetest.New(t)
	a, b := models.Guest("a"), models.Guest("b")

	req := &models.FriendRequest{From: a, To: b}
	require.NoError(t, svc.CreateFriendRequest(ctx, req))
	pending, err := svc.ListPendingRequests(ctx, b)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	out, err := svc.AnswerFriendRequest(ctx, req.ID, b, false)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, out.Request.Status)
	assert.Nil(t, out.Friendship)

	// rejected requests do not block a new one
	require.NoError(t, svc.CreateFriendRequest(ctx, &models.FriendRequest{From: b, To: a}))
}

func TestUnfriendThenRefriendReusesRoom(t *testing.T) {
	ctx := context.Background()
	svc, _ := storagetest.New(t)
	a, b := models.Account("a"), models.Account("b")

	first := befriend(t, svc, a, b, nil)
	roomID := first.Room.ID

	m := &models.Message{UID: "a/1", RoomID: roomID, Sender: a, Content: "before"}
	_, err := svc.AppendMessage(ctx, m)
	require.NoError(t, err)

	friendship, room, err := svc.Unfriend(ctx, first.Friendship.ID, b)
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipUnfriended, friendship.Status)
	require.NotNil(t, room)
	assert.Equal(t, models.RoomTempClosed, room.State)

	_, _, err = svc.Unfriend(ctx, first.Friendship.ID, a)
	assert.ErrorIs(t, err, apperrors.ErrNotFriends)

	_, err = svc.AppendMessage(ctx, &models.Message{UID: "a/2", RoomID: roomID, Sender: a, Content: "hello?"})
	assert.ErrorIs(t, err, apperrors.ErrRoomClosed)

	second := befriend(t, svc, b, a, nil)
	assert.Equal(t, first.Friendship.ID, second.Friendship.ID, "one friendship per pair")
	assert.Equal(t, roomID, second.Room.ID)
	assert.True(t, second.RoomReopened)
	assert.Equal(t, models.RoomOpen, second.Room.State)
	assert.True(t, second.Room.IsActive)
	assert.Nil(t, second.Room.ClosedAt, "a reopened room carries no closure")
	assert.True(t, second.Room.ClosedBy.IsZero())

	history, err := svc.GetChatHistory(ctx, roomID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1, "history survives the round trip")
}

func TestRefriendAfterPermanentCloseCreatesNewRoom(t *testing.T) {
	ctx := context.Background()
	svc, _ := storagetest.New(t)
	a, b := models.Account("a"), models.Account("b")

	first := befriend(t, svc, a, b, nil)
	_, _, err := svc.Unfriend(ctx, first.Friendship.ID, a)
	require.NoError(t, err)

	// an operator closed it for good
	require.NoError(t, svc.DB.Model(&models.ChatRoom{}).
		Where("id = ?", first.Room.ID).
		Update("state", models.RoomClosed).Error)

	second := befriend(t, svc, a, b, nil)
	assert.True(t, second.RoomCreated)
	assert.NotEqual(t, first.Room.ID, second.Room.ID)
	require.NotNil(t, second.Friendship.ChatRoomID)
	assert.Equal(t, second.Room.ID, *second.Friendship.ChatRoomID)
}

func TestBlockCascade(t *testing.T) {
	ctx := context.Background()
	svc, _ := storagetest.New(t)
	a, b := models.Account("a"), models.Account("b")

	friends := befriend(t, svc, a, b, nil)
	random := matchedRoom(t, svc, a, b)
	pending := &models.FriendRequest{From: a, To: models.Account("c")}
	require.NoError(t, svc.CreateFriendRequest(ctx, pending))

	_, _, err := svc.Unfriend(ctx, friends.Friendship.ID, a)
	require.NoError(t, err)
	req := &models.FriendRequest{From: b, To: a}
	require.NoError(t, svc.CreateFriendRequest(ctx, req))

	out, err := svc.BlockPair(ctx, &models.Block{Blocker: a, Blocked: b, Reason: "rude"})
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Len(t, out.Closed, 2, "friend room and random room")
	require.Len(t, out.Rejected, 1)
	assert.Equal(t, req.ID, out.Rejected[0].ID)

	for _, id := range []string{friends.Room.ID, random.ID} {
		room, err := svc.GetRoomByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.RoomClosed, room.State)
	}

	blocked, err := svc.HasBlockBetween(ctx, b, a)
	require.NoError(t, err)
	assert.True(t, blocked, "a block is symmetric in effect")
	with, err := svc.BlockedWith(ctx, b)
	require.NoError(t, err)
	assert.True(t, with[a.Key()])

	err = svc.CreateFriendRequest(ctx, &models.FriendRequest{From: b, To: a})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	again, err := svc.BlockPair(ctx, &models.Block{Blocker: a, Blocked: b})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Empty(t, again.Closed)
	assert.Equal(t, out.Block.ID, again.Block.ID)

	stillPending, err := svc.ListPendingRequests(ctx, models.Account("c"))
	require.NoError(t, err)
	assert.Len(t, stillPending, 1, "requests to third parties are untouched")

	lifted, err := svc.DeleteBlock(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, lifted)
	blocked, err = svc.HasBlockBetween(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestBlock_UnfriendsActiveFriendship(t *testing.T) {
	ctx := context.Background()
	svc, _ := storagetest.New(t)
	a, b := models.Account("a"), models.Account("b")
	friends := befriend(t, svc, a, b, nil)

	out, err := svc.BlockPair(ctx, &models.Block{Blocker: b, Blocked: a})
	require.NoError(t, err)
	require.NotNil(t, out.Unfriended)
	assert.Equal(t, friends.Friendship.ID, out.Unfriended.ID)

	list, err := svc.ListFriendships(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.BlockPair(ctx, &models.Block{Blocker: a, Blocked: a})
	assert.ErrorIs(t, err, apperrors.ErrInvalidPair)
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	svc, _ := storagetest.New(t)
	a, b := models.Guest("a"), models.Guest("b")

	require.NoError(t, svc.SaveReport(ctx, &models.Report{Reporter: a, Reported: b, Category: "spam", Severity: 5}))
	require.NoError(t, svc.SaveReport(ctx, &models.Report{Reporter: b, Reported: a, Category: "hate", Severity: 50}))

	reports, err := svc.ListReports(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "new", reports[0].Status)
}

func TestBlock_VoidsMatchWaitingForRoom(t *testing.T) {
	ctx := context.Background()
	svc, _ := storagetest.New(t)
	a, b := models.Guest("a"), models.Guest("b")

	pairing, err := svc.CreatePairing(ctx, a, b)
	require.NoError(t, err)
	seated := matchedRoom(t, svc, models.Guest("c"), models.Guest("d"))

	out, err := svc.BlockPair(ctx, &models.Block{Blocker: a, Blocked: b})
	require.NoError(t, err)
	require.Len(t, out.Voided, 1)
	assert.Equal(t, pairing.ID, out.Voided[0].ID)
	assert.NotNil(t, out.Voided[0].VoidedAt)

	for _, actor := range []models.Participant{a, b} {
		_, _, err = svc.CreateRoomForPairing(ctx, pairing.ID, actor)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	}
	rooms, err := svc.GetActiveRoomsFor(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, rooms, "the blocked side never gets a room with the blocker")

	// lifting the block does not revive the match
	_, err = svc.DeleteBlock(ctx, a, b)
	require.NoError(t, err)
	_, _, err = svc.CreateRoomForPairing(ctx, pairing.ID, b)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	other, err := svc.GetRoomByID(ctx, seated.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomOpen, other.State, "other pairs are untouched")
}
