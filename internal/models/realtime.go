package models

// EventType names what happened; clients switch on it.
type EventType string

const (
	EventMatchFound        EventType = "match_found"
	EventMatchCancelled    EventType = "match_cancelled"
	EventRoomCreated       EventType = "room_created"
	EventMessageNew        EventType = "message_new"
	EventRoomClosed        EventType = "room_closed"
	EventRoomTempClosed    EventType = "room_temp_closed"
	EventRoomReopened      EventType = "room_reopened"
	EventFriendRequest     EventType = "friend_request"
	EventFriendRequestDone EventType = "friend_request_answered"
	EventUnfriended        EventType = "unfriended"
	EventSessionRestored   EventType = "session_restored"
	EventCommandError      EventType = "error"
)

// Event is the realtime payload fanned out to the two occupants.
type Event struct {
	Type       EventType      `json:"type"`
	RoomID     string         `json:"room_id,omitempty"`
	Pairing    *Pairing       `json:"pairing,omitempty"`
	Room       *ChatRoom      `json:"room,omitempty"`
	Message    *Message       `json:"message,omitempty"`
	Request    *FriendRequest `json:"request,omitempty"`
	Friendship *Friendship    `json:"friendship,omitempty"`
	Error      *EventError    `json:"error,omitempty"`
}

// EventError reports a failed client command back over the socket.
type EventError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	// ClientID echoes the command's client id so the UI can mark it failed.
	ClientID string `json:"client_id,omitempty"`
}

// Command is what a client sends over the socket.
type Command struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id"`
	Content   string `json:"content,omitempty"`
	ReplyToID *uint  `json:"reply_to_id,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
}

// CommandSend posts a chat message; the only command clients issue today.
const CommandSend = "send"
