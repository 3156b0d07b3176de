package handler

import (
	"github.com/gin-gonic/gin"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/localization"
	"strangerchat/backend/internal/relationship"
)

// Handler містить посилання на сервіси, які обслуговують HTTP та WebSocket
type Handler struct {
	Hub           *chathub.ManagerService
	Queue         *chathub.QueueService
	Matcher       *chathub.MatcherService
	Observer      *chathub.MatchObserver
	Rooms         *chathub.RoomService
	Messages      *chathub.MessageService
	Relationships *relationship.Service

	Auth      *Auth
	Localizer *localization.Localizer

	// AllowedOrigins limits which browser origins may open a socket; "*" allows any.
	AllowedOrigins []string
}

// Register mounts every route on r. Everything except guest sign-in needs a
// participant token.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/auth/guest", h.GetGuestToken)
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group("/", h.Auth.RequireParticipant())

	api.PUT("/profile", h.SaveProfile)

	api.POST("/queue", h.EnterQueue)
	api.DELETE("/queue", h.LeaveQueue)
	api.GET("/queue/position", h.QueuePosition)

	api.POST("/match/attempt", h.AttemptMatch)
	api.GET("/match/wait", h.WaitMatch)

	api.POST("/pairings/:id/room", h.CreateRoomForPairing)

	api.POST("/rooms/:id/close", h.CloseRoom)
	api.POST("/rooms/:id/reopen", h.ReopenRoom)
	api.GET("/rooms/:id/state", h.RoomState)
	api.GET("/rooms/:id/messages", h.History)
	api.POST("/rooms/:id/messages", h.SendMessage)

	api.POST("/friends/requests", h.SendFriendRequest)
	api.POST("/friends/requests/:id/respond", h.RespondToRequest)
	api.GET("/friends/requests", h.ListPendingRequests)
	api.GET("/friends", h.ListFriends)
	api.DELETE("/friends/:id", h.Unfriend)
	api.POST("/blocks", h.Block)
	api.POST("/reports", h.Report)
}
