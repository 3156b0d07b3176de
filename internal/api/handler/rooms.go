package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type closeRoomRequest struct {
	Temporary bool `json:"temporary"`
}

type sendMessageRequest struct {
	Content   string `json:"content" binding:"required"`
	ReplyToID *uint  `json:"reply_to_id"`
	ClientID  string `json:"client_id" binding:"max=64"`
}

type historyQuery struct {
	AfterID uint `form:"after_id"`
	Limit   int  `form:"limit" binding:"gte=0"`
}

// CreateRoomForPairing is called by both sides after a match; they get the
// same room.
func (h *Handler) CreateRoomForPairing(c *gin.Context) {
	room, err := h.Rooms.CreateForPairing(c.Request.Context(), c.Param("id"), currentParticipant(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) CloseRoom(c *gin.Context) {
	var req closeRoomRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.bindError(c, err)
			return
		}
	}
	room, err := h.Rooms.Close(c.Request.Context(), c.Param("id"), currentParticipant(c), req.Temporary)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) ReopenRoom(c *gin.Context) {
	room, err := h.Rooms.Reopen(c.Request.Context(), c.Param("id"), currentParticipant(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) RoomState(c *gin.Context) {
	state, err := h.Rooms.State(c.Request.Context(), c.Param("id"), currentParticipant(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": c.Param("id"), "state": state})
}

func (h *Handler) History(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.bindError(c, err)
		return
	}
	msgs, err := h.Messages.History(c.Request.Context(), c.Param("id"), currentParticipant(c), q.AfterID, q.Limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	msg, err := h.Messages.Send(c.Request.Context(), c.Param("id"), currentParticipant(c), req.Content, req.ReplyToID, req.ClientID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
