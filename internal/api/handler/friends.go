package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"strangerchat/backend/internal/models"
)

type friendRequestBody struct {
	To      models.Participant `json:"to"`
	RoomID  string             `json:"room_id"`
	Message string             `json:"message"`
}

type respondBody struct {
	Accept *bool `json:"accept" binding:"required"`
}

type blockBody struct {
	Participant models.Participant `json:"participant"`
	Reason      string             `json:"reason"`
}

type reportBody struct {
	Participant models.Participant `json:"participant"`
	Category    string             `json:"category" binding:"required"`
	Reason      string             `json:"reason"`
	RoomID      string             `json:"room_id"`
}

func (h *Handler) SendFriendRequest(c *gin.Context) {
	var body friendRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.bindError(c, err)
		return
	}
	req, err := h.Relationships.SendFriendRequest(c.Request.Context(), currentParticipant(c), body.To, body.RoomID, body.Message)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *Handler) RespondToRequest(c *gin.Context) {
	var body respondBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.bindError(c, err)
		return
	}
	out, err := h.Relationships.RespondToRequest(c.Request.Context(), c.Param("id"), currentParticipant(c), *body.Accept)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"request":    out.Request,
		"friendship": out.Friendship,
		"room":       out.Room,
	})
}

func (h *Handler) ListPendingRequests(c *gin.Context) {
	reqs, err := h.Relationships.ListPendingRequests(c.Request.Context(), currentParticipant(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (h *Handler) ListFriends(c *gin.Context) {
	friends, err := h.Relationships.ListFriends(c.Request.Context(), currentParticipant(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

func (h *Handler) Unfriend(c *gin.Context) {
	friendship, err := h.Relationships.Unfriend(c.Request.Context(), c.Param("id"), currentParticipant(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, friendship)
}

func (h *Handler) Block(c *gin.Context) {
	var body blockBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.bindError(c, err)
		return
	}
	out, err := h.Relationships.Block(c.Request.Context(), currentParticipant(c), body.Participant, body.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"block": out.Block, "closed_rooms": out.Closed})
}

func (h *Handler) Report(c *gin.Context) {
	var body reportBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.bindError(c, err)
		return
	}
	report, err := h.Relationships.Report(c.Request.Context(), currentParticipant(c), body.Participant, body.Category, body.Reason, body.RoomID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}
