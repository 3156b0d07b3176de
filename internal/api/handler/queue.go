package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"strangerchat/backend/internal/models"
)

const (
	defaultWait = 25 * time.Second
	maxWait     = 60 * time.Second
)

type profileRequest struct {
	Gender    string   `json:"gender"`
	Age       int      `json:"age" binding:"gte=0,lte=130"`
	Country   string   `json:"country"`
	Interests []string `json:"interests"`
}

type enterQueueRequest struct {
	Filters        models.Filters `json:"filters"`
	ConnectionHint string         `json:"connection_hint"`
}

// SaveProfile оновлює риси, за якими інших фільтрують
func (h *Handler) SaveProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	profile := &models.Profile{
		Participant: currentParticipant(c),
		Gender:      req.Gender,
		Age:         req.Age,
		Country:     req.Country,
		Interests:   req.Interests,
	}
	if err := h.Queue.SaveProfile(c.Request.Context(), profile); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"traits": profile.Traits()})
}

func (h *Handler) EnterQueue(c *gin.Context) {
	var req enterQueueRequest
	// порожнє тіло означає "без фільтрів"
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.bindError(c, err)
			return
		}
	}
	p := currentParticipant(c)
	entryID, err := h.Queue.Enter(c.Request.Context(), p, req.Filters, req.ConnectionHint)
	if err != nil {
		h.respondError(c, err)
		return
	}
	pos, err := h.Queue.Position(c.Request.Context(), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"entry_id": entryID, "position": pos})
}

func (h *Handler) LeaveQueue(c *gin.Context) {
	if err := h.Queue.Leave(c.Request.Context(), currentParticipant(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) QueuePosition(c *gin.Context) {
	pos, err := h.Queue.Position(c.Request.Context(), currentParticipant(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"queued": pos != nil, "position": pos})
}

// AttemptMatch runs one resolver pass for the caller. A nil pairing means
// keep waiting.
func (h *Handler) AttemptMatch(c *gin.Context) {
	pairing, err := h.Matcher.AttemptMatch(c.Request.Context(), currentParticipant(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matched": pairing != nil, "pairing": pairing})
}

// WaitMatch is the long-poll form of AttemptMatch. It answers 204 when
// ?timeout= passes without a match.
func (h *Handler) WaitMatch(c *gin.Context) {
	wait := defaultWait
	if v := c.Query("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			h.bindError(c, errors.New("timeout must be a positive duration"))
			return
		}
		wait = min(d, maxWait)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
	defer cancel()
	pairing, err := h.Observer.Wait(ctx, currentParticipant(c))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.Status(http.StatusNoContent)
			return
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matched": true, "pairing": pairing})
}
