package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/logger"
	"strangerchat/backend/internal/models"
)

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin застосовує той самий список доменів, що й CORS.
// Запит без Origin приходить не з браузера і пропускається.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.AllowedOrigins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeWebSocket оновлює HTTP-з'єднання до WebSocket
func (h *Handler) ServeWebSocket(c *gin.Context) {
	// 1. Учасник з JWT (заголовок або ?token=)
	p, ok := h.Auth.authenticate(c)
	if !ok {
		return
	}

	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		logger.Warn("websocket upgrade failed", "participant", p.Key(), "err", err)
		return
	}

	// 2. Створення клієнта; pong від браузера продовжує життя запису в черзі
	client := chathub.NewWebSocketClient(h.Hub, conn, p)
	client.OnPong = h.heartbeat

	// 3. Реєстрація клієнта в Chat Hub
	select {
	case h.Hub.RegisterCh <- client:
	case <-h.Hub.Done():
		conn.Close()
		return
	}

	client.Run()
}

func (h *Handler) heartbeat(p models.Participant) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := h.Queue.Heartbeat(ctx, p); err != nil {
		logger.Debug("queue heartbeat failed", "participant", p.Key(), "err", err)
	}
}
