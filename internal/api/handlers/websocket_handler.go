package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/analysis"
	"github.com/BroWo1/factcheck-backend/internal/storage/models"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
)

// Subscriber hands out per-session event streams.
type Subscriber interface {
	Subscribe(sessionID string) (<-chan analysis.Event, func())
}

type WebSocketHandler struct {
	store SessionStore
	hub   Subscriber
}

func NewWebSocketHandler(store SessionStore, hub Subscriber) *WebSocketHandler {
	return &WebSocketHandler{
		store: store,
		hub:   hub,
	}
}

type clientMessage struct {
	Type string `json:"type"`
}

// Upgrade rejects plain HTTP requests on websocket routes.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	sessionID := c.Params("id")
	log := logger.ForSession(sessionID)
	log.Info("WebSocket connection established")

	defer func() {
		c.Close()
		log.Info("WebSocket connection closed")
	}()

	events, unsubscribe := h.hub.Subscribe(sessionID)
	defer unsubscribe()

	if err := h.sendStatus(c, "initial_status", sessionID); err != nil {
		log.Warn("Failed to send initial status", zap.Error(err))
		return
	}

	incoming := make(chan clientMessage)
	readDone := make(chan struct{})
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		defer close(readDone)
		for {
			var msg clientMessage
			if err := c.ReadJSON(&msg); err != nil {
				log.Debug("WebSocket read ended", zap.Error(err))
				return
			}
			select {
			case incoming <- msg:
			case <-quit:
				return
			}
		}
	}()

	for {
		select {
		case <-readDone:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := c.WriteJSON(ev); err != nil {
				log.Warn("Failed to forward event", zap.Error(err))
				return
			}
		case msg := <-incoming:
			if err := h.handleMessage(c, sessionID, msg); err != nil {
				log.Warn("Failed to answer message", zap.String("type", msg.Type), zap.Error(err))
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleMessage(c *websocket.Conn, sessionID string, msg clientMessage) error {
	switch msg.Type {
	case "get_status":
		return h.sendStatus(c, "status_response", sessionID)
	case "ping":
		return c.WriteJSON(fiber.Map{
			"type":      "pong",
			"timestamp": time.Now().Unix(),
		})
	}
	return h.sendError(c, "Unknown message type")
}

func (h *WebSocketHandler) sendStatus(c *websocket.Conn, msgType, sessionID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	view, err := LoadStatusView(ctx, h.store, sessionID)
	if errors.Is(err, models.ErrNotFound) {
		return h.sendError(c, "Session not found")
	}
	if err != nil {
		return err
	}

	return c.WriteJSON(fiber.Map{
		"type": msgType,
		"data": view,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) error {
	return c.WriteJSON(fiber.Map{
		"type":  "error",
		"error": errorMsg,
	})
}
