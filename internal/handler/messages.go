package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arcanalabs/piminder/internal/auth"
	"github.com/arcanalabs/piminder/internal/model"
	"github.com/arcanalabs/piminder/internal/queue"
	"github.com/arcanalabs/piminder/internal/service"
)

// MessageHandler bundles dependencies for the message endpoints.
// Publish, when set, fans successful raises out to the event queue; it
// runs after commit and its failures never affect the response.
type MessageHandler struct {
	Gate    *service.Gate
	Publish func(ctx context.Context, ev queue.MessageRaisedEvent)
}

func NewMessageHandler(g *service.Gate, publish func(context.Context, queue.MessageRaisedEvent)) *MessageHandler {
	return &MessageHandler{Gate: g, Publish: publish}
}

// ----- DTOs -----

type messageReq struct {
	Name       string `json:"name"`
	Message    string `json:"message"`
	ErrorLevel string `json:"errorlevel"`
	Timestamp  string `json:"timestamp"`
}

type uniqueMessageReq struct {
	messageReq
	UpdateTimestamp bool `json:"updateTimestamp"`
}

type messageIDReq struct {
	MessageID string `json:"messageId"`
}

type messageJSON struct {
	MessageID  string `json:"messageId"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	ErrorLevel string `json:"errorLevel"`
	Timestamp  string `json:"timestamp"`
	Read       bool   `json:"read"`
}

func toMessageJSON(m model.Message) messageJSON {
	return messageJSON{
		MessageID:  m.ID,
		Name:       m.Name,
		Message:    m.Body,
		ErrorLevel: string(m.ErrorLevel),
		Timestamp:  m.TimeRaised.UTC().Format(model.TimestampLayout),
		Read:       m.Read,
	}
}

func (h *MessageHandler) input(req messageReq) service.MessageInput {
	return service.MessageInput{
		Name:       req.Name,
		Body:       req.Message,
		ErrorLevel: req.ErrorLevel,
		Timestamp:  req.Timestamp,
	}
}

func (h *MessageHandler) publishRaised(c echo.Context, m model.Message, repeat bool) {
	if h.Publish == nil {
		return
	}
	h.Publish(c.Request().Context(), queue.MessageRaisedEvent{
		MessageID:  m.ID,
		Name:       m.Name,
		Message:    m.Body,
		ErrorLevel: string(m.ErrorLevel),
		Timestamp:  m.TimeRaised.UTC().Format(model.TimestampLayout),
		Repeat:     repeat,
	})
}

// List returns every message, newest first. Monitor level required.
func (h *MessageHandler) List(c echo.Context) error {
	result, rotated, err := h.Gate.WithLevel(c.Request().Context(), bearerFromHeader(c), auth.LevelMonitor,
		func(ctx context.Context, tx service.Tx) (any, error) {
			messages, err := service.ListMessages(ctx, tx.Messages())
			if err != nil {
				return nil, err
			}
			out := make([]messageJSON, 0, len(messages))
			for _, m := range messages {
				out = append(out, toMessageJSON(m))
			}
			return out, nil
		})
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(rotatedTokenHeader, rotated)
	return c.JSON(http.StatusOK, result)
}

// Create registers a new message. Duplicates are allowed on this path.
// Service level suffices so that plain producers can post.
func (h *MessageHandler) Create(c echo.Context) error {
	var req messageReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "validation_failed", Message: "invalid body"})
	}
	result, rotated, err := h.Gate.WithLevel(c.Request().Context(), bearerFromHeader(c), auth.LevelService,
		func(ctx context.Context, tx service.Tx) (any, error) {
			return service.CreateMessage(ctx, tx.Messages(), h.input(req))
		})
	if err != nil {
		return respondError(c, err)
	}
	m := result.(model.Message)
	h.publishRaised(c, m, false)
	c.Response().Header().Set(rotatedTokenHeader, rotated)
	return c.JSON(http.StatusOK, toMessageJSON(m))
}

// CreateUnique is the idempotent create-or-update path used by
// high-frequency producers. At most one row exists per (name, message)
// key; a repeat clears the read flag and optionally refreshes the
// timestamp.
func (h *MessageHandler) CreateUnique(c echo.Context) error {
	var req uniqueMessageReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "validation_failed", Message: "invalid body"})
	}
	result, rotated, err := h.Gate.WithLevel(c.Request().Context(), bearerFromHeader(c), auth.LevelService,
		func(ctx context.Context, tx service.Tx) (any, error) {
			return service.UpsertMessage(ctx, tx.Messages(), h.input(req.messageReq), req.UpdateTimestamp)
		})
	if err != nil {
		return respondError(c, err)
	}
	m := result.(model.Message)
	h.publishRaised(c, m, true)
	c.Response().Header().Set(rotatedTokenHeader, rotated)
	return c.JSON(http.StatusOK, toMessageJSON(m))
}

// Acknowledge marks a message as read. Re-acknowledging is a conflict
// and leaves the row untouched.
func (h *MessageHandler) Acknowledge(c echo.Context) error {
	var req messageIDReq
	if err := c.Bind(&req); err != nil || req.MessageID == "" {
		return c.JSON(http.StatusBadRequest, errorBody{
			Error:  "validation_failed",
			Fields: map[string]string{"messageId": "Field missing from request"},
		})
	}
	_, rotated, err := h.Gate.WithLevel(c.Request().Context(), bearerFromHeader(c), auth.LevelMonitor,
		func(ctx context.Context, tx service.Tx) (any, error) {
			return nil, service.AcknowledgeMessage(ctx, tx.Messages(), req.MessageID)
		})
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(rotatedTokenHeader, rotated)
	return c.JSON(http.StatusOK, echo.Map{"messageId": req.MessageID, "read": true})
}

// Delete removes a message permanently.
func (h *MessageHandler) Delete(c echo.Context) error {
	var req messageIDReq
	if err := c.Bind(&req); err != nil || req.MessageID == "" {
		return c.JSON(http.StatusBadRequest, errorBody{
			Error:  "validation_failed",
			Fields: map[string]string{"messageId": "Field missing from request"},
		})
	}
	_, rotated, err := h.Gate.WithLevel(c.Request().Context(), bearerFromHeader(c), auth.LevelMonitor,
		func(ctx context.Context, tx service.Tx) (any, error) {
			return nil, service.DeleteMessage(ctx, tx.Messages(), req.MessageID)
		})
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(rotatedTokenHeader, rotated)
	return c.NoContent(http.StatusNoContent)
}
