package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arcanalabs/piminder/internal/auth"
	"github.com/arcanalabs/piminder/internal/model"
	"github.com/arcanalabs/piminder/internal/service"
)

// ClientHandler manages machine producer identities. Every endpoint
// requires the grant capability.
type ClientHandler struct {
	Gate *service.Gate
}

func NewClientHandler(g *service.Gate) *ClientHandler { return &ClientHandler{Gate: g} }

// ----- DTOs -----

type clientReq struct {
	Name        string            `json:"name"`
	Memo        string            `json:"memo"`
	Permissions *auth.Permissions `json:"permissions"`
}

type clientIDReq struct {
	ClientID string `json:"clientId"`
}

type clientJSON struct {
	ClientID    string           `json:"clientId"`
	Name        string           `json:"name"`
	Memo        string           `json:"memo"`
	Permissions auth.Permissions `json:"permissions"`
}

// createdClientJSON carries the one-time token pair alongside the new
// grant; the keys behind it are never recoverable later, only rotated.
type createdClientJSON struct {
	clientJSON
	Tokens tokenPairResp `json:"tokens"`
}

func toClientJSON(g model.ClientGrant) clientJSON {
	return clientJSON{
		ClientID:    g.ID,
		Name:        g.Name,
		Memo:        g.Memo,
		Permissions: auth.DecodePermissions(g.Access),
	}
}

// List returns all client grants.
func (h *ClientHandler) List(c echo.Context) error {
	result, rotated, err := h.Gate.WithCapability(c.Request().Context(), bearerFromHeader(c), auth.CapGrant,
		func(ctx context.Context, tx service.Tx) (any, error) {
			grants, err := service.ListClients(ctx, tx.Clients())
			if err != nil {
				return nil, err
			}
			out := make([]clientJSON, 0, len(grants))
			for _, g := range grants {
				out = append(out, toClientJSON(g))
			}
			return out, nil
		})
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(rotatedTokenHeader, rotated)
	return c.JSON(http.StatusOK, result)
}

// Create registers a client grant and issues its initial token pair in
// the same transaction.
func (h *ClientHandler) Create(c echo.Context) error {
	var req clientReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "validation_failed", Message: "invalid body"})
	}
	result, rotated, err := h.Gate.WithCapability(c.Request().Context(), bearerFromHeader(c), auth.CapGrant,
		func(ctx context.Context, tx service.Tx) (any, error) {
			grant, err := service.CreateClient(ctx, tx.Clients(), service.ClientInput{
				Name:        req.Name,
				Memo:        req.Memo,
				Permissions: req.Permissions,
			})
			if err != nil {
				return nil, err
			}
			pair, err := h.Gate.IssuePair(ctx, tx, auth.AudienceClient, grant.ID)
			if err != nil {
				return nil, err
			}
			return createdClientJSON{clientJSON: toClientJSON(grant), Tokens: toPairResp(pair)}, nil
		})
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(rotatedTokenHeader, rotated)
	return c.JSON(http.StatusCreated, result)
}

// Revoke expires both of a grant's token slots immediately. The row
// stays for audit; a revoked client can be reissued by rotation of an
// admin-created replacement grant.
func (h *ClientHandler) Revoke(c echo.Context) error {
	var req clientIDReq
	if err := c.Bind(&req); err != nil || req.ClientID == "" {
		return c.JSON(http.StatusBadRequest, errorBody{
			Error:  "validation_failed",
			Fields: map[string]string{"clientId": "Field missing from request"},
		})
	}
	_, rotated, err := h.Gate.WithCapability(c.Request().Context(), bearerFromHeader(c), auth.CapGrant,
		func(ctx context.Context, tx service.Tx) (any, error) {
			return nil, service.RevokeClient(ctx, tx.Clients(), req.ClientID)
		})
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(rotatedTokenHeader, rotated)
	return c.NoContent(http.StatusNoContent)
}
