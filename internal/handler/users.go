package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arcanalabs/piminder/internal/auth"
	"github.com/arcanalabs/piminder/internal/model"
	"github.com/arcanalabs/piminder/internal/service"
)

// UserHandler exposes the administrative user surface. Every endpoint
// requires the user-admin capability.
type UserHandler struct {
	Gate       *service.Gate
	BcryptCost int
}

func NewUserHandler(g *service.Gate, bcryptCost int) *UserHandler {
	return &UserHandler{Gate: g, BcryptCost: bcryptCost}
}

// ----- DTOs -----

type userReq struct {
	Username        string            `json:"username"`
	Password        string            `json:"password"`
	Memo            *string           `json:"memo"`
	PermissionLevel string            `json:"permissionLevel"`
	Permissions     *auth.Permissions `json:"permissions"`
}

type usernameReq struct {
	Username string `json:"username"`
}

type userJSON struct {
	Username        string           `json:"username"`
	Memo            string           `json:"memo"`
	Permissions     auth.Permissions `json:"permissions"`
	PermissionLevel string           `json:"permissionLevel"`
	LastActive      string           `json:"lastActive,omitempty"`
}

func toUserJSON(u model.User) userJSON {
	perms := auth.DecodePermissions(u.Access)
	out := userJSON{
		Username:        u.Username,
		Memo:            u.Memo,
		Permissions:     perms,
		PermissionLevel: auth.LevelName(perms.Level()),
	}
	if !u.LastActive.IsZero() {
		out.LastActive = u.LastActive.UTC().Format(model.TimestampLayout)
	}
	return out
}

func (h *UserHandler) userInput(req userReq) service.UserInput {
	in := service.UserInput{
		Username:        req.Username,
		Password:        req.Password,
		PermissionLevel: req.PermissionLevel,
		Permissions:     req.Permissions,
	}
	if req.Memo != nil {
		in.Memo = *req.Memo
	}
	return in
}

// List returns all users without their password hashes.
func (h *UserHandler) List(c echo.Context) error {
	result, rotated, err := h.Gate.WithCapability(c.Request().Context(), bearerFromHeader(c), auth.CapAdmin,
		func(ctx context.Context, tx service.Tx) (any, error) {
			users, err := service.ListUsers(ctx, tx.Users())
			if err != nil {
				return nil, err
			}
			out := make([]userJSON, 0, len(users))
			for _, u := range users {
				out = append(out, toUserJSON(u))
			}
			return out, nil
		})
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(rotatedTokenHeader, rotated)
	return c.JSON(http.StatusOK, result)
}

// Create registers a new user.
func (h *UserHandler) Create(c echo.Context) error {
	var req userReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "validation_failed", Message: "invalid body"})
	}
	result, rotated, err := h.Gate.WithCapability(c.Request().Context(), bearerFromHeader(c), auth.CapAdmin,
		func(ctx context.Context, tx service.Tx) (any, error) {
			u, err := service.CreateUser(ctx, tx.Users(), h.userInput(req), h.BcryptCost)
			if err != nil {
				return nil, err
			}
			return toUserJSON(u), nil
		})
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(rotatedTokenHeader, rotated)
	return c.JSON(http.StatusCreated, result)
}

// Patch updates an existing user's password, memo, or permissions.
func (h *UserHandler) Patch(c echo.Context) error {
	var req userReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "validation_failed", Message: "invalid body"})
	}
	result, rotated, err := h.Gate.WithCapability(c.Request().Context(), bearerFromHeader(c), auth.CapAdmin,
		func(ctx context.Context, tx service.Tx) (any, error) {
			u, err := service.PatchUser(ctx, tx.Users(), req.Username, h.userInput(req), req.Memo, h.BcryptCost)
			if err != nil {
				return nil, err
			}
			return toUserJSON(u), nil
		})
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(rotatedTokenHeader, rotated)
	return c.JSON(http.StatusOK, result)
}

// Deactivate clears a user's active bit. The row is never deleted.
func (h *UserHandler) Deactivate(c echo.Context) error {
	var req usernameReq
	if err := c.Bind(&req); err != nil || req.Username == "" {
		return c.JSON(http.StatusBadRequest, errorBody{
			Error:  "validation_failed",
			Fields: map[string]string{"username": "Field missing from request"},
		})
	}
	_, rotated, err := h.Gate.WithCapability(c.Request().Context(), bearerFromHeader(c), auth.CapAdmin,
		func(ctx context.Context, tx service.Tx) (any, error) {
			return nil, service.DeactivateUser(ctx, tx.Users(), req.Username)
		})
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(rotatedTokenHeader, rotated)
	return c.NoContent(http.StatusNoContent)
}
