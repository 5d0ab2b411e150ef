package handler

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/arcanalabs/piminder/internal/model"
	"github.com/arcanalabs/piminder/internal/service"
)

// AuthHandler exposes the session endpoints: Basic-credential login and
// refresh-token exchange.
type AuthHandler struct {
	Gate *service.Gate
}

func NewAuthHandler(g *service.Gate) *AuthHandler { return &AuthHandler{Gate: g} }

type tokenPart struct {
	Token   string `json:"token"`
	Expires string `json:"expires"`
}

type tokenPairResp struct {
	Bearer  tokenPart `json:"bearer"`
	Refresh tokenPart `json:"refresh"`
}

func toPairResp(pair service.TokenPair) tokenPairResp {
	return tokenPairResp{
		Bearer: tokenPart{
			Token:   pair.Bearer,
			Expires: pair.BearerExpiry.UTC().Format(model.TimestampLayout),
		},
		Refresh: tokenPart{
			Token:   pair.Refresh,
			Expires: pair.RefreshExpiry.UTC().Format(model.TimestampLayout),
		},
	}
}

// basicCredentials splits an Authorization header of the Basic scheme
// into username and password. Never assume a sane input: a missing
// scheme, bad base64, or a colonless payload all report !ok.
func basicCredentials(header string) (username, password string, ok bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Basic") {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", "", false
	}
	pair := strings.SplitN(string(decoded), ":", 2)
	if len(pair) != 2 {
		return "", "", false
	}
	return pair[0], pair[1], true
}

// Login verifies Basic credentials and issues a fresh token pair. Any
// failure answers the same uniform 401.
func (h *AuthHandler) Login(c echo.Context) error {
	username, password, ok := basicCredentials(c.Request().Header.Get("Authorization"))
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	}
	pair, err := h.Gate.Login(c.Request().Context(), username, password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toPairResp(pair))
}

// Refresh exchanges a valid refresh token (presented as the bearer
// credential) for a new pair. The presented token is invalidated by the
// rotation whether or not the client ever uses the replacement.
func (h *AuthHandler) Refresh(c echo.Context) error {
	token := bearerFromHeader(c)
	pair, err := h.Gate.Refresh(c.Request().Context(), token)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toPairResp(pair))
}

// Health is the liveness endpoint for load balancers and monitors.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
