// Package handler exposes the HTTP surface of the service as thin Echo
// handlers around the transactional core in internal/service.
package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/arcanalabs/piminder/internal/service"
)

// rotatedTokenHeader carries the replacement bearer token back to the
// caller after a successful sliding-window rotation.
const rotatedTokenHeader = "X-Rotated-Token"

// errorBody is the uniform error envelope. Fields is only present on
// validation failures.
type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// respondError maps core errors onto HTTP statuses. Authorization
// failures are uniform and carry no detail about which check failed;
// store failures never expose internals.
func respondError(c echo.Context, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorBody{Error: "validation_failed", Fields: verr.Fields})
	case errors.Is(err, service.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorBody{Error: "not_found", Message: "No such record exists."})
	case errors.Is(err, service.ErrAlreadyProcessed):
		return c.JSON(http.StatusConflict, errorBody{Error: "already_processed", Message: "Message was already acknowledged."})
	case errors.Is(err, service.ErrUsernameExists):
		return c.JSON(http.StatusConflict, errorBody{Error: "validation_failed", Fields: map[string]string{"username": "Username already exists."}})
	default:
		log.Printf("handler: store error: %v", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "store_unavailable", Message: "Internal server error."})
	}
}

// bearerFromHeader extracts a bearer token from the Authorization
// header. The empty string stands for "no credential" and fails
// validation downstream like any other bad token.
func bearerFromHeader(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
