package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/arcanalabs/piminder/internal/handler" // import the handlers that implement business logic
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the session endpoints.  Both operate on credentials
// carried in the Authorization header (HTTP Basic for login, the refresh
// token for refresh), so no middleware is applied here; per-request token
// validation happens inside the service gate where it can share the
// database transaction with the rest of the request.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/v1/auth")
	// Exchange Basic credentials for a bearer/refresh token pair.
	g.POST("/login", a.Login)
	// Rotate a refresh token and mint a fresh bearer token.
	g.POST("/refresh", a.Refresh)
}

// RegisterMessages registers the message ingestion and monitoring endpoints.
// The ingest middleware (rate limiting) applies only to the POST routes so
// that a noisy producer cannot starve monitors of reads.
func RegisterMessages(e *echo.Echo, m *handler.MessageHandler, ingest ...echo.MiddlewareFunc) {
	g := e.Group("/api/messages")
	// Monitors list every stored message, newest raise first.
	g.GET("", m.List)
	// Producers raise a message; duplicates are allowed on this route.
	g.POST("", m.Create, ingest...)
	// Producers raise a deduplicated message keyed on (name, message).
	g.POST("/unique", m.CreateUnique, ingest...)
	// Monitors acknowledge a message, flipping its read flag exactly once.
	g.PATCH("", m.Acknowledge)
	// Monitors delete a handled message outright.
	g.DELETE("", m.Delete)
}

// RegisterAdmin registers the administrative surface: user management and
// client grant management.  Every handler here runs behind the capability
// checks in the service gate (user admin, grant) rather than route
// middleware, so a single token read covers both authentication and
// authorization.
func RegisterAdmin(e *echo.Echo, u *handler.UserHandler, c *handler.ClientHandler) {
	users := e.Group("/api/users")
	users.GET("", u.List)
	users.POST("", u.Create)
	users.PATCH("", u.Patch)
	// Deactivation clears the active bit; the row and its audit trail survive.
	users.DELETE("", u.Deactivate)

	clients := e.Group("/api/clients")
	clients.GET("", c.List)
	// Creation returns the one-time token pair for the new client grant.
	clients.POST("", c.Create)
	// Revocation expires both token slots immediately.
	clients.DELETE("", c.Revoke)
}
