package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists route paths that bypass authentication.
var publicPaths = map[string]bool{
	"/health":              true,
	"/api/v1/auth/sign-in": true,
}

// AuthSkipper returns true for requests whose path should skip
// authentication. The websocket endpoint authenticates with a query token
// instead of a header and is skipped here as well.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()] || c.Path() == "/api/v1/ws"
}

// IsPublicPath reports whether the given path is reachable without a session.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
