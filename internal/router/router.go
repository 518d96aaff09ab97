package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-marketplace/internal/handler"
	"github.com/iliyamo/campus-marketplace/internal/middleware"
)

// RegisterRoutes registers the liveness and readiness endpoints. Neither
// requires authentication.
func RegisterRoutes(e *echo.Echo, deps map[string]handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(deps))
}

// RegisterAuth registers the account endpoints under /auth/v1. Sign-up,
// verification, token grants and recovery are public; logout and the user
// resource require a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/auth/v1")
	g.POST("/signup", a.SignUp)
	g.GET("/verify", a.Verify)
	g.POST("/token", a.Token)
	g.POST("/recover", a.Recover)

	jwt := middleware.JWTAuth(jwtSecret)
	g.POST("/logout", a.Logout, jwt)
	g.GET("/user", a.GetUser, jwt)
	g.PUT("/user", a.UpdateUser, jwt)
}

// RegisterListings registers the listings table under /rest/v1. Every route
// requires a token. Reads go through the feed cache and successful writes
// invalidate it; a nil cache disables both.
func RegisterListings(e *echo.Echo, h *handler.ListingHandler, jwtSecret string, cache *middleware.FeedCache) {
	g := e.Group("/rest/v1/listings", middleware.JWTAuth(jwtSecret))
	g.GET("", h.List, cache.Read())

	inv := cache.Invalidate()
	g.POST("", h.Create, inv)
	g.PATCH("/:id", h.Patch, inv)
	g.DELETE("/:id", h.Delete, inv)
}

// RegisterStorage registers object upload (token required) and public
// download.
func RegisterStorage(e *echo.Echo, s *handler.StorageHandler, jwtSecret string) {
	e.POST("/storage/v1/object/:bucket/*", s.Upload, middleware.JWTAuth(jwtSecret))
	e.GET("/storage/v1/object/public/:bucket/*", s.Download)
}
