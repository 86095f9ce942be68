package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pipiwyoux/midinaiver2/internal/config"
	"github.com/pipiwyoux/midinaiver2/internal/router"
)

// Server bundles the configured echo instance and its routes.
type Server struct {
	Echo *echo.Echo
}

// New constructs the HTTP server: a health probe plus the WebSocket gateway
// that carries the whole assistant protocol.
func New(cfg config.Config, backend router.Backend) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	g := &gateway{cfg: cfg, backend: backend}
	e.GET("/ws", g.handle)

	return &Server{Echo: e}
}
