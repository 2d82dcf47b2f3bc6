package api

import (
	"context"
	"fmt"

	"github.com/cortex-x/go-smartcard-bridge/internal/bridge"
	"github.com/cortex-x/go-smartcard-bridge/internal/config"
	"github.com/cortex-x/go-smartcard-bridge/internal/infra/websocket"
	"github.com/cortex-x/go-smartcard-bridge/internal/logging"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	echo    *echo.Echo
	config  *config.Config
	hub     *websocket.Hub
	handler *Handler
	logger  logging.Logger
}

func NewServer(cfg *config.Config, endpoint *bridge.Endpoint, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	hub := websocket.NewHub(endpoint, logger, cfg.WebSocket.SendBuffer)
	handler := NewHandler(endpoint, hub, logger)

	// Routes
	e.GET("/health", handler.HealthCheck)
	e.GET("/state", handler.GetState)
	e.GET("/ws", handler.WebSocketHandler)
	e.GET("/events/:channel", handler.Events)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{
		echo:    e,
		config:  cfg,
		hub:     hub,
		handler: handler,
		logger:  logger,
	}
}

func (s *Server) Start() error {
	// Start WebSocket hub
	go s.hub.Run()

	addr := fmt.Sprintf(":%d", s.config.Server.Port)
	s.logger.Info("Starting server", "addr", addr)

	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	return s.echo.Shutdown(ctx)
}

// Handler exposes the echo router, mainly for tests.
func (s *Server) Handler() *echo.Echo {
	return s.echo
}
