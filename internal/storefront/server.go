// Package storefront exposes the session operations over HTTP.
package storefront

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"henry/internal/chat"
	"henry/internal/session"
)

// SessionHeader carries the browser identifier on every /api request.
const SessionHeader = "X-Henry-User-Id"

// Replier answers one chat turn.
type Replier interface {
	Reply(ctx context.Context, history []chat.Message, message string) (chat.Reply, error)
}

type Server struct {
	echo      *echo.Echo
	registry  *session.Registry
	assistant Replier
	validate  *validator.Validate
}

// NewServer wires the routes. assistant may be nil, in which case /api/chat answers 503.
func NewServer(registry *session.Registry, assistant Replier) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		registry:  registry,
		assistant: assistant,
		validate:  validator.New(),
	}
	s.registerHandlers()
	return s
}

func (s *Server) Handler() http.Handler { return s.echo }

// Serve accepts connections on lis until Shutdown is called.
func (s *Server) Serve(lis net.Listener) error {
	s.echo.Listener = lis
	logrus.WithField("addr", lis.Addr().String()).Info("Starting storefront HTTP server")
	if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
