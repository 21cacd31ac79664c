package storefront

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"henry/internal/cart"
	"henry/internal/chat"
	"henry/internal/merchants"
	"henry/internal/session"
	"henry/internal/stream"
	"henry/internal/variant"
)

type sessionHandler func(c echo.Context, sess *session.Session) error

func (s *Server) registerHandlers() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"status": "ok", "sessions": s.registry.Len()})
	})

	api := s.echo.Group("/api")

	api.GET("/session", s.withSession(func(c echo.Context, sess *session.Session) error {
		return c.JSON(http.StatusOK, sess.View())
	}))

	api.GET("/search", s.withSession(func(c echo.Context, sess *session.Session) error {
		var req struct {
			Query string `query:"q" validate:"required"`
		}
		if ok, err := s.bind(c, &req); !ok {
			return err
		}

		state := sess.Search(c.Request().Context(), req.Query)
		if state.Status == stream.StatusError {
			return failure(c, "search", state.Err)
		}
		logrus.WithFields(logrus.Fields{"session_id": sess.ID(), "query": req.Query}).Info("Search served")
		return c.JSON(http.StatusOK, sess.View().Search)
	}))

	api.GET("/products/:id", s.withSession(func(c echo.Context, sess *session.Session) error {
		preserve, _ := strconv.ParseBool(c.QueryParam("preserve"))
		view, err := sess.LoadProduct(c.Request().Context(), c.Param("id"), c.QueryParam("variant"), preserve)
		if err != nil {
			return failure(c, "product details", err)
		}
		return c.JSON(http.StatusOK, view)
	}))

	api.POST("/products/:id/variants", s.withSession(func(c echo.Context, sess *session.Session) error {
		var req struct {
			Group  string `json:"group" validate:"required"`
			Option string `json:"option" validate:"required"`
		}
		if ok, err := s.bind(c, &req); !ok {
			return err
		}
		if ok, err := viewing(c, sess); !ok {
			return err
		}

		view, err := sess.SelectVariant(c.Request().Context(), req.Group, req.Option)
		if err != nil {
			return failure(c, "select variant", err)
		}
		return c.JSON(http.StatusOK, view)
	}))

	api.POST("/products/:id/store", s.withSession(func(c echo.Context, sess *session.Session) error {
		var req struct {
			Key string `json:"key" validate:"required"`
		}
		if ok, err := s.bind(c, &req); !ok {
			return err
		}
		if ok, err := viewing(c, sess); !ok {
			return err
		}

		view, err := sess.SelectStore(req.Key)
		if err != nil {
			return failure(c, "select store", err)
		}
		return c.JSON(http.StatusOK, view)
	}))

	api.POST("/products/:id/quantity", s.withSession(func(c echo.Context, sess *session.Session) error {
		var req struct {
			Quantity int `json:"quantity" validate:"required"`
		}
		if ok, err := s.bind(c, &req); !ok {
			return err
		}
		if ok, err := viewing(c, sess); !ok {
			return err
		}
		return c.JSON(http.StatusOK, sess.SetQuantity(req.Quantity))
	}))

	api.GET("/cart", s.withSession(func(c echo.Context, sess *session.Session) error {
		return c.JSON(http.StatusOK, sess.Cart().Snapshot())
	}))

	api.POST("/cart", s.withSession(func(c echo.Context, sess *session.Session) error {
		if err := sess.AddToCart(c.Request().Context()); err != nil {
			return failure(c, "add to cart", err)
		}
		logrus.WithField("session_id", sess.ID()).Info("Product added to cart")
		return c.JSON(http.StatusOK, sess.Cart().Snapshot())
	}))

	api.DELETE("/cart/:productId", s.withSession(func(c echo.Context, sess *session.Session) error {
		productID := c.Param("productId")
		if err := sess.RemoveFromCart(c.Request().Context(), productID); err != nil {
			return failure(c, "remove from cart", err)
		}
		logrus.WithFields(logrus.Fields{"session_id": sess.ID(), "product_id": productID}).Info("Product removed from cart")
		return c.JSON(http.StatusOK, sess.Cart().Snapshot())
	}))

	api.POST("/cart/refresh", s.withSession(func(c echo.Context, sess *session.Session) error {
		if err := sess.RefreshCart(c.Request().Context()); err != nil {
			return failure(c, "refresh cart", err)
		}
		return c.JSON(http.StatusOK, sess.Cart().Snapshot())
	}))

	api.POST("/checkout", s.withSession(func(c echo.Context, sess *session.Session) error {
		u, err := sess.Checkout(c.Request().Context())
		if err != nil {
			return failure(c, "checkout", err)
		}
		return c.JSON(http.StatusOK, map[string]string{"url": u})
	}))

	api.POST("/buy-now", s.withSession(func(c echo.Context, sess *session.Session) error {
		u, err := sess.BuyNow(c.Request().Context())
		if err != nil {
			return failure(c, "buy now", err)
		}
		return c.JSON(http.StatusOK, map[string]string{"url": u})
	}))

	api.POST("/card-collection", s.withSession(func(c echo.Context, sess *session.Session) error {
		u, err := sess.CardCollection(c.Request().Context())
		if err != nil {
			return failure(c, "card collection", err)
		}
		return c.JSON(http.StatusOK, map[string]string{"url": u})
	}))

	api.GET("/merchants/status", s.withSession(func(c echo.Context, sess *session.Session) error {
		var req struct {
			Domain string `query:"domain" validate:"required"`
		}
		if ok, err := s.bind(c, &req); !ok {
			return err
		}

		supported, err := sess.MerchantSupported(c.Request().Context(), req.Domain)
		if err != nil {
			return failure(c, "merchant status", err)
		}
		return c.JSON(http.StatusOK, map[string]any{"domain": req.Domain, "supported": supported})
	}))

	api.POST("/chat", s.withSession(func(c echo.Context, sess *session.Session) error {
		var req struct {
			History []chat.Message `json:"history" validate:"dive"`
			Message string         `json:"message" validate:"required"`
		}
		if ok, err := s.bind(c, &req); !ok {
			return err
		}
		if s.assistant == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Assistant is not configured"})
		}

		reply, err := s.assistant.Reply(c.Request().Context(), req.History, req.Message)
		if err != nil {
			return failure(c, "chat", err)
		}
		logrus.WithFields(logrus.Fields{
			"session_id": sess.ID(),
			"tools":      reply.Tools,
			"products":   len(reply.Products),
		}).Info("Chat reply served")
		return c.JSON(http.StatusOK, reply)
	}))
}

func (s *Server) withSession(next sessionHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := s.registry.Get(c.Request().Context(), c.Request().Header.Get(SessionHeader))
		if err != nil {
			logrus.WithError(err).WithField("path", c.Path()).Warn("Request without session id")
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing " + SessionHeader + " header"})
		}
		return next(c, sess)
	}
}

// bind decodes and validates req. When it reports false the 400 response has been written and
// the handler returns the accompanying error.
func (s *Server) bind(c echo.Context, req any) (bool, error) {
	if err := c.Bind(req); err != nil {
		logrus.WithError(err).WithField("path", c.Path()).Error("Invalid request")
		return false, c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := s.validate.Struct(req); err != nil {
		logrus.WithError(err).WithField("path", c.Path()).Error("Validation failed")
		return false, c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return true, nil
}

// viewing rejects selection changes aimed at a product the session is not showing.
func viewing(c echo.Context, sess *session.Session) (bool, error) {
	if sess.Product().Selection.ProductID != c.Param("id") {
		return false, c.JSON(http.StatusConflict, map[string]string{"error": "Product is not being viewed"})
	}
	return true, nil
}

func failure(c echo.Context, op string, err error) error {
	status := statusFor(err)
	logrus.WithError(err).WithFields(logrus.Fields{"op": op, "status": status}).Error("Storefront operation failed")
	return c.JSON(status, map[string]string{"error": err.Error()})
}

// statusFor maps input and state errors to 4xx; whatever else failed did so upstream.
func statusFor(err error) int {
	switch {
	case errors.Is(err, variant.ErrUnknownOption),
		errors.Is(err, variant.ErrUnknownStore),
		errors.Is(err, merchants.ErrInvalidDomain):
		return http.StatusBadRequest
	case errors.Is(err, cart.ErrInvalidItem):
		return http.StatusUnprocessableEntity
	case errors.Is(err, variant.ErrNoProduct), errors.Is(err, session.ErrNoStore):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
