package commerce

import (
	"context"

	"henry/internal/cart"
)

// SessionCart binds the cart endpoints to one browser session.
type SessionCart struct {
	client    *Client
	sessionID string
}

var _ cart.Service = (*SessionCart)(nil)

func (c *Client) CartFor(sessionID string) *SessionCart {
	return &SessionCart{client: c, sessionID: sessionID}
}

func (s *SessionCart) ListItems(ctx context.Context) (cart.Contents, error) {
	return s.client.ListCart(ctx, s.sessionID)
}

func (s *SessionCart) AddItem(ctx context.Context, req cart.AddRequest) error {
	return s.client.AddToCart(ctx, s.sessionID, req)
}

func (s *SessionCart) RemoveItem(ctx context.Context, productID string) error {
	return s.client.RemoveFromCart(ctx, s.sessionID, productID)
}

func (s *SessionCart) CreateCheckout(ctx context.Context) (string, error) {
	return s.client.CreateCheckout(ctx, s.sessionID)
}
