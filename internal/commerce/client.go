// Package commerce is a thin client for the Henry commerce REST API. Responses are returned as
// decoded JSON and left to the normalize package; nothing here assumes a fixed shape.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"henry/internal/cart"
	"henry/internal/normalize"
)

const (
	headerAPIKey  = "x-api-key"
	headerSession = "x-user-id"

	defaultTimeout = 30 * time.Second
)

var (
	envelopeWrappers = []string{"data", "result", "pagination", "meta"}
	cursorKeys       = []string{"nextCursor", "next_cursor", "cursor"}
	checkoutKeys     = []string{"checkoutUrl", "checkout_url", "redirectUrl", "url"}
	modalKeys        = []string{"modalUrl", "modal_url", "url"}
	supportedKeys    = []string{"supported", "isSupported", "is_supported", "enabled"}
	messageKeys      = []string{"message", "error", "detail"}
)

// SearchPage is one page of raw search output.
type SearchPage struct {
	Raw    any
	Cursor string
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps outbound requests at rps with the given burst. A non-positive rps
// disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchProducts runs a product search. limit <= 0 leaves paging to the server.
func (c *Client) SearchProducts(ctx context.Context, sessionID, query string, limit int, cursor string) (SearchPage, error) {
	q := url.Values{"query": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	raw, err := c.do(ctx, "search", sessionID, http.MethodGet, "/products/search", q, nil)
	if err != nil {
		return SearchPage{}, err
	}
	next, _ := normalize.FindString(raw, envelopeWrappers, cursorKeys...)
	return SearchPage{Raw: raw, Cursor: next}, nil
}

// ProductDetails fetches the raw details record for productID, optionally for one variant.
func (c *Client) ProductDetails(ctx context.Context, sessionID, productID, variantID string) (any, error) {
	q := url.Values{"productId": {productID}}
	if variantID != "" {
		q.Set("variantId", variantID)
	}
	return c.do(ctx, "product details", sessionID, http.MethodGet, "/products/details", q, nil)
}

func (c *Client) ListCart(ctx context.Context, sessionID string) (cart.Contents, error) {
	raw, err := c.do(ctx, "list cart", sessionID, http.MethodGet, "/cart/items", nil, nil)
	if err != nil {
		return cart.Contents{}, err
	}
	items, count, ok := normalize.NormalizeCart(raw)
	if !ok {
		logrus.WithField("session_id", sessionID).Warn("Unrecognized cart listing, treating as empty")
	}
	return cart.Contents{Items: items, Count: count}, nil
}

func (c *Client) AddToCart(ctx context.Context, sessionID string, req cart.AddRequest) error {
	_, err := c.do(ctx, "add to cart", sessionID, http.MethodPost, "/cart/items", nil, req)
	return err
}

func (c *Client) RemoveFromCart(ctx context.Context, sessionID, productID string) error {
	_, err := c.do(ctx, "remove from cart", sessionID, http.MethodDelete, "/cart/items/"+url.PathEscape(productID), nil, nil)
	return err
}

// CreateCheckout returns the hosted checkout redirect URL.
func (c *Client) CreateCheckout(ctx context.Context, sessionID string) (string, error) {
	raw, err := c.do(ctx, "checkout", sessionID, http.MethodPost, "/cart/checkout", nil, map[string]any{})
	if err != nil {
		return "", err
	}
	u, _ := normalize.FindString(raw, envelopeWrappers, checkoutKeys...)
	return u, nil
}

// CreateCardCollection returns the modal URL of a card collection session.
func (c *Client) CreateCardCollection(ctx context.Context, sessionID string) (string, error) {
	raw, err := c.do(ctx, "card collection", sessionID, http.MethodPost, "/wallet/card-collect", nil, map[string]any{})
	if err != nil {
		return "", err
	}
	u, ok := normalize.FindString(raw, envelopeWrappers, modalKeys...)
	if !ok {
		return "", &ServiceError{Op: "card collection", StatusCode: http.StatusOK, Message: "no modal url in response"}
	}
	return u, nil
}

// MerchantStatus reports whether the merchant at domain supports checkout through Henry.
func (c *Client) MerchantStatus(ctx context.Context, domain string) (bool, error) {
	raw, err := c.do(ctx, "merchant status", "", http.MethodGet, "/merchants/"+url.PathEscape(domain)+"/status", nil, nil)
	if err != nil {
		return false, err
	}
	supported, _ := normalize.FindBool(raw, envelopeWrappers, supportedKeys...)
	return supported, nil
}

func (c *Client) do(ctx context.Context, op, sessionID, method, path string, query url.Values, body any) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limit wait: %w", op, err)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("accept", "application/json")
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	req.Header.Set(headerAPIKey, c.apiKey)
	if sessionID != "" {
		req.Header.Set(headerSession, sessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"op": op, "path": path}).Error("Commerce request failed")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	var raw any
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("%s: decode response: %w", op, err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newServiceError(op, resp.StatusCode, raw, data)
	}
	if ok, present := normalize.FindBool(raw, nil, "success"); present && !ok {
		return nil, newServiceError(op, resp.StatusCode, raw, data)
	}
	return raw, nil
}
