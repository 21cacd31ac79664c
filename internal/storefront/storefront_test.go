package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"henry/internal/cart"
	"henry/internal/chat"
	"henry/internal/commerce"
	"henry/internal/merchants"
	"henry/internal/models"
	"henry/internal/session"
)

type fakeCatalog struct {
	searchErr error
}

func (f *fakeCatalog) SearchProducts(_ context.Context, _ string, query string, _ int, _ string) (commerce.SearchPage, error) {
	if f.searchErr != nil {
		return commerce.SearchPage{}, f.searchErr
	}
	return commerce.SearchPage{Raw: map[string]any{"products": []any{
		map[string]any{"id": "1", "name": query + " one", "price": "$10.00"},
		map[string]any{"id": "2", "price": 5},
	}}}, nil
}

func (f *fakeCatalog) ProductDetails(_ context.Context, _ string, productID, _ string) (any, error) {
	if productID == "untitled" {
		return map[string]any{"productResults": map[string]any{
			"title":  "",
			"stores": []any{map[string]any{"name": "Acme", "link": "https://acme.example", "price": "$20"}},
		}}, nil
	}
	if productID != "p1" {
		return nil, &commerce.ServiceError{Op: "product details", StatusCode: http.StatusNotFound, Message: "no such product"}
	}
	return map[string]any{"productResults": map[string]any{
		"title":  "Runner",
		"stores": []any{map[string]any{"name": "Acme", "link": "https://acme.example", "price": "$20"}},
		"variants": []any{map[string]any{"title": "Size", "items": []any{
			map[string]any{"name": "9"}, map[string]any{"name": "10"},
		}}},
	}}, nil
}

func (f *fakeCatalog) CreateCardCollection(context.Context, string) (string, error) {
	return "https://cards.example", nil
}

type fakeCart struct {
	mu    sync.Mutex
	items []models.CartItem
}

func (c *fakeCart) ListItems(context.Context) (cart.Contents, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cart.Contents{Items: append([]models.CartItem{}, c.items...), Count: len(c.items)}, nil
}

func (c *fakeCart) AddItem(_ context.Context, req cart.AddRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, models.CartItem{ProductID: req.ProductID, Name: req.Name, Quantity: req.Quantity})
	return nil
}

func (c *fakeCart) RemoveItem(_ context.Context, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, item := range c.items {
		if item.ProductID == productID {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (c *fakeCart) CreateCheckout(context.Context) (string, error) {
	return "https://pay.example", nil
}

type fakeLookup struct{}

func (fakeLookup) MerchantStatus(_ context.Context, domain string) (bool, error) {
	return domain == "acme.com", nil
}

type fakeReplier struct{ history []chat.Message }

func (f *fakeReplier) Reply(_ context.Context, history []chat.Message, message string) (chat.Reply, error) {
	f.history = history
	return chat.Reply{Text: "echo: " + message, Products: []models.Product{}}, nil
}

func newTestServer(catalog *fakeCatalog, assistant Replier) *Server {
	carts := make(map[string]*fakeCart)
	var mu sync.Mutex
	registry := session.NewRegistry(session.Deps{
		Catalog: catalog,
		CartFor: func(id string) cart.Service {
			mu.Lock()
			defer mu.Unlock()
			if carts[id] == nil {
				carts[id] = &fakeCart{}
			}
			return carts[id]
		},
		Merchants:  merchants.NewChecker(fakeLookup{}, nil, time.Minute),
		AddedFlash: time.Hour,
	})
	return NewServer(registry, assistant)
}

func call(t *testing.T, s *Server, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set(SessionHeader, "browser-1")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestMissingSessionHeader(t *testing.T) {
	s := newTestServer(&fakeCatalog{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), SessionHeader)
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeCatalog{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestSearch(t *testing.T) {
	t.Run("Normalized results", func(t *testing.T) {
		s := newTestServer(&fakeCatalog{}, nil)
		rec, out := call(t, s, http.MethodGet, "/api/search?q=shoes", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "success", out["status"])
		value := out["value"].(map[string]any)
		products := value["products"].([]any)
		require.Len(t, products, 1)
		assert.Equal(t, "shoes one", products[0].(map[string]any)["name"])
	})

	t.Run("Query required", func(t *testing.T) {
		s := newTestServer(&fakeCatalog{}, nil)
		rec, out := call(t, s, http.MethodGet, "/api/search", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, out["error"])
	})

	t.Run("Upstream failure", func(t *testing.T) {
		s := newTestServer(&fakeCatalog{searchErr: errors.New("upstream down")}, nil)
		rec, out := call(t, s, http.MethodGet, "/api/search?q=shoes", "")

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "upstream down", out["error"])
	})
}

func TestProductFlow(t *testing.T) {
	s := newTestServer(&fakeCatalog{}, nil)

	rec, out := call(t, s, http.MethodGet, "/api/products/p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	selection := out["selection"].(map[string]any)
	assert.Equal(t, "p1", selection["productId"])
	assert.Equal(t, map[string]any{"Size": "9"}, selection["selectedVariants"])

	rec, out = call(t, s, http.MethodPost, "/api/products/p1/variants", `{"group":"Size","option":"10"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", out["selection"].(map[string]any)["selectedVariants"].(map[string]any)["Size"])

	rec, out = call(t, s, http.MethodPost, "/api/products/p1/variants", `{"group":"Size","option":"42"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["error"], "unknown variant option")

	rec, _ = call(t, s, http.MethodPost, "/api/products/other/quantity", `{"quantity":2}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, out = call(t, s, http.MethodPost, "/api/products/p1/quantity", `{"quantity":500}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 99, out["selection"].(map[string]any)["quantity"])

	rec, out = call(t, s, http.MethodPost, "/api/products/p1/store", `{"key":"Nope::x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["error"], "unknown store")
}

func TestProductNotFound(t *testing.T) {
	s := newTestServer(&fakeCatalog{}, nil)

	rec, out := call(t, s, http.MethodGet, "/api/products/missing", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, out["error"], "no such product")
}

func TestCartFlow(t *testing.T) {
	s := newTestServer(&fakeCatalog{}, nil)

	rec, _ := call(t, s, http.MethodPost, "/api/cart", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "nothing viewed yet")

	call(t, s, http.MethodGet, "/api/products/p1", "")

	rec, out := call(t, s, http.MethodPost, "/api/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, out["count"])
	assert.Equal(t, true, out["added"])

	rec, out = call(t, s, http.MethodDelete, "/api/cart/p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, out["count"])

	rec, out = call(t, s, http.MethodPost, "/api/cart/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, out["count"])

	rec, out = call(t, s, http.MethodPost, "/api/buy-now", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://pay.example", out["url"])

	rec, out = call(t, s, http.MethodPost, "/api/card-collection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://cards.example", out["url"])
}

func TestAddUntitledProductRejected(t *testing.T) {
	s := newTestServer(&fakeCatalog{}, nil)

	rec, _ := call(t, s, http.MethodGet, "/api/products/untitled", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, out := call(t, s, http.MethodPost, "/api/cart", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, out["error"], "invalid cart item")
}

func TestMerchantStatus(t *testing.T) {
	s := newTestServer(&fakeCatalog{}, nil)

	rec, out := call(t, s, http.MethodGet, "/api/merchants/status?domain=https://www.Acme.com/shop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["supported"])

	rec, _ = call(t, s, http.MethodGet, "/api/merchants/status?domain=localhost", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat(t *testing.T) {
	t.Run("Not configured", func(t *testing.T) {
		s := newTestServer(&fakeCatalog{}, nil)
		rec, _ := call(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("Reply", func(t *testing.T) {
		replier := &fakeReplier{}
		s := newTestServer(&fakeCatalog{}, replier)
		rec, out := call(t, s, http.MethodPost, "/api/chat",
			`{"history":[{"role":"user","text":"hello"},{"role":"model","text":"hi there"}],"message":"find shoes"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "echo: find shoes", out["text"])
		assert.Len(t, replier.history, 2)
	})

	t.Run("Invalid history role", func(t *testing.T) {
		s := newTestServer(&fakeCatalog{}, &fakeReplier{})
		rec, _ := call(t, s, http.MethodPost, "/api/chat", `{"history":[{"role":"system","text":"x"}],"message":"hi"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
