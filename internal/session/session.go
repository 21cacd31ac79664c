// Package session holds the per-browser storefront state: the search and product details
// streams, the variant and store selection, and the cart.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"henry/internal/cart"
	"henry/internal/commerce"
	"henry/internal/models"
	"henry/internal/normalize"
	"henry/internal/stream"
	"henry/internal/variant"
)

// DefaultSearchLimit is the page size asked of the commerce search.
const DefaultSearchLimit = 20

var (
	ErrUnrecognizedDetails = errors.New("product details not recognized")
	ErrNoStore             = errors.New("no store offer selected")
)

// Catalog is the read side of the commerce API.
type Catalog interface {
	SearchProducts(ctx context.Context, sessionID, query string, limit int, cursor string) (commerce.SearchPage, error)
	ProductDetails(ctx context.Context, sessionID, productID, variantID string) (any, error)
	CreateCardCollection(ctx context.Context, sessionID string) (string, error)
}

type MerchantChecker interface {
	Supported(ctx context.Context, domain string) (bool, error)
}

// SearchResult is one applied search. Recognized is false when the response carried no
// product array, which is shown as "no results" rather than an error.
type SearchResult struct {
	Query      string           `json:"query"`
	Products   []models.Product `json:"products"`
	Recognized bool             `json:"recognized"`
	Cursor     string           `json:"cursor,omitempty"`
}

type Session struct {
	id          string
	catalog     Catalog
	merchants   MerchantChecker
	searchLimit int

	search  stream.Stream[SearchResult]
	details stream.Stream[*models.ProductDetails]
	cart    *cart.Reconciler

	mu        sync.Mutex
	selection variant.State
	lastSeen  time.Time
}

func (s *Session) ID() string { return s.id }

func (s *Session) Cart() *cart.Reconciler { return s.cart }

func (s *Session) touch(at time.Time) {
	s.mu.Lock()
	s.lastSeen = at
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Search runs query on the search stream. A response superseded by a newer search is dropped
// and the returned state is whatever the stream currently reports.
func (s *Session) Search(ctx context.Context, query string) stream.State[SearchResult] {
	state, applied := s.search.Run(ctx, func(ctx context.Context) (SearchResult, error) {
		page, err := s.catalog.SearchProducts(ctx, s.id, query, s.searchLimit, "")
		if err != nil {
			return SearchResult{}, err
		}
		products, ok := normalize.NormalizeProducts(page.Raw)
		if products == nil {
			products = []models.Product{}
		}
		return SearchResult{Query: query, Products: products, Recognized: ok, Cursor: page.Cursor}, nil
	})
	if !applied {
		logrus.WithFields(logrus.Fields{"session_id": s.id, "query": query}).Debug("Discarded superseded search response")
	}
	if applied && state.Status == stream.StatusError {
		logrus.WithError(state.Err).WithFields(logrus.Fields{"session_id": s.id, "query": query}).Error("Search failed")
	}
	return state
}

// LoadProduct fetches details for productID (or its variantID) on the details stream. With
// preserve set and the same logical product loaded, the current choices are merged into the
// new details; a different product always starts over.
func (s *Session) LoadProduct(ctx context.Context, productID, variantID string, preserve bool) (ProductView, error) {
	ticket, reqCtx := s.details.Begin(ctx)
	raw, err := s.catalog.ProductDetails(reqCtx, s.id, productID, variantID)

	var details *models.ProductDetails
	if err == nil {
		var ok bool
		if details, ok = normalize.NormalizeDetails(raw); !ok {
			err = ErrUnrecognizedDetails
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fields := logrus.Fields{"session_id": s.id, "product_id": productID, "variant_id": variantID}
	if err != nil {
		if s.details.Fail(ticket, err) {
			logrus.WithError(err).WithFields(fields).Error("Product details failed")
			return s.productViewLocked(), err
		}
		return s.productViewLocked(), nil
	}
	if !s.details.Resolve(ticket, details) {
		logrus.WithFields(fields).Debug("Discarded superseded product details")
		return s.productViewLocked(), nil
	}

	detailsID := productID
	if variantID != "" {
		detailsID = variantID
	}
	merge := preserve && s.selection.ProductID == productID
	s.selection.Apply(detailsID, details, merge)
	if !merge {
		s.selection.ProductID = productID
	}
	return s.productViewLocked(), nil
}

// SelectVariant records a variant choice. When the option has its own details record the
// details are refetched with the current choices preserved.
func (s *Session) SelectVariant(ctx context.Context, group, option string) (ProductView, error) {
	s.mu.Lock()
	current := s.currentDetails()
	refetchID, err := s.selection.Select(current, group, option)
	productID := s.selection.ProductID
	view := s.productViewLocked()
	s.mu.Unlock()

	if err != nil {
		return view, err
	}
	if refetchID == "" || refetchID == view.Selection.DetailsID {
		return view, nil
	}
	return s.LoadProduct(ctx, productID, refetchID, true)
}

func (s *Session) SelectStore(key string) (ProductView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.selection.SelectStore(s.currentDetails(), key)
	return s.productViewLocked(), err
}

func (s *Session) SetQuantity(n int) ProductView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.SetQuantity(n)
	return s.productViewLocked()
}

// AddToCart adds the viewed product with its current variant choices, store and quantity.
func (s *Session) AddToCart(ctx context.Context) error {
	req, err := s.addRequest()
	if err != nil {
		return err
	}
	return s.cart.Add(ctx, req)
}

func (s *Session) addRequest() (cart.AddRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	details := s.currentDetails()
	if details == nil || s.selection.ProductID == "" {
		return cart.AddRequest{}, variant.ErrNoProduct
	}
	pr := details.ProductResults

	req := cart.AddRequest{
		ProductID:        s.selection.DetailsID,
		Name:             pr.Title,
		Quantity:         s.selection.Quantity,
		ProductImageLink: pr.Image,
		Metadata: map[string]any{
			"productId": s.selection.ProductID,
			"variants":  s.selection.Clone().SelectedVariants,
		},
	}
	if len(pr.Stores) > 0 {
		store, ok := variant.FindStore(pr.Stores, s.selection.SelectedStoreKey)
		if !ok {
			return cart.AddRequest{}, ErrNoStore
		}
		req.ProductLink = store.Link
		req.Metadata["store"] = store.Name
		if price, ok := normalize.ParsePrice(store.Price); ok {
			req.Price = price
		}
	}
	return req, nil
}

func (s *Session) RemoveFromCart(ctx context.Context, productID string) error {
	return s.cart.Remove(ctx, productID)
}

func (s *Session) RefreshCart(ctx context.Context) error {
	return s.cart.Refresh(ctx)
}

func (s *Session) Checkout(ctx context.Context) (string, error) {
	return s.cart.Checkout(ctx)
}

// BuyNow adds the viewed product and, only once the add succeeded, creates a checkout.
func (s *Session) BuyNow(ctx context.Context) (string, error) {
	if err := s.AddToCart(ctx); err != nil {
		return "", fmt.Errorf("buy now: %w", err)
	}
	return s.cart.Checkout(ctx)
}

func (s *Session) CardCollection(ctx context.Context) (string, error) {
	u, err := s.catalog.CreateCardCollection(ctx, s.id)
	if err != nil {
		logrus.WithError(err).WithField("session_id", s.id).Error("Card collection failed")
	}
	return u, err
}

func (s *Session) MerchantSupported(ctx context.Context, domain string) (bool, error) {
	return s.merchants.Supported(ctx, domain)
}

func (s *Session) currentDetails() *models.ProductDetails {
	snap := s.details.Snapshot()
	if !snap.HasValue {
		return nil
	}
	return snap.Value
}
