package session

import (
	"henry/internal/cart"
	"henry/internal/models"
	"henry/internal/stream"
	"henry/internal/variant"
)

// StreamView is the renderable form of a stream state.
type StreamView[T any] struct {
	Status stream.Status `json:"status"`
	Error  string        `json:"error,omitempty"`
	Value  T             `json:"value"`
}

func streamView[T any](s stream.State[T]) StreamView[T] {
	v := StreamView[T]{Status: s.Status, Value: s.Value}
	if v.Status == "" {
		v.Status = stream.StatusIdle
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	return v
}

// ProductView is the details stream plus the selection made against it. Groups are ordered
// for display with size first, then color.
type ProductView struct {
	Status        stream.Status          `json:"status"`
	Error         string                 `json:"error,omitempty"`
	Details       *models.ProductDetails `json:"details,omitempty"`
	Groups        []models.VariantGroup  `json:"groups"`
	Selection     variant.State          `json:"selection"`
	SelectedStore *models.Store          `json:"selectedStore,omitempty"`
}

type View struct {
	SessionID string                   `json:"sessionId"`
	Search    StreamView[SearchResult] `json:"search"`
	Product   ProductView              `json:"product"`
	Cart      cart.Snapshot            `json:"cart"`
}

func (s *Session) productViewLocked() ProductView {
	sv := streamView(s.details.Snapshot())
	pv := ProductView{
		Status:    sv.Status,
		Error:     sv.Error,
		Details:   sv.Value,
		Groups:    []models.VariantGroup{},
		Selection: s.selection.Clone(),
	}
	if sv.Value == nil {
		return pv
	}
	pv.Groups = variant.SortGroups(sv.Value.ProductResults.Variants)
	if store, ok := variant.FindStore(sv.Value.ProductResults.Stores, s.selection.SelectedStoreKey); ok {
		pv.SelectedStore = &store
	}
	return pv
}

func (s *Session) Product() ProductView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.productViewLocked()
}

// View returns everything the browser renders for this session.
func (s *Session) View() View {
	search := streamView(s.search.Snapshot())
	if search.Value.Products == nil {
		search.Value.Products = []models.Product{}
	}
	return View{
		SessionID: s.id,
		Search:    search,
		Product:   s.Product(),
		Cart:      s.cart.Snapshot(),
	}
}
