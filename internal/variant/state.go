package variant

import (
	"errors"
	"fmt"

	"henry/internal/models"
)

const (
	MinQuantity = 1
	MaxQuantity = 99
)

var (
	ErrNoProduct     = errors.New("no product loaded")
	ErrUnknownOption = errors.New("unknown variant option")
	ErrUnknownStore  = errors.New("unknown store")
)

// State is the selection held for the product a session is viewing. ProductID is the logical
// product the user navigated to; DetailsID is the id the current details were fetched for,
// which differs after picking a variant that has its own id.
type State struct {
	ProductID        string            `json:"productId"`
	DetailsID        string            `json:"detailsId"`
	SelectedVariants map[string]string `json:"selectedVariants"`
	SelectedStoreKey string            `json:"selectedStoreKey,omitempty"`
	Quantity         int               `json:"quantity"`
}

// Apply installs freshly fetched details. With preserve set and a product already loaded the
// previous choices are merged into the new details; otherwise the state starts over for
// detailsID.
func (s *State) Apply(detailsID string, details *models.ProductDetails, preserve bool) {
	var stores []models.Store
	if details != nil {
		stores = details.ProductResults.Stores
	}

	if preserve && s.ProductID != "" {
		s.DetailsID = detailsID
		s.SelectedVariants = MergeSelections(details, s.SelectedVariants)
		s.SelectedStoreKey = ReconcileStore(stores, s.SelectedStoreKey)
		s.Quantity = clampQuantity(s.Quantity)
		return
	}

	*s = State{
		ProductID:        detailsID,
		DetailsID:        detailsID,
		SelectedVariants: BuildDefaultSelections(details),
		SelectedStoreKey: ReconcileStore(stores, ""),
		Quantity:         MinQuantity,
	}
}

// Select records option as the choice for group. The returned id is non-empty when the option
// has its own details record, in which case the caller refetches with preserve set.
func (s *State) Select(details *models.ProductDetails, group, option string) (string, error) {
	if s.ProductID == "" {
		return "", ErrNoProduct
	}
	opt, ok := FindOption(details, group, option)
	if !ok {
		return "", fmt.Errorf("%w: %s=%s", ErrUnknownOption, group, option)
	}
	if s.SelectedVariants == nil {
		s.SelectedVariants = make(map[string]string)
	}
	s.SelectedVariants[group] = opt.Name
	return opt.ID, nil
}

// SelectStore makes key the selected merchant offer.
func (s *State) SelectStore(details *models.ProductDetails, key string) error {
	if s.ProductID == "" {
		return ErrNoProduct
	}
	if details == nil {
		return fmt.Errorf("%w: %s", ErrUnknownStore, key)
	}
	if _, ok := FindStore(details.ProductResults.Stores, key); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStore, key)
	}
	s.SelectedStoreKey = key
	return nil
}

// SetQuantity clamps n into [MinQuantity, MaxQuantity] and returns the stored value.
func (s *State) SetQuantity(n int) int {
	s.Quantity = clampQuantity(n)
	return s.Quantity
}

// Clone returns a copy that shares no map with s.
func (s *State) Clone() State {
	out := *s
	out.SelectedVariants = make(map[string]string, len(s.SelectedVariants))
	for k, v := range s.SelectedVariants {
		out.SelectedVariants[k] = v
	}
	return out
}

func clampQuantity(n int) int {
	return min(max(n, MinQuantity), MaxQuantity)
}
