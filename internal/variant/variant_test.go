package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"henry/internal/models"
)

func flag(b bool) *bool { return &b }

func detailsWith(groups []models.VariantGroup, stores ...models.Store) *models.ProductDetails {
	return &models.ProductDetails{ProductResults: models.ProductResults{
		Title:    "Shoe",
		Variants: groups,
		Stores:   stores,
	}}
}

func TestBuildDefaultSelections(t *testing.T) {
	t.Run("Selected and available wins", func(t *testing.T) {
		d := detailsWith([]models.VariantGroup{{
			Title: "Size",
			Items: []models.VariantOption{
				{Name: "S", Available: flag(false)},
				{Name: "M", Selected: flag(true)},
				{Name: "L"},
			},
		}})
		assert.Equal(t, map[string]string{"Size": "M"}, BuildDefaultSelections(d))
	})

	t.Run("Unavailable selection falls to first available", func(t *testing.T) {
		d := detailsWith([]models.VariantGroup{{
			Title: "Color",
			Items: []models.VariantOption{
				{Name: "Red", Selected: flag(true), Available: flag(false)},
				{Name: "Blue", Available: flag(false)},
				{Name: "Green"},
			},
		}})
		assert.Equal(t, "Green", BuildDefaultSelections(d)["Color"])
	})

	t.Run("Nothing available falls to first option", func(t *testing.T) {
		d := detailsWith([]models.VariantGroup{{
			Title: "Color",
			Items: []models.VariantOption{
				{Name: "Red", Available: flag(false)},
				{Name: "Blue", Available: flag(false)},
			},
		}})
		assert.Equal(t, "Red", BuildDefaultSelections(d)["Color"])
	})

	t.Run("Empty group is omitted", func(t *testing.T) {
		d := detailsWith([]models.VariantGroup{{Title: "Style"}})
		assert.Empty(t, BuildDefaultSelections(d))
		assert.Empty(t, BuildDefaultSelections(nil))
	})
}

func TestSortGroups(t *testing.T) {
	groups := []models.VariantGroup{
		{Title: "Material"},
		{Title: "Color"},
		{Title: "Pattern"},
		{Title: "Shoe Size"},
	}
	sorted := SortGroups(groups)

	var titles []string
	for _, g := range sorted {
		titles = append(titles, g.Title)
	}
	assert.Equal(t, []string{"Shoe Size", "Color", "Material", "Pattern"}, titles)
	assert.Equal(t, "Material", groups[0].Title, "input must not be reordered")

	pair := SortGroups([]models.VariantGroup{{Title: "Color"}, {Title: "Size"}})
	assert.Equal(t, "Size", pair[0].Title)
	assert.Equal(t, 2, Priority("SIZE"))
	assert.Equal(t, 1, Priority("colors"))
	assert.Equal(t, 0, Priority("Width"))
}

func TestMergeSelections(t *testing.T) {
	refreshed := detailsWith([]models.VariantGroup{
		{Title: "Color", Items: []models.VariantOption{{Name: "Blue"}, {Name: "Black", Selected: flag(true)}}},
		{Title: "Size", Items: []models.VariantOption{{Name: "9"}, {Name: "10"}}},
	})

	t.Run("Vanished choice falls back to default", func(t *testing.T) {
		merged := MergeSelections(refreshed, map[string]string{"Color": "Red"})
		assert.Equal(t, "Black", merged["Color"])
	})

	t.Run("Surviving choice is kept", func(t *testing.T) {
		merged := MergeSelections(refreshed, map[string]string{"Color": "Blue", "Size": "10"})
		assert.Equal(t, map[string]string{"Color": "Blue", "Size": "10"}, merged)
	})

	t.Run("Groups gone from details are dropped", func(t *testing.T) {
		merged := MergeSelections(refreshed, map[string]string{"Width": "Wide"})
		_, ok := merged["Width"]
		assert.False(t, ok)
	})
}

func TestReconcileStore(t *testing.T) {
	acme := models.Store{Name: "Acme", Link: "https://acme.example/x"}
	bolt := models.Store{Name: "Bolt", Link: "https://bolt.example/y"}

	assert.Equal(t, "Acme::https://acme.example/x", StoreKey(acme))
	assert.Equal(t, StoreKey(acme), ReconcileStore([]models.Store{bolt, acme}, "Acme::https://acme.example/x"))
	assert.Equal(t, StoreKey(bolt), ReconcileStore([]models.Store{bolt, acme}, "Gone::https://gone"))
	assert.Equal(t, StoreKey(bolt), ReconcileStore([]models.Store{bolt}, ""))
	assert.Equal(t, "", ReconcileStore(nil, StoreKey(acme)))
}

func TestStateLifecycle(t *testing.T) {
	acme := models.Store{Name: "Acme", Link: "https://acme.example/x"}
	bolt := models.Store{Name: "Bolt", Link: "https://bolt.example/y"}
	first := detailsWith([]models.VariantGroup{
		{Title: "Color", Items: []models.VariantOption{{Name: "Red", ID: "p1-red"}, {Name: "Blue", ID: "p1-blue"}}},
		{Title: "Size", Items: []models.VariantOption{{Name: "S"}, {Name: "M"}}},
	}, acme, bolt)

	var s State
	s.Apply("p1", first, false)
	assert.Equal(t, "p1", s.ProductID)
	assert.Equal(t, map[string]string{"Color": "Red", "Size": "S"}, s.SelectedVariants)
	assert.Equal(t, StoreKey(acme), s.SelectedStoreKey)
	assert.Equal(t, 1, s.Quantity)

	refetch, err := s.Select(first, "Size", "M")
	require.NoError(t, err)
	assert.Empty(t, refetch)
	require.NoError(t, s.SelectStore(first, StoreKey(bolt)))
	s.SetQuantity(3)

	refetch, err = s.Select(first, "Color", "Blue")
	require.NoError(t, err)
	assert.Equal(t, "p1-blue", refetch)

	blue := detailsWith([]models.VariantGroup{
		{Title: "Color", Items: []models.VariantOption{{Name: "Red", ID: "p1-red"}, {Name: "Blue", ID: "p1-blue", Selected: flag(true)}}},
		{Title: "Size", Items: []models.VariantOption{{Name: "S"}, {Name: "M"}, {Name: "L"}}},
	}, bolt, acme)
	s.Apply(refetch, blue, true)
	assert.Equal(t, "p1", s.ProductID, "logical product survives a variant refetch")
	assert.Equal(t, "p1-blue", s.DetailsID)
	assert.Equal(t, map[string]string{"Color": "Blue", "Size": "M"}, s.SelectedVariants)
	assert.Equal(t, StoreKey(bolt), s.SelectedStoreKey)
	assert.Equal(t, 3, s.Quantity)

	other := detailsWith([]models.VariantGroup{
		{Title: "Size", Items: []models.VariantOption{{Name: "M"}, {Name: "XL", Selected: flag(true)}}},
	}, acme)
	s.Apply("p2", other, false)
	assert.Equal(t, "p2", s.ProductID)
	assert.Equal(t, map[string]string{"Size": "XL"}, s.SelectedVariants)
	assert.Equal(t, 1, s.Quantity)
}

func TestStateErrors(t *testing.T) {
	var s State
	_, err := s.Select(nil, "Color", "Red")
	assert.ErrorIs(t, err, ErrNoProduct)

	d := detailsWith([]models.VariantGroup{{Title: "Color", Items: []models.VariantOption{{Name: "Red"}}}})
	s.Apply("p1", d, false)

	_, err = s.Select(d, "Color", "Pink")
	assert.ErrorIs(t, err, ErrUnknownOption)
	assert.ErrorIs(t, s.SelectStore(d, "Nope::x"), ErrUnknownStore)
	assert.Equal(t, "", s.SelectedStoreKey)
}

func TestQuantityClamp(t *testing.T) {
	var s State
	assert.Equal(t, 1, s.SetQuantity(0))
	assert.Equal(t, 1, s.SetQuantity(-4))
	assert.Equal(t, 42, s.SetQuantity(42))
	assert.Equal(t, 99, s.SetQuantity(150))
}

func TestClone(t *testing.T) {
	s := State{ProductID: "p", SelectedVariants: map[string]string{"Color": "Red"}}
	c := s.Clone()
	c.SelectedVariants["Color"] = "Blue"
	assert.Equal(t, "Red", s.SelectedVariants["Color"])
}
