// Package variant reconciles the variant and merchant selection of a product across detail
// refreshes.
package variant

import (
	"sort"
	"strings"

	"henry/internal/models"
)

// BuildDefaultSelections picks one option per variant group: the option marked selected and
// available, else the first available option, else the first option. Groups without options
// are left out.
func BuildDefaultSelections(details *models.ProductDetails) map[string]string {
	selections := make(map[string]string)
	if details == nil {
		return selections
	}
	for _, group := range details.ProductResults.Variants {
		if name, ok := defaultOption(group.Items); ok {
			selections[group.Title] = name
		}
	}
	return selections
}

func defaultOption(items []models.VariantOption) (string, bool) {
	if len(items) == 0 {
		return "", false
	}
	for _, item := range items {
		if item.IsSelected() && item.IsAvailable() {
			return item.Name, true
		}
	}
	for _, item := range items {
		if item.IsAvailable() {
			return item.Name, true
		}
	}
	return items[0].Name, true
}

// Priority orders variant groups for display: size groups first, then color, then the rest.
func Priority(title string) int {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "size"):
		return 2
	case strings.Contains(t, "color"):
		return 1
	}
	return 0
}

// SortGroups returns a copy of groups ordered by descending Priority. Groups of equal priority
// keep their relative order.
func SortGroups(groups []models.VariantGroup) []models.VariantGroup {
	sorted := make([]models.VariantGroup, len(groups))
	copy(sorted, groups)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Priority(sorted[i].Title) > Priority(sorted[j].Title)
	})
	return sorted
}

// MergeSelections recomputes the defaults for refreshed details and keeps each previous choice
// whose option name still exists in its group.
func MergeSelections(details *models.ProductDetails, previous map[string]string) map[string]string {
	merged := BuildDefaultSelections(details)
	if details == nil {
		return merged
	}
	for _, group := range details.ProductResults.Variants {
		prev, ok := previous[group.Title]
		if !ok {
			continue
		}
		if hasOption(group.Items, prev) {
			merged[group.Title] = prev
		}
	}
	return merged
}

func hasOption(items []models.VariantOption, name string) bool {
	for _, item := range items {
		if item.Name == name {
			return true
		}
	}
	return false
}

// StoreKey identifies a merchant offer as name::link.
func StoreKey(store models.Store) string {
	return store.Name + "::" + store.Link
}

// ReconcileStore keeps previousKey when it still names one of stores, and otherwise falls back
// to the first store. It returns "" when there are no stores.
func ReconcileStore(stores []models.Store, previousKey string) string {
	if len(stores) == 0 {
		return ""
	}
	if previousKey != "" {
		for _, s := range stores {
			if StoreKey(s) == previousKey {
				return previousKey
			}
		}
	}
	return StoreKey(stores[0])
}

// FindStore returns the store matching key.
func FindStore(stores []models.Store, key string) (models.Store, bool) {
	for _, s := range stores {
		if StoreKey(s) == key {
			return s, true
		}
	}
	return models.Store{}, false
}

// FindOption returns the option named option inside the group titled group.
func FindOption(details *models.ProductDetails, group, option string) (models.VariantOption, bool) {
	if details == nil {
		return models.VariantOption{}, false
	}
	for _, g := range details.ProductResults.Variants {
		if g.Title != group {
			continue
		}
		for _, item := range g.Items {
			if item.Name == option {
				return item, true
			}
		}
	}
	return models.VariantOption{}, false
}
