package normalize

import (
	"math"
	"strconv"
	"strings"

	"henry/internal/models"
)

var (
	cartWrappers  = []string{"data", "result", "cart"}
	countKeys     = []string{"count", "itemCount", "item_count", "totalCount", "total_items"}
	quantityKeys  = []string{"quantity", "qty", "count"}
	cartImageKeys = []string{"productImageLink", "imageUrl", "image", "thumbnail"}
)

// NormalizeCart reads a cart listing. The count is the explicit count field when one is present,
// otherwise the sum of line quantities. The boolean is false when no item array is reachable.
func NormalizeCart(raw any) ([]models.CartItem, int, bool) {
	elems, ok := ExtractProductArray(raw)
	if !ok {
		return nil, 0, false
	}

	items := make([]models.CartItem, 0, len(elems))
	total := 0
	for _, elem := range elems {
		item, ok := normalizeCartItem(elem)
		if !ok {
			continue
		}
		items = append(items, item)
		total += item.Quantity
	}

	if n, ok := FindNumber(raw, cartWrappers, countKeys...); ok && n >= 0 {
		return items, int(n), true
	}
	return items, total, true
}

func normalizeCartItem(raw any) (models.CartItem, bool) {
	m, ok := asMap(raw)
	if !ok {
		return models.CartItem{}, false
	}
	id, ok := firstID(m, idKeys)
	if !ok {
		return models.CartItem{}, false
	}

	item := models.CartItem{
		ProductID:        id,
		Name:             stringOr(m, nameKeys, id),
		ProductImageLink: stringOr(m, cartImageKeys, ""),
		ProductLink:      stringOr(m, linkKeys, ""),
		Quantity:         1,
	}
	if price, ok := ParsePrice(m["price"]); ok {
		item.Price = price
	}
	if q, ok := numberUnder(m, quantityKeys); ok && q >= 1 {
		item.Quantity = int(q)
	}
	if meta, ok := m["metadata"].(map[string]any); ok {
		item.Metadata = meta
	}
	return item, true
}

// FindNumber is FindString for numeric fields; numeric strings are accepted.
func FindNumber(raw any, wrappers []string, keys ...string) (float64, bool) {
	return findNumber(raw, wrappers, keys, 0)
}

func findNumber(raw any, wrappers, keys []string, depth int) (float64, bool) {
	if depth > maxDepth {
		return 0, false
	}
	m, ok := asMap(raw)
	if !ok {
		return 0, false
	}
	if n, ok := numberUnder(m, keys); ok {
		return n, true
	}
	for _, w := range wrappers {
		if next, present := m[w]; present {
			if n, ok := findNumber(next, wrappers, keys, depth+1); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func numberUnder(m map[string]any, keys []string) (float64, bool) {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			if _, ok := finite(v); ok {
				return math.Trunc(v), true
			}
		case int:
			return float64(v), true
		case string:
			if n, ok := parseNumericString(v); ok {
				return math.Trunc(n), true
			}
		}
	}
	return 0, false
}

// FindBool walks raw like FindString and accepts booleans or boolean text.
func FindBool(raw any, wrappers []string, keys ...string) (bool, bool) {
	return findBool(raw, wrappers, keys, 0)
}

func findBool(raw any, wrappers, keys []string, depth int) (bool, bool) {
	if depth > maxDepth {
		return false, false
	}
	m, ok := asMap(raw)
	if !ok {
		return false, false
	}
	for _, key := range keys {
		switch v := m[key].(type) {
		case bool:
			return v, true
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b, true
			}
		}
	}
	for _, w := range wrappers {
		if next, present := m[w]; present {
			if b, ok := findBool(next, wrappers, keys, depth+1); ok {
				return b, true
			}
		}
	}
	return false, false
}
