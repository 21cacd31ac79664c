package normalize

import (
	"math"
	"strconv"
	"strings"

	"henry/internal/models"
)

// DefaultSource names the platform when a record carries no merchant.
const DefaultSource = "Henry"

var (
	idKeys     = []string{"id", "productId", "product_id", "sku", "uid", "slug", "handle"}
	nameKeys   = []string{"name", "title", "productName", "handle"}
	imageKeys  = []string{"imageUrl", "image", "thumbnail", "thumbnailUrl"}
	linkKeys   = []string{"productLink", "url", "link", "href"}
	sourceKeys = []string{"source", "merchant", "store", "retailer"}
)

// NormalizeProduct maps one raw record onto a Product. It reports false when the record has
// no usable id or name; a missing price is not a failure and yields 0.
func NormalizeProduct(raw any) (models.Product, bool) {
	m, ok := asMap(raw)
	if !ok {
		return models.Product{}, false
	}

	id, ok := firstID(m, idKeys)
	if !ok {
		return models.Product{}, false
	}
	name, ok := firstString(m, nameKeys)
	if !ok {
		return models.Product{}, false
	}

	price, ok := ParsePrice(m["price"])
	if !ok {
		price = 0
	}

	return models.Product{
		ID:          id,
		Name:        name,
		Price:       price,
		ImageURL:    imageURL(m),
		ProductLink: stringOr(m, linkKeys, ""),
		Source:      source(m),
	}, true
}

// NormalizeProducts extracts the product array from raw and keeps the valid records in their
// original relative order. Records repeating an id already seen are dropped. The boolean is
// false when raw has no recognizable product array.
func NormalizeProducts(raw any) ([]models.Product, bool) {
	items, ok := ExtractProductArray(raw)
	if !ok {
		return nil, false
	}

	products := make([]models.Product, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		p, valid := NormalizeProduct(item)
		if !valid {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		products = append(products, p)
	}
	return products, true
}

// ParsePrice accepts a number, a display string such as "$1,299.00", or an object with an
// amount field. It reports false when no finite value can be read.
func ParsePrice(raw any) (float64, bool) {
	return parsePrice(raw, 0)
}

func parsePrice(raw any, depth int) (float64, bool) {
	if depth > maxDepth {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		return parseNumericString(v)
	case map[string]any:
		amount, ok := v["amount"]
		if !ok {
			return 0, false
		}
		return parsePrice(amount, depth+1)
	}
	return 0, false
}

// parseNumericString reads the first number in s and ignores whatever follows it, so
// "$1,299.00" is 1299, "$19.99 - $29.99" is 19.99 and "4.5 out of 5" is 4.5. Commas inside the
// number are thousands separators.
func parseNumericString(s string) (float64, bool) {
	start := strings.IndexFunc(s, isDigit)
	if start < 0 {
		return 0, false
	}
	if start > 0 && s[start-1] == '.' {
		start--
	}
	negative := start > 0 && s[start-1] == '-'

	end := start
	for end < len(s) && (isDigit(rune(s[end])) || s[end] == '.' || s[end] == ',') {
		end++
	}
	token := strings.TrimRight(strings.ReplaceAll(s[start:end], ",", ""), ".")
	if negative {
		token = "-" + token
	}

	f, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func imageURL(m map[string]any) string {
	if s, ok := firstString(m, imageKeys); ok {
		return s
	}
	if thumbs, ok := m["thumbnails"].([]any); ok && len(thumbs) > 0 {
		if s, ok := thumbs[0].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func source(m map[string]any) string {
	for _, key := range sourceKeys {
		switch v := m[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case map[string]any:
			if s, ok := firstString(v, []string{"name"}); ok {
				return s
			}
		}
	}
	return DefaultSource
}

// firstString returns the first non-blank string found under keys.
func firstString(m map[string]any, keys []string) (string, bool) {
	for _, key := range keys {
		if s, ok := m[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// firstID is firstString that also accepts numeric identifiers.
func firstID(m map[string]any, keys []string) (string, bool) {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s, true
			}
		case float64:
			if _, ok := finite(v); ok {
				return strconv.FormatFloat(v, 'f', -1, 64), true
			}
		case int:
			return strconv.Itoa(v), true
		case int64:
			return strconv.FormatInt(v, 10), true
		}
	}
	return "", false
}

func stringOr(m map[string]any, keys []string, fallback string) string {
	if s, ok := firstString(m, keys); ok {
		return s
	}
	return fallback
}

// FindString walks raw through the given wrapper keys looking for the first non-blank string
// under any of keys. Used for single-value replies such as checkout redirect URLs.
func FindString(raw any, wrappers []string, keys ...string) (string, bool) {
	return findString(raw, wrappers, keys, 0)
}

func findString(raw any, wrappers, keys []string, depth int) (string, bool) {
	if depth > maxDepth {
		return "", false
	}
	m, ok := asMap(raw)
	if !ok {
		return "", false
	}
	if s, ok := firstString(m, keys); ok {
		return s, true
	}
	for _, w := range wrappers {
		if next, present := m[w]; present {
			if s, ok := findString(next, wrappers, keys, depth+1); ok {
				return s, true
			}
		}
	}
	return "", false
}
