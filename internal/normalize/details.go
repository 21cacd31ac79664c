package normalize

import (
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"henry/internal/models"
)

// detailsWrappers are unwrapped, in order, until a record holding productResults is found.
var detailsWrappers = []string{"data", "result", "toolResult", "details"}

// NormalizeDetails decodes a product-details payload. It reports false when raw has neither a
// productResults record nor a bare record with a title.
func NormalizeDetails(raw any) (*models.ProductDetails, bool) {
	m, ok := locateDetails(raw, 0)
	if !ok {
		return nil, false
	}

	var details models.ProductDetails
	if err := decodeLoose(m, &details); err != nil {
		// Fields that failed to decode keep their zero value.
		logrus.WithError(err).Debug("Product details partially decoded")
	}

	pr := &details.ProductResults
	if pr.Rating < 0 {
		pr.Rating = 0
	} else if pr.Rating > 5 {
		pr.Rating = 5
	}
	if pr.Reviews < 0 {
		pr.Reviews = 0
	}
	pr.Variants = cleanVariants(pr.Variants)
	pr.Stores = cleanStores(pr.Stores)
	if pr.Image == "" && len(pr.Thumbnails) > 0 {
		pr.Image = pr.Thumbnails[0]
	}
	if details.RelatedSearches == nil {
		details.RelatedSearches = []models.RelatedSearch{}
	}
	return &details, true
}

func locateDetails(raw any, depth int) (map[string]any, bool) {
	if depth > maxDepth {
		return nil, false
	}
	m, ok := asMap(raw)
	if !ok {
		return nil, false
	}
	if pr, ok := asMap(m["productResults"]); ok {
		out := map[string]any{"productResults": pr}
		if rs, present := m["relatedSearches"]; present {
			out["relatedSearches"] = rs
		}
		return out, true
	}
	for _, key := range detailsWrappers {
		if next, present := m[key]; present && next != nil {
			if found, ok := locateDetails(next, depth+1); ok {
				return found, true
			}
		}
	}
	if _, ok := firstString(m, []string{"title"}); ok {
		return map[string]any{"productResults": m}, true
	}
	return nil, false
}

// decodeLoose decodes with weak typing so numeric strings, numeric display values and string
// booleans survive; unparseable numbers decode as zero.
func decodeLoose(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       looseNumberHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func looseNumberHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
		f, ok := parseNumericString(data.(string))
		if !ok {
			return 0, nil
		}
		return int64(f), nil
	case reflect.Float32, reflect.Float64:
		f, ok := parseNumericString(data.(string))
		if !ok {
			return 0.0, nil
		}
		return f, nil
	}
	return data, nil
}

// cleanVariants drops unnamed options and repeated names so option names are unique within
// each group.
func cleanVariants(groups []models.VariantGroup) []models.VariantGroup {
	out := make([]models.VariantGroup, 0, len(groups))
	for _, g := range groups {
		g.Title = strings.TrimSpace(g.Title)
		seen := make(map[string]struct{}, len(g.Items))
		items := make([]models.VariantOption, 0, len(g.Items))
		for _, item := range g.Items {
			item.Name = strings.TrimSpace(item.Name)
			if item.Name == "" {
				continue
			}
			if _, dup := seen[item.Name]; dup {
				continue
			}
			seen[item.Name] = struct{}{}
			items = append(items, item)
		}
		if g.Title == "" || len(items) == 0 {
			continue
		}
		g.Items = items
		out = append(out, g)
	}
	return out
}

func cleanStores(stores []models.Store) []models.Store {
	out := make([]models.Store, 0, len(stores))
	for _, s := range stores {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" && s.Link == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
