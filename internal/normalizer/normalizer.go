// Package normalizer turns inconsistently shaped Catalog API records into the
// strict domain types. All tolerance for server shape drift lives here.
package normalizer

import (
	"bytes"
	"encoding/json"
	"strconv"

	"catalog/taxonomy/internal/domain"
	"catalog/taxonomy/internal/metrics"

	log "github.com/sirupsen/logrus"
)

var (
	subcategoryKeys    = []string{"subcategories", "subCategories", "sub_categories"}
	subSubcategoryKeys = []string{"subSubcategories", "subSubCategories", "subsubcategories", "sub_subcategories"}
	categoryRefKeys    = []string{"categoryId", "category"}
	subcategoryRefKeys = []string{"subcategoryId", "subcategory", "subCategoryId"}
)

// Drop reasons reported to metrics.
const (
	reasonNotObject   = "not-object"
	reasonMissingID   = "missing-id"
	reasonWrongParent = "wrong-parent"
)

type Normalizer struct {
	metrics *metrics.Metrics
}

func New(m *metrics.Metrics) *Normalizer {
	return &Normalizer{metrics: m}
}

// Categories normalizes a GET /categories body. Anything that is not a list
// (or a {"data": [...]} envelope) yields an empty result.
func (n *Normalizer) Categories(raw json.RawMessage) []domain.Category {
	items, ok := decodeList(raw)
	if !ok {
		log.Warnf("⚠️ Category response is not a list, treating as empty")
		return []domain.Category{}
	}

	categories := make([]domain.Category, 0, len(items))
	for i, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			n.drop(domain.LevelCategory, reasonNotObject, "record %d is not an object", i)
			continue
		}
		if category, ok := n.Category(rec); ok {
			categories = append(categories, category)
		}
	}
	return categories
}

func (n *Normalizer) Category(rec domain.RawRecord) (domain.Category, bool) {
	id := recordID(rec)
	if id == "" {
		n.drop(domain.LevelCategory, reasonMissingID, "category %q has no id", stringField(rec, "name"))
		return domain.Category{}, false
	}

	category := domain.Category{
		ID:            id,
		Name:          stringField(rec, "name"),
		Description:   stringField(rec, "description"),
		IsActive:      boolField(rec, "isActive"),
		Subcategories: []domain.Subcategory{},
	}

	for i, item := range listField(rec, subcategoryKeys) {
		child, ok := item.(map[string]any)
		if !ok {
			n.drop(domain.LevelSubcategory, reasonNotObject, "subcategory %d of %s is not an object", i, id)
			continue
		}
		if sub, ok := n.Subcategory(child, id); ok {
			category.Subcategories = append(category.Subcategories, sub)
		}
	}

	return category, true
}

// Subcategory normalizes one subcategory embedded in category categoryID.
// The owning category comes from the tree position, not the payload.
func (n *Normalizer) Subcategory(rec domain.RawRecord, categoryID string) (domain.Subcategory, bool) {
	id := recordID(rec)
	if id == "" {
		n.drop(domain.LevelSubcategory, reasonMissingID, "subcategory %q under %s has no id", stringField(rec, "name"), categoryID)
		return domain.Subcategory{}, false
	}

	sub := domain.Subcategory{
		ID:               id,
		Name:             stringField(rec, "name"),
		Description:      stringField(rec, "description"),
		IsActive:         boolField(rec, "isActive"),
		CategoryID:       categoryID,
		SubSubcategories: []domain.SubSubcategory{},
	}

	for i, item := range listField(rec, subSubcategoryKeys) {
		child, ok := item.(map[string]any)
		if !ok {
			n.drop(domain.LevelSubSubcategory, reasonNotObject, "sub-subcategory %d of %s is not an object", i, id)
			continue
		}
		if leaf, ok := n.SubSubcategory(child, categoryID, id); ok {
			sub.SubSubcategories = append(sub.SubSubcategories, leaf)
		}
	}

	return sub, true
}

// SubSubcategories normalizes a GET /sub-subcategories body fetched for the
// (categoryID, subcategoryID) slot.
func (n *Normalizer) SubSubcategories(raw json.RawMessage, categoryID, subcategoryID string) []domain.SubSubcategory {
	items, ok := decodeList(raw)
	if !ok {
		log.Warnf("⚠️ Sub-subcategory response for %s is not a list, treating as empty", subcategoryID)
		return []domain.SubSubcategory{}
	}

	leaves := make([]domain.SubSubcategory, 0, len(items))
	for i, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			n.drop(domain.LevelSubSubcategory, reasonNotObject, "record %d for %s is not an object", i, subcategoryID)
			continue
		}
		if leaf, ok := n.SubSubcategory(rec, categoryID, subcategoryID); ok {
			leaves = append(leaves, leaf)
		}
	}
	return leaves
}

// SubSubcategory stamps the parent ids from the fetch context. A record whose
// payload names a different parent is dropped: the API has been seen to
// return leaves outside the requested scope.
func (n *Normalizer) SubSubcategory(rec domain.RawRecord, categoryID, subcategoryID string) (domain.SubSubcategory, bool) {
	id := recordID(rec)
	if id == "" {
		n.drop(domain.LevelSubSubcategory, reasonMissingID, "sub-subcategory %q under %s has no id", stringField(rec, "name"), subcategoryID)
		return domain.SubSubcategory{}, false
	}

	if declared := refField(rec, subcategoryRefKeys); declared != "" && declared != subcategoryID {
		n.drop(domain.LevelSubSubcategory, reasonWrongParent, "sub-subcategory %s belongs to subcategory %s, not %s", id, declared, subcategoryID)
		return domain.SubSubcategory{}, false
	}
	if declared := refField(rec, categoryRefKeys); declared != "" && declared != categoryID {
		n.drop(domain.LevelSubSubcategory, reasonWrongParent, "sub-subcategory %s belongs to category %s, not %s", id, declared, categoryID)
		return domain.SubSubcategory{}, false
	}

	return domain.SubSubcategory{
		ID:            id,
		Name:          stringField(rec, "name"),
		Description:   stringField(rec, "description"),
		Slug:          stringField(rec, "slug"),
		IsActive:      boolField(rec, "isActive"),
		CategoryID:    categoryID,
		SubcategoryID: subcategoryID,
	}, true
}

func (n *Normalizer) drop(level domain.Level, reason, format string, args ...any) {
	n.metrics.Dropped(level.String(), reason)
	log.WithFields(log.Fields{
		"level":  level.String(),
		"reason": reason,
	}).Warnf("⚠️ Skipping record: "+format, args...)
}

// decodeList keeps numbers as json.Number so large numeric ids survive.
func decodeList(raw json.RawMessage) ([]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}

	switch v := decoded.(type) {
	case []any:
		return v, true
	case map[string]any:
		if data, ok := v["data"].([]any); ok {
			return data, true
		}
	}
	return nil, false
}

// recordID accepts "_id" first, then "id". Numbers are formatted as integers
// when they have no fractional part.
func recordID(rec domain.RawRecord) string {
	if id := idValue(rec["_id"]); id != "" {
		return id
	}
	return idValue(rec["id"])
}

func idValue(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

// refField reads a parent reference that may be a plain id or a populated
// object carrying its own id.
func refField(rec domain.RawRecord, keys []string) string {
	for _, key := range keys {
		switch ref := rec[key].(type) {
		case map[string]any:
			if id := recordID(ref); id != "" {
				return id
			}
		default:
			if id := idValue(ref); id != "" {
				return id
			}
		}
	}
	return ""
}

func stringField(rec domain.RawRecord, key string) string {
	s, _ := rec[key].(string)
	return s
}

// boolField defaults to true when the field is absent or not a boolean.
func boolField(rec domain.RawRecord, key string) bool {
	b, ok := rec[key].(bool)
	if !ok {
		return true
	}
	return b
}

func listField(rec domain.RawRecord, keys []string) []any {
	for _, key := range keys {
		if list, ok := rec[key].([]any); ok {
			return list
		}
	}
	return nil
}
