package normalizer

import (
	"encoding/json"
	"testing"

	"catalog/taxonomy/internal/domain"
	"catalog/taxonomy/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategories_DefaultsActiveAndAcceptsUnderscoreID(t *testing.T) {
	n := New(nil)

	tree := n.Categories(json.RawMessage(`[
		{"_id":"c1","name":"Phones","subcategories":[{"_id":"s1","name":"Android"}]}
	]`))

	require.Len(t, tree, 1)
	assert.Equal(t, "c1", tree[0].ID)
	assert.True(t, tree[0].IsActive)
	require.Len(t, tree[0].Subcategories, 1)
	assert.Equal(t, "s1", tree[0].Subcategories[0].ID)
	assert.Equal(t, "c1", tree[0].Subcategories[0].CategoryID)
	assert.True(t, tree[0].Subcategories[0].IsActive)
}

func TestCategories_Identity(t *testing.T) {
	n := New(nil)

	tests := []struct {
		name    string
		body    string
		wantIDs []string
	}{
		{"id field", `[{"id":"c1"}]`, []string{"c1"}},
		{"underscore id wins", `[{"_id":"c1","id":"other"}]`, []string{"c1"}},
		{"numeric id", `[{"id":42}]`, []string{"42"}},
		{"numeric id beyond float precision", `[{"id":9007199254740993}]`, []string{"9007199254740993"}},
		{"missing id dropped", `[{"name":"ghost"},{"_id":"c2"}]`, []string{"c2"}},
		{"empty id dropped", `[{"_id":""},{"id":""}]`, []string{}},
		{"non-object dropped", `["c1", 7, null, {"_id":"c3"}]`, []string{"c3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := n.Categories(json.RawMessage(tt.body))
			ids := make([]string, 0, len(tree))
			for _, c := range tree {
				assert.NotEmpty(t, c.ID)
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestCategories_IsActive(t *testing.T) {
	n := New(nil)

	tree := n.Categories(json.RawMessage(`[
		{"_id":"a","isActive":false},
		{"_id":"b","isActive":true},
		{"_id":"c","isActive":"no"},
		{"_id":"d","isActive":null}
	]`))

	require.Len(t, tree, 4)
	assert.False(t, tree[0].IsActive)
	assert.True(t, tree[1].IsActive)
	assert.True(t, tree[2].IsActive)
	assert.True(t, tree[3].IsActive)
}

func TestCategories_MalformedTopLevel(t *testing.T) {
	n := New(nil)

	for _, body := range []string{`{"error":"boom"}`, `"text"`, `null`, `not json`, ``} {
		t.Run(body, func(t *testing.T) {
			tree := n.Categories(json.RawMessage(body))
			assert.NotNil(t, tree)
			assert.Empty(t, tree)
		})
	}
}

func TestCategories_DataEnvelope(t *testing.T) {
	n := New(nil)

	tree := n.Categories(json.RawMessage(`{"success":true,"data":[{"_id":"c1"}]}`))
	require.Len(t, tree, 1)
	assert.Equal(t, "c1", tree[0].ID)
}

func TestSubSubcategories_Scoping(t *testing.T) {
	n := New(nil)

	leaves := n.SubSubcategories(json.RawMessage(`[
		{"_id":"ss1","name":"Pixel","subcategoryId":"s1"},
		{"_id":"ss2","name":"iPhone","subcategoryId":"s2"},
		{"_id":"ss3","name":"Galaxy"},
		{"_id":"ss4","name":"Moto","categoryId":"c9"},
		{"_id":"ss5","name":"Nokia","subcategoryId":{"_id":"s1","name":"Android"}},
		{"_id":"ss6","name":"Sony","subcategory":{"_id":"s2"}}
	]`), "c1", "s1")

	ids := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		ids = append(ids, leaf.ID)
		assert.Equal(t, "c1", leaf.CategoryID)
		assert.Equal(t, "s1", leaf.SubcategoryID)
	}
	assert.Equal(t, []string{"ss1", "ss3", "ss5"}, ids)
}

func TestSubSubcategories_EmbeddedAreStampedFromTree(t *testing.T) {
	n := New(nil)

	tree := n.Categories(json.RawMessage(`[{
		"_id":"c1",
		"subcategories":[{
			"_id":"s1",
			"subSubcategories":[{"_id":"ss1","slug":"pixel"},{"_id":"ss2","subcategoryId":"s7"}]
		}]
	}]`))

	require.Len(t, tree, 1)
	leaves := tree[0].Subcategories[0].SubSubcategories
	require.Len(t, leaves, 1)
	assert.Equal(t, domain.SubSubcategory{
		ID: "ss1", Slug: "pixel", IsActive: true, CategoryID: "c1", SubcategoryID: "s1",
	}, leaves[0])
}

func TestNormalize_Idempotent(t *testing.T) {
	n := New(nil)

	first := n.Categories(json.RawMessage(`[
		{"_id":"c1","name":"Phones","description":"<p>All</p>","isActive":false,"subcategories":[
			{"id":"s1","name":"Android","subSubcategories":[{"_id":"ss1","name":"Pixel","slug":"pixel"}]},
			{"id":"s2","name":"iOS"}
		]},
		{"id":"c2","name":"TVs"}
	]`))

	encoded, err := json.Marshal(first)
	require.NoError(t, err)

	second := n.Categories(encoded)
	assert.Equal(t, first, second)

	leaves := n.SubSubcategories(mustJSON(t, first[0].Subcategories[0].SubSubcategories), "c1", "s1")
	assert.Equal(t, first[0].Subcategories[0].SubSubcategories, leaves)
}

func TestNormalize_CountsDrops(t *testing.T) {
	reg := prometheus.NewRegistry()
	n := New(metrics.New(reg))

	n.SubSubcategories(json.RawMessage(`[{"name":"no id"},{"_id":"x","subcategoryId":"other"}]`), "c1", "s1")

	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, f := range families {
		if f.GetName() != metrics.MetricNormalizerDroppedTotal {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, total)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestSubSubcategories_LargeNumericParentIDs(t *testing.T) {
	n := New(nil)

	leaves := n.SubSubcategories(json.RawMessage(`[
		{"_id": 9007199254740995, "subcategoryId": 9007199254740993, "name": "Pixel"},
		{"_id": "ss2", "subcategoryId": 9007199254740992, "name": "Stray"}
	]`), "c1", "9007199254740993")

	require.Len(t, leaves, 1)
	assert.Equal(t, "9007199254740995", leaves[0].ID)
	assert.Equal(t, "9007199254740993", leaves[0].SubcategoryID)
}
