package main

import (
	"bytes"
	"testing"

	"catalog/taxonomy/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestPrintTree(t *testing.T) {
	snap := &domain.Snapshot{
		Categories: []domain.Category{{
			ID: "c1", Name: "Electronics", IsActive: true,
			Subcategories: []domain.Subcategory{
				{ID: "s1", Name: "Phones", CategoryID: "c1", IsActive: true},
				{ID: "s2", Name: "Laptops", CategoryID: "c1", IsActive: false},
			},
		}},
		SubSubByParent: map[string][]domain.SubSubcategory{
			"s1": {{ID: "ss1", Name: "Android", IsActive: true, CategoryID: "c1", SubcategoryID: "s1"}},
			"s2": {},
		},
		BranchErrors: map[string]string{"s2": "timeout"},
	}

	var buf bytes.Buffer
	printTree(&buf, snap)

	assert.Equal(t, `c1 Electronics
  s1 Phones
    ss1 Android
  s2 Laptops (inactive)
    ! timeout

1 categories, 2 subcategories, 0 sub-subcategories
`, buf.String())
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()

	for _, name := range []string{"serve", "tree", "sync"} {
		cmd, _, err := root.Find([]string{name})
		assert.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
