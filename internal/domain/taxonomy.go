package domain

import "time"

// Category is the root level of the taxonomy tree.
type Category struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	IsActive      bool          `json:"isActive"`
	Subcategories []Subcategory `json:"subcategories"`
}

// Subcategory belongs to exactly one category. CategoryID is a back-reference
// used for scoping mutations, not an ownership pointer.
type Subcategory struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	IsActive         bool             `json:"isActive"`
	CategoryID       string           `json:"categoryId"`
	SubSubcategories []SubSubcategory `json:"subSubcategories"`
}

// SubSubcategory is the leaf level. Both parent ids are stamped from the
// fetch context during normalization.
type SubSubcategory struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Slug          string `json:"slug,omitempty"`
	IsActive      bool   `json:"isActive"`
	CategoryID    string `json:"categoryId"`
	SubcategoryID string `json:"subcategoryId"`
}

// Snapshot is the combined read value handed to the presentation layer.
type Snapshot struct {
	Categories     []Category                  `json:"categories"`
	SubSubByParent map[string][]SubSubcategory `json:"subSubByParent"`
	BranchErrors   map[string]string           `json:"branchErrors,omitempty"`
	Stale          bool                        `json:"stale"`
	LoadedAt       time.Time                   `json:"loadedAt"`
}

func (s *Snapshot) Category(id string) (Category, bool) {
	for _, c := range s.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

func (s *Snapshot) Subcategory(id string) (Subcategory, bool) {
	for _, c := range s.Categories {
		for _, sub := range c.Subcategories {
			if sub.ID == id {
				return sub, true
			}
		}
	}
	return Subcategory{}, false
}

// SubSubcategories returns the leaf list for a subcategory: the loaded branch
// when there is one, otherwise the summaries embedded in the category payload.
func (s *Snapshot) SubSubcategories(subcategoryID string) []SubSubcategory {
	if leaves, ok := s.SubSubByParent[subcategoryID]; ok {
		return leaves
	}
	if sub, ok := s.Subcategory(subcategoryID); ok {
		return sub.SubSubcategories
	}
	return nil
}

// NodeCount returns the number of nodes per level.
func (s *Snapshot) NodeCount() map[Level]int {
	counts := map[Level]int{
		LevelCategory:       len(s.Categories),
		LevelSubcategory:    0,
		LevelSubSubcategory: 0,
	}
	for _, c := range s.Categories {
		counts[LevelSubcategory] += len(c.Subcategories)
		for _, sub := range c.Subcategories {
			counts[LevelSubSubcategory] += len(sub.SubSubcategories)
		}
	}
	return counts
}
