package domain

// RawRecord is a single server record as decoded from JSON, before normalization.
type RawRecord map[string]any

// CategoryInput is the form payload for creating or updating a category.
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    bool   `json:"isActive"`
}

// SubcategoryInput carries the parent category id on create.
type SubcategoryInput struct {
	CategoryID  string `json:"categoryId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    bool   `json:"isActive"`
}

// SubSubcategoryInput carries both parent ids on create. Slug is derived from
// Name when left empty.
type SubSubcategoryInput struct {
	CategoryID    string `json:"categoryId,omitempty"`
	SubcategoryID string `json:"subcategoryId,omitempty"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Description   string `json:"description"`
	IsActive      bool   `json:"isActive"`
}
