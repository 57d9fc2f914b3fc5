package domain

// Collection names a cached collection of the taxonomy store.
type Collection string

const (
	CollectionCategories       Collection = "categories"
	CollectionSubSubcategories Collection = "sub-subcategories"
)

// Invalidation marks a collection stale. SubcategoryID scopes a
// sub-subcategory invalidation to one branch. Origin identifies the console
// instance that produced it.
type Invalidation struct {
	Collection    Collection `json:"collection"`
	SubcategoryID string     `json:"subcategoryId,omitempty"`
	Origin        string     `json:"origin,omitempty"`
}
