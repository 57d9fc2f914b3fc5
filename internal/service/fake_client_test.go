package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"catalog/taxonomy/internal/domain"
)

// fakeCatalog is an in-memory CatalogClient. Responses are raw JSON so tests
// exercise the normalizer exactly as the HTTP client would.
type fakeCatalog struct {
	mu sync.Mutex

	categories    string
	categoriesErr error
	subSubs       map[string]string
	subSubErrs    map[string]error
	block         map[string]chan struct{}

	mutationErr    error
	mutationRecord domain.RawRecord

	calls      []string
	lastSubSub domain.SubSubcategoryInput
	published  []domain.Invalidation
	publishErr error
}

func newFakeCatalog(categories string) *fakeCatalog {
	return &fakeCatalog{
		categories: categories,
		subSubs:    make(map[string]string),
		subSubErrs: make(map[string]error),
		block:      make(map[string]chan struct{}),
	}
}

func (f *fakeCatalog) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeCatalog) setCategories(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categories = body
}

func (f *fakeCatalog) setSubSubs(subcategoryID, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subSubs[subcategoryID] = body
}

func (f *fakeCatalog) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeCatalog) allCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCatalog) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeCatalog) ListCategories(ctx context.Context) (json.RawMessage, error) {
	f.record("GET /categories")

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.categoriesErr != nil {
		return nil, f.categoriesErr
	}
	return json.RawMessage(f.categories), nil
}

func (f *fakeCatalog) ListSubSubcategories(ctx context.Context, subcategoryID string) (json.RawMessage, error) {
	f.record("GET /sub-subcategories?subcategoryId=" + subcategoryID)

	f.mu.Lock()
	wait := f.block[subcategoryID]
	f.mu.Unlock()
	if wait != nil {
		<-wait
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.subSubErrs[subcategoryID]; err != nil {
		return nil, err
	}
	body, ok := f.subSubs[subcategoryID]
	if !ok {
		body = "[]"
	}
	return json.RawMessage(body), nil
}

func (f *fakeCatalog) mutate(call string) (domain.RawRecord, error) {
	f.record(call)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutationErr != nil {
		return nil, f.mutationErr
	}
	if f.mutationRecord != nil {
		return f.mutationRecord, nil
	}
	return domain.RawRecord{"_id": "new"}, nil
}

func (f *fakeCatalog) CreateCategory(ctx context.Context, in domain.CategoryInput) (domain.RawRecord, error) {
	return f.mutate("POST /categories")
}

func (f *fakeCatalog) UpdateCategory(ctx context.Context, id string, in domain.CategoryInput) (domain.RawRecord, error) {
	return f.mutate("PUT /categories/" + id)
}

func (f *fakeCatalog) DeleteCategory(ctx context.Context, id string) error {
	_, err := f.mutate("DELETE /categories/" + id)
	return err
}

func (f *fakeCatalog) ToggleCategoryStatus(ctx context.Context, id string) (domain.RawRecord, error) {
	return f.mutate(fmt.Sprintf("PATCH /categories/%s/toggle-status", id))
}

func (f *fakeCatalog) CreateSubcategory(ctx context.Context, in domain.SubcategoryInput) (domain.RawRecord, error) {
	return f.mutate("POST /subcategory")
}

func (f *fakeCatalog) UpdateSubcategory(ctx context.Context, id string, in domain.SubcategoryInput) (domain.RawRecord, error) {
	return f.mutate("PATCH /subcategories/" + id)
}

func (f *fakeCatalog) DeleteSubcategory(ctx context.Context, id string) error {
	_, err := f.mutate("DELETE /subcategory/" + id)
	return err
}

func (f *fakeCatalog) ToggleSubcategoryStatus(ctx context.Context, id string) (domain.RawRecord, error) {
	return f.mutate(fmt.Sprintf("PATCH /subcategory/%s/status", id))
}

func (f *fakeCatalog) CreateSubSubcategory(ctx context.Context, in domain.SubSubcategoryInput) (domain.RawRecord, error) {
	f.mu.Lock()
	f.lastSubSub = in
	f.mu.Unlock()
	return f.mutate("POST /sub-subcategory")
}

func (f *fakeCatalog) UpdateSubSubcategory(ctx context.Context, id string, in domain.SubSubcategoryInput) (domain.RawRecord, error) {
	f.mu.Lock()
	f.lastSubSub = in
	f.mu.Unlock()
	return f.mutate("PATCH /sub-subcategory/" + id)
}

func (f *fakeCatalog) DeleteSubSubcategory(ctx context.Context, id string) error {
	_, err := f.mutate("DELETE /sub-subcategory/" + id)
	return err
}

func (f *fakeCatalog) ToggleSubSubcategoryStatus(ctx context.Context, id string) (domain.RawRecord, error) {
	return f.mutate(fmt.Sprintf("PATCH /sub-subcategory/%s/status", id))
}

// PublishInvalidation makes the fake double as an InvalidationPublisher.
func (f *fakeCatalog) PublishInvalidation(ctx context.Context, inv domain.Invalidation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, inv)
	return f.publishErr
}

func (f *fakeCatalog) publishedInvalidations() []domain.Invalidation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Invalidation(nil), f.published...)
}
