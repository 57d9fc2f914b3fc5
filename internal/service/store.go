package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"catalog/taxonomy/internal/client"
	"catalog/taxonomy/internal/domain"
	"catalog/taxonomy/internal/metrics"
	"catalog/taxonomy/internal/normalizer"
	"catalog/taxonomy/internal/querycache"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	categoriesKey = "categories"
	subSubPrefix  = "subsub:"
)

func subSubKey(subcategoryID string) string {
	return subSubPrefix + subcategoryID
}

// Store owns the normalized category tree and the per-subcategory
// sub-subcategory lists. All writes go through a fetch (normalizer) or an
// invalidation; readers get copies.
type Store struct {
	client     client.CatalogClient
	normalizer *normalizer.Normalizer
	cache      *querycache.Cache
	metrics    *metrics.Metrics
	maxWorkers int
	eager      bool

	mu         sync.RWMutex
	categories []domain.Category // installed tree, visible before its branches finish
	owners     map[string]string // subcategory id -> category id in the installed tree
	branchErrs map[string]error
	loadedAt   time.Time
}

type StoreOption func(*Store)

// WithMaxWorkers bounds concurrent sub-subcategory fetches during population.
func WithMaxWorkers(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

// WithEagerPopulation toggles the per-subcategory pass after each tree load.
func WithEagerPopulation(eager bool) StoreOption {
	return func(s *Store) {
		s.eager = eager
	}
}

func WithMetrics(m *metrics.Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

func NewStore(c client.CatalogClient, opts ...StoreOption) *Store {
	s := &Store{
		client:     c,
		maxWorkers: 8,
		eager:      true,
		owners:     make(map[string]string),
		branchErrs: make(map[string]error),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.normalizer = normalizer.New(s.metrics)
	s.cache = querycache.New(s.metrics)

	return s
}

// Tree returns the current tree, refetching the category collection first
// when it is missing or invalidated, and any loaded branch invalidated since.
// It waits for the population pass; Snapshot does not. Branch failures do not
// fail the read.
func (s *Store) Tree(ctx context.Context) (*domain.Snapshot, error) {
	categories, err := querycache.Get(ctx, s.cache, categoriesKey, s.loadTree)
	if err != nil {
		return nil, err
	}

	s.refreshStaleBranches(ctx, categories)

	return s.snapshot(categories, s.cache.IsStale(categoriesKey)), nil
}

// Snapshot returns the current view without fetching. The installed tree is
// visible as soon as the category collection is normalized, and each branch
// appears as its fetch lands.
func (s *Store) Snapshot() *domain.Snapshot {
	s.mu.RLock()
	categories := s.categories
	s.mu.RUnlock()

	return s.snapshot(categories, s.cache.IsStale(categoriesKey))
}

func (s *Store) loadTree(ctx context.Context) ([]domain.Category, error) {
	raw, err := s.client.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}

	categories := s.normalizer.Categories(raw)
	s.install(categories)

	if s.eager {
		s.populate(ctx, categories)
	}

	log.Infof("🌳 Loaded taxonomy: %d categories", len(categories))
	return categories, nil
}

// install replaces the ownership index and tears down every sub-subcategory
// branch; the new tree is rebuilt from scratch.
func (s *Store) install(categories []domain.Category) {
	owners := make(map[string]string)
	for _, c := range categories {
		for _, sub := range c.Subcategories {
			owners[sub.ID] = c.ID
		}
	}

	s.mu.Lock()
	s.categories = categories
	s.owners = owners
	s.branchErrs = make(map[string]error)
	s.loadedAt = time.Now()
	s.mu.Unlock()

	if n := s.cache.ResetPrefix(subSubPrefix); n > 0 {
		log.Debugf("Dropped %d sub-subcategory branches from the previous tree", n)
	}
}

type branch struct {
	categoryID    string
	subcategoryID string
}

// populate fetches every subcategory's children concurrently.
func (s *Store) populate(ctx context.Context, categories []domain.Category) {
	var branches []branch
	for _, c := range categories {
		for _, sub := range c.Subcategories {
			branches = append(branches, branch{categoryID: c.ID, subcategoryID: sub.ID})
		}
	}

	total, failed := s.loadBranches(ctx, branches)
	if failed > 0 {
		log.Warnf("⚠️ Populated %d/%d sub-subcategory branches, %d failed", total-failed, total, failed)
		return
	}
	log.Debugf("Populated %d sub-subcategory branches", total)
}

// refreshStaleBranches refetches branches that hold a value but were
// invalidated since it was fetched. Branches never loaded are left to
// population or expansion.
func (s *Store) refreshStaleBranches(ctx context.Context, categories []domain.Category) {
	var stale []branch
	for _, c := range categories {
		for _, sub := range c.Subcategories {
			key := subSubKey(sub.ID)
			if _, loaded := s.cache.Peek(key); loaded && s.cache.IsStale(key) {
				stale = append(stale, branch{categoryID: c.ID, subcategoryID: sub.ID})
			}
		}
	}
	if len(stale) == 0 {
		return
	}

	total, failed := s.loadBranches(ctx, stale)
	log.Debugf("Refreshed %d invalidated sub-subcategory branches, %d failed", total, failed)
}

// loadBranches fetches branches with at most maxWorkers in flight. A failed
// branch is left empty with an error marker and never fails the batch.
func (s *Store) loadBranches(ctx context.Context, branches []branch) (total, failed int) {
	g := new(errgroup.Group)
	g.SetLimit(s.maxWorkers)

	var mu sync.Mutex
	for _, b := range branches {
		g.Go(func() error {
			_, err := s.LoadSubSubcategories(ctx, b.categoryID, b.subcategoryID)
			if err != nil && !errors.Is(err, domain.ErrStaleResult) {
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return len(branches), failed
}

// LoadSubSubcategories fetches one branch, sharing any in-flight request for
// the same subcategory. A failure leaves the branch empty and retryable.
func (s *Store) LoadSubSubcategories(ctx context.Context, categoryID, subcategoryID string) ([]domain.SubSubcategory, error) {
	if !s.owns(categoryID, subcategoryID) {
		return nil, fmt.Errorf("subcategory %s under %s: %w", subcategoryID, categoryID, domain.ErrStaleResult)
	}

	leaves, err := querycache.Get(ctx, s.cache, subSubKey(subcategoryID), func(ctx context.Context) ([]domain.SubSubcategory, error) {
		if !s.owns(categoryID, subcategoryID) {
			return nil, domain.ErrStaleResult
		}

		raw, err := s.client.ListSubSubcategories(ctx, subcategoryID)
		if err != nil {
			return nil, err
		}
		leaves := s.normalizer.SubSubcategories(raw, categoryID, subcategoryID)

		// The tree may have been replaced while the request was in flight.
		if !s.owns(categoryID, subcategoryID) {
			return nil, domain.ErrStaleResult
		}
		return leaves, nil
	})

	if errors.Is(err, domain.ErrStaleResult) {
		log.Debugf("Discarded sub-subcategories of %s: no longer in the tree", subcategoryID)
		return nil, fmt.Errorf("subcategory %s under %s: %w", subcategoryID, categoryID, err)
	}
	if err != nil {
		s.setBranchError(categoryID, subcategoryID, err)
		s.metrics.BranchFailed()
		log.Warnf("⚠️ Failed to load sub-subcategories of %s: %v", subcategoryID, err)
		return []domain.SubSubcategory{}, fmt.Errorf("failed to load sub-subcategories of %s: %w", subcategoryID, err)
	}

	s.setBranchError(categoryID, subcategoryID, nil)
	return leaves, nil
}

// Apply marks the collection named by inv stale. The refetch happens on the
// next read.
func (s *Store) Apply(inv domain.Invalidation) {
	switch inv.Collection {
	case domain.CollectionCategories:
		s.cache.Invalidate(categoriesKey)
	case domain.CollectionSubSubcategories:
		if inv.SubcategoryID == "" {
			s.cache.InvalidatePrefix(subSubPrefix)
			return
		}
		s.cache.Invalidate(subSubKey(inv.SubcategoryID))
	default:
		log.Warnf("⚠️ Ignoring invalidation of unknown collection %q", inv.Collection)
	}
}

func (s *Store) InvalidateCategories() {
	s.Apply(domain.Invalidation{Collection: domain.CollectionCategories})
}

func (s *Store) InvalidateSubSubcategories(subcategoryID string) {
	s.Apply(domain.Invalidation{Collection: domain.CollectionSubSubcategories, SubcategoryID: subcategoryID})
}

// IsStale reports whether the category collection will be refetched on the
// next read.
func (s *Store) IsStale() bool {
	return s.cache.IsStale(categoriesKey)
}

// BranchIsStale reports whether the subcategory's children will be refetched.
func (s *Store) BranchIsStale(subcategoryID string) bool {
	return s.cache.IsStale(subSubKey(subcategoryID))
}

// CategoryOf returns the owning category of a subcategory in the current tree.
func (s *Store) CategoryOf(subcategoryID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categoryID, ok := s.owners[subcategoryID]
	return categoryID, ok
}

// SubcategoryOf finds the subcategory a loaded sub-subcategory belongs to.
func (s *Store) SubcategoryOf(subSubcategoryID string) (string, bool) {
	snap := s.Snapshot()
	for _, c := range snap.Categories {
		for _, sub := range c.Subcategories {
			for _, leaf := range sub.SubSubcategories {
				if leaf.ID == subSubcategoryID {
					return sub.ID, true
				}
			}
		}
	}
	return "", false
}

func (s *Store) owns(categoryID, subcategoryID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.owners[subcategoryID]
	return ok && owner == categoryID
}

func (s *Store) setBranchError(categoryID, subcategoryID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.owners[subcategoryID]; !ok || owner != categoryID {
		return
	}
	if err == nil {
		delete(s.branchErrs, subcategoryID)
		return
	}
	s.branchErrs[subcategoryID] = err
}

// snapshot assembles the read value. Loaded branches replace the summaries
// embedded in the category payload; leaves whose parents disagree with the
// slot are filtered out.
func (s *Store) snapshot(categories []domain.Category, stale bool) *domain.Snapshot {
	s.mu.RLock()
	branchErrs := make(map[string]error, len(s.branchErrs))
	for k, v := range s.branchErrs {
		branchErrs[k] = v
	}
	loadedAt := s.loadedAt
	s.mu.RUnlock()

	snap := &domain.Snapshot{
		Categories:     make([]domain.Category, 0, len(categories)),
		SubSubByParent: make(map[string][]domain.SubSubcategory),
		BranchErrors:   make(map[string]string),
		Stale:          stale,
		LoadedAt:       loadedAt,
	}

	for _, c := range categories {
		category := c
		category.Subcategories = make([]domain.Subcategory, 0, len(c.Subcategories))

		for _, sub := range c.Subcategories {
			subcategory := sub

			err, failed := branchErrs[sub.ID]
			if failed {
				snap.BranchErrors[sub.ID] = err.Error()
			}

			if v, ok := s.cache.Peek(subSubKey(sub.ID)); ok {
				leaves, _ := v.([]domain.SubSubcategory)
				subcategory.SubSubcategories = scoped(leaves, c.ID, sub.ID)
				snap.SubSubByParent[sub.ID] = subcategory.SubSubcategories
			} else if failed {
				subcategory.SubSubcategories = []domain.SubSubcategory{}
				snap.SubSubByParent[sub.ID] = subcategory.SubSubcategories
			} else {
				subcategory.SubSubcategories = scoped(sub.SubSubcategories, c.ID, sub.ID)
			}

			category.Subcategories = append(category.Subcategories, subcategory)
		}

		snap.Categories = append(snap.Categories, category)
	}

	return snap
}

func scoped(leaves []domain.SubSubcategory, categoryID, subcategoryID string) []domain.SubSubcategory {
	out := make([]domain.SubSubcategory, 0, len(leaves))
	for _, leaf := range leaves {
		if leaf.CategoryID != categoryID || leaf.SubcategoryID != subcategoryID {
			continue
		}
		out = append(out, leaf)
	}
	return out
}
