package service

import (
	"context"
	"errors"
	"fmt"

	"catalog/taxonomy/internal/domain"
	"catalog/taxonomy/internal/expansion"

	log "github.com/sirupsen/logrus"
)

// Service is the handle the presentation layer holds for one console session:
// tree reads, the mutation commands and expand/collapse state. All methods
// are safe to call from concurrent request handlers.
type Service struct {
	*Commands

	store     *Store
	expansion *expansion.State
	origin    string
}

func NewService(store *Store, commands *Commands, state *expansion.State) *Service {
	return &Service{
		Commands:  commands,
		store:     store,
		expansion: state,
		origin:    commands.origin,
	}
}

// Tree reads the current tree. When eager population is off, expanded
// subcategories whose children are not loaded are fetched before returning.
func (s *Service) Tree(ctx context.Context) (*domain.Snapshot, error) {
	snap, err := s.store.Tree(ctx)
	if err != nil {
		return nil, err
	}

	if s.store.eager {
		return snap, nil
	}

	loaded := false
	for _, subcategoryID := range s.expansion.ExpandedSubcategories() {
		if !s.store.BranchIsStale(subcategoryID) {
			continue
		}
		categoryID, ok := s.store.CategoryOf(subcategoryID)
		if !ok {
			continue
		}
		// failures stay on the branch; the tree read still succeeds
		_, _ = s.store.LoadSubSubcategories(ctx, categoryID, subcategoryID)
		loaded = true
	}

	if loaded {
		return s.store.Snapshot(), nil
	}
	return snap, nil
}

// Snapshot returns the current view without fetching.
func (s *Service) Snapshot() *domain.Snapshot {
	return s.store.Snapshot()
}

// Refresh invalidates every collection; the next Tree call refetches.
func (s *Service) Refresh() {
	s.store.InvalidateCategories()
	s.store.Apply(domain.Invalidation{Collection: domain.CollectionSubSubcategories})
}

func (s *Service) ToggleCategory(id string) bool {
	return s.expansion.ToggleCategory(id)
}

// ToggleSubcategory flips a subcategory and, on collapsed -> expanded, refetches
// its children. A failed fetch is returned for logging but leaves the
// branch empty rather than failing the toggle.
func (s *Service) ToggleSubcategory(ctx context.Context, subcategoryID string) (expansion.Transition, error) {
	transition := s.expansion.ToggleSubcategory(subcategoryID)
	if !transition.NeedsFetch {
		return transition, nil
	}

	categoryID, ok := s.store.CategoryOf(subcategoryID)
	if !ok {
		log.Debugf("Expanded subcategory %s is not in the loaded tree, nothing to fetch", subcategoryID)
		return transition, nil
	}

	s.store.InvalidateSubSubcategories(subcategoryID)
	if _, err := s.store.LoadSubSubcategories(ctx, categoryID, subcategoryID); err != nil {
		if errors.Is(err, domain.ErrStaleResult) {
			return transition, nil
		}
		return transition, fmt.Errorf("failed to load children of %s: %w", subcategoryID, err)
	}
	return transition, nil
}

func (s *Service) IsCategoryExpanded(id string) bool {
	return s.expansion.IsCategoryExpanded(id)
}

func (s *Service) IsSubcategoryExpanded(id string) bool {
	return s.expansion.IsSubcategoryExpanded(id)
}

// ApplyInvalidation applies an invalidation received from another console
// instance. Events this instance published itself are ignored.
func (s *Service) ApplyInvalidation(inv domain.Invalidation) {
	if inv.Origin != "" && inv.Origin == s.origin {
		return
	}
	log.Debugf("Applying remote invalidation of %s %s", inv.Collection, inv.SubcategoryID)
	s.store.Apply(inv)
}
