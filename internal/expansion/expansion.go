// Package expansion tracks which taxonomy rows are expanded in a console
// session. State is keyed by node id so it survives tree refetches, and lives
// only as long as the session.
package expansion

import (
	"sort"
	"sync"
)

// Transition is the outcome of toggling a subcategory.
type Transition struct {
	Expanded bool
	// NeedsFetch is set only on collapsed -> expanded, the point where the
	// subcategory's children are loaded.
	NeedsFetch bool
}

type State struct {
	mu            sync.RWMutex
	categories    map[string]struct{}
	subcategories map[string]struct{}
}

func New() *State {
	return &State{
		categories:    make(map[string]struct{}),
		subcategories: make(map[string]struct{}),
	}
}

// ToggleCategory flips the category and returns whether it is now expanded.
func (s *State) ToggleCategory(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return flip(s.categories, id)
}

func (s *State) ToggleSubcategory(id string) Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	expanded := flip(s.subcategories, id)
	return Transition{Expanded: expanded, NeedsFetch: expanded}
}

func (s *State) IsCategoryExpanded(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.categories[id]
	return ok
}

func (s *State) IsSubcategoryExpanded(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.subcategories[id]
	return ok
}

// ExpandedCategories returns the expanded category ids, sorted.
func (s *State) ExpandedCategories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedKeys(s.categories)
}

// ExpandedSubcategories returns the expanded subcategory ids, sorted.
func (s *State) ExpandedSubcategories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedKeys(s.subcategories)
}

// Reset collapses everything.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.categories = make(map[string]struct{})
	s.subcategories = make(map[string]struct{})
}

func flip(set map[string]struct{}, id string) bool {
	if _, ok := set[id]; ok {
		delete(set, id)
		return false
	}
	set[id] = struct{}{}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
