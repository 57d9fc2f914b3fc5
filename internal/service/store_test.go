package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"catalog/taxonomy/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoBranchTree = `[
	{"_id": "c1", "name": "Electronics", "subcategories": [
		{"_id": "s1", "name": "Phones"},
		{"_id": "s2", "name": "Laptops"}
	]},
	{"_id": "c2", "name": "Books", "isActive": false, "subcategories": [
		{"_id": "s3", "name": "Fiction"}
	]}
]`

func TestStoreTree_DefaultsAndIdentity(t *testing.T) {
	fake := newFakeCatalog(`[{"_id": "c1", "name": "Electronics", "subcategories": [{"_id": "s1", "name": "Phones"}]}]`)
	store := NewStore(fake)

	snap, err := store.Tree(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Categories, 1)

	c1 := snap.Categories[0]
	assert.Equal(t, "c1", c1.ID)
	assert.True(t, c1.IsActive)
	require.Len(t, c1.Subcategories, 1)
	assert.Equal(t, "s1", c1.Subcategories[0].ID)
	assert.Equal(t, "c1", c1.Subcategories[0].CategoryID)
	assert.True(t, c1.Subcategories[0].IsActive)
	assert.False(t, snap.Stale)
	assert.False(t, snap.LoadedAt.IsZero())
}

func TestStoreTree_EagerPopulationScopesLeaves(t *testing.T) {
	fake := newFakeCatalog(twoBranchTree)
	fake.setSubSubs("s1", `[
		{"_id": "ss1", "name": "Android", "subcategoryId": "s1"},
		{"_id": "ss9", "name": "Stray", "subcategoryId": "s2"}
	]`)
	fake.setSubSubs("s2", `[{"_id": "ss2", "name": "Ultrabooks"}]`)

	store := NewStore(fake, WithMaxWorkers(2))
	snap, err := store.Tree(context.Background())
	require.NoError(t, err)

	s1 := snap.SubSubcategories("s1")
	require.Len(t, s1, 1)
	assert.Equal(t, "ss1", s1[0].ID)
	assert.Equal(t, "c1", s1[0].CategoryID)
	assert.Equal(t, "s1", s1[0].SubcategoryID)

	s2 := snap.SubSubcategories("s2")
	require.Len(t, s2, 1)
	assert.Equal(t, "ss2", s2[0].ID)
	assert.Equal(t, "s2", s2[0].SubcategoryID)

	assert.Empty(t, snap.SubSubcategories("s3"))
	assert.Equal(t, 1, fake.callCount("GET /sub-subcategories?subcategoryId=s3"))
	assert.Empty(t, snap.BranchErrors)
}

func TestStoreTree_PartialFailure(t *testing.T) {
	fake := newFakeCatalog(twoBranchTree)
	fake.setSubSubs("s1", `[{"_id": "ss1", "name": "Android"}]`)
	fake.subSubErrs["s2"] = &domain.APIError{Status: 500, Message: "boom"}
	fake.setSubSubs("s3", `[{"_id": "ss3", "name": "Fantasy"}]`)

	store := NewStore(fake)
	snap, err := store.Tree(context.Background())
	require.NoError(t, err)

	assert.Len(t, snap.SubSubcategories("s1"), 1)
	assert.Len(t, snap.SubSubcategories("s3"), 1)
	assert.Empty(t, snap.SubSubcategories("s2"))
	assert.Contains(t, snap.BranchErrors, "s2")
	assert.NotContains(t, snap.BranchErrors, "s1")

	sub, ok := snap.Subcategory("s2")
	require.True(t, ok)
	assert.NotNil(t, sub.SubSubcategories)
	assert.Empty(t, sub.SubSubcategories)
}

func TestStoreTree_FailedBranchIsRetryable(t *testing.T) {
	fake := newFakeCatalog(twoBranchTree)
	fake.subSubErrs["s2"] = errors.New("connection reset")

	store := NewStore(fake)
	_, err := store.Tree(context.Background())
	require.NoError(t, err)
	assert.True(t, store.BranchIsStale("s2"))

	fake.mu.Lock()
	delete(fake.subSubErrs, "s2")
	fake.mu.Unlock()
	fake.setSubSubs("s2", `[{"_id": "ss2", "name": "Ultrabooks"}]`)

	leaves, err := store.LoadSubSubcategories(context.Background(), "c1", "s2")
	require.NoError(t, err)
	assert.Len(t, leaves, 1)

	snap := store.Snapshot()
	assert.NotContains(t, snap.BranchErrors, "s2")
	assert.Len(t, snap.SubSubcategories("s2"), 1)
}

func TestSnapshot_ShowsResolvedBranchesDuringPopulation(t *testing.T) {
	fake := newFakeCatalog(twoBranchTree)
	fake.setSubSubs("s1", `[{"_id": "ss1", "name": "Android"}]`)
	fake.setSubSubs("s3", `[{"_id": "ss3", "name": "Fantasy"}]`)
	release := make(chan struct{})
	fake.block["s2"] = release

	store := NewStore(fake, WithMaxWorkers(3))

	done := make(chan error, 1)
	go func() {
		_, err := store.Tree(context.Background())
		done <- err
	}()

	// s2 is still in flight while its siblings land
	require.Eventually(t, func() bool {
		snap := store.Snapshot()
		_, s1 := snap.SubSubByParent["s1"]
		_, s3 := snap.SubSubByParent["s3"]
		return s1 && s3 && fake.callCount("GET /sub-subcategories?subcategoryId=s2") == 1
	}, time.Second, 5*time.Millisecond)

	snap := store.Snapshot()
	assert.Len(t, snap.Categories, 2)
	assert.Len(t, snap.SubSubcategories("s1"), 1)
	assert.Len(t, snap.SubSubcategories("s3"), 1)
	assert.NotContains(t, snap.SubSubByParent, "s2")
	assert.Empty(t, snap.SubSubcategories("s2"))

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("tree load did not return")
	}

	snap = store.Snapshot()
	assert.Contains(t, snap.SubSubByParent, "s2")
	assert.False(t, snap.Stale)
}

func TestStoreTree_RefetchesInvalidatedBranch(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCatalog(twoBranchTree)
	fake.setSubSubs("s1", `[{"_id": "ss1", "name": "Android", "isActive": true}]`)

	store := NewStore(fake)
	_, err := store.Tree(ctx)
	require.NoError(t, err)

	fake.setSubSubs("s1", `[{"_id": "ss1", "name": "Android", "isActive": false}]`)
	store.InvalidateSubSubcategories("s1")
	require.False(t, store.IsStale())

	snap, err := store.Tree(ctx)
	require.NoError(t, err)
	leaves := snap.SubSubcategories("s1")
	require.Len(t, leaves, 1)
	assert.False(t, leaves[0].IsActive)
	assert.False(t, store.BranchIsStale("s1"))

	assert.Equal(t, 1, fake.callCount("GET /categories"))
	assert.Equal(t, 2, fake.callCount("GET /sub-subcategories?subcategoryId=s1"))
	assert.Equal(t, 1, fake.callCount("GET /sub-subcategories?subcategoryId=s2"))
}

func TestStoreTree_CategoriesFailure(t *testing.T) {
	fake := newFakeCatalog("")
	fake.categoriesErr = &domain.TransportError{Op: "list categories", Err: errors.New("dial tcp: refused")}

	store := NewStore(fake)
	_, err := store.Tree(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsTransportError(err))
	assert.True(t, store.IsStale())
	assert.Empty(t, store.Snapshot().Categories)
}

func TestStoreTree_CachedUntilInvalidated(t *testing.T) {
	fake := newFakeCatalog(twoBranchTree)
	store := NewStore(fake, WithEagerPopulation(false))

	_, err := store.Tree(context.Background())
	require.NoError(t, err)
	_, err = store.Tree(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fake.callCount("GET /categories"))

	store.InvalidateCategories()
	assert.True(t, store.IsStale())
	assert.True(t, store.Snapshot().Stale)

	_, err = store.Tree(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fake.callCount("GET /categories"))
}

func TestStoreTree_ConcurrentReadsShareOneFetch(t *testing.T) {
	fake := newFakeCatalog(twoBranchTree)
	store := NewStore(fake, WithEagerPopulation(false))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Tree(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// singleflight collapses overlapping reads; late readers hit the cache
	assert.Equal(t, 1, fake.callCount("GET /categories"))
}

func TestStoreTree_EmbeddedSummariesUntilBranchLoads(t *testing.T) {
	fake := newFakeCatalog(`[{"_id": "c1", "name": "Electronics", "subcategories": [
		{"_id": "s1", "name": "Phones", "subSubcategories": [{"_id": "ss1", "name": "Android"}]}
	]}]`)
	fake.setSubSubs("s1", `[{"_id": "ss1", "name": "Android"}, {"_id": "ss2", "name": "iOS"}]`)

	store := NewStore(fake, WithEagerPopulation(false))
	snap, err := store.Tree(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.SubSubcategories("s1"), 1)
	assert.NotContains(t, snap.SubSubByParent, "s1")

	_, err = store.LoadSubSubcategories(context.Background(), "c1", "s1")
	require.NoError(t, err)
	snap = store.Snapshot()
	assert.Len(t, snap.SubSubcategories("s1"), 2)
	assert.Len(t, snap.SubSubByParent["s1"], 2)
}

func TestLoadSubSubcategories_UnknownBranch(t *testing.T) {
	fake := newFakeCatalog(twoBranchTree)
	store := NewStore(fake, WithEagerPopulation(false))
	_, err := store.Tree(context.Background())
	require.NoError(t, err)

	_, err = store.LoadSubSubcategories(context.Background(), "c2", "s1")
	assert.ErrorIs(t, err, domain.ErrStaleResult)
	assert.Zero(t, fake.callCount("GET /sub-subcategories?subcategoryId=s1"))
}

func TestLoadSubSubcategories_DiscardsResultForRemovedBranch(t *testing.T) {
	fake := newFakeCatalog(twoBranchTree)
	fake.setSubSubs("s1", `[{"_id": "ss1", "name": "Android"}]`)
	release := make(chan struct{})
	fake.block["s1"] = release

	store := NewStore(fake, WithEagerPopulation(false))
	_, err := store.Tree(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := store.LoadSubSubcategories(context.Background(), "c1", "s1")
		done <- err
	}()

	require.Eventually(t, func() bool {
		return fake.callCount("GET /sub-subcategories?subcategoryId=s1") == 1
	}, time.Second, 5*time.Millisecond)

	// s1 disappears from the tree while its children are in flight
	fake.setCategories(`[{"_id": "c1", "name": "Electronics", "subcategories": [{"_id": "s2", "name": "Laptops"}]}]`)
	store.InvalidateCategories()
	snap, err := store.Tree(context.Background())
	require.NoError(t, err)
	_, ok := snap.Subcategory("s1")
	require.False(t, ok)

	close(release)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrStaleResult)
	case <-time.After(time.Second):
		t.Fatal("branch load did not return")
	}

	snap = store.Snapshot()
	assert.NotContains(t, snap.SubSubByParent, "s1")
	assert.NotContains(t, snap.BranchErrors, "s1")
	for _, c := range snap.Categories {
		for _, sub := range c.Subcategories {
			for _, leaf := range sub.SubSubcategories {
				assert.NotEqual(t, "ss1", leaf.ID)
			}
		}
	}
}

func TestStoreTree_ReloadRebuildsBranches(t *testing.T) {
	fake := newFakeCatalog(twoBranchTree)
	fake.setSubSubs("s1", `[{"_id": "ss1", "name": "Android"}]`)

	store := NewStore(fake)
	_, err := store.Tree(context.Background())
	require.NoError(t, err)

	fake.setCategories(`[{"_id": "c2", "name": "Books", "subcategories": [{"_id": "s3", "name": "Fiction"}]}]`)
	store.InvalidateCategories()

	snap, err := store.Tree(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, snap.SubSubByParent, "s1")
	assert.Contains(t, snap.SubSubByParent, "s3")

	_, ok := store.CategoryOf("s1")
	assert.False(t, ok)
	owner, ok := store.CategoryOf("s3")
	assert.True(t, ok)
	assert.Equal(t, "c2", owner)
}

func TestStoreApply(t *testing.T) {
	fake := newFakeCatalog(twoBranchTree)
	store := NewStore(fake)
	_, err := store.Tree(context.Background())
	require.NoError(t, err)

	store.Apply(domain.Invalidation{Collection: domain.CollectionSubSubcategories, SubcategoryID: "s1"})
	assert.True(t, store.BranchIsStale("s1"))
	assert.False(t, store.BranchIsStale("s2"))
	assert.False(t, store.IsStale())

	store.Apply(domain.Invalidation{Collection: domain.CollectionSubSubcategories})
	assert.True(t, store.BranchIsStale("s2"))
	assert.True(t, store.BranchIsStale("s3"))

	store.Apply(domain.Invalidation{Collection: "unknown"})
	assert.False(t, store.IsStale())

	store.Apply(domain.Invalidation{Collection: domain.CollectionCategories})
	assert.True(t, store.IsStale())
}
