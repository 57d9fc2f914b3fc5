package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"catalog/taxonomy/internal/domain"
	"catalog/taxonomy/internal/repository"
	"catalog/taxonomy/internal/state"

	log "github.com/sirupsen/logrus"
)

// Syncer mirrors a freshly loaded taxonomy into the reporting database.
type Syncer struct {
	service *Service
	repo    repository.TaxonomyRepository
	state   state.StateManager
}

// NewSyncer builds a Syncer. stateManager may be nil, in which case sync
// summaries are not recorded.
func NewSyncer(svc *Service, repo repository.TaxonomyRepository, stateManager state.StateManager) *Syncer {
	return &Syncer{
		service: svc,
		repo:    repo,
		state:   stateManager,
	}
}

// Sync refetches the whole tree, loading every branch even when eager
// population is off, and writes it to the repository.
func (s *Syncer) Sync(ctx context.Context) (*domain.SyncSummary, error) {
	log.Info("🔄 Starting taxonomy sync...")

	s.service.Refresh()
	snap, err := s.service.store.Tree(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy for sync: %w", err)
	}

	if !s.service.store.eager {
		s.service.store.populate(ctx, snap.Categories)
		snap = s.service.store.Snapshot()
	}

	if err := s.repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	syncedAt := time.Now().UTC()
	removed, err := s.repo.SaveSnapshot(ctx, snap, syncedAt)
	if err != nil {
		return nil, err
	}

	summary := &domain.SyncSummary{
		SyncedAt:       syncedAt,
		Nodes:          snap.NodeCount(),
		Removed:        removed,
		FailedBranches: failedBranchIDs(snap),
	}

	if s.state != nil {
		if err := s.state.SetLastSync(ctx, summary); err != nil {
			log.Warnf("⚠️ Failed to record sync summary: %v", err)
		}
	}

	log.Infof("✅ Synced %d categories, %d subcategories, %d sub-subcategories (%d removed)",
		summary.Nodes[domain.LevelCategory],
		summary.Nodes[domain.LevelSubcategory],
		summary.Nodes[domain.LevelSubSubcategory],
		removed,
	)
	if len(summary.FailedBranches) > 0 {
		log.Warnf("⚠️ %d branches failed to load and kept their previous rows", len(summary.FailedBranches))
	}

	return summary, nil
}

// LastSync returns the last recorded summary, or nil when none is available.
func (s *Syncer) LastSync(ctx context.Context) (*domain.SyncSummary, error) {
	if s.state == nil {
		return nil, nil
	}
	return s.state.GetLastSync(ctx)
}

func failedBranchIDs(snap *domain.Snapshot) []string {
	if len(snap.BranchErrors) == 0 {
		return nil
	}
	ids := make([]string, 0, len(snap.BranchErrors))
	for id := range snap.BranchErrors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
