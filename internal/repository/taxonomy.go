package repository

import (
	"context"
	"fmt"
	"time"

	"catalog/taxonomy/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS taxonomy_nodes (
	id          TEXT PRIMARY KEY,
	level       TEXT NOT NULL,
	parent_id   TEXT,
	category_id TEXT,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	slug        TEXT,
	is_active   BOOLEAN NOT NULL,
	synced_at   TIMESTAMPTZ NOT NULL
)`

const upsertNode = `
INSERT INTO taxonomy_nodes (id, level, parent_id, category_id, name, description, slug, is_active, synced_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id)
DO UPDATE SET level = $2, parent_id = $3, category_id = $4, name = $5,
	description = $6, slug = $7, is_active = $8, synced_at = $9`

// TaxonomyRepository mirrors the taxonomy into Postgres for reporting.
type TaxonomyRepository interface {
	EnsureSchema(ctx context.Context) error
	// SaveSnapshot upserts every node of snap and removes rows that are no
	// longer in it. Branches that failed to load keep their previous rows.
	SaveSnapshot(ctx context.Context, snap *domain.Snapshot, syncedAt time.Time) (removed int64, err error)
}

type taxonomyRepository struct {
	db *pgxpool.Pool
}

func NewTaxonomyRepository(db *pgxpool.Pool) TaxonomyRepository {
	return &taxonomyRepository{
		db: db,
	}
}

func (r *taxonomyRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create taxonomy_nodes: %w", err)
	}
	return nil
}

func (r *taxonomyRepository) SaveSnapshot(ctx context.Context, snap *domain.Snapshot, syncedAt time.Time) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin sync transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, n := range flatten(snap) {
		batch.Queue(upsertNode, n.id, n.level, n.parentID, n.categoryID, n.name, n.description, n.slug, n.isActive, syncedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to save taxonomy nodes: %w", err)
	}

	kept := failedBranches(snap)
	tag, err := tx.Exec(ctx,
		`DELETE FROM taxonomy_nodes
		WHERE synced_at < $1
		AND NOT (level = $2 AND parent_id = ANY($3))`,
		syncedAt, domain.LevelSubSubcategory.String(), kept)
	if err != nil {
		return 0, fmt.Errorf("failed to remove stale taxonomy nodes: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit sync transaction: %w", err)
	}

	return tag.RowsAffected(), nil
}

type node struct {
	id          string
	level       string
	parentID    *string
	categoryID  *string
	name        string
	description string
	slug        *string
	isActive    bool
}

func flatten(snap *domain.Snapshot) []node {
	var nodes []node
	for _, c := range snap.Categories {
		nodes = append(nodes, node{
			id:          c.ID,
			level:       domain.LevelCategory.String(),
			name:        c.Name,
			description: c.Description,
			isActive:    c.IsActive,
		})

		for _, sub := range c.Subcategories {
			nodes = append(nodes, node{
				id:          sub.ID,
				level:       domain.LevelSubcategory.String(),
				parentID:    ptr(c.ID),
				categoryID:  ptr(c.ID),
				name:        sub.Name,
				description: sub.Description,
				isActive:    sub.IsActive,
			})

			for _, leaf := range snap.SubSubcategories(sub.ID) {
				nodes = append(nodes, node{
					id:          leaf.ID,
					level:       domain.LevelSubSubcategory.String(),
					parentID:    ptr(sub.ID),
					categoryID:  ptr(c.ID),
					name:        leaf.Name,
					description: leaf.Description,
					slug:        optional(leaf.Slug),
					isActive:    leaf.IsActive,
				})
			}
		}
	}
	return nodes
}

func failedBranches(snap *domain.Snapshot) []string {
	ids := make([]string, 0, len(snap.BranchErrors))
	for id := range snap.BranchErrors {
		ids = append(ids, id)
	}
	return ids
}

func ptr(s string) *string {
	return &s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
