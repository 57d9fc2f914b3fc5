package service

import (
	"context"

	"catalog/taxonomy/internal/client"
	"catalog/taxonomy/internal/domain"
	"catalog/taxonomy/internal/metrics"

	log "github.com/sirupsen/logrus"
)

// InvalidationPublisher fans local invalidations out to other console
// instances.
type InvalidationPublisher interface {
	PublishInvalidation(ctx context.Context, inv domain.Invalidation) error
}

// Commands are the twelve taxonomy mutations. Each makes exactly one API call
// and, on success, invalidates the affected collections. Failures are
// returned untouched and never retried.
type Commands struct {
	client    client.CatalogClient
	store     *Store
	publisher InvalidationPublisher
	origin    string
	metrics   *metrics.Metrics

	// Also refetch the whole category collection after a sub-subcategory
	// mutation; some category payloads embed leaf summaries.
	fullRefetchOnSubSub bool
}

type CommandsOption func(*Commands)

func WithPublisher(p InvalidationPublisher, origin string) CommandsOption {
	return func(c *Commands) {
		c.publisher = p
		c.origin = origin
	}
}

func WithFullRefetchOnSubSubMutation(enabled bool) CommandsOption {
	return func(c *Commands) {
		c.fullRefetchOnSubSub = enabled
	}
}

func WithCommandMetrics(m *metrics.Metrics) CommandsOption {
	return func(c *Commands) {
		c.metrics = m
	}
}

func NewCommands(c client.CatalogClient, store *Store, opts ...CommandsOption) *Commands {
	commands := &Commands{
		client:              c,
		store:               store,
		fullRefetchOnSubSub: true,
	}

	for _, opt := range opts {
		opt(commands)
	}

	return commands
}

func (c *Commands) CreateCategory(ctx context.Context, in domain.CategoryInput) (domain.RawRecord, error) {
	return c.run(ctx, domain.LevelCategory, domain.OperationCreate, "", func(ctx context.Context) (domain.RawRecord, error) {
		return c.client.CreateCategory(ctx, in)
	})
}

func (c *Commands) UpdateCategory(ctx context.Context, id string, in domain.CategoryInput) (domain.RawRecord, error) {
	if err := precondition(domain.LevelCategory, domain.OperationUpdate, "id", id); err != nil {
		return nil, err
	}
	return c.run(ctx, domain.LevelCategory, domain.OperationUpdate, "", func(ctx context.Context) (domain.RawRecord, error) {
		return c.client.UpdateCategory(ctx, id, in)
	})
}

func (c *Commands) DeleteCategory(ctx context.Context, id string) error {
	if err := precondition(domain.LevelCategory, domain.OperationDelete, "id", id); err != nil {
		return err
	}
	_, err := c.run(ctx, domain.LevelCategory, domain.OperationDelete, "", func(ctx context.Context) (domain.RawRecord, error) {
		return nil, c.client.DeleteCategory(ctx, id)
	})
	return err
}

func (c *Commands) ToggleCategoryStatus(ctx context.Context, id string) (domain.RawRecord, error) {
	if err := precondition(domain.LevelCategory, domain.OperationToggle, "id", id); err != nil {
		return nil, err
	}
	return c.run(ctx, domain.LevelCategory, domain.OperationToggle, "", func(ctx context.Context) (domain.RawRecord, error) {
		return c.client.ToggleCategoryStatus(ctx, id)
	})
}

func (c *Commands) CreateSubcategory(ctx context.Context, in domain.SubcategoryInput) (domain.RawRecord, error) {
	if err := precondition(domain.LevelSubcategory, domain.OperationCreate, "categoryId", in.CategoryID); err != nil {
		return nil, err
	}
	return c.run(ctx, domain.LevelSubcategory, domain.OperationCreate, "", func(ctx context.Context) (domain.RawRecord, error) {
		return c.client.CreateSubcategory(ctx, in)
	})
}

func (c *Commands) UpdateSubcategory(ctx context.Context, id string, in domain.SubcategoryInput) (domain.RawRecord, error) {
	if err := precondition(domain.LevelSubcategory, domain.OperationUpdate, "id", id); err != nil {
		return nil, err
	}
	return c.run(ctx, domain.LevelSubcategory, domain.OperationUpdate, "", func(ctx context.Context) (domain.RawRecord, error) {
		return c.client.UpdateSubcategory(ctx, id, in)
	})
}

func (c *Commands) DeleteSubcategory(ctx context.Context, id string) error {
	if err := precondition(domain.LevelSubcategory, domain.OperationDelete, "id", id); err != nil {
		return err
	}
	_, err := c.run(ctx, domain.LevelSubcategory, domain.OperationDelete, "", func(ctx context.Context) (domain.RawRecord, error) {
		return nil, c.client.DeleteSubcategory(ctx, id)
	})
	return err
}

func (c *Commands) ToggleSubcategoryStatus(ctx context.Context, id string) (domain.RawRecord, error) {
	if err := precondition(domain.LevelSubcategory, domain.OperationToggle, "id", id); err != nil {
		return nil, err
	}
	return c.run(ctx, domain.LevelSubcategory, domain.OperationToggle, "", func(ctx context.Context) (domain.RawRecord, error) {
		return c.client.ToggleSubcategoryStatus(ctx, id)
	})
}

func (c *Commands) CreateSubSubcategory(ctx context.Context, in domain.SubSubcategoryInput) (domain.RawRecord, error) {
	if err := precondition(domain.LevelSubSubcategory, domain.OperationCreate, "categoryId", in.CategoryID); err != nil {
		return nil, err
	}
	if err := precondition(domain.LevelSubSubcategory, domain.OperationCreate, "subcategoryId", in.SubcategoryID); err != nil {
		return nil, err
	}
	if in.Slug == "" {
		in.Slug = domain.Slugify(in.Name)
	}
	return c.run(ctx, domain.LevelSubSubcategory, domain.OperationCreate, in.SubcategoryID, func(ctx context.Context) (domain.RawRecord, error) {
		return c.client.CreateSubSubcategory(ctx, in)
	})
}

// UpdateSubSubcategory targets the branch named by in.SubcategoryID, or the
// branch the leaf is currently loaded under when that is empty.
func (c *Commands) UpdateSubSubcategory(ctx context.Context, id string, in domain.SubSubcategoryInput) (domain.RawRecord, error) {
	if err := precondition(domain.LevelSubSubcategory, domain.OperationUpdate, "id", id); err != nil {
		return nil, err
	}
	if in.Slug == "" {
		in.Slug = domain.Slugify(in.Name)
	}
	branch := c.branchOf(id, in.SubcategoryID)
	return c.run(ctx, domain.LevelSubSubcategory, domain.OperationUpdate, branch, func(ctx context.Context) (domain.RawRecord, error) {
		return c.client.UpdateSubSubcategory(ctx, id, in)
	})
}

func (c *Commands) DeleteSubSubcategory(ctx context.Context, id, subcategoryID string) error {
	if err := precondition(domain.LevelSubSubcategory, domain.OperationDelete, "id", id); err != nil {
		return err
	}
	branch := c.branchOf(id, subcategoryID)
	_, err := c.run(ctx, domain.LevelSubSubcategory, domain.OperationDelete, branch, func(ctx context.Context) (domain.RawRecord, error) {
		return nil, c.client.DeleteSubSubcategory(ctx, id)
	})
	return err
}

func (c *Commands) ToggleSubSubcategoryStatus(ctx context.Context, id, subcategoryID string) (domain.RawRecord, error) {
	if err := precondition(domain.LevelSubSubcategory, domain.OperationToggle, "id", id); err != nil {
		return nil, err
	}
	branch := c.branchOf(id, subcategoryID)
	return c.run(ctx, domain.LevelSubSubcategory, domain.OperationToggle, branch, func(ctx context.Context) (domain.RawRecord, error) {
		return c.client.ToggleSubSubcategoryStatus(ctx, id)
	})
}

func (c *Commands) run(
	ctx context.Context,
	level domain.Level,
	op domain.Operation,
	subcategoryID string,
	call func(ctx context.Context) (domain.RawRecord, error),
) (domain.RawRecord, error) {
	rec, err := call(ctx)
	if err != nil {
		c.metrics.Mutation(level.String(), string(op), "error")
		log.Errorf("❌ Failed to %s %s: %v", op, level, err)
		return nil, err
	}

	c.metrics.Mutation(level.String(), string(op), "ok")
	log.Infof("✅ %s %s succeeded", level.DisplayName(), op)

	for _, inv := range c.invalidations(level, subcategoryID) {
		c.store.Apply(inv)
		c.publish(ctx, inv)
	}

	return rec, nil
}

// invalidations lists what a successful mutation at level makes stale.
// Subcategories are embedded in the category payload, so both upper levels
// refetch the whole collection.
func (c *Commands) invalidations(level domain.Level, subcategoryID string) []domain.Invalidation {
	categories := domain.Invalidation{Collection: domain.CollectionCategories}

	if level != domain.LevelSubSubcategory {
		return []domain.Invalidation{categories}
	}

	var invs []domain.Invalidation
	if subcategoryID != "" {
		invs = append(invs, domain.Invalidation{
			Collection:    domain.CollectionSubSubcategories,
			SubcategoryID: subcategoryID,
		})
	}
	if c.fullRefetchOnSubSub || subcategoryID == "" {
		invs = append(invs, categories)
	}
	return invs
}

func (c *Commands) publish(ctx context.Context, inv domain.Invalidation) {
	if c.publisher == nil {
		return
	}
	inv.Origin = c.origin
	if err := c.publisher.PublishInvalidation(ctx, inv); err != nil {
		log.Warnf("⚠️ Failed to publish invalidation of %s: %v", inv.Collection, err)
	}
}

func (c *Commands) branchOf(subSubcategoryID, subcategoryID string) string {
	if subcategoryID != "" {
		return subcategoryID
	}
	if found, ok := c.store.SubcategoryOf(subSubcategoryID); ok {
		return found
	}
	return ""
}

func precondition(level domain.Level, op domain.Operation, field, value string) error {
	if value == "" {
		return &domain.PreconditionError{Level: level, Op: op, Field: field}
	}
	return nil
}
