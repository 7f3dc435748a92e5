package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"gnrtax/internal/domain"
	"gnrtax/internal/domain/catalogs/item"
	"gnrtax/internal/infrastructure/storage/postgres"
)

var itemColumns = []string{
	"id", "deletion_mark", "version",
	"code", "name",
	"tracked", "category", "baseline_rate", "unit", "item_group",
}

// ItemRepo implements item.Repository on PostgreSQL.
type ItemRepo struct {
	*BaseCatalogRepo[*item.TrackedItem]
}

var _ item.Repository = (*ItemRepo)(nil)

// NewItemRepo creates the tracked item repository.
func NewItemRepo(txManager *postgres.TxManager) *ItemRepo {
	return &ItemRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txManager,
			"tracked_items",
			itemColumns,
			func() *item.TrackedItem { return &item.TrackedItem{} },
		),
	}
}

// List retrieves tracked items with item-specific filters.
func (r *ItemRepo) List(ctx context.Context, filter item.ListFilter) (domain.ListResult[*item.TrackedItem], error) {
	return r.ListWith(ctx, filter.ListFilter, func(q squirrel.SelectBuilder) squirrel.SelectBuilder {
		if filter.Tracked != nil {
			q = q.Where(squirrel.Eq{"tracked": *filter.Tracked})
		}
		if filter.Category != nil {
			q = q.Where(squirrel.Eq{"category": *filter.Category})
		}
		return q
	})
}
