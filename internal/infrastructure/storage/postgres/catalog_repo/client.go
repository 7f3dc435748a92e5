package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"gnrtax/internal/core/id"
	"gnrtax/internal/domain"
	"gnrtax/internal/domain/catalogs/client"
	"gnrtax/internal/infrastructure/storage/postgres"
)

var clientColumns = []string{
	"id", "deletion_mark", "version",
	"code", "name",
	"siren", "attestation_dossier", "attestation_deposit",
	"address_line", "postal_code", "city",
}

// ClientRepo implements client.Repository on PostgreSQL.
type ClientRepo struct {
	*BaseCatalogRepo[*client.Client]
}

var _ client.Repository = (*ClientRepo)(nil)

// NewClientRepo creates the client repository.
func NewClientRepo(txManager *postgres.TxManager) *ClientRepo {
	return &ClientRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txManager,
			"clients",
			clientColumns,
			func() *client.Client { return &client.Client{} },
		),
	}
}

// List retrieves clients with client-specific filters.
func (r *ClientRepo) List(ctx context.Context, filter client.ListFilter) (domain.ListResult[*client.Client], error) {
	return r.ListWith(ctx, filter.ListFilter, func(q squirrel.SelectBuilder) squirrel.SelectBuilder {
		if filter.WithAttestation != nil {
			if *filter.WithAttestation {
				q = q.Where("attestation_dossier <> ''").
					Where("attestation_deposit IS NOT NULL")
			} else {
				q = q.Where(squirrel.Or{
					squirrel.Eq{"attestation_dossier": ""},
					squirrel.Eq{"attestation_deposit": nil},
				})
			}
		}
		return q
	})
}

// GetByIDs loads multiple clients in one query, keyed by ID.
// Missing IDs are simply absent from the result.
func (r *ClientRepo) GetByIDs(ctx context.Context, clientIDs []id.ID) (map[id.ID]*client.Client, error) {
	result := make(map[id.ID]*client.Client, len(clientIDs))
	if len(clientIDs) == 0 {
		return result, nil
	}

	q := r.Builder().
		Select(clientColumns...).
		From("clients").
		Where(squirrel.Eq{"id": clientIDs})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var clients []*client.Client
	if err := pgxscan.Select(ctx, r.Querier(ctx), &clients, sql, args...); err != nil {
		return nil, fmt.Errorf("get clients by ids: %w", err)
	}

	for _, c := range clients {
		result[c.ID] = c
	}
	return result, nil
}
