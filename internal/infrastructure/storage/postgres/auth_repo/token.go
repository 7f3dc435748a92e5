// Package auth_repo persists service tokens in PostgreSQL.
package auth_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/domain/auth"
	"gnrtax/internal/infrastructure/storage/postgres"
)

const tableName = "service_tokens"

var tokenColumns = []string{
	"id", "deletion_mark", "version",
	"name", "token_id", "hash", "roles",
	"created_at", "revoked_at", "last_used",
}

// TokenRepo implements auth.TokenRepository on PostgreSQL.
type TokenRepo struct {
	txManager *postgres.TxManager
}

var _ auth.TokenRepository = (*TokenRepo)(nil)

// NewTokenRepo creates the service token repository.
func NewTokenRepo(txManager *postgres.TxManager) *TokenRepo {
	return &TokenRepo{txManager: txManager}
}

func (r *TokenRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *TokenRepo) querier(ctx context.Context) postgres.Querier {
	return r.txManager.GetQuerier(ctx)
}

// Create inserts a new service token.
func (r *TokenRepo) Create(ctx context.Context, t *auth.ServiceToken) error {
	data := postgres.StructToMap(t)

	filteredData := make(map[string]any, len(tokenColumns))
	for _, col := range tokenColumns {
		if val, ok := data[col]; ok {
			filteredData[col] = val
		}
	}

	q := r.builder().
		Insert(tableName).
		SetMap(filteredData)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	_, err = r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperror.NewDuplicate(tableName, "token_id", t.TokenID).WithCause(err)
		}
		return fmt.Errorf("insert token: %w", err)
	}

	return nil
}

// GetByTokenID retrieves a token by its public identifier.
func (r *TokenRepo) GetByTokenID(ctx context.Context, tokenID string) (*auth.ServiceToken, error) {
	q := r.builder().
		Select(tokenColumns...).
		From(tableName).
		Where(squirrel.Eq{"token_id": tokenID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var t auth.ServiceToken
	if err := pgxscan.Get(ctx, r.querier(ctx), &t, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(tableName, tokenID)
		}
		return nil, fmt.Errorf("get token: %w", err)
	}

	return &t, nil
}

// Update modifies a token with optimistic locking.
func (r *TokenRepo) Update(ctx context.Context, t *auth.ServiceToken) error {
	data := postgres.StructToMap(t)

	filteredData := make(map[string]any, len(tokenColumns))
	for _, col := range tokenColumns {
		if col == "id" || col == "version" {
			continue
		}
		if val, ok := data[col]; ok {
			filteredData[col] = val
		}
	}

	q := r.builder().
		Update(tableName).
		SetMap(filteredData).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": t.ID}).
		Where(squirrel.Eq{"version": t.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(tableName, t.ID)
	}

	return nil
}

// List returns every service token, newest first.
func (r *TokenRepo) List(ctx context.Context) ([]*auth.ServiceToken, error) {
	q := r.builder().
		Select(tokenColumns...).
		From(tableName).
		OrderBy("created_at DESC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var tokens []*auth.ServiceToken
	if err := pgxscan.Select(ctx, r.querier(ctx), &tokens, sql, args...); err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}

	return tokens, nil
}
