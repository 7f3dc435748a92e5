// Package declaration_repo persists declaration periods in PostgreSQL.
package declaration_repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"gnrtax/internal/core/apperror"
	"gnrtax/internal/core/id"
	"gnrtax/internal/domain"
	"gnrtax/internal/domain/declaration"
	"gnrtax/internal/infrastructure/storage/postgres"
)

const tableName = "declaration_periods"

var declarationColumns = []string{
	"id", "deletion_mark", "version",
	"created_at", "updated_at", "created_by", "updated_by",
	"number", "period_type", "year", "period_index", "code",
	"start_date", "end_date", "status",
	"opening_stock", "entries", "exits", "closing_stock",
	"exits_reduced", "exits_standard",
	"tax_due", "client_count",
	"generated_at", "submitted_at", "validated_at",
	"amends_id", "amended_by_id", "comment",
}

// DeclarationRepo implements declaration.Repository on PostgreSQL.
type DeclarationRepo struct {
	txManager *postgres.TxManager
}

var _ declaration.Repository = (*DeclarationRepo)(nil)

// NewDeclarationRepo creates the declaration repository.
func NewDeclarationRepo(txManager *postgres.TxManager) *DeclarationRepo {
	return &DeclarationRepo{txManager: txManager}
}

func (r *DeclarationRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *DeclarationRepo) querier(ctx context.Context) postgres.Querier {
	return r.txManager.GetQuerier(ctx)
}

func (r *DeclarationRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder().
		Select(declarationColumns...).
		From(tableName)
}

// Create inserts a declaration.
func (r *DeclarationRepo) Create(ctx context.Context, d *declaration.Declaration) error {
	data := postgres.StructToMap(d)

	filteredData := make(map[string]any, len(declarationColumns))
	for _, col := range declarationColumns {
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
			return apperror.NewDuplicate(tableName, "code", d.Code).WithCause(err)
		}
		return fmt.Errorf("insert declaration: %w", err)
	}

	return nil
}

// Update modifies a declaration with optimistic locking.
func (r *DeclarationRepo) Update(ctx context.Context, d *declaration.Declaration) error {
	data := postgres.StructToMap(d)

	filteredData := make(map[string]any, len(declarationColumns))
	for _, col := range declarationColumns {
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
		Where(squirrel.Eq{"id": d.ID}).
		Where(squirrel.Eq{"version": d.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update declaration: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(tableName, d.ID)
	}

	return nil
}

// GetByID retrieves a declaration by ID.
func (r *DeclarationRepo) GetByID(ctx context.Context, declID id.ID) (*declaration.Declaration, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": declID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var d declaration.Declaration
	if err := pgxscan.Get(ctx, r.querier(ctx), &d, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(tableName, declID.String())
		}
		return nil, fmt.Errorf("get declaration: %w", err)
	}

	return &d, nil
}

// FindActiveByPeriod returns the non-cancelled declaration covering a period.
func (r *DeclarationRepo) FindActiveByPeriod(ctx context.Context, t declaration.PeriodType, year, index int) (*declaration.Declaration, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{
			"period_type":  t,
			"year":         year,
			"period_index": index,
		}).
		Where(squirrel.NotEq{"status": declaration.StatusCancelled}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var d declaration.Declaration
	if err := pgxscan.Get(ctx, r.querier(ctx), &d, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(tableName, fmt.Sprintf("%s %d/%d", t, year, index))
		}
		return nil, fmt.Errorf("find by period: %w", err)
	}

	return &d, nil
}

// FindLatestBefore returns the most recent active declaration of the same
// type ending strictly before the given date.
func (r *DeclarationRepo) FindLatestBefore(ctx context.Context, t declaration.PeriodType, before time.Time) (*declaration.Declaration, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"period_type": t}).
		Where(squirrel.NotEq{"status": declaration.StatusCancelled}).
		Where(squirrel.Lt{"end_date": before}).
		OrderBy("end_date DESC").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var d declaration.Declaration
	if err := pgxscan.Get(ctx, r.querier(ctx), &d, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(tableName, fmt.Sprintf("%s before %s", t, before.Format("2006-01-02")))
		}
		return nil, fmt.Errorf("find latest before: %w", err)
	}

	return &d, nil
}

// List retrieves declarations matching the filter.
func (r *DeclarationRepo) List(ctx context.Context, filter declaration.ListFilter) (domain.ListResult[*declaration.Declaration], error) {
	result := domain.ListResult[*declaration.Declaration]{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := r.baseSelect()

	if !filter.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deletion_mark": false})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"number": pattern},
			squirrel.ILike{"code": pattern},
		})
	}
	if filter.PeriodType != nil {
		q = q.Where(squirrel.Eq{"period_type": *filter.PeriodType})
	}
	if filter.Year != nil {
		q = q.Where(squirrel.Eq{"year": *filter.Year})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}

	countQ := r.builder().
		Select("COUNT(*)").
		FromSelect(q, "sub")

	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}

	querier := r.querier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count declarations: %w", err)
	}

	orderBy, err := parseOrderBy(filter.OrderBy)
	if err != nil {
		return result, err
	}
	q = q.OrderBy(orderBy)

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("list declarations: %w", err)
	}

	return result, nil
}

func parseOrderBy(orderBy string) (string, error) {
	if orderBy == "" {
		return "start_date DESC", nil
	}

	col := orderBy
	dir := "ASC"
	if strings.HasPrefix(orderBy, "-") {
		col = orderBy[1:]
		dir = "DESC"
	}

	for _, valid := range declarationColumns {
		if valid == col {
			return col + " " + dir, nil
		}
	}
	return "", apperror.NewValidation("invalid order column").
		WithDetail("orderBy", orderBy)
}
