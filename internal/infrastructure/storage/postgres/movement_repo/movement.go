// Package movement_repo persists the tax movement ledger in PostgreSQL.
package movement_repo

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
	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/internal/domain"
	"gnrtax/internal/domain/registers/tax"
	"gnrtax/internal/infrastructure/storage/postgres"
)

const tableName = "tax_movements"

// sourceLineConstraint is the partial unique index over
// (source_doc_type, source_doc_id, source_line_no) WHERE status <> 'cancelled'.
// Violations mean the source line is already captured.
const sourceLineConstraint = "tax_movements_source_line_active"

var movementColumns = []string{
	"id", "deletion_mark", "version",
	"created_at", "updated_at", "created_by", "updated_by",
	"number", "date", "status", "comment",
	"item_id", "movement_type", "quantity", "unit_price",
	"rate", "tax_amount", "rate_source",
	"counterparty_id", "counterparty_kind", "category",
	"quarter", "semester", "year",
	"source_doc_type", "source_doc_id", "source_line_no",
	"superseded_by", "submitted_at", "cancelled_at",
}

// MovementRepo implements tax.Repository on PostgreSQL.
type MovementRepo struct {
	txManager *postgres.TxManager
}

var _ tax.Repository = (*MovementRepo)(nil)

// NewMovementRepo creates the ledger repository.
func NewMovementRepo(txManager *postgres.TxManager) *MovementRepo {
	return &MovementRepo{txManager: txManager}
}

func (r *MovementRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *MovementRepo) querier(ctx context.Context) postgres.Querier {
	return r.txManager.GetQuerier(ctx)
}

func (r *MovementRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder().
		Select(movementColumns...).
		From(tableName)
}

// Create inserts a movement. A unique violation on the active source line
// index is reported as CodeMovementExists so callers can treat re-capture
// of the same document line as idempotent.
func (r *MovementRepo) Create(ctx context.Context, m *entity.TaxMovement) error {
	data := postgres.StructToMap(m)

	filteredData := make(map[string]any, len(movementColumns))
	for _, col := range movementColumns {
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
			if pgErr.ConstraintName == sourceLineConstraint {
				return apperror.NewMovementExists(m.SourceDocType, m.SourceDocID, m.SourceLineNo).
					WithCause(err)
			}
			return apperror.NewDuplicate(tableName, "number", m.Number).WithCause(err)
		}
		return fmt.Errorf("insert movement: %w", err)
	}

	return nil
}

// Update modifies a movement with optimistic locking.
func (r *MovementRepo) Update(ctx context.Context, m *entity.TaxMovement) error {
	data := postgres.StructToMap(m)

	filteredData := make(map[string]any, len(movementColumns))
	for _, col := range movementColumns {
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
		Where(squirrel.Eq{"id": m.ID}).
		Where(squirrel.Eq{"version": m.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update movement: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(tableName, m.ID)
	}

	return nil
}

// GetByID retrieves a movement by ID.
func (r *MovementRepo) GetByID(ctx context.Context, movementID id.ID) (*entity.TaxMovement, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": movementID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m entity.TaxMovement
	if err := pgxscan.Get(ctx, r.querier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(tableName, movementID.String())
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}

	return &m, nil
}

// FindActiveBySourceLine returns the non-cancelled movement for a source line.
func (r *MovementRepo) FindActiveBySourceLine(ctx context.Context, docType, docID string, lineNo int) (*entity.TaxMovement, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{
			"source_doc_type": docType,
			"source_doc_id":   docID,
			"source_line_no":  lineNo,
		}).
		Where(squirrel.NotEq{"status": entity.StatusCancelled}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m entity.TaxMovement
	if err := pgxscan.Get(ctx, r.querier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(tableName, fmt.Sprintf("%s/%s#%d", docType, docID, lineNo))
		}
		return nil, fmt.Errorf("find by source line: %w", err)
	}

	return &m, nil
}

// ListBySourceDoc returns every movement tied to a source document,
// cancelled included, oldest line first.
func (r *MovementRepo) ListBySourceDoc(ctx context.Context, docType, docID string) ([]*entity.TaxMovement, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{
			"source_doc_type": docType,
			"source_doc_id":   docID,
		}).
		OrderBy("source_line_no ASC", "created_at ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []*entity.TaxMovement
	if err := pgxscan.Select(ctx, r.querier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("list by source doc: %w", err)
	}

	return movements, nil
}

// Delete physically removes a movement. The service layer restricts this
// to drafts.
func (r *MovementRepo) Delete(ctx context.Context, movementID id.ID) error {
	q := r.builder().
		Delete(tableName).
		Where(squirrel.Eq{"id": movementID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete movement: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(tableName, movementID.String())
	}

	return nil
}

// List retrieves movements matching the filter.
func (r *MovementRepo) List(ctx context.Context, filter tax.Filter) (domain.ListResult[*entity.TaxMovement], error) {
	result := domain.ListResult[*entity.TaxMovement]{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := r.applyFilter(r.baseSelect(), filter)

	countQ := r.builder().
		Select("COUNT(*)").
		FromSelect(q, "sub")

	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}

	querier := r.querier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count movements: %w", err)
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
		return result, fmt.Errorf("list movements: %w", err)
	}

	return result, nil
}

func (r *MovementRepo) applyFilter(q squirrel.SelectBuilder, filter tax.Filter) squirrel.SelectBuilder {
	if !filter.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deletion_mark": false})
	}
	if filter.Search != "" {
		q = q.Where(squirrel.ILike{"number": "%" + filter.Search + "%"})
	}
	if len(filter.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": filter.IDs})
	}
	if filter.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *filter.ItemID})
	}
	if filter.CounterpartyID != nil {
		q = q.Where(squirrel.Eq{"counterparty_id": *filter.CounterpartyID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.MovementType != nil {
		q = q.Where(squirrel.Eq{"movement_type": *filter.MovementType})
	}
	if filter.RateSource != nil {
		q = q.Where(squirrel.Eq{"rate_source": *filter.RateSource})
	}
	if filter.Category != nil {
		q = q.Where(squirrel.Eq{"category": *filter.Category})
	}
	if filter.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"date": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"date": *filter.DateTo})
	}
	if filter.CreatedTo != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.CreatedTo})
	}
	if filter.Year != nil {
		q = q.Where(squirrel.Eq{"year": *filter.Year})
	}
	if filter.Quarter != nil {
		q = q.Where(squirrel.Eq{"quarter": *filter.Quarter})
	}
	if filter.Semester != nil {
		q = q.Where(squirrel.Eq{"semester": *filter.Semester})
	}
	if filter.SourceDocType != "" {
		q = q.Where(squirrel.Eq{"source_doc_type": filter.SourceDocType})
	}
	if filter.SourceDocID != "" {
		q = q.Where(squirrel.Eq{"source_doc_id": filter.SourceDocID})
	}
	return q
}

func parseOrderBy(orderBy string) (string, error) {
	if orderBy == "" {
		return "date DESC", nil
	}

	col := orderBy
	dir := "ASC"
	if strings.HasPrefix(orderBy, "-") {
		col = orderBy[1:]
		dir = "DESC"
	}

	for _, valid := range movementColumns {
		if valid == col {
			return col + " " + dir, nil
		}
	}
	return "", apperror.NewValidation("invalid order column").
		WithDetail("orderBy", orderBy)
}

// RecentSubmitted returns submitted movements of an item dated since the
// given time, newest first. Feeds the historical rate strategy.
func (r *MovementRepo) RecentSubmitted(ctx context.Context, itemID id.ID, since time.Time, limit int) ([]*entity.TaxMovement, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{
			"item_id": itemID,
			"status":  entity.StatusSubmitted,
		}).
		Where(squirrel.GtOrEq{"date": since}).
		OrderBy("date DESC", "created_at DESC").
		Limit(uint64(limit))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []*entity.TaxMovement
	if err := pgxscan.Select(ctx, r.querier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("recent submitted: %w", err)
	}

	return movements, nil
}

// PeriodTotals aggregates submitted movements over [from, to] per
// counterparty. Stock direction is derived from movement_type so that
// entries and exits land in separate sums.
func (r *MovementRepo) PeriodTotals(ctx context.Context, from, to time.Time) ([]tax.CounterpartyTotals, error) {
	entryTypes := []string{
		string(entity.MovementEntry), string(entity.MovementPurchase), string(entity.MovementProduction),
	}
	exitTypes := []string{
		string(entity.MovementExit), string(entity.MovementSale),
	}

	q := r.builder().
		Select(
			"counterparty_id",
			"COALESCE(SUM(quantity) FILTER (WHERE movement_type = ANY(?)), 0)::bigint AS entries",
			"COALESCE(SUM(quantity) FILTER (WHERE movement_type = ANY(?)), 0)::bigint AS exits",
			"COALESCE(SUM(tax_amount) FILTER (WHERE movement_type = ANY(?)), 0) AS tax_amount",
		).
		From(tableName).
		Where(squirrel.Eq{"status": entity.StatusSubmitted}).
		Where(squirrel.GtOrEq{"date": from}).
		Where(squirrel.LtOrEq{"date": to}).
		GroupBy("counterparty_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	args = append([]any{entryTypes, exitTypes, exitTypes}, args...)

	var totals []tax.CounterpartyTotals
	if err := pgxscan.Select(ctx, r.querier(ctx), &totals, sql, args...); err != nil {
		return nil, fmt.Errorf("period totals: %w", err)
	}

	return totals, nil
}
