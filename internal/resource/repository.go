package resource

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekogravitycat/cowork-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/cowork-booking-backend/internal/pricing"
	"github.com/nekogravitycat/cowork-booking-backend/internal/timerange"
)

type Repository interface {
	Create(ctx context.Context, res *Resource) error
	GetByID(ctx context.Context, id string) (*Resource, error)
	List(ctx context.Context, filter Filter) ([]*Resource, int, error)
	Update(ctx context.Context, res *Resource) error
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var resourceColumns = []string{
	"id", "name", "description", "capacity",
	"price_per_hour", "price_per_day", "price_per_week", "price_per_month",
	"opening_open", "opening_close", "available", "created_at", "updated_at",
}

var sortColumns = map[string]string{
	"name":       "name",
	"capacity":   "capacity",
	"created_at": "created_at",
}

func errUnavailable(err error) error {
	return apperror.Wrap(err, http.StatusServiceUnavailable, "resource store unavailable")
}

func hoursColumns(h *OpeningHours) (openAt, closeAt *int32) {
	if h == nil {
		return nil, nil
	}
	o, c := int32(h.Open), int32(h.Close)
	return &o, &c
}

func scanResource(row pgx.Row, extra ...any) (*Resource, error) {
	var (
		res             Resource
		hour, day       int64
		week, month     int64
		openAt, closeAt *int32
	)
	dest := []any{
		&res.ID, &res.Name, &res.Description, &res.Capacity,
		&hour, &day, &week, &month,
		&openAt, &closeAt, &res.Available, &res.CreatedAt, &res.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	res.Rates = pricing.RateTable{
		Hour:  pricing.Money(hour),
		Day:   pricing.Money(day),
		Week:  pricing.Money(week),
		Month: pricing.Money(month),
	}
	if openAt != nil && closeAt != nil {
		res.OpeningHours = &OpeningHours{Open: timerange.Clock(*openAt), Close: timerange.Clock(*closeAt)}
	}
	return &res, nil
}

func (r *pgxRepository) Create(ctx context.Context, res *Resource) error {
	openAt, closeAt := hoursColumns(res.OpeningHours)
	query, args, err := psql.Insert("public.resources").
		Columns(
			"name", "description", "capacity",
			"price_per_hour", "price_per_day", "price_per_week", "price_per_month",
			"opening_open", "opening_close", "available",
		).
		Values(
			res.Name, res.Description, res.Capacity,
			int64(res.Rates.Hour), int64(res.Rates.Day), int64(res.Rates.Week), int64(res.Rates.Month),
			openAt, closeAt, res.Available,
		).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create resource query failed: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return errUnavailable(fmt.Errorf("create resource failed: %w", err))
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Resource, error) {
	query, args, err := psql.Select(resourceColumns...).
		From("public.resources").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get resource query failed: %w", err)
	}

	res, err := scanResource(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errUnavailable(fmt.Errorf("get resource failed: %w", err))
	}
	return res, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Resource, int, error) {
	query := psql.Select(append(resourceColumns, "count(*) OVER() as total_count")...).
		From("public.resources")

	if filter.AvailableOnly {
		query = query.Where(squirrel.Eq{"available": true})
	}
	if filter.MinCapacity > 0 {
		query = query.Where(squirrel.GtOrEq{"capacity": filter.MinCapacity})
	}

	orderBy, ok := sortColumns[filter.SortBy]
	if !ok {
		orderBy = "created_at"
	}
	orderDir := "DESC"
	if filter.SortOrder == "ASC" {
		orderDir = "ASC"
	}
	query = query.OrderBy(orderBy + " " + orderDir)

	// Pagination
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize
	query = query.Limit(uint64(filter.PageSize)).Offset(uint64(offset))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list resources query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, errUnavailable(fmt.Errorf("list resources failed: %w", err))
	}
	defer rows.Close()

	var result []*Resource
	var total int

	for rows.Next() {
		res, err := scanResource(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan resource failed: %w", err)
		}
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errUnavailable(fmt.Errorf("list resources failed: %w", err))
	}

	return result, total, nil
}

func (r *pgxRepository) Update(ctx context.Context, res *Resource) error {
	openAt, closeAt := hoursColumns(res.OpeningHours)
	query, args, err := psql.Update("public.resources").
		Set("name", res.Name).
		Set("description", res.Description).
		Set("capacity", res.Capacity).
		Set("price_per_hour", int64(res.Rates.Hour)).
		Set("price_per_day", int64(res.Rates.Day)).
		Set("price_per_week", int64(res.Rates.Week)).
		Set("price_per_month", int64(res.Rates.Month)).
		Set("opening_open", openAt).
		Set("opening_close", closeAt).
		Set("available", res.Available).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": res.ID}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update resource query failed: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&res.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return errUnavailable(fmt.Errorf("update resource failed: %w", err))
	}
	return nil
}
