package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekogravitycat/cowork-booking-backend/internal/pricing"
	"github.com/nekogravitycat/cowork-booking-backend/internal/timerange"
)

// PgxStore persists reservations in Postgres.
//
// Writes that can create a conflict run in a transaction that first takes a
// transaction-scoped advisory lock on (resource, date), then re-reads the
// occupying reservations and evaluates the predicate, then writes. Writers
// for the same resource and date therefore serialize on the lock. The
// reservations table also carries an exclusion constraint over the same
// rule; a violation of it is reported as ErrSlotConflict.
type PgxStore struct {
	pool *pgxpool.Pool
}

func NewPgxStore(pool *pgxpool.Pool) *PgxStore {
	return &PgxStore{pool: pool}
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var reservationColumns = []string{
	"id", "resource_id", "requester_id", "reservation_date", "start_minute", "end_minute",
	"guests", "duration_type", "duration", "total_price",
	"status", "payment_status", "payment_method", "created_at", "updated_at",
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanReservation(row pgx.Row, extra ...any) (*Reservation, error) {
	var (
		r          Reservation
		date       time.Time
		start, end int
		price      int64
	)
	dest := []any{
		&r.ID, &r.ResourceID, &r.RequesterID, &date, &start, &end,
		&r.Guests, &r.DurationType, &r.Duration, &price,
		&r.Status, &r.PaymentStatus, &r.PaymentMethod, &r.CreatedAt, &r.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	r.Range = timerange.TimeRange{
		Date:  timerange.DateOf(date),
		Start: timerange.Clock(start),
		End:   timerange.Clock(end),
	}
	r.TotalPrice = pricing.Money(price)
	return &r, nil
}

func collect(rows pgx.Rows) ([]*Reservation, error) {
	defer rows.Close()
	var out []*Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation failed: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// mapWriteError translates constraint violations into domain errors.
func mapWriteError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.ExclusionViolation, pgerrcode.UniqueViolation:
			return ErrSlotConflict
		case pgerrcode.ForeignKeyViolation:
			return ErrResourceNotFound
		}
	}
	return storeUnavailable(fmt.Errorf("%s failed: %w", op, err))
}

// withSlotLock runs fn in a transaction holding the (resource, date) advisory lock.
func (s *PgxStore) withSlotLock(ctx context.Context, resourceID string, date timerange.Date, op string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storeUnavailable(fmt.Errorf("begin %s: %w", op, err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", resourceID+":"+date.String()); err != nil {
		return storeUnavailable(fmt.Errorf("lock slot for %s: %w", op, err))
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapWriteError(err, "commit "+op)
	}
	return nil
}

func (s *PgxStore) listOccupying(ctx context.Context, q querier, resourceID string, date timerange.Date) ([]*Reservation, error) {
	query, args, err := psql.Select(reservationColumns...).
		From("public.reservations").
		Where(squirrel.Eq{"resource_id": resourceID}).
		Where(squirrel.Eq{"reservation_date": date.Time()}).
		Where(squirrel.NotEq{"status": string(StatusCancelled)}).
		OrderBy("start_minute").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list occupying query failed: %w", err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, storeUnavailable(fmt.Errorf("list occupying failed: %w", err))
	}
	out, err := collect(rows)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return out, nil
}

func (s *PgxStore) TryInsert(ctx context.Context, r *Reservation, conflicts ConflictPredicate) error {
	return s.withSlotLock(ctx, r.ResourceID, r.Range.Date, "insert reservation", func(tx pgx.Tx) error {
		existing, err := s.listOccupying(ctx, tx, r.ResourceID, r.Range.Date)
		if err != nil {
			return err
		}
		if found := conflicts(r, existing); len(found) > 0 {
			return conflictError(found)
		}

		query, args, err := psql.Insert("public.reservations").
			Columns(
				"id", "resource_id", "requester_id", "reservation_date", "start_minute", "end_minute",
				"guests", "duration_type", "duration", "total_price",
				"status", "payment_status", "payment_method",
			).
			Values(
				r.ID, r.ResourceID, r.RequesterID, r.Range.Date.Time(), int(r.Range.Start), int(r.Range.End),
				r.Guests, string(r.DurationType), r.Duration, int64(r.TotalPrice),
				string(r.Status), string(r.PaymentStatus), string(r.PaymentMethod),
			).
			Suffix("RETURNING created_at, updated_at").
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert reservation query failed: %w", err)
		}

		if err := tx.QueryRow(ctx, query, args...).Scan(&r.CreatedAt, &r.UpdatedAt); err != nil {
			return mapWriteError(err, "insert reservation")
		}
		return nil
	})
}

func (s *PgxStore) TryReschedule(ctx context.Context, r *Reservation, conflicts ConflictPredicate) error {
	return s.withSlotLock(ctx, r.ResourceID, r.Range.Date, "reschedule reservation", func(tx pgx.Tx) error {
		var status Status
		err := tx.QueryRow(ctx, "SELECT status FROM public.reservations WHERE id = $1 FOR UPDATE", r.ID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return storeUnavailable(fmt.Errorf("lock reservation failed: %w", err))
		}
		if status.Terminal() {
			return ErrIllegalTransition
		}

		existing, err := s.listOccupying(ctx, tx, r.ResourceID, r.Range.Date)
		if err != nil {
			return err
		}
		if found := conflicts(r, existing); len(found) > 0 {
			return conflictError(found)
		}

		query, args, err := psql.Update("public.reservations").
			Set("reservation_date", r.Range.Date.Time()).
			Set("start_minute", int(r.Range.Start)).
			Set("end_minute", int(r.Range.End)).
			Set("total_price", int64(r.TotalPrice)).
			Set("updated_at", squirrel.Expr("now()")).
			Where(squirrel.Eq{"id": r.ID}).
			Suffix("RETURNING " + joinColumns()).
			ToSql()
		if err != nil {
			return fmt.Errorf("build reschedule reservation query failed: %w", err)
		}

		updated, err := scanReservation(tx.QueryRow(ctx, query, args...))
		if err != nil {
			return mapWriteError(err, "reschedule reservation")
		}
		*r = *updated
		return nil
	})
}

func joinColumns() string {
	out := ""
	for i, c := range reservationColumns {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func (s *PgxStore) Transition(ctx context.Context, id string, from, to Status, payment PaymentStatus) (*Reservation, error) {
	query, args, err := psql.Update("public.reservations").
		Set("status", string(to)).
		Set("payment_status", string(payment)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id, "status": string(from)}).
		Suffix("RETURNING " + joinColumns()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build transition query failed: %w", err)
	}

	r, err := scanReservation(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the reservation is gone or someone else moved it first.
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrIllegalTransition
	}
	if err != nil {
		return nil, storeUnavailable(fmt.Errorf("transition reservation failed: %w", err))
	}
	return r, nil
}

func (s *PgxStore) GetByID(ctx context.Context, id string) (*Reservation, error) {
	query, args, err := psql.Select(reservationColumns...).
		From("public.reservations").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get reservation query failed: %w", err)
	}

	r, err := scanReservation(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeUnavailable(fmt.Errorf("get reservation failed: %w", err))
	}
	return r, nil
}

func (s *PgxStore) ListOccupying(ctx context.Context, resourceID string, date timerange.Date) ([]*Reservation, error) {
	return s.listOccupying(ctx, s.pool, resourceID, date)
}

func (s *PgxStore) List(ctx context.Context, filter Filter) ([]*Reservation, int, error) {
	query := psql.Select(append(reservationColumns, "count(*) OVER() as total_count")...).
		From("public.reservations")

	if filter.RequesterID != "" {
		query = query.Where(squirrel.Eq{"requester_id": filter.RequesterID})
	}
	if filter.ResourceID != "" {
		query = query.Where(squirrel.Eq{"resource_id": filter.ResourceID})
	}
	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"status": string(filter.Status)})
	}
	if filter.Date != "" {
		query = query.Where(squirrel.Eq{"reservation_date": filter.Date.Time()})
	}

	query = query.OrderBy("reservation_date DESC", "start_minute DESC")

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
		return nil, 0, fmt.Errorf("build list reservations query failed: %w", err)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, storeUnavailable(fmt.Errorf("list reservations failed: %w", err))
	}
	defer rows.Close()

	var result []*Reservation
	var total int
	for rows.Next() {
		r, err := scanReservation(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan reservation failed: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storeUnavailable(fmt.Errorf("list reservations failed: %w", err))
	}
	return result, total, nil
}

func (s *PgxStore) ListStale(ctx context.Context, status Status, createdBefore time.Time, limit int) ([]*Reservation, error) {
	query := psql.Select(reservationColumns...).
		From("public.reservations").
		Where(squirrel.Eq{"status": string(status)}).
		Where(squirrel.Lt{"created_at": createdBefore}).
		OrderBy("created_at")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list stale query failed: %w", err)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storeUnavailable(fmt.Errorf("list stale reservations failed: %w", err))
	}
	out, err := collect(rows)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return out, nil
}
