// Package operator performs the SQL behind the admin pages: packages with
// their terms and groups, and the subscriptions that grant those groups.
package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/groupsub/internal/entity"
	"github.com/JonMunkholm/groupsub/internal/metrics"
)

var (
	ErrPackageNotFound      = errors.New("package not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// DB is the subset of pgxpool.Pool used by the operators.
// pgx.Tx and pgxmock pools satisfy it as well.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GroupNamer turns stored forum group names into display names.
type GroupNamer interface {
	Name(raw string) string
}

// GroupRef is a forum group attached to a package.
type GroupRef struct {
	ID   int    `json:"id" db:"group_id"`
	Name string `json:"name" db:"group_name"`
}

// PackageDetail is a package with its terms and groups.
type PackageDetail struct {
	Package *entity.Package `json:"package"`
	Terms   []*entity.Term  `json:"terms"`
	Groups  []GroupRef      `json:"groups"`
}

// PackageTerm is a single term together with its package and groups.
type PackageTerm struct {
	Package *entity.Package `json:"package"`
	Term    *entity.Term    `json:"term"`
	Groups  []GroupRef      `json:"groups"`
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// withTx runs fn in a transaction. It commits when fn returns nil and rolls
// back otherwise.
func withTx(ctx context.Context, db DB, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func collect[T any](ctx context.Context, db DB, b sq.Sqlizer) ([]T, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[T])
}

func collectInts(ctx context.Context, db DB, b sq.Sqlizer) ([]int, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

func scanOne(ctx context.Context, db DB, b sq.Sqlizer, dest ...any) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return db.QueryRow(ctx, query, args...).Scan(dest...)
}

func exec(ctx context.Context, db DB, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// instrument is shared by both operators to log and count each call.
type instrument struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func (in instrument) observe(op string, start time.Time, errp *error) {
	err := *errp
	in.metrics.Observe(op, start, err)
	if err != nil {
		in.logger.Error("operator call failed", "operation", op, "error", err)
		return
	}
	in.logger.Debug("operator call", "operation", op, "duration", time.Since(start))
}
