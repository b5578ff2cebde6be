package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/groupsub/internal/database"
	"github.com/JonMunkholm/groupsub/internal/entity"
)

// SubscriptionOperator manages subscriptions and the memberships they grant.
type SubscriptionOperator interface {
	GetSubscriptions(ctx context.Context, f SubscriptionFilter) ([]SubscriptionDetail, error)
	CountSubscriptions(ctx context.Context, f SubscriptionFilter) (int, error)
	GetSubscription(ctx context.Context, id int) (*entity.Subscription, error)
	AddSubscription(ctx context.Context, sub *entity.Subscription) (int, error)
	UpdateSubscription(ctx context.Context, sub *entity.Subscription) error
	DeleteSubscription(ctx context.Context, id int) (bool, error)
	ExpireSubscriptions(ctx context.Context, now time.Time) (int, error)
}

var _ SubscriptionOperator = (*Subscriptions)(nil)

var subscriptionColumns = []string{"sub_id", "pkg_id", "user_id", "sub_start", "sub_expires", "sub_active"}

// SubscriptionFilter narrows subscription listings. Zero values match everything.
type SubscriptionFilter struct {
	PackageID int
	UserID    int
	Active    *bool
	Limit     int
	Offset    int
}

func (f SubscriptionFilter) apply(q sq.SelectBuilder) sq.SelectBuilder {
	if f.PackageID > 0 {
		q = q.Where(sq.Eq{"s.pkg_id": f.PackageID})
	}
	if f.UserID > 0 {
		q = q.Where(sq.Eq{"s.user_id": f.UserID})
	}
	if f.Active != nil {
		q = q.Where(sq.Eq{"s.sub_active": *f.Active})
	}
	return q
}

// SubscriptionDetail is a subscription with the names shown in listings.
type SubscriptionDetail struct {
	Subscription *entity.Subscription `json:"subscription"`
	PackageName  string               `json:"packageName"`
	Username     string               `json:"username"`
}

type subscriptionDetailRow struct {
	entity.SubscriptionRow
	PackageName string `db:"pkg_name"`
	Username    string `db:"username"`
}

// Subscriptions is the PostgreSQL SubscriptionOperator.
type Subscriptions struct {
	instrument
	db      DB
	t       database.Tables
	factory entity.Factory
}

// NewSubscriptionOperator creates a subscription operator.
func NewSubscriptionOperator(db DB, tables database.Tables, factory entity.Factory, logger *slog.Logger, opts ...Option) *Subscriptions {
	s := &Subscriptions{
		instrument: instrument{logger: logger.With("component", "subscription_operator")},
		db:         db,
		t:          tables,
		factory:    factory,
	}
	for _, opt := range opts {
		opt(&s.instrument)
	}
	return s
}

// GetSubscriptions lists subscriptions, newest first.
func (s *Subscriptions) GetSubscriptions(ctx context.Context, f SubscriptionFilter) (out []SubscriptionDetail, err error) {
	defer s.observe("GetSubscriptions", time.Now(), &err)

	q := psql.Select(
		"s.sub_id", "s.pkg_id", "s.user_id", "s.sub_start", "s.sub_expires", "s.sub_active",
		"COALESCE(p.pkg_name, '') AS pkg_name", "COALESCE(u.username, '') AS username").
		From(s.t.Subscriptions + " s").
		LeftJoin(s.t.Packages + " p ON p.pkg_id = s.pkg_id").
		LeftJoin(s.t.Users + " u ON u.user_id = s.user_id").
		OrderBy("s.sub_id DESC")
	q = f.apply(q)
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	rows, err := collect[subscriptionDetailRow](ctx, s.db, q)
	if err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}

	out = make([]SubscriptionDetail, 0, len(rows))
	for _, r := range rows {
		sub := s.factory.NewSubscription()
		if err := sub.Import(r.SubscriptionRow); err != nil {
			return nil, fmt.Errorf("subscription %d: %w", r.ID, err)
		}
		out = append(out, SubscriptionDetail{Subscription: sub, PackageName: r.PackageName, Username: r.Username})
	}
	return out, nil
}

// CountSubscriptions counts the subscriptions matching f, ignoring its
// limit and offset.
func (s *Subscriptions) CountSubscriptions(ctx context.Context, f SubscriptionFilter) (n int, err error) {
	defer s.observe("CountSubscriptions", time.Now(), &err)

	q := f.apply(psql.Select("COUNT(*)").From(s.t.Subscriptions + " s"))
	if err := scanOne(ctx, s.db, q, &n); err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return n, nil
}

// GetSubscription loads one subscription. It returns
// ErrSubscriptionNotFound when id is unknown.
func (s *Subscriptions) GetSubscription(ctx context.Context, id int) (sub *entity.Subscription, err error) {
	defer s.observe("GetSubscription", time.Now(), &err)

	rows, err := collect[entity.SubscriptionRow](ctx, s.db, psql.Select(subscriptionColumns...).
		From(s.t.Subscriptions).
		Where(sq.Eq{"sub_id": id}))
	if err != nil {
		return nil, fmt.Errorf("load subscription %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ErrSubscriptionNotFound
	}

	sub = s.factory.NewSubscription()
	if err := sub.Import(rows[0]); err != nil {
		return nil, fmt.Errorf("subscription %d: %w", id, err)
	}
	return sub, nil
}

// AddSubscription stores sub and, when it is active, grants its groups.
// It returns the new ID, which is also set on sub.
func (s *Subscriptions) AddSubscription(ctx context.Context, sub *entity.Subscription) (id int, err error) {
	defer s.observe("AddSubscription", time.Now(), &err)

	if err := sub.Validate(); err != nil {
		return 0, err
	}

	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		r := sub.Row()
		insert := psql.Insert(s.t.Subscriptions).
			Columns("pkg_id", "user_id", "sub_start", "sub_expires", "sub_active").
			Values(r.PackageID, r.UserID, r.Start, r.Expires, r.Active).
			Suffix("RETURNING sub_id")
		if err := scanOne(ctx, tx, insert, &id); err != nil {
			return fmt.Errorf("insert subscription: %w", err)
		}
		if err := sub.SetID(id); err != nil {
			return err
		}

		if !r.Active {
			return nil
		}
		_, err := grantGroups(ctx, tx, s.t, r.UserID, r.PackageID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateSubscription stores the period and active flag of sub. Activating
// grants the package's groups; deactivating revokes them.
func (s *Subscriptions) UpdateSubscription(ctx context.Context, sub *entity.Subscription) (err error) {
	defer s.observe("UpdateSubscription", time.Now(), &err)

	if sub.ID() == 0 {
		return ErrSubscriptionNotFound
	}
	if err := sub.Validate(); err != nil {
		return err
	}

	return withTx(ctx, s.db, func(tx pgx.Tx) error {
		r := sub.Row()
		wasActive, err := s.lockActive(ctx, tx, r.ID)
		if err != nil {
			return err
		}

		if wasActive && !r.Active {
			if _, err := revokeGroups(ctx, tx, s.t, []int{r.ID}); err != nil {
				return err
			}
		}

		if _, err := exec(ctx, tx, psql.Update(s.t.Subscriptions).
			Set("sub_start", r.Start).
			Set("sub_expires", r.Expires).
			Set("sub_active", r.Active).
			Where(sq.Eq{"sub_id": r.ID})); err != nil {
			return fmt.Errorf("update subscription %d: %w", r.ID, err)
		}

		if !wasActive && r.Active {
			if _, err := grantGroups(ctx, tx, s.t, r.UserID, r.PackageID); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteSubscription revokes the subscription's memberships and removes it.
// It reports whether the subscription existed.
func (s *Subscriptions) DeleteSubscription(ctx context.Context, id int) (deleted bool, err error) {
	defer s.observe("DeleteSubscription", time.Now(), &err)

	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		active, err := s.lockActive(ctx, tx, id)
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if active {
			if _, err := revokeGroups(ctx, tx, s.t, []int{id}); err != nil {
				return err
			}
		}

		n, err := exec(ctx, tx, psql.Delete(s.t.Subscriptions).Where(sq.Eq{"sub_id": id}))
		if err != nil {
			return fmt.Errorf("delete subscription %d: %w", id, err)
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// ExpireSubscriptions deactivates every active subscription whose expiry is
// at or before now and revokes its memberships. It returns the number expired.
func (s *Subscriptions) ExpireSubscriptions(ctx context.Context, now time.Time) (n int, err error) {
	defer s.observe("ExpireSubscriptions", time.Now(), &err)

	err = withTx(ctx, s.db, func(tx pgx.Tx) error {
		ids, err := collectInts(ctx, tx, psql.Select("sub_id").
			From(s.t.Subscriptions).
			Where(sq.Eq{"sub_active": true}).
			Where(sq.Gt{"sub_expires": 0}).
			Where(sq.LtOrEq{"sub_expires": now.Unix()}).
			OrderBy("sub_id ASC").
			Suffix("FOR UPDATE"))
		if err != nil {
			return fmt.Errorf("find expired subscriptions: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		revoked, err := revokeGroups(ctx, tx, s.t, ids)
		if err != nil {
			return err
		}

		if _, err := exec(ctx, tx, psql.Update(s.t.Subscriptions).
			Set("sub_active", false).
			Where(sq.Eq{"sub_id": ids})); err != nil {
			return fmt.Errorf("deactivate expired subscriptions: %w", err)
		}

		n = len(ids)
		s.logger.Info("subscriptions expired", "count", n, "memberships_revoked", revoked)
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.metrics.AddExpired(n)
	return n, nil
}

// lockActive reads the active flag of a subscription and locks its row.
func (s *Subscriptions) lockActive(ctx context.Context, db DB, id int) (bool, error) {
	var active bool
	err := scanOne(ctx, db, psql.Select("sub_active").
		From(s.t.Subscriptions).
		Where(sq.Eq{"sub_id": id}).
		Suffix("FOR UPDATE"), &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrSubscriptionNotFound
	}
	if err != nil {
		return false, fmt.Errorf("lock subscription %d: %w", id, err)
	}
	return active, nil
}
