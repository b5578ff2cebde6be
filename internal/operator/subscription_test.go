package operator

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/groupsub/internal/database"
	"github.com/JonMunkholm/groupsub/internal/entity"
	"github.com/JonMunkholm/groupsub/internal/metrics"
)

const (
	grantSQL  = "INSERT INTO phpbb_user_group (group_id,user_id,user_pending) SELECT pg.group_id, CAST($1 AS INTEGER), 0 FROM phpbb_groupsub_groups pg WHERE pg.pkg_id = $2 AND NOT EXISTS (SELECT 1 FROM phpbb_user_group ug WHERE ug.group_id = pg.group_id AND ug.user_id = $3)"
	revokeSQL = "DELETE FROM phpbb_user_group WHERE (user_id, group_id) IN (SELECT s.user_id, pg.group_id FROM phpbb_groupsub_subs s JOIN phpbb_groupsub_groups pg ON pg.pkg_id = s.pkg_id WHERE s.sub_id IN"
	lockSQL   = "SELECT sub_active FROM phpbb_groupsub_subs WHERE sub_id = $1 FOR UPDATE"
)

func newSubscriptions(t *testing.T, opts ...Option) (*Subscriptions, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s := NewSubscriptionOperator(mock, database.NewTables("phpbb_"), testFactory(t), discardLogger(), opts...)
	return s, mock
}

func storedSubscription(t *testing.T, active bool) *entity.Subscription {
	t.Helper()
	sub, err := entity.SubscriptionFromRow(entity.SubscriptionRow{
		ID: 9, PackageID: 2, UserID: 7, Start: 1000, Expires: 2000, Active: active,
	})
	require.NoError(t, err)
	return sub
}

func TestAddSubscriptionGrantsGroups(t *testing.T) {
	s, mock := newSubscriptions(t)

	sub := testFactory(t).NewSubscription()
	require.NoError(t, entity.Set(
		func() error { return sub.SetPackage(2) },
		func() error { return sub.SetUser(7) },
		func() error { return sub.SetStart(1000) },
		func() error { return sub.ExtendDays(30) },
	))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO phpbb_groupsub_subs (pkg_id,user_id,sub_start,sub_expires,sub_active) VALUES ($1,$2,$3,$4,$5) RETURNING sub_id")).
		WithArgs(2, 7, int64(1000), int64(1000+30*86400), true).
		WillReturnRows(pgxmock.NewRows([]string{"sub_id"}).AddRow(11))
	mock.ExpectExec(regexp.QuoteMeta(grantSQL)).
		WithArgs(7, 2, 7).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	id, err := s.AddSubscription(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, 11, id)
	assert.Equal(t, 11, sub.ID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddInactiveSubscriptionSkipsGrant(t *testing.T) {
	s, mock := newSubscriptions(t)

	sub := testFactory(t).NewSubscription()
	require.NoError(t, entity.Set(
		func() error { return sub.SetPackage(2) },
		func() error { return sub.SetUser(7) },
		func() error { return sub.SetStart(1000) },
	))
	sub.SetActive(false)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO phpbb_groupsub_subs").
		WithArgs(2, 7, int64(1000), int64(0), false).
		WillReturnRows(pgxmock.NewRows([]string{"sub_id"}).AddRow(12))
	mock.ExpectCommit()

	_, err := s.AddSubscription(context.Background(), sub)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddSubscriptionRequiresUser(t *testing.T) {
	s, mock := newSubscriptions(t)

	sub := testFactory(t).NewSubscription()
	require.NoError(t, sub.SetPackage(2))

	_, err := s.AddSubscription(context.Background(), sub)
	assert.ErrorIs(t, err, entity.ErrInvalid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSubscriptionDeactivateRevokes(t *testing.T) {
	s, mock := newSubscriptions(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockSQL)).
		WithArgs(9).
		WillReturnRows(pgxmock.NewRows([]string{"sub_active"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta(revokeSQL)).
		WithArgs(9, true, 9).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE phpbb_groupsub_subs SET sub_start = $1, sub_expires = $2, sub_active = $3 WHERE sub_id = $4")).
		WithArgs(int64(1000), int64(2000), false, 9).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, s.UpdateSubscription(context.Background(), storedSubscription(t, false)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSubscriptionActivateGrants(t *testing.T) {
	s, mock := newSubscriptions(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockSQL)).
		WithArgs(9).
		WillReturnRows(pgxmock.NewRows([]string{"sub_active"}).AddRow(false))
	mock.ExpectExec("UPDATE phpbb_groupsub_subs").
		WithArgs(int64(1000), int64(2000), true, 9).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta(grantSQL)).
		WithArgs(7, 2, 7).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.UpdateSubscription(context.Background(), storedSubscription(t, true)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSubscriptionNotFound(t *testing.T) {
	s, mock := newSubscriptions(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockSQL)).
		WithArgs(9).
		WillReturnRows(pgxmock.NewRows([]string{"sub_active"}))
	mock.ExpectRollback()

	err := s.UpdateSubscription(context.Background(), storedSubscription(t, true))
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSubscription(t *testing.T) {
	s, mock := newSubscriptions(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockSQL)).
		WithArgs(9).
		WillReturnRows(pgxmock.NewRows([]string{"sub_active"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta(revokeSQL)).
		WithArgs(9, true, 9).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM phpbb_groupsub_subs WHERE sub_id = $1")).
		WithArgs(9).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	deleted, err := s.DeleteSubscription(context.Background(), 9)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSubscriptionMissing(t *testing.T) {
	s, mock := newSubscriptions(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockSQL)).
		WithArgs(9).
		WillReturnRows(pgxmock.NewRows([]string{"sub_active"}))
	mock.ExpectCommit()

	deleted, err := s.DeleteSubscription(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireSubscriptions(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s, mock := newSubscriptions(t, WithMetrics(m))
	now := time.Unix(5000, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT sub_id FROM phpbb_groupsub_subs WHERE sub_active = $1 AND sub_expires > $2 AND sub_expires <= $3 ORDER BY sub_id ASC FOR UPDATE")).
		WithArgs(true, 0, int64(5000)).
		WillReturnRows(pgxmock.NewRows([]string{"sub_id"}).AddRow(3).AddRow(4))
	// Memberships still granted by another active subscription are kept.
	mock.ExpectExec(regexp.QuoteMeta(revokeSQL+" ($1,$2) AND NOT EXISTS (SELECT 1 FROM phpbb_groupsub_subs s2 JOIN phpbb_groupsub_groups pg2 ON pg2.pkg_id = s2.pkg_id WHERE s2.user_id = s.user_id AND pg2.group_id = pg.group_id AND s2.sub_active = $3 AND s2.sub_id NOT IN ($4,$5)))")).
		WithArgs(3, 4, true, 3, 4).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE phpbb_groupsub_subs SET sub_active = $1 WHERE sub_id IN ($2,$3)")).
		WithArgs(false, 3, 4).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	n, err := s.ExpireSubscriptions(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Expired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperatorCalls.WithLabelValues("ExpireSubscriptions", "ok")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireSubscriptionsNothingDue(t *testing.T) {
	s, mock := newSubscriptions(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT sub_id FROM phpbb_groupsub_subs").
		WithArgs(true, 0, int64(5000)).
		WillReturnRows(pgxmock.NewRows([]string{"sub_id"}))
	mock.ExpectCommit()

	n, err := s.ExpireSubscriptions(context.Background(), time.Unix(5000, 0))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubscriptionsFiltered(t *testing.T) {
	s, mock := newSubscriptions(t)
	active := true

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN phpbb_users u ON u.user_id = s.user_id WHERE s.pkg_id = $1 AND s.sub_active = $2 ORDER BY s.sub_id DESC LIMIT 10 OFFSET 20")).
		WithArgs(2, true).
		WillReturnRows(pgxmock.NewRows([]string{"sub_id", "pkg_id", "user_id", "sub_start", "sub_expires", "sub_active", "pkg_name", "username"}).
			AddRow(9, 2, 7, int64(1000), int64(0), true, "Gold", "alice"))

	got, err := s.GetSubscriptions(context.Background(), SubscriptionFilter{PackageID: 2, Active: &active, Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 9, got[0].Subscription.ID())
	assert.Equal(t, "Gold", got[0].PackageName)
	assert.Equal(t, "alice", got[0].Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountSubscriptions(t *testing.T) {
	s, mock := newSubscriptions(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM phpbb_groupsub_subs s WHERE s.user_id = $1")).
		WithArgs(7).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	n, err := s.CountSubscriptions(context.Background(), SubscriptionFilter{UserID: 7})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestGetSubscriptionNotFound(t *testing.T) {
	s, mock := newSubscriptions(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM phpbb_groupsub_subs WHERE sub_id = $1")).
		WithArgs(9).
		WillReturnRows(pgxmock.NewRows([]string{"sub_id", "pkg_id", "user_id", "sub_start", "sub_expires", "sub_active"}))

	_, err := s.GetSubscription(context.Background(), 9)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}
