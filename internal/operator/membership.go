package operator

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/JonMunkholm/groupsub/internal/database"
)

// grantGroups adds user to every group of pkgID. Existing memberships,
// pending or not, are left as they are.
func grantGroups(ctx context.Context, db DB, t database.Tables, userID, pkgID int) (int64, error) {
	held := sq.Select("1").
		From(t.UserGroup + " ug").
		Where("ug.group_id = pg.group_id").
		Where(sq.Eq{"ug.user_id": userID})

	groups := sq.Select("pg.group_id").
		Column("CAST(? AS INTEGER)", userID).
		Column("0").
		From(t.PackageGroups + " pg").
		Where(sq.Eq{"pg.pkg_id": pkgID}).
		Where(sq.Expr("NOT EXISTS (?)", held))

	n, err := exec(ctx, db, psql.Insert(t.UserGroup).
		Columns("group_id", "user_id", "user_pending").
		Select(groups))
	if err != nil {
		return 0, fmt.Errorf("grant groups of package %d to user %d: %w", pkgID, userID, err)
	}
	return n, nil
}

// revokeGroups removes the memberships granted by the given subscriptions.
// A membership stays when another active subscription of the same user,
// outside subIDs, grants the same group.
func revokeGroups(ctx context.Context, db DB, t database.Tables, subIDs []int) (int64, error) {
	if len(subIDs) == 0 {
		return 0, nil
	}

	stillGranted := sq.Select("1").
		From(t.Subscriptions + " s2").
		Join(t.PackageGroups + " pg2 ON pg2.pkg_id = s2.pkg_id").
		Where("s2.user_id = s.user_id").
		Where("pg2.group_id = pg.group_id").
		Where(sq.Eq{"s2.sub_active": true}).
		Where(sq.NotEq{"s2.sub_id": subIDs})

	granted := sq.Select("s.user_id", "pg.group_id").
		From(t.Subscriptions + " s").
		Join(t.PackageGroups + " pg ON pg.pkg_id = s.pkg_id").
		Where(sq.Eq{"s.sub_id": subIDs}).
		Where(sq.Expr("NOT EXISTS (?)", stillGranted))

	n, err := exec(ctx, db, psql.Delete(t.UserGroup).
		Where(sq.Expr("(user_id, group_id) IN (?)", granted)))
	if err != nil {
		return 0, fmt.Errorf("revoke groups of subscriptions %v: %w", subIDs, err)
	}
	return n, nil
}
