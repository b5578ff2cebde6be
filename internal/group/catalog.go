package group

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/patrickmn/go-cache"
)

const catalogKey = "groups"

// Querier is the read side of a pgx pool or transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Group is one forum group as shown to admins.
type Group struct {
	ID   int    `json:"id" db:"group_id"`
	Name string `json:"name" db:"group_name"`
	Type int    `json:"type" db:"group_type"`
}

// Catalog lists the forum's groups. Results are cached for the configured TTL
// since the forum's group table changes rarely.
type Catalog struct {
	db     Querier
	table  string
	helper *Helper
	cache  *cache.Cache
	logger *slog.Logger
}

// NewCatalog creates a catalog reading from the forum groups table.
func NewCatalog(db Querier, groupsTable string, helper *Helper, ttl time.Duration, logger *slog.Logger) *Catalog {
	return &Catalog{
		db:     db,
		table:  groupsTable,
		helper: helper,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

// List returns all forum groups ordered by name, with display names resolved.
func (c *Catalog) List(ctx context.Context) ([]Group, error) {
	if v, ok := c.cache.Get(catalogKey); ok {
		return v.([]Group), nil
	}

	query, args, err := sq.Select("group_id", "group_name", "group_type").
		From(c.table).
		OrderBy("group_name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build group query: %w", err)
	}

	rows, err := c.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	groups, err := pgx.CollectRows(rows, pgx.RowToStructByName[Group])
	if err != nil {
		return nil, fmt.Errorf("scan groups: %w", err)
	}

	for i := range groups {
		groups[i].Name = c.helper.Name(groups[i].Name)
	}

	c.cache.SetDefault(catalogKey, groups)
	c.logger.Debug("group catalog loaded", "count", len(groups))
	return groups, nil
}

// Exists reports whether every ID names a forum group.
// It returns the first unknown ID when one is missing.
func (c *Catalog) Exists(ctx context.Context, ids []int) (int, bool, error) {
	groups, err := c.List(ctx)
	if err != nil {
		return 0, false, err
	}
	known := make(map[int]struct{}, len(groups))
	for _, g := range groups {
		known[g.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return id, false, nil
		}
	}
	return 0, true, nil
}

// Invalidate drops the cached group list.
func (c *Catalog) Invalidate() {
	c.cache.Delete(catalogKey)
}
