package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/groupsub/internal/database"
	"github.com/JonMunkholm/groupsub/internal/entity"
	"github.com/JonMunkholm/groupsub/internal/metrics"
)

// PackageOperator manages packages, their terms and their groups.
type PackageOperator interface {
	GetPackages(ctx context.Context, ident string) ([]PackageDetail, error)
	CountPackages(ctx context.Context) (int, error)
	GetPackageList(ctx context.Context) (map[int]string, error)
	GetPackage(ctx context.Context, id int) (*entity.Package, error)
	AddPackage(ctx context.Context, pkg *entity.Package) (*entity.Package, error)
	UpdatePackage(ctx context.Context, pkg *entity.Package) error
	SavePackage(ctx context.Context, pkg *entity.Package, terms []*entity.Term, groupIDs []int) (*entity.Package, error)
	DeletePackage(ctx context.Context, id int) (bool, error)
	MovePackage(ctx context.Context, id, offset int) error

	GetTerms(ctx context.Context, pkgID int) (map[int][]*entity.Term, error)
	SetTerms(ctx context.Context, pkgID int, terms []*entity.Term) error
	GetPackageTerm(ctx context.Context, termID int) (*PackageTerm, bool, error)

	GetGroups(ctx context.Context, pkgID int) ([]int, error)
	GetAllGroups(ctx context.Context) (map[int][]GroupRef, error)
	AddGroup(ctx context.Context, pkgID, groupID int) error
	RemoveGroup(ctx context.Context, pkgID, groupID int) error
	RemoveGroups(ctx context.Context, pkgID int) error
	SetGroups(ctx context.Context, pkgID int, groupIDs []int) error
}

var _ PackageOperator = (*Packages)(nil)

var (
	packageColumns = []string{"pkg_id", "pkg_ident", "pkg_name", "pkg_desc", "pkg_enabled", "pkg_order"}
	termColumns    = []string{"term_id", "pkg_id", "term_price", "term_currency", "term_length", "term_order"}
)

// Option configures an operator.
type Option func(*instrument)

// WithMetrics records every call in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(in *instrument) { in.metrics = m }
}

// Packages is the PostgreSQL PackageOperator.
type Packages struct {
	instrument
	db      DB
	t       database.Tables
	names   GroupNamer
	factory entity.Factory
}

// NewPackageOperator creates a package operator.
func NewPackageOperator(db DB, tables database.Tables, names GroupNamer, factory entity.Factory, logger *slog.Logger, opts ...Option) *Packages {
	p := &Packages{
		instrument: instrument{logger: logger.With("component", "package_operator")},
		db:         db,
		t:          tables,
		names:      names,
		factory:    factory,
	}
	for _, opt := range opts {
		opt(&p.instrument)
	}
	return p
}

// GetPackages returns packages in sort order with their terms and groups.
// An empty ident returns every package.
func (p *Packages) GetPackages(ctx context.Context, ident string) (out []PackageDetail, err error) {
	defer p.observe("GetPackages", time.Now(), &err)

	q := psql.Select(packageColumns...).
		From(p.t.Packages).
		OrderBy("pkg_order ASC", "pkg_id ASC")
	if ident != "" {
		q = q.Where(sq.Eq{"pkg_ident": ident})
	}

	rows, err := collect[entity.PackageRow](ctx, p.db, q)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}

	out = make([]PackageDetail, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	index := make(map[int]int, len(rows))
	ids := make([]int, 0, len(rows))
	for _, r := range rows {
		pkg := p.factory.NewPackage()
		if err := pkg.Import(r); err != nil {
			return nil, fmt.Errorf("package %d: %w", r.ID, err)
		}
		index[r.ID] = len(out)
		ids = append(ids, r.ID)
		out = append(out, PackageDetail{Package: pkg, Terms: []*entity.Term{}, Groups: []GroupRef{}})
	}

	terms, err := p.loadTerms(ctx, p.db, sq.Eq{"pkg_id": ids})
	if err != nil {
		return nil, err
	}
	for pkgID, list := range terms {
		out[index[pkgID]].Terms = list
	}

	groups, err := p.loadGroups(ctx, p.db, sq.Eq{"s.pkg_id": ids})
	if err != nil {
		return nil, err
	}
	for pkgID, list := range groups {
		out[index[pkgID]].Groups = list
	}

	return out, nil
}

// CountPackages returns the number of packages.
func (p *Packages) CountPackages(ctx context.Context) (n int, err error) {
	defer p.observe("CountPackages", time.Now(), &err)

	if err := scanOne(ctx, p.db, psql.Select("COUNT(*)").From(p.t.Packages), &n); err != nil {
		return 0, fmt.Errorf("count packages: %w", err)
	}
	return n, nil
}

// GetPackageList maps package IDs to names.
func (p *Packages) GetPackageList(ctx context.Context) (out map[int]string, err error) {
	defer p.observe("GetPackageList", time.Now(), &err)

	type nameRow struct {
		ID   int    `db:"pkg_id"`
		Name string `db:"pkg_name"`
	}
	rows, err := collect[nameRow](ctx, p.db, psql.Select("pkg_id", "pkg_name").
		From(p.t.Packages).
		OrderBy("pkg_name ASC"))
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}

	out = make(map[int]string, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Name
	}
	return out, nil
}

// GetPackage loads one package without its terms or groups. It returns
// ErrPackageNotFound when id is unknown.
func (p *Packages) GetPackage(ctx context.Context, id int) (pkg *entity.Package, err error) {
	defer p.observe("GetPackage", time.Now(), &err)
	return p.getPackage(ctx, p.db, id)
}

func (p *Packages) getPackage(ctx context.Context, db DB, id int) (*entity.Package, error) {
	rows, err := collect[entity.PackageRow](ctx, db, psql.Select(packageColumns...).
		From(p.t.Packages).
		Where(sq.Eq{"pkg_id": id}))
	if err != nil {
		return nil, fmt.Errorf("load package %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ErrPackageNotFound
	}

	pkg := p.factory.NewPackage()
	if err := pkg.Import(rows[0]); err != nil {
		return nil, fmt.Errorf("package %d: %w", id, err)
	}
	return pkg, nil
}

// AddPackage inserts pkg at the end of the sort order and returns the
// stored package.
func (p *Packages) AddPackage(ctx context.Context, pkg *entity.Package) (out *entity.Package, err error) {
	defer p.observe("AddPackage", time.Now(), &err)

	if err := pkg.Validate(); err != nil {
		return nil, err
	}

	err = withTx(ctx, p.db, func(tx pgx.Tx) error {
		stored, err := p.insertPackage(ctx, tx, pkg)
		if err != nil {
			return err
		}
		out = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Packages) insertPackage(ctx context.Context, db DB, pkg *entity.Package) (*entity.Package, error) {
	var count int
	if err := scanOne(ctx, db, psql.Select("COUNT(*)").From(p.t.Packages), &count); err != nil {
		return nil, fmt.Errorf("count packages: %w", err)
	}
	if err := pkg.SetOrder(count); err != nil {
		return nil, err
	}

	r := pkg.Row()
	var id int
	insert := psql.Insert(p.t.Packages).
		Columns("pkg_ident", "pkg_name", "pkg_desc", "pkg_enabled", "pkg_order").
		Values(r.Ident, r.Name, r.Description, r.Enabled, r.Order).
		Suffix("RETURNING pkg_id")
	if err := scanOne(ctx, db, insert, &id); err != nil {
		return nil, fmt.Errorf("insert package: %w", err)
	}
	return p.getPackage(ctx, db, id)
}

// UpdatePackage stores everything but the sort order, which only
// MovePackage changes.
func (p *Packages) UpdatePackage(ctx context.Context, pkg *entity.Package) (err error) {
	defer p.observe("UpdatePackage", time.Now(), &err)

	if pkg.ID() == 0 {
		return ErrPackageNotFound
	}
	if err := pkg.Validate(); err != nil {
		return err
	}
	return p.updatePackage(ctx, p.db, pkg)
}

func (p *Packages) updatePackage(ctx context.Context, db DB, pkg *entity.Package) error {
	r := pkg.Row()
	n, err := exec(ctx, db, psql.Update(p.t.Packages).
		Set("pkg_ident", r.Ident).
		Set("pkg_name", r.Name).
		Set("pkg_desc", r.Description).
		Set("pkg_enabled", r.Enabled).
		Where(sq.Eq{"pkg_id": r.ID}))
	if err != nil {
		return fmt.Errorf("update package %d: %w", r.ID, err)
	}
	if n == 0 {
		return ErrPackageNotFound
	}
	return nil
}

// SavePackage inserts pkg when it has no ID and updates it otherwise, then
// replaces its terms and groups. All of it commits or none of it does.
func (p *Packages) SavePackage(ctx context.Context, pkg *entity.Package, terms []*entity.Term, groupIDs []int) (out *entity.Package, err error) {
	defer p.observe("SavePackage", time.Now(), &err)

	if err := pkg.Validate(); err != nil {
		return nil, err
	}
	if err := validateTerms(terms); err != nil {
		return nil, err
	}

	err = withTx(ctx, p.db, func(tx pgx.Tx) error {
		stored := pkg
		if pkg.ID() == 0 {
			inserted, err := p.insertPackage(ctx, tx, pkg)
			if err != nil {
				return err
			}
			stored = inserted
		} else if err := p.updatePackage(ctx, tx, pkg); err != nil {
			return err
		}

		if err := p.replaceTerms(ctx, tx, stored.ID(), terms); err != nil {
			return err
		}
		if err := p.replaceGroups(ctx, tx, stored.ID(), groupIDs); err != nil {
			return err
		}
		out = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeletePackage removes a package with its subscriptions, groups and terms.
// It reports whether a package row was deleted.
func (p *Packages) DeletePackage(ctx context.Context, id int) (deleted bool, err error) {
	defer p.observe("DeletePackage", time.Now(), &err)

	err = withTx(ctx, p.db, func(tx pgx.Tx) error {
		active, err := collectInts(ctx, tx, psql.Select("sub_id").
			From(p.t.Subscriptions).
			Where(sq.Eq{"pkg_id": id, "sub_active": true}))
		if err != nil {
			return fmt.Errorf("load subscriptions of package %d: %w", id, err)
		}
		if _, err := revokeGroups(ctx, tx, p.t, active); err != nil {
			return err
		}

		steps := []struct {
			what  string
			table string
		}{
			{"subscriptions", p.t.Subscriptions},
			{"groups", p.t.PackageGroups},
			{"terms", p.t.Terms},
		}
		for _, s := range steps {
			if _, err := exec(ctx, tx, psql.Delete(s.table).Where(sq.Eq{"pkg_id": id})); err != nil {
				return fmt.Errorf("delete %s of package %d: %w", s.what, id, err)
			}
		}

		n, err := exec(ctx, tx, psql.Delete(p.t.Packages).Where(sq.Eq{"pkg_id": id}))
		if err != nil {
			return fmt.Errorf("delete package %d: %w", id, err)
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// MovePackage shifts a package offset places in the sort order. Negative
// offsets move it up. Targets past either end are clamped.
func (p *Packages) MovePackage(ctx context.Context, id, offset int) (err error) {
	defer p.observe("MovePackage", time.Now(), &err)

	return withTx(ctx, p.db, func(tx pgx.Tx) error {
		ids, err := collectInts(ctx, tx, psql.Select("pkg_id").
			From(p.t.Packages).
			OrderBy("pkg_order ASC", "pkg_id ASC").
			Suffix("FOR UPDATE"))
		if err != nil {
			return fmt.Errorf("load package order: %w", err)
		}

		from := slices.Index(ids, id)
		if from < 0 {
			return ErrPackageNotFound
		}

		for order, pkgID := range moveID(ids, from, offset) {
			if _, err := exec(ctx, tx, psql.Update(p.t.Packages).
				Set("pkg_order", order).
				Where(sq.Eq{"pkg_id": pkgID})); err != nil {
				return fmt.Errorf("reorder package %d: %w", pkgID, err)
			}
		}
		return nil
	})
}

// moveID returns a copy of ids with ids[from] moved offset places.
func moveID(ids []int, from, offset int) []int {
	id := ids[from]
	rest := slices.Delete(slices.Clone(ids), from, from+1)
	to := max(0, min(from+offset, len(rest)))
	return slices.Insert(rest, to, id)
}

// GetTerms returns terms keyed by package ID. A pkgID of 0 loads every package.
func (p *Packages) GetTerms(ctx context.Context, pkgID int) (out map[int][]*entity.Term, err error) {
	defer p.observe("GetTerms", time.Now(), &err)

	var where any
	if pkgID != 0 {
		where = sq.Eq{"pkg_id": pkgID}
	}
	return p.loadTerms(ctx, p.db, where)
}

func (p *Packages) loadTerms(ctx context.Context, db DB, where any) (map[int][]*entity.Term, error) {
	q := psql.Select(termColumns...).
		From(p.t.Terms).
		OrderBy("term_order ASC", "term_id ASC")
	if where != nil {
		q = q.Where(where)
	}

	rows, err := collect[entity.TermRow](ctx, db, q)
	if err != nil {
		return nil, fmt.Errorf("load terms: %w", err)
	}

	out := make(map[int][]*entity.Term)
	for _, r := range rows {
		term := p.factory.NewTerm()
		if err := term.Import(r); err != nil {
			return nil, fmt.Errorf("term %d: %w", r.ID, err)
		}
		out[r.PackageID] = append(out[r.PackageID], term)
	}
	return out, nil
}

// SetTerms replaces the terms of a package. Terms are stored in slice order
// and receive their new IDs.
func (p *Packages) SetTerms(ctx context.Context, pkgID int, terms []*entity.Term) (err error) {
	defer p.observe("SetTerms", time.Now(), &err)

	if err := validateTerms(terms); err != nil {
		return err
	}
	return withTx(ctx, p.db, func(tx pgx.Tx) error {
		return p.replaceTerms(ctx, tx, pkgID, terms)
	})
}

func validateTerms(terms []*entity.Term) error {
	for i, term := range terms {
		if err := term.Validate(); err != nil {
			return fmt.Errorf("term %d: %w", i, err)
		}
	}
	return nil
}

func (p *Packages) replaceTerms(ctx context.Context, db DB, pkgID int, terms []*entity.Term) error {
	for i, term := range terms {
		if err := entity.Set(
			func() error { return term.SetPackage(pkgID) },
			func() error { return term.SetOrder(i) },
		); err != nil {
			return fmt.Errorf("term %d: %w", i, err)
		}
	}

	if _, err := exec(ctx, db, psql.Delete(p.t.Terms).Where(sq.Eq{"pkg_id": pkgID})); err != nil {
		return fmt.Errorf("delete terms of package %d: %w", pkgID, err)
	}

	for _, term := range terms {
		r := term.Row()
		var id int
		insert := psql.Insert(p.t.Terms).
			Columns("pkg_id", "term_price", "term_currency", "term_length", "term_order").
			Values(r.PackageID, r.Price, r.Currency, r.Length, r.Order).
			Suffix("RETURNING term_id")
		if err := scanOne(ctx, db, insert, &id); err != nil {
			return fmt.Errorf("insert term of package %d: %w", pkgID, err)
		}
		if err := term.SetID(id); err != nil {
			return err
		}
	}
	return nil
}

type packageTermRow struct {
	entity.TermRow
	PkgIdent   string `db:"pkg_ident"`
	PkgName    string `db:"pkg_name"`
	PkgDesc    string `db:"pkg_desc"`
	PkgEnabled bool   `db:"pkg_enabled"`
	PkgOrder   int    `db:"pkg_order"`
}

// GetPackageTerm loads a term with its package and groups. It reports false
// when the term is missing or a stored row no longer passes validation.
func (p *Packages) GetPackageTerm(ctx context.Context, termID int) (out *PackageTerm, found bool, err error) {
	defer p.observe("GetPackageTerm", time.Now(), &err)

	rows, err := collect[packageTermRow](ctx, p.db, psql.Select(
		"t.term_id", "t.pkg_id", "t.term_price", "t.term_currency", "t.term_length", "t.term_order",
		"p.pkg_ident", "p.pkg_name", "p.pkg_desc", "p.pkg_enabled", "p.pkg_order").
		From(p.t.Terms + " t").
		Join(p.t.Packages + " p ON p.pkg_id = t.pkg_id").
		Where(sq.Eq{"t.term_id": termID}))
	if err != nil {
		return nil, false, fmt.Errorf("load term %d: %w", termID, err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	r := rows[0]

	groups, err := p.loadGroups(ctx, p.db, sq.Eq{"s.pkg_id": r.PackageID})
	if err != nil {
		return nil, false, err
	}

	pkg := p.factory.NewPackage()
	term := p.factory.NewTerm()
	err = entity.Set(
		func() error {
			return pkg.Import(entity.PackageRow{
				ID:          r.PackageID,
				Ident:       r.PkgIdent,
				Name:        r.PkgName,
				Description: r.PkgDesc,
				Enabled:     r.PkgEnabled,
				Order:       r.PkgOrder,
			})
		},
		func() error { return term.Import(r.TermRow) },
	)
	if errors.Is(err, entity.ErrInvalid) {
		p.logger.Warn("stored term failed validation", "term_id", termID, "error", err)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	out = &PackageTerm{Package: pkg, Term: term, Groups: groups[r.PackageID]}
	if out.Groups == nil {
		out.Groups = []GroupRef{}
	}
	return out, true, nil
}

// GetGroups returns the group IDs of a package.
func (p *Packages) GetGroups(ctx context.Context, pkgID int) (ids []int, err error) {
	defer p.observe("GetGroups", time.Now(), &err)

	ids, err = collectInts(ctx, p.db, psql.Select("group_id").
		From(p.t.PackageGroups).
		Where(sq.Eq{"pkg_id": pkgID}).
		OrderBy("group_id ASC"))
	if err != nil {
		return nil, fmt.Errorf("load groups of package %d: %w", pkgID, err)
	}
	return ids, nil
}

// GetAllGroups returns the groups of every package keyed by package ID.
func (p *Packages) GetAllGroups(ctx context.Context) (out map[int][]GroupRef, err error) {
	defer p.observe("GetAllGroups", time.Now(), &err)
	return p.loadGroups(ctx, p.db, nil)
}

type packageGroupRow struct {
	PackageID int    `db:"pkg_id"`
	GroupID   int    `db:"group_id"`
	Name      string `db:"group_name"`
}

// loadGroups keys groups by package. A group deleted from the forum keeps
// its ID with an empty name.
func (p *Packages) loadGroups(ctx context.Context, db DB, where any) (map[int][]GroupRef, error) {
	q := psql.Select("s.pkg_id", "s.group_id", "COALESCE(g.group_name, '') AS group_name").
		From(p.t.PackageGroups + " s").
		LeftJoin(p.t.Groups + " g ON g.group_id = s.group_id").
		OrderBy("s.pkg_id ASC", "s.group_id ASC")
	if where != nil {
		q = q.Where(where)
	}

	rows, err := collect[packageGroupRow](ctx, db, q)
	if err != nil {
		return nil, fmt.Errorf("load package groups: %w", err)
	}

	out := make(map[int][]GroupRef)
	for _, r := range rows {
		out[r.PackageID] = append(out[r.PackageID], GroupRef{ID: r.GroupID, Name: p.names.Name(r.Name)})
	}
	return out, nil
}

// AddGroup links a group to a package. Adding a linked group is a no-op.
func (p *Packages) AddGroup(ctx context.Context, pkgID, groupID int) (err error) {
	defer p.observe("AddGroup", time.Now(), &err)

	if _, err := exec(ctx, p.db, psql.Insert(p.t.PackageGroups).
		Columns("pkg_id", "group_id").
		Values(pkgID, groupID).
		Suffix("ON CONFLICT DO NOTHING")); err != nil {
		return fmt.Errorf("add group %d to package %d: %w", groupID, pkgID, err)
	}
	return nil
}

// RemoveGroup unlinks a group from a package. Existing memberships stay.
func (p *Packages) RemoveGroup(ctx context.Context, pkgID, groupID int) (err error) {
	defer p.observe("RemoveGroup", time.Now(), &err)

	if _, err := exec(ctx, p.db, psql.Delete(p.t.PackageGroups).
		Where(sq.Eq{"pkg_id": pkgID, "group_id": groupID})); err != nil {
		return fmt.Errorf("remove group %d from package %d: %w", groupID, pkgID, err)
	}
	return nil
}

// RemoveGroups unlinks every group from a package.
func (p *Packages) RemoveGroups(ctx context.Context, pkgID int) (err error) {
	defer p.observe("RemoveGroups", time.Now(), &err)

	if _, err := exec(ctx, p.db, psql.Delete(p.t.PackageGroups).Where(sq.Eq{"pkg_id": pkgID})); err != nil {
		return fmt.Errorf("remove groups of package %d: %w", pkgID, err)
	}
	return nil
}

// SetGroups replaces the group set of a package. Duplicate IDs are ignored.
func (p *Packages) SetGroups(ctx context.Context, pkgID int, groupIDs []int) (err error) {
	defer p.observe("SetGroups", time.Now(), &err)

	return withTx(ctx, p.db, func(tx pgx.Tx) error {
		return p.replaceGroups(ctx, tx, pkgID, groupIDs)
	})
}

func (p *Packages) replaceGroups(ctx context.Context, db DB, pkgID int, groupIDs []int) error {
	ids := slices.Clone(groupIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	if _, err := exec(ctx, db, psql.Delete(p.t.PackageGroups).Where(sq.Eq{"pkg_id": pkgID})); err != nil {
		return fmt.Errorf("clear groups of package %d: %w", pkgID, err)
	}
	if len(ids) == 0 {
		return nil
	}

	insert := psql.Insert(p.t.PackageGroups).Columns("pkg_id", "group_id")
	for _, id := range ids {
		insert = insert.Values(pkgID, id)
	}
	if _, err := exec(ctx, db, insert); err != nil {
		return fmt.Errorf("set groups of package %d: %w", pkgID, err)
	}
	return nil
}
