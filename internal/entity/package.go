package entity

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxIdentLength = 30
	maxNameLength  = 255
)

var identPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// PackageRow mirrors one row of the packages table.
type PackageRow struct {
	ID          int    `db:"pkg_id"`
	Ident       string `db:"pkg_ident"`
	Name        string `db:"pkg_name"`
	Description string `db:"pkg_desc"`
	Enabled     bool   `db:"pkg_enabled"`
	Order       int    `db:"pkg_order"`
}

// Package is a purchasable bundle of forum groups.
type Package struct {
	id      int
	ident   string
	name    string
	desc    string
	enabled bool
	order   int
}

// ID returns the package ID, 0 until stored.
func (p *Package) ID() int { return p.id }

// SetID sets the ID. It must be positive.
func (p *Package) SetID(id int) error {
	if err := checkBounds("pkg_id", int64(id), 1, math.MaxInt32); err != nil {
		return err
	}
	p.id = id
	return nil
}

// Ident returns the unique machine identifier used in links.
func (p *Package) Ident() string { return p.ident }

// SetIdent sets the ident: letters, digits and underscores only.
func (p *Package) SetIdent(ident string) error {
	switch {
	case ident == "":
		return &UnexpectedValueError{Field: "ident", Value: ident, Reason: "empty"}
	case len(ident) > maxIdentLength:
		return &UnexpectedValueError{Field: "ident", Value: ident, Reason: "too long"}
	case !identPattern.MatchString(ident):
		return &UnexpectedValueError{Field: "ident", Value: ident, Reason: "illegal characters"}
	}
	p.ident = ident
	return nil
}

// Name returns the display name.
func (p *Package) Name() string { return p.name }

// SetName trims and stores the display name.
func (p *Package) SetName(name string) error {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return &UnexpectedValueError{Field: "name", Value: name, Reason: "empty"}
	case utf8.RuneCountInString(name) > maxNameLength:
		return &UnexpectedValueError{Field: "name", Value: name, Reason: "too long"}
	}
	p.name = name
	return nil
}

// Description returns the free-form description.
func (p *Package) Description() string { return p.desc }

func (p *Package) SetDescription(desc string) {
	p.desc = desc
}

// Enabled reports whether the package is offered to users.
func (p *Package) Enabled() bool { return p.enabled }

func (p *Package) SetEnabled(enabled bool) {
	p.enabled = enabled
}

// Order returns the position in the package list.
func (p *Package) Order() int { return p.order }

// SetOrder sets the list position. Use the operator to reorder stored
// packages.
func (p *Package) SetOrder(order int) error {
	if err := checkBounds("pkg_order", int64(order), 0, MaxOrder); err != nil {
		return err
	}
	p.order = order
	return nil
}

// Validate checks the fields required before insert.
func (p *Package) Validate() error {
	if p.ident == "" {
		return &UnexpectedValueError{Field: "ident", Reason: "not set"}
	}
	if p.name == "" {
		return &UnexpectedValueError{Field: "name", Reason: "not set"}
	}
	return nil
}

// Import replaces the package's fields with row. On error the package is unchanged.
func (p *Package) Import(r PackageRow) error {
	var n Package
	if err := Set(
		func() error { return n.SetID(r.ID) },
		func() error { return n.SetIdent(r.Ident) },
		func() error { return n.SetName(r.Name) },
		func() error { return n.SetOrder(r.Order) },
	); err != nil {
		return err
	}
	n.desc = r.Description
	n.enabled = r.Enabled
	*p = n
	return nil
}

// Row exports the package as a table row.
func (p *Package) Row() PackageRow {
	return PackageRow{
		ID:          p.id,
		Ident:       p.ident,
		Name:        p.name,
		Description: p.desc,
		Enabled:     p.enabled,
		Order:       p.order,
	}
}

// PackageFromRow builds a validated package from a row.
func PackageFromRow(r PackageRow) (*Package, error) {
	p := &Package{}
	if err := p.Import(r); err != nil {
		return nil, err
	}
	return p, nil
}

// MarshalJSON exposes the unexported fields to API clients.
func (p *Package) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          int    `json:"id"`
		Ident       string `json:"ident"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Enabled     bool   `json:"enabled"`
		Order       int    `json:"order"`
	}{p.id, p.ident, p.name, p.desc, p.enabled, p.order})
}
