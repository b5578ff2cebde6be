package entity

import (
	"encoding/json"
	"math"
)

// TermRow mirrors one row of the terms table.
type TermRow struct {
	ID        int    `db:"term_id"`
	PackageID int    `db:"pkg_id"`
	Price     int    `db:"term_price"`
	Currency  string `db:"term_currency"`
	Length    int    `db:"term_length"`
	Order     int    `db:"term_order"`
}

// Term is one pricing option of a package. Its product is the package ID.
type Term struct {
	id int
	PriceOption
}

// ID returns the term ID, 0 for a term that has not been inserted.
func (t *Term) ID() int { return t.id }

// SetID assigns the database ID.
func (t *Term) SetID(id int) error {
	if err := checkBounds("term_id", int64(id), 1, math.MaxInt32); err != nil {
		return err
	}
	t.id = id
	return nil
}

// Package returns the owning package ID.
func (t *Term) Package() int { return t.Product() }

// SetPackage sets the owning package ID.
func (t *Term) SetPackage(id int) error { return t.SetProduct(id) }

// Validate checks the fields that have no usable zero value.
func (t *Term) Validate() error {
	if t.length == 0 {
		return &OutOfBoundsError{Field: "length", Value: 0, Min: 1, Max: MaxLength}
	}
	if t.currency == "" {
		return &UnexpectedValueError{Field: "currency", Reason: "not set"}
	}
	return nil
}

// Import replaces the term's fields with row. On error the term is unchanged.
func (t *Term) Import(r TermRow) error {
	var n Term
	if err := Set(
		func() error { return n.SetID(r.ID) },
		func() error { return n.SetPackage(r.PackageID) },
		func() error { return n.SetPrice(r.Price) },
		func() error { return n.SetCurrency(r.Currency) },
		func() error { return n.SetLength(r.Length) },
		func() error { return n.SetOrder(r.Order) },
	); err != nil {
		return err
	}
	*t = n
	return nil
}

// Row exports the term as a table row.
func (t *Term) Row() TermRow {
	return TermRow{
		ID:        t.id,
		PackageID: t.product,
		Price:     t.price,
		Currency:  t.currency,
		Length:    t.length,
		Order:     t.order,
	}
}

// TermFromRow builds a validated term from a row.
func TermFromRow(r TermRow) (*Term, error) {
	t := &Term{}
	if err := t.Import(r); err != nil {
		return nil, err
	}
	return t, nil
}

// MarshalJSON encodes the term with its exported row fields.
func (t *Term) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        int    `json:"id"`
		PackageID int    `json:"packageId"`
		Price     int    `json:"price"`
		Currency  string `json:"currency"`
		Length    int    `json:"length"`
		Order     int    `json:"order"`
	}{t.id, t.product, t.price, t.currency, t.length, t.order})
}
