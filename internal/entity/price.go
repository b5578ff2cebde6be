package entity

import (
	"math"
	"strings"

	"golang.org/x/text/currency"
)

// Column limits shared by the price fields (unsigned MEDIUMINT in the forum schema).
const (
	MaxPrice  = 16777215
	MaxLength = 16777215
	MaxOrder  = 16777215
)

// Priced is implemented by entities carrying a price option.
type Priced interface {
	Product() int
	SetProduct(id int) error
	Price() int
	SetPrice(price int) error
	Currency() string
	SetCurrency(code string) error
	Length() int
	SetLength(days int) error
	Order() int
	SetOrder(order int) error
}

// PriceOption is one price for a product: amount in the currency subunit,
// ISO 4217 currency code, subscription length in days and sort order.
// Setters validate and leave the field untouched on error.
type PriceOption struct {
	product  int
	price    int
	currency string
	length   int
	order    int
}

var _ Priced = (*PriceOption)(nil)

// Product returns the ID of the product this option belongs to, 0 if unset.
func (p *PriceOption) Product() int { return p.product }

// SetProduct sets the owning product ID.
func (p *PriceOption) SetProduct(id int) error {
	if err := checkBounds("product", int64(id), 1, math.MaxInt32); err != nil {
		return err
	}
	p.product = id
	return nil
}

// Price returns the price in the currency subunit.
func (p *PriceOption) Price() int { return p.price }

// SetPrice sets the price in the currency subunit.
func (p *PriceOption) SetPrice(price int) error {
	if err := checkBounds("price", int64(price), 0, MaxPrice); err != nil {
		return err
	}
	p.price = price
	return nil
}

// Currency returns the upper-case ISO 4217 code.
func (p *PriceOption) Currency() string { return p.currency }

// SetCurrency sets the currency code. Lower-case input is accepted.
func (p *PriceOption) SetCurrency(code string) error {
	unit, err := ParseCurrency(code)
	if err != nil {
		return err
	}
	p.currency = unit
	return nil
}

// Length returns the subscription length in days.
func (p *PriceOption) Length() int { return p.length }

// SetLength sets the subscription length in days. Zero is not allowed.
func (p *PriceOption) SetLength(days int) error {
	if err := checkBounds("length", int64(days), 1, MaxLength); err != nil {
		return err
	}
	p.length = days
	return nil
}

// Order returns the sort position.
func (p *PriceOption) Order() int { return p.order }

// SetOrder sets the sort position.
func (p *PriceOption) SetOrder(order int) error {
	if err := checkBounds("order", int64(order), 0, MaxOrder); err != nil {
		return err
	}
	p.order = order
	return nil
}

// ParseCurrency normalises and validates an ISO 4217 currency code.
func ParseCurrency(code string) (string, error) {
	norm := strings.ToUpper(strings.TrimSpace(code))
	if len(norm) != 3 {
		return "", &UnexpectedValueError{Field: "currency", Value: code, Reason: "must be a 3-letter code"}
	}
	unit, err := currency.ParseISO(norm)
	if err != nil {
		return "", &UnexpectedValueError{Field: "currency", Value: code, Reason: "unknown currency"}
	}
	return unit.String(), nil
}
