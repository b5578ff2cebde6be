package entity

import "time"

// Factory creates transient entities with their defaults applied.
type Factory interface {
	NewPackage() *Package
	NewTerm() *Term
	NewSubscription() *Subscription
}

// DefaultFactory is the Factory used by the server.
type DefaultFactory struct {
	currency string
	now      func() time.Time
}

// NewFactory returns a factory whose terms default to the given currency.
func NewFactory(defaultCurrency string) (*DefaultFactory, error) {
	code, err := ParseCurrency(defaultCurrency)
	if err != nil {
		return nil, err
	}
	return &DefaultFactory{currency: code, now: time.Now}, nil
}

// NewPackage returns an enabled package with no ID.
func (f *DefaultFactory) NewPackage() *Package {
	return &Package{enabled: true}
}

// NewTerm returns a term priced in the default currency.
func (f *DefaultFactory) NewTerm() *Term {
	return &Term{PriceOption: PriceOption{currency: f.currency}}
}

// NewSubscription returns an active subscription starting now.
func (f *DefaultFactory) NewSubscription() *Subscription {
	return &Subscription{start: f.now().Unix(), active: true}
}
