package entity

import (
	"encoding/json"
	"math"
	"time"
)

// SubscriptionRow mirrors one row of the subscriptions table.
// Times are unix seconds; Expires is 0 for a subscription that never ends.
type SubscriptionRow struct {
	ID        int   `db:"sub_id"`
	PackageID int   `db:"pkg_id"`
	UserID    int   `db:"user_id"`
	Start     int64 `db:"sub_start"`
	Expires   int64 `db:"sub_expires"`
	Active    bool  `db:"sub_active"`
}

// Subscription grants one user the groups of one package for a period.
type Subscription struct {
	id      int
	pkg     int
	user    int
	start   int64
	expires int64
	active  bool
}

// ID returns the subscription ID, 0 until stored.
func (s *Subscription) ID() int { return s.id }

// SetID sets the ID. It must be positive.
func (s *Subscription) SetID(id int) error {
	if err := checkBounds("sub_id", int64(id), 1, math.MaxInt32); err != nil {
		return err
	}
	s.id = id
	return nil
}

// Package returns the ID of the subscribed package.
func (s *Subscription) Package() int { return s.pkg }

// SetPackage sets the subscribed package. It must be positive.
func (s *Subscription) SetPackage(id int) error {
	if err := checkBounds("pkg_id", int64(id), 1, math.MaxInt32); err != nil {
		return err
	}
	s.pkg = id
	return nil
}

// User returns the forum user ID.
func (s *Subscription) User() int { return s.user }

// SetUser sets the forum user. It must be positive.
func (s *Subscription) SetUser(id int) error {
	if err := checkBounds("user_id", int64(id), 1, math.MaxInt32); err != nil {
		return err
	}
	s.user = id
	return nil
}

// Start returns the start time in unix seconds.
func (s *Subscription) Start() int64 { return s.start }

// SetStart sets the start. It may not be after a set expiry.
func (s *Subscription) SetStart(unix int64) error {
	if err := checkBounds("sub_start", unix, 0, math.MaxInt64); err != nil {
		return err
	}
	if s.expires != 0 && s.expires < unix {
		return &OutOfBoundsError{Field: "sub_start", Value: unix, Min: 0, Max: s.expires}
	}
	s.start = unix
	return nil
}

// Expires returns the expiry in unix seconds, 0 if the subscription never ends.
func (s *Subscription) Expires() int64 { return s.expires }

// SetExpires sets the expiry. It must be 0 or not before the start.
func (s *Subscription) SetExpires(unix int64) error {
	if unix == 0 {
		s.expires = 0
		return nil
	}
	if err := checkBounds("sub_expires", unix, s.start, math.MaxInt64); err != nil {
		return err
	}
	s.expires = unix
	return nil
}

// ExtendDays sets the expiry to start plus days.
func (s *Subscription) ExtendDays(days int) error {
	if err := checkBounds("length", int64(days), 1, MaxLength); err != nil {
		return err
	}
	return s.SetExpires(s.start + int64(days)*24*60*60)
}

// Active reports whether the subscription currently grants its groups.
func (s *Subscription) Active() bool { return s.active }

// SetActive sets the active flag. Granting and revoking groups is up to
// the operator storing the subscription.
func (s *Subscription) SetActive(active bool) {
	s.active = active
}

// Expired reports whether the subscription has an expiry at or before now.
func (s *Subscription) Expired(now time.Time) bool {
	return s.expires != 0 && s.expires <= now.Unix()
}

// Validate checks the fields required before insert.
func (s *Subscription) Validate() error {
	if s.pkg == 0 {
		return &OutOfBoundsError{Field: "pkg_id", Value: 0, Min: 1, Max: math.MaxInt32}
	}
	if s.user == 0 {
		return &OutOfBoundsError{Field: "user_id", Value: 0, Min: 1, Max: math.MaxInt32}
	}
	return nil
}

// Import replaces the subscription's fields with row. On error it is unchanged.
func (s *Subscription) Import(r SubscriptionRow) error {
	var n Subscription
	if err := Set(
		func() error { return n.SetID(r.ID) },
		func() error { return n.SetPackage(r.PackageID) },
		func() error { return n.SetUser(r.UserID) },
		func() error { return n.SetStart(r.Start) },
		func() error { return n.SetExpires(r.Expires) },
	); err != nil {
		return err
	}
	n.active = r.Active
	*s = n
	return nil
}

// Row exports the subscription for storage.
func (s *Subscription) Row() SubscriptionRow {
	return SubscriptionRow{
		ID:        s.id,
		PackageID: s.pkg,
		UserID:    s.user,
		Start:     s.start,
		Expires:   s.expires,
		Active:    s.active,
	}
}

// SubscriptionFromRow builds a validated subscription from a row.
func SubscriptionFromRow(r SubscriptionRow) (*Subscription, error) {
	s := &Subscription{}
	if err := s.Import(r); err != nil {
		return nil, err
	}
	return s, nil
}

// MarshalJSON exposes the unexported fields to API clients.
func (s *Subscription) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        int   `json:"id"`
		PackageID int   `json:"packageId"`
		UserID    int   `json:"userId"`
		Start     int64 `json:"start"`
		Expires   int64 `json:"expires"`
		Active    bool  `json:"active"`
	}{s.id, s.pkg, s.user, s.start, s.expires, s.active})
}
