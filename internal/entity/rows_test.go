package entity

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTermFromRow(t *testing.T) {
	row := TermRow{ID: 4, PackageID: 2, Price: 1999, Currency: "usd", Length: 30, Order: 1}

	term, err := TermFromRow(row)
	if err != nil {
		t.Fatalf("TermFromRow() error = %v", err)
	}

	want := TermRow{ID: 4, PackageID: 2, Price: 1999, Currency: "USD", Length: 30, Order: 1}
	if got := term.Row(); got != want {
		t.Errorf("Row() = %+v, want %+v", got, want)
	}
	if term.Package() != 2 {
		t.Errorf("Package() = %d, want 2", term.Package())
	}
}

func TestTermImportInvalidLeavesTermUnchanged(t *testing.T) {
	term, err := TermFromRow(TermRow{ID: 1, PackageID: 1, Price: 100, Currency: "EUR", Length: 7})
	if err != nil {
		t.Fatalf("TermFromRow() error = %v", err)
	}

	bad := TermRow{ID: 2, PackageID: 1, Price: 100, Currency: "EUR", Length: 0}
	if err := term.Import(bad); err == nil {
		t.Fatal("Import() expected error for zero length")
	}
	if term.ID() != 1 || term.Length() != 7 {
		t.Errorf("term changed after failed import: id=%d length=%d", term.ID(), term.Length())
	}
}

func TestTermValidate(t *testing.T) {
	f, err := NewFactory("usd")
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}
	term := f.NewTerm()
	if term.Currency() != "USD" {
		t.Errorf("default currency = %q, want USD", term.Currency())
	}
	if err := term.Validate(); err == nil {
		t.Error("Validate() expected error for unset length")
	}
	if err := term.SetLength(30); err != nil {
		t.Fatal(err)
	}
	if err := term.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestPackageFromRow(t *testing.T) {
	tests := []struct {
		name    string
		row     PackageRow
		wantErr bool
	}{
		{
			name: "valid",
			row:  PackageRow{ID: 1, Ident: "gold_tier", Name: " Gold ", Order: 0, Enabled: true},
		},
		{
			name:    "zero id",
			row:     PackageRow{ID: 0, Ident: "gold", Name: "Gold"},
			wantErr: true,
		},
		{
			name:    "ident with spaces",
			row:     PackageRow{ID: 1, Ident: "gold tier", Name: "Gold"},
			wantErr: true,
		},
		{
			name:    "ident too long",
			row:     PackageRow{ID: 1, Ident: strings.Repeat("a", 31), Name: "Gold"},
			wantErr: true,
		},
		{
			name:    "empty name",
			row:     PackageRow{ID: 1, Ident: "gold", Name: "   "},
			wantErr: true,
		},
		{
			name:    "negative order",
			row:     PackageRow{ID: 1, Ident: "gold", Name: "Gold", Order: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, err := PackageFromRow(tt.row)
			if (err != nil) != tt.wantErr {
				t.Fatalf("PackageFromRow() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("errors.Is(err, ErrInvalid) = false for %v", err)
				}
				return
			}
			if pkg.Name() != "Gold" {
				t.Errorf("Name() = %q, want trimmed %q", pkg.Name(), "Gold")
			}
			if !pkg.Enabled() {
				t.Error("Enabled() = false, want true")
			}
		})
	}
}

func TestPackageMarshalJSON(t *testing.T) {
	pkg, err := PackageFromRow(PackageRow{ID: 3, Ident: "vip", Name: "VIP", Description: "d", Order: 2})
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(pkg)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"id":3,"ident":"vip","name":"VIP","description":"d","enabled":false,"order":2}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
}

func TestSubscriptionExpiry(t *testing.T) {
	sub, err := SubscriptionFromRow(SubscriptionRow{ID: 1, PackageID: 2, UserID: 3, Start: 1000, Expires: 0, Active: true})
	if err != nil {
		t.Fatalf("SubscriptionFromRow() error = %v", err)
	}
	if sub.Expired(time.Unix(1<<40, 0)) {
		t.Error("subscription without expiry reported expired")
	}

	if err := sub.ExtendDays(1); err != nil {
		t.Fatal(err)
	}
	if sub.Expires() != 1000+86400 {
		t.Errorf("Expires() = %d, want %d", sub.Expires(), 1000+86400)
	}
	if !sub.Expired(time.Unix(1000+86400, 0)) {
		t.Error("Expired() at expiry = false, want true")
	}
	if err := sub.SetExpires(999); err == nil {
		t.Error("SetExpires before start expected error")
	}
	if err := sub.ExtendDays(0); err == nil {
		t.Error("ExtendDays(0) expected error")
	}
}

func TestSubscriptionFromRowRejectsExpiryBeforeStart(t *testing.T) {
	_, err := SubscriptionFromRow(SubscriptionRow{ID: 1, PackageID: 1, UserID: 1, Start: 500, Expires: 100})
	if err == nil {
		t.Fatal("expected error")
	}
	var oob *OutOfBoundsError
	if !errors.As(err, &oob) || oob.Field != "sub_expires" {
		t.Errorf("error = %v, want sub_expires out of bounds", err)
	}
}
