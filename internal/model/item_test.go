package model

import (
	"errors"
	"testing"
)

func TestParseCategory(t *testing.T) {
	for _, in := range []string{"KEYS", "keys", "  Keys  "} {
		c, err := ParseCategory(in)
		if err != nil {
			t.Errorf("ParseCategory(%q): %v", in, err)
		}
		if c != CategoryKeys {
			t.Errorf("ParseCategory(%q) = %q", in, c)
		}
	}
	if _, err := ParseCategory("GADGETS"); err == nil {
		t.Error("unknown category accepted")
	}
	if _, err := ParseCategory(""); err == nil {
		t.Error("empty category accepted")
	}
}

func TestCategoryOrDefault(t *testing.T) {
	if c := CategoryOrDefault("wallet"); c != CategoryWallet {
		t.Errorf("CategoryOrDefault(wallet) = %q", c)
	}
	if c := CategoryOrDefault("GADGETS"); c != CategoryOther {
		t.Errorf("CategoryOrDefault(GADGETS) = %q", c)
	}
}

func TestImageRefInvariants(t *testing.T) {
	cases := []struct {
		name  string
		ref   ImageRef
		zero  bool
		valid bool
	}{
		{"empty", ImageRef{}, true, true},
		{"url only", ImageRef{URL: "http://x/y", Key: "y"}, false, true},
		{"inline only", ImageRef{Inline: "aGVsbG8="}, false, true},
		{"both", ImageRef{URL: "http://x/y", Inline: "aGVsbG8="}, false, false},
	}
	for _, tc := range cases {
		if got := tc.ref.IsZero(); got != tc.zero {
			t.Errorf("%s: IsZero = %v, want %v", tc.name, got, tc.zero)
		}
		if got := tc.ref.Valid(); got != tc.valid {
			t.Errorf("%s: Valid = %v, want %v", tc.name, got, tc.valid)
		}
	}
}

func TestErrorUnwrapping(t *testing.T) {
	cause := errors.New("boom")
	var err error = &PartialFailureError{ItemID: "f1", Err: &StoreError{Op: "insert claimed item", Err: cause}}
	if !errors.Is(err, cause) {
		t.Error("PartialFailureError does not unwrap to its cause")
	}
	var store *StoreError
	if !errors.As(err, &store) {
		t.Error("PartialFailureError does not expose the StoreError")
	}
}
