package recon_test

import (
	"testing"

	"github.com/warp/payment-engine/recon"
)

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		code string
		want int32
	}{
		{"USD", 2},
		{"EUR", 2},
		{"JPY", 0},
		{"KRW", 0},
		{"BHD", 3},
		{"usd", 2},   // case-insensitive ISO parse
		{"XXXX", 2},  // unknown falls back to 2
		{"", 2},      // empty falls back to 2
	}

	for _, c := range cases {
		if got := recon.MinorUnits(c.code); got != c.want {
			t.Errorf("MinorUnits(%q) = %d, want %d", c.code, got, c.want)
		}
	}
}

func TestRound(t *testing.T) {
	if got := recon.Round("JPY", dec("666.6")); !got.Equal(dec("667")) {
		t.Errorf("Round(JPY, 666.6) = %v, want 667", got)
	}
	if got := recon.Round("USD", dec("10.005")); !got.Equal(dec("10.01")) {
		t.Errorf("Round(USD, 10.005) = %v, want 10.01", got)
	}
	if got := recon.Round("BHD", dec("1.2345")); !got.Equal(dec("1.235")) {
		t.Errorf("Round(BHD, 1.2345) = %v, want 1.235", got)
	}
	if got := recon.Round("USD", dec("-10.005")); !got.Equal(dec("-10.01")) {
		t.Errorf("Round(USD, -10.005) = %v, want -10.01 (half away from zero)", got)
	}
}

func TestIsZeroDecimal(t *testing.T) {
	if !recon.IsZeroDecimal("JPY") {
		t.Error("JPY should be zero-decimal")
	}
	if recon.IsZeroDecimal("USD") {
		t.Error("USD should not be zero-decimal")
	}
}
