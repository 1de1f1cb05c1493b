package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"30.00", 3000},
		{"19.99", 1999},
		{"0.005", 1},
		{"0.004", 0},
		{"1234.5", 123450},
	}
	for _, tc := range tests {
		if got := MinorUnits(decimal.RequireFromString(tc.amount)); got != tc.want {
			t.Fatalf("MinorUnits(%s) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}

func TestMinorUnitsRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.Int64Range(0, 1_000_000_000).Draw(t, "cents")
		if got := MinorUnits(FromMinorUnits(cents)); got != cents {
			t.Fatalf("round trip of %d gave %d", cents, got)
		}
	})
}

func TestLineTotalMatchesMinorUnits(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.Int64Range(1, 10_000_000).Draw(t, "unit")
		qty := rapid.IntRange(1, 1000).Draw(t, "qty")
		total := LineTotal(FromMinorUnits(cents), qty)
		if MinorUnits(total) != cents*int64(qty) {
			t.Fatalf("line total %s for %d x %d", total, cents, qty)
		}
	})
}

func TestParseOrderStatus(t *testing.T) {
	if status, ok := ParseOrderStatus(" paid "); !ok || status != OrderStatusPaid {
		t.Fatalf("expected PAID, got %q %v", status, ok)
	}
	if status, ok := ParseOrderStatus("canceled"); !ok || status != OrderStatusCancelled {
		t.Fatalf("expected CANCELLED alias, got %q %v", status, ok)
	}
	if _, ok := ParseOrderStatus("LOST"); ok {
		t.Fatalf("expected unknown status to fail")
	}
}
