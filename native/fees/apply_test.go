package fees

import (
	"errors"
	"math/big"
	"testing"

	"lendchain/native/rate"
)

func mustRate(t *testing.T, text string) rate.Rate {
	t.Helper()
	r, err := rate.Parse(text)
	if err != nil {
		t.Fatalf("parse rate %q: %v", text, err)
	}
	return r
}

func TestComputeFee(t *testing.T) {
	cases := []struct {
		name      string
		principal int64
		feeRate   string
		exclusive bool
		discount  string
		want      int64
	}{
		{"tenth of a percent", 1_000_000, "0.1%", false, "0", 1_000},
		{"discount ignored for non exclusive", 1_000_000, "0.1%", false, "50%", 1_000},
		{"exclusive discount", 1_000_000, "0.1%", true, "50%", 500},
		{"exclusive full discount", 1_000_000, "0.1%", true, "100%", 0},
		{"truncates", 999, "0.1%", false, "0", 0},
		{"zero rate", 1_000_000, "0", true, "10%", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fee, err := ComputeFee(big.NewInt(tc.principal), mustRate(t, tc.feeRate), tc.exclusive, mustRate(t, tc.discount))
			if err != nil {
				t.Fatalf("compute fee: %v", err)
			}
			if fee.Int64() != tc.want {
				t.Fatalf("fee = %s, want %d", fee, tc.want)
			}
		})
	}
}

func TestComputeFeeIsDeterministic(t *testing.T) {
	principal := big.NewInt(123_456_789)
	feeRate := mustRate(t, "0.37%")
	discount := mustRate(t, "12.5%")
	first, err := ComputeFee(principal, feeRate, true, discount)
	if err != nil {
		t.Fatalf("compute fee: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := ComputeFee(principal, feeRate, true, discount)
		if err != nil {
			t.Fatalf("compute fee: %v", err)
		}
		if again.Cmp(first) != 0 {
			t.Fatalf("fee changed between calls: %s vs %s", again, first)
		}
	}
	if principal.Int64() != 123_456_789 {
		t.Fatalf("principal mutated: %s", principal)
	}
}

func TestComputeFeeRejectsInvalidRate(t *testing.T) {
	_, err := ComputeFee(big.NewInt(10), rate.Rate{Value: 2, Decimals: 0}, false, rate.Zero())
	if !errors.Is(err, rate.ErrInvalidRate) {
		t.Fatalf("expected invalid rate, got %v", err)
	}
	_, err = ComputeFee(big.NewInt(-1), rate.Zero(), false, rate.Zero())
	if !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected negative amount, got %v", err)
	}
}

func TestSplitCommissionConservesFee(t *testing.T) {
	for _, commission := range []string{"0", "10%", "33.333%", "100%"} {
		for _, fee := range []int64{0, 1, 999, 1_000, 7_777_777} {
			split, err := SplitCommission(big.NewInt(fee), mustRate(t, commission))
			if err != nil {
				t.Fatalf("split %d at %s: %v", fee, commission, err)
			}
			total := new(big.Int).Add(split.Broker, split.Residual)
			if total.Int64() != fee {
				t.Fatalf("broker %s + residual %s != fee %d", split.Broker, split.Residual, fee)
			}
			if split.Residual.Sign() < 0 {
				t.Fatalf("negative residual for fee %d at %s", fee, commission)
			}
		}
	}
	split, err := SplitCommission(big.NewInt(1_000), mustRate(t, "10%"))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if split.Broker.Int64() != 100 || split.Residual.Int64() != 900 {
		t.Fatalf("unexpected split %s/%s", split.Broker, split.Residual)
	}
}

func TestNet(t *testing.T) {
	net, err := Net(big.NewInt(1_000_000), big.NewInt(1_000))
	if err != nil {
		t.Fatalf("net: %v", err)
	}
	if net.Int64() != 999_000 {
		t.Fatalf("unexpected net %s", net)
	}
	if _, err := Net(big.NewInt(1), big.NewInt(2)); !errors.Is(err, ErrFeeExceedsBase) {
		t.Fatalf("expected fee exceeds base, got %v", err)
	}
}
