package rate

import (
	"errors"
	"math/big"
	"testing"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad integer %q", s)
	}
	return v
}

func TestScale(t *testing.T) {
	cases := []struct {
		name   string
		amount *big.Int
		rate   Rate
		want   string
	}{
		{"tenth of a percent", big.NewInt(1_000_000), New(1_000_000_000_000_000), "1000"},
		{"truncates", big.NewInt(999), New(1_000_000_000_000_000), "0"},
		{"full", big.NewInt(123), One(), "123"},
		{"zero rate", big.NewInt(123), Zero(), "0"},
		{"nil amount", nil, One(), "0"},
		{"low decimals", big.NewInt(1_000), Rate{Value: 25, Decimals: 2}, "250"},
		{"large amount", mustBig(t, "100000000000000000000000000000"), New(500_000_000_000_000_000), "50000000000000000000000000000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Scale(tc.amount, tc.rate)
			if err != nil {
				t.Fatalf("scale: %v", err)
			}
			if got.String() != tc.want {
				t.Fatalf("scale = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestScaleOverflow(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if _, err := Scale(max, New(2)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := Scale(tooBig, One()); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow for out of range amount, got %v", err)
	}
	if _, err := Scale(big.NewInt(-1), One()); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected negative amount error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := One().Validate(); err != nil {
		t.Fatalf("100%% should be valid: %v", err)
	}
	if err := (Rate{Value: 101, Decimals: 2}).Validate(); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected invalid rate, got %v", err)
	}
	if err := (Rate{Value: 1, Decimals: MaxDecimals + 1}).Validate(); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected invalid rate for oversized decimals, got %v", err)
	}
}

func TestRebase(t *testing.T) {
	up, err := Rebase(Rate{Value: 5, Decimals: 3}, Decimals)
	if err != nil {
		t.Fatalf("rebase up: %v", err)
	}
	if up.Value != 5_000_000_000_000_000 || up.Decimals != Decimals {
		t.Fatalf("unexpected rebase up: %+v", up)
	}
	down, err := Rebase(Rate{Value: 1_234, Decimals: 4}, 2)
	if err != nil {
		t.Fatalf("rebase down: %v", err)
	}
	if down.Value != 12 {
		t.Fatalf("rebase down should truncate, got %d", down.Value)
	}
	if _, err := Rebase(Rate{Value: 1 << 62, Decimals: 0}, Decimals); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	cmp, err := Cmp(Rate{Value: 1, Decimals: 3}, New(1_000_000_000_000_000))
	if err != nil || cmp != 0 {
		t.Fatalf("expected equal rates, got %d %v", cmp, err)
	}
}

func TestParseAndString(t *testing.T) {
	cases := map[string]uint64{
		"0.001": 1_000_000_000_000_000,
		"0.1%":  1_000_000_000_000_000,
		"1":     1_000_000_000_000_000_000,
		" 25% ": 250_000_000_000_000_000,
		"0":     0,
	}
	for input, want := range cases {
		got, err := Parse(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got.Value != want || got.Decimals != Decimals {
			t.Fatalf("parse %q = %+v, want %d", input, got, want)
		}
	}
	for _, bad := range []string{"", "%", "-0.1", "abc", "0.0000000000000000001"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("expected error parsing %q", bad)
		}
	}
	if s := New(1_000_000_000_000_000).String(); s != "0.001" {
		t.Fatalf("unexpected string %q", s)
	}

	var r Rate
	if err := r.UnmarshalText([]byte("2.5%")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	text, _ := r.MarshalText()
	if string(text) != "0.025" {
		t.Fatalf("unexpected round trip %q", text)
	}
}
