package registry

import (
	"errors"
	"math/big"
	"testing"

	"lendchain/core/state"
	"lendchain/native/rate"
	"lendchain/storage"
)

var (
	usd     = [20]byte{0xaa}
	estates = [20]byte{0xe1}
	shares  = [20]byte{0xf1}
	alice   = [20]byte{0x01}
	bob     = [20]byte{0x02}
	broker  = [20]byte{0xb0}
)

func newState() *state.Manager { return state.NewManager(storage.NewMemDB()) }

func TestCurrencies(t *testing.T) {
	currencies := NewCurrencies(newState())
	if currencies.IsAvailable(usd) {
		t.Fatalf("unregistered currency should be unavailable")
	}
	if err := currencies.Set(usd, CurrencyInfo{Available: true, Exclusive: true, Discount: rate.Rate{Value: 5, Decimals: 1}}); err != nil {
		t.Fatalf("set currency: %v", err)
	}
	if !currencies.IsAvailable(usd) || !currencies.IsExclusive(usd) {
		t.Fatalf("expected available exclusive currency")
	}
	if got := currencies.DiscountRate(usd); got != rate.New(500_000_000_000_000_000) {
		t.Fatalf("discount not normalized: %+v", got)
	}
	if err := currencies.Set(usd, CurrencyInfo{Discount: rate.Rate{Value: 11, Decimals: 1}}); !errors.Is(err, rate.ErrInvalidRate) {
		t.Fatalf("expected invalid rate, got %v", err)
	}
}

func TestZones(t *testing.T) {
	zones := NewZones(newState())
	if _, ok := zones.BrokerOf("vn"); ok {
		t.Fatalf("unexpected broker before registration")
	}
	if !zones.CommissionRateOf("vn").IsZero() {
		t.Fatalf("expected zero commission without broker")
	}
	if err := zones.SetBroker(" vn ", broker, rate.Rate{Value: 1, Decimals: 1}); err != nil {
		t.Fatalf("set broker: %v", err)
	}
	got, ok := zones.BrokerOf("VN")
	if !ok || got != broker {
		t.Fatalf("unexpected broker %x %v", got, ok)
	}
	if zones.CommissionRateOf("VN") != rate.New(100_000_000_000_000_000) {
		t.Fatalf("unexpected commission rate")
	}
	if err := zones.SetBroker("", broker, rate.Zero()); err == nil {
		t.Fatalf("expected empty zone rejection")
	}
}

func TestCollections(t *testing.T) {
	collections := NewCollections(newState())
	if err := collections.Mint(estates, 1, alice, "vn"); !errors.Is(err, ErrUnknownRegistry) {
		t.Fatalf("expected unknown registry, got %v", err)
	}
	if err := collections.Register(estates, true); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := collections.Mint(estates, 1, alice, "vn"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := collections.Mint(estates, 1, bob, "vn"); err == nil {
		t.Fatalf("expected duplicate mint rejection")
	}
	view, ok := collections.Collection(estates)
	if !ok || !view.SupportsCollateralRole() {
		t.Fatalf("expected collateral-capable collection")
	}
	if err := view.Transfer(1, bob, alice); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if err := view.Transfer(1, alice, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	owner, err := view.OwnerOf(1)
	if err != nil || owner != bob {
		t.Fatalf("unexpected owner %x %v", owner, err)
	}
	zone, err := view.ZoneOf(1)
	if err != nil || zone != "VN" {
		t.Fatalf("unexpected zone %q %v", zone, err)
	}
	if _, err := view.OwnerOf(2); !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("expected unknown item, got %v", err)
	}
}

func TestFractionals(t *testing.T) {
	fractionals := NewFractionals(newState())
	if err := fractionals.Register(shares); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := fractionals.SetToken(shares, 9, "sg", true); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if err := fractionals.Mint(shares, 9, alice, big.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := fractionals.Mint(shares, 10, alice, big.NewInt(1)); !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("expected unknown token, got %v", err)
	}
	ledger, ok := fractionals.Ledger(shares)
	if !ok || !ledger.IsAvailable(9) || ledger.IsAvailable(10) {
		t.Fatalf("unexpected availability")
	}
	if err := ledger.Transfer(9, alice, bob, big.NewInt(1_001)); !errors.Is(err, ErrInsufficient) {
		t.Fatalf("expected insufficient, got %v", err)
	}
	if err := ledger.Transfer(9, alice, bob, big.NewInt(250)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	bal, err := ledger.BalanceOf(9, bob)
	if err != nil || bal.Int64() != 250 {
		t.Fatalf("unexpected balance %v %v", bal, err)
	}
	if _, ok := fractionals.Ledger(estates); ok {
		t.Fatalf("unexpected ledger for unregistered address")
	}
}
