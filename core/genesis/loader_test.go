package genesis

import (
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"lendchain/config"
	"lendchain/native/custody"
	"lendchain/native/mortgage"
	"lendchain/storage"
)

const (
	signer   = "0x00000000000000000000000000000000000000c1"
	borrower = "0x0000000000000000000000000000000000000001"
	lender   = "0x0000000000000000000000000000000000000002"
	manager  = "0x0000000000000000000000000000000000000004"
	estates  = "0x00000000000000000000000000000000000000e1"
	shares   = "0x00000000000000000000000000000000000000f1"
	usd      = "0x00000000000000000000000000000000000000aa"
)

func testGenesis() *config.Genesis {
	return &config.Genesis{
		ChainID: "lendchain-test",
		Mortgage: config.Mortgage{
			FeeRate:        "0.1%",
			FeeReceiver:    "0x00000000000000000000000000000000000000fe",
			BaseURI:        "https://claims.example/",
			Managers:       []string{manager},
			NativeAttempts: 2,
		},
		Governance: config.Governance{Signers: []string{signer}, Threshold: 1},
		Currencies: []config.Currency{
			{Address: "native", Available: true},
			{Address: usd, Available: true, Exclusive: true, Discount: "0.5"},
		},
		Zones: []config.Zone{{Name: "vn", Broker: "0x00000000000000000000000000000000000000b0", Commission: "0.1"}},
		Collections: []config.Collection{{
			Address:        estates,
			CollateralRole: true,
			Items:          []config.Item{{ID: 7, Owner: borrower, Zone: "VN"}},
		}},
		Fractionals: []config.Fractional{{
			Address: shares,
			Tokens: []config.FractionalToken{{
				ID: 1, Zone: "SG", Available: true,
				Holders: []config.Holding{{Owner: borrower, Amount: "100"}},
			}},
		}},
		Alloc: []config.Balance{
			{Account: lender, Amount: "5000000"},
			{Account: lender, Currency: usd, Amount: "700"},
		},
	}
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func TestBuildSeedsState(t *testing.T) {
	db := storage.NewMemDB()
	rt, err := Build(testGenesis(), db)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	balance, err := rt.Native.BalanceOf(addr(0x02))
	if err != nil || balance.Int64() != 5_000_000 {
		t.Fatalf("unexpected native balance %v %v", balance, err)
	}
	tokenBalance, err := rt.Tokens.BalanceOf(addr(0xaa), addr(0x02))
	if err != nil || tokenBalance.Int64() != 700 {
		t.Fatalf("unexpected token balance %v %v", tokenBalance, err)
	}
	if !rt.Currencies.IsExclusive(addr(0xaa)) {
		t.Fatalf("expected exclusive usd")
	}
	if broker, ok := rt.Zones.BrokerOf("VN"); !ok || broker != addr(0xb0) {
		t.Fatalf("unexpected broker %x %v", broker, ok)
	}
	if !rt.State.HasRole(mortgage.ManagerRole, []byte{19: 0x04}) {
		t.Fatalf("manager role not granted")
	}
	feeRate, err := rt.Engine.FeeRate()
	if err != nil || feeRate.String() != "0.001" {
		t.Fatalf("unexpected fee rate %s %v", feeRate, err)
	}
	if rt.Council.Threshold() != 1 || !rt.Council.IsSigner(addr(0xc1)) {
		t.Fatalf("unexpected council")
	}
	if chainID, ok, err := rt.Applied(); err != nil || !ok || chainID != "lendchain-test" {
		t.Fatalf("unexpected applied marker %q %v %v", chainID, ok, err)
	}

	id, err := rt.Engine.Borrow(addr(0x01), mortgage.BorrowRequest{
		Collateral: custody.Fractional(addr(0xf1), 1, big.NewInt(10)),
		Principal:  big.NewInt(1_000_000),
		Repayment:  big.NewInt(1_000_000),
		Duration:   60,
	})
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := rt.Engine.Lend(addr(0x02), id, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("lend: %v", err)
	}
	commission, _ := rt.Native.BalanceOf(addr(0xfe))
	if commission.Int64() != 1000 {
		t.Fatalf("fee receiver got %s", commission)
	}
}

func TestBuildIsIdempotentPerChain(t *testing.T) {
	db := storage.NewMemDB()
	if _, err := Build(testGenesis(), db); err != nil {
		t.Fatalf("build: %v", err)
	}
	rt, err := Build(testGenesis(), db)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	balance, err := rt.Native.BalanceOf(addr(0x02))
	if err != nil || balance.Int64() != 5_000_000 {
		t.Fatalf("allocation applied twice: %v %v", balance, err)
	}

	other := testGenesis()
	other.ChainID = "other"
	if _, err := Build(other, db); !errors.Is(err, ErrChainMismatch) {
		t.Fatalf("expected chain mismatch, got %v", err)
	}
}

func TestBuildRejectsReservedRegistry(t *testing.T) {
	g := testGenesis()
	claims := mortgage.ClaimRegistry
	g.Collections[0].Address = "0x" + hex.EncodeToString(claims[:])
	db := storage.NewMemDB()
	if _, err := Build(g, db); err == nil {
		t.Fatalf("expected reserved registry error")
	}
	rt, err := Build(testGenesis(), db)
	if err != nil {
		t.Fatalf("build after failed attempt: %v", err)
	}
	if _, ok, _ := rt.Applied(); !ok {
		t.Fatalf("expected clean genesis after failed attempt")
	}
}
