package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lendchain/crypto"
	"lendchain/native/rate"
)

var (
	testSignerBytes = func() [20]byte {
		var addr [20]byte
		addr[0] = 0x42
		addr[len(addr)-1] = 0x24
		return addr
	}()
	testSigner = crypto.MustNewAddress(crypto.LendPrefix, testSignerBytes).String()
	testAsset  = crypto.MustNewAddress(crypto.AssetPrefix, [20]byte{0xaa}).String()
)

func writeGenesis(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genesis.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	return path
}

func TestLoadParsesGenesis(t *testing.T) {
	path := writeGenesis(t, fmt.Sprintf(`ChainID = "lendchain-test"

[mortgage]
FeeRate = "0.1%%"
FeeReceiver = "0x00000000000000000000000000000000000000fe"
BaseURI = "https://claims.example/"
Managers = ["0x0000000000000000000000000000000000000004"]
NativeAttempts = 5

[mortgage.quota]
MaxRequestsPerEpoch = 3
EpochSeconds = 3600

[governance]
Signers = ["%s"]
Threshold = 1

[[currencies]]
Address = "native"
Available = true

[[currencies]]
Address = "%s"
Available = true
Exclusive = true
Discount = "50%%"

[[zones]]
Name = "vn"
Broker = "0x00000000000000000000000000000000000000b0"
Commission = "0.1"

[[collections]]
Address = "0x00000000000000000000000000000000000000e1"
CollateralRole = true

[[collections.items]]
ID = 7
Owner = "0x0000000000000000000000000000000000000001"
Zone = "VN"

[[fractionals]]
Address = "0x00000000000000000000000000000000000000f1"

[[fractionals.tokens]]
ID = 1
Zone = "SG"
Available = true

[[fractionals.tokens.holders]]
Owner = "0x0000000000000000000000000000000000000001"
Amount = "100"

[[alloc]]
Account = "0x0000000000000000000000000000000000000002"
Amount = "5000000"

[[alloc]]
Account = "0x0000000000000000000000000000000000000002"
Currency = "%s"
Amount = "7"
`, testSigner, testAsset, testAsset))

	g, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p, err := g.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.ChainID != "lendchain-test" {
		t.Fatalf("unexpected chain id %q", p.ChainID)
	}
	want, _ := rate.Parse("0.001")
	if p.FeeRate != want {
		t.Fatalf("unexpected fee rate %s", p.FeeRate)
	}
	if p.FeeReceiver != ([20]byte{19: 0xfe}) {
		t.Fatalf("unexpected fee receiver %x", p.FeeReceiver)
	}
	if p.NativeAttempts != 5 || p.Quota.MaxRequestsPerEpoch != 3 || p.Quota.EpochSeconds != 3600 {
		t.Fatalf("unexpected mortgage params %+v", p)
	}
	if len(p.Signers) != 1 || p.Signers[0] != testSignerBytes || p.Threshold != 1 {
		t.Fatalf("unexpected governance %+v %d", p.Signers, p.Threshold)
	}
	if len(p.Currencies) != 2 || p.Currencies[0].Address != ([20]byte{}) || !p.Currencies[1].Exclusive {
		t.Fatalf("unexpected currencies %+v", p.Currencies)
	}
	if p.Currencies[1].Discount.String() != "0.5" {
		t.Fatalf("unexpected discount %s", p.Currencies[1].Discount)
	}
	if len(p.Zones) != 1 || p.Zones[0].Name != "VN" || p.Zones[0].Commission.String() != "0.1" {
		t.Fatalf("unexpected zones %+v", p.Zones)
	}
	if len(p.Collections) != 1 || len(p.Collections[0].Items) != 1 || p.Collections[0].Items[0].ID != 7 {
		t.Fatalf("unexpected collections %+v", p.Collections)
	}
	holders := p.Fractionals[0].Tokens[0].Holders
	if len(holders) != 1 || holders[0].Amount.Int64() != 100 {
		t.Fatalf("unexpected holders %+v", holders)
	}
	if len(p.Alloc) != 2 || p.Alloc[1].Currency != ([20]byte{0xaa}) || p.Alloc[1].Amount.Int64() != 7 {
		t.Fatalf("unexpected alloc %+v", p.Alloc)
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.toml")
	g, err := Load(path)
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if g.ChainID != DefaultChainID || len(g.Governance.Signers) != 1 {
		t.Fatalf("unexpected default genesis %+v", g)
	}
	if _, err := os.Stat(DefaultKeystorePath(path)); err != nil {
		t.Fatalf("expected council keystore: %v", err)
	}
	p, err := g.Resolve()
	if err != nil {
		t.Fatalf("resolve default: %v", err)
	}
	_, account, err := crypto.LoadCouncilKey(DefaultKeystorePath(path), "", p.Signers)
	if err != nil {
		t.Fatalf("load council key: %v", err)
	}
	if account.String() != g.Governance.Signers[0] {
		t.Fatalf("keystore does not match council signer")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Governance.Signers[0] != g.Governance.Signers[0] {
		t.Fatalf("reload produced a different council")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeGenesis(t, fmt.Sprintf(`ChainID = "x"
Bootnodes = ["1.1.1.1:6001"]

[governance]
Signers = ["%s"]
Threshold = 1
`, testSigner))
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "Bootnodes") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Genesis {
		return &Genesis{
			ChainID:    "test",
			Governance: Governance{Signers: []string{testSigner}, Threshold: 1},
		}
	}
	cases := []struct {
		name   string
		mutate func(*Genesis)
		want   string
	}{
		{"ok", func(*Genesis) {}, ""},
		{"missing chain", func(g *Genesis) { g.ChainID = " " }, "ChainID"},
		{"fee above one", func(g *Genesis) { g.Mortgage.FeeRate = "1.5" }, "mortgage.FeeRate"},
		{"bad fee receiver", func(g *Genesis) { g.Mortgage.FeeReceiver = "0x1234" }, "mortgage.FeeReceiver"},
		{"negative attempts", func(g *Genesis) { g.Mortgage.NativeAttempts = -1 }, "NativeAttempts"},
		{"quota without epoch", func(g *Genesis) { g.Mortgage.Quota.MaxRequestsPerEpoch = 1 }, "EpochSeconds"},
		{"no signers", func(g *Genesis) { g.Governance.Signers = nil }, "signer"},
		{"duplicate signer", func(g *Genesis) { g.Governance.Signers = []string{testSigner, testSigner} }, "duplicate signer"},
		{"threshold too high", func(g *Genesis) { g.Governance.Threshold = 2 }, "threshold"},
		{"duplicate currency", func(g *Genesis) {
			g.Currencies = []Currency{{Address: "native"}, {Address: ""}}
		}, "duplicate currency"},
		{"discount above one", func(g *Genesis) {
			g.Currencies = []Currency{{Address: testAsset, Discount: "101%"}}
		}, "Discount"},
		{"zone without broker", func(g *Genesis) { g.Zones = []Zone{{Name: "VN"}} }, "Broker"},
		{"duplicate zone", func(g *Genesis) {
			g.Zones = []Zone{{Name: "vn", Broker: testSigner}, {Name: "VN", Broker: testSigner}}
		}, "duplicate zone"},
		{"duplicate item", func(g *Genesis) {
			g.Collections = []Collection{{Address: testAsset, Items: []Item{{ID: 1, Owner: testSigner}, {ID: 1, Owner: testSigner}}}}
		}, "duplicate item"},
		{"registry reused", func(g *Genesis) {
			g.Collections = []Collection{{Address: testAsset}}
			g.Fractionals = []Fractional{{Address: testAsset}}
		}, "duplicate registry"},
		{"zero holding", func(g *Genesis) {
			g.Fractionals = []Fractional{{Address: testAsset, Tokens: []FractionalToken{{ID: 1, Holders: []Holding{{Owner: testSigner, Amount: "0"}}}}}}
		}, "positive"},
		{"alloc unregistered token", func(g *Genesis) {
			g.Alloc = []Balance{{Account: testSigner, Currency: testAsset, Amount: "1"}}
		}, "not registered"},
		{"alloc bad amount", func(g *Genesis) {
			g.Alloc = []Balance{{Account: testSigner, Amount: "ten"}}
		}, "invalid amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := base()
			tc.mutate(g)
			err := Validate(g)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
