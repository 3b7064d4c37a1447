package config

import (
	"fmt"
	"math/big"
	"strings"

	"lendchain/crypto"
	"lendchain/native/rate"
)

// CurrencyParams is a validated currency registration.
type CurrencyParams struct {
	Address   [20]byte
	Available bool
	Exclusive bool
	Discount  rate.Rate
}

// ZoneParams is a validated broker assignment.
type ZoneParams struct {
	Name       string
	Broker     [20]byte
	Commission rate.Rate
}

// ItemParams is a validated whole item.
type ItemParams struct {
	ID    uint64
	Owner [20]byte
	Zone  string
}

// CollectionParams is a validated collection registration.
type CollectionParams struct {
	Address        [20]byte
	CollateralRole bool
	Items          []ItemParams
}

// HoldingParams is a validated fractional balance.
type HoldingParams struct {
	Owner  [20]byte
	Amount *big.Int
}

// FractionalTokenParams is a validated fractional asset.
type FractionalTokenParams struct {
	ID        uint64
	Zone      string
	Available bool
	Holders   []HoldingParams
}

// FractionalParams is a validated fractional registry.
type FractionalParams struct {
	Address [20]byte
	Tokens  []FractionalTokenParams
}

// BalanceParams is a validated genesis allocation.
type BalanceParams struct {
	Account  [20]byte
	Currency [20]byte
	Amount   *big.Int
}

// Params is the genesis document with every address, rate and amount
// decoded.
type Params struct {
	ChainID        string
	FeeRate        rate.Rate
	FeeReceiver    [20]byte
	BaseURI        string
	Managers       [][20]byte
	NativeAttempts int
	Paused         bool
	Quota          Quota
	Signers        [][20]byte
	Threshold      int
	Currencies     []CurrencyParams
	Zones          []ZoneParams
	Collections    []CollectionParams
	Fractionals    []FractionalParams
	Alloc          []BalanceParams
}

// Validate reports the first problem found in the genesis document.
func Validate(g *Genesis) error {
	_, err := g.Resolve()
	return err
}

func parseRatio(field, value string) (rate.Rate, error) {
	if strings.TrimSpace(value) == "" {
		return rate.Zero(), nil
	}
	r, err := rate.Parse(value)
	if err != nil {
		return rate.Rate{}, fmt.Errorf("%s: %w", field, err)
	}
	if err := r.Validate(); err != nil {
		return rate.Rate{}, fmt.Errorf("%s: %w", field, err)
	}
	return r, nil
}

func parseAccount(field, value string, required bool) ([20]byte, error) {
	addr, err := crypto.ParseAccount(value)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%s: %w", field, err)
	}
	if required && addr == ([20]byte{}) {
		return [20]byte{}, fmt.Errorf("%s: address required", field)
	}
	return addr, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%s: amount must be positive", field)
	}
	return amount, nil
}

// Resolve validates the document and decodes it into Params.
func (g *Genesis) Resolve() (*Params, error) {
	if g == nil {
		return nil, fmt.Errorf("genesis: nil document")
	}
	p := &Params{
		ChainID:        strings.TrimSpace(g.ChainID),
		BaseURI:        g.Mortgage.BaseURI,
		NativeAttempts: g.Mortgage.NativeAttempts,
		Paused:         g.Mortgage.Paused,
		Quota:          g.Mortgage.Quota,
		Threshold:      g.Governance.Threshold,
	}
	if p.ChainID == "" {
		return nil, fmt.Errorf("genesis: ChainID required")
	}
	var err error
	if p.FeeRate, err = parseRatio("mortgage.FeeRate", g.Mortgage.FeeRate); err != nil {
		return nil, err
	}
	if p.FeeReceiver, err = parseAccount("mortgage.FeeReceiver", g.Mortgage.FeeReceiver, false); err != nil {
		return nil, err
	}
	if p.NativeAttempts < 0 {
		return nil, fmt.Errorf("mortgage.NativeAttempts: must not be negative")
	}
	q := p.Quota
	if (q.MaxRequestsPerEpoch > 0 || q.MaxVolumePerEpoch > 0) && q.EpochSeconds == 0 {
		return nil, fmt.Errorf("mortgage.quota: EpochSeconds required when a limit is set")
	}
	for i, m := range g.Mortgage.Managers {
		addr, err := parseAccount(fmt.Sprintf("mortgage.Managers[%d]", i), m, true)
		if err != nil {
			return nil, err
		}
		p.Managers = append(p.Managers, addr)
	}

	seenSigners := make(map[[20]byte]struct{})
	for i, s := range g.Governance.Signers {
		addr, err := parseAccount(fmt.Sprintf("governance.Signers[%d]", i), s, true)
		if err != nil {
			return nil, err
		}
		if _, dup := seenSigners[addr]; dup {
			return nil, fmt.Errorf("governance.Signers[%d]: duplicate signer", i)
		}
		seenSigners[addr] = struct{}{}
		p.Signers = append(p.Signers, addr)
	}
	if len(p.Signers) == 0 {
		return nil, fmt.Errorf("governance: at least one signer required")
	}
	if p.Threshold < 1 || p.Threshold > len(p.Signers) {
		return nil, fmt.Errorf("governance: threshold %d outside [1, %d]", p.Threshold, len(p.Signers))
	}

	currencies := make(map[[20]byte]struct{})
	for i, c := range g.Currencies {
		field := fmt.Sprintf("currencies[%d]", i)
		addr, err := parseAccount(field+".Address", c.Address, false)
		if err != nil {
			return nil, err
		}
		if _, dup := currencies[addr]; dup {
			return nil, fmt.Errorf("%s: duplicate currency %q", field, c.Address)
		}
		currencies[addr] = struct{}{}
		discount, err := parseRatio(field+".Discount", c.Discount)
		if err != nil {
			return nil, err
		}
		p.Currencies = append(p.Currencies, CurrencyParams{
			Address:   addr,
			Available: c.Available,
			Exclusive: c.Exclusive,
			Discount:  discount,
		})
	}

	zones := make(map[string]struct{})
	for i, z := range g.Zones {
		field := fmt.Sprintf("zones[%d]", i)
		name := strings.ToUpper(strings.TrimSpace(z.Name))
		if name == "" {
			return nil, fmt.Errorf("%s: Name required", field)
		}
		if _, dup := zones[name]; dup {
			return nil, fmt.Errorf("%s: duplicate zone %q", field, name)
		}
		zones[name] = struct{}{}
		broker, err := parseAccount(field+".Broker", z.Broker, true)
		if err != nil {
			return nil, err
		}
		commission, err := parseRatio(field+".Commission", z.Commission)
		if err != nil {
			return nil, err
		}
		p.Zones = append(p.Zones, ZoneParams{Name: name, Broker: broker, Commission: commission})
	}

	registries := make(map[[20]byte]struct{})
	for i, c := range g.Collections {
		field := fmt.Sprintf("collections[%d]", i)
		addr, err := parseAccount(field+".Address", c.Address, true)
		if err != nil {
			return nil, err
		}
		if _, dup := registries[addr]; dup {
			return nil, fmt.Errorf("%s: duplicate registry", field)
		}
		registries[addr] = struct{}{}
		coll := CollectionParams{Address: addr, CollateralRole: c.CollateralRole}
		items := make(map[uint64]struct{})
		for j, item := range c.Items {
			itemField := fmt.Sprintf("%s.items[%d]", field, j)
			if _, dup := items[item.ID]; dup {
				return nil, fmt.Errorf("%s: duplicate item %d", itemField, item.ID)
			}
			items[item.ID] = struct{}{}
			owner, err := parseAccount(itemField+".Owner", item.Owner, true)
			if err != nil {
				return nil, err
			}
			coll.Items = append(coll.Items, ItemParams{ID: item.ID, Owner: owner, Zone: item.Zone})
		}
		p.Collections = append(p.Collections, coll)
	}

	for i, f := range g.Fractionals {
		field := fmt.Sprintf("fractionals[%d]", i)
		addr, err := parseAccount(field+".Address", f.Address, true)
		if err != nil {
			return nil, err
		}
		if _, dup := registries[addr]; dup {
			return nil, fmt.Errorf("%s: duplicate registry", field)
		}
		registries[addr] = struct{}{}
		frac := FractionalParams{Address: addr}
		tokens := make(map[uint64]struct{})
		for j, tok := range f.Tokens {
			tokField := fmt.Sprintf("%s.tokens[%d]", field, j)
			if _, dup := tokens[tok.ID]; dup {
				return nil, fmt.Errorf("%s: duplicate token %d", tokField, tok.ID)
			}
			tokens[tok.ID] = struct{}{}
			token := FractionalTokenParams{ID: tok.ID, Zone: tok.Zone, Available: tok.Available}
			for k, h := range tok.Holders {
				holdField := fmt.Sprintf("%s.holders[%d]", tokField, k)
				owner, err := parseAccount(holdField+".Owner", h.Owner, true)
				if err != nil {
					return nil, err
				}
				amount, err := parseAmount(holdField+".Amount", h.Amount)
				if err != nil {
					return nil, err
				}
				token.Holders = append(token.Holders, HoldingParams{Owner: owner, Amount: amount})
			}
			frac.Tokens = append(frac.Tokens, token)
		}
		p.Fractionals = append(p.Fractionals, frac)
	}

	for i, b := range g.Alloc {
		field := fmt.Sprintf("alloc[%d]", i)
		account, err := parseAccount(field+".Account", b.Account, true)
		if err != nil {
			return nil, err
		}
		currency, err := parseAccount(field+".Currency", b.Currency, false)
		if err != nil {
			return nil, err
		}
		if currency != ([20]byte{}) {
			if _, ok := currencies[currency]; !ok {
				return nil, fmt.Errorf("%s: currency %q is not registered", field, b.Currency)
			}
		}
		amount, err := parseAmount(field+".Amount", b.Amount)
		if err != nil {
			return nil, err
		}
		p.Alloc = append(p.Alloc, BalanceParams{Account: account, Currency: currency, Amount: amount})
	}
	return p, nil
}
