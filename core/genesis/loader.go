// Package genesis wires the mortgage engine to its collaborators and seeds an
// empty state from a validated genesis document.
package genesis

import (
	"errors"
	"fmt"

	"lendchain/config"
	"lendchain/core/state"
	"lendchain/native/bank"
	nativecommon "lendchain/native/common"
	"lendchain/native/governance"
	"lendchain/native/mortgage"
	"lendchain/native/registry"
	"lendchain/native/transfer"
	"lendchain/storage"
)

var chainIDKey = []byte("genesis/chain-id")

// ErrChainMismatch is returned when the data directory was initialised for a
// different chain.
var ErrChainMismatch = errors.New("genesis: chain id mismatch")

// Runtime bundles the engine with the ledgers and registries it is wired to.
// Every component shares the same state manager so one snapshot covers them
// all.
type Runtime struct {
	State       *state.Manager
	Engine      *mortgage.Engine
	Native      *bank.Native
	Tokens      *bank.Tokens
	Currencies  *registry.Currencies
	Zones       *registry.Zones
	Collections *registry.Collections
	Fractionals *registry.Fractionals
	Council     *governance.Council
}

// NewRuntime wires the engine over st using the runtime parameters of p. It
// does not write to state.
func NewRuntime(p *config.Params, st *state.Manager) (*Runtime, error) {
	if p == nil {
		return nil, fmt.Errorf("genesis params must not be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("state must not be nil")
	}
	council, err := governance.NewCouncil(p.Signers, p.Threshold)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		State:       st,
		Native:      bank.NewNative(st),
		Tokens:      bank.NewTokens(st),
		Currencies:  registry.NewCurrencies(st),
		Zones:       registry.NewZones(st),
		Collections: registry.NewCollections(st),
		Fractionals: registry.NewFractionals(st),
		Council:     council,
	}
	engine := mortgage.NewEngine()
	engine.SetState(st)
	engine.SetCurrencies(rt.Currencies)
	engine.SetZones(rt.Zones)
	engine.SetCollections(rt.Collections)
	engine.SetFractionals(rt.Fractionals)
	engine.SetBank(rt.Native, rt.Tokens)
	attempts := p.NativeAttempts
	if attempts == 0 {
		attempts = transfer.DefaultNativeAttempts
	}
	engine.SetNativeAttempts(attempts)
	engine.SetFeeReceiver(p.FeeReceiver)
	engine.SetBorrowQuota(nativecommon.Quota{
		MaxRequestsPerEpoch: p.Quota.MaxRequestsPerEpoch,
		MaxVolumePerEpoch:   p.Quota.MaxVolumePerEpoch,
		EpochSeconds:        p.Quota.EpochSeconds,
	})
	engine.SetCouncil(council)
	rt.Engine = engine
	return rt, nil
}

// Applied reports the chain id the state was seeded for, if any.
func (rt *Runtime) Applied() (string, bool, error) {
	var chainID string
	ok, err := rt.State.KVGet(chainIDKey, &chainID)
	return chainID, ok, err
}

// Apply seeds registries, balances, roles and module parameters. It runs once
// per data directory: a state already seeded for the same chain is left
// untouched, one seeded for another chain is rejected. Apply does not commit.
func (rt *Runtime) Apply(p *config.Params) error {
	chainID, ok, err := rt.Applied()
	if err != nil {
		return err
	}
	if ok {
		if chainID != p.ChainID {
			return fmt.Errorf("%w: state has %q, genesis has %q", ErrChainMismatch, chainID, p.ChainID)
		}
		return nil
	}

	snapshot := rt.State.Snapshot()
	if err := rt.apply(p); err != nil {
		if revertErr := rt.State.RevertToSnapshot(snapshot); revertErr != nil {
			return fmt.Errorf("%w (revert: %v)", err, revertErr)
		}
		return err
	}
	return nil
}

func (rt *Runtime) apply(p *config.Params) error {
	// 1) Currencies
	for _, c := range p.Currencies {
		if c.Address != ([20]byte{}) {
			if err := rt.Tokens.Register(c.Address); err != nil {
				return fmt.Errorf("currency %x: %w", c.Address, err)
			}
		}
		info := registry.CurrencyInfo{Available: c.Available, Exclusive: c.Exclusive, Discount: c.Discount}
		if err := rt.Currencies.Set(c.Address, info); err != nil {
			return fmt.Errorf("currency %x: %w", c.Address, err)
		}
	}

	// 2) Zones
	for _, z := range p.Zones {
		if err := rt.Zones.SetBroker(z.Name, z.Broker, z.Commission); err != nil {
			return fmt.Errorf("zone %q: %w", z.Name, err)
		}
	}

	// 3) Collections and their items
	for _, c := range p.Collections {
		if c.Address == mortgage.ClaimRegistry || c.Address == mortgage.ModuleAddress {
			return fmt.Errorf("collection %x: address reserved by the mortgage module", c.Address)
		}
		if err := rt.Collections.Register(c.Address, c.CollateralRole); err != nil {
			return fmt.Errorf("collection %x: %w", c.Address, err)
		}
		for _, item := range c.Items {
			if err := rt.Collections.Mint(c.Address, item.ID, item.Owner, item.Zone); err != nil {
				return fmt.Errorf("collection %x item %d: %w", c.Address, item.ID, err)
			}
		}
	}

	// 4) Fractional registries, tokens and holdings
	for _, f := range p.Fractionals {
		if err := rt.Fractionals.Register(f.Address); err != nil {
			return fmt.Errorf("fractional %x: %w", f.Address, err)
		}
		for _, tok := range f.Tokens {
			if err := rt.Fractionals.SetToken(f.Address, tok.ID, tok.Zone, tok.Available); err != nil {
				return fmt.Errorf("fractional %x token %d: %w", f.Address, tok.ID, err)
			}
			for _, h := range tok.Holders {
				if err := rt.Fractionals.Mint(f.Address, tok.ID, h.Owner, h.Amount); err != nil {
					return fmt.Errorf("fractional %x token %d holder %x: %w", f.Address, tok.ID, h.Owner, err)
				}
			}
		}
	}

	// 5) Allocations
	for _, b := range p.Alloc {
		var err error
		if b.Currency == ([20]byte{}) {
			err = rt.Native.Mint(b.Account, b.Amount)
		} else {
			err = rt.Tokens.Mint(b.Currency, b.Account, b.Amount)
		}
		if err != nil {
			return fmt.Errorf("alloc %x: %w", b.Account, err)
		}
	}

	// 6) Roles
	for _, m := range p.Managers {
		if err := rt.State.SetRole(mortgage.ManagerRole, m[:]); err != nil {
			return fmt.Errorf("manager %x: %w", m, err)
		}
	}

	// 7) Module parameters
	if err := rt.Engine.Initialize(p.FeeRate, p.BaseURI, p.Paused); err != nil {
		return fmt.Errorf("mortgage params: %w", err)
	}
	return rt.State.KVPut(chainIDKey, p.ChainID)
}

// Build opens the state over db, wires the runtime, seeds it on first use and
// commits the result.
func Build(g *config.Genesis, db storage.Database) (*Runtime, error) {
	if g == nil {
		return nil, fmt.Errorf("genesis must not be nil")
	}
	if db == nil {
		return nil, fmt.Errorf("database must not be nil")
	}
	p, err := g.Resolve()
	if err != nil {
		return nil, err
	}
	rt, err := NewRuntime(p, state.NewManager(db))
	if err != nil {
		return nil, err
	}
	if err := rt.Apply(p); err != nil {
		return nil, err
	}
	if err := rt.State.Commit(); err != nil {
		return nil, fmt.Errorf("commit genesis: %w", err)
	}
	return rt, nil
}
