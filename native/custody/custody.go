// Package custody locks mortgage collateral with the module and releases it
// to exactly one party when the mortgage settles. Whole items and fractional
// token amounts are handled behind the same Custodian capability set.
package custody

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInvalidCollateral = errors.New("custody: invalid collateral")
	ErrFailedTransfer    = errors.New("custody: collateral transfer failed")
)

// Kind tags the stored collateral variant.
type Kind uint8

const (
	KindWhole      Kind = 1
	KindFractional Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindWhole:
		return "whole"
	case KindFractional:
		return "fractional"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Collateral identifies the asset backing a mortgage. Whole collateral uses
// Registry and TokenID only; fractional collateral also carries Amount.
type Collateral struct {
	Kind     Kind
	Registry [20]byte
	TokenID  uint64
	Amount   *big.Int
}

// Whole describes a whole item of a collection.
func Whole(registry [20]byte, itemID uint64) Collateral {
	return Collateral{Kind: KindWhole, Registry: registry, TokenID: itemID, Amount: big.NewInt(0)}
}

// Fractional describes amount units of a divisible token.
func Fractional(registry [20]byte, tokenID uint64, amount *big.Int) Collateral {
	return Collateral{Kind: KindFractional, Registry: registry, TokenID: tokenID, Amount: cloneAmount(amount)}
}

// Clone returns a deep copy.
func (c Collateral) Clone() Collateral {
	c.Amount = cloneAmount(c.Amount)
	return c
}

// Validate checks the shape of the collateral description.
func (c Collateral) Validate() error {
	switch c.Kind {
	case KindWhole:
		if c.Amount != nil && c.Amount.Sign() != 0 {
			return fmt.Errorf("%w: whole collateral carries no amount", ErrInvalidCollateral)
		}
	case KindFractional:
		if c.Amount == nil || c.Amount.Sign() <= 0 {
			return fmt.Errorf("%w: fractional amount must be positive", ErrInvalidCollateral)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidCollateral, c.Kind)
	}
	if c.Registry == ([20]byte{}) {
		return fmt.Errorf("%w: registry required", ErrInvalidCollateral)
	}
	return nil
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Custodian is the capability set the mortgage state machine needs from any
// collateral variant.
type Custodian interface {
	// Lock moves the collateral from owner into custody.
	Lock(owner [20]byte) error
	// ReleaseTo moves the collateral out of custody.
	ReleaseTo(to [20]byte) error
	// IsHeld reports whether custody currently holds the collateral.
	IsHeld() (bool, error)
	// Zone returns the zone the underlying asset is registered in.
	Zone() (string, error)
}

// Collection is a registry of whole, individually owned items.
type Collection interface {
	SupportsCollateralRole() bool
	OwnerOf(itemID uint64) ([20]byte, error)
	Transfer(itemID uint64, from, to [20]byte) error
	ZoneOf(itemID uint64) (string, error)
}

// FractionalLedger is a registry of divisible token balances.
type FractionalLedger interface {
	IsAvailable(tokenID uint64) bool
	BalanceOf(tokenID uint64, holder [20]byte) (*big.Int, error)
	Transfer(tokenID uint64, from, to [20]byte, amount *big.Int) error
	ZoneOf(tokenID uint64) (string, error)
}

// CollectionDirectory resolves a collection registry by address.
type CollectionDirectory interface {
	Collection(registry [20]byte) (Collection, bool)
}

// FractionalDirectory resolves a fractional ledger by address.
type FractionalDirectory interface {
	Ledger(registry [20]byte) (FractionalLedger, bool)
}

// Resolver maps stored collateral to the custodian implementing it. Holder is
// the account custody keeps locked assets in.
type Resolver struct {
	Collections CollectionDirectory
	Fractionals FractionalDirectory
	Holder      [20]byte
}

// Custodian returns the custodian for c.
func (r Resolver) Custodian(c Collateral) (Custodian, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Kind {
	case KindWhole:
		if r.Collections == nil {
			return nil, fmt.Errorf("%w: no collections configured", ErrInvalidCollateral)
		}
		coll, ok := r.Collections.Collection(c.Registry)
		if !ok {
			return nil, fmt.Errorf("%w: unknown collection %x", ErrInvalidCollateral, c.Registry)
		}
		return &wholeCustodian{collection: coll, itemID: c.TokenID, holder: r.Holder}, nil
	default:
		if r.Fractionals == nil {
			return nil, fmt.Errorf("%w: no fractional ledgers configured", ErrInvalidCollateral)
		}
		ledger, ok := r.Fractionals.Ledger(c.Registry)
		if !ok {
			return nil, fmt.Errorf("%w: unknown fractional ledger %x", ErrInvalidCollateral, c.Registry)
		}
		return &fractionalCustodian{ledger: ledger, tokenID: c.TokenID, amount: cloneAmount(c.Amount), holder: r.Holder}, nil
	}
}

type wholeCustodian struct {
	collection Collection
	itemID     uint64
	holder     [20]byte
}

func (w *wholeCustodian) Lock(owner [20]byte) error {
	if !w.collection.SupportsCollateralRole() {
		return fmt.Errorf("%w: collection does not accept the collateral role", ErrInvalidCollateral)
	}
	current, err := w.collection.OwnerOf(w.itemID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCollateral, err)
	}
	if current != owner {
		return fmt.Errorf("%w: item %d not owned by borrower", ErrInvalidCollateral, w.itemID)
	}
	if err := w.collection.Transfer(w.itemID, owner, w.holder); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCollateral, err)
	}
	return nil
}

func (w *wholeCustodian) ReleaseTo(to [20]byte) error {
	if err := w.collection.Transfer(w.itemID, w.holder, to); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedTransfer, err)
	}
	return nil
}

func (w *wholeCustodian) IsHeld() (bool, error) {
	owner, err := w.collection.OwnerOf(w.itemID)
	if err != nil {
		return false, err
	}
	return owner == w.holder, nil
}

func (w *wholeCustodian) Zone() (string, error) {
	return w.collection.ZoneOf(w.itemID)
}

type fractionalCustodian struct {
	ledger  FractionalLedger
	tokenID uint64
	amount  *big.Int
	holder  [20]byte
}

func (f *fractionalCustodian) Lock(owner [20]byte) error {
	if !f.ledger.IsAvailable(f.tokenID) {
		return fmt.Errorf("%w: token %d not available", ErrInvalidCollateral, f.tokenID)
	}
	balance, err := f.ledger.BalanceOf(f.tokenID, owner)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCollateral, err)
	}
	if balance.Cmp(f.amount) < 0 {
		return fmt.Errorf("%w: balance %s below %s", ErrInvalidCollateral, balance, f.amount)
	}
	if err := f.ledger.Transfer(f.tokenID, owner, f.holder, f.amount); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCollateral, err)
	}
	return nil
}

func (f *fractionalCustodian) ReleaseTo(to [20]byte) error {
	if err := f.ledger.Transfer(f.tokenID, f.holder, to, f.amount); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedTransfer, err)
	}
	return nil
}

func (f *fractionalCustodian) IsHeld() (bool, error) {
	balance, err := f.ledger.BalanceOf(f.tokenID, f.holder)
	if err != nil {
		return false, err
	}
	return balance.Cmp(f.amount) >= 0, nil
}

func (f *fractionalCustodian) Zone() (string, error) {
	return f.ledger.ZoneOf(f.tokenID)
}
