// Package bank keeps the native and token balances the mortgage module moves
// value through. Balances live in the journaled state so a reverted
// transition also reverts every balance movement it made.
package bank

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: invalid amount")
	ErrRecipientRefused    = errors.New("bank: recipient refused transfer")
	ErrUnknownToken        = errors.New("bank: unknown token")
	errNilState            = errors.New("bank: state not configured")
)

type kvState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// ReceiveHook is invoked before native value is credited to an account that
// registered one. Returning an error refuses the transfer. Hooks may call
// back into other modules.
type ReceiveHook func(from [20]byte, amount *big.Int) error

var (
	nativeBalancePrefix = []byte("bank/native/")
	tokenBalancePrefix  = []byte("bank/token/")
	tokenRegisteredKey  = []byte("bank/token-registered/")
)

func nativeBalanceKey(addr [20]byte) []byte {
	return append(append([]byte(nil), nativeBalancePrefix...), addr[:]...)
}

func tokenBalanceKey(token, addr [20]byte) []byte {
	key := append(append([]byte(nil), tokenBalancePrefix...), token[:]...)
	key = append(key, '/')
	return append(key, addr[:]...)
}

func tokenKey(token [20]byte) []byte {
	return append(append([]byte(nil), tokenRegisteredKey...), token[:]...)
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func loadBalance(state kvState, key []byte) (*big.Int, error) {
	if state == nil {
		return nil, errNilState
	}
	balance := new(big.Int)
	ok, err := state.KVGet(key, balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// Native is the ledger of the chain's native currency.
type Native struct {
	state kvState
	hooks map[[20]byte]ReceiveHook
}

// NewNative constructs a native ledger over the provided state.
func NewNative(state kvState) *Native {
	return &Native{state: state, hooks: make(map[[20]byte]ReceiveHook)}
}

// SetReceiveHook registers or clears (nil hook) the receive hook of addr.
// Hooks are process-local and are not persisted.
func (n *Native) SetReceiveHook(addr [20]byte, hook ReceiveHook) {
	if hook == nil {
		delete(n.hooks, addr)
		return
	}
	n.hooks[addr] = hook
}

// BalanceOf returns the native balance of addr.
func (n *Native) BalanceOf(addr [20]byte) (*big.Int, error) {
	return loadBalance(n.state, nativeBalanceKey(addr))
}

// Mint credits amount to addr without a counterparty. Used by genesis.
func (n *Native) Mint(addr [20]byte, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	balance, err := n.BalanceOf(addr)
	if err != nil {
		return err
	}
	return n.state.KVPut(nativeBalanceKey(addr), balance.Add(balance, amount))
}

// Transfer moves amount from one account to another. The recipient hook, if
// any, runs before any balance changes so a refusal leaves state untouched.
func (n *Native) Transfer(from, to [20]byte, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	fromBalance, err := n.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientBalance, fromBalance, amount)
	}
	if hook, ok := n.hooks[to]; ok {
		if err := hook(from, new(big.Int).Set(amount)); err != nil {
			return fmt.Errorf("%w: %v", ErrRecipientRefused, err)
		}
		// The hook may have moved funds; read the sender balance again.
		fromBalance, err = n.BalanceOf(from)
		if err != nil {
			return err
		}
		if fromBalance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: have %s need %s", ErrInsufficientBalance, fromBalance, amount)
		}
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	if err := n.state.KVPut(nativeBalanceKey(from), fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance, err := n.BalanceOf(to)
	if err != nil {
		return err
	}
	return n.state.KVPut(nativeBalanceKey(to), toBalance.Add(toBalance, amount))
}

// Tokens is the ledger of every registered fungible token currency.
type Tokens struct {
	state kvState
}

// NewTokens constructs a token ledger over the provided state.
func NewTokens(state kvState) *Tokens {
	return &Tokens{state: state}
}

// Register records token as a known fungible currency.
func (t *Tokens) Register(token [20]byte) error {
	if t.state == nil {
		return errNilState
	}
	return t.state.KVPut(tokenKey(token), true)
}

// Known reports whether token has been registered.
func (t *Tokens) Known(token [20]byte) bool {
	if t.state == nil {
		return false
	}
	var registered bool
	ok, err := t.state.KVGet(tokenKey(token), &registered)
	return err == nil && ok && registered
}

// BalanceOf returns the token balance of addr.
func (t *Tokens) BalanceOf(token, addr [20]byte) (*big.Int, error) {
	return loadBalance(t.state, tokenBalanceKey(token, addr))
}

// Mint credits amount of token to addr. Used by genesis.
func (t *Tokens) Mint(token, addr [20]byte, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if !t.Known(token) {
		return fmt.Errorf("%w: %x", ErrUnknownToken, token)
	}
	balance, err := t.BalanceOf(token, addr)
	if err != nil {
		return err
	}
	return t.state.KVPut(tokenBalanceKey(token, addr), balance.Add(balance, amount))
}

// Transfer debits from and credits to. Token transfers have no receive
// hooks and fail closed on any shortfall.
func (t *Tokens) Transfer(token, from, to [20]byte, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if !t.Known(token) {
		return fmt.Errorf("%w: %x", ErrUnknownToken, token)
	}
	fromBalance, err := t.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientBalance, fromBalance, amount)
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	if err := t.state.KVPut(tokenBalanceKey(token, from), fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance, err := t.BalanceOf(token, to)
	if err != nil {
		return err
	}
	return t.state.KVPut(tokenBalanceKey(token, to), toBalance.Add(toBalance, amount))
}
