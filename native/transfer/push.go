// Package transfer moves value out of the mortgage module. Every outbound
// payment goes through Push, which reports an Outcome instead of assuming
// success, so the caller can turn a refused payment into an atomic abort.
package transfer

import (
	"errors"
	"fmt"
	"math/big"
)

// DefaultNativeAttempts is the retry budget applied when none is configured.
const DefaultNativeAttempts = 3

var (
	// ErrReentrant is returned when a guarded operation is entered while
	// another guarded operation of the same engine is still running.
	ErrReentrant = errors.New("transfer: reentrant call")

	errNoNativeBank  = errors.New("transfer: native bank not configured")
	errNoTokenLedger = errors.New("transfer: token ledger not configured")
	errInvalidAmount = errors.New("transfer: invalid amount")
)

// Outcome is the result of a push.
type Outcome uint8

const (
	Success Outcome = iota + 1
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// NativeBank moves native value. Recipients may refuse.
type NativeBank interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

// TokenLedger moves fungible token balances.
type TokenLedger interface {
	Transfer(token, from, to [20]byte, amount *big.Int) error
}

// Observer is notified of every push once it settles.
type Observer interface {
	ObservePush(native bool, attempts int, outcome Outcome)
}

// Pusher pays out of a single source account.
type Pusher struct {
	native   NativeBank
	tokens   TokenLedger
	source   [20]byte
	attempts int
	observer Observer
}

// NewPusher constructs a pusher paying out of source.
func NewPusher(native NativeBank, tokens TokenLedger, source [20]byte) *Pusher {
	return &Pusher{native: native, tokens: tokens, source: source, attempts: DefaultNativeAttempts}
}

// SetNativeAttempts configures how many times a refused native push is
// retried before it is reported as failed. Values below one select one
// attempt.
func (p *Pusher) SetNativeAttempts(attempts int) {
	if attempts < 1 {
		attempts = 1
	}
	p.attempts = attempts
}

// NativeAttempts returns the configured retry budget.
func (p *Pusher) NativeAttempts() int { return p.attempts }

// SetObserver installs an observer. Nil disables observation.
func (p *Pusher) SetObserver(observer Observer) { p.observer = observer }

// Source returns the account pushes are paid from.
func (p *Pusher) Source() [20]byte { return p.source }

// Push sends amount of currency to the recipient. The zero currency is the
// native currency. A zero amount always succeeds without touching a ledger.
// The returned error carries the last ledger failure when the outcome is
// Failed.
func (p *Pusher) Push(currency, to [20]byte, amount *big.Int) (Outcome, error) {
	if amount == nil || amount.Sign() < 0 {
		return Failed, errInvalidAmount
	}
	if amount.Sign() == 0 {
		return Success, nil
	}
	if currency == ([20]byte{}) {
		return p.pushNative(to, amount)
	}
	return p.pushToken(currency, to, amount)
}

func (p *Pusher) pushNative(to [20]byte, amount *big.Int) (Outcome, error) {
	if p.native == nil {
		return Failed, errNoNativeBank
	}
	var lastErr error
	attempts := 0
	for attempts < p.attempts {
		attempts++
		lastErr = p.native.Transfer(p.source, to, amount)
		if lastErr == nil {
			p.observe(true, attempts, Success)
			return Success, nil
		}
	}
	p.observe(true, attempts, Failed)
	return Failed, fmt.Errorf("native push to %x after %d attempts: %w", to, attempts, lastErr)
}

func (p *Pusher) pushToken(token, to [20]byte, amount *big.Int) (Outcome, error) {
	if p.tokens == nil {
		return Failed, errNoTokenLedger
	}
	if err := p.tokens.Transfer(token, p.source, to, amount); err != nil {
		p.observe(false, 1, Failed)
		return Failed, fmt.Errorf("token push to %x: %w", to, err)
	}
	p.observe(false, 1, Success)
	return Success, nil
}

func (p *Pusher) observe(native bool, attempts int, outcome Outcome) {
	if p.observer != nil {
		p.observer.ObservePush(native, attempts, outcome)
	}
}

// Barrier is a busy flag rejecting nested entry. It is not a lock: the
// caller serialises goroutines, the barrier only catches re-entry on the same
// call stack (for example from a recipient hook).
type Barrier struct {
	busy bool
}

// Enter marks the barrier busy and returns the function that clears it.
func (b *Barrier) Enter() (func(), error) {
	if b.busy {
		return nil, ErrReentrant
	}
	b.busy = true
	return func() { b.busy = false }, nil
}

// Busy reports whether a guarded operation is running.
func (b *Barrier) Busy() bool { return b.busy }
