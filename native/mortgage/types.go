package mortgage

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"lendchain/native/custody"
)

// ModuleName is the pause-switch key of the mortgage module.
const ModuleName = "mortgage"

// ManagerRole may cancel pending mortgages on behalf of borrowers.
const ManagerRole = "mortgage.manager"

var (
	// ModuleAddress is the account that holds collateral in custody and
	// routes value during a transition.
	ModuleAddress = deriveAddress("lendchain/mortgage/module")
	// ClaimRegistry identifies the ledger of lender claims. Claims are not
	// eligible as collateral.
	ClaimRegistry = deriveAddress("lendchain/mortgage/claims")
)

func deriveAddress(label string) [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte(label))[12:])
	return out
}

// State enumerates the mortgage lifecycle.
type State uint8

const (
	StatePending State = iota + 1
	StateCancelled
	StateSupplied
	StateRepaid
	StateForeclosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCancelled:
		return "cancelled"
	case StateSupplied:
		return "supplied"
	case StateRepaid:
		return "repaid"
	case StateForeclosed:
		return "foreclosed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition may leave the state.
func (s State) Terminal() bool {
	return s == StateCancelled || s == StateRepaid || s == StateForeclosed
}

// ParseState converts the textual state back to its value.
func ParseState(text string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "pending":
		return StatePending, nil
	case "cancelled":
		return StateCancelled, nil
	case "supplied":
		return StateSupplied, nil
	case "repaid":
		return StateRepaid, nil
	case "foreclosed":
		return StateForeclosed, nil
	default:
		return 0, fmt.Errorf("mortgage: unknown state %q", text)
	}
}

// Mortgage is the stored loan record. Principal, Repayment, Fee, Currency,
// Duration and Borrower never change after borrow. Due is zero until the
// mortgage is supplied. Times are unix seconds.
type Mortgage struct {
	ID        uint64
	Principal *big.Int
	Repayment *big.Int
	Fee       *big.Int
	Currency  [20]byte
	Duration  uint64
	Due       uint64
	State     State
	Borrower  [20]byte
	Lender    [20]byte
}

// Clone returns a deep copy of the mortgage.
func (m *Mortgage) Clone() *Mortgage {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Principal = cloneBigInt(m.Principal)
	clone.Repayment = cloneBigInt(m.Repayment)
	clone.Fee = cloneBigInt(m.Fee)
	return &clone
}

// IsNative reports whether the mortgage is denominated in the native currency.
func (m *Mortgage) IsNative() bool {
	return m != nil && m.Currency == ([20]byte{})
}

// BorrowRequest describes a new mortgage.
type BorrowRequest struct {
	Collateral custody.Collateral
	Principal  *big.Int
	Repayment  *big.Int
	Currency   [20]byte
	Duration   uint64
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
