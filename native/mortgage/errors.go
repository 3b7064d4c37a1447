package mortgage

import (
	"errors"

	nativecommon "lendchain/native/common"
	"lendchain/native/transfer"
)

// Precondition failures.
var (
	ErrInvalidMortgageID = errors.New("mortgage: invalid mortgage id")
	ErrInvalidCurrency   = errors.New("mortgage: invalid currency")
	ErrInvalidPrincipal  = errors.New("mortgage: invalid principal")
	ErrInvalidRepayment  = errors.New("mortgage: invalid repayment")
	ErrInvalidCollateral = errors.New("mortgage: invalid collateral")
	ErrInvalidRate       = errors.New("mortgage: invalid rate")
	ErrInvalidDuration   = errors.New("mortgage: invalid duration")
	ErrInvalidRecipient  = errors.New("mortgage: invalid recipient")
)

// State machine failures.
var (
	ErrInvalidCancelling    = errors.New("mortgage: invalid cancelling")
	ErrInvalidLending       = errors.New("mortgage: invalid lending")
	ErrInvalidRepaying      = errors.New("mortgage: invalid repaying")
	ErrInvalidForeclosing   = errors.New("mortgage: invalid foreclosing")
	ErrInvalidClaimTransfer = errors.New("mortgage: invalid claim transfer")
	ErrOverdue              = errors.New("mortgage: overdue")
)

// Concurrency and authorization failures.
var (
	ErrBadAnchor     = errors.New("mortgage: bad anchor")
	ErrReentrant     = transfer.ErrReentrant
	ErrPaused        = nativecommon.ErrModulePaused
	ErrUnauthorized  = errors.New("mortgage: unauthorized")
	ErrAlreadyPaused = errors.New("mortgage: already paused")
	ErrNotPaused     = errors.New("mortgage: not paused")
	ErrQuotaExceeded = errors.New("mortgage: borrow quota exceeded")
)

// Value transfer failures.
var (
	ErrFailedTransfer    = errors.New("mortgage: failed transfer")
	ErrFailedRefund      = errors.New("mortgage: failed refund")
	ErrInsufficientValue = errors.New("mortgage: insufficient value")
)

var (
	errNilState = errors.New("mortgage engine: state not configured")
	errNoBank   = errors.New("mortgage engine: bank not configured")
)
