package fees

import (
	"errors"
	"fmt"
	"math/big"

	"lendchain/native/rate"
)

var (
	ErrNegativeAmount = errors.New("fees: negative amount")
	ErrFeeExceedsBase = errors.New("fees: computed fee exceeds principal")
)

// ComputeFee evaluates the origination fee owed on principal. The base fee is
// principal scaled by feeRate; when the currency is exclusive the base fee is
// further reduced by discountRate of itself. The result is deterministic for
// identical inputs and is computed once per mortgage.
func ComputeFee(principal *big.Int, feeRate rate.Rate, exclusive bool, discountRate rate.Rate) (*big.Int, error) {
	if principal == nil {
		return big.NewInt(0), nil
	}
	if principal.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	if err := feeRate.Validate(); err != nil {
		return nil, fmt.Errorf("fees: fee rate: %w", err)
	}
	base, err := rate.Scale(principal, feeRate)
	if err != nil {
		return nil, fmt.Errorf("fees: base fee: %w", err)
	}
	if !exclusive || discountRate.IsZero() {
		return base, nil
	}
	if err := discountRate.Validate(); err != nil {
		return nil, fmt.Errorf("fees: discount rate: %w", err)
	}
	discount, err := rate.Scale(base, discountRate)
	if err != nil {
		return nil, fmt.Errorf("fees: discount: %w", err)
	}
	return base.Sub(base, discount), nil
}

// Split is the division of a collected fee between the zone broker and the
// fee receiver.
type Split struct {
	Broker   *big.Int
	Residual *big.Int
}

// SplitCommission divides fee into the broker commission and the residual
// kept by the fee receiver. Broker + Residual always equals fee.
func SplitCommission(fee *big.Int, commissionRate rate.Rate) (Split, error) {
	if fee == nil {
		fee = big.NewInt(0)
	}
	if fee.Sign() < 0 {
		return Split{}, ErrNegativeAmount
	}
	if err := commissionRate.Validate(); err != nil {
		return Split{}, fmt.Errorf("fees: commission rate: %w", err)
	}
	broker, err := rate.Scale(fee, commissionRate)
	if err != nil {
		return Split{}, fmt.Errorf("fees: commission: %w", err)
	}
	return Split{
		Broker:   broker,
		Residual: new(big.Int).Sub(fee, broker),
	}, nil
}

// Net returns the amount delivered to the borrower once the fee is withheld
// from principal.
func Net(principal, fee *big.Int) (*big.Int, error) {
	if principal == nil || fee == nil {
		return nil, ErrNegativeAmount
	}
	if fee.Cmp(principal) > 0 {
		return nil, ErrFeeExceedsBase
	}
	return new(big.Int).Sub(principal, fee), nil
}
