// Package rate implements the fixed-point fraction used for every percentage
// in the mortgage module: fee, discount, commission and royalty rates.
//
// A Rate is an integer Value paired with a decimal exponent, so a 0.1% fee at
// the module-wide 18 decimals is {Value: 1e15, Decimals: 18}. No other package
// performs fraction scaling; they all call Scale.
package rate

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the exponent every stored rate is rebased to before it is
// compared with or combined with another rate.
const Decimals uint8 = 18

// MaxDecimals bounds the exponent so that 10^Decimals fits in 256 bits.
const MaxDecimals uint8 = 77

var (
	ErrInvalidRate    = errors.New("rate: value exceeds 100%")
	ErrOverflow       = errors.New("rate: arithmetic overflow")
	ErrNegativeAmount = errors.New("rate: negative amount")
)

// Rate is a fixed-point fraction Value / 10^Decimals.
type Rate struct {
	Value    uint64
	Decimals uint8
}

// New returns a rate expressed at the module-wide decimals.
func New(value uint64) Rate { return Rate{Value: value, Decimals: Decimals} }

// Zero returns the 0% rate at the module-wide decimals.
func Zero() Rate { return New(0) }

// One returns the 100% rate at the module-wide decimals.
func One() Rate {
	one, _ := pow10(Decimals)
	return New(one.Uint64())
}

func pow10(d uint8) (*uint256.Int, error) {
	if d > MaxDecimals {
		return nil, fmt.Errorf("%w: decimals %d", ErrOverflow, d)
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(d))), nil
}

// IsZero reports whether the rate is 0%.
func (r Rate) IsZero() bool { return r.Value == 0 }

// Validate fails with ErrInvalidRate when the rate represents more than 100%.
// Fee, discount and commission rates are ratios and must pass Validate.
func (r Rate) Validate() error {
	denominator, err := pow10(r.Decimals)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRate, err)
	}
	if uint256.NewInt(r.Value).Gt(denominator) {
		return ErrInvalidRate
	}
	return nil
}

// Scale returns amount * r.Value / 10^r.Decimals with truncating division.
// The product is computed in 256-bit space and aborts with ErrOverflow rather
// than wrapping.
func Scale(amount *big.Int, r Rate) (*big.Int, error) {
	if amount == nil || amount.Sign() == 0 || r.Value == 0 {
		return big.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	a, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrOverflow
	}
	denominator, err := pow10(r.Decimals)
	if err != nil {
		return nil, err
	}
	product, overflow := new(uint256.Int).MulOverflow(a, uint256.NewInt(r.Value))
	if overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, denominator).ToBig(), nil
}

// Rebase converts the rate to the requested decimal exponent. Moving to fewer
// decimals truncates; moving to more decimals fails with ErrOverflow when the
// value no longer fits.
func Rebase(r Rate, decimals uint8) (Rate, error) {
	if decimals > MaxDecimals || r.Decimals > MaxDecimals {
		return Rate{}, ErrOverflow
	}
	switch {
	case decimals == r.Decimals:
		return r, nil
	case decimals > r.Decimals:
		factor, _ := pow10(decimals - r.Decimals)
		if !factor.IsUint64() {
			if r.Value == 0 {
				return Rate{Decimals: decimals}, nil
			}
			return Rate{}, ErrOverflow
		}
		hi, lo := bits.Mul64(r.Value, factor.Uint64())
		if hi != 0 {
			return Rate{}, ErrOverflow
		}
		return Rate{Value: lo, Decimals: decimals}, nil
	default:
		factor, _ := pow10(r.Decimals - decimals)
		value := new(uint256.Int).Div(uint256.NewInt(r.Value), factor)
		return Rate{Value: value.Uint64(), Decimals: decimals}, nil
	}
}

// Normalize rebases the rate to the module-wide decimals.
func (r Rate) Normalize() (Rate, error) { return Rebase(r, Decimals) }

// Cmp compares two rates after rebasing both to the module-wide decimals.
func Cmp(a, b Rate) (int, error) {
	na, err := a.Normalize()
	if err != nil {
		return 0, err
	}
	nb, err := b.Normalize()
	if err != nil {
		return 0, err
	}
	switch {
	case na.Value < nb.Value:
		return -1, nil
	case na.Value > nb.Value:
		return 1, nil
	default:
		return 0, nil
	}
}

// Parse reads a decimal fraction ("0.001") or a percentage ("0.1%") into a
// rate at the module-wide decimals. Inputs with more precision than the
// module supports are rejected rather than rounded.
func Parse(text string) (Rate, error) {
	trimmed := strings.TrimSpace(text)
	percent := strings.HasSuffix(trimmed, "%")
	trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "%"))
	if trimmed == "" {
		return Rate{}, fmt.Errorf("rate: empty value")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Rate{}, fmt.Errorf("rate: parse %q: %w", text, err)
	}
	if d.IsNegative() {
		return Rate{}, fmt.Errorf("rate: negative value %q", text)
	}
	if percent {
		d = d.Shift(-2)
	}
	scaled := d.Shift(int32(Decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return Rate{}, fmt.Errorf("rate: %q exceeds %d decimals of precision", text, Decimals)
	}
	value := scaled.BigInt()
	if !value.IsUint64() {
		return Rate{}, fmt.Errorf("%w: %q", ErrOverflow, text)
	}
	return New(value.Uint64()), nil
}

// Decimal returns the rate as an arbitrary precision decimal fraction.
func (r Rate) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(r.Value), -int32(r.Decimals))
}

// String renders the rate as a plain decimal fraction, e.g. "0.001".
func (r Rate) String() string { return r.Decimal().String() }

// MarshalText implements encoding.TextMarshaler so rates appear as decimal
// strings in JSON, YAML and TOML documents.
func (r Rate) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler using Parse.
func (r *Rate) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
