package mortgage

import (
	"math/big"
	"strconv"

	"lendchain/core/types"
	"lendchain/crypto"
	"lendchain/native/custody"
	"lendchain/native/rate"
)

const (
	EventTypeCreated              = "mortgage.created"
	EventTypeCollateralRegistered = "mortgage.collateral_registered"
	EventTypeCancelled            = "mortgage.cancelled"
	EventTypeLent                 = "mortgage.lent"
	EventTypeRepaid               = "mortgage.repaid"
	EventTypeForeclosed           = "mortgage.foreclosed"
	EventTypeCommission           = "mortgage.commission"
	EventTypeClaimTransferred     = "mortgage.claim_transferred"
	EventTypeFeeRateUpdated       = "mortgage.fee_rate_updated"
	EventTypeBaseURIUpdated       = "mortgage.base_uri_updated"
	EventTypePaused               = "mortgage.paused"
	EventTypeUnpaused             = "mortgage.unpaused"
)

type mortgageEvent struct {
	evt *types.Event
}

func (e mortgageEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e mortgageEvent) Event() *types.Event { return e.evt }

func accountString(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return crypto.MustNewAddress(crypto.LendPrefix, addr).String()
}

// CurrencyString renders a currency identifier; the zero identifier is
// "native".
func CurrencyString(currency [20]byte) string {
	if currency == ([20]byte{}) {
		return "native"
	}
	return crypto.MustNewAddress(crypto.AssetPrefix, currency).String()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newMortgageEvent(eventType string, m *Mortgage) *types.Event {
	attrs := map[string]string{
		"id":        strconv.FormatUint(m.ID, 10),
		"borrower":  accountString(m.Borrower),
		"principal": amountString(m.Principal),
		"repayment": amountString(m.Repayment),
		"fee":       amountString(m.Fee),
		"currency":  CurrencyString(m.Currency),
		"duration":  strconv.FormatUint(m.Duration, 10),
		"state":     m.State.String(),
	}
	if m.Lender != ([20]byte{}) {
		attrs["lender"] = accountString(m.Lender)
	}
	if m.Due != 0 {
		attrs["due"] = strconv.FormatUint(m.Due, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewCreatedEvent returns the canonical payload for a new mortgage.
func NewCreatedEvent(m *Mortgage) *types.Event { return newMortgageEvent(EventTypeCreated, m) }

// NewCollateralRegisteredEvent returns the payload describing locked collateral.
func NewCollateralRegisteredEvent(id uint64, c custody.Collateral) *types.Event {
	attrs := map[string]string{
		"id":       strconv.FormatUint(id, 10),
		"kind":     c.Kind.String(),
		"registry": crypto.MustNewAddress(crypto.AssetPrefix, c.Registry).String(),
		"tokenId":  strconv.FormatUint(c.TokenID, 10),
	}
	if c.Kind == custody.KindFractional {
		attrs["amount"] = amountString(c.Amount)
	}
	return &types.Event{Type: EventTypeCollateralRegistered, Attributes: attrs}
}

func NewCancelledEvent(m *Mortgage) *types.Event { return newMortgageEvent(EventTypeCancelled, m) }

func NewLentEvent(m *Mortgage) *types.Event { return newMortgageEvent(EventTypeLent, m) }

// NewRepaidEvent includes the claim holder that received the repayment.
func NewRepaidEvent(m *Mortgage, holder [20]byte) *types.Event {
	evt := newMortgageEvent(EventTypeRepaid, m)
	evt.Attributes["claimHolder"] = accountString(holder)
	return evt
}

// NewForeclosedEvent includes the claim holder that received the collateral.
func NewForeclosedEvent(m *Mortgage, holder [20]byte) *types.Event {
	evt := newMortgageEvent(EventTypeForeclosed, m)
	evt.Attributes["claimHolder"] = accountString(holder)
	return evt
}

// NewCommissionEvent records the broker share dispatched at lend.
func NewCommissionEvent(id uint64, zone string, broker [20]byte, amount *big.Int, currency [20]byte) *types.Event {
	return &types.Event{Type: EventTypeCommission, Attributes: map[string]string{
		"id":       strconv.FormatUint(id, 10),
		"zone":     zone,
		"broker":   accountString(broker),
		"amount":   amountString(amount),
		"currency": CurrencyString(currency),
	}}
}

func NewClaimTransferredEvent(id uint64, from, to [20]byte) *types.Event {
	return &types.Event{Type: EventTypeClaimTransferred, Attributes: map[string]string{
		"id":   strconv.FormatUint(id, 10),
		"from": accountString(from),
		"to":   accountString(to),
	}}
}

func NewFeeRateUpdatedEvent(r rate.Rate, nonce uint64) *types.Event {
	return &types.Event{Type: EventTypeFeeRateUpdated, Attributes: map[string]string{
		"feeRate": r.String(),
		"nonce":   strconv.FormatUint(nonce, 10),
	}}
}

func NewBaseURIUpdatedEvent(uri string, nonce uint64) *types.Event {
	return &types.Event{Type: EventTypeBaseURIUpdated, Attributes: map[string]string{
		"baseUri": uri,
		"nonce":   strconv.FormatUint(nonce, 10),
	}}
}

func newPauseEvent(eventType string, nonce uint64) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"module": ModuleName,
		"nonce":  strconv.FormatUint(nonce, 10),
	}}
}
