package server

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"lendchain/crypto"
	"lendchain/native/custody"
	"lendchain/native/governance"
	"lendchain/native/mortgage"
)

type collateralJSON struct {
	Kind     string `json:"kind"`
	Registry string `json:"registry"`
	TokenID  uint64 `json:"tokenId"`
	Amount   string `json:"amount,omitempty"`
}

type borrowRequest struct {
	Collateral collateralJSON `json:"collateral"`
	Principal  string         `json:"principal"`
	Repayment  string         `json:"repayment"`
	Currency   string         `json:"currency"`
	Duration   uint64         `json:"duration"`
}

type valueRequest struct {
	Value  string `json:"value"`
	Anchor string `json:"anchor,omitempty"`
}

type claimTransferRequest struct {
	To string `json:"to"`
}

type feeRateRequest struct {
	Rate     string              `json:"rate"`
	Approval governance.Approval `json:"approval"`
}

type baseURIRequest struct {
	URI      string              `json:"uri"`
	Approval governance.Approval `json:"approval"`
}

type approvalRequest struct {
	Approval governance.Approval `json:"approval"`
}

type mortgageView struct {
	ID          uint64         `json:"id"`
	State       string         `json:"state"`
	Borrower    string         `json:"borrower"`
	Lender      string         `json:"lender,omitempty"`
	Principal   string         `json:"principal"`
	Repayment   string         `json:"repayment"`
	Fee         string         `json:"fee"`
	Currency    string         `json:"currency"`
	Duration    uint64         `json:"duration"`
	Due         uint64         `json:"due,omitempty"`
	Collateral  collateralJSON `json:"collateral"`
	ClaimHolder string         `json:"claimHolder,omitempty"`
	ClaimURI    string         `json:"claimUri"`
	Anchor      string         `json:"anchor"`
}

type moduleView struct {
	FeeRate        string `json:"feeRate"`
	MortgageNumber uint64 `json:"mortgageNumber"`
	Paused         bool   `json:"paused"`
	AdminNonce     uint64 `json:"adminNonce"`
	BaseURI        string `json:"baseUri"`
	FeeReceiver    string `json:"feeReceiver,omitempty"`
}

type balanceView struct {
	Account  string `json:"account"`
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
}

func accountText(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return crypto.MustNewAddress(crypto.LendPrefix, addr).String()
}

func assetText(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.AssetPrefix, addr).String()
}

func parseAccount(field, value string) ([20]byte, error) {
	addr, err := crypto.ParseAccount(value)
	if err != nil {
		return addr, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return addr, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a base-10 integer", errBadRequest, field)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s must not be negative", errBadRequest, field)
	}
	return amount, nil
}

func parseAnchor(value string) ([32]byte, error) {
	var anchor [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil || len(raw) != len(anchor) {
		return anchor, fmt.Errorf("%w: anchor must be 32 bytes of hex", errBadRequest)
	}
	copy(anchor[:], raw)
	return anchor, nil
}

func parseID(value string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: mortgage id %q", errBadRequest, value)
	}
	return id, nil
}

func (c collateralJSON) toCollateral() (custody.Collateral, error) {
	registry, err := parseAccount("collateral.registry", c.Registry)
	if err != nil {
		return custody.Collateral{}, err
	}
	switch strings.ToLower(strings.TrimSpace(c.Kind)) {
	case custody.KindWhole.String():
		return custody.Whole(registry, c.TokenID), nil
	case custody.KindFractional.String():
		amount, err := parseAmount("collateral.amount", c.Amount)
		if err != nil {
			return custody.Collateral{}, err
		}
		return custody.Fractional(registry, c.TokenID, amount), nil
	default:
		return custody.Collateral{}, fmt.Errorf("%w: unknown collateral kind %q", errBadRequest, c.Kind)
	}
}

func collateralView(c custody.Collateral) collateralJSON {
	view := collateralJSON{Kind: c.Kind.String(), Registry: assetText(c.Registry), TokenID: c.TokenID}
	if c.Kind == custody.KindFractional && c.Amount != nil {
		view.Amount = c.Amount.String()
	}
	return view
}

func amountText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func (s *Server) loadView(id uint64) (mortgageView, error) {
	engine := s.rt.Engine
	m, err := engine.Mortgage(id)
	if err != nil {
		return mortgageView{}, err
	}
	collateral, err := engine.Collateral(id)
	if err != nil {
		return mortgageView{}, err
	}
	holder, held, err := engine.ClaimHolder(id)
	if err != nil {
		return mortgageView{}, err
	}
	uri, err := engine.ClaimURI(id)
	if err != nil {
		return mortgageView{}, err
	}
	anchor, err := engine.Anchor(id)
	if err != nil {
		return mortgageView{}, err
	}
	view := mortgageView{
		ID:         m.ID,
		State:      m.State.String(),
		Borrower:   accountText(m.Borrower),
		Lender:     accountText(m.Lender),
		Principal:  amountText(m.Principal),
		Repayment:  amountText(m.Repayment),
		Fee:        amountText(m.Fee),
		Currency:   mortgage.CurrencyString(m.Currency),
		Duration:   m.Duration,
		Due:        m.Due,
		Collateral: collateralView(collateral),
		ClaimURI:   uri,
		Anchor:     "0x" + hex.EncodeToString(anchor[:]),
	}
	if held {
		view.ClaimHolder = accountText(holder)
	}
	return view, nil
}
