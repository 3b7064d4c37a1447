package mortgage

import (
	"encoding/binary"
	"fmt"

	"lendchain/native/custody"
	"lendchain/native/rate"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	HasRole(role string, addr []byte) bool
	Snapshot() int
	RevertToSnapshot(id int) error
}

var (
	mortgagePrefix   = []byte("mortgage/record/")
	collateralPrefix = []byte("mortgage/collateral/")
	claimPrefix      = []byte("mortgage/claim/")
	quotaPrefix      = []byte("mortgage/quota/")
	countKey         = []byte("mortgage/count")
	feeRateKey       = []byte("mortgage/params/fee-rate")
	pausedKey        = []byte("mortgage/params/paused")
	baseURIKey       = []byte("mortgage/params/base-uri")
	adminNonceKey    = []byte("mortgage/params/admin-nonce")
)

func idKey(prefix []byte, id uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], id)
	return buf
}

func addrKey(prefix []byte, addr [20]byte) []byte {
	return append(append([]byte(nil), prefix...), addr[:]...)
}

func (e *Engine) getUint64(key []byte) (uint64, error) {
	if e.state == nil {
		return 0, errNilState
	}
	var v uint64
	if _, err := e.state.KVGet(key, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// MortgageNumber returns the number of mortgages ever created, which is also
// the highest assigned id.
func (e *Engine) MortgageNumber() (uint64, error) {
	return e.getUint64(countKey)
}

func (e *Engine) loadMortgage(id uint64) (*Mortgage, error) {
	count, err := e.MortgageNumber()
	if err != nil {
		return nil, err
	}
	if id == 0 || id > count {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMortgageID, id)
	}
	m := new(Mortgage)
	ok, err := e.state.KVGet(idKey(mortgagePrefix, id), m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d missing from state", ErrInvalidMortgageID, id)
	}
	return m, nil
}

func (e *Engine) storeMortgage(m *Mortgage) error {
	return e.state.KVPut(idKey(mortgagePrefix, m.ID), m)
}

func (e *Engine) loadCollateral(id uint64) (custody.Collateral, error) {
	var c custody.Collateral
	ok, err := e.state.KVGet(idKey(collateralPrefix, id), &c)
	if err != nil {
		return custody.Collateral{}, err
	}
	if !ok {
		return custody.Collateral{}, fmt.Errorf("%w: %d", ErrInvalidMortgageID, id)
	}
	return c, nil
}

func (e *Engine) storeCollateral(id uint64, c custody.Collateral) error {
	return e.state.KVPut(idKey(collateralPrefix, id), c)
}

func (e *Engine) claimHolder(id uint64) ([20]byte, bool, error) {
	var holder [20]byte
	ok, err := e.state.KVGet(idKey(claimPrefix, id), &holder)
	if err != nil {
		return [20]byte{}, false, err
	}
	return holder, ok, nil
}

func (e *Engine) putClaim(id uint64, holder [20]byte) error {
	return e.state.KVPut(idKey(claimPrefix, id), holder)
}

func (e *Engine) burnClaim(id uint64) error {
	return e.state.KVDelete(idKey(claimPrefix, id))
}

// FeeRate returns the fee rate applied to future borrows.
func (e *Engine) FeeRate() (rate.Rate, error) {
	if e.state == nil {
		return rate.Rate{}, errNilState
	}
	var r rate.Rate
	ok, err := e.state.KVGet(feeRateKey, &r)
	if err != nil {
		return rate.Rate{}, err
	}
	if !ok {
		return rate.Zero(), nil
	}
	return r, nil
}

// BaseURI returns the prefix of claim metadata URIs.
func (e *Engine) BaseURI() (string, error) {
	if e.state == nil {
		return "", errNilState
	}
	var uri string
	if _, err := e.state.KVGet(baseURIKey, &uri); err != nil {
		return "", err
	}
	return uri, nil
}

// AdminNonce returns the nonce the next administrative approval must sign.
func (e *Engine) AdminNonce() (uint64, error) {
	return e.getUint64(adminNonceKey)
}

// IsPaused implements common.PauseView.
func (e *Engine) IsPaused(module string) bool {
	if module != ModuleName || e.state == nil {
		return false
	}
	var paused bool
	ok, err := e.state.KVGet(pausedKey, &paused)
	return err == nil && ok && paused
}

// claimLedger exposes lender claims as a collection that refuses the
// collateral role, so a claim can never back another mortgage.
type claimLedger struct {
	engine *Engine
}

func (c claimLedger) SupportsCollateralRole() bool { return false }

func (c claimLedger) OwnerOf(id uint64) ([20]byte, error) {
	holder, ok, err := c.engine.claimHolder(id)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, fmt.Errorf("mortgage: no claim for %d", id)
	}
	return holder, nil
}

func (c claimLedger) Transfer(id uint64, from, to [20]byte) error {
	holder, err := c.OwnerOf(id)
	if err != nil {
		return err
	}
	if holder != from {
		return fmt.Errorf("mortgage: claim %d not held by sender", id)
	}
	return c.engine.putClaim(id, to)
}

func (c claimLedger) ZoneOf(uint64) (string, error) { return "", nil }

type claimAwareDirectory struct {
	claims claimLedger
	base   custody.CollectionDirectory
}

func (d claimAwareDirectory) Collection(registry [20]byte) (custody.Collection, bool) {
	if registry == ClaimRegistry {
		return d.claims, true
	}
	if d.base == nil {
		return nil, false
	}
	return d.base.Collection(registry)
}
