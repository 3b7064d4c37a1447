// Package registry holds the state-backed directories the mortgage module
// consults: the currency registry, collection and fractional asset
// registries, and the zone directory of brokers.
package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"lendchain/native/custody"
	"lendchain/native/rate"
)

var (
	ErrUnknownItem     = errors.New("registry: unknown item")
	ErrNotOwner        = errors.New("registry: sender does not own item")
	ErrInsufficient    = errors.New("registry: insufficient fractional balance")
	ErrInvalidAmount   = errors.New("registry: invalid amount")
	ErrUnknownRegistry = errors.New("registry: unknown registry")
	errNilState        = errors.New("registry: state not configured")
)

type kvState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

func key(parts ...[]byte) []byte {
	var out []byte
	for i, part := range parts {
		if i > 0 {
			out = append(out, '/')
		}
		out = append(out, part...)
	}
	return out
}

func u64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

// NormalizeZone canonicalises zone codes for consistent lookups.
func NormalizeZone(zone string) string {
	return strings.ToUpper(strings.TrimSpace(zone))
}

// --- Currencies ---

// CurrencyInfo is the registry entry of a lendable currency.
type CurrencyInfo struct {
	Available bool
	Exclusive bool
	Discount  rate.Rate
}

// Currencies is the state-backed currency registry.
type Currencies struct {
	state kvState
}

func NewCurrencies(state kvState) *Currencies { return &Currencies{state: state} }

func currencyKey(currency [20]byte) []byte {
	return key([]byte("registry/currency"), currency[:])
}

// Set stores the registry entry of currency. The discount rate is rebased to
// the module-wide decimals and must not exceed 100%.
func (c *Currencies) Set(currency [20]byte, info CurrencyInfo) error {
	if c.state == nil {
		return errNilState
	}
	if err := info.Discount.Validate(); err != nil {
		return fmt.Errorf("registry: discount rate: %w", err)
	}
	normalized, err := info.Discount.Normalize()
	if err != nil {
		return fmt.Errorf("registry: discount rate: %w", err)
	}
	info.Discount = normalized
	return c.state.KVPut(currencyKey(currency), info)
}

// Info returns the registry entry of currency.
func (c *Currencies) Info(currency [20]byte) (CurrencyInfo, bool) {
	if c.state == nil {
		return CurrencyInfo{}, false
	}
	var info CurrencyInfo
	ok, err := c.state.KVGet(currencyKey(currency), &info)
	if err != nil || !ok {
		return CurrencyInfo{}, false
	}
	return info, true
}

func (c *Currencies) IsAvailable(currency [20]byte) bool {
	info, ok := c.Info(currency)
	return ok && info.Available
}

func (c *Currencies) IsExclusive(currency [20]byte) bool {
	info, ok := c.Info(currency)
	return ok && info.Exclusive
}

func (c *Currencies) DiscountRate(currency [20]byte) rate.Rate {
	info, ok := c.Info(currency)
	if !ok {
		return rate.Zero()
	}
	return info.Discount
}

// --- Zones ---

type zoneRecord struct {
	Broker     [20]byte
	Commission rate.Rate
}

// Zones is the state-backed zone directory mapping zones to brokers.
type Zones struct {
	state kvState
}

func NewZones(state kvState) *Zones { return &Zones{state: state} }

func zoneKey(zone string) []byte {
	return key([]byte("registry/zone"), []byte(NormalizeZone(zone)))
}

// SetBroker registers broker for zone with the given commission rate. A zero
// broker removes the registration.
func (z *Zones) SetBroker(zone string, broker [20]byte, commission rate.Rate) error {
	if z.state == nil {
		return errNilState
	}
	if NormalizeZone(zone) == "" {
		return fmt.Errorf("registry: zone must not be empty")
	}
	if err := commission.Validate(); err != nil {
		return fmt.Errorf("registry: commission rate: %w", err)
	}
	normalized, err := commission.Normalize()
	if err != nil {
		return fmt.Errorf("registry: commission rate: %w", err)
	}
	return z.state.KVPut(zoneKey(zone), zoneRecord{Broker: broker, Commission: normalized})
}

func (z *Zones) record(zone string) (zoneRecord, bool) {
	if z.state == nil || NormalizeZone(zone) == "" {
		return zoneRecord{}, false
	}
	var rec zoneRecord
	ok, err := z.state.KVGet(zoneKey(zone), &rec)
	if err != nil || !ok || rec.Broker == ([20]byte{}) {
		return zoneRecord{}, false
	}
	return rec, true
}

// BrokerOf returns the broker registered for zone.
func (z *Zones) BrokerOf(zone string) ([20]byte, bool) {
	rec, ok := z.record(zone)
	return rec.Broker, ok
}

// CommissionRateOf returns the commission rate of the zone broker, or zero
// when no broker is registered.
func (z *Zones) CommissionRateOf(zone string) rate.Rate {
	rec, ok := z.record(zone)
	if !ok {
		return rate.Zero()
	}
	return rec.Commission
}

// --- Collections ---

type collectionRecord struct {
	CollateralRole bool
}

type itemRecord struct {
	Owner [20]byte
	Zone  string
}

// Collections is the state-backed directory of whole-item registries.
type Collections struct {
	state kvState
}

func NewCollections(state kvState) *Collections { return &Collections{state: state} }

func collectionKey(registry [20]byte) []byte {
	return key([]byte("registry/collection"), registry[:])
}

func itemKey(registry [20]byte, itemID uint64) []byte {
	return key([]byte("registry/item"), registry[:], u64(itemID))
}

// Register creates or updates a collection. collateralRole controls whether
// its items may be pledged.
func (c *Collections) Register(registry [20]byte, collateralRole bool) error {
	if c.state == nil {
		return errNilState
	}
	return c.state.KVPut(collectionKey(registry), collectionRecord{CollateralRole: collateralRole})
}

// Mint creates item itemID owned by owner in zone.
func (c *Collections) Mint(registry [20]byte, itemID uint64, owner [20]byte, zone string) error {
	if _, ok := c.Collection(registry); !ok {
		return fmt.Errorf("%w: %x", ErrUnknownRegistry, registry)
	}
	if ok, err := c.state.KVGet(itemKey(registry, itemID), nil); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("registry: item %d already exists", itemID)
	}
	return c.state.KVPut(itemKey(registry, itemID), itemRecord{Owner: owner, Zone: NormalizeZone(zone)})
}

// Collection returns a view of the registry when it is known.
func (c *Collections) Collection(registry [20]byte) (custody.Collection, bool) {
	if c.state == nil {
		return nil, false
	}
	var rec collectionRecord
	ok, err := c.state.KVGet(collectionKey(registry), &rec)
	if err != nil || !ok {
		return nil, false
	}
	return &collectionView{state: c.state, registry: registry, role: rec.CollateralRole}, true
}

type collectionView struct {
	state    kvState
	registry [20]byte
	role     bool
}

func (v *collectionView) SupportsCollateralRole() bool { return v.role }

func (v *collectionView) item(itemID uint64) (itemRecord, error) {
	var rec itemRecord
	ok, err := v.state.KVGet(itemKey(v.registry, itemID), &rec)
	if err != nil {
		return itemRecord{}, err
	}
	if !ok {
		return itemRecord{}, fmt.Errorf("%w: %d", ErrUnknownItem, itemID)
	}
	return rec, nil
}

func (v *collectionView) OwnerOf(itemID uint64) ([20]byte, error) {
	rec, err := v.item(itemID)
	return rec.Owner, err
}

func (v *collectionView) Transfer(itemID uint64, from, to [20]byte) error {
	rec, err := v.item(itemID)
	if err != nil {
		return err
	}
	if rec.Owner != from {
		return fmt.Errorf("%w: item %d", ErrNotOwner, itemID)
	}
	rec.Owner = to
	return v.state.KVPut(itemKey(v.registry, itemID), rec)
}

func (v *collectionView) ZoneOf(itemID uint64) (string, error) {
	rec, err := v.item(itemID)
	return rec.Zone, err
}

// --- Fractional ledgers ---

type fractionalToken struct {
	Available bool
	Zone      string
}

// Fractionals is the state-backed directory of divisible asset ledgers.
type Fractionals struct {
	state kvState
}

func NewFractionals(state kvState) *Fractionals { return &Fractionals{state: state} }

func fractionalRegistryKey(registry [20]byte) []byte {
	return key([]byte("registry/fractional"), registry[:])
}

func fractionalTokenKey(registry [20]byte, tokenID uint64) []byte {
	return key([]byte("registry/fractional-token"), registry[:], u64(tokenID))
}

func fractionalBalanceKey(registry [20]byte, tokenID uint64, holder [20]byte) []byte {
	return key([]byte("registry/fractional-balance"), registry[:], u64(tokenID), holder[:])
}

// Register creates a fractional ledger.
func (f *Fractionals) Register(registry [20]byte) error {
	if f.state == nil {
		return errNilState
	}
	return f.state.KVPut(fractionalRegistryKey(registry), true)
}

// SetToken creates or updates token tokenID of the ledger.
func (f *Fractionals) SetToken(registry [20]byte, tokenID uint64, zone string, available bool) error {
	if _, ok := f.Ledger(registry); !ok {
		return fmt.Errorf("%w: %x", ErrUnknownRegistry, registry)
	}
	return f.state.KVPut(fractionalTokenKey(registry, tokenID), fractionalToken{Available: available, Zone: NormalizeZone(zone)})
}

// Mint credits amount units of tokenID to holder.
func (f *Fractionals) Mint(registry [20]byte, tokenID uint64, holder [20]byte, amount *big.Int) error {
	ledger, ok := f.Ledger(registry)
	if !ok {
		return fmt.Errorf("%w: %x", ErrUnknownRegistry, registry)
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	view := ledger.(*fractionalView)
	if _, err := view.token(tokenID); err != nil {
		return err
	}
	balance, err := view.BalanceOf(tokenID, holder)
	if err != nil {
		return err
	}
	return f.state.KVPut(fractionalBalanceKey(registry, tokenID, holder), balance.Add(balance, amount))
}

// Ledger returns a view of the ledger when it is known.
func (f *Fractionals) Ledger(registry [20]byte) (custody.FractionalLedger, bool) {
	if f.state == nil {
		return nil, false
	}
	ok, err := f.state.KVGet(fractionalRegistryKey(registry), nil)
	if err != nil || !ok {
		return nil, false
	}
	return &fractionalView{state: f.state, registry: registry}, true
}

type fractionalView struct {
	state    kvState
	registry [20]byte
}

func (v *fractionalView) token(tokenID uint64) (fractionalToken, error) {
	var tok fractionalToken
	ok, err := v.state.KVGet(fractionalTokenKey(v.registry, tokenID), &tok)
	if err != nil {
		return fractionalToken{}, err
	}
	if !ok {
		return fractionalToken{}, fmt.Errorf("%w: token %d", ErrUnknownItem, tokenID)
	}
	return tok, nil
}

func (v *fractionalView) IsAvailable(tokenID uint64) bool {
	tok, err := v.token(tokenID)
	return err == nil && tok.Available
}

func (v *fractionalView) BalanceOf(tokenID uint64, holder [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := v.state.KVGet(fractionalBalanceKey(v.registry, tokenID, holder), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (v *fractionalView) Transfer(tokenID uint64, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, err := v.token(tokenID); err != nil {
		return err
	}
	fromBalance, err := v.BalanceOf(tokenID, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficient, fromBalance, amount)
	}
	if from == to || amount.Sign() == 0 {
		return nil
	}
	if err := v.state.KVPut(fractionalBalanceKey(v.registry, tokenID, from), fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance, err := v.BalanceOf(tokenID, to)
	if err != nil {
		return err
	}
	return v.state.KVPut(fractionalBalanceKey(v.registry, tokenID, to), toBalance.Add(toBalance, amount))
}

func (v *fractionalView) ZoneOf(tokenID uint64) (string, error) {
	tok, err := v.token(tokenID)
	return tok.Zone, err
}
