package mortgage

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"lendchain/core/events"
	"lendchain/core/types"
	nativecommon "lendchain/native/common"
	"lendchain/native/custody"
	"lendchain/native/fees"
	"lendchain/native/governance"
	"lendchain/native/rate"
	"lendchain/native/transfer"
)

// MaxDuration bounds the loan duration accepted at borrow.
const MaxDuration = uint64(100 * 365 * 24 * 60 * 60)

// CurrencyRegistry answers which currencies may be lent and how their fees
// are discounted.
type CurrencyRegistry interface {
	IsAvailable(currency [20]byte) bool
	IsExclusive(currency [20]byte) bool
	DiscountRate(currency [20]byte) rate.Rate
}

// ZoneDirectory maps an asset zone to the broker earning commission on it.
type ZoneDirectory interface {
	BrokerOf(zone string) ([20]byte, bool)
	CommissionRateOf(zone string) rate.Rate
}

// Verifier checks threshold approvals of administrative messages.
type Verifier interface {
	Verify(msg governance.Message, expectedNonce uint64) error
}

// Engine is the mortgage state machine. Each transition either completes and
// emits its events, or fails and leaves state exactly as it found it.
//
// Engine is not safe for concurrent use; callers serialise transitions.
type Engine struct {
	state        engineState
	currencies   CurrencyRegistry
	zones        ZoneDirectory
	collections  custody.CollectionDirectory
	fractionals  custody.FractionalDirectory
	native       transfer.NativeBank
	tokens       transfer.TokenLedger
	pusher       *transfer.Pusher
	attempts     int
	pushObserver transfer.Observer
	council      Verifier
	emitter      events.Emitter
	nowFn        func() time.Time
	feeReceiver  [20]byte
	borrowQuota  nativecommon.Quota
	barrier      transfer.Barrier
	pending      []*types.Event
}

// NewEngine creates a mortgage engine with a no-op emitter and the wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		nowFn:    func() time.Time { return time.Now().UTC() },
		attempts: transfer.DefaultNativeAttempts,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCurrencies configures the currency registry.
func (e *Engine) SetCurrencies(registry CurrencyRegistry) { e.currencies = registry }

// SetZones configures the zone directory used for broker lookups.
func (e *Engine) SetZones(zones ZoneDirectory) { e.zones = zones }

// SetCollections configures the whole-item registries accepted as collateral.
func (e *Engine) SetCollections(dir custody.CollectionDirectory) { e.collections = dir }

// SetFractionals configures the fractional ledgers accepted as collateral.
func (e *Engine) SetFractionals(dir custody.FractionalDirectory) { e.fractionals = dir }

// SetBank configures the native and token ledgers value moves through.
func (e *Engine) SetBank(native transfer.NativeBank, tokens transfer.TokenLedger) {
	e.native = native
	e.tokens = tokens
	e.rebuildPusher()
}

// SetNativeAttempts configures the retry budget of native pushes.
func (e *Engine) SetNativeAttempts(attempts int) {
	e.attempts = attempts
	e.rebuildPusher()
}

// SetPushObserver installs an observer notified of every push.
func (e *Engine) SetPushObserver(observer transfer.Observer) {
	e.pushObserver = observer
	e.rebuildPusher()
}

func (e *Engine) rebuildPusher() {
	pusher := transfer.NewPusher(e.native, e.tokens, ModuleAddress)
	pusher.SetNativeAttempts(e.attempts)
	pusher.SetObserver(e.pushObserver)
	e.pusher = pusher
}

// SetCouncil configures the verifier of administrative approvals.
func (e *Engine) SetCouncil(council Verifier) { e.council = council }

// SetFeeReceiver configures the account receiving the residual fee. When
// unset, the residual stays with the module account.
func (e *Engine) SetFeeReceiver(addr [20]byte) { e.feeReceiver = addr }

// FeeReceiver returns the configured residual fee receiver.
func (e *Engine) FeeReceiver() [20]byte { return e.feeReceiver }

// SetBorrowQuota configures the per-borrower origination quota. Volume is
// measured in principal units.
func (e *Engine) SetBorrowQuota(q nativecommon.Quota) { e.borrowQuota = q }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) queue(event *types.Event) {
	if event != nil {
		e.pending = append(e.pending, event)
	}
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(mortgageEvent{evt: event})
}

func (e *Engine) now() uint64 {
	var ts int64
	if e == nil || e.nowFn == nil {
		ts = time.Now().Unix()
	} else {
		ts = e.nowFn().Unix()
	}
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) resolver() custody.Resolver {
	return custody.Resolver{
		Collections: claimAwareDirectory{claims: claimLedger{engine: e}, base: e.collections},
		Fractionals: e.fractionals,
		Holder:      ModuleAddress,
	}
}

// run executes fn behind the reentrancy barrier. Any error reverts state to
// the snapshot taken on entry and drops queued events; success emits them.
func (e *Engine) run(fn func() error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	release, err := e.barrier.Enter()
	if err != nil {
		return err
	}
	defer release()

	snapshot := e.state.Snapshot()
	e.pending = nil
	if err := fn(); err != nil {
		e.pending = nil
		if revertErr := e.state.RevertToSnapshot(snapshot); revertErr != nil {
			return fmt.Errorf("%w (revert: %v)", err, revertErr)
		}
		return err
	}
	queued := e.pending
	e.pending = nil
	for _, evt := range queued {
		e.emit(evt)
	}
	return nil
}

func (e *Engine) custodian(id uint64) (custody.Custodian, error) {
	collateral, err := e.loadCollateral(id)
	if err != nil {
		return nil, err
	}
	custodian, err := e.resolver().Custodian(collateral)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCollateral, err)
	}
	return custodian, nil
}

func (e *Engine) release(id uint64, to [20]byte) error {
	custodian, err := e.custodian(id)
	if err != nil {
		return err
	}
	held, err := custodian.IsHeld()
	if err != nil {
		return fmt.Errorf("%w: collateral: %v", ErrFailedTransfer, err)
	}
	if !held {
		return fmt.Errorf("%w: collateral of mortgage %d not in custody", ErrFailedTransfer, id)
	}
	if err := custodian.ReleaseTo(to); err != nil {
		return fmt.Errorf("%w: collateral: %v", ErrFailedTransfer, err)
	}
	return nil
}

func (e *Engine) push(currency, to [20]byte, amount *big.Int, failure error) error {
	if e.pusher == nil {
		return fmt.Errorf("%w: %v", failure, errNoBank)
	}
	outcome, err := e.pusher.Push(currency, to, amount)
	if outcome != transfer.Success {
		return fmt.Errorf("%w: %v", failure, err)
	}
	return nil
}

// collect takes amount of currency from payer into the module account. Any
// attached native value is taken as well; for a native mortgage it must cover
// amount. It returns the native excess owed back to the payer.
func (e *Engine) collect(payer, currency [20]byte, amount, value *big.Int) (*big.Int, error) {
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value", ErrInsufficientValue)
	}
	native := currency == ([20]byte{})
	if native && value.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: attached %s, need %s", ErrInsufficientValue, value, amount)
	}
	if value.Sign() > 0 {
		if e.native == nil {
			return nil, errNoBank
		}
		if err := e.native.Transfer(payer, ModuleAddress, value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientValue, err)
		}
	}
	if native {
		return new(big.Int).Sub(value, amount), nil
	}
	if e.tokens == nil {
		return nil, errNoBank
	}
	if err := e.tokens.Transfer(currency, payer, ModuleAddress, amount); err != nil {
		return nil, fmt.Errorf("%w: collect: %v", ErrFailedTransfer, err)
	}
	return new(big.Int).Set(value), nil
}

func (e *Engine) refund(to [20]byte, excess *big.Int) error {
	if excess == nil || excess.Sign() == 0 {
		return nil
	}
	return e.push([20]byte{}, to, excess, ErrFailedRefund)
}

func (e *Engine) checkAnchor(id uint64, anchor [32]byte) error {
	current, err := e.anchor(id)
	if err != nil {
		return err
	}
	if current != anchor {
		return ErrBadAnchor
	}
	return nil
}

func (e *Engine) consumeQuota(borrower [20]byte, principal *big.Int) error {
	q := e.borrowQuota
	if !q.Enabled() {
		return nil
	}
	volume := uint64(math.MaxUint64)
	if principal.IsUint64() {
		volume = principal.Uint64()
	}
	key := addrKey(quotaPrefix, borrower)
	var prev nativecommon.QuotaNow
	if _, err := e.state.KVGet(key, &prev); err != nil {
		return err
	}
	next, err := nativecommon.CheckQuota(q, q.Epoch(e.now()), prev, 1, volume)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return e.state.KVPut(key, next)
}

// Borrow creates a pending mortgage backed by collateral locked from the
// caller and returns its id. The fee is computed with the fee rate in force
// now and never changes afterwards.
func (e *Engine) Borrow(caller [20]byte, req BorrowRequest) (uint64, error) {
	var id uint64
	err := e.run(func() error {
		if err := nativecommon.Guard(e, ModuleName); err != nil {
			return err
		}
		if e.currencies == nil || !e.currencies.IsAvailable(req.Currency) {
			return fmt.Errorf("%w: %s", ErrInvalidCurrency, CurrencyString(req.Currency))
		}
		if req.Principal == nil || req.Principal.Sign() <= 0 {
			return ErrInvalidPrincipal
		}
		if req.Repayment == nil || req.Repayment.Cmp(req.Principal) < 0 {
			return ErrInvalidRepayment
		}
		if req.Duration > MaxDuration {
			return fmt.Errorf("%w: %d exceeds %d", ErrInvalidDuration, req.Duration, MaxDuration)
		}
		feeRate, err := e.FeeRate()
		if err != nil {
			return err
		}
		fee, err := fees.ComputeFee(req.Principal, feeRate, e.currencies.IsExclusive(req.Currency), e.currencies.DiscountRate(req.Currency))
		if errors.Is(err, rate.ErrOverflow) {
			return fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRate, err)
		}
		custodian, err := e.resolver().Custodian(req.Collateral)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCollateral, err)
		}
		if err := custodian.Lock(caller); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCollateral, err)
		}
		if err := e.consumeQuota(caller, req.Principal); err != nil {
			return err
		}

		count, err := e.MortgageNumber()
		if err != nil {
			return err
		}
		id = count + 1
		m := &Mortgage{
			ID:        id,
			Principal: cloneBigInt(req.Principal),
			Repayment: cloneBigInt(req.Repayment),
			Fee:       fee,
			Currency:  req.Currency,
			Duration:  req.Duration,
			State:     StatePending,
			Borrower:  caller,
		}
		collateral := req.Collateral.Clone()
		if err := e.state.KVPut(countKey, id); err != nil {
			return err
		}
		if err := e.storeMortgage(m); err != nil {
			return err
		}
		if err := e.storeCollateral(id, collateral); err != nil {
			return err
		}
		e.queue(NewCreatedEvent(m))
		e.queue(NewCollateralRegisteredEvent(id, collateral))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Cancel withdraws a pending mortgage and returns the collateral to the
// borrower. Only the borrower or a manager may cancel.
func (e *Engine) Cancel(caller [20]byte, id uint64) error {
	return e.run(func() error {
		if err := nativecommon.Guard(e, ModuleName); err != nil {
			return err
		}
		m, err := e.loadMortgage(id)
		if err != nil {
			return err
		}
		if m.State != StatePending {
			return fmt.Errorf("%w: mortgage %d is %s", ErrInvalidCancelling, id, m.State)
		}
		if caller != m.Borrower && !e.state.HasRole(ManagerRole, caller[:]) {
			return ErrUnauthorized
		}
		if err := e.release(id, m.Borrower); err != nil {
			return err
		}
		m.State = StateCancelled
		if err := e.storeMortgage(m); err != nil {
			return err
		}
		e.queue(NewCancelledEvent(m))
		return nil
	})
}

// Lend funds a pending mortgage. value is the native amount attached by the
// caller.
func (e *Engine) Lend(caller [20]byte, id uint64, value *big.Int) error {
	return e.run(func() error { return e.lend(caller, id, value, nil) })
}

// SafeLend is Lend guarded by the anchor the caller last observed.
func (e *Engine) SafeLend(caller [20]byte, id uint64, anchor [32]byte, value *big.Int) error {
	return e.run(func() error { return e.lend(caller, id, value, &anchor) })
}

func (e *Engine) lend(caller [20]byte, id uint64, value *big.Int, anchor *[32]byte) error {
	if err := nativecommon.Guard(e, ModuleName); err != nil {
		return err
	}
	m, err := e.loadMortgage(id)
	if err != nil {
		return err
	}
	if anchor != nil {
		if err := e.checkAnchor(id, *anchor); err != nil {
			return err
		}
	}
	if m.State != StatePending {
		return fmt.Errorf("%w: mortgage %d is %s", ErrInvalidLending, id, m.State)
	}
	if caller == m.Borrower {
		return fmt.Errorf("%w: borrower cannot fund own mortgage", ErrInvalidLending)
	}

	excess, err := e.collect(caller, m.Currency, m.Principal, value)
	if err != nil {
		return err
	}

	custodian, err := e.custodian(id)
	if err != nil {
		return err
	}
	zone, err := custodian.Zone()
	if err != nil {
		return fmt.Errorf("%w: zone: %v", ErrInvalidCollateral, err)
	}
	var (
		broker    [20]byte
		hasBroker bool
	)
	commissionRate := rate.Zero()
	if e.zones != nil {
		broker, hasBroker = e.zones.BrokerOf(zone)
		if hasBroker {
			commissionRate = e.zones.CommissionRateOf(zone)
		}
	}
	split, err := fees.SplitCommission(m.Fee, commissionRate)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRate, err)
	}
	net, err := fees.Net(m.Principal, m.Fee)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRate, err)
	}

	if err := e.push(m.Currency, m.Borrower, net, ErrFailedTransfer); err != nil {
		return err
	}
	if hasBroker {
		if err := e.push(m.Currency, broker, split.Broker, ErrFailedTransfer); err != nil {
			return err
		}
		e.queue(NewCommissionEvent(id, zone, broker, split.Broker, m.Currency))
	}
	if e.feeReceiver != ([20]byte{}) {
		if err := e.push(m.Currency, e.feeReceiver, split.Residual, ErrFailedTransfer); err != nil {
			return err
		}
	}
	if err := e.refund(caller, excess); err != nil {
		return err
	}

	if err := e.putClaim(id, caller); err != nil {
		return err
	}
	now := e.now()
	if now > math.MaxUint64-m.Duration {
		return fmt.Errorf("%w: due overflows", ErrInvalidDuration)
	}
	m.Due = now + m.Duration
	m.Lender = caller
	m.State = StateSupplied
	if err := e.storeMortgage(m); err != nil {
		return err
	}
	e.queue(NewLentEvent(m))
	return nil
}

// Repay settles a supplied mortgage before its due time. The repayment goes
// to the current claim holder and the collateral returns to the borrower.
// Anyone may repay; value is the native amount attached by the caller.
func (e *Engine) Repay(caller [20]byte, id uint64, value *big.Int) error {
	return e.run(func() error { return e.repay(caller, id, value, nil) })
}

// SafeRepay is Repay guarded by the anchor the caller last observed.
func (e *Engine) SafeRepay(caller [20]byte, id uint64, anchor [32]byte, value *big.Int) error {
	return e.run(func() error { return e.repay(caller, id, value, &anchor) })
}

func (e *Engine) repay(caller [20]byte, id uint64, value *big.Int, anchor *[32]byte) error {
	if err := nativecommon.Guard(e, ModuleName); err != nil {
		return err
	}
	m, err := e.loadMortgage(id)
	if err != nil {
		return err
	}
	if anchor != nil {
		if err := e.checkAnchor(id, *anchor); err != nil {
			return err
		}
	}
	if m.State != StateSupplied {
		return fmt.Errorf("%w: mortgage %d is %s", ErrInvalidRepaying, id, m.State)
	}
	if e.now() >= m.Due {
		return fmt.Errorf("%w: due %d", ErrOverdue, m.Due)
	}
	holder, ok, err := e.claimHolder(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no claim holder for %d", ErrInvalidRepaying, id)
	}

	excess, err := e.collect(caller, m.Currency, m.Repayment, value)
	if err != nil {
		return err
	}
	if err := e.push(m.Currency, holder, m.Repayment, ErrFailedTransfer); err != nil {
		return err
	}
	if err := e.release(id, m.Borrower); err != nil {
		return err
	}
	if err := e.burnClaim(id); err != nil {
		return err
	}
	if err := e.refund(caller, excess); err != nil {
		return err
	}
	m.State = StateRepaid
	if err := e.storeMortgage(m); err != nil {
		return err
	}
	e.queue(NewRepaidEvent(m, holder))
	return nil
}

// Foreclose hands the collateral of an overdue supplied mortgage to the
// current claim holder. Anyone may call it; no money moves.
func (e *Engine) Foreclose(caller [20]byte, id uint64) error {
	return e.run(func() error {
		if err := nativecommon.Guard(e, ModuleName); err != nil {
			return err
		}
		m, err := e.loadMortgage(id)
		if err != nil {
			return err
		}
		if m.State != StateSupplied {
			return fmt.Errorf("%w: mortgage %d is %s", ErrInvalidForeclosing, id, m.State)
		}
		if e.now() < m.Due {
			return fmt.Errorf("%w: due %d not reached", ErrInvalidForeclosing, m.Due)
		}
		holder, ok, err := e.claimHolder(id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: no claim holder for %d", ErrInvalidForeclosing, id)
		}
		if err := e.release(id, holder); err != nil {
			return err
		}
		if err := e.burnClaim(id); err != nil {
			return err
		}
		m.State = StateForeclosed
		if err := e.storeMortgage(m); err != nil {
			return err
		}
		e.queue(NewForeclosedEvent(m, holder))
		return nil
	})
}

// TransferClaim moves the lender position of a supplied mortgage. Only the
// current claim holder may transfer it.
func (e *Engine) TransferClaim(caller [20]byte, id uint64, to [20]byte) error {
	return e.run(func() error {
		if err := nativecommon.Guard(e, ModuleName); err != nil {
			return err
		}
		m, err := e.loadMortgage(id)
		if err != nil {
			return err
		}
		if m.State != StateSupplied {
			return fmt.Errorf("%w: mortgage %d is %s", ErrInvalidClaimTransfer, id, m.State)
		}
		holder, ok, err := e.claimHolder(id)
		if err != nil {
			return err
		}
		if !ok || holder != caller {
			return ErrUnauthorized
		}
		if to == ([20]byte{}) || to == ModuleAddress {
			return ErrInvalidRecipient
		}
		if err := (claimLedger{engine: e}).Transfer(id, caller, to); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidClaimTransfer, err)
		}
		e.queue(NewClaimTransferredEvent(id, caller, to))
		return nil
	})
}

// Mortgage returns a copy of the stored mortgage.
func (e *Engine) Mortgage(id uint64) (*Mortgage, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	m, err := e.loadMortgage(id)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

// Collateral returns the collateral backing the mortgage.
func (e *Engine) Collateral(id uint64) (custody.Collateral, error) {
	if e == nil || e.state == nil {
		return custody.Collateral{}, errNilState
	}
	if _, err := e.loadMortgage(id); err != nil {
		return custody.Collateral{}, err
	}
	c, err := e.loadCollateral(id)
	if err != nil {
		return custody.Collateral{}, err
	}
	return c.Clone(), nil
}

// ClaimHolder returns the current holder of the lender claim. The boolean is
// false while the mortgage is not supplied.
func (e *Engine) ClaimHolder(id uint64) ([20]byte, bool, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, false, errNilState
	}
	if _, err := e.loadMortgage(id); err != nil {
		return [20]byte{}, false, err
	}
	return e.claimHolder(id)
}

// ClaimURI returns the metadata URI of the claim for id.
func (e *Engine) ClaimURI(id uint64) (string, error) {
	if _, err := e.Mortgage(id); err != nil {
		return "", err
	}
	base, err := e.BaseURI()
	if err != nil {
		return "", err
	}
	return base + strconv.FormatUint(id, 10), nil
}

type anchorPayload struct {
	Mortgage    *Mortgage
	Collateral  custody.Collateral
	ClaimHolder [20]byte
}

// Anchor returns the version of the mortgage a caller passes to SafeLend or
// SafeRepay. It changes whenever the mortgage, its collateral or its claim
// holder changes.
func (e *Engine) Anchor(id uint64) ([32]byte, error) {
	if e == nil || e.state == nil {
		return [32]byte{}, errNilState
	}
	return e.anchor(id)
}

func (e *Engine) anchor(id uint64) ([32]byte, error) {
	m, err := e.loadMortgage(id)
	if err != nil {
		return [32]byte{}, err
	}
	collateral, err := e.loadCollateral(id)
	if err != nil {
		return [32]byte{}, err
	}
	holder, _, err := e.claimHolder(id)
	if err != nil {
		return [32]byte{}, err
	}
	encoded, err := rlp.EncodeToBytes(anchorPayload{Mortgage: m, Collateral: collateral, ClaimHolder: holder})
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(encoded))
	return out, nil
}
