package transfer

import (
	"errors"
	"math/big"
	"testing"
)

var (
	module = [20]byte{0x4d}
	alice  = [20]byte{0x01}
	token  = [20]byte{0x70}
)

type flakyBank struct {
	refusals int
	calls    int
}

func (f *flakyBank) Transfer(from, to [20]byte, amount *big.Int) error {
	f.calls++
	if f.calls <= f.refusals {
		return errors.New("refused")
	}
	return nil
}

type tokenLedger struct {
	err   error
	calls int
}

func (l *tokenLedger) Transfer(token, from, to [20]byte, amount *big.Int) error {
	l.calls++
	return l.err
}

type recorder struct {
	attempts []int
	outcomes []Outcome
}

func (r *recorder) ObservePush(native bool, attempts int, outcome Outcome) {
	r.attempts = append(r.attempts, attempts)
	r.outcomes = append(r.outcomes, outcome)
}

func TestNativePushRetriesWithinBudget(t *testing.T) {
	bank := &flakyBank{refusals: 2}
	rec := &recorder{}
	pusher := NewPusher(bank, nil, module)
	pusher.SetObserver(rec)

	outcome, err := pusher.Push([20]byte{}, alice, big.NewInt(10))
	if err != nil || outcome != Success {
		t.Fatalf("expected success on third attempt, got %v %v", outcome, err)
	}
	if bank.calls != 3 || rec.attempts[0] != 3 {
		t.Fatalf("unexpected attempt count %d / %v", bank.calls, rec.attempts)
	}
}

func TestNativePushFailsWhenBudgetExhausted(t *testing.T) {
	bank := &flakyBank{refusals: 5}
	pusher := NewPusher(bank, nil, module)
	pusher.SetNativeAttempts(2)

	outcome, err := pusher.Push([20]byte{}, alice, big.NewInt(10))
	if outcome != Failed || err == nil {
		t.Fatalf("expected failure, got %v %v", outcome, err)
	}
	if bank.calls != 2 {
		t.Fatalf("expected two attempts, got %d", bank.calls)
	}

	pusher.SetNativeAttempts(0)
	if pusher.NativeAttempts() != 1 {
		t.Fatalf("expected attempt floor of one")
	}
}

func TestTokenPushFailsClosed(t *testing.T) {
	ledger := &tokenLedger{err: errors.New("short")}
	pusher := NewPusher(nil, ledger, module)
	outcome, err := pusher.Push(token, alice, big.NewInt(1))
	if outcome != Failed || err == nil {
		t.Fatalf("expected failure, got %v %v", outcome, err)
	}
	if ledger.calls != 1 {
		t.Fatalf("token pushes must not be retried, got %d calls", ledger.calls)
	}
}

func TestZeroPushSkipsLedger(t *testing.T) {
	bank := &flakyBank{refusals: 100}
	pusher := NewPusher(bank, nil, module)
	outcome, err := pusher.Push([20]byte{}, alice, big.NewInt(0))
	if outcome != Success || err != nil || bank.calls != 0 {
		t.Fatalf("zero push should succeed without ledger calls: %v %v %d", outcome, err, bank.calls)
	}
	if outcome, _ := pusher.Push([20]byte{}, alice, big.NewInt(-1)); outcome != Failed {
		t.Fatalf("negative push should fail")
	}
}

func TestBarrierRejectsReentry(t *testing.T) {
	var barrier Barrier
	release, err := barrier.Enter()
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if _, err := barrier.Enter(); !errors.Is(err, ErrReentrant) {
		t.Fatalf("expected reentrant error, got %v", err)
	}
	release()
	if barrier.Busy() {
		t.Fatalf("barrier still busy after release")
	}
	release, err = barrier.Enter()
	if err != nil {
		t.Fatalf("re-enter after release: %v", err)
	}
	release()
}
