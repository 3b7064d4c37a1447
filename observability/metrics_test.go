package observability

import (
	"errors"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"lendchain/core/events"
	"lendchain/native/transfer"
)

type namedEvent string

func (e namedEvent) EventType() string { return string(e) }

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	before := testutil.ToFloat64(m.errors.WithLabelValues("mortgage", "lend", "409"))
	m.Observe("mortgage", "lend", http.StatusConflict, 10*time.Millisecond)
	m.Observe("mortgage", "lend", http.StatusOK, time.Millisecond)
	if got := testutil.ToFloat64(m.errors.WithLabelValues("mortgage", "lend", "409")); got != before+1 {
		t.Fatalf("expected one more error, got %v", got-before)
	}
	m.RecordThrottle("", "")
	if got := testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "unspecified")); got < 1 {
		t.Fatalf("throttle not recorded")
	}
}

func TestMortgageMetrics(t *testing.T) {
	m := Mortgage()
	var _ transfer.Observer = m

	m.RecordTransition("repay", "", nil)
	m.RecordTransition("repay", "overdue", errors.New("overdue"))
	if testutil.ToFloat64(m.transitions.WithLabelValues("repay", "overdue")) < 1 {
		t.Fatalf("failed transition not recorded")
	}
	m.ObservePush(true, 2, transfer.Failed)
	if testutil.ToFloat64(m.pushes.WithLabelValues("native", transfer.Failed.String())) < 1 {
		t.Fatalf("push not recorded")
	}
	before := testutil.ToFloat64(m.fees.WithLabelValues("native"))
	m.RecordFee("native", big.NewInt(1000))
	m.RecordFee("native", big.NewInt(-5))
	if got := testutil.ToFloat64(m.fees.WithLabelValues("native")); got != before+1000 {
		t.Fatalf("unexpected fee total %v", got-before)
	}

	var nilMetrics *MortgageMetrics
	nilMetrics.RecordTransition("borrow", "", nil)
}

func TestPushAttemptsHistogram(t *testing.T) {
	m := Mortgage()
	read := func() *dto.Histogram {
		var metric dto.Metric
		if err := m.attempts.WithLabelValues("token").(prometheus.Metric).Write(&metric); err != nil {
			t.Fatalf("write metric: %v", err)
		}
		return metric.GetHistogram()
	}
	before := read()
	m.ObservePush(false, 3, transfer.Success)
	after := read()
	if after.GetSampleCount() != before.GetSampleCount()+1 {
		t.Fatalf("expected one more sample")
	}
	if after.GetSampleSum()-before.GetSampleSum() != 3 {
		t.Fatalf("unexpected attempts sum %v", after.GetSampleSum()-before.GetSampleSum())
	}
}

func TestEventsEmitter(t *testing.T) {
	var emitter events.Emitter = Events()
	before := testutil.ToFloat64(Events().emitted.WithLabelValues("mortgage.new"))
	emitter.Emit(namedEvent(" Mortgage.New "))
	emitter.Emit(nil)
	if got := testutil.ToFloat64(Events().emitted.WithLabelValues("mortgage.new")); got != before+1 {
		t.Fatalf("unexpected event count %v", got-before)
	}
}
